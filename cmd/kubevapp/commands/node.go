package commands

import (
	"github.com/spf13/cobra"

	"github.com/okranz/kubevapp/cmd/kubevapp/handlers"
)

// Node returns the node command group.
func Node() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage individual cluster nodes",
	}

	cmd.AddCommand(nodeAdd())
	cmd.AddCommand(nodeDelete())
	cmd.AddCommand(nodeInfo())

	return cmd
}

func nodeAdd() *cobra.Command {
	var opts handlers.AddNodesOptions

	cmd := &cobra.Command{
		Use:   "add CLUSTER",
		Short: "Add worker or NFS nodes to a cluster",
		Long: `Add provisions new nodes in an existing cluster's vApp. Worker nodes
join the cluster after provisioning; NFS nodes get an export set up instead.

Example:
  kubevapp node add demo -c kubevapp.yaml --count 2
  kubevapp node add demo -c kubevapp.yaml --count 1 --role nfs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Cluster = args[0]
			return handlers.AddNodes(cmd.Context(), opts)
		},
	}

	scopeFlags(cmd, &opts.ConfigPath, &opts.Org, &opts.VDC)
	cmd.Flags().StringVar(&opts.Network, "network", "", "Org VDC network for the new nodes (default from configuration)")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "Number of nodes to add")
	cmd.Flags().StringVar(&opts.Role, "role", "worker", "Role of the new nodes: worker or nfs")
	cmd.Flags().IntVar(&opts.CPU, "cpu", 0, "vCPUs per node (default from template)")
	cmd.Flags().Int64Var(&opts.MemoryMB, "memory", 0, "Memory per node in MB (default from template)")
	cmd.Flags().StringVar(&opts.StorageProfile, "storage-profile", "", "Storage profile for node disks")
	cmd.Flags().StringVar(&opts.SSHKeyFile, "ssh-key", "", "Path to an SSH public key to install on the new nodes")
	cmd.Flags().StringVar(&opts.TemplateName, "template", "", "Template for the new nodes (default: the cluster's template)")
	cmd.Flags().IntVar(&opts.TemplateRevision, "template-revision", 0, "Template revision, required with --template")
	cmd.Flags().BoolVar(&opts.DisableRollback, "disable-rollback", false, "Keep partially added nodes for inspection on failure")

	return cmd
}

func nodeDelete() *cobra.Command {
	var configPath, org, vdc string

	cmd := &cobra.Command{
		Use:   "delete CLUSTER NODE...",
		Short: "Drain and remove nodes from a cluster",
		Long: `Delete drains the named nodes, removes them from the Kubernetes cluster
and deletes their VMs. Master nodes cannot be deleted.

Example:
  kubevapp node delete demo worker-ab12 -c kubevapp.yaml`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.DeleteNodes(cmd.Context(), configPath, args[0], org, vdc, args[1:])
		},
	}

	scopeFlags(cmd, &configPath, &org, &vdc)
	return cmd
}

func nodeInfo() *cobra.Command {
	var configPath, org, vdc string

	cmd := &cobra.Command{
		Use:   "info CLUSTER NODE",
		Short: "Show one node of a cluster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.NodeInfo(cmd.Context(), configPath, args[0], args[1], org, vdc)
		},
	}

	scopeFlags(cmd, &configPath, &org, &vdc)
	return cmd
}
