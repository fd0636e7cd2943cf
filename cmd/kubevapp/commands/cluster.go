package commands

import (
	"github.com/spf13/cobra"

	"github.com/okranz/kubevapp/cmd/kubevapp/handlers"
)

// Cluster returns the cluster command group.
func Cluster() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Manage Kubernetes clusters",
	}

	cmd.AddCommand(clusterCreate())
	cmd.AddCommand(clusterList())
	cmd.AddCommand(clusterInfo())
	cmd.AddCommand(clusterConfig())
	cmd.AddCommand(clusterResize())
	cmd.AddCommand(clusterDelete())
	cmd.AddCommand(clusterUpgradePlan())
	cmd.AddCommand(clusterUpgrade())

	return cmd
}

// scopeFlags binds the common --config/--org/--vdc flags every cluster
// command takes.
func scopeFlags(cmd *cobra.Command, configPath, org, vdc *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", "", "Path to the server configuration file (required)")
	cmd.Flags().StringVar(org, "org", "", "Organization to operate in (default from configuration)")
	cmd.Flags().StringVar(vdc, "vdc", "", "Virtual datacenter to operate in (default from configuration)")
	_ = cmd.MarkFlagRequired("config")
}

func clusterCreate() *cobra.Command {
	var opts handlers.CreateClusterOptions

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new Kubernetes cluster",
		Long: `Create provisions a new Kubernetes cluster as a vApp.

The cluster gets one master node plus the requested number of worker nodes,
all instantiated from a cluster template. Creation runs asynchronously; the
command follows the task and prints progress until the cluster is ready.

Example:
  kubevapp cluster create demo -c kubevapp.yaml --workers 2 --ssh-key ~/.ssh/id_rsa.pub

A failed creation rolls the partially built vApp back unless
--disable-rollback is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			return handlers.CreateCluster(cmd.Context(), opts)
		},
	}

	scopeFlags(cmd, &opts.ConfigPath, &opts.Org, &opts.VDC)
	cmd.Flags().StringVar(&opts.Network, "network", "", "Org VDC network to attach the cluster to (default from configuration)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 2, "Number of worker nodes")
	cmd.Flags().IntVar(&opts.CPU, "cpu", 0, "vCPUs per node (default from template)")
	cmd.Flags().Int64Var(&opts.MemoryMB, "memory", 0, "Memory per node in MB (default from template)")
	cmd.Flags().StringVar(&opts.StorageProfile, "storage-profile", "", "Storage profile for node disks")
	cmd.Flags().StringVar(&opts.SSHKeyFile, "ssh-key", "", "Path to an SSH public key to install on all nodes")
	cmd.Flags().StringVar(&opts.TemplateName, "template", "", "Cluster template name (default from configuration)")
	cmd.Flags().IntVar(&opts.TemplateRevision, "template-revision", 0, "Cluster template revision, required with --template")
	cmd.Flags().BoolVar(&opts.EnableNFS, "enable-nfs", false, "Add an NFS node to the cluster")
	cmd.Flags().BoolVar(&opts.DisableRollback, "disable-rollback", false, "Keep a partially created cluster for inspection on failure")

	return cmd
}

func clusterList() *cobra.Command {
	var configPath, org, vdc string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clusters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.ListClusters(cmd.Context(), configPath, org, vdc)
		},
	}

	scopeFlags(cmd, &configPath, &org, &vdc)
	return cmd
}

func clusterInfo() *cobra.Command {
	var configPath, org, vdc string

	cmd := &cobra.Command{
		Use:   "info NAME",
		Short: "Show a cluster and its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.ClusterInfo(cmd.Context(), configPath, args[0], org, vdc)
		},
	}

	scopeFlags(cmd, &configPath, &org, &vdc)
	return cmd
}

func clusterConfig() *cobra.Command {
	var configPath, org, vdc string

	cmd := &cobra.Command{
		Use:   "config NAME",
		Short: "Print a cluster's admin kubeconfig",
		Long: `Config fetches the admin kubeconfig from the cluster's master node and
prints it to standard output.

Example:
  kubevapp cluster config demo -c kubevapp.yaml > demo.kubeconfig`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.ClusterConfig(cmd.Context(), configPath, args[0], org, vdc)
		},
	}

	scopeFlags(cmd, &configPath, &org, &vdc)
	return cmd
}

func clusterResize() *cobra.Command {
	var opts handlers.ResizeClusterOptions

	cmd := &cobra.Command{
		Use:   "resize NAME",
		Short: "Grow a cluster to a target worker count",
		Long: `Resize adds worker nodes until the cluster has the requested number.

The target is an absolute count, not a delta. Scaling down is not supported;
use "kubevapp node delete" to remove specific nodes instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			return handlers.ResizeCluster(cmd.Context(), opts)
		},
	}

	scopeFlags(cmd, &opts.ConfigPath, &opts.Org, &opts.VDC)
	cmd.Flags().StringVar(&opts.Network, "network", "", "Org VDC network for the new nodes (default from configuration)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Target number of worker nodes (required)")
	cmd.Flags().IntVar(&opts.CPU, "cpu", 0, "vCPUs per new node (default from template)")
	cmd.Flags().Int64Var(&opts.MemoryMB, "memory", 0, "Memory per new node in MB (default from template)")
	cmd.Flags().StringVar(&opts.StorageProfile, "storage-profile", "", "Storage profile for new node disks")
	cmd.Flags().StringVar(&opts.SSHKeyFile, "ssh-key", "", "Path to an SSH public key to install on the new nodes")
	cmd.Flags().BoolVar(&opts.DisableRollback, "disable-rollback", false, "Keep partially added nodes for inspection on failure")
	_ = cmd.MarkFlagRequired("workers")

	return cmd
}

func clusterDelete() *cobra.Command {
	var configPath, org, vdc string

	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a cluster and all its nodes",
		Long: `Delete removes the cluster's vApp and every VM in it.

WARNING: This operation is irreversible. All cluster data will be lost.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.DeleteCluster(cmd.Context(), configPath, args[0], org, vdc)
		},
	}

	scopeFlags(cmd, &configPath, &org, &vdc)
	return cmd
}

func clusterUpgradePlan() *cobra.Command {
	var configPath, org, vdc string

	cmd := &cobra.Command{
		Use:   "upgrade-plan NAME",
		Short: "List the templates a cluster can be upgraded to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.UpgradePlan(cmd.Context(), configPath, args[0], org, vdc)
		},
	}

	scopeFlags(cmd, &configPath, &org, &vdc)
	return cmd
}

func clusterUpgrade() *cobra.Command {
	var opts handlers.UpgradeClusterOptions

	cmd := &cobra.Command{
		Use:   "upgrade NAME",
		Short: "Upgrade a cluster's software to a target template",
		Long: `Upgrade patches the cluster's Kubernetes, container runtime and CNI in
place to match a target template. The target must appear in the cluster's
upgrade plan ("kubevapp cluster upgrade-plan").

Nodes are drained one at a time during a Kubernetes upgrade, so workloads
with enough replicas keep running. There is no rollback for upgrades.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			return handlers.UpgradeCluster(cmd.Context(), opts)
		},
	}

	scopeFlags(cmd, &opts.ConfigPath, &opts.Org, &opts.VDC)
	cmd.Flags().StringVar(&opts.TemplateName, "template", "", "Target template name (required)")
	cmd.Flags().IntVar(&opts.TemplateRevision, "template-revision", 0, "Target template revision (required)")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("template-revision")

	return cmd
}
