package handlers

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/okranz/kubevapp/internal/orchestrator"
)

// CreateClusterOptions carries the create-cluster command flags.
type CreateClusterOptions struct {
	ConfigPath string
	Name       string
	Org        string
	VDC        string
	Network    string
	Workers    int

	CPU            int
	MemoryMB       int64
	StorageProfile string

	SSHKeyFile       string
	TemplateName     string
	TemplateRevision int
	EnableNFS        bool
	DisableRollback  bool
}

// CreateCluster provisions a new cluster and follows its task to completion.
func CreateCluster(ctx context.Context, opts CreateClusterOptions) error {
	orch, err := newOrchestrator(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	sshKey, err := readSSHKey(opts.SSHKeyFile)
	if err != nil {
		return err
	}

	t, err := orch.CreateCluster(ctx, orchestrator.CreateClusterRequest{
		Name:             opts.Name,
		Scope:            orchestrator.Scope{Org: opts.Org, VDC: opts.VDC},
		Network:          opts.Network,
		WorkerCount:      opts.Workers,
		Sizing:           orchestrator.NodeSizing{CPU: opts.CPU, MemoryMB: opts.MemoryMB, StorageProfile: opts.StorageProfile},
		SSHPublicKey:     sshKey,
		TemplateName:     opts.TemplateName,
		TemplateRevision: opts.TemplateRevision,
		EnableNFS:        opts.EnableNFS,
		DisableRollback:  opts.DisableRollback,
	})
	if err != nil {
		return err
	}
	return awaitTask(t)
}

// ResizeClusterOptions carries the resize-cluster command flags.
type ResizeClusterOptions struct {
	ConfigPath string
	Name       string
	Org        string
	VDC        string
	Network    string
	Workers    int

	CPU            int
	MemoryMB       int64
	StorageProfile string

	SSHKeyFile      string
	DisableRollback bool
}

// ResizeCluster grows a cluster to the requested worker count.
func ResizeCluster(ctx context.Context, opts ResizeClusterOptions) error {
	orch, err := newOrchestrator(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	sshKey, err := readSSHKey(opts.SSHKeyFile)
	if err != nil {
		return err
	}

	t, err := orch.ResizeCluster(ctx, orchestrator.ResizeClusterRequest{
		Name:            opts.Name,
		Scope:           orchestrator.Scope{Org: opts.Org, VDC: opts.VDC},
		Network:         opts.Network,
		WorkerCount:     opts.Workers,
		Sizing:          orchestrator.NodeSizing{CPU: opts.CPU, MemoryMB: opts.MemoryMB, StorageProfile: opts.StorageProfile},
		SSHPublicKey:    sshKey,
		DisableRollback: opts.DisableRollback,
	})
	if err != nil {
		return err
	}
	return awaitTask(t)
}

// DeleteCluster removes a cluster and everything in it.
func DeleteCluster(ctx context.Context, configPath, name, org, vdc string) error {
	orch, err := newOrchestrator(ctx, configPath)
	if err != nil {
		return err
	}
	t, err := orch.DeleteCluster(ctx, orchestrator.DeleteClusterRequest{
		Name:  name,
		Scope: orchestrator.Scope{Org: org, VDC: vdc},
	})
	if err != nil {
		return err
	}
	return awaitTask(t)
}

// ListClusters prints all clusters visible in scope.
func ListClusters(ctx context.Context, configPath, org, vdc string) error {
	orch, err := newOrchestrator(ctx, configPath)
	if err != nil {
		return err
	}
	clusters, err := orch.ListClusters(ctx, orchestrator.Scope{Org: org, VDC: vdc})
	if err != nil {
		return err
	}
	if len(clusters) == 0 {
		fmt.Fprintln(out, "No clusters found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVDC\tVMS\tKUBERNETES\tTEMPLATE")
	for _, c := range clusters {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s (rev %d)\n",
			c.Name, c.VDC, c.NumVMs, c.KubernetesVersion, c.Template.Name, c.Template.Revision)
	}
	return w.Flush()
}

// ClusterInfo prints one cluster with its nodes.
func ClusterInfo(ctx context.Context, configPath, name, org, vdc string) error {
	orch, err := newOrchestrator(ctx, configPath)
	if err != nil {
		return err
	}
	c, err := orch.ClusterInfo(ctx, orchestrator.Scope{Org: org, VDC: vdc}, name)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Fprintf(out, "Cluster %s (%s)\n", c.Name, c.ID)
	fmt.Fprintf(out, "  Org/VDC:    %s/%s\n", c.Org, c.VDC)
	fmt.Fprintf(out, "  Status:     %s\n", c.Status)
	fmt.Fprintf(out, "  Master IP:  %s\n", c.MasterIP)
	fmt.Fprintf(out, "  Template:   %s (rev %d)\n", c.Template.Name, c.Template.Revision)
	fmt.Fprintf(out, "  Kubernetes: %s %s\n", c.Kubernetes, c.KubernetesVersion)
	fmt.Fprintf(out, "  CNI:        %s %s\n", c.CNI, c.CNIVersion)
	fmt.Fprintf(out, "  Docker-CE:  %s\n", c.DockerVersion)

	fmt.Fprintln(out, "  Nodes:")
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "    NAME\tROLE\tSTATUS\tIP")
	for _, n := range c.Nodes {
		fmt.Fprintf(w, "    %s\t%s\t%s\t%s\n", n.Name, n.Role, n.Status, n.IP)
	}
	return w.Flush()
}

// ClusterConfig prints the cluster's admin kubeconfig to standard output so
// it can be redirected into a file.
func ClusterConfig(ctx context.Context, configPath, name, org, vdc string) error {
	orch, err := newOrchestrator(ctx, configPath)
	if err != nil {
		return err
	}
	kubeconfig, err := orch.ClusterConfig(ctx, orchestrator.Scope{Org: org, VDC: vdc}, name)
	if err != nil {
		return err
	}
	fmt.Fprint(out, kubeconfig)
	return nil
}

// UpgradePlan prints the templates a cluster may be upgraded to.
func UpgradePlan(ctx context.Context, configPath, name, org, vdc string) error {
	orch, err := newOrchestrator(ctx, configPath)
	if err != nil {
		return err
	}
	plan, err := orch.UpgradePlan(ctx, orchestrator.Scope{Org: org, VDC: vdc}, name)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		fmt.Fprintf(out, "Cluster '%s' has no upgrade targets.\n", name)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEMPLATE\tREVISION\tKUBERNETES\tCNI\tDOCKER-CE")
	for _, d := range plan {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s %s\t%s\n",
			d.Name, d.Revision, d.KubernetesVersion, d.CNI, d.CNIVersion, d.DockerVersion)
	}
	return w.Flush()
}

// UpgradeClusterOptions carries the upgrade-cluster command flags.
type UpgradeClusterOptions struct {
	ConfigPath       string
	Name             string
	Org              string
	VDC              string
	TemplateName     string
	TemplateRevision int
}

// UpgradeCluster patches a cluster's software to a target template.
func UpgradeCluster(ctx context.Context, opts UpgradeClusterOptions) error {
	orch, err := newOrchestrator(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	t, err := orch.UpgradeCluster(ctx, orchestrator.UpgradeClusterRequest{
		Name:             opts.Name,
		Scope:            orchestrator.Scope{Org: opts.Org, VDC: opts.VDC},
		TemplateName:     opts.TemplateName,
		TemplateRevision: opts.TemplateRevision,
	})
	if err != nil {
		return err
	}
	return awaitTask(t)
}
