package handlers

import (
	"context"
	"fmt"

	"github.com/okranz/kubevapp/internal/orchestrator"
	"github.com/okranz/kubevapp/internal/util/naming"
)

// AddNodesOptions carries the add-nodes command flags.
type AddNodesOptions struct {
	ConfigPath string
	Cluster    string
	Org        string
	VDC        string
	Network    string
	Count      int
	Role       string

	CPU            int
	MemoryMB       int64
	StorageProfile string

	SSHKeyFile       string
	TemplateName     string
	TemplateRevision int
	DisableRollback  bool
}

// AddNodes adds worker or NFS nodes to an existing cluster.
func AddNodes(ctx context.Context, opts AddNodesOptions) error {
	orch, err := newOrchestrator(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	sshKey, err := readSSHKey(opts.SSHKeyFile)
	if err != nil {
		return err
	}

	t, err := orch.AddNodes(ctx, orchestrator.AddNodesRequest{
		Name:             opts.Cluster,
		Scope:            orchestrator.Scope{Org: opts.Org, VDC: opts.VDC},
		Network:          opts.Network,
		Count:            opts.Count,
		Role:             naming.NodeRole(opts.Role),
		Sizing:           orchestrator.NodeSizing{CPU: opts.CPU, MemoryMB: opts.MemoryMB, StorageProfile: opts.StorageProfile},
		SSHPublicKey:     sshKey,
		TemplateName:     opts.TemplateName,
		TemplateRevision: opts.TemplateRevision,
		DisableRollback:  opts.DisableRollback,
	})
	if err != nil {
		return err
	}
	return awaitTask(t)
}

// DeleteNodes drains and removes the named nodes from a cluster.
func DeleteNodes(ctx context.Context, configPath, clusterName, org, vdc string, nodes []string) error {
	orch, err := newOrchestrator(ctx, configPath)
	if err != nil {
		return err
	}
	t, err := orch.DeleteNodes(ctx, orchestrator.DeleteNodesRequest{
		Name:  clusterName,
		Scope: orchestrator.Scope{Org: org, VDC: vdc},
		Nodes: nodes,
	})
	if err != nil {
		return err
	}
	return awaitTask(t)
}

// NodeInfo prints one node of a cluster.
func NodeInfo(ctx context.Context, configPath, clusterName, nodeName, org, vdc string) error {
	orch, err := newOrchestrator(ctx, configPath)
	if err != nil {
		return err
	}
	n, err := orch.NodeInfo(ctx, orchestrator.Scope{Org: org, VDC: vdc}, clusterName, nodeName)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Node %s\n", n.Name)
	fmt.Fprintf(out, "  Role:   %s\n", n.Role)
	fmt.Fprintf(out, "  Status: %s\n", n.Status)
	fmt.Fprintf(out, "  IP:     %s\n", n.IP)
	fmt.Fprintf(out, "  CPUs:   %d\n", n.CPUs)
	fmt.Fprintf(out, "  Memory: %d MB\n", n.MemoryMB)
	if n.Role == naming.RoleNFS {
		fmt.Fprintf(out, "  Exports:\n")
		for _, e := range n.Exports {
			fmt.Fprintf(out, "    %s\n", e)
		}
	}
	return nil
}
