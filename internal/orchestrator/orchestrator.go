// Package orchestrator implements the cluster lifecycle state machines:
// create, resize, delete, add-nodes, delete-nodes and upgrade, each as a
// synchronous validation step followed by a detached execution reporting
// through a task record.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/okranz/kubevapp/internal/cluster"
	"github.com/okranz/kubevapp/internal/task"
	"github.com/okranz/kubevapp/internal/template"
	"github.com/okranz/kubevapp/internal/util/naming"
)

// Scope narrows lookups to an org and VDC. Empty fields fall back to the
// broker defaults.
type Scope struct {
	Org string
	VDC string
}

// NodeSizing carries optional per-node compute overrides. Zero values mean
// "use the template default".
type NodeSizing struct {
	CPU            int
	MemoryMB       int64
	StorageProfile string
}

// CreateClusterRequest is the input to CreateCluster.
type CreateClusterRequest struct {
	Name    string
	Scope   Scope
	Network string
	// WorkerCount must be zero or more.
	WorkerCount  int
	Sizing       NodeSizing
	SSHPublicKey string
	// TemplateName and TemplateRevision must be given together or not at
	// all; absent means the configured default template.
	TemplateName     string
	TemplateRevision int
	EnableNFS        bool
	// DisableRollback leaves a partially built cluster in place for
	// inspection when creation fails.
	DisableRollback bool
}

// ResizeClusterRequest is the input to ResizeCluster.
type ResizeClusterRequest struct {
	Name            string
	Scope           Scope
	Network         string
	WorkerCount     int
	Sizing          NodeSizing
	SSHPublicKey    string
	DisableRollback bool
}

// AddNodesRequest is the input to AddNodes.
type AddNodesRequest struct {
	Name             string
	Scope            Scope
	Network          string
	Count            int
	Role             naming.NodeRole
	Sizing           NodeSizing
	SSHPublicKey     string
	TemplateName     string
	TemplateRevision int
	DisableRollback  bool
}

// DeleteClusterRequest is the input to DeleteCluster.
type DeleteClusterRequest struct {
	Name  string
	Scope Scope
}

// DeleteNodesRequest is the input to DeleteNodes.
type DeleteNodesRequest struct {
	Name  string
	Scope Scope
	Nodes []string
}

// UpgradeClusterRequest is the input to UpgradeCluster.
type UpgradeClusterRequest struct {
	Name             string
	Scope            Scope
	TemplateName     string
	TemplateRevision int
}

// Orchestrator is the full cluster lifecycle surface. Read operations
// return synchronously; mutating operations validate synchronously, then
// return a task the caller polls to completion.
type Orchestrator interface {
	ClusterInfo(ctx context.Context, scope Scope, name string) (*cluster.Cluster, error)
	ListClusters(ctx context.Context, scope Scope) ([]cluster.Cluster, error)
	ClusterConfig(ctx context.Context, scope Scope, name string) (string, error)
	UpgradePlan(ctx context.Context, scope Scope, name string) ([]template.Definition, error)
	NodeInfo(ctx context.Context, scope Scope, clusterName, nodeName string) (*cluster.Node, error)

	CreateCluster(ctx context.Context, req CreateClusterRequest) (*task.Task, error)
	ResizeCluster(ctx context.Context, req ResizeClusterRequest) (*task.Task, error)
	DeleteCluster(ctx context.Context, req DeleteClusterRequest) (*task.Task, error)
	AddNodes(ctx context.Context, req AddNodesRequest) (*task.Task, error)
	DeleteNodes(ctx context.Context, req DeleteNodesRequest) (*task.Task, error)
	UpgradeCluster(ctx context.Context, req UpgradeClusterRequest) (*task.Task, error)
}

// Provider selects which orchestrator variant manages an org/VDC.
type Provider string

const (
	// ProviderNative provisions clusters directly on the platform.
	ProviderNative Provider = "native"
	// ProviderExternal delegates cluster management to an external
	// container service; native operations are unavailable there.
	ProviderExternal Provider = "external"
)

// ForProvider returns the orchestrator variant for a provider. The choice
// is made once per org/VDC configuration, never by runtime type inspection.
func ForProvider(p Provider, native *NativeOrchestrator) (Orchestrator, error) {
	switch p {
	case ProviderNative:
		return native, nil
	case ProviderExternal:
		return &ExternalOrchestrator{}, nil
	default:
		return nil, fmt.Errorf("unknown provider '%s'", p)
	}
}
