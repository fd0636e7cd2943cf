package orchestrator

import (
	"context"

	"github.com/okranz/kubevapp/internal/cluster"
	"github.com/okranz/kubevapp/internal/task"
	"github.com/okranz/kubevapp/internal/template"
)

// ExternalOrchestrator is the variant selected for org/VDCs whose clusters
// are managed by an external container service. The lifecycle lives
// entirely outside this system, so every operation reports that.
type ExternalOrchestrator struct{}

var _ Orchestrator = (*ExternalOrchestrator)(nil)

func (o *ExternalOrchestrator) ClusterInfo(context.Context, Scope, string) (*cluster.Cluster, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) ListClusters(context.Context, Scope) ([]cluster.Cluster, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) ClusterConfig(context.Context, Scope, string) (string, error) {
	return "", ErrExternallyManaged
}

func (o *ExternalOrchestrator) UpgradePlan(context.Context, Scope, string) ([]template.Definition, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) NodeInfo(context.Context, Scope, string, string) (*cluster.Node, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) CreateCluster(context.Context, CreateClusterRequest) (*task.Task, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) ResizeCluster(context.Context, ResizeClusterRequest) (*task.Task, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) DeleteCluster(context.Context, DeleteClusterRequest) (*task.Task, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) AddNodes(context.Context, AddNodesRequest) (*task.Task, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) DeleteNodes(context.Context, DeleteNodesRequest) (*task.Task, error) {
	return nil, ErrExternallyManaged
}

func (o *ExternalOrchestrator) UpgradeCluster(context.Context, UpgradeClusterRequest) (*task.Task, error) {
	return nil, ErrExternallyManaged
}
