package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/okranz/kubevapp/internal/bootstrap"
	"github.com/okranz/kubevapp/internal/cluster"
	"github.com/okranz/kubevapp/internal/config"
	"github.com/okranz/kubevapp/internal/metrics"
	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/task"
	"github.com/okranz/kubevapp/internal/template"
	"github.com/okranz/kubevapp/internal/util/naming"
)

// ScriptLoader resolves the bootstrap script set for a template. Injected
// so tests can supply scripts without a directory tree.
type ScriptLoader func(def template.Definition) (*template.ScriptSet, error)

// NativeOrchestrator provisions and manages clusters directly on the
// platform: one vApp per cluster, bootstrap via in-guest scripts.
type NativeOrchestrator struct {
	client   vapp.Client
	repo     *cluster.Repository
	registry *template.Registry
	runner   *bootstrap.Runner
	scripts  ScriptLoader

	broker           config.Broker
	installerVersion string
	log              *logrus.Entry
}

var _ Orchestrator = (*NativeOrchestrator)(nil)

// NativeOption adjusts a NativeOrchestrator.
type NativeOption func(*NativeOrchestrator)

// WithScriptLoader overrides how template script sets are resolved.
func WithScriptLoader(loader ScriptLoader) NativeOption {
	return func(o *NativeOrchestrator) { o.scripts = loader }
}

// NewNative wires the native orchestrator.
func NewNative(client vapp.Client, repo *cluster.Repository, registry *template.Registry,
	runner *bootstrap.Runner, broker config.Broker, installerVersion string,
	log *logrus.Entry, opts ...NativeOption) *NativeOrchestrator {

	o := &NativeOrchestrator{
		client:           client,
		repo:             repo,
		registry:         registry,
		runner:           runner,
		broker:           broker,
		installerVersion: installerVersion,
		log:              log,
	}
	o.scripts = func(def template.Definition) (*template.ScriptSet, error) {
		return template.LoadScripts(broker.ScriptsDir, def)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// filter maps a request scope onto a platform query filter, falling back to
// the broker defaults.
func (o *NativeOrchestrator) filter(scope Scope) vapp.Filter {
	f := vapp.Filter{Org: scope.Org, VDC: scope.VDC}
	if f.Org == "" {
		f.Org = o.broker.Org
	}
	if f.VDC == "" {
		f.VDC = o.broker.VDC
	}
	return f
}

func (o *NativeOrchestrator) network(requested string) string {
	if requested != "" {
		return requested
	}
	return o.broker.Network
}

// dispatch runs fn detached from the caller. The execution owns the task:
// fn drives it to SUCCESS or ERROR itself; the outermost recover converts a
// panic into task ERROR so nothing escapes the goroutine.
func (o *NativeOrchestrator) dispatch(ctx context.Context, operation string, t *task.Task, fn func(ctx context.Context)) {
	metrics.OperationsStarted.WithLabelValues(operation).Inc()
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.WithFields(logrus.Fields{"operation": operation, "task": t.ID()}).
					Errorf("unexpected error in detached execution: %v", r)
				t.Fail(fmt.Sprintf("unexpected error: %v", r))
			}
			switch t.Snapshot().Status {
			case task.StatusSuccess:
				metrics.OperationsSucceeded.WithLabelValues(operation).Inc()
			case task.StatusError:
				metrics.OperationsFailed.WithLabelValues(operation).Inc()
			}
		}()
		fn(detached)
	}()
}

// await waits a platform operation to completion. Detached executions
// outlive the request that dispatched them, so the wait is not bound to a
// caller context.
func (o *NativeOrchestrator) await(op *vapp.Operation, err error) error {
	if err != nil {
		return err
	}
	return o.client.WaitOperation(context.Background(), op)
}

// ClusterInfo returns one cluster with its nodes.
func (o *NativeOrchestrator) ClusterInfo(ctx context.Context, scope Scope, name string) (*cluster.Cluster, error) {
	return o.repo.Get(ctx, name, o.filter(scope))
}

// ListClusters returns all clusters in scope, without node details.
func (o *NativeOrchestrator) ListClusters(ctx context.Context, scope Scope) ([]cluster.Cluster, error) {
	return o.repo.List(ctx, o.filter(scope))
}

// ClusterConfig reads the cluster's admin kubeconfig from its master node.
func (o *NativeOrchestrator) ClusterConfig(ctx context.Context, scope Scope, name string) (string, error) {
	c, err := o.repo.Get(ctx, name, o.filter(scope))
	if err != nil {
		return "", err
	}
	master, err := masterOf(c)
	if err != nil {
		return "", err
	}
	return o.runner.Kubeconfig(ctx, c.Name, master)
}

// UpgradePlan returns the templates the cluster may be upgraded to.
func (o *NativeOrchestrator) UpgradePlan(ctx context.Context, scope Scope, name string) ([]template.Definition, error) {
	c, err := o.repo.Get(ctx, name, o.filter(scope))
	if err != nil {
		return nil, err
	}
	current := template.Definition{Name: c.Template.Name, Revision: c.Template.Revision}
	return o.registry.UpgradeTargets(current), nil
}

// NodeInfo returns one node of a cluster; NFS nodes additionally carry
// their export list, resolved best-effort.
func (o *NativeOrchestrator) NodeInfo(ctx context.Context, scope Scope, clusterName, nodeName string) (*cluster.Node, error) {
	c, err := o.repo.Get(ctx, clusterName, o.filter(scope))
	if err != nil {
		return nil, err
	}
	for i := range c.Nodes {
		if c.Nodes[i].Name != nodeName {
			continue
		}
		node := c.Nodes[i]
		if node.Role == naming.RoleNFS {
			exports, err := o.runner.NFSExports(ctx, c.Name, node.Name)
			if err != nil {
				o.log.WithFields(logrus.Fields{"cluster": c.Name, "node": node.Name}).
					WithError(err).Warn("could not list NFS exports")
			} else {
				node.Exports = exports
			}
		}
		return &node, nil
	}
	return nil, validationf("node '%s' not found in cluster '%s'", nodeName, clusterName)
}

// getCluster fetches a cluster, passing repository errors through.
func (o *NativeOrchestrator) getCluster(ctx context.Context, scope Scope, name string) (*cluster.Cluster, error) {
	return o.repo.Get(ctx, name, o.filter(scope))
}

// resolveTemplate applies the both-or-neither rule and the configured
// default, converting registry errors into validation errors.
func (o *NativeOrchestrator) resolveTemplate(name string, revision int) (template.Definition, error) {
	def, err := o.registry.Get(name, revision)
	if err != nil {
		return template.Definition{}, &ValidationError{Msg: err.Error()}
	}
	return def, nil
}

// clusterTemplate resolves the template a cluster is recorded against.
func (o *NativeOrchestrator) clusterTemplate(c *cluster.Cluster) (template.Definition, error) {
	def, err := o.registry.Get(c.Template.Name, c.Template.Revision)
	if err != nil {
		return template.Definition{}, fmt.Errorf("cluster '%s' uses an unknown template: %w", c.Name, err)
	}
	return def, nil
}

func masterOf(c *cluster.Cluster) (string, error) {
	for _, n := range c.Nodes {
		if n.Role == naming.RoleMaster {
			return n.Name, nil
		}
	}
	return "", fmt.Errorf("cluster '%s' has no master node", c.Name)
}

func workersOf(c *cluster.Cluster) []string {
	var names []string
	for _, n := range c.Nodes {
		if n.Role == naming.RoleWorker {
			names = append(names, n.Name)
		}
	}
	return names
}

// ensureAbsent verifies no cluster with the name is visible in scope.
func (o *NativeOrchestrator) ensureAbsent(ctx context.Context, scope Scope, name string) error {
	_, err := o.repo.Get(ctx, name, o.filter(scope))
	if err == nil {
		return &AlreadyExistsError{Name: name}
	}
	var nf *cluster.NotFoundError
	if errors.As(err, &nf) {
		return nil
	}
	var amb *cluster.AmbiguousError
	if errors.As(err, &amb) {
		return &AlreadyExistsError{Name: name}
	}
	return err
}
