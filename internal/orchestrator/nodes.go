package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/task"
	"github.com/okranz/kubevapp/internal/template"
	"github.com/okranz/kubevapp/internal/util/naming"
)

// customizationScriptFmt injects the requested SSH public key during the
// guest's post-customization boot phase.
const customizationScriptFmt = `#!/usr/bin/env bash
if [ x$1 = x"postcustomization" ];
then
  mkdir -p /root/.ssh
  echo '%s' >> /root/.ssh/authorized_keys
  chmod -R go-rwx /root/.ssh
fi
`

type provisionRequest struct {
	cluster string
	count   int
	role    naming.NodeRole
	def     template.Definition
	scripts *template.ScriptSet
	network string
	sizing  NodeSizing
	sshKey  string
}

// provisionNodes clones, sizes and powers on count nodes in the cluster's
// vApp. Any failure is wrapped into a NodeCreationError carrying every
// targeted node name so rollback can find them, created or not.
func (o *NativeOrchestrator) provisionNodes(ctx context.Context, req provisionRequest) ([]string, error) {
	names, err := o.doProvision(ctx, req)
	if err != nil {
		return names, &NodeCreationError{Role: req.role, Nodes: names, Err: err}
	}
	return names, nil
}

func (o *NativeOrchestrator) doProvision(ctx context.Context, req provisionRequest) ([]string, error) {
	source, err := o.client.ResolveTemplateVM(ctx, o.broker.Catalog, req.def.CatalogItem)
	if err != nil {
		return nil, fmt.Errorf("resolving template '%s': %w", req.def.CatalogItem, err)
	}

	existing, err := o.client.ListVMs(ctx, req.cluster)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(existing))
	for _, vm := range existing {
		taken[vm.Name] = true
	}

	var names []string
	specs := make([]vapp.VMSpec, 0, req.count)
	for i := 0; i < req.count; i++ {
		name := naming.NodeName(req.role, func(n string) bool { return taken[n] })
		taken[name] = true
		names = append(names, name)

		spec := vapp.VMSpec{
			Source:           source,
			Name:             name,
			Hostname:         name,
			Network:          req.network,
			IPAllocationMode: o.ipAllocationMode(),
			StorageProfile:   req.sizing.StorageProfile,
		}
		if req.sshKey != "" {
			spec.GuestCustomization = fmt.Sprintf(customizationScriptFmt, req.sshKey)
		}
		specs = append(specs, spec)
	}

	if err := o.await(o.client.AddVMs(ctx, req.cluster, specs)); err != nil {
		return names, err
	}

	cpus := req.sizing.CPU
	if cpus == 0 {
		cpus = req.def.CPU
	}
	memory := req.sizing.MemoryMB
	if memory == 0 {
		memory = req.def.MemoryMB
	}
	for _, name := range names {
		if err := o.await(o.client.SetVMCPU(ctx, req.cluster, name, cpus)); err != nil {
			return names, err
		}
		if err := o.await(o.client.SetVMMemory(ctx, req.cluster, name, memory)); err != nil {
			return names, err
		}
		if err := o.await(o.client.PowerOnVM(ctx, req.cluster, name)); err != nil {
			return names, err
		}
	}

	if req.role == naming.RoleNFS {
		for _, name := range names {
			if _, err := o.runner.Run(ctx, req.cluster, name, "NFS setup", req.scripts.NFSEnable); err != nil {
				return names, err
			}
		}
	}
	return names, nil
}

func (o *NativeOrchestrator) ipAllocationMode() string {
	if o.broker.IPAllocationMode != "" {
		return o.broker.IPAllocationMode
	}
	return vapp.IPAllocationModePool
}

// AddNodes adds worker or NFS nodes to an existing cluster. Workers join
// the control plane after provisioning; NFS nodes do not.
func (o *NativeOrchestrator) AddNodes(ctx context.Context, req AddNodesRequest) (*task.Task, error) {
	if req.Count < 1 {
		return nil, validationf("node count must be at least 1, got %d", req.Count)
	}
	if req.Role != naming.RoleWorker && req.Role != naming.RoleNFS {
		return nil, validationf("only %s and %s nodes can be added", naming.RoleWorker, naming.RoleNFS)
	}
	c, err := o.getCluster(ctx, req.Scope, req.Name)
	if err != nil {
		return nil, err
	}

	var def template.Definition
	if req.TemplateName == "" && req.TemplateRevision == 0 {
		def, err = o.clusterTemplate(c)
	} else {
		def, err = o.resolveTemplate(req.TemplateName, req.TemplateRevision)
	}
	if err != nil {
		return nil, err
	}
	scripts, err := o.scripts(def)
	if err != nil {
		return nil, err
	}
	master, err := masterOf(c)
	if err != nil {
		return nil, err
	}

	t := task.New("add nodes", fmt.Sprintf("Creating %d node(s) for cluster '%s' (%s)", req.Count, req.Name, c.ID))
	o.dispatch(ctx, "add_nodes", t, func(ctx context.Context) {
		o.addNodes(ctx, t, req, def, scripts, master, c.ID)
	})
	return t, nil
}

func (o *NativeOrchestrator) addNodes(ctx context.Context, t *task.Task, req AddNodesRequest,
	def template.Definition, scripts *template.ScriptSet, master, clusterID string) {

	log := o.log.WithFields(logrus.Fields{"cluster": req.Name, "task": t.ID()})

	names, err := o.provisionNodes(ctx, provisionRequest{
		cluster: req.Name,
		count:   req.Count,
		role:    req.Role,
		def:     def,
		scripts: scripts,
		network: o.network(req.Network),
		sizing:  req.Sizing,
		sshKey:  req.SSHPublicKey,
	})
	if err != nil {
		o.failAddNodes(ctx, t, req, log, names, err)
		return
	}

	if req.Role == naming.RoleWorker {
		t.Running(fmt.Sprintf("Adding %d node(s) to cluster '%s' (%s)", req.Count, req.Name, clusterID))
		if err := o.runner.JoinWorkers(ctx, req.Name, master, names, scripts.JoinWorker); err != nil {
			o.failAddNodes(ctx, t, req, log, names, &ClusterJoinError{Cluster: req.Name, Err: err})
			return
		}
	}

	t.Succeed(fmt.Sprintf("Created %d node(s) for cluster '%s' (%s)", req.Count, req.Name, clusterID))
}

// failAddNodes marks the task failed, first deleting the attempted nodes
// when the failure kind is recognized and rollback was not disabled. Only
// the new nodes are rolled back, never the cluster.
func (o *NativeOrchestrator) failAddNodes(ctx context.Context, t *task.Task, req AddNodesRequest,
	log *logrus.Entry, names []string, cause error) {

	log.WithError(cause).Error("adding nodes failed")
	if rollbackEligible(cause) && !req.DisableRollback && len(names) > 0 {
		t.Running(fmt.Sprintf("Error adding nodes to cluster '%s'. Deleting nodes %v (rollback=true)", req.Name, names))
		if err := o.removeVMs(ctx, req.Name, names); err != nil {
			log.WithError(err).Warn("node rollback failed")
		}
	}
	t.Fail(cause.Error())
}

// removeVMs undeploys (best-effort) and removes the named VMs.
func (o *NativeOrchestrator) removeVMs(ctx context.Context, clusterName string, names []string) error {
	for _, name := range names {
		if err := o.await(o.client.UndeployVM(ctx, clusterName, name)); err != nil {
			o.log.WithFields(logrus.Fields{"cluster": clusterName, "node": name}).
				WithError(err).Warn("could not undeploy node")
		}
	}
	return o.await(o.client.RemoveVMs(ctx, clusterName, names))
}

// ResizeCluster grows the cluster's worker set to the requested count. The
// current count is re-read from live VM enumeration; scaling down or to the
// current count is rejected.
func (o *NativeOrchestrator) ResizeCluster(ctx context.Context, req ResizeClusterRequest) (*task.Task, error) {
	c, err := o.getCluster(ctx, req.Scope, req.Name)
	if err != nil {
		return nil, err
	}
	current := len(workersOf(c))
	if req.WorkerCount == current {
		return nil, validationf("cluster '%s' already has %d worker node(s)", req.Name, current)
	}
	if req.WorkerCount < current {
		return nil, validationf("scaling down is not supported: cluster '%s' has %d worker node(s), requested %d", req.Name, current, req.WorkerCount)
	}

	return o.AddNodes(ctx, AddNodesRequest{
		Name:            req.Name,
		Scope:           req.Scope,
		Network:         req.Network,
		Count:           req.WorkerCount - current,
		Role:            naming.RoleWorker,
		Sizing:          req.Sizing,
		SSHPublicKey:    req.SSHPublicKey,
		DisableRollback: req.DisableRollback,
	})
}

// DeleteNodes removes the named worker/NFS nodes from a cluster. Drain and
// the in-cluster node deletion are best-effort; the VM removal batch is
// awaited and authoritative.
func (o *NativeOrchestrator) DeleteNodes(ctx context.Context, req DeleteNodesRequest) (*task.Task, error) {
	if len(req.Nodes) == 0 {
		return nil, validationf("no nodes specified")
	}
	for _, n := range req.Nodes {
		if naming.HasRole(n, naming.RoleMaster) {
			return nil, validationf("cannot delete master node '%s'", n)
		}
	}
	c, err := o.getCluster(ctx, req.Scope, req.Name)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		known[n.Name] = true
	}
	for _, n := range req.Nodes {
		if !known[n] {
			return nil, validationf("node '%s' is not part of cluster '%s'", n, req.Name)
		}
	}
	master, err := masterOf(c)
	if err != nil {
		return nil, err
	}

	t := task.New("delete nodes", fmt.Sprintf("Draining %d node(s) from cluster '%s': %v", len(req.Nodes), req.Name, req.Nodes))
	o.dispatch(ctx, "delete_nodes", t, func(ctx context.Context) {
		o.deleteNodes(ctx, t, req, master)
	})
	return t, nil
}

func (o *NativeOrchestrator) deleteNodes(ctx context.Context, t *task.Task, req DeleteNodesRequest, master string) {
	log := o.log.WithFields(logrus.Fields{"cluster": req.Name, "task": t.ID()})

	// Each node gets its own drain attempt; one stuck node must not leave
	// the remaining targets undrained.
	for _, node := range req.Nodes {
		if err := o.runner.Drain(ctx, req.Name, master, []string{node}); err != nil {
			log.WithError(err).Warnf("failed to drain node '%s', continuing node delete", node)
		}
	}

	t.Running(fmt.Sprintf("Deleting %d node(s) from cluster '%s': %v", len(req.Nodes), req.Name, req.Nodes))
	if err := o.runner.RemoveFromCluster(ctx, req.Name, master, req.Nodes); err != nil {
		log.WithError(err).Warnf("failed to delete nodes %v from the Kubernetes cluster", req.Nodes)
	}
	if err := o.removeVMs(ctx, req.Name, req.Nodes); err != nil {
		log.WithError(err).Error("deleting node VMs failed")
		t.Fail(fmt.Sprintf("error deleting node(s) %v from cluster '%s': %v", req.Nodes, req.Name, err))
		return
	}

	t.Succeed(fmt.Sprintf("Deleted %d node(s) from cluster '%s'", len(req.Nodes), req.Name))
}
