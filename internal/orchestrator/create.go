package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/okranz/kubevapp/internal/cluster"
	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/task"
	"github.com/okranz/kubevapp/internal/template"
	"github.com/okranz/kubevapp/internal/util/naming"
)

// CreateCluster validates the request, then builds the cluster detached
// from the caller: vApp, metadata, master, init, workers, join and the
// optional NFS node, in that order.
func (o *NativeOrchestrator) CreateCluster(ctx context.Context, req CreateClusterRequest) (*task.Task, error) {
	if !naming.IsValidClusterName(req.Name) {
		return nil, validationf("cluster name '%s' is invalid: names are limited to %d characters, dot-separated labels of letters, digits and hyphens with no leading or trailing hyphen", req.Name, naming.MaxClusterNameLength)
	}
	if req.WorkerCount < 0 {
		return nil, validationf("worker count must be zero or more, got %d", req.WorkerCount)
	}
	def, err := o.resolveTemplate(req.TemplateName, req.TemplateRevision)
	if err != nil {
		return nil, err
	}
	scripts, err := o.scripts(def)
	if err != nil {
		return nil, err
	}
	if err := o.ensureAbsent(ctx, req.Scope, req.Name); err != nil {
		return nil, err
	}

	clusterID := uuid.NewString()
	t := task.New("create cluster", fmt.Sprintf("Creating cluster vApp '%s' (%s)", req.Name, clusterID))
	o.dispatch(ctx, "create_cluster", t, func(ctx context.Context) {
		o.createCluster(ctx, t, req, def, scripts, clusterID)
	})
	return t, nil
}

func (o *NativeOrchestrator) createCluster(ctx context.Context, t *task.Task, req CreateClusterRequest,
	def template.Definition, scripts *template.ScriptSet, clusterID string) {

	log := o.log.WithFields(logrus.Fields{"cluster": req.Name, "task": t.ID()})
	network := o.network(req.Network)

	if err := o.await(o.client.CreateVApp(ctx, req.Name, fmt.Sprintf("Kubernetes cluster %s", req.Name), network, vapp.FenceModeBridged)); err != nil {
		t.Fail(fmt.Sprintf("error creating cluster vApp '%s': %v", req.Name, err))
		return
	}
	if err := o.await(o.client.SetMetadata(ctx, req.Name, cluster.Metadata(clusterID, o.installerVersion, "", def))); err != nil {
		o.failCreate(ctx, t, req, log, fmt.Errorf("tagging cluster '%s': %w", req.Name, err))
		return
	}

	t.Running(fmt.Sprintf("Creating master node for '%s' (%s)", req.Name, clusterID))
	masters, err := o.provisionNodes(ctx, provisionRequest{
		cluster: req.Name,
		count:   1,
		role:    naming.RoleMaster,
		def:     def,
		scripts: scripts,
		network: network,
		sizing:  req.Sizing,
		sshKey:  req.SSHPublicKey,
	})
	if err != nil {
		o.failCreate(ctx, t, req, log, err)
		return
	}
	master := masters[0]

	t.Running(fmt.Sprintf("Initializing cluster '%s' (%s)", req.Name, clusterID))
	if err := o.runner.InitCluster(ctx, req.Name, master, scripts.InitMaster); err != nil {
		o.failCreate(ctx, t, req, log, &ClusterInitError{Cluster: req.Name, Err: err})
		return
	}

	masterIP, err := o.runner.MasterIP(ctx, req.Name, master)
	if err != nil {
		o.failCreate(ctx, t, req, log, &ClusterInitError{Cluster: req.Name, Err: err})
		return
	}
	if err := o.await(o.client.SetMetadata(ctx, req.Name, map[string]string{cluster.KeyMasterIP: masterIP})); err != nil {
		o.failCreate(ctx, t, req, log, fmt.Errorf("recording master IP of '%s': %w", req.Name, err))
		return
	}

	if req.WorkerCount > 0 {
		t.Running(fmt.Sprintf("Creating %d node(s) for '%s' (%s)", req.WorkerCount, req.Name, clusterID))
		workers, err := o.provisionNodes(ctx, provisionRequest{
			cluster: req.Name,
			count:   req.WorkerCount,
			role:    naming.RoleWorker,
			def:     def,
			scripts: scripts,
			network: network,
			sizing:  req.Sizing,
			sshKey:  req.SSHPublicKey,
		})
		if err != nil {
			o.failCreate(ctx, t, req, log, err)
			return
		}

		t.Running(fmt.Sprintf("Adding %d node(s) to '%s' (%s)", req.WorkerCount, req.Name, clusterID))
		if err := o.runner.JoinWorkers(ctx, req.Name, master, workers, scripts.JoinWorker); err != nil {
			o.failCreate(ctx, t, req, log, &ClusterJoinError{Cluster: req.Name, Err: err})
			return
		}
	}

	if req.EnableNFS {
		t.Running(fmt.Sprintf("Creating NFS node for '%s' (%s)", req.Name, clusterID))
		if _, err := o.provisionNodes(ctx, provisionRequest{
			cluster: req.Name,
			count:   1,
			role:    naming.RoleNFS,
			def:     def,
			scripts: scripts,
			network: network,
			sizing:  req.Sizing,
			sshKey:  req.SSHPublicKey,
		}); err != nil {
			o.failCreate(ctx, t, req, log, err)
			return
		}
	}

	t.Succeed(fmt.Sprintf("Created cluster '%s' (%s)", req.Name, clusterID))
	log.Info("cluster created")
}

// failCreate marks the task failed, deleting the whole vApp first when the
// failure kind is rollback-eligible and rollback was not disabled. Rollback
// is best-effort: its own failure is logged and swallowed.
func (o *NativeOrchestrator) failCreate(ctx context.Context, t *task.Task, req CreateClusterRequest, log *logrus.Entry, cause error) {
	log.WithError(cause).Error("cluster creation failed")
	if rollbackEligible(cause) && !req.DisableRollback {
		t.Running(fmt.Sprintf("Error creating cluster '%s'. Deleting cluster (rollback=true)", req.Name))
		if err := o.deleteVApp(ctx, req.Scope, req.Name); err != nil {
			log.WithError(err).Warn("rollback failed; leaving partial cluster in place")
		}
	}
	t.Fail(cause.Error())
}

// deleteVApp removes the cluster's vApp. A nil operation from the platform
// means deletion is already in progress elsewhere and counts as done.
func (o *NativeOrchestrator) deleteVApp(ctx context.Context, scope Scope, name string) error {
	op, err := o.client.DeleteVApp(ctx, o.filter(scope).VDC, name)
	if err != nil {
		return err
	}
	if op == nil {
		o.log.WithField("cluster", name).Info("vApp deletion already in progress elsewhere")
		return nil
	}
	return o.client.WaitOperation(ctx, op)
}
