package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okranz/kubevapp/internal/bootstrap"
	"github.com/okranz/kubevapp/internal/cluster"
	"github.com/okranz/kubevapp/internal/config"
	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/platform/vapp/fake"
	"github.com/okranz/kubevapp/internal/task"
	"github.com/okranz/kubevapp/internal/template"
	"github.com/okranz/kubevapp/internal/util/naming"
)

func testDefs() []template.Definition {
	return []template.Definition{
		{
			Name: "photon-v2", Revision: 1, CatalogItem: "photon-v2-k8s1.14",
			CPU: 2, MemoryMB: 2048, OS: "photon-2.0",
			DockerVersion: "18.06.2", Kubernetes: "upstream", KubernetesVersion: "1.14.0",
			CNI: "weave", CNIVersion: "0.6.0",
		},
		{
			Name: "photon-v2", Revision: 2, CatalogItem: "photon-v2-k8s1.15",
			CPU: 2, MemoryMB: 2048, OS: "photon-2.0",
			DockerVersion: "18.06.2", Kubernetes: "upstream", KubernetesVersion: "1.15.0",
			CNI: "weave", CNIVersion: "0.7.0",
			UpgradeFrom: []string{"photon-v2"},
		},
	}
}

func stubScripts(template.Definition) (*template.ScriptSet, error) {
	return &template.ScriptSet{
		InitMaster:      "#!/bin/bash\nkubeadm init\n",
		JoinWorker:      "#!/bin/bash\nkubeadm join {ip}:6443 --token {token}\n",
		NFSEnable:       "#!/bin/bash\nsystemctl enable nfs-server.service\n",
		DockerUpgrade:   "#!/bin/bash\napt-get install docker-ce\n",
		MasterK8Upgrade: "#!/bin/bash\nkubeadm upgrade apply\n",
		WorkerK8Upgrade: "#!/bin/bash\nkubeadm upgrade node\n",
		CNIApply:        "#!/bin/bash\nkubectl apply -f cni.yaml\n",
	}, nil
}

type env struct {
	platform *fake.Client
	orch     *NativeOrchestrator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	platform := fake.NewClient()
	repo := cluster.NewRepository(platform, entry)
	registry, err := template.NewRegistry(testDefs(), "photon-v2", 1)
	require.NoError(t, err)
	runner := bootstrap.NewRunner(platform, entry, bootstrap.WithReadinessProbe(2, time.Millisecond))

	broker := config.Broker{
		Network:                 "mgmt-net",
		Catalog:                 "cse-catalog",
		IPAllocationMode:        "pool",
		DefaultTemplateName:     "photon-v2",
		DefaultTemplateRevision: 1,
	}
	orch := NewNative(platform, repo, registry, runner, broker, "2.6.0", entry, WithScriptLoader(stubScripts))
	return &env{platform: platform, orch: orch}
}

// seedCluster installs an already-built cluster on template rev 1 with one
// master and the given number of workers.
func (e *env) seedCluster(name string, workers int, nfs bool) {
	def := testDefs()[0]
	e.platform.Seed(&fake.VAppState{
		ID:       "urn:vapp:" + name,
		Name:     name,
		Metadata: cluster.Metadata("id-"+name, "2.6.0", "10.150.0.2", def),
	})
	e.platform.SeedVM(name, "master-aaaa", def.CPU, def.MemoryMB)
	for i := 0; i < workers; i++ {
		e.platform.SeedVM(name, fmt.Sprintf("worker-%c%c%c%c", 'b'+i, 'b'+i, 'b'+i, 'b'+i), def.CPU, def.MemoryMB)
	}
	if nfs {
		e.platform.SeedVM(name, "nfs-ffff", def.CPU, def.MemoryMB)
	}
}

func waitTask(t *testing.T, tk *task.Task) task.Snapshot {
	t.Helper()
	require.Eventually(t, tk.Done, 5*time.Second, 2*time.Millisecond, "task never reached a terminal state")
	return tk.Snapshot()
}

func TestCreateClusterValidation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name    string
		req     CreateClusterRequest
		wantMsg string
	}{
		{
			name:    "invalid name",
			req:     CreateClusterRequest{Name: "-bad", WorkerCount: 2},
			wantMsg: "invalid",
		},
		{
			name:    "name too long",
			req:     CreateClusterRequest{Name: strings.Repeat("a", 26), WorkerCount: 2},
			wantMsg: "invalid",
		},
		{
			name:    "negative workers",
			req:     CreateClusterRequest{Name: "demo", WorkerCount: -1},
			wantMsg: "worker count",
		},
		{
			name:    "revision without name",
			req:     CreateClusterRequest{Name: "demo", WorkerCount: 2, TemplateRevision: 2},
			wantMsg: "both",
		},
		{
			name:    "unknown template",
			req:     CreateClusterRequest{Name: "demo", WorkerCount: 2, TemplateName: "nope", TemplateRevision: 1},
			wantMsg: "not found",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.orch.CreateCluster(context.Background(), tc.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
	assert.Empty(t, e.platform.Calls, "validation failures must not touch the platform")
}

func TestCreateClusterNameCollision(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 1, false)

	_, err := e.orch.CreateCluster(context.Background(), CreateClusterRequest{Name: "demo", WorkerCount: 2})
	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "demo", exists.Name)
}

func TestCreateCluster(t *testing.T) {
	e := newEnv(t)

	tk, err := e.orch.CreateCluster(context.Background(), CreateClusterRequest{
		Name:         "demo",
		WorkerCount:  2,
		TemplateName: "photon-v2", TemplateRevision: 1,
		EnableNFS:    true,
		SSHPublicKey: "ssh-rsa AAAA test@host",
	})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	require.Equal(t, task.StatusSuccess, snap.Status, snap.Error)
	assert.Contains(t, snap.Message, "Created cluster 'demo'")

	va := e.platform.VApp("demo")
	require.NotNil(t, va)
	assert.NotEmpty(t, va.Metadata[cluster.KeyClusterID])
	assert.Equal(t, "photon-v2", va.Metadata[cluster.KeyTemplateName])
	assert.Equal(t, "1", va.Metadata[cluster.KeyTemplateRevision])
	assert.Equal(t, "1.14.0", va.Metadata[cluster.KeyKubernetesVer])
	assert.NotEmpty(t, va.Metadata[cluster.KeyMasterIP])

	var masters, workers, nfs int
	for _, vm := range va.VMs {
		assert.Equal(t, "POWERED_ON", vm.Status)
		assert.Equal(t, 2, vm.CPUs)
		assert.Equal(t, int64(2048), vm.MemoryMB)
		role, ok := naming.RoleOf(vm.Name)
		require.True(t, ok)
		switch role {
		case naming.RoleMaster:
			masters++
		case naming.RoleWorker:
			workers++
		case naming.RoleNFS:
			nfs++
		}
	}
	assert.Equal(t, 1, masters)
	assert.Equal(t, 2, workers)
	assert.Equal(t, 1, nfs)

	var joins, inits, nfsSetups int
	for _, sc := range e.platform.ScriptCalls {
		switch {
		case strings.Contains(sc.Script, "kubeadm init"):
			inits++
		case strings.Contains(sc.Script, "kubeadm join"):
			joins++
			assert.True(t, naming.HasRole(sc.VM, naming.RoleWorker))
		case strings.Contains(sc.Script, "nfs-server"):
			nfsSetups++
			assert.True(t, naming.HasRole(sc.VM, naming.RoleNFS))
		}
	}
	assert.Equal(t, 1, inits)
	assert.Equal(t, 2, joins)
	assert.Equal(t, 1, nfsSetups)
}

func TestCreateClusterRollbackOnProvisioningFailure(t *testing.T) {
	e := newEnv(t)
	workerPowerOns := 0
	e.platform.OnPowerOn = func(vmName string) error {
		if naming.HasRole(vmName, naming.RoleWorker) {
			workerPowerOns++
			if workerPowerOns == 2 {
				return errors.New("power-on rejected by platform")
			}
		}
		return nil
	}

	tk, err := e.orch.CreateCluster(context.Background(), CreateClusterRequest{Name: "demo", WorkerCount: 2})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	assert.Equal(t, task.StatusError, snap.Status)
	assert.Contains(t, snap.Error, "failure while creating worker node(s)")
	assert.Nil(t, e.platform.VApp("demo"), "rollback must delete the whole vApp")
	assert.Contains(t, e.platform.Calls, "DeleteVApp demo")
}

func TestCreateClusterNoRollbackWhenDisabled(t *testing.T) {
	e := newEnv(t)
	workerPowerOns := 0
	e.platform.OnPowerOn = func(vmName string) error {
		if naming.HasRole(vmName, naming.RoleWorker) {
			workerPowerOns++
			if workerPowerOns == 2 {
				return errors.New("power-on rejected by platform")
			}
		}
		return nil
	}

	tk, err := e.orch.CreateCluster(context.Background(), CreateClusterRequest{
		Name: "demo", WorkerCount: 2, DisableRollback: true,
	})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	assert.Equal(t, task.StatusError, snap.Status)
	require.NotNil(t, e.platform.VApp("demo"), "partial cluster must stay for inspection")
	assert.NotContains(t, e.platform.Calls, "DeleteVApp demo")
}

func TestRollbackEligibility(t *testing.T) {
	assert.False(t, rollbackEligible(errors.New("some platform hiccup")))
	assert.True(t, rollbackEligible(&NodeCreationError{Role: naming.RoleWorker}))
	assert.True(t, rollbackEligible(&ClusterInitError{Cluster: "demo"}))
	assert.True(t, rollbackEligible(&ClusterJoinError{Cluster: "demo"}))
	assert.True(t, rollbackEligible(fmt.Errorf("wrapped: %w", &ClusterInitError{Cluster: "demo"})))
}

func TestCreateClusterRollbackOnInitFailure(t *testing.T) {
	e := newEnv(t)
	e.platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, "kubeadm init") {
			return vapp.GuestResult{ExitCode: 1, Stderr: []byte("preflight checks failed")}, nil
		}
		return vapp.GuestResult{ExitCode: 0, Stdout: []byte("10.150.0.2\n")}, nil
	}

	tk, err := e.orch.CreateCluster(context.Background(), CreateClusterRequest{Name: "demo", WorkerCount: 1})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	assert.Equal(t, task.StatusError, snap.Status)
	assert.Contains(t, snap.Error, "failure while initializing cluster 'demo'")
	assert.Nil(t, e.platform.VApp("demo"))
}

func TestResizeClusterRejections(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 2, false)

	t.Run("equal count", func(t *testing.T) {
		_, err := e.orch.ResizeCluster(context.Background(), ResizeClusterRequest{Name: "demo", WorkerCount: 2})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, err.Error(), "already has 2 worker node(s)")
	})

	t.Run("scale down", func(t *testing.T) {
		_, err := e.orch.ResizeCluster(context.Background(), ResizeClusterRequest{Name: "demo", WorkerCount: 1})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, err.Error(), "scaling down is not supported")
	})

	t.Run("unknown cluster", func(t *testing.T) {
		_, err := e.orch.ResizeCluster(context.Background(), ResizeClusterRequest{Name: "ghost", WorkerCount: 4})
		var nf *cluster.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}

func TestResizeClusterAddsDelta(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 2, false)

	tk, err := e.orch.ResizeCluster(context.Background(), ResizeClusterRequest{Name: "demo", WorkerCount: 4})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	require.Equal(t, task.StatusSuccess, snap.Status, snap.Error)

	va := e.platform.VApp("demo")
	workers := 0
	for _, vm := range va.VMs {
		if naming.HasRole(vm.Name, naming.RoleWorker) {
			workers++
		}
	}
	assert.Equal(t, 4, workers)

	joins := 0
	for _, sc := range e.platform.ScriptCalls {
		if strings.Contains(sc.Script, "kubeadm join") {
			joins++
		}
	}
	assert.Equal(t, 2, joins, "only the new workers join")
}

func TestAddNodesValidation(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 1, false)

	_, err := e.orch.AddNodes(context.Background(), AddNodesRequest{Name: "demo", Count: 0, Role: naming.RoleWorker})
	assert.ErrorContains(t, err, "at least 1")

	_, err = e.orch.AddNodes(context.Background(), AddNodesRequest{Name: "demo", Count: 1, Role: naming.RoleMaster})
	assert.ErrorContains(t, err, "only worker and nfs nodes")
}

func TestAddNFSNode(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 1, false)

	tk, err := e.orch.AddNodes(context.Background(), AddNodesRequest{Name: "demo", Count: 1, Role: naming.RoleNFS})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	require.Equal(t, task.StatusSuccess, snap.Status, snap.Error)

	var nfsSetup, joins int
	for _, sc := range e.platform.ScriptCalls {
		if strings.Contains(sc.Script, "nfs-server") {
			nfsSetup++
		}
		if strings.Contains(sc.Script, "kubeadm join") {
			joins++
		}
	}
	assert.Equal(t, 1, nfsSetup)
	assert.Zero(t, joins, "NFS nodes do not join the control plane")
}

func TestAddNodesRollbackRemovesOnlyNewNodes(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 1, false)
	e.platform.OnPowerOn = func(vmName string) error {
		return errors.New("no capacity")
	}

	tk, err := e.orch.AddNodes(context.Background(), AddNodesRequest{Name: "demo", Count: 2, Role: naming.RoleWorker})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	assert.Equal(t, task.StatusError, snap.Status)

	va := e.platform.VApp("demo")
	require.NotNil(t, va, "the cluster itself survives an add-nodes failure")
	workers := 0
	for _, vm := range va.VMs {
		if naming.HasRole(vm.Name, naming.RoleWorker) {
			workers++
		}
	}
	assert.Equal(t, 1, workers, "the attempted nodes are rolled back")
}

func TestDeleteNodesValidation(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 2, false)

	_, err := e.orch.DeleteNodes(context.Background(), DeleteNodesRequest{Name: "demo"})
	assert.ErrorContains(t, err, "no nodes")

	_, err = e.orch.DeleteNodes(context.Background(), DeleteNodesRequest{Name: "demo", Nodes: []string{"worker-bbbb", "master-aaaa"}})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "cannot delete master node 'master-aaaa'")

	_, err = e.orch.DeleteNodes(context.Background(), DeleteNodesRequest{Name: "demo", Nodes: []string{"worker-zzzz"}})
	assert.ErrorContains(t, err, "not part of cluster")
}

func TestDeleteNodesDrainsEachNodeDespiteFailures(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 2, false)
	e.platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, "kubectl drain worker-bbbb") {
			return vapp.GuestResult{ExitCode: 1, Stderr: []byte("node busy")}, nil
		}
		return vapp.GuestResult{ExitCode: 0}, nil
	}

	tk, err := e.orch.DeleteNodes(context.Background(), DeleteNodesRequest{
		Name: "demo", Nodes: []string{"worker-bbbb", "worker-cccc"},
	})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	require.Equal(t, task.StatusSuccess, snap.Status, snap.Error)

	drains := 0
	for _, sc := range e.platform.ScriptCalls {
		if strings.Contains(sc.Script, "kubectl drain worker-cccc") {
			drains++
		}
	}
	assert.Equal(t, 1, drains, "every node gets a drain attempt even after an earlier one fails")

	for _, vm := range e.platform.VApp("demo").VMs {
		assert.NotContains(t, []string{"worker-bbbb", "worker-cccc"}, vm.Name)
	}
}

func TestDeleteNodesProceedsWhenDrainFails(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 2, false)
	e.platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, "kubectl drain") {
			return vapp.GuestResult{ExitCode: 1, Stderr: []byte("node busy")}, nil
		}
		return vapp.GuestResult{ExitCode: 0}, nil
	}

	tk, err := e.orch.DeleteNodes(context.Background(), DeleteNodesRequest{Name: "demo", Nodes: []string{"worker-bbbb"}})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	require.Equal(t, task.StatusSuccess, snap.Status, snap.Error)

	for _, vm := range e.platform.VApp("demo").VMs {
		assert.NotEqual(t, "worker-bbbb", vm.Name, "node must be removed despite drain failure")
	}
}

func TestDeleteCluster(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 2, false)

	tk, err := e.orch.DeleteCluster(context.Background(), DeleteClusterRequest{Name: "demo"})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	require.Equal(t, task.StatusSuccess, snap.Status, snap.Error)
	assert.Nil(t, e.platform.VApp("demo"))

	t.Run("unknown cluster", func(t *testing.T) {
		_, err := e.orch.DeleteCluster(context.Background(), DeleteClusterRequest{Name: "demo"})
		var nf *cluster.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}

func TestDeleteClusterAlreadyInProgress(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 1, false)
	e.platform.DeleteVAppReturnsNil = true

	tk, err := e.orch.DeleteCluster(context.Background(), DeleteClusterRequest{Name: "demo"})
	require.NoError(t, err)

	snap := waitTask(t, tk)
	assert.Equal(t, task.StatusSuccess, snap.Status, "a nil deletion operation is not an error")
}

func TestClusterInfoAndList(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 2, true)
	e.seedCluster("other", 1, false)

	clusters, err := e.orch.ListClusters(context.Background(), Scope{})
	require.NoError(t, err)
	assert.Len(t, clusters, 2)

	c, err := e.orch.ClusterInfo(context.Background(), Scope{}, "demo")
	require.NoError(t, err)
	assert.Equal(t, "id-demo", c.ID)
	assert.Len(t, c.Nodes, 4)
}

func TestClusterConfig(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 1, false)
	e.platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, ".kube/config") {
			return vapp.GuestResult{ExitCode: 0, Stdout: []byte("apiVersion: v1\nkind: Config\n")}, nil
		}
		return vapp.GuestResult{ExitCode: 0}, nil
	}

	cfg, err := e.orch.ClusterConfig(context.Background(), Scope{}, "demo")
	require.NoError(t, err)
	assert.Contains(t, cfg, "kind: Config")
}

func TestNodeInfo(t *testing.T) {
	e := newEnv(t)
	e.seedCluster("demo", 1, true)

	node, err := e.orch.NodeInfo(context.Background(), Scope{}, "demo", "nfs-ffff")
	require.NoError(t, err)
	assert.Equal(t, naming.RoleNFS, node.Role)
	assert.Equal(t, []string{"/export"}, node.Exports)

	worker, err := e.orch.NodeInfo(context.Background(), Scope{}, "demo", "worker-bbbb")
	require.NoError(t, err)
	assert.Empty(t, worker.Exports)

	_, err = e.orch.NodeInfo(context.Background(), Scope{}, "demo", "worker-zzzz")
	assert.ErrorContains(t, err, "not found")
}

func TestExternalOrchestrator(t *testing.T) {
	orch, err := ForProvider(ProviderExternal, nil)
	require.NoError(t, err)

	_, err = orch.CreateCluster(context.Background(), CreateClusterRequest{Name: "demo"})
	assert.ErrorIs(t, err, ErrExternallyManaged)
	_, err = orch.ListClusters(context.Background(), Scope{})
	assert.ErrorIs(t, err, ErrExternallyManaged)

	_, err = ForProvider(Provider("bogus"), nil)
	assert.Error(t, err)
}
