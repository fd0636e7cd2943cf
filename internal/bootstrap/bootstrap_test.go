package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/platform/vapp/fake"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestCluster(t *testing.T, nodes ...string) *fake.Client {
	t.Helper()
	platform := fake.NewClient()
	platform.Seed(&fake.VAppState{ID: "urn:vapp:demo", Name: "demo"})
	for _, n := range nodes {
		platform.SeedVM("demo", n, 2, 2048)
	}
	return platform
}

func fastRunner(platform *fake.Client) *Runner {
	return NewRunner(platform, testLogger(), WithReadinessProbe(3, time.Millisecond))
}

func TestRunChecksExitCode(t *testing.T) {
	platform := newTestCluster(t, "master-aaaa")
	platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, "uname") {
			return vapp.GuestResult{ExitCode: 0}, nil
		}
		return vapp.GuestResult{ExitCode: 2, Stderr: []byte("boom")}, nil
	}
	r := fastRunner(platform)

	_, err := r.Run(context.Background(), "demo", "master-aaaa", "cluster initialization", "#!/bin/bash\nfalse\n")
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.ExitCode)
	assert.Contains(t, se.Error(), "cluster initialization failed on node 'master-aaaa'")
	assert.Contains(t, se.Error(), "boom")
}

func TestRunWaitsForReadiness(t *testing.T) {
	platform := newTestCluster(t, "worker-bbbb")
	probes := 0
	platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, "uname") {
			probes++
			if probes < 3 {
				return vapp.GuestResult{ExitCode: 1}, nil
			}
			return vapp.GuestResult{ExitCode: 0}, nil
		}
		return vapp.GuestResult{ExitCode: 0, Stdout: []byte("done\n")}, nil
	}
	r := fastRunner(platform)

	res, err := r.Run(context.Background(), "demo", "worker-bbbb", "test", "#!/bin/bash\ntrue\n")
	require.NoError(t, err)
	assert.Equal(t, 3, probes)
	assert.Equal(t, "done\n", string(res.Stdout))
}

func TestRunReadinessBudgetExhausted(t *testing.T) {
	platform := newTestCluster(t, "worker-bbbb")
	platform.ScriptFunc = func(_, _, _ string) (vapp.GuestResult, error) {
		return vapp.GuestResult{ExitCode: 1}, nil
	}
	r := fastRunner(platform)

	_, err := r.Run(context.Background(), "demo", "worker-bbbb", "test", "#!/bin/bash\ntrue\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting for node 'worker-bbbb'")
}

func TestClusterToken(t *testing.T) {
	platform := newTestCluster(t, "master-aaaa")
	r := fastRunner(platform)

	token, ip, err := r.ClusterToken(context.Background(), "demo", "master-aaaa")
	require.NoError(t, err)
	assert.Equal(t, "zq2b8f.0123456789abcdef", token)
	assert.NotEmpty(t, ip)

	t.Run("malformed output", func(t *testing.T) {
		platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
			if strings.Contains(script, "uname") {
				return vapp.GuestResult{ExitCode: 0}, nil
			}
			return vapp.GuestResult{ExitCode: 0, Stdout: []byte("only-token\n")}, nil
		}
		_, _, err := r.ClusterToken(context.Background(), "demo", "master-aaaa")
		assert.ErrorContains(t, err, "unexpected output")
	})
}

func TestJoinWorkersTemplatesScript(t *testing.T) {
	platform := newTestCluster(t, "master-aaaa", "worker-bbbb", "worker-cccc")
	r := fastRunner(platform)

	join := "#!/bin/bash\nkubeadm join {ip}:6443 --token {token}\n"
	require.NoError(t, r.JoinWorkers(context.Background(), "demo", "master-aaaa", []string{"worker-bbbb", "worker-cccc"}, join))

	var joins []fake.ScriptCall
	for _, call := range platform.ScriptCalls {
		if strings.Contains(call.Script, "kubeadm join") {
			joins = append(joins, call)
		}
	}
	require.Len(t, joins, 2)
	assert.Equal(t, "worker-bbbb", joins[0].VM)
	assert.Equal(t, "worker-cccc", joins[1].VM)
	assert.Contains(t, joins[0].Script, "--token zq2b8f.0123456789abcdef")
	assert.NotContains(t, joins[0].Script, "{ip}")
}

func TestJoinWorkersNoWorkers(t *testing.T) {
	platform := newTestCluster(t, "master-aaaa")
	r := fastRunner(platform)
	require.NoError(t, r.JoinWorkers(context.Background(), "demo", "master-aaaa", nil, "join {token} {ip}"))
	assert.Empty(t, platform.ScriptCalls, "no token created when there is nothing to join")
}

func TestDrainRunsOnMaster(t *testing.T) {
	platform := newTestCluster(t, "master-aaaa", "worker-bbbb")
	r := fastRunner(platform)

	require.NoError(t, r.Drain(context.Background(), "demo", "master-aaaa", []string{"worker-bbbb"}))

	var drain *fake.ScriptCall
	for i, call := range platform.ScriptCalls {
		if strings.Contains(call.Script, "kubectl drain") {
			drain = &platform.ScriptCalls[i]
		}
	}
	require.NotNil(t, drain)
	assert.Equal(t, "master-aaaa", drain.VM, "kubectl runs on the master, not the drained node")
	assert.Contains(t, drain.Script, "kubectl drain worker-bbbb")
}

func TestRemoveFromCluster(t *testing.T) {
	platform := newTestCluster(t, "master-aaaa", "worker-bbbb", "worker-cccc")
	r := fastRunner(platform)

	require.NoError(t, r.RemoveFromCluster(context.Background(), "demo", "master-aaaa", []string{"worker-bbbb", "worker-cccc"}))

	last := platform.ScriptCalls[len(platform.ScriptCalls)-1]
	assert.Equal(t, "master-aaaa", last.VM)
	assert.Contains(t, last.Script, "kubectl delete node worker-bbbb worker-cccc")
}

func TestKubeconfig(t *testing.T) {
	platform := newTestCluster(t, "master-aaaa")
	platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, "uname") {
			return vapp.GuestResult{ExitCode: 0}, nil
		}
		if strings.Contains(script, ".kube/config") {
			return vapp.GuestResult{ExitCode: 0, Stdout: []byte("apiVersion: v1\nkind: Config\n")}, nil
		}
		return vapp.GuestResult{ExitCode: 0}, nil
	}
	r := fastRunner(platform)

	cfg, err := r.Kubeconfig(context.Background(), "demo", "master-aaaa")
	require.NoError(t, err)
	assert.Contains(t, cfg, "kind: Config")
}

func TestNFSExports(t *testing.T) {
	platform := newTestCluster(t, "nfs-dddd")
	platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, "uname") {
			return vapp.GuestResult{ExitCode: 0}, nil
		}
		return vapp.GuestResult{ExitCode: 0, Stdout: []byte("Export list for nfs-dddd:\n/home *\n/srv/share 10.150.0.0/24\n")}, nil
	}
	r := fastRunner(platform)

	exports, err := r.NFSExports(context.Background(), "demo", "nfs-dddd")
	require.NoError(t, err)
	assert.Equal(t, []string{"/home", "/srv/share"}, exports)
}

func TestMasterIP(t *testing.T) {
	platform := newTestCluster(t, "master-aaaa")
	r := fastRunner(platform)

	ip, err := r.MasterIP(context.Background(), "demo", "master-aaaa")
	require.NoError(t, err)
	assert.NotEmpty(t, ip)

	t.Run("empty output", func(t *testing.T) {
		platform.ScriptFunc = func(_, _, script string) (vapp.GuestResult, error) {
			return vapp.GuestResult{ExitCode: 0}, nil
		}
		_, err := r.MasterIP(context.Background(), "demo", "master-aaaa")
		assert.ErrorContains(t, err, "empty output")
	})
}

func TestRunOnNodesStopsAtFirstFailure(t *testing.T) {
	platform := newTestCluster(t, "worker-bbbb", "worker-cccc", "worker-dddd")
	platform.ScriptFunc = func(_, vm, script string) (vapp.GuestResult, error) {
		if strings.Contains(script, "uname") {
			return vapp.GuestResult{ExitCode: 0}, nil
		}
		if vm == "worker-cccc" {
			return vapp.GuestResult{ExitCode: 1}, nil
		}
		return vapp.GuestResult{ExitCode: 0}, nil
	}
	r := fastRunner(platform)

	err := r.RunOnNodes(context.Background(), "demo", []string{"worker-bbbb", "worker-cccc", "worker-dddd"}, "docker upgrade", "#!/bin/bash\napt-get install docker\n")
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "worker-cccc", se.Node)

	for _, call := range platform.ScriptCalls {
		assert.NotEqual(t, "worker-dddd", call.VM, fmt.Sprintf("no script should reach worker-dddd, got %q", call.Script))
	}
}
