// Package bootstrap drives Kubernetes bootstrap and day-2 actions inside
// cluster VMs. Everything goes through the platform's in-guest agent; there
// is no SSH path. Cluster-scoped kubectl actions (drain, uncordon, node
// deletion) always run on the cluster's first master.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/template"
	"github.com/okranz/kubevapp/internal/util/retry"
)

// ScriptError reports an in-guest script that exited non-zero.
type ScriptError struct {
	Node     string
	Action   string
	ExitCode int
	Stderr   string
}

func (e *ScriptError) Error() string {
	msg := fmt.Sprintf("%s failed on node '%s': exit code %d", e.Action, e.Node, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Runner executes scripts in cluster VMs sequentially, one node at a time.
type Runner struct {
	client vapp.Client
	log    *logrus.Entry

	guestUser         string
	scriptMaxWait     time.Duration
	readinessAttempts int
	readinessInterval time.Duration
}

// Option adjusts a Runner.
type Option func(*Runner)

// WithScriptMaxWait bounds how long a single script execution may take.
func WithScriptMaxWait(d time.Duration) Option {
	return func(r *Runner) { r.scriptMaxWait = d }
}

// WithReadinessProbe tunes the guest readiness poll.
func WithReadinessProbe(attempts int, interval time.Duration) Option {
	return func(r *Runner) {
		r.readinessAttempts = attempts
		r.readinessInterval = interval
	}
}

// WithGuestUser overrides the guest account scripts run as.
func WithGuestUser(user string) Option {
	return func(r *Runner) { r.guestUser = user }
}

// NewRunner creates a Runner with the default guest user and poll budget.
func NewRunner(client vapp.Client, log *logrus.Entry, opts ...Option) *Runner {
	r := &Runner{
		client:            client,
		log:               log,
		guestUser:         "root",
		scriptMaxWait:     10 * time.Minute,
		readinessAttempts: 30,
		readinessInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// waitReady blocks until the node's guest agent answers a trivial command.
func (r *Runner) waitReady(ctx context.Context, vappName, node string) error {
	if err := r.client.WaitForGuestTools(ctx, vappName, node); err != nil {
		return fmt.Errorf("guest tools on node '%s': %w", node, err)
	}
	err := retry.Do(ctx, func() error {
		res, err := r.exec(ctx, vappName, node, readinessScript)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("node '%s' not ready: exit code %d", node, res.ExitCode)
		}
		return nil
	}, retry.Attempts(r.readinessAttempts), retry.Delay(r.readinessInterval), retry.FixedInterval())
	if err != nil {
		return fmt.Errorf("waiting for node '%s': %w", node, err)
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, vappName, node, script string) (vapp.GuestResult, error) {
	password, err := r.client.AdminPassword(ctx, vappName, node)
	if err != nil {
		return vapp.GuestResult{}, fmt.Errorf("admin password for node '%s': %w", node, err)
	}
	return r.client.ExecuteScript(ctx, vappName, node, r.guestUser, password, script, true, r.scriptMaxWait)
}

// Run executes a script on one node after the readiness poll and fails on a
// non-zero exit.
func (r *Runner) Run(ctx context.Context, vappName, node, action, script string) (vapp.GuestResult, error) {
	if err := r.waitReady(ctx, vappName, node); err != nil {
		return vapp.GuestResult{}, err
	}
	r.log.WithFields(logrus.Fields{"cluster": vappName, "node": node}).Debugf("running %s", action)
	res, err := r.exec(ctx, vappName, node, script)
	if err != nil {
		return vapp.GuestResult{}, fmt.Errorf("%s on node '%s': %w", action, node, err)
	}
	if res.ExitCode != 0 {
		return res, &ScriptError{Node: node, Action: action, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	return res, nil
}

// RunOnNodes executes the same script on each node in order, stopping at the
// first failure.
func (r *Runner) RunOnNodes(ctx context.Context, vappName string, nodes []string, action, script string) error {
	for _, node := range nodes {
		if _, err := r.Run(ctx, vappName, node, action, script); err != nil {
			return err
		}
	}
	return nil
}

// InitCluster runs the control-plane init script on the master.
func (r *Runner) InitCluster(ctx context.Context, vappName, master, initScript string) error {
	_, err := r.Run(ctx, vappName, master, "cluster initialization", initScript)
	return err
}

// ClusterToken creates a fresh join token on the master and returns it with
// the master's advertised IP.
func (r *Runner) ClusterToken(ctx context.Context, vappName, master string) (token, ip string, err error) {
	res, err := r.Run(ctx, vappName, master, "join token creation", tokenScript)
	if err != nil {
		return "", "", err
	}
	fields := strings.Fields(string(res.Stdout))
	if len(fields) < 2 {
		return "", "", fmt.Errorf("join token creation on node '%s': unexpected output %q", master, string(res.Stdout))
	}
	return fields[0], fields[1], nil
}

// JoinWorkers creates a token on the master and joins each worker with the
// templated join script, one at a time.
func (r *Runner) JoinWorkers(ctx context.Context, vappName, master string, workers []string, joinScript string) error {
	if len(workers) == 0 {
		return nil
	}
	token, ip, err := r.ClusterToken(ctx, vappName, master)
	if err != nil {
		return err
	}
	script := template.RenderJoin(joinScript, token, ip)
	return r.RunOnNodes(ctx, vappName, workers, "cluster join", script)
}

// MasterIP detects the master's primary routed IP from inside the guest.
func (r *Runner) MasterIP(ctx context.Context, vappName, master string) (string, error) {
	res, err := r.Run(ctx, vappName, master, "master IP detection", masterIPScript)
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(res.Stdout))
	if ip == "" {
		return "", fmt.Errorf("master IP detection on node '%s': empty output", master)
	}
	return ip, nil
}

// Drain cordons and drains each named node, running kubectl on the master.
func (r *Runner) Drain(ctx context.Context, vappName, master string, nodes []string) error {
	for _, node := range nodes {
		script := fmt.Sprintf(drainScriptFmt, node)
		if _, err := r.Run(ctx, vappName, master, fmt.Sprintf("draining node '%s'", node), script); err != nil {
			return err
		}
	}
	return nil
}

// Uncordon marks each named node schedulable again, via the master.
func (r *Runner) Uncordon(ctx context.Context, vappName, master string, nodes []string) error {
	for _, node := range nodes {
		script := fmt.Sprintf(uncordonScriptFmt, node)
		if _, err := r.Run(ctx, vappName, master, fmt.Sprintf("uncordoning node '%s'", node), script); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFromCluster deletes the named nodes from the Kubernetes cluster, via
// the master.
func (r *Runner) RemoveFromCluster(ctx context.Context, vappName, master string, nodes []string) error {
	script := fmt.Sprintf(deleteNodeScriptFmt, strings.Join(nodes, " "))
	_, err := r.Run(ctx, vappName, master, "kubernetes node deletion", script)
	return err
}

// Kubeconfig reads the admin kubeconfig from the master guest.
func (r *Runner) Kubeconfig(ctx context.Context, vappName, master string) (string, error) {
	res, err := r.Run(ctx, vappName, master, "kubeconfig retrieval", kubeconfigScript)
	if err != nil {
		return "", err
	}
	return string(res.Stdout), nil
}

// NFSExports lists the exports advertised by an NFS node. Parsing is
// line-oriented and best-effort: unparseable output yields an empty list.
func (r *Runner) NFSExports(ctx context.Context, vappName, node string) ([]string, error) {
	res, err := r.Run(ctx, vappName, node, "export listing", showmountScript)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(string(res.Stdout)), "\n")
	var exports []string
	// First line is the "Export list for <host>:" banner.
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			exports = append(exports, fields[0])
		}
	}
	return exports, nil
}
