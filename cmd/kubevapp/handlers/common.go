// Package handlers implements the command execution logic behind the CLI.
//
// Handlers wire the platform client, repository, registry and bootstrap
// runner into an orchestrator, invoke one operation, and render progress.
// Construction goes through factory function variables so tests can swap
// in fakes.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/okranz/kubevapp/internal/bootstrap"
	"github.com/okranz/kubevapp/internal/cluster"
	"github.com/okranz/kubevapp/internal/config"
	"github.com/okranz/kubevapp/internal/orchestrator"
	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/task"
	"github.com/okranz/kubevapp/internal/template"
)

// installerVersion is stamped into cluster metadata at creation. Set from
// main's build info.
var installerVersion = "dev"

// SetVersion records the build version used as the installer tag.
func SetVersion(v string) {
	if v != "" {
		installerVersion = v
	}
}

// Factory function variables - can be replaced in tests.
var (
	// newOrchestrator builds the full native orchestrator stack from the
	// server configuration file.
	newOrchestrator = buildOrchestrator

	// taskPollInterval is how often awaitTask re-reads task progress.
	taskPollInterval = 2 * time.Second

	// out receives all user-facing command output.
	out io.Writer = os.Stdout
)

func buildOrchestrator(_ context.Context, configPath string) (orchestrator.Orchestrator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	timeouts := config.LoadTimeouts()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logger.WithField("component", "kubevapp")

	client := vapp.NewRestClient(cfg.Platform.URL, cfg.Platform.Token,
		vapp.WithPollInterval(timeouts.OperationPoll))

	defs, err := template.LoadManifest(cfg.Broker.TemplateManifest)
	if err != nil {
		return nil, err
	}
	registry, err := template.NewRegistry(defs, cfg.Broker.DefaultTemplateName, cfg.Broker.DefaultTemplateRevision)
	if err != nil {
		return nil, err
	}

	repo := cluster.NewRepository(client, log)
	runner := bootstrap.NewRunner(client, log,
		bootstrap.WithScriptMaxWait(timeouts.ScriptMaxWait),
		bootstrap.WithReadinessProbe(timeouts.ReadinessAttempts, timeouts.ReadinessInterval))

	return orchestrator.NewNative(client, repo, registry, runner, cfg.Broker, installerVersion, log), nil
}

// awaitTask polls a dispatched task to its terminal state, printing each
// progress message once.
func awaitTask(t *task.Task) error {
	last := ""
	for {
		snap := t.Snapshot()
		if snap.Message != last && snap.Message != "" {
			fmt.Fprintln(out, snap.Message)
			last = snap.Message
		}
		switch snap.Status {
		case task.StatusSuccess:
			color.New(color.FgGreen).Fprintln(out, "Task completed successfully.")
			return nil
		case task.StatusError:
			return fmt.Errorf("task failed: %s", snap.Error)
		}
		time.Sleep(taskPollInterval)
	}
}

// readSSHKey loads an SSH public key file when a path was given.
func readSSHKey(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading SSH public key: %w", err)
	}
	return string(data), nil
}
