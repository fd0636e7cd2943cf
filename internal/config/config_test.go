package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
platform:
  url: https://vcloud.example.com
  token: secret
broker:
  org: org1
  vdc: vdc1
  network: mgmt-net
  catalog: cse-catalog
  default_template_name: ubuntu-16.04_k8s-1.18_weave-2.6.5
  default_template_revision: 2
  template_manifest: /etc/kubevapp/templates.yaml
  scripts_dir: /etc/kubevapp/scripts
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://vcloud.example.com", cfg.Platform.URL)
	assert.Equal(t, "cse-catalog", cfg.Broker.Catalog)
	assert.Equal(t, 2, cfg.Broker.DefaultTemplateRevision)
	assert.Equal(t, "pool", cfg.Broker.IPAllocationMode, "default applied")
}

func TestLoadMissingFields(t *testing.T) {
	_, err := Load(writeConfig(t, `
platform:
  url: https://vcloud.example.com
broker:
  org: org1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform.token")
	assert.Contains(t, err.Error(), "broker.network")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KUBEVAPP_PLATFORM_TOKEN", "from-env")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Platform.Token)
}

func TestLoadTimeoutsDefaults(t *testing.T) {
	tm := LoadTimeouts()
	assert.Equal(t, 10*time.Minute, tm.ScriptMaxWait)
	assert.Equal(t, 30, tm.ReadinessAttempts)
	assert.Equal(t, 2*time.Second, tm.ReadinessInterval)
}

func TestLoadTimeoutsFromEnv(t *testing.T) {
	t.Setenv("KUBEVAPP_TIMEOUT_SCRIPT", "3m")
	t.Setenv("KUBEVAPP_READINESS_ATTEMPTS", "7")
	t.Setenv("KUBEVAPP_OPERATION_POLL", "not-a-duration")

	tm := LoadTimeouts()
	assert.Equal(t, 3*time.Minute, tm.ScriptMaxWait)
	assert.Equal(t, 7, tm.ReadinessAttempts)
	assert.Equal(t, 5*time.Second, tm.OperationPoll, "invalid value falls back to default")
}
