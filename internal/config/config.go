// Package config loads the server configuration and the environment-tunable
// timeout set.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Platform holds the connection settings for the virtualization platform
// API.
type Platform struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// Broker holds the cluster-provisioning defaults: where clusters are
// created and which template they are built from when the request does not
// say.
type Broker struct {
	Org              string `mapstructure:"org"`
	VDC              string `mapstructure:"vdc"`
	Network          string `mapstructure:"network"`
	Catalog          string `mapstructure:"catalog"`
	IPAllocationMode string `mapstructure:"ip_allocation_mode"`
	StorageProfile   string `mapstructure:"storage_profile"`

	DefaultTemplateName     string `mapstructure:"default_template_name"`
	DefaultTemplateRevision int    `mapstructure:"default_template_revision"`

	// TemplateManifest is the YAML file listing the known templates;
	// ScriptsDir holds one script directory per template revision.
	TemplateManifest string `mapstructure:"template_manifest"`
	ScriptsDir       string `mapstructure:"scripts_dir"`
}

// Config is the full server configuration.
type Config struct {
	Platform Platform `mapstructure:"platform"`
	Broker   Broker   `mapstructure:"broker"`
}

// Load reads the configuration file and applies KUBEVAPP_* environment
// overrides (dots and dashes become underscores: KUBEVAPP_PLATFORM_TOKEN
// overrides platform.token).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KUBEVAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("broker.ip_allocation_mode", "pool")
	v.SetDefault("broker.default_template_revision", 1)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"platform.url", c.Platform.URL},
		{"platform.token", c.Platform.Token},
		{"broker.org", c.Broker.Org},
		{"broker.vdc", c.Broker.VDC},
		{"broker.network", c.Broker.Network},
		{"broker.catalog", c.Broker.Catalog},
		{"broker.default_template_name", c.Broker.DefaultTemplateName},
		{"broker.template_manifest", c.Broker.TemplateManifest},
		{"broker.scripts_dir", c.Broker.ScriptsDir},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
