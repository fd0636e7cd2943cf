// Package template holds the registry of cluster templates: the catalog
// items clusters are cloned from, the software versions baked into them, and
// the bootstrap script sets that drive them.
package template

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition describes one cluster template. A template is identified by the
// (Name, Revision) pair; the same name can ship multiple revisions.
type Definition struct {
	Name        string `yaml:"name"`
	Revision    int    `yaml:"revision"`
	CatalogItem string `yaml:"catalog_item"`
	// Compute defaults applied to every VM cloned from this template.
	CPU      int   `yaml:"cpu"`
	MemoryMB int64 `yaml:"memory_mb"`

	OS                string `yaml:"os"`
	DockerVersion     string `yaml:"docker_version"`
	Kubernetes        string `yaml:"kubernetes"`
	KubernetesVersion string `yaml:"kubernetes_version"`
	CNI               string `yaml:"cni"`
	CNIVersion        string `yaml:"cni_version"`

	// UpgradeFrom lists the template names that may upgrade to this one.
	UpgradeFrom []string `yaml:"upgrade_from,omitempty"`
}

// Key returns the template's registry key.
func (d Definition) Key() string {
	return fmt.Sprintf("%s:%d", d.Name, d.Revision)
}

// String renders the template as name (revision N).
func (d Definition) String() string {
	return fmt.Sprintf("%s (revision %d)", d.Name, d.Revision)
}

type manifest struct {
	Templates []Definition `yaml:"templates"`
}

// LoadManifest parses the template manifest YAML.
func LoadManifest(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing template manifest %s: %w", path, err)
	}
	if len(m.Templates) == 0 {
		return nil, fmt.Errorf("template manifest %s defines no templates", path)
	}
	return m.Templates, nil
}

// Registry resolves template lookups and upgrade candidates.
type Registry struct {
	defs            []Definition
	byKey           map[string]Definition
	defaultName     string
	defaultRevision int
}

// NewRegistry builds a registry over defs. The default template is used when
// a lookup specifies neither name nor revision.
func NewRegistry(defs []Definition, defaultName string, defaultRevision int) (*Registry, error) {
	r := &Registry{
		defs:            defs,
		byKey:           make(map[string]Definition, len(defs)),
		defaultName:     defaultName,
		defaultRevision: defaultRevision,
	}
	for _, d := range defs {
		if _, dup := r.byKey[d.Key()]; dup {
			return nil, fmt.Errorf("duplicate template %s", d)
		}
		r.byKey[d.Key()] = d
	}
	if _, ok := r.byKey[Definition{Name: defaultName, Revision: defaultRevision}.Key()]; !ok {
		return nil, fmt.Errorf("default template %s (revision %d) is not in the manifest", defaultName, defaultRevision)
	}
	return r, nil
}

// All returns every registered template.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Get resolves a template. Name and revision must be given together or not
// at all; when both are absent the configured default is returned.
func (r *Registry) Get(name string, revision int) (Definition, error) {
	if (name == "") != (revision == 0) {
		return Definition{}, fmt.Errorf("template name and revision must both be specified, or neither")
	}
	if name == "" {
		name, revision = r.defaultName, r.defaultRevision
	}
	d, ok := r.byKey[Definition{Name: name, Revision: revision}.Key()]
	if !ok {
		return Definition{}, fmt.Errorf("template %s (revision %d) not found", name, revision)
	}
	return d, nil
}

// UpgradeTargets returns the templates a cluster on the given template may
// move to: candidates declaring the current name in their upgrade_from set,
// excluding the current and older revisions of the same name. A revision of
// the same name that does not declare its own lineage upgradable is not a
// target. Software-version gates are applied by the caller.
func (r *Registry) UpgradeTargets(current Definition) []Definition {
	var out []Definition
	for _, d := range r.defs {
		if !contains(d.UpgradeFrom, current.Name) {
			continue
		}
		if d.Name == current.Name && d.Revision <= current.Revision {
			continue
		}
		out = append(out, d)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
