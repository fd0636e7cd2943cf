package cluster

import (
	"regexp"
	"strconv"

	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/template"
)

// Metadata keys written to cluster vApps. The full set exceeds the
// platform's per-query field cap, so reads are split into two queries.
const (
	KeyClusterID        = "kubevapp.cluster.id"
	KeyVersion          = "kubevapp.version"
	KeyMasterIP         = "kubevapp.master.ip"
	KeyTemplateName     = "kubevapp.template.name"
	KeyTemplateRevision = "kubevapp.template.revision"
	KeyOS               = "kubevapp.os"
	KeyDockerVersion    = "kubevapp.docker.version"
	KeyKubernetes       = "kubevapp.kubernetes"
	KeyKubernetesVer    = "kubevapp.kubernetes.version"
	KeyCNI              = "kubevapp.cni"
	KeyCNIVersion       = "kubevapp.cni.version"

	// KeyLegacyTemplate is the pre-split template tag written by old
	// installers: the template name, optionally with a `_rev<N>` suffix.
	// Read-only; never written.
	KeyLegacyTemplate = "kubevapp.template"
)

var primaryFields = []string{
	KeyClusterID,
	KeyVersion,
	KeyMasterIP,
	KeyTemplateName,
	KeyTemplateRevision,
	KeyLegacyTemplate,
	KeyOS,
	KeyDockerVersion,
}

var secondaryFields = []string{
	KeyKubernetes,
	KeyKubernetesVer,
	KeyCNI,
	KeyCNIVersion,
}

// Metadata builds the full tag set written at cluster creation.
func Metadata(clusterID, installerVersion, masterIP string, def template.Definition) map[string]string {
	m := TemplateMetadata(def)
	m[KeyClusterID] = clusterID
	m[KeyVersion] = installerVersion
	m[KeyMasterIP] = masterIP
	return m
}

// TemplateMetadata builds the template-derived tag subset, rewritten on
// upgrade.
func TemplateMetadata(def template.Definition) map[string]string {
	return map[string]string{
		KeyTemplateName:     def.Name,
		KeyTemplateRevision: strconv.Itoa(def.Revision),
		KeyOS:               def.OS,
		KeyDockerVersion:    def.DockerVersion,
		KeyKubernetes:       def.Kubernetes,
		KeyKubernetesVer:    def.KubernetesVersion,
		KeyCNI:              def.CNI,
		KeyCNIVersion:       def.CNIVersion,
	}
}

var (
	legacyRevisionPattern = regexp.MustCompile(`^(.+)_rev(\d+)$`)
	k8sFromNamePattern    = regexp.MustCompile(`k8s-(\d+\.\d+(?:\.\d+)?)`)
)

// fromRecord reconstructs a cluster from a merged metadata record, applying
// the legacy fallbacks: a pre-split template tag supplies name and revision,
// and a missing Kubernetes version is recovered from the template name.
func fromRecord(rec vapp.VAppRecord) Cluster {
	md := rec.Metadata
	c := Cluster{
		ID:                md[KeyClusterID],
		Name:              rec.Name,
		VAppID:            rec.ID,
		Org:               rec.Org,
		VDC:               rec.VDC,
		VDCID:             rec.VDCID,
		Status:            rec.Status,
		NumVMs:            rec.NumVMs,
		InstallerVersion:  md[KeyVersion],
		MasterIP:          md[KeyMasterIP],
		OS:                md[KeyOS],
		DockerVersion:     md[KeyDockerVersion],
		Kubernetes:        md[KeyKubernetes],
		KubernetesVersion: md[KeyKubernetesVer],
		CNI:               md[KeyCNI],
		CNIVersion:        md[KeyCNIVersion],
	}

	c.Template.Name = md[KeyTemplateName]
	if rev, err := strconv.Atoi(md[KeyTemplateRevision]); err == nil {
		c.Template.Revision = rev
	}
	if c.Template.Name == "" {
		if legacy := md[KeyLegacyTemplate]; legacy != "" {
			c.Template.Name = legacy
			if m := legacyRevisionPattern.FindStringSubmatch(legacy); m != nil {
				c.Template.Name = m[1]
				c.Template.Revision, _ = strconv.Atoi(m[2])
			}
		}
	}

	if c.KubernetesVersion == "" && c.Template.Name != "" {
		if m := k8sFromNamePattern.FindStringSubmatch(c.Template.Name); m != nil {
			c.KubernetesVersion = m[1]
		}
	}
	return c
}
