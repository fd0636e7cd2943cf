package cluster

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/platform/vapp/fake"
	"github.com/okranz/kubevapp/internal/template"
	"github.com/okranz/kubevapp/internal/util/naming"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func seedCluster(c *fake.Client, name, org, vdc string, md map[string]string) {
	c.Seed(&fake.VAppState{
		ID:       "urn:vapp:" + name,
		Name:     name,
		Org:      org,
		VDC:      vdc,
		Metadata: md,
	})
}

func TestRepositoryList(t *testing.T) {
	platform := fake.NewClient()
	def := template.Definition{
		Name: "ubuntu-16.04_k8s-1.18_weave-2.6.5", Revision: 2,
		OS: "ubuntu-16.04", DockerVersion: "19.03.12",
		Kubernetes: "upstream", KubernetesVersion: "1.18.6",
		CNI: "weave", CNIVersion: "2.6.5",
	}
	seedCluster(platform, "alpha", "org1", "vdc1", Metadata("id-alpha", "2.6.0", "10.150.0.2", def))
	seedCluster(platform, "beta", "org1", "vdc2", Metadata("id-beta", "2.6.0", "10.150.0.9", def))
	// A vApp without the cluster-id tag is not a cluster.
	seedCluster(platform, "plain-vapp", "org1", "vdc1", map[string]string{"owner": "someone"})

	repo := NewRepository(platform, testLogger())

	clusters, err := repo.List(context.Background(), vapp.Filter{Org: "org1"})
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "alpha", clusters[0].Name)
	assert.Equal(t, "beta", clusters[1].Name)

	alpha := clusters[0]
	assert.Equal(t, "id-alpha", alpha.ID)
	assert.Equal(t, "10.150.0.2", alpha.MasterIP)
	assert.Equal(t, TemplateRef{Name: def.Name, Revision: 2}, alpha.Template)
	assert.Equal(t, "1.18.6", alpha.KubernetesVersion)
	assert.Equal(t, "2.6.5", alpha.CNIVersion)
	assert.Empty(t, alpha.Nodes, "List does not enumerate nodes")

	t.Run("vdc filter", func(t *testing.T) {
		clusters, err := repo.List(context.Background(), vapp.Filter{VDC: "vdc2"})
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		assert.Equal(t, "beta", clusters[0].Name)
	})
}

func TestRepositoryListLegacyMetadata(t *testing.T) {
	platform := fake.NewClient()
	// Old installers wrote a single combined template tag and no explicit
	// Kubernetes version.
	seedCluster(platform, "legacy", "org1", "vdc1", map[string]string{
		KeyClusterID:      "id-legacy",
		KeyVersion:        "1.2.5",
		KeyLegacyTemplate: "photon-2.0_k8s-1.14_weave-2.5.2_rev3",
	})
	repo := NewRepository(platform, testLogger())

	clusters, err := repo.List(context.Background(), vapp.Filter{})
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, TemplateRef{Name: "photon-2.0_k8s-1.14_weave-2.5.2", Revision: 3}, c.Template)
	assert.Equal(t, "1.14", c.KubernetesVersion)

	t.Run("legacy tag without revision suffix", func(t *testing.T) {
		seedCluster(platform, "older", "org1", "vdc1", map[string]string{
			KeyClusterID:      "id-older",
			KeyLegacyTemplate: "ubuntu-16.04_k8s-1.15.5_weave-2.5.2",
		})
		c, err := repo.Get(context.Background(), "older", vapp.Filter{})
		require.NoError(t, err)
		assert.Equal(t, TemplateRef{Name: "ubuntu-16.04_k8s-1.15.5_weave-2.5.2", Revision: 0}, c.Template)
		assert.Equal(t, "1.15.5", c.KubernetesVersion)
	})
}

func TestRepositoryGet(t *testing.T) {
	platform := fake.NewClient()
	def := template.Definition{Name: "ubuntu-16.04_k8s-1.18_weave-2.6.5", Revision: 1, KubernetesVersion: "1.18.6"}
	seedCluster(platform, "alpha", "org1", "vdc1", Metadata("id-alpha", "2.6.0", "", def))
	platform.SeedVM("alpha", "master-a1b2", 2, 2048)
	platform.SeedVM("alpha", "worker-c3d4", 4, 4096)
	platform.SeedVM("alpha", "nfs-e5f6", 2, 2048)

	repo := NewRepository(platform, testLogger())

	c, err := repo.Get(context.Background(), "alpha", vapp.Filter{})
	require.NoError(t, err)
	require.Len(t, c.Nodes, 3)

	assert.Equal(t, "master-a1b2", c.Nodes[0].Name)
	assert.Equal(t, naming.RoleMaster, c.Nodes[0].Role)
	assert.NotEmpty(t, c.Nodes[0].IP)
	assert.Equal(t, naming.RoleNFS, c.Nodes[1].Role)
	assert.Equal(t, naming.RoleWorker, c.Nodes[2].Role)
	assert.Equal(t, 4, c.Nodes[2].CPUs)

	t.Run("not found", func(t *testing.T) {
		_, err := repo.Get(context.Background(), "missing", vapp.Filter{})
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "missing", nf.Name)
	})

	t.Run("ambiguous name", func(t *testing.T) {
		platform.Seed(&fake.VAppState{
			ID:       "urn:vapp:alpha-2",
			Name:     "alpha",
			Org:      "org2",
			VDC:      "vdc9",
			Metadata: Metadata("id-alpha-2", "2.6.0", "", def),
		})
		_, err := repo.Get(context.Background(), "alpha", vapp.Filter{})
		var amb *AmbiguousError
		require.ErrorAs(t, err, &amb)
		assert.Equal(t, 2, amb.Count)

		// Narrowing to one VDC resolves the ambiguity.
		c, err := repo.Get(context.Background(), "alpha", vapp.Filter{VDC: "vdc1"})
		require.NoError(t, err)
		assert.Equal(t, "id-alpha", c.ID)
	})
}
