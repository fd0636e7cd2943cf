// Package cluster models Kubernetes clusters as they exist on the
// platform: one vApp per cluster, with all cluster state stored as vApp
// metadata and node state read live from the vApp's VMs. There is no
// separate database.
package cluster

import (
	"fmt"

	"github.com/okranz/kubevapp/internal/util/naming"
)

// TemplateRef identifies the template a cluster was created from.
type TemplateRef struct {
	Name     string
	Revision int
}

// Node is one VM of a cluster.
type Node struct {
	Name     string
	Role     naming.NodeRole
	Status   string
	IP       string
	CPUs     int
	MemoryMB int64
	// Exports lists NFS exports, populated only for NFS nodes on request.
	Exports []string
}

// Cluster is the metadata-backed view of one cluster vApp.
type Cluster struct {
	ID     string
	Name   string
	VAppID string
	Org    string
	VDC    string
	VDCID  string
	Status string
	NumVMs int

	InstallerVersion string
	MasterIP         string
	Template         TemplateRef
	OS               string
	DockerVersion    string

	Kubernetes        string
	KubernetesVersion string
	CNI               string
	CNIVersion        string

	// Nodes is populated by Repository.Get, not by List.
	Nodes []Node
}

// NotFoundError reports that no cluster with the given name exists in the
// searched scope.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cluster '%s' not found", e.Name)
}

// AmbiguousError reports that a cluster name matched more than one vApp, so
// the name alone cannot identify the cluster.
type AmbiguousError struct {
	Name  string
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("multiple clusters named '%s' found (%d); specify org and VDC to disambiguate", e.Name, e.Count)
}
