package cluster

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/okranz/kubevapp/internal/platform/vapp"
	"github.com/okranz/kubevapp/internal/util/naming"
)

// Repository reads clusters back from the platform. Cluster vApps are
// recognized by the presence of the cluster-id metadata tag.
type Repository struct {
	client vapp.Client
	log    *logrus.Entry
}

// NewRepository creates a repository over the platform client.
func NewRepository(client vapp.Client, log *logrus.Entry) *Repository {
	return &Repository{client: client, log: log}
}

// List returns all clusters visible through the filter, without node
// details. The metadata tag set is wider than the platform's per-query field
// cap, so the read is two queries merged by vApp ID.
func (r *Repository) List(ctx context.Context, filter vapp.Filter) ([]Cluster, error) {
	filter.MetadataKey = KeyClusterID

	primary, err := r.client.QueryVApps(ctx, filter, primaryFields)
	if err != nil {
		return nil, fmt.Errorf("querying clusters: %w", err)
	}
	secondary, err := r.client.QueryVApps(ctx, filter, secondaryFields)
	if err != nil {
		return nil, fmt.Errorf("querying cluster software versions: %w", err)
	}

	extra := make(map[string]map[string]string, len(secondary))
	for _, rec := range secondary {
		extra[rec.ID] = rec.Metadata
	}

	clusters := make([]Cluster, 0, len(primary))
	for _, rec := range primary {
		for k, v := range extra[rec.ID] {
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]string)
			}
			rec.Metadata[k] = v
		}
		clusters = append(clusters, fromRecord(rec))
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	return clusters, nil
}

// Get returns the cluster with the given name, including its nodes. Exactly
// one match is required: zero matches is NotFoundError, more than one is
// AmbiguousError.
func (r *Repository) Get(ctx context.Context, name string, filter vapp.Filter) (*Cluster, error) {
	filter.Name = name
	clusters, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	switch len(clusters) {
	case 0:
		return nil, &NotFoundError{Name: name}
	case 1:
	default:
		return nil, &AmbiguousError{Name: name, Count: len(clusters)}
	}

	c := clusters[0]
	nodes, err := r.nodes(ctx, c.Name)
	if err != nil {
		return nil, err
	}
	c.Nodes = nodes
	return &c, nil
}

// nodes enumerates the cluster's VMs live. IP resolution is best-effort per
// node.
func (r *Repository) nodes(ctx context.Context, vappName string) ([]Node, error) {
	vms, err := r.client.ListVMs(ctx, vappName)
	if err != nil {
		return nil, fmt.Errorf("listing VMs of cluster '%s': %w", vappName, err)
	}
	nodes := make([]Node, 0, len(vms))
	for _, vm := range vms {
		role, _ := naming.RoleOf(vm.Name)
		node := Node{
			Name:     vm.Name,
			Role:     role,
			Status:   vm.Status,
			CPUs:     vm.CPUs,
			MemoryMB: vm.MemoryMB,
		}
		ip, err := r.client.PrimaryIP(ctx, vappName, vm.Name)
		if err != nil {
			r.log.WithField("node", vm.Name).WithError(err).Warn("could not resolve node IP")
		} else {
			node.IP = ip
		}
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes, nil
}
