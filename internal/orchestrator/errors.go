package orchestrator

import (
	"errors"
	"fmt"

	"github.com/okranz/kubevapp/internal/util/naming"
)

// ValidationError reports a request rejected before any infrastructure
// mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AlreadyExistsError reports a cluster name collision at creation time.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("cluster '%s' already exists", e.Name)
}

// NodeCreationError reports a provisioning failure. Nodes carries every
// node name targeted by the failed provisioning run, created or not; the
// rollback path deletes exactly these.
type NodeCreationError struct {
	Role  naming.NodeRole
	Nodes []string
	Err   error
}

func (e *NodeCreationError) Error() string {
	return fmt.Sprintf("failure while creating %s node(s) %v: %v", e.Role, e.Nodes, e.Err)
}

func (e *NodeCreationError) Unwrap() error { return e.Err }

// ClusterInitError reports a failed control-plane initialization.
type ClusterInitError struct {
	Cluster string
	Err     error
}

func (e *ClusterInitError) Error() string {
	return fmt.Sprintf("failure while initializing cluster '%s': %v", e.Cluster, e.Err)
}

func (e *ClusterInitError) Unwrap() error { return e.Err }

// ClusterJoinError reports workers that failed to join the control plane.
type ClusterJoinError struct {
	Cluster string
	Err     error
}

func (e *ClusterJoinError) Error() string {
	return fmt.Sprintf("failure while adding nodes to cluster '%s': %v", e.Cluster, e.Err)
}

func (e *ClusterJoinError) Unwrap() error { return e.Err }

// ErrExternallyManaged is returned by the external-provider variant for
// every operation.
var ErrExternallyManaged = errors.New("cluster is managed by an external container service; native operations are not available")

// rollbackEligible reports whether a creation failure may trigger rollback.
// Only the recognized provisioning and bootstrap failure kinds do; anything
// unexpected leaves the infrastructure untouched.
func rollbackEligible(err error) bool {
	var nce *NodeCreationError
	var cie *ClusterInitError
	var cje *ClusterJoinError
	return errors.As(err, &nce) || errors.As(err, &cie) || errors.As(err, &cje)
}
