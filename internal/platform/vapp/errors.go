package vapp

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing platform resource.
type NotFoundError struct {
	Resource string // "vApp", "VM", "catalog item"
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.Name)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// OperationError reports a platform operation that reached a failed
// terminal status.
type OperationError struct {
	Op     *Operation
	Status string
	Detail string
}

func (e *OperationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("operation %s (%s) ended with status %s", e.Op.ID, e.Op.Type, e.Status)
	}
	return fmt.Sprintf("operation %s (%s) ended with status %s: %s", e.Op.ID, e.Op.Type, e.Status, e.Detail)
}
