// Package task implements the progress record for one asynchronous
// orchestration invocation. A task is created when an operation is
// dispatched, written only by the detached execution that owns it, and read
// by any number of concurrent pollers through immutable snapshots.
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Snapshot is a read-only view of a task at one point in time.
type Snapshot struct {
	ID        string
	Operation string
	Status    Status
	Message   string
	Error     string
	Created   time.Time
	Updated   time.Time
}

// Task is the single mutable progress record bound to one orchestration
// invocation. There is no cancellation: once dispatched, the owning
// execution drives the task to SUCCESS or ERROR.
type Task struct {
	id        string
	operation string
	created   time.Time

	mu      sync.RWMutex
	status  Status
	message string
	errMsg  string
	updated time.Time
}

// New creates a task in the RUNNING state with an initial message.
func New(operation, message string) *Task {
	now := time.Now()
	return &Task{
		id:        uuid.NewString(),
		operation: operation,
		created:   now,
		status:    StatusRunning,
		message:   message,
		updated:   now,
	}
}

// ID returns the task's handle identifier.
func (t *Task) ID() string { return t.id }

// Running updates the progress message while keeping the task RUNNING.
// Calls after a terminal transition are ignored.
func (t *Task) Running(message string) {
	t.transition(StatusRunning, message, "")
}

// Succeed moves the task to its SUCCESS terminal state.
func (t *Task) Succeed(message string) {
	t.transition(StatusSuccess, message, "")
}

// Fail moves the task to its ERROR terminal state with an error detail.
func (t *Task) Fail(errMsg string) {
	t.transition(StatusError, errMsg, errMsg)
}

func (t *Task) transition(status Status, message, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = status
	t.message = message
	t.errMsg = errMsg
	t.updated = time.Now()
}

// Snapshot returns the current state of the task.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		ID:        t.id,
		Operation: t.operation,
		Status:    t.status,
		Message:   t.message,
		Error:     t.errMsg,
		Created:   t.created,
		Updated:   t.updated,
	}
}

// Done reports whether the task reached a terminal state.
func (t *Task) Done() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.Terminal()
}
