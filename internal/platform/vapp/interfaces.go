package vapp

import (
	"context"
	"time"
)

// VAppManager manages vApps (VM groups) as units.
type VAppManager interface {
	// CreateVApp creates a network-attached vApp.
	CreateVApp(ctx context.Context, name, description, network, fenceMode string) (*Operation, error)
	// DeleteVApp deletes the whole vApp. A nil Operation with a nil error
	// means deletion is already in progress through another mechanism.
	DeleteVApp(ctx context.Context, vdc, name string) (*Operation, error)
	// QueryVApps returns records matching the filter, carrying at most
	// MaxMetadataFieldsPerQuery of the requested metadata fields each.
	QueryVApps(ctx context.Context, filter Filter, metadataFields []string) ([]VAppRecord, error)
}

// VMManager manages the VMs inside a vApp.
type VMManager interface {
	// ResolveTemplateVM resolves a catalog item to its source VM reference.
	ResolveTemplateVM(ctx context.Context, catalog, item string) (SourceRef, error)
	// AddVMs clones all given specs into the vApp as one batch operation.
	AddVMs(ctx context.Context, vappName string, specs []VMSpec) (*Operation, error)
	// RemoveVMs removes the named VMs from the vApp as one batch operation.
	RemoveVMs(ctx context.Context, vappName string, names []string) (*Operation, error)
	ListVMs(ctx context.Context, vappName string) ([]VM, error)
	GetVM(ctx context.Context, vappName, vmName string) (*VM, error)
	SetVMCPU(ctx context.Context, vappName, vmName string, cpus int) (*Operation, error)
	SetVMMemory(ctx context.Context, vappName, vmName string, memoryMB int64) (*Operation, error)
	PowerOnVM(ctx context.Context, vappName, vmName string) (*Operation, error)
	// UndeployVM powers the VM off and releases its resources.
	UndeployVM(ctx context.Context, vappName, vmName string) (*Operation, error)
	// PrimaryIP resolves the VM's primary guest IP. Best-effort: callers
	// tolerate an error per node.
	PrimaryIP(ctx context.Context, vappName, vmName string) (string, error)
	// AdminPassword returns the guest administrator password set at clone
	// time, used for in-guest script execution.
	AdminPassword(ctx context.Context, vappName, vmName string) (string, error)
}

// MetadataManager reads and writes vApp metadata tags.
type MetadataManager interface {
	// SetMetadata writes all entries in one batch operation.
	SetMetadata(ctx context.Context, vappName string, entries map[string]string) (*Operation, error)
}

// GuestManager runs scripts inside VM guests via the platform's agent.
type GuestManager interface {
	// WaitForGuestTools polls until the guest agent is responsive, with a
	// bounded retry budget.
	WaitForGuestTools(ctx context.Context, vappName, vmName string) error
	// ExecuteScript uploads and runs a script in the guest, returning exit
	// code and captured output when wait is true.
	ExecuteScript(ctx context.Context, vappName, vmName, user, password, script string, wait bool, maxWait time.Duration) (GuestResult, error)
}

// OperationWaiter blocks until a platform operation reaches a terminal
// status, returning an error for failed operations.
type OperationWaiter interface {
	WaitOperation(ctx context.Context, op *Operation) error
}

// Client is the full infrastructure surface the orchestrator consumes.
type Client interface {
	VAppManager
	VMManager
	MetadataManager
	GuestManager
	OperationWaiter
}
