package vapp

// Operation is the handle of a long-running platform operation. Mutating
// calls return an Operation which must be awaited through WaitOperation
// before the result may be relied upon. A nil Operation from DeleteVApp
// means the deletion is already in progress through another mechanism.
type Operation struct {
	ID   string
	Type string
}

// VAppRecord is the query-level view of a vApp: identity, infrastructure
// status and the metadata fields the query asked for. The platform caps the
// number of metadata fields returned per query at MaxMetadataFieldsPerQuery;
// readers needing more issue multiple queries and merge.
type VAppRecord struct {
	ID       string
	Name     string
	Org      string
	VDC      string
	VDCID    string
	Status   string
	NumVMs   int
	Metadata map[string]string
}

// MaxMetadataFieldsPerQuery is the platform's limit on metadata fields
// returned by a single vApp query.
const MaxMetadataFieldsPerQuery = 8

// Filter narrows a vApp query. Zero-valued fields are not applied.
// MetadataKey with an empty MetadataValue matches any value for that key.
type Filter struct {
	Name          string
	Org           string
	VDC           string
	MetadataKey   string
	MetadataValue string
}

// VM is a member of a vApp.
type VM struct {
	ID       string
	Name     string
	Status   string
	CPUs     int
	MemoryMB int64
}

// SourceRef points at the template VM a clone is created from.
type SourceRef struct {
	VApp string
	VM   string
}

// VMSpec describes one VM to add to a vApp in a batch AddVMs call.
type VMSpec struct {
	Source           SourceRef
	Name             string
	Hostname         string
	Network          string
	IPAllocationMode string
	// GuestCustomization is an optional script run by the guest
	// customization machinery on first boot.
	GuestCustomization string
	StorageProfile     string
}

// IPAllocationModePool allocates guest IPs from the network's static pool.
const IPAllocationModePool = "pool"

// FenceModeBridged attaches the vApp network directly to the parent network.
const FenceModeBridged = "bridged"

// GuestResult is the outcome of one in-guest script execution.
type GuestResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}
