// Package fake provides an in-memory implementation of the platform client
// for tests. Every call is recorded so tests can assert on operation
// ordering, and most behaviors can be overridden through hook functions.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okranz/kubevapp/internal/platform/vapp"
)

// ScriptCall records one in-guest script execution.
type ScriptCall struct {
	VApp   string
	VM     string
	Script string
}

// VAppState is the in-memory representation of a vApp.
type VAppState struct {
	ID       string
	Name     string
	Org      string
	VDC      string
	VDCID    string
	Status   string
	Network  string
	Metadata map[string]string
	VMs      []*vapp.VM
	IPs      map[string]string
}

// Client is an in-memory vapp.Client.
type Client struct {
	mu     sync.Mutex
	vapps  []*VAppState
	nextID int
	nextIP int

	// Calls is the ordered log of every method invocation.
	Calls []string
	// ScriptCalls is the ordered log of guest script executions.
	ScriptCalls []ScriptCall

	// Hooks. A nil hook keeps the default behavior.
	OnAddVMs       func(vappName string, specs []vapp.VMSpec) error
	OnPowerOn      func(vmName string) error
	OnSetCPU       func(vmName string) error
	OnCreateVApp   func(name string) error
	OnPrimaryIP    func(vmName string) (string, error)
	ScriptFunc     func(vappName, vmName, script string) (vapp.GuestResult, error)
	OnWaitForTools func(vmName string) error

	// DeleteVAppReturnsNil makes DeleteVApp return a nil operation,
	// simulating "deletion already in progress elsewhere".
	DeleteVAppReturnsNil bool
	// DeleteVAppErr makes DeleteVApp fail.
	DeleteVAppErr error
}

// NewClient creates an empty fake platform.
func NewClient() *Client {
	return &Client{}
}

func (c *Client) record(format string, args ...any) {
	c.Calls = append(c.Calls, fmt.Sprintf(format, args...))
}

func (c *Client) op(typ string) *vapp.Operation {
	c.nextID++
	return &vapp.Operation{ID: fmt.Sprintf("op-%d", c.nextID), Type: typ}
}

// VApp returns the state of the first vApp with that name, or nil.
func (c *Client) VApp(name string) *VAppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byName(name)
}

func (c *Client) byName(name string) *VAppState {
	for _, va := range c.vapps {
		if va.Name == name {
			return va
		}
	}
	return nil
}

// Seed installs a vApp directly, for tests that start from an existing
// cluster.
func (c *Client) Seed(state *VAppState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state.Metadata == nil {
		state.Metadata = make(map[string]string)
	}
	if state.IPs == nil {
		state.IPs = make(map[string]string)
	}
	if state.Status == "" {
		state.Status = "POWERED_ON"
	}
	c.vapps = append(c.vapps, state)
}

// SeedVM appends a VM to an existing vApp with an allocated IP.
func (c *Client) SeedVM(vappName, vmName string, cpus int, memoryMB int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	va := c.byName(vappName)
	va.VMs = append(va.VMs, &vapp.VM{
		ID:       fmt.Sprintf("vm-%s", vmName),
		Name:     vmName,
		Status:   "POWERED_ON",
		CPUs:     cpus,
		MemoryMB: memoryMB,
	})
	c.nextIP++
	va.IPs[vmName] = fmt.Sprintf("10.150.0.%d", c.nextIP)
}

// CreateVApp implements vapp.VAppManager.
func (c *Client) CreateVApp(_ context.Context, name, _, network, _ string) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("CreateVApp %s", name)
	if c.OnCreateVApp != nil {
		if err := c.OnCreateVApp(name); err != nil {
			return nil, err
		}
	}
	if c.byName(name) != nil {
		return nil, fmt.Errorf("vApp '%s' already exists", name)
	}
	c.nextID++
	c.vapps = append(c.vapps, &VAppState{
		ID:       fmt.Sprintf("vapp-%d", c.nextID),
		Name:     name,
		Status:   "RESOLVED",
		Network:  network,
		Metadata: make(map[string]string),
		IPs:      make(map[string]string),
	})
	return c.op("createVApp"), nil
}

// DeleteVApp implements vapp.VAppManager.
func (c *Client) DeleteVApp(_ context.Context, _, name string) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("DeleteVApp %s", name)
	if c.DeleteVAppErr != nil {
		return nil, c.DeleteVAppErr
	}
	if c.DeleteVAppReturnsNil {
		return nil, nil
	}
	for i, va := range c.vapps {
		if va.Name == name {
			c.vapps = append(c.vapps[:i], c.vapps[i+1:]...)
			return c.op("deleteVApp"), nil
		}
	}
	return nil, &vapp.NotFoundError{Resource: "vApp", Name: name}
}

// QueryVApps implements vapp.VAppManager, honoring the platform's metadata
// field cap and returning only the requested fields.
func (c *Client) QueryVApps(_ context.Context, filter vapp.Filter, metadataFields []string) ([]vapp.VAppRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("QueryVApps fields=%d", len(metadataFields))
	if len(metadataFields) > vapp.MaxMetadataFieldsPerQuery {
		return nil, fmt.Errorf("too many metadata fields requested: %d", len(metadataFields))
	}

	var out []vapp.VAppRecord
	for _, va := range c.vapps {
		if filter.Name != "" && va.Name != filter.Name {
			continue
		}
		if filter.Org != "" && va.Org != filter.Org {
			continue
		}
		if filter.VDC != "" && va.VDC != filter.VDC {
			continue
		}
		if filter.MetadataKey != "" {
			v, ok := va.Metadata[filter.MetadataKey]
			if !ok {
				continue
			}
			if filter.MetadataValue != "" && v != filter.MetadataValue {
				continue
			}
		}
		md := make(map[string]string, len(metadataFields))
		for _, f := range metadataFields {
			if v, ok := va.Metadata[f]; ok {
				md[f] = v
			}
		}
		out = append(out, vapp.VAppRecord{
			ID:       va.ID,
			Name:     va.Name,
			Org:      va.Org,
			VDC:      va.VDC,
			VDCID:    va.VDCID,
			Status:   va.Status,
			NumVMs:   len(va.VMs),
			Metadata: md,
		})
	}
	return out, nil
}

// ResolveTemplateVM implements vapp.VMManager.
func (c *Client) ResolveTemplateVM(_ context.Context, catalog, item string) (vapp.SourceRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("ResolveTemplateVM %s/%s", catalog, item)
	return vapp.SourceRef{VApp: item, VM: item + "-vm"}, nil
}

// AddVMs implements vapp.VMManager.
func (c *Client) AddVMs(_ context.Context, vappName string, specs []vapp.VMSpec) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("AddVMs %s n=%d", vappName, len(specs))
	va := c.byName(vappName)
	if va == nil {
		return nil, &vapp.NotFoundError{Resource: "vApp", Name: vappName}
	}
	if c.OnAddVMs != nil {
		if err := c.OnAddVMs(vappName, specs); err != nil {
			return nil, err
		}
	}
	for _, spec := range specs {
		va.VMs = append(va.VMs, &vapp.VM{
			ID:     fmt.Sprintf("vm-%s", spec.Name),
			Name:   spec.Name,
			Status: "POWERED_OFF",
		})
		c.nextIP++
		va.IPs[spec.Name] = fmt.Sprintf("10.150.0.%d", c.nextIP)
	}
	return c.op("addVMs"), nil
}

// RemoveVMs implements vapp.VMManager.
func (c *Client) RemoveVMs(_ context.Context, vappName string, names []string) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("RemoveVMs %s %v", vappName, names)
	va := c.byName(vappName)
	if va == nil {
		return nil, &vapp.NotFoundError{Resource: "vApp", Name: vappName}
	}
	remove := make(map[string]bool, len(names))
	for _, n := range names {
		remove[n] = true
	}
	var kept []*vapp.VM
	for _, vm := range va.VMs {
		if !remove[vm.Name] {
			kept = append(kept, vm)
		} else {
			delete(va.IPs, vm.Name)
		}
	}
	va.VMs = kept
	return c.op("removeVMs"), nil
}

// ListVMs implements vapp.VMManager.
func (c *Client) ListVMs(_ context.Context, vappName string) ([]vapp.VM, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	va := c.byName(vappName)
	if va == nil {
		return nil, &vapp.NotFoundError{Resource: "vApp", Name: vappName}
	}
	out := make([]vapp.VM, 0, len(va.VMs))
	for _, vm := range va.VMs {
		out = append(out, *vm)
	}
	return out, nil
}

// GetVM implements vapp.VMManager.
func (c *Client) GetVM(_ context.Context, vappName, vmName string) (*vapp.VM, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vm := c.findVM(vappName, vmName)
	if vm == nil {
		return nil, &vapp.NotFoundError{Resource: "VM", Name: vmName}
	}
	cp := *vm
	return &cp, nil
}

func (c *Client) findVM(vappName, vmName string) *vapp.VM {
	va := c.byName(vappName)
	if va == nil {
		return nil
	}
	for _, vm := range va.VMs {
		if vm.Name == vmName {
			return vm
		}
	}
	return nil
}

// SetVMCPU implements vapp.VMManager.
func (c *Client) SetVMCPU(_ context.Context, vappName, vmName string, cpus int) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SetVMCPU %s %s %d", vappName, vmName, cpus)
	if c.OnSetCPU != nil {
		if err := c.OnSetCPU(vmName); err != nil {
			return nil, err
		}
	}
	vm := c.findVM(vappName, vmName)
	if vm == nil {
		return nil, &vapp.NotFoundError{Resource: "VM", Name: vmName}
	}
	vm.CPUs = cpus
	return c.op("setCPU"), nil
}

// SetVMMemory implements vapp.VMManager.
func (c *Client) SetVMMemory(_ context.Context, vappName, vmName string, memoryMB int64) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SetVMMemory %s %s %d", vappName, vmName, memoryMB)
	vm := c.findVM(vappName, vmName)
	if vm == nil {
		return nil, &vapp.NotFoundError{Resource: "VM", Name: vmName}
	}
	vm.MemoryMB = memoryMB
	return c.op("setMemory"), nil
}

// PowerOnVM implements vapp.VMManager.
func (c *Client) PowerOnVM(_ context.Context, vappName, vmName string) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("PowerOnVM %s %s", vappName, vmName)
	if c.OnPowerOn != nil {
		if err := c.OnPowerOn(vmName); err != nil {
			return nil, err
		}
	}
	vm := c.findVM(vappName, vmName)
	if vm == nil {
		return nil, &vapp.NotFoundError{Resource: "VM", Name: vmName}
	}
	vm.Status = "POWERED_ON"
	return c.op("powerOn"), nil
}

// UndeployVM implements vapp.VMManager.
func (c *Client) UndeployVM(_ context.Context, vappName, vmName string) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("UndeployVM %s %s", vappName, vmName)
	vm := c.findVM(vappName, vmName)
	if vm == nil {
		return nil, &vapp.NotFoundError{Resource: "VM", Name: vmName}
	}
	vm.Status = "POWERED_OFF"
	return c.op("undeploy"), nil
}

// PrimaryIP implements vapp.VMManager.
func (c *Client) PrimaryIP(_ context.Context, vappName, vmName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OnPrimaryIP != nil {
		return c.OnPrimaryIP(vmName)
	}
	va := c.byName(vappName)
	if va == nil {
		return "", &vapp.NotFoundError{Resource: "vApp", Name: vappName}
	}
	ip, ok := va.IPs[vmName]
	if !ok {
		return "", fmt.Errorf("no IP recorded for %s", vmName)
	}
	return ip, nil
}

// AdminPassword implements vapp.VMManager.
func (c *Client) AdminPassword(_ context.Context, _, _ string) (string, error) {
	return "guest-secret", nil
}

// SetMetadata implements vapp.MetadataManager.
func (c *Client) SetMetadata(_ context.Context, vappName string, entries map[string]string) (*vapp.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SetMetadata %s n=%d", vappName, len(entries))
	va := c.byName(vappName)
	if va == nil {
		return nil, &vapp.NotFoundError{Resource: "vApp", Name: vappName}
	}
	for k, v := range entries {
		va.Metadata[k] = v
	}
	return c.op("setMetadata"), nil
}

// WaitForGuestTools implements vapp.GuestManager.
func (c *Client) WaitForGuestTools(_ context.Context, _, vmName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("WaitForGuestTools %s", vmName)
	if c.OnWaitForTools != nil {
		return c.OnWaitForTools(vmName)
	}
	return nil
}

// ExecuteScript implements vapp.GuestManager. Without a ScriptFunc hook it
// answers the well-known bootstrap probes (readiness, token generation,
// route detection, showmount) and succeeds silently otherwise.
func (c *Client) ExecuteScript(_ context.Context, vappName, vmName, _, _, script string, _ bool, _ time.Duration) (vapp.GuestResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("ExecuteScript %s %s", vappName, vmName)
	c.ScriptCalls = append(c.ScriptCalls, ScriptCall{VApp: vappName, VM: vmName, Script: script})
	if c.ScriptFunc != nil {
		return c.ScriptFunc(vappName, vmName, script)
	}
	return c.defaultScriptResult(vappName, vmName, script), nil
}

func (c *Client) defaultScriptResult(vappName, vmName, script string) vapp.GuestResult {
	switch {
	case strings.Contains(script, "kubeadm token create"):
		ip := c.ipOf(vappName, vmName)
		return vapp.GuestResult{ExitCode: 0, Stdout: []byte("zq2b8f.0123456789abcdef\n" + ip + "\n")}
	case strings.Contains(script, "ip route get 1"):
		return vapp.GuestResult{ExitCode: 0, Stdout: []byte(c.ipOf(vappName, vmName) + "\n")}
	case strings.Contains(script, "showmount -e"):
		return vapp.GuestResult{ExitCode: 0, Stdout: []byte("Export list for host:\n/export *\n")}
	default:
		return vapp.GuestResult{ExitCode: 0, Stdout: []byte("ok\n")}
	}
}

func (c *Client) ipOf(vappName, vmName string) string {
	if va := c.byName(vappName); va != nil {
		if ip, ok := va.IPs[vmName]; ok {
			return ip
		}
	}
	return "10.150.0.1"
}

// WaitOperation implements vapp.OperationWaiter. Fake operations complete
// instantly.
func (c *Client) WaitOperation(_ context.Context, _ *vapp.Operation) error {
	return nil
}

var _ vapp.Client = (*Client)(nil)
