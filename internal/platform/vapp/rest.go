package vapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okranz/kubevapp/internal/util/retry"
)

// RestClient implements Client over the platform's JSON API.
type RestClient struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	pollInterval time.Duration
	toolsRetries int
}

// RestOption adjusts a RestClient.
type RestOption func(*RestClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) RestOption {
	return func(r *RestClient) { r.httpClient = c }
}

// WithPollInterval overrides the operation/tools poll interval.
func WithPollInterval(d time.Duration) RestOption {
	return func(r *RestClient) { r.pollInterval = d }
}

// NewRestClient creates a client for the platform API at baseURL,
// authenticating with a bearer token.
func NewRestClient(baseURL, token string, opts ...RestOption) *RestClient {
	c := &RestClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        token,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: 3 * time.Second,
		toolsRetries: 30,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type operationDoc struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (d *operationDoc) handle() *Operation {
	if d == nil || d.ID == "" {
		return nil
	}
	return &Operation{ID: d.ID, Type: d.Type}
}

func (c *RestClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: "resource", Name: path}
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateVApp implements VAppManager.
func (c *RestClient) CreateVApp(ctx context.Context, name, description, network, fenceMode string) (*Operation, error) {
	req := map[string]string{
		"name":        name,
		"description": description,
		"network":     network,
		"fenceMode":   fenceMode,
	}
	var doc operationDoc
	if err := c.do(ctx, http.MethodPost, "/api/v1/vapps", req, &doc); err != nil {
		return nil, err
	}
	return doc.handle(), nil
}

// DeleteVApp implements VAppManager. A 204 response means the platform is
// already deleting the vApp through another mechanism; that is reported as
// a nil Operation, not an error.
func (c *RestClient) DeleteVApp(ctx context.Context, vdc, name string) (*Operation, error) {
	path := fmt.Sprintf("/api/v1/vdcs/%s/vapps/%s?force=true", url.PathEscape(vdc), url.PathEscape(name))
	var doc operationDoc
	if err := c.do(ctx, http.MethodDelete, path, nil, &doc); err != nil {
		return nil, err
	}
	return doc.handle(), nil
}

// QueryVApps implements VAppManager. The platform rejects queries asking
// for more than MaxMetadataFieldsPerQuery metadata fields.
func (c *RestClient) QueryVApps(ctx context.Context, filter Filter, metadataFields []string) ([]VAppRecord, error) {
	if len(metadataFields) > MaxMetadataFieldsPerQuery {
		return nil, fmt.Errorf("query asks for %d metadata fields, platform caps at %d",
			len(metadataFields), MaxMetadataFieldsPerQuery)
	}
	q := url.Values{}
	if filter.Name != "" {
		q.Set("name", filter.Name)
	}
	if filter.Org != "" {
		q.Set("org", filter.Org)
	}
	if filter.VDC != "" {
		q.Set("vdc", filter.VDC)
	}
	if filter.MetadataKey != "" {
		q.Set("metadataKey", filter.MetadataKey)
		if filter.MetadataValue != "" {
			q.Set("metadataValue", filter.MetadataValue)
		}
	}
	if len(metadataFields) > 0 {
		q.Set("fields", strings.Join(metadataFields, ","))
	}

	var out struct {
		Records []VAppRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/vapps?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// ResolveTemplateVM implements VMManager.
func (c *RestClient) ResolveTemplateVM(ctx context.Context, catalog, item string) (SourceRef, error) {
	path := fmt.Sprintf("/api/v1/catalogs/%s/items/%s", url.PathEscape(catalog), url.PathEscape(item))
	var out SourceRef
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		if IsNotFound(err) {
			return SourceRef{}, &NotFoundError{Resource: "catalog item", Name: item}
		}
		return SourceRef{}, err
	}
	return out, nil
}

// AddVMs implements VMManager.
func (c *RestClient) AddVMs(ctx context.Context, vappName string, specs []VMSpec) (*Operation, error) {
	var doc operationDoc
	path := fmt.Sprintf("/api/v1/vapps/%s/vms", url.PathEscape(vappName))
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"specs": specs}, &doc); err != nil {
		return nil, err
	}
	return doc.handle(), nil
}

// RemoveVMs implements VMManager.
func (c *RestClient) RemoveVMs(ctx context.Context, vappName string, names []string) (*Operation, error) {
	var doc operationDoc
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/remove", url.PathEscape(vappName))
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"names": names}, &doc); err != nil {
		return nil, err
	}
	return doc.handle(), nil
}

// ListVMs implements VMManager.
func (c *RestClient) ListVMs(ctx context.Context, vappName string) ([]VM, error) {
	var out struct {
		VMs []VM `json:"vms"`
	}
	path := fmt.Sprintf("/api/v1/vapps/%s/vms", url.PathEscape(vappName))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.VMs, nil
}

// GetVM implements VMManager.
func (c *RestClient) GetVM(ctx context.Context, vappName, vmName string) (*VM, error) {
	var out VM
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/%s", url.PathEscape(vappName), url.PathEscape(vmName))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, &NotFoundError{Resource: "VM", Name: vmName}
		}
		return nil, err
	}
	return &out, nil
}

// SetVMCPU implements VMManager.
func (c *RestClient) SetVMCPU(ctx context.Context, vappName, vmName string, cpus int) (*Operation, error) {
	var doc operationDoc
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/%s/cpu", url.PathEscape(vappName), url.PathEscape(vmName))
	if err := c.do(ctx, http.MethodPut, path, map[string]int{"cpus": cpus}, &doc); err != nil {
		return nil, err
	}
	return doc.handle(), nil
}

// SetVMMemory implements VMManager.
func (c *RestClient) SetVMMemory(ctx context.Context, vappName, vmName string, memoryMB int64) (*Operation, error) {
	var doc operationDoc
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/%s/memory", url.PathEscape(vappName), url.PathEscape(vmName))
	if err := c.do(ctx, http.MethodPut, path, map[string]int64{"memoryMB": memoryMB}, &doc); err != nil {
		return nil, err
	}
	return doc.handle(), nil
}

// PowerOnVM implements VMManager.
func (c *RestClient) PowerOnVM(ctx context.Context, vappName, vmName string) (*Operation, error) {
	return c.vmAction(ctx, vappName, vmName, "power-on")
}

// UndeployVM implements VMManager.
func (c *RestClient) UndeployVM(ctx context.Context, vappName, vmName string) (*Operation, error) {
	return c.vmAction(ctx, vappName, vmName, "undeploy")
}

func (c *RestClient) vmAction(ctx context.Context, vappName, vmName, action string) (*Operation, error) {
	var doc operationDoc
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/%s/%s", url.PathEscape(vappName), url.PathEscape(vmName), action)
	if err := c.do(ctx, http.MethodPost, path, nil, &doc); err != nil {
		return nil, err
	}
	return doc.handle(), nil
}

// PrimaryIP implements VMManager.
func (c *RestClient) PrimaryIP(ctx context.Context, vappName, vmName string) (string, error) {
	var out struct {
		IP string `json:"ip"`
	}
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/%s/primary-ip", url.PathEscape(vappName), url.PathEscape(vmName))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.IP, nil
}

// AdminPassword implements VMManager.
func (c *RestClient) AdminPassword(ctx context.Context, vappName, vmName string) (string, error) {
	var out struct {
		Password string `json:"password"`
	}
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/%s/admin-password", url.PathEscape(vappName), url.PathEscape(vmName))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Password, nil
}

// SetMetadata implements MetadataManager.
func (c *RestClient) SetMetadata(ctx context.Context, vappName string, entries map[string]string) (*Operation, error) {
	var doc operationDoc
	path := fmt.Sprintf("/api/v1/vapps/%s/metadata", url.PathEscape(vappName))
	if err := c.do(ctx, http.MethodPut, path, map[string]any{"entries": entries}, &doc); err != nil {
		return nil, err
	}
	return doc.handle(), nil
}

// WaitForGuestTools implements GuestManager with bounded fixed-interval
// polling of the guest agent status.
func (c *RestClient) WaitForGuestTools(ctx context.Context, vappName, vmName string) error {
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/%s/guest/tools", url.PathEscape(vappName), url.PathEscape(vmName))
	return retry.Do(ctx, func() error {
		var out struct {
			Ready bool `json:"ready"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
			return err
		}
		if !out.Ready {
			return fmt.Errorf("guest tools not ready on %s", vmName)
		}
		return nil
	}, retry.Attempts(c.toolsRetries), retry.Delay(c.pollInterval), retry.FixedInterval())
}

// ExecuteScript implements GuestManager.
func (c *RestClient) ExecuteScript(ctx context.Context, vappName, vmName, user, password, script string, wait bool, maxWait time.Duration) (GuestResult, error) {
	req := map[string]any{
		"user":           user,
		"password":       password,
		"script":         script,
		"wait":           wait,
		"maxWaitSeconds": int(maxWait.Seconds()),
		"deleteScript":   true,
	}
	var out struct {
		ExitCode int    `json:"exitCode"`
		Stdout   []byte `json:"stdout"`
		Stderr   []byte `json:"stderr"`
	}
	path := fmt.Sprintf("/api/v1/vapps/%s/vms/%s/guest/exec", url.PathEscape(vappName), url.PathEscape(vmName))
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return GuestResult{}, err
	}
	return GuestResult{ExitCode: out.ExitCode, Stdout: out.Stdout, Stderr: out.Stderr}, nil
}

// WaitOperation implements OperationWaiter by polling the operation until
// it reaches a terminal status.
func (c *RestClient) WaitOperation(ctx context.Context, op *Operation) error {
	if op == nil {
		return nil
	}
	path := "/api/v1/operations/" + url.PathEscape(op.ID)
	for {
		var doc operationDoc
		if err := c.do(ctx, http.MethodGet, path, nil, &doc); err != nil {
			return err
		}
		switch doc.Status {
		case "SUCCESS":
			return nil
		case "ERROR", "ABORTED":
			return &OperationError{Op: op, Status: doc.Status, Detail: doc.Detail}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

var _ Client = (*RestClient)(nil)
