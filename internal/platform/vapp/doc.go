// Package vapp wraps the virtualization platform's vApp API behind narrow
// per-concern interfaces. A vApp is a named group of VMs provisioned and
// deleted as a unit; it is also the durable record of a cluster via its
// metadata key/value tags. The orchestrator only ever talks to the Client
// interface, which keeps the platform mockable in tests.
package vapp
