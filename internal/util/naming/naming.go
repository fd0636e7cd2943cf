package naming

import (
	"math/rand"
	"regexp"
	"strings"
)

// NodeRole identifies the role a VM plays in a cluster. The role is encoded
// as the VM name prefix at creation time and never changes afterwards.
type NodeRole string

const (
	RoleMaster NodeRole = "master"
	RoleWorker NodeRole = "worker"
	RoleNFS    NodeRole = "nfs"
)

const (
	// MaxClusterNameLength is the upper bound on cluster names. Cluster
	// names become vApp names and guest hostnames, which keeps the bound
	// well under the DNS limit.
	MaxClusterNameLength = 25

	suffixLength  = 4
	suffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// labelPattern matches a single dot-separated label of a cluster name:
// letters, digits and hyphens, 1-63 characters. Leading/trailing hyphens
// are checked separately since RE2 has no lookarounds.
var labelPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,63}$`)

// IsValidClusterName reports whether name is an acceptable cluster name:
// at most MaxClusterNameLength characters, composed of dot-separated
// DNS-hostname-style labels. A single trailing dot is tolerated.
func IsValidClusterName(name string) bool {
	if name == "" || len(name) > MaxClusterNameLength {
		return false
	}
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if !labelPattern.MatchString(label) {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}

// NodeName generates a node name for the given role with a random
// four-character suffix, retrying until taken() reports the name as free.
func NodeName(role NodeRole, taken func(string) bool) string {
	for {
		b := make([]byte, suffixLength)
		for i := range b {
			b[i] = suffixCharset[rand.Intn(len(suffixCharset))]
		}
		name := string(role) + "-" + string(b)
		if taken == nil || !taken(name) {
			return name
		}
	}
}

// RoleOf returns the role encoded in a node name, or false if the name
// does not carry a known role prefix.
func RoleOf(nodeName string) (NodeRole, bool) {
	for _, role := range []NodeRole{RoleMaster, RoleWorker, RoleNFS} {
		if HasRole(nodeName, role) {
			return role, true
		}
	}
	return "", false
}

// HasRole reports whether the node name carries the given role prefix.
func HasRole(nodeName string, role NodeRole) bool {
	return strings.HasPrefix(nodeName, string(role)+"-")
}

// FilterByRole returns the subset of names carrying the given role prefix.
func FilterByRole(names []string, role NodeRole) []string {
	var out []string
	for _, n := range names {
		if HasRole(n, role) {
			out = append(out, n)
		}
	}
	return out
}
