// Package naming defines the naming rules for clusters and nodes: the
// cluster-name grammar, the role prefixes baked into VM names, and the
// generation of collision-free node names.
package naming
