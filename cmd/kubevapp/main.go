// Package main is the entry point for the kubevapp CLI.
//
// kubevapp provisions and manages Kubernetes clusters as vApps on a
// virtualization platform. Each cluster is one vApp whose VMs are the
// cluster's nodes; all cluster state lives in vApp metadata, so no separate
// database is needed.
//
// Command groups: cluster (create, list, info, config, resize, delete,
// upgrade-plan, upgrade) and node (add, delete, info).
//
// For detailed usage information, run:
//
//	kubevapp --help
package main

import (
	"fmt"
	"os"

	"github.com/okranz/kubevapp/cmd/kubevapp/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
