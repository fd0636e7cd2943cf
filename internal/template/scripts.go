package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Script file names inside a template's script directory. The customization
// and upgrade scripts are optional; the bootstrap scripts are required.
const (
	ScriptCustomization   = "cust.sh"
	ScriptInitMaster      = "init-master.sh"
	ScriptJoinWorker      = "join-worker.sh"
	ScriptNFSEnable       = "nfs-enable.sh"
	ScriptDockerUpgrade   = "docker-upgrade.sh"
	ScriptMasterK8Upgrade = "master-k8s-upgrade.sh"
	ScriptWorkerK8Upgrade = "worker-k8s-upgrade.sh"
	ScriptCNIApply        = "cni-apply.sh"
)

// Placeholders substituted into the worker join script.
const (
	TokenPlaceholder = "{token}"
	IPPlaceholder    = "{ip}"
)

// ScriptSet is the loaded script contents for one template revision.
type ScriptSet struct {
	Customization   string
	InitMaster      string
	JoinWorker      string
	NFSEnable       string
	DockerUpgrade   string
	MasterK8Upgrade string
	WorkerK8Upgrade string
	CNIApply        string
}

// ScriptDir returns the directory holding a template revision's scripts.
func ScriptDir(root string, d Definition) string {
	return filepath.Join(root, fmt.Sprintf("%s_rev%d", d.Name, d.Revision))
}

// LoadScripts reads the script set for a template from root. Missing
// optional scripts load as empty strings; missing required scripts are an
// error.
func LoadScripts(root string, d Definition) (*ScriptSet, error) {
	dir := ScriptDir(root, d)
	set := &ScriptSet{}
	required := []struct {
		file string
		dst  *string
	}{
		{ScriptInitMaster, &set.InitMaster},
		{ScriptJoinWorker, &set.JoinWorker},
		{ScriptNFSEnable, &set.NFSEnable},
	}
	for _, r := range required {
		data, err := os.ReadFile(filepath.Join(dir, r.file))
		if err != nil {
			return nil, fmt.Errorf("loading script %s for template %s: %w", r.file, d, err)
		}
		*r.dst = string(data)
	}
	optional := []struct {
		file string
		dst  *string
	}{
		{ScriptCustomization, &set.Customization},
		{ScriptDockerUpgrade, &set.DockerUpgrade},
		{ScriptMasterK8Upgrade, &set.MasterK8Upgrade},
		{ScriptWorkerK8Upgrade, &set.WorkerK8Upgrade},
		{ScriptCNIApply, &set.CNIApply},
	}
	for _, o := range optional {
		data, err := os.ReadFile(filepath.Join(dir, o.file))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("loading script %s for template %s: %w", o.file, d, err)
		}
		*o.dst = string(data)
	}
	return set, nil
}

// RenderJoin substitutes the cluster token and master IP into the worker
// join script.
func RenderJoin(script, token, masterIP string) string {
	out := strings.ReplaceAll(script, TokenPlaceholder, token)
	return strings.ReplaceAll(out, IPPlaceholder, masterIP)
}
