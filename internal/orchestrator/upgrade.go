package orchestrator

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/okranz/kubevapp/internal/cluster"
	"github.com/okranz/kubevapp/internal/task"
	"github.com/okranz/kubevapp/internal/template"
)

// upgradeSet says which software components an upgrade must touch.
type upgradeSet struct {
	docker     bool
	kubernetes bool
	cni        bool
}

// computeUpgrades compares the cluster's recorded versions against the
// target template. Kubernetes allows a same-version run (a patched template
// at the same version is a valid target); the container runtime's YY.MM.p
// scheme sorts correctly lexicographically; CNI is also forced whenever the
// Kubernetes major or minor version moves.
func computeUpgrades(c *cluster.Cluster, target template.Definition) (upgradeSet, error) {
	cK8s, err := semver.NewVersion(c.KubernetesVersion)
	if err != nil {
		return upgradeSet{}, fmt.Errorf("cluster '%s' has unparseable Kubernetes version '%s': %w", c.Name, c.KubernetesVersion, err)
	}
	tK8s, err := semver.NewVersion(target.KubernetesVersion)
	if err != nil {
		return upgradeSet{}, fmt.Errorf("template %s has unparseable Kubernetes version '%s': %w", target, target.KubernetesVersion, err)
	}
	cCNI, err := semver.NewVersion(c.CNIVersion)
	if err != nil {
		return upgradeSet{}, fmt.Errorf("cluster '%s' has unparseable CNI version '%s': %w", c.Name, c.CNIVersion, err)
	}
	tCNI, err := semver.NewVersion(target.CNIVersion)
	if err != nil {
		return upgradeSet{}, fmt.Errorf("template %s has unparseable CNI version '%s': %w", target, target.CNIVersion, err)
	}

	return upgradeSet{
		docker:     target.DockerVersion > c.DockerVersion,
		kubernetes: !tK8s.LessThan(cK8s),
		cni:        tCNI.GreaterThan(cCNI) || tK8s.Major() > cK8s.Major() || tK8s.Minor() > cK8s.Minor(),
	}, nil
}

// UpgradeCluster patches the cluster's software in place to match the
// target template. The target must be in the cluster's upgrade plan; there
// is no rollback for upgrades.
func (o *NativeOrchestrator) UpgradeCluster(ctx context.Context, req UpgradeClusterRequest) (*task.Task, error) {
	if req.TemplateName == "" || req.TemplateRevision == 0 {
		return nil, validationf("upgrade requires both template name and revision")
	}
	c, err := o.getCluster(ctx, req.Scope, req.Name)
	if err != nil {
		return nil, err
	}
	target, err := o.resolveTemplate(req.TemplateName, req.TemplateRevision)
	if err != nil {
		return nil, err
	}

	current := template.Definition{Name: c.Template.Name, Revision: c.Template.Revision}
	if !inPlan(o.registry.UpgradeTargets(current), target) {
		return nil, validationf("template %s is not a valid upgrade target for cluster '%s' (current: %s revision %d)",
			target, req.Name, c.Template.Name, c.Template.Revision)
	}

	upgrades, err := computeUpgrades(c, target)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	scripts, err := o.scripts(target)
	if err != nil {
		return nil, err
	}
	master, err := masterOf(c)
	if err != nil {
		return nil, err
	}

	t := task.New("upgrade cluster", fmt.Sprintf("Upgrading cluster '%s' to template %s", req.Name, target))
	o.dispatch(ctx, "upgrade_cluster", t, func(ctx context.Context) {
		o.upgradeCluster(ctx, t, c, target, upgrades, scripts, master)
	})
	return t, nil
}

func inPlan(plan []template.Definition, target template.Definition) bool {
	for _, d := range plan {
		if d.Name == target.Name && d.Revision == target.Revision {
			return true
		}
	}
	return false
}

func (o *NativeOrchestrator) upgradeCluster(ctx context.Context, t *task.Task, c *cluster.Cluster,
	target template.Definition, upgrades upgradeSet, scripts *template.ScriptSet, master string) {

	log := o.log.WithFields(logrus.Fields{"cluster": c.Name, "task": t.ID()})
	workers := workersOf(c)
	allNodes := append([]string{master}, workers...)

	fail := func(step string, err error) {
		log.WithError(err).Errorf("upgrade failed while %s", step)
		t.Fail(fmt.Sprintf("error upgrading cluster '%s' while %s: %v", c.Name, step, err))
	}

	if upgrades.kubernetes {
		t.Running(fmt.Sprintf("Draining master node %s", master))
		if err := o.runner.Drain(ctx, c.Name, master, []string{master}); err != nil {
			fail("draining the master", err)
			return
		}

		t.Running(fmt.Sprintf("Upgrading Kubernetes (%s -> %s) in master node %s", c.KubernetesVersion, target.KubernetesVersion, master))
		if _, err := o.runner.Run(ctx, c.Name, master, "kubernetes master upgrade", scripts.MasterK8Upgrade); err != nil {
			fail("upgrading Kubernetes on the master", err)
			return
		}

		t.Running(fmt.Sprintf("Uncordoning master node %s", master))
		if err := o.runner.Uncordon(ctx, c.Name, master, []string{master}); err != nil {
			fail("uncordoning the master", err)
			return
		}

		for _, node := range workers {
			t.Running(fmt.Sprintf("Draining node %s", node))
			if err := o.runner.Drain(ctx, c.Name, master, []string{node}); err != nil {
				fail(fmt.Sprintf("draining node %s", node), err)
				return
			}

			t.Running(fmt.Sprintf("Upgrading Kubernetes (%s -> %s) in node %s", c.KubernetesVersion, target.KubernetesVersion, node))
			if _, err := o.runner.Run(ctx, c.Name, node, "kubernetes worker upgrade", scripts.WorkerK8Upgrade); err != nil {
				fail(fmt.Sprintf("upgrading Kubernetes on node %s", node), err)
				return
			}

			t.Running(fmt.Sprintf("Uncordoning node %s", node))
			if err := o.runner.Uncordon(ctx, c.Name, master, []string{node}); err != nil {
				fail(fmt.Sprintf("uncordoning node %s", node), err)
				return
			}
		}
	}

	if upgrades.docker || upgrades.cni {
		t.Running(fmt.Sprintf("Draining all nodes %v", allNodes))
		if err := o.runner.Drain(ctx, c.Name, master, allNodes); err != nil {
			fail("draining all nodes", err)
			return
		}
	}

	if upgrades.docker {
		t.Running(fmt.Sprintf("Upgrading Docker-CE (%s -> %s) in nodes %v", c.DockerVersion, target.DockerVersion, allNodes))
		if err := o.runner.RunOnNodes(ctx, c.Name, allNodes, "docker upgrade", scripts.DockerUpgrade); err != nil {
			fail("upgrading the container runtime", err)
			return
		}
	}

	if upgrades.cni {
		t.Running(fmt.Sprintf("Applying CNI (%s %s -> %s) in master node %s", target.CNI, c.CNIVersion, target.CNIVersion, master))
		if _, err := o.runner.Run(ctx, c.Name, master, "cni apply", scripts.CNIApply); err != nil {
			fail("applying the CNI manifest", err)
			return
		}
	}

	// Sometimes redundant, always safe.
	t.Running(fmt.Sprintf("Uncordoning all nodes %v", allNodes))
	if err := o.runner.Uncordon(ctx, c.Name, master, allNodes); err != nil {
		fail("uncordoning all nodes", err)
		return
	}

	t.Running(fmt.Sprintf("Updating metadata for cluster '%s'", c.Name))
	if err := o.await(o.client.SetMetadata(ctx, c.Name, cluster.TemplateMetadata(target))); err != nil {
		fail("updating cluster metadata", err)
		return
	}

	t.Succeed(fmt.Sprintf("Successfully upgraded cluster '%s' software to match template %s: Kubernetes: %s -> %s, Docker-CE: %s -> %s, CNI: %s -> %s",
		c.Name, target, c.KubernetesVersion, target.KubernetesVersion,
		c.DockerVersion, target.DockerVersion, c.CNIVersion, target.CNIVersion))
	log.Info("cluster upgraded")
}
