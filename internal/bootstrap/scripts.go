package bootstrap

// Fixed scripts that do not vary by template.
const (
	readinessScript = "#!/usr/bin/env bash\nuname -a\n"

	// tokenScript prints the join token on the first line and the master's
	// routed IP on the second.
	tokenScript = "#!/usr/bin/env bash\n" +
		"kubeadm token create\n" +
		"ip route get 1 | awk '{print $NF;exit}'\n"

	masterIPScript = "#!/usr/bin/env bash\n" +
		"ip route get 1 | awk '{print $NF;exit}'\n"

	kubeconfigScript = "#!/usr/bin/env bash\ncat /root/.kube/config\n"

	showmountScript = "#!/usr/bin/env bash\nshowmount -e\n"

	drainScriptFmt = "#!/usr/bin/env bash\n" +
		"kubectl drain %s --ignore-daemonsets --timeout=60s --force\n"

	uncordonScriptFmt = "#!/usr/bin/env bash\nkubectl uncordon %s\n"

	deleteNodeScriptFmt = "#!/usr/bin/env bash\nkubectl delete node %s\n"
)
