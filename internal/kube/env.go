package kube

import (
	"strings"

	"coffeectl/internal/config"

	"k8s.io/client-go/tools/clientcmd/api"
)

// DetectBackend guesses which local cluster flavour a kubeconfig context
// points at from its cluster name. It returns "" for anything else, such as
// a remote cluster.
func DetectBackend(kubeconfig *api.Config, contextName string) config.Backend {
	if kubeconfig == nil {
		return ""
	}
	c, ok := kubeconfig.Contexts[contextName]
	if !ok {
		return ""
	}
	cn := c.Cluster
	switch {
	case strings.HasPrefix(cn, "minikube"):
		return config.BackendMinikube
	case strings.HasPrefix(cn, "docker-for-desktop-cluster"), strings.HasPrefix(cn, "docker-desktop"):
		return config.BackendDockerDesktop
	case cn == "kind", strings.HasPrefix(cn, "kind-"):
		return config.BackendKind
	}

	// minikube names clusters after their profile, so fall back to where the
	// CA certificate lives.
	if cl := kubeconfig.Clusters[cn]; cl != nil && strings.Contains(cl.CertificateAuthority, ".minikube") {
		return config.BackendMinikube
	}
	return ""
}
