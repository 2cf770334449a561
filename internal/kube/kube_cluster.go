package kube

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // auth provider plugins for exotic kubeconfigs
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Clients bundles the API clients for one kubeconfig context.
type Clients struct {
	Context string
	REST    *rest.Config
	Kube    kubernetes.Interface
	Metrics metricsclientset.Interface
}

// RESTConfigForContext builds a REST config for the given kubeconfig context.
// An empty name uses the current context.
func RESTConfigForContext(kubeContextName string) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContextName}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)

	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", kubeContextName, err)
	}
	restConfig.Timeout = 15 * time.Second
	return restConfig, nil
}

// NewClientsForContext creates the typed and metrics clientsets for a context.
var NewClientsForContext = func(kubeContextName string) (*Clients, error) {
	restConfig, err := RESTConfigForContext(kubeContextName)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset for context %q: %w", kubeContextName, err)
	}
	metrics, err := metricsclientset.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics clientset for context %q: %w", kubeContextName, err)
	}

	return &Clients{
		Context: kubeContextName,
		REST:    restConfig,
		Kube:    clientset,
		Metrics: metrics,
	}, nil
}

// GetNodeStatus retrieves the number of ready and total nodes in a cluster.
func GetNodeStatus(ctx context.Context, clientset kubernetes.Interface) (readyNodes int, totalNodes int, err error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	nodeList, errList := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if errList != nil {
		return 0, 0, fmt.Errorf("failed to list nodes: %w", errList)
	}

	totalNodes = len(nodeList.Items)
	for _, node := range nodeList.Items {
		for _, condition := range node.Status.Conditions {
			if condition.Type == corev1.NodeReady && condition.Status == corev1.ConditionTrue {
				readyNodes++
				break
			}
		}
	}
	return readyNodes, totalNodes, nil
}

// CheckAPIHealth asks the API server for its version, which proves the
// cluster is reachable with the loaded credentials.
func CheckAPIHealth(clientset kubernetes.Interface) (string, error) {
	version, err := clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("API server unreachable: %w", err)
	}
	return version.GitVersion, nil
}
