package kube

import (
	"fmt"
	"sort"

	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// GetCurrentKubeContext retrieves the name of the currently active Kubernetes context
var GetCurrentKubeContext = func() (string, error) {
	config, err := GetStartingConfig()
	if err != nil {
		return "", err
	}
	if config.CurrentContext == "" {
		return "", fmt.Errorf("current kubeconfig context is not set")
	}
	return config.CurrentContext, nil
}

// SwitchKubeContext changes the active Kubernetes context to the specified context name
var SwitchKubeContext = func(contextName string) error {
	pathOptions := clientcmd.NewDefaultPathOptions()
	config, err := pathOptions.GetStartingConfig()
	if err != nil {
		return fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	if _, exists := config.Contexts[contextName]; !exists {
		return fmt.Errorf("context '%s' does not exist in kubeconfig", contextName)
	}
	if config.CurrentContext == contextName {
		return nil
	}
	config.CurrentContext = contextName
	kubeconfigFilePath := pathOptions.GetDefaultFilename()
	if pathOptions.IsExplicitFile() {
		kubeconfigFilePath = pathOptions.GetExplicitFile()
	}
	if err := clientcmd.WriteToFile(*config, kubeconfigFilePath); err != nil {
		return fmt.Errorf("failed to write updated kubeconfig to '%s': %w", kubeconfigFilePath, err)
	}
	return nil
}

// ListKubeContexts returns every context name in the kubeconfig, sorted.
var ListKubeContexts = func() ([]string, error) {
	config, err := GetStartingConfig()
	if err != nil {
		return nil, err
	}
	contexts := make([]string, 0, len(config.Contexts))
	for name := range config.Contexts {
		contexts = append(contexts, name)
	}
	sort.Strings(contexts)
	return contexts, nil
}

// ContextExists reports whether the kubeconfig defines contextName.
func ContextExists(contextName string) (bool, error) {
	contexts, err := ListKubeContexts()
	if err != nil {
		return false, err
	}
	for _, c := range contexts {
		if c == contextName {
			return true, nil
		}
	}
	return false, nil
}

// GetStartingConfig returns the starting kubeconfig
func GetStartingConfig() (*api.Config, error) {
	pathOptions := clientcmd.NewDefaultPathOptions()
	config, err := pathOptions.GetStartingConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get starting kubeconfig: %w", err)
	}
	return config, nil
}
