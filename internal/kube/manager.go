package kube

import (
	"context"
	"fmt"
	"time"

	"coffeectl/pkg/logging"

	"github.com/patrickmn/go-cache"
)

// Manager provides Kubernetes cluster management functionality
type Manager interface {
	// Context Management
	GetCurrentContext() (string, error)
	SwitchContext(targetContextName string) error
	GetAvailableContexts() ([]string, error)
	ContextExists(contextName string) (bool, error)

	// Clients returns cached API clients for a context.
	Clients(kubeContextName string) (*Clients, error)

	// Cluster Operations
	GetClusterNodeHealth(ctx context.Context, kubeContextName string) (NodeHealth, error)
	CheckAPIHealth(ctx context.Context, kubeContextName string) (string, error)
}

// manager implements the Manager interface
type manager struct {
	clientCache *cache.Cache
}

// NewManager creates a new Kubernetes manager
func NewManager() Manager {
	return &manager{
		clientCache: cache.New(10*time.Minute, 20*time.Minute),
	}
}

// GetCurrentContext returns the current Kubernetes context
func (m *manager) GetCurrentContext() (string, error) {
	return GetCurrentKubeContext()
}

// SwitchContext switches to a different Kubernetes context
func (m *manager) SwitchContext(targetContextName string) error {
	subsystem := fmt.Sprintf("KubeSwitchContext-%s", targetContextName)
	logging.Info(subsystem, "Switching Kubernetes context to: %s", targetContextName)
	return SwitchKubeContext(targetContextName)
}

// GetAvailableContexts returns all available Kubernetes contexts
func (m *manager) GetAvailableContexts() ([]string, error) {
	return ListKubeContexts()
}

func (m *manager) ContextExists(contextName string) (bool, error) {
	return ContextExists(contextName)
}

func (m *manager) Clients(kubeContextName string) (*Clients, error) {
	if cached, ok := m.clientCache.Get(kubeContextName); ok {
		return cached.(*Clients), nil
	}
	clients, err := NewClientsForContext(kubeContextName)
	if err != nil {
		return nil, err
	}
	m.clientCache.Set(kubeContextName, clients, cache.DefaultExpiration)
	return clients, nil
}

// GetClusterNodeHealth gets the health status of a cluster
func (m *manager) GetClusterNodeHealth(ctx context.Context, kubeContextName string) (NodeHealth, error) {
	debugOperation := fmt.Sprintf("GetClusterNodeHealth-%s", kubeContextName)
	logging.Debug(debugOperation, "Fetching node health for context: %s", kubeContextName)

	clients, err := m.Clients(kubeContextName)
	if err != nil {
		logging.Error(debugOperation, err, "Failed to create clientset")
		return NodeHealth{Error: err}, err
	}

	readyNodes, totalNodes, err := GetNodeStatus(ctx, clients.Kube)
	health := NodeHealth{
		ReadyNodes: readyNodes,
		TotalNodes: totalNodes,
		Error:      err,
	}
	return health, err
}

// CheckAPIHealth checks the API health of a cluster
func (m *manager) CheckAPIHealth(ctx context.Context, kubeContextName string) (string, error) {
	subsystem := fmt.Sprintf("CheckAPIHealth-%s", kubeContextName)
	logging.Debug(subsystem, "Checking API health for context: %s", kubeContextName)

	clients, err := m.Clients(kubeContextName)
	if err != nil {
		logging.Error(subsystem, err, "Failed to create clientset")
		return "", err
	}
	return CheckAPIHealth(clients.Kube)
}
