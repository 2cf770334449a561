package kube

import (
	"context"
	"fmt"
	"sync"
)

// FakeManager is an in-memory Manager for tests of packages built on kube.
type FakeManager struct {
	mu sync.Mutex

	Current     string
	Contexts    []string
	ContextsErr error

	// ClientSet is returned by Clients for every context.
	ClientSet  *Clients
	ClientsErr error

	Version string
	APIErr  error
	Nodes   NodeHealth

	Switched []string
}

var _ Manager = (*FakeManager)(nil)

func (f *FakeManager) GetCurrentContext() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Current == "" {
		return "", fmt.Errorf("current kubeconfig context is not set")
	}
	return f.Current, nil
}

func (f *FakeManager) SwitchContext(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Contexts {
		if c == name {
			f.Current = name
			f.Switched = append(f.Switched, name)
			return nil
		}
	}
	return fmt.Errorf("context '%s' does not exist in kubeconfig", name)
}

func (f *FakeManager) GetAvailableContexts() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Contexts...), f.ContextsErr
}

func (f *FakeManager) ContextExists(name string) (bool, error) {
	contexts, err := f.GetAvailableContexts()
	if err != nil {
		return false, err
	}
	for _, c := range contexts {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}

// AddContext registers a context, as creating a cluster would.
func (f *FakeManager) AddContext(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Contexts = append(f.Contexts, name)
}

func (f *FakeManager) Clients(string) (*Clients, error) {
	if f.ClientsErr != nil {
		return nil, f.ClientsErr
	}
	return f.ClientSet, nil
}

func (f *FakeManager) GetClusterNodeHealth(context.Context, string) (NodeHealth, error) {
	if f.APIErr != nil {
		return NodeHealth{Error: f.APIErr}, f.APIErr
	}
	return f.Nodes, nil
}

func (f *FakeManager) CheckAPIHealth(context.Context, string) (string, error) {
	if f.APIErr != nil {
		return "", f.APIErr
	}
	return f.Version, nil
}
