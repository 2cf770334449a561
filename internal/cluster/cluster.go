// Package cluster creates, reuses and deletes the local Kubernetes cluster
// the demo runs on. Three interchangeable backends are supported: kind,
// minikube and the cluster embedded in Docker Desktop.
package cluster

import (
	"context"
	"fmt"
	"strings"

	"coffeectl/internal/config"
	"coffeectl/internal/runner"
	"coffeectl/pkg/logging"

	"github.com/hashicorp/go-multierror"
)

// Status describes whether a cluster exists and can serve requests.
type Status struct {
	Exists  bool
	Running bool
	Detail  string
}

// Provisioner manages one named cluster of one backend.
type Provisioner interface {
	Backend() config.Backend
	Name() string
	// ContextName is the kubeconfig context that points at the cluster.
	ContextName() string
	Status(ctx context.Context) (Status, error)
	// Create creates or starts the cluster.
	Create(ctx context.Context) error
	// Delete removes the cluster. Deleting an absent cluster succeeds.
	Delete(ctx context.Context) error
	// SharesHostImages reports whether images built with the host docker are
	// visible to the cluster without loading them.
	SharesHostImages() bool
	LoadImage(ctx context.Context, image string) error
}

// ContextSwitcher is the part of kube.Manager the provisioner needs.
type ContextSwitcher interface {
	ContextExists(contextName string) (bool, error)
	SwitchContext(contextName string) error
}

// ProvisionError wraps a failed backend operation with the tool's output.
type ProvisionError struct {
	Backend config.Backend
	Op      string
	Output  string
	Hint    string
	Err     error
}

func (e *ProvisionError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Backend, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProvisionError) Unwrap() error { return e.Err }

func provisionErr(backend config.Backend, op string, res runner.Result, err error) *ProvisionError {
	out := strings.TrimSpace(res.Stderr)
	if out == "" {
		out = strings.TrimSpace(res.Stdout)
	}
	return &ProvisionError{Backend: backend, Op: op, Output: out, Err: err}
}

// New returns the provisioner for the configured backend.
func New(cfg config.ClusterConfig, r runner.Runner, contexts ContextSwitcher) (Provisioner, error) {
	switch cfg.Backend {
	case config.BackendKind:
		return &kind{name: cfg.Name, context: cfg.KubeContext(), runner: r}, nil
	case config.BackendMinikube:
		return &minikube{name: cfg.Name, context: cfg.KubeContext(), runner: r}, nil
	case config.BackendDockerDesktop:
		return &dockerDesktop{context: cfg.KubeContext(), contexts: contexts}, nil
	default:
		return nil, fmt.Errorf("unknown cluster backend %q", cfg.Backend)
	}
}

// Ensure makes sure the cluster exists and is running, creating it only when
// needed, then points the active kube context at it. It reports whether the
// cluster had to be created or started.
func Ensure(ctx context.Context, p Provisioner, switcher ContextSwitcher) (bool, error) {
	subsystem := fmt.Sprintf("Cluster-%s", p.Backend())

	status, err := p.Status(ctx)
	if err != nil {
		return false, err
	}

	created := false
	if !status.Exists || !status.Running {
		if status.Exists {
			logging.Info(subsystem, "Cluster %s exists but is not running (%s), starting it", p.Name(), status.Detail)
		} else {
			logging.Info(subsystem, "Creating cluster %s", p.Name())
		}
		if err := p.Create(ctx); err != nil {
			return false, err
		}
		created = true
	} else {
		logging.Info(subsystem, "Reusing existing cluster %s", p.Name())
	}

	ok, err := switcher.ContextExists(p.ContextName())
	if err != nil {
		return created, err
	}
	if !ok {
		return created, &ProvisionError{
			Backend: p.Backend(),
			Op:      "locate kube context",
			Err:     fmt.Errorf("context %q not found in kubeconfig after provisioning", p.ContextName()),
		}
	}
	if err := switcher.SwitchContext(p.ContextName()); err != nil {
		return created, fmt.Errorf("switching to context %s: %w", p.ContextName(), err)
	}
	return created, nil
}

// LoadImages pushes images into backends with an isolated image store. It
// attempts every image and reports all failures together.
func LoadImages(ctx context.Context, p Provisioner, images []string) error {
	if p.SharesHostImages() {
		logging.Debug("Cluster", "%s shares the host image store, nothing to load", p.Backend())
		return nil
	}
	var result *multierror.Error
	for _, image := range images {
		logging.Info(fmt.Sprintf("Cluster-%s", p.Backend()), "Loading image %s into %s", image, p.Name())
		if err := p.LoadImage(ctx, image); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Remove deletes the cluster if it exists. An absent cluster is not an
// error; removed reports whether anything was deleted.
func Remove(ctx context.Context, p Provisioner) (removed bool, err error) {
	status, err := p.Status(ctx)
	if err != nil {
		return false, err
	}
	if !status.Exists {
		logging.Info(fmt.Sprintf("Cluster-%s", p.Backend()), "Cluster %s does not exist, nothing to delete", p.Name())
		return false, nil
	}
	if err := p.Delete(ctx); err != nil {
		return false, err
	}
	return true, nil
}
