package cluster

import (
	"context"
	"errors"

	"coffeectl/internal/config"
	"coffeectl/pkg/logging"
)

const enableKubernetesHint = "enable Kubernetes in Docker Desktop (Settings -> Kubernetes -> Enable Kubernetes)"

// dockerDesktop is the single-node cluster built into Docker Desktop. It can
// be neither created nor deleted from the command line.
type dockerDesktop struct {
	context  string
	contexts ContextSwitcher
}

func (d *dockerDesktop) Backend() config.Backend { return config.BackendDockerDesktop }
func (d *dockerDesktop) Name() string            { return "docker-desktop" }
func (d *dockerDesktop) ContextName() string     { return d.context }
func (d *dockerDesktop) SharesHostImages() bool  { return true }

func (d *dockerDesktop) Status(_ context.Context) (Status, error) {
	ok, err := d.contexts.ContextExists(d.context)
	if err != nil {
		return Status{}, err
	}
	return Status{Exists: ok, Running: ok}, nil
}

func (d *dockerDesktop) Create(_ context.Context) error {
	return &ProvisionError{
		Backend: config.BackendDockerDesktop,
		Op:      "create cluster",
		Err:     errors.New("the Docker Desktop cluster cannot be created from the command line"),
		Hint:    enableKubernetesHint,
	}
}

func (d *dockerDesktop) Delete(_ context.Context) error {
	logging.Info("Cluster-docker-desktop", "Docker Desktop's cluster is not deleted; disable Kubernetes in Docker Desktop to remove it")
	return nil
}

func (d *dockerDesktop) LoadImage(context.Context, string) error { return nil }
