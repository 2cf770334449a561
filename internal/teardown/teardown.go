// Package teardown removes what deploy created: the demo namespace and,
// when asked, the cluster itself. Everything it deletes may already be gone.
package teardown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coffeectl/internal/cluster"
	"coffeectl/internal/kube"
	"coffeectl/pkg/logging"

	"k8s.io/client-go/kubernetes"
)

// ErrAborted is returned when the operator declines the confirmation.
var ErrAborted = errors.New("teardown aborted")

// Options selects what Run removes.
type Options struct {
	DeleteCluster bool
	// WaitTimeout bounds the wait for the namespace to disappear. Zero
	// returns as soon as deletion was requested.
	WaitTimeout time.Duration
}

// Result reports what was actually deleted.
type Result struct {
	NamespaceDeleted bool
	ClusterDeleted   bool
	// ClusterStopped is set when the cluster exists but is not running, so
	// its namespace could not be reached.
	ClusterStopped bool
}

// Teardown deletes one namespace and optionally its cluster.
type Teardown struct {
	Namespace   string
	Provisioner cluster.Provisioner
	// Clientset connects to the cluster. It is only called when the
	// cluster exists and is running.
	Clientset func() (kubernetes.Interface, error)
	Confirmer Confirmer
	// AssumeYes skips the confirmation.
	AssumeYes bool
}

// Run asks for confirmation and deletes. An absent namespace or cluster
// counts as success.
func (t *Teardown) Run(ctx context.Context, opts Options) (Result, error) {
	var result Result

	if !t.AssumeYes {
		ok, err := t.Confirmer.Confirm(t.question(opts))
		if err != nil {
			return result, err
		}
		if !ok {
			return result, ErrAborted
		}
	}

	status, err := t.Provisioner.Status(ctx)
	if err != nil {
		return result, err
	}

	switch {
	case !status.Exists:
		logging.Info("Teardown", "Cluster %s does not exist, skipping namespace %s", t.Provisioner.Name(), t.Namespace)
	case !status.Running:
		result.ClusterStopped = true
		logging.Warn("Teardown", "Cluster %s is not running, skipping namespace %s", t.Provisioner.Name(), t.Namespace)
	default:
		deleted, err := t.deleteNamespace(ctx, opts)
		if err != nil {
			return result, err
		}
		result.NamespaceDeleted = deleted
	}

	if opts.DeleteCluster {
		removed, err := cluster.Remove(ctx, t.Provisioner)
		if err != nil {
			return result, err
		}
		result.ClusterDeleted = removed
	}
	return result, nil
}

func (t *Teardown) deleteNamespace(ctx context.Context, opts Options) (bool, error) {
	cs, err := t.Clientset()
	if err != nil {
		return false, fmt.Errorf("connecting to cluster %s: %w", t.Provisioner.Name(), err)
	}
	deleted, err := kube.DeleteNamespace(ctx, cs, t.Namespace)
	if err != nil {
		return false, err
	}
	if !deleted {
		logging.Info("Teardown", "Namespace %s not found, nothing to delete", t.Namespace)
		return false, nil
	}
	logging.Info("Teardown", "Deleting namespace %s", t.Namespace)
	if opts.WaitTimeout > 0 {
		if err := kube.WaitNamespaceGone(ctx, cs, t.Namespace, opts.WaitTimeout); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (t *Teardown) question(opts Options) string {
	parts := []string{fmt.Sprintf("namespace %s", t.Namespace)}
	if opts.DeleteCluster {
		parts = append(parts, fmt.Sprintf("%s cluster %s", t.Provisioner.Backend(), t.Provisioner.Name()))
	}
	return "Delete " + strings.Join(parts, " and ") + "?"
}
