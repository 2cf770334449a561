// Package status collects a read-only snapshot of the demo namespace and
// renders it as tables, JSON or YAML.
package status

import (
	"context"
	"fmt"
	"time"

	"coffeectl/internal/kube"
	"coffeectl/pkg/logging"

	"github.com/hashicorp/go-multierror"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Snapshot is the state of one namespace at CollectedAt.
type Snapshot struct {
	Context     string    `json:"context" yaml:"context"`
	Namespace   string    `json:"namespace" yaml:"namespace"`
	CollectedAt time.Time `json:"collectedAt" yaml:"collectedAt"`
	// NamespaceMissing is set when the namespace does not exist; every list
	// is empty then.
	NamespaceMissing bool                     `json:"namespaceMissing,omitempty" yaml:"namespaceMissing,omitempty"`
	Pods             []kube.PodSummary        `json:"pods" yaml:"pods"`
	Services         []kube.ServiceSummary    `json:"services" yaml:"services"`
	Deployments      []kube.DeploymentSummary `json:"deployments" yaml:"deployments"`
	Autoscalers      []kube.HPASummary        `json:"autoscalers" yaml:"autoscalers"`
	Usage            []kube.PodUsage          `json:"usage,omitempty" yaml:"usage,omitempty"`
	// UsageUnavailable explains why Usage is empty, typically a cluster
	// without metrics-server.
	UsageUnavailable string              `json:"usageUnavailable,omitempty" yaml:"usageUnavailable,omitempty"`
	Events           []kube.EventSummary `json:"events" yaml:"events"`
}

// Reporter collects snapshots through one set of clients.
type Reporter struct {
	clients    *kube.Clients
	namespace  string
	eventLimit int
}

// NewReporter returns a Reporter for namespace that keeps the last
// eventLimit events.
func NewReporter(clients *kube.Clients, namespace string, eventLimit int) *Reporter {
	return &Reporter{clients: clients, namespace: namespace, eventLimit: eventLimit}
}

// Collect reads the namespace. Missing metrics are recorded in the snapshot;
// other failures are aggregated into the returned error while the rest of
// the snapshot is still filled in.
func (r *Reporter) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Context:     r.clients.Context,
		Namespace:   r.namespace,
		CollectedAt: time.Now(),
	}
	cs := r.clients.Kube

	if _, err := cs.CoreV1().Namespaces().Get(ctx, r.namespace, metav1.GetOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			snap.NamespaceMissing = true
			return snap, nil
		}
		return snap, fmt.Errorf("failed to get namespace %s: %w", r.namespace, err)
	}

	var result *multierror.Error
	var err error

	if snap.Pods, err = kube.ListPods(ctx, cs, r.namespace, ""); err != nil {
		result = multierror.Append(result, err)
	}
	if snap.Services, err = kube.ListServices(ctx, cs, r.namespace); err != nil {
		result = multierror.Append(result, err)
	}
	if snap.Deployments, err = kube.ListDeployments(ctx, cs, r.namespace); err != nil {
		result = multierror.Append(result, err)
	}
	if snap.Autoscalers, err = kube.ListHPAs(ctx, cs, r.namespace); err != nil {
		result = multierror.Append(result, err)
	}
	if snap.Events, err = kube.RecentEvents(ctx, cs, r.namespace, r.eventLimit); err != nil {
		result = multierror.Append(result, err)
	}

	if snap.Usage, err = kube.PodUsages(ctx, r.clients.Metrics, r.namespace); err != nil {
		logging.Debug("Status", "Resource usage unavailable: %v", err)
		snap.UsageUnavailable = "metrics API not available (is metrics-server installed?)"
		snap.Usage = nil
	}

	return snap, result.ErrorOrNil()
}
