// Package manifest applies the demo's Kubernetes manifests tier by tier and
// waits for each tier to become ready before moving on to the next one.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coffeectl/internal/config"
	"coffeectl/internal/kube"
	"coffeectl/internal/runner"
	"coffeectl/pkg/logging"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// Applier applies tiers with kubectl and verifies them with client-go.
type Applier struct {
	runner      runner.Runner
	clientset   kubernetes.Interface
	kubeContext string
	namespace   string

	// Retry bounds the readiness attempts of each tier.
	Retry config.RetryPolicy
	// EventLimit caps the events included in diagnostics.
	EventLimit int
	// Observer, when set, is told about every state change.
	Observer func(Transition)
	// AfterTier, when set, runs after a tier is Ready. An error stops the run.
	AfterTier func(ctx context.Context, tier config.TierDefinition) error
}

// New returns an Applier for namespace in the cluster behind kubeContext.
func New(r runner.Runner, clientset kubernetes.Interface, kubeContext, namespace string) *Applier {
	return &Applier{
		runner:      r,
		clientset:   clientset,
		kubeContext: kubeContext,
		namespace:   namespace,
		Retry:       config.GetDefaultConfig().Retry,
		EventLimit:  10,
	}
}

// Apply applies tiers strictly in order. A tier that fails to apply or to
// become ready stops the run; later tiers are left NotApplied and nothing
// already applied is rolled back.
func (a *Applier) Apply(ctx context.Context, tiers []config.TierDefinition) ([]TierResult, error) {
	results := make([]TierResult, 0, len(tiers))
	for _, tier := range tiers {
		result, err := a.ApplyTier(ctx, tier)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// ApplyTier applies one tier and waits for it according to its wait spec.
// The namespace tier first creates the target namespace itself.
func (a *Applier) ApplyTier(ctx context.Context, tier config.TierDefinition) (TierResult, error) {
	start := time.Now()
	result := TierResult{Name: tier.Name, State: StateNotApplied}
	subsystem := "Applier-" + tier.Name

	if tier.Name == config.TierNamespace {
		resource, err := a.ensureNamespace(ctx)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.Resources = append(result.Resources, resource)
	}
	for _, path := range tier.Manifests {
		resources, err := a.applyFile(ctx, tier.Name, path)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.Resources = append(result.Resources, resources...)
	}
	result.State = StateApplied
	logging.Info(subsystem, "Applied %d resource(s)", len(result.Resources))
	a.notify(Transition{Tier: tier.Name, State: StateApplied, Resources: result.Resources})

	attempts, err := a.waitReady(ctx, tier)
	result.Attempts = attempts
	result.Duration = time.Since(start)
	if err != nil {
		if !errors.Is(err, kube.ErrWaitTimeout) {
			return result, err
		}
		result.State = StateTimedOut
		diag := kube.CollectDiagnostics(ctx, a.clientset, a.namespace, a.diagnosticSelector(ctx, tier), a.EventLimit)
		logging.Error(subsystem, err, "Tier did not become ready, diagnostics:\n%s", diag.String())
		a.notify(Transition{Tier: tier.Name, State: StateTimedOut, Attempt: attempts, Detail: err.Error()})
		return result, &TierTimeoutError{Tier: tier.Name, Attempts: attempts, Diagnostics: diag, Err: err}
	}

	result.State = StateReady
	logging.Info(subsystem, "Ready after %s", result.Duration.Round(time.Second))
	a.notify(Transition{Tier: tier.Name, State: StateReady, Attempt: attempts, Resources: result.Resources})

	if a.AfterTier != nil {
		if err := a.AfterTier(ctx, tier); err != nil {
			return result, fmt.Errorf("verifying tier %s: %w", tier.Name, err)
		}
	}
	return result, nil
}

// waitReady runs the tier's readiness wait up to Retry.Attempts times,
// sleeping with exponential backoff between attempts.
func (a *Applier) waitReady(ctx context.Context, tier config.TierDefinition) (int, error) {
	if tier.Wait.Kind == "" || tier.Wait.Kind == config.WaitNone {
		return 0, nil
	}
	backoff := a.backoff()
	attempts := backoff.Steps

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = a.waitOnce(ctx, tier)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, kube.ErrWaitTimeout) {
			return attempt, err
		}
		if attempt == attempts {
			return attempt, err
		}
		delay := backoff.Step()
		logging.Warn("Applier-"+tier.Name, "Attempt %d/%d failed: %v; retrying in %s", attempt, attempts, err, delay)
		a.notify(Transition{Tier: tier.Name, State: StateApplied, Attempt: attempt, Detail: err.Error()})
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
	}
	return attempts, err
}

func (a *Applier) waitOnce(ctx context.Context, tier config.TierDefinition) error {
	switch tier.Wait.Kind {
	case config.WaitPods:
		return kube.WaitForPodsReady(ctx, a.clientset, a.namespace, tier.Wait.Selector, tier.Wait.Timeout)
	case config.WaitDeployment:
		return kube.WaitForDeploymentAvailable(ctx, a.clientset, a.namespace, tier.Wait.Deployment, tier.Wait.Timeout)
	default:
		return fmt.Errorf("unknown wait kind %q", tier.Wait.Kind)
	}
}

func (a *Applier) backoff() wait.Backoff {
	steps := a.Retry.Attempts
	if steps < 1 {
		steps = 1
	}
	factor := a.Retry.Factor
	if factor < 1 {
		factor = 1
	}
	return wait.Backoff{Duration: a.Retry.InitialDelay, Factor: factor, Steps: steps}
}

// diagnosticSelector picks the pods to describe when a tier times out.
func (a *Applier) diagnosticSelector(ctx context.Context, tier config.TierDefinition) string {
	if tier.Wait.Selector != "" {
		return tier.Wait.Selector
	}
	if tier.Wait.Kind == config.WaitDeployment {
		d, err := a.clientset.AppsV1().Deployments(a.namespace).Get(ctx, tier.Wait.Deployment, metav1.GetOptions{})
		if err == nil && d.Spec.Selector != nil {
			return metav1.FormatLabelSelector(d.Spec.Selector)
		}
	}
	return ""
}

// ensureNamespace creates the target namespace, so the manifests of every
// tier land in whatever namespace coffeectl is configured for.
func (a *Applier) ensureNamespace(ctx context.Context) (Resource, error) {
	labels := map[string]string{"app.kubernetes.io/part-of": config.AppName}
	created, err := kube.EnsureNamespace(ctx, a.clientset, a.namespace, labels)
	if err != nil {
		return Resource{}, &ApplyError{Tier: config.TierNamespace, Manifest: "namespace " + a.namespace, Err: err}
	}
	if created {
		logging.Info("Applier-"+config.TierNamespace, "Created namespace %s", a.namespace)
	}
	return Resource{Kind: "Namespace", Name: a.namespace}, nil
}

func (a *Applier) applyFile(ctx context.Context, tier, path string) ([]Resource, error) {
	res, err := a.runner.Run(ctx, "kubectl", a.kubectlArgs("apply", "-f", path, "-o", "json")...)
	if err != nil {
		return nil, &ApplyError{Tier: tier, Manifest: path, Output: strings.TrimSpace(res.Stderr), Err: err}
	}
	resources, err := parseApplied([]byte(res.Stdout))
	if err != nil {
		return nil, &ApplyError{Tier: tier, Manifest: path, Output: res.Stdout, Err: err}
	}
	for _, r := range resources {
		logging.Debug("Applier-"+tier, "Applied %s", r)
	}
	return resources, nil
}

// Delete removes the tiers' resources in reverse order. Missing resources
// are ignored, so deleting twice succeeds.
func (a *Applier) Delete(ctx context.Context, tiers []config.TierDefinition) error {
	for i := len(tiers) - 1; i >= 0; i-- {
		tier := tiers[i]
		for j := len(tier.Manifests) - 1; j >= 0; j-- {
			path := tier.Manifests[j]
			res, err := a.runner.Run(ctx, "kubectl", a.kubectlArgs("delete", "-f", path, "--ignore-not-found", "--wait=false")...)
			if err != nil {
				return &ApplyError{Tier: tier.Name, Manifest: path, Output: strings.TrimSpace(res.Stderr), Err: err}
			}
			logging.Info("Applier-"+tier.Name, "Deleted resources of %s", path)
		}
		a.notify(Transition{Tier: tier.Name, State: StateNotApplied})
	}
	return nil
}

func (a *Applier) kubectlArgs(args ...string) []string {
	out := []string{"--context", a.kubeContext, "--namespace", a.namespace}
	return append(out, args...)
}

func (a *Applier) notify(t Transition) {
	if a.Observer != nil {
		a.Observer(t)
	}
}

// parseApplied decodes the `kubectl apply -o json` output, which is either a
// single object or a List.
func parseApplied(data []byte) ([]Resource, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding kubectl output: %w", err)
	}
	obj := &unstructured.Unstructured{Object: raw}
	if !obj.IsList() {
		return []Resource{toResource(obj)}, nil
	}
	list, err := obj.ToList()
	if err != nil {
		return nil, fmt.Errorf("decoding kubectl output: %w", err)
	}
	resources := make([]Resource, 0, len(list.Items))
	for i := range list.Items {
		resources = append(resources, toResource(&list.Items[i]))
	}
	return resources, nil
}

func toResource(obj *unstructured.Unstructured) Resource {
	return Resource{Kind: obj.GetKind(), Namespace: obj.GetNamespace(), Name: obj.GetName()}
}
