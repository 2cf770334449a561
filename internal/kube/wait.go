package kube

import (
	"context"
	"errors"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// ErrWaitTimeout is wrapped by every readiness wait that runs out of time.
var ErrWaitTimeout = errors.New("timed out waiting for readiness")

// PollInterval is how often readiness waits re-check the cluster.
var PollInterval = 2 * time.Second

const defaultWaitTimeout = 5 * time.Minute

// WaitForPodsReady blocks until at least one pod matches selector and every
// matching pod is Ready. Terminating and completed pods are ignored.
func WaitForPodsReady(ctx context.Context, clientset kubernetes.Interface, namespace, selector string, timeout time.Duration) error {
	var last string
	err := wait.PollUntilContextTimeout(ctx, PollInterval, effectiveTimeout(timeout), true, func(ctx context.Context) (bool, error) {
		list, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil {
			// API hiccups are retried until the deadline
			last = err.Error()
			return false, nil
		}
		var candidates, ready int
		for i := range list.Items {
			pod := &list.Items[i]
			if pod.DeletionTimestamp != nil || pod.Status.Phase == corev1.PodSucceeded {
				continue
			}
			candidates++
			if IsPodReady(pod) {
				ready++
			}
		}
		if candidates == 0 {
			last = fmt.Sprintf("no pods match %q", selector)
			return false, nil
		}
		last = fmt.Sprintf("%d/%d pods ready", ready, candidates)
		return ready == candidates, nil
	})
	return waitResult(ctx, err, timeout, fmt.Sprintf("pods %q in %s", selector, namespace), last)
}

// WaitForDeploymentAvailable blocks until the deployment reports the
// Available condition for its current generation.
func WaitForDeploymentAvailable(ctx context.Context, clientset kubernetes.Interface, namespace, name string, timeout time.Duration) error {
	var last string
	err := wait.PollUntilContextTimeout(ctx, PollInterval, effectiveTimeout(timeout), true, func(ctx context.Context) (bool, error) {
		d, err := clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			last = err.Error()
			return false, nil
		}
		ok, detail := DeploymentAvailable(d)
		last = detail
		return ok, nil
	})
	return waitResult(ctx, err, timeout, fmt.Sprintf("deployment %s/%s", namespace, name), last)
}

// DeploymentAvailable reports whether d has fully rolled out its latest
// generation and is Available, with a short explanation when it is not.
// Old replicas of a rolling update keep the Available condition true, so
// the updated and total replica counts must match the desired count too.
func DeploymentAvailable(d *appsv1.Deployment) (bool, string) {
	if d.Status.ObservedGeneration < d.Generation {
		return false, "waiting for the controller to observe the latest generation"
	}
	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}
	if d.Status.UpdatedReplicas < desired {
		return false, fmt.Sprintf("%d/%d replicas updated", d.Status.UpdatedReplicas, desired)
	}
	if d.Status.Replicas > d.Status.UpdatedReplicas {
		return false, fmt.Sprintf("%d old replica(s) pending termination", d.Status.Replicas-d.Status.UpdatedReplicas)
	}
	for _, cond := range d.Status.Conditions {
		if cond.Type != appsv1.DeploymentAvailable {
			continue
		}
		if cond.Status == corev1.ConditionTrue {
			return true, fmt.Sprintf("%d/%d replicas available", d.Status.AvailableReplicas, d.Status.Replicas)
		}
		return false, cond.Message
	}
	return false, "no Available condition reported yet"
}

func effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultWaitTimeout
	}
	return timeout
}

func waitResult(parent context.Context, err error, timeout time.Duration, what, last string) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if wait.Interrupted(err) {
		if last == "" {
			return fmt.Errorf("%w: %s after %s", ErrWaitTimeout, what, effectiveTimeout(timeout))
		}
		return fmt.Errorf("%w: %s after %s (%s)", ErrWaitTimeout, what, effectiveTimeout(timeout), last)
	}
	return err
}
