package kube

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
)

// EnsureNamespace creates namespace with labels unless it already exists.
// created reports whether this call created it.
func EnsureNamespace(ctx context.Context, clientset kubernetes.Interface, namespace string, labels map[string]string) (created bool, err error) {
	_, err = clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err == nil {
		return false, nil
	}
	if !apierrors.IsNotFound(err) {
		return false, fmt.Errorf("failed to get namespace %s: %w", namespace, err)
	}
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace, Labels: labels}}
	_, err = clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create namespace %s: %w", namespace, err)
	}
	return true, nil
}

// DeleteNamespace deletes namespace in the background. A namespace that does
// not exist is not an error; deleted reports whether anything was removed.
func DeleteNamespace(ctx context.Context, clientset kubernetes.Interface, namespace string) (deleted bool, err error) {
	policy := metav1.DeletePropagationBackground
	err = clientset.CoreV1().Namespaces().Delete(ctx, namespace, metav1.DeleteOptions{PropagationPolicy: &policy})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return true, nil
}

// WaitNamespaceGone blocks until namespace no longer exists.
func WaitNamespaceGone(ctx context.Context, clientset kubernetes.Interface, namespace string, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, PollInterval, effectiveTimeout(timeout), true, func(ctx context.Context) (bool, error) {
		_, err := clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, nil
	})
	return waitResult(ctx, err, timeout, "namespace "+namespace+" to be deleted", "")
}

// ScaleDeployment sets the replica count of a deployment, retrying on
// update conflicts. It returns the previous replica count.
func ScaleDeployment(ctx context.Context, clientset kubernetes.Interface, namespace, name string, replicas int32) (int32, error) {
	if replicas < 0 {
		return 0, fmt.Errorf("replicas must not be negative, got %d", replicas)
	}
	var previous int32
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		d, err := clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		previous = 1
		if d.Spec.Replicas != nil {
			previous = *d.Spec.Replicas
		}
		d.Spec.Replicas = &replicas
		_, err = clientset.AppsV1().Deployments(namespace).Update(ctx, d, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scale deployment %s/%s: %w", namespace, name, err)
	}
	return previous, nil
}

// LogOptions controls StreamLogs.
type LogOptions struct {
	Follow    bool
	TailLines int64 // 0 streams the whole log
	Container string
}

// StreamLogs copies the logs of every pod matching selector to w, each line
// prefixed with the pod name. With Follow set it returns when ctx is done or
// every stream ends.
func StreamLogs(ctx context.Context, clientset kubernetes.Interface, namespace, selector string, opts LogOptions, w io.Writer) error {
	list, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return fmt.Errorf("failed to list pods for %q: %w", selector, err)
	}
	if len(list.Items) == 0 {
		return fmt.Errorf("no pods match %q in %s", selector, namespace)
	}
	names := make([]string, 0, len(list.Items))
	for _, p := range list.Items {
		names = append(names, p.Name)
	}
	sort.Strings(names)

	podOpts := &corev1.PodLogOptions{Follow: opts.Follow, Container: opts.Container}
	if opts.TailLines > 0 {
		tail := opts.TailLines
		podOpts.TailLines = &tail
	}

	var mu sync.Mutex
	errs := make([]error, len(names))
	if !opts.Follow {
		for i, name := range names {
			errs[i] = copyPodLog(ctx, clientset, namespace, name, podOpts, w, &mu)
		}
	} else {
		var wg sync.WaitGroup
		for i, name := range names {
			wg.Add(1)
			go func(i int, name string) {
				defer wg.Done()
				errs[i] = copyPodLog(ctx, clientset, namespace, name, podOpts, w, &mu)
			}(i, name)
		}
		wg.Wait()
	}

	for _, err := range errs {
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

func copyPodLog(ctx context.Context, clientset kubernetes.Interface, namespace, pod string, opts *corev1.PodLogOptions, w io.Writer, mu *sync.Mutex) error {
	stream, err := clientset.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return fmt.Errorf("failed to open logs of %s: %w", pod, err)
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		mu.Lock()
		_, err := fmt.Fprintf(w, "[%s] %s\n", pod, scanner.Text())
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ResolvePodForService picks a ready pod backing the named service, which is
// what a port-forward to the service actually connects to.
func ResolvePodForService(ctx context.Context, clientset kubernetes.Interface, namespace, service string) (string, error) {
	svc, err := clientset.CoreV1().Services(namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get service %s/%s: %w", namespace, service, err)
	}
	if len(svc.Spec.Selector) == 0 {
		return "", fmt.Errorf("service %s/%s has no selector, cannot find backing pods", namespace, service)
	}

	selector := labels.SelectorFromSet(svc.Spec.Selector)
	podList, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return "", fmt.Errorf("failed to list pods for service %s/%s: %w", namespace, service, err)
	}
	if len(podList.Items) == 0 {
		return "", fmt.Errorf("no pods found for service %s/%s with selector %s", namespace, service, selector.String())
	}

	for i := range podList.Items {
		pod := &podList.Items[i]
		if pod.DeletionTimestamp == nil && IsPodReady(pod) && containersReady(pod) {
			return pod.Name, nil
		}
	}
	return "", fmt.Errorf("no ready pods found for service %s/%s (selector: %s)", namespace, service, selector.String())
}

// TargetPort resolves the pod port a service port forwards to. Named target
// ports are looked up in the pod's container ports.
func TargetPort(ctx context.Context, clientset kubernetes.Interface, namespace, service, pod string, servicePort int) (int, error) {
	svc, err := clientset.CoreV1().Services(namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to get service %s/%s: %w", namespace, service, err)
	}
	for _, sp := range svc.Spec.Ports {
		if int(sp.Port) != servicePort {
			continue
		}
		if sp.TargetPort.IntValue() > 0 {
			return sp.TargetPort.IntValue(), nil
		}
		if sp.TargetPort.StrVal == "" {
			return servicePort, nil
		}
		p, err := clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
		if err != nil {
			return 0, fmt.Errorf("failed to get pod %s: %w", pod, err)
		}
		for _, c := range p.Spec.Containers {
			for _, cp := range c.Ports {
				if cp.Name == sp.TargetPort.StrVal {
					return int(cp.ContainerPort), nil
				}
			}
		}
		return 0, fmt.Errorf("pod %s exposes no port named %q", pod, sp.TargetPort.StrVal)
	}
	return 0, fmt.Errorf("service %s/%s has no port %d", namespace, service, servicePort)
}

func containersReady(pod *corev1.Pod) bool {
	if len(pod.Status.ContainerStatuses) == 0 && len(pod.Spec.Containers) > 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}
