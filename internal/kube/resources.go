package kube

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/duration"
	"k8s.io/client-go/kubernetes"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
)

// now is swapped in tests.
var now = time.Now

// IsPodReady reports whether the pod is running with its Ready condition true.
func IsPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// ListPods summarizes the pods matching selector. An empty selector lists
// every pod in the namespace.
func ListPods(ctx context.Context, clientset kubernetes.Interface, namespace, selector string) ([]PodSummary, error) {
	list, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	out := make([]PodSummary, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, summarizePod(&list.Items[i]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func summarizePod(pod *corev1.Pod) PodSummary {
	var ready int
	var restarts int32
	reason := pod.Status.Reason
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
		restarts += cs.RestartCount
		if reason == "" && cs.State.Waiting != nil {
			reason = cs.State.Waiting.Reason
		}
		if reason == "" && cs.State.Terminated != nil {
			reason = cs.State.Terminated.Reason
		}
	}
	if reason == "" && !IsPodReady(pod) {
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodScheduled && cond.Status == corev1.ConditionFalse {
				reason = cond.Reason
			}
		}
	}
	phase := string(pod.Status.Phase)
	if pod.DeletionTimestamp != nil {
		phase = "Terminating"
	}
	return PodSummary{
		Name:     pod.Name,
		Phase:    phase,
		Ready:    fmt.Sprintf("%d/%d", ready, len(pod.Spec.Containers)),
		Restarts: restarts,
		Node:     pod.Spec.NodeName,
		Age:      age(pod.CreationTimestamp),
		Reason:   reason,
	}
}

// ListServices summarizes the services in namespace.
func ListServices(ctx context.Context, clientset kubernetes.Interface, namespace string) ([]ServiceSummary, error) {
	list, err := clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list services in %s: %w", namespace, err)
	}
	out := make([]ServiceSummary, 0, len(list.Items))
	for _, svc := range list.Items {
		var ports []string
		for _, p := range svc.Spec.Ports {
			entry := fmt.Sprintf("%d/%s", p.Port, p.Protocol)
			if p.NodePort != 0 {
				entry = fmt.Sprintf("%d:%d/%s", p.Port, p.NodePort, p.Protocol)
			}
			ports = append(ports, entry)
		}
		out = append(out, ServiceSummary{
			Name:      svc.Name,
			Type:      string(svc.Spec.Type),
			ClusterIP: svc.Spec.ClusterIP,
			Ports:     strings.Join(ports, ","),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListDeployments summarizes the deployments in namespace.
func ListDeployments(ctx context.Context, clientset kubernetes.Interface, namespace string) ([]DeploymentSummary, error) {
	list, err := clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments in %s: %w", namespace, err)
	}
	out := make([]DeploymentSummary, 0, len(list.Items))
	for _, d := range list.Items {
		var desired int32 = 1
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		out = append(out, DeploymentSummary{
			Name:      d.Name,
			Ready:     fmt.Sprintf("%d/%d", d.Status.ReadyReplicas, desired),
			UpToDate:  d.Status.UpdatedReplicas,
			Available: d.Status.AvailableReplicas,
			Age:       age(d.CreationTimestamp),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListHPAs summarizes the autoscaling/v2 HorizontalPodAutoscalers in namespace.
func ListHPAs(ctx context.Context, clientset kubernetes.Interface, namespace string) ([]HPASummary, error) {
	list, err := clientset.AutoscalingV2().HorizontalPodAutoscalers(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list autoscalers in %s: %w", namespace, err)
	}
	out := make([]HPASummary, 0, len(list.Items))
	for _, h := range list.Items {
		var minReplicas int32 = 1
		if h.Spec.MinReplicas != nil {
			minReplicas = *h.Spec.MinReplicas
		}
		out = append(out, HPASummary{
			Name:      h.Name,
			Reference: h.Spec.ScaleTargetRef.Kind + "/" + h.Spec.ScaleTargetRef.Name,
			Targets:   hpaTargets(h),
			Min:       minReplicas,
			Max:       h.Spec.MaxReplicas,
			Current:   h.Status.CurrentReplicas,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// hpaTargets renders resource metric targets the way kubectl does, e.g.
// "cpu: 12%/70%". Unknown current values print as <unknown>.
func hpaTargets(h autoscalingv2.HorizontalPodAutoscaler) string {
	current := map[corev1.ResourceName]*int32{}
	for _, m := range h.Status.CurrentMetrics {
		if m.Type == autoscalingv2.ResourceMetricSourceType && m.Resource != nil {
			current[m.Resource.Name] = m.Resource.Current.AverageUtilization
		}
	}
	var parts []string
	for _, m := range h.Spec.Metrics {
		if m.Type != autoscalingv2.ResourceMetricSourceType || m.Resource == nil || m.Resource.Target.AverageUtilization == nil {
			continue
		}
		cur := "<unknown>"
		if v := current[m.Resource.Name]; v != nil {
			cur = fmt.Sprintf("%d%%", *v)
		}
		parts = append(parts, fmt.Sprintf("%s: %s/%d%%", m.Resource.Name, cur, *m.Resource.Target.AverageUtilization))
	}
	if len(parts) == 0 {
		return "<none>"
	}
	return strings.Join(parts, ", ")
}

// PodUsages returns live CPU and memory usage per pod. It fails when the
// metrics API is not installed, which callers treat as non-fatal.
func PodUsages(ctx context.Context, metrics metricsclientset.Interface, namespace string) ([]PodUsage, error) {
	if metrics == nil {
		return nil, fmt.Errorf("metrics client not configured")
	}
	list, err := metrics.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("metrics API unavailable: %w", err)
	}
	out := make([]PodUsage, 0, len(list.Items))
	for _, pm := range list.Items {
		cpu := int64(0)
		mem := int64(0)
		for _, c := range pm.Containers {
			cpu += c.Usage.Cpu().MilliValue()
			mem += c.Usage.Memory().Value()
		}
		out = append(out, PodUsage{
			Pod:    pm.Name,
			CPU:    fmt.Sprintf("%dm", cpu),
			Memory: fmt.Sprintf("%dMi", mem/(1024*1024)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pod < out[j].Pod })
	return out, nil
}

// RecentEvents returns the newest limit events of namespace, oldest first.
// A non-positive limit returns every event.
func RecentEvents(ctx context.Context, clientset kubernetes.Interface, namespace string, limit int) ([]EventSummary, error) {
	list, err := clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list events in %s: %w", namespace, err)
	}
	out := make([]EventSummary, 0, len(list.Items))
	for _, ev := range list.Items {
		out = append(out, EventSummary{
			Time:    eventTime(ev),
			Type:    ev.Type,
			Reason:  ev.Reason,
			Object:  strings.ToLower(ev.InvolvedObject.Kind) + "/" + ev.InvolvedObject.Name,
			Message: strings.TrimSpace(ev.Message),
			Count:   ev.Count,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func eventTime(ev corev1.Event) time.Time {
	switch {
	case !ev.LastTimestamp.IsZero():
		return ev.LastTimestamp.Time
	case !ev.EventTime.IsZero():
		return ev.EventTime.Time
	case !ev.FirstTimestamp.IsZero():
		return ev.FirstTimestamp.Time
	default:
		return ev.CreationTimestamp.Time
	}
}

func age(ts metav1.Time) string {
	if ts.IsZero() {
		return "<unknown>"
	}
	return duration.HumanDuration(now().Sub(ts.Time))
}
