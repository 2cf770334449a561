package kube

import (
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// diagnosticLogLines is how much of a failing pod's log is kept.
const diagnosticLogLines = 20

// Diagnostics captures cluster state for a tier that did not become ready.
type Diagnostics struct {
	Namespace string
	Selector  string
	Pods      []PodSummary
	Events    []EventSummary
	// Logs maps pod name to the tail of its log, for pods that are not ready.
	Logs map[string]string
	// Errors lists what could not be collected.
	Errors []string
}

// CollectDiagnostics gathers pod states, recent events and log tails for the
// pods matching selector. It never fails; collection problems end up in
// Diagnostics.Errors.
func CollectDiagnostics(ctx context.Context, clientset kubernetes.Interface, namespace, selector string, eventLimit int) Diagnostics {
	d := Diagnostics{Namespace: namespace, Selector: selector, Logs: map[string]string{}}

	list, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		d.Errors = append(d.Errors, err.Error())
	} else {
		for i := range list.Items {
			pod := &list.Items[i]
			d.Pods = append(d.Pods, summarizePod(pod))
			if IsPodReady(pod) || len(pod.Spec.Containers) == 0 {
				continue
			}
			tail, err := podLogTail(ctx, clientset, namespace, pod.Name, diagnosticLogLines)
			if err != nil {
				d.Errors = append(d.Errors, fmt.Sprintf("logs of %s: %v", pod.Name, err))
				continue
			}
			if tail != "" {
				d.Logs[pod.Name] = tail
			}
		}
	}

	events, err := RecentEvents(ctx, clientset, namespace, eventLimit)
	if err != nil {
		d.Errors = append(d.Errors, err.Error())
	}
	d.Events = events
	return d
}

func podLogTail(ctx context.Context, clientset kubernetes.Interface, namespace, pod string, lines int64) (string, error) {
	stream, err := clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{TailLines: &lines}).Stream(ctx)
	if err != nil {
		return "", err
	}
	defer stream.Close()
	data, err := io.ReadAll(io.LimitReader(stream, 64*1024))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// String renders the diagnostics as an indented plain-text block.
func (d Diagnostics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pods (%s):\n", d.Selector)
	if len(d.Pods) == 0 {
		b.WriteString("  <none>\n")
	}
	for _, p := range d.Pods {
		fmt.Fprintf(&b, "  %s  %s  ready=%s  restarts=%d", p.Name, p.Phase, p.Ready, p.Restarts)
		if p.Reason != "" {
			fmt.Fprintf(&b, "  reason=%s", p.Reason)
		}
		b.WriteString("\n")
	}
	if len(d.Events) > 0 {
		b.WriteString("recent events:\n")
		for _, e := range d.Events {
			fmt.Fprintf(&b, "  %s  %s  %s  %s\n", e.Type, e.Reason, e.Object, e.Message)
		}
	}
	for pod, tail := range d.Logs {
		fmt.Fprintf(&b, "logs of %s:\n", pod)
		for _, line := range strings.Split(tail, "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	for _, e := range d.Errors {
		fmt.Fprintf(&b, "could not collect: %s\n", e)
	}
	return b.String()
}
