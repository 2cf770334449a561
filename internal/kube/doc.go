// Package kube provides the Kubernetes operations coffeectl needs on top of
// client-go.
//
// # Core Components
//
// Manager: resolves kubeconfig contexts and hands out cached clientsets
// (typed and metrics.k8s.io) per context.
//
// Context Management: reading, listing and switching the current kubeconfig
// context. The functions are package variables so tests can replace them.
//
// Readiness: WaitForPodsReady and WaitForDeploymentAvailable poll until the
// condition holds or the timeout expires, in which case the returned error
// wraps ErrWaitTimeout. CollectDiagnostics gathers pod states, recent events
// and log tails to explain a failed wait.
//
// Inspection: ListPods, ListServices, ListDeployments, ListHPAs, PodUsages and
// RecentEvents produce the condensed summaries shown by status reports.
//
// Operations: EnsureNamespace and DeleteNamespace (both idempotent),
// ScaleDeployment, StreamLogs and ResolvePodForService for port-forwarding.
package kube
