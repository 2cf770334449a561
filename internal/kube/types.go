package kube

import (
	"time"
)

// NodeHealth represents the health status of nodes in a cluster
type NodeHealth struct {
	ReadyNodes int
	TotalNodes int
	Error      error
}

// PodSummary is the condensed view of a pod used in reports and diagnostics.
type PodSummary struct {
	Name     string `json:"name" yaml:"name"`
	Phase    string `json:"phase" yaml:"phase"`
	Ready    string `json:"ready" yaml:"ready"` // e.g. "1/1"
	Restarts int32  `json:"restarts" yaml:"restarts"`
	Node     string `json:"node,omitempty" yaml:"node,omitempty"`
	Age      string `json:"age" yaml:"age"`
	// Reason explains why the pod is not ready, when it can be determined.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ServiceSummary is the condensed view of a service.
type ServiceSummary struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	ClusterIP string `json:"clusterIP" yaml:"clusterIP"`
	Ports     string `json:"ports" yaml:"ports"`
}

// DeploymentSummary is the condensed view of a deployment.
type DeploymentSummary struct {
	Name      string `json:"name" yaml:"name"`
	Ready     string `json:"ready" yaml:"ready"`
	UpToDate  int32  `json:"upToDate" yaml:"upToDate"`
	Available int32  `json:"available" yaml:"available"`
	Age       string `json:"age" yaml:"age"`
}

// HPASummary is the condensed view of a HorizontalPodAutoscaler.
type HPASummary struct {
	Name      string `json:"name" yaml:"name"`
	Reference string `json:"reference" yaml:"reference"`
	Targets   string `json:"targets" yaml:"targets"`
	Min       int32  `json:"minReplicas" yaml:"minReplicas"`
	Max       int32  `json:"maxReplicas" yaml:"maxReplicas"`
	Current   int32  `json:"replicas" yaml:"replicas"`
}

// PodUsage is the live resource usage of one pod, from metrics.k8s.io.
type PodUsage struct {
	Pod    string `json:"pod" yaml:"pod"`
	CPU    string `json:"cpu" yaml:"cpu"`
	Memory string `json:"memory" yaml:"memory"`
}

// EventSummary is the condensed view of an event.
type EventSummary struct {
	Time    time.Time `json:"time" yaml:"time"`
	Type    string    `json:"type" yaml:"type"`
	Reason  string    `json:"reason" yaml:"reason"`
	Object  string    `json:"object" yaml:"object"`
	Message string    `json:"message" yaml:"message"`
	Count   int32     `json:"count,omitempty" yaml:"count,omitempty"`
}
