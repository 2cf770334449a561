package config

import (
	"time"
)

// Config is the top-level configuration structure for coffeectl.
type Config struct {
	Cluster   ClusterConfig     `yaml:"cluster"`
	Namespace string            `yaml:"namespace,omitempty"`
	Images    []ImageDefinition `yaml:"images,omitempty"`
	Tiers     []TierDefinition  `yaml:"tiers,omitempty"`
	Retry     RetryPolicy       `yaml:"retry"`
	Service   ServiceConfig     `yaml:"service"`
	Database  DatabaseConfig    `yaml:"database"`
	Smoke     SmokeConfig       `yaml:"smoke"`
	Load      LoadTestConfig    `yaml:"load"`
	Events    EventsConfig      `yaml:"events"`

	// AssumeYes skips interactive confirmation prompts.
	AssumeYes bool `yaml:"assumeYes,omitempty"`
}

// Backend identifies the local cluster flavour coffeectl provisions.
type Backend string

const (
	BackendDockerDesktop Backend = "docker-desktop"
	BackendMinikube      Backend = "minikube"
	BackendKind          Backend = "kind"
)

// Backends lists every supported backend in display order.
var Backends = []Backend{BackendKind, BackendMinikube, BackendDockerDesktop}

// Valid reports whether b is one of the supported backends.
func (b Backend) Valid() bool {
	for _, known := range Backends {
		if b == known {
			return true
		}
	}
	return false
}

// ClusterConfig selects the cluster backend and the cluster name.
type ClusterConfig struct {
	Name    string  `yaml:"name,omitempty"`
	Backend Backend `yaml:"backend,omitempty"`
	// Context overrides the kubeconfig context derived from the backend.
	Context string `yaml:"context,omitempty"`
}

// KubeContext returns the kubeconfig context that points at the cluster.
// kind prefixes its contexts with "kind-", minikube names them after the
// profile and Docker Desktop always uses "docker-desktop".
func (c ClusterConfig) KubeContext() string {
	if c.Context != "" {
		return c.Context
	}
	switch c.Backend {
	case BackendDockerDesktop:
		return "docker-desktop"
	case BackendMinikube:
		return c.Name
	case BackendKind:
		return "kind-" + c.Name
	default:
		return ""
	}
}

// ImageDefinition describes a locally built container image.
type ImageDefinition struct {
	Name       string `yaml:"name"`                 // e.g. "coffee-queue-app:latest"
	Context    string `yaml:"context,omitempty"`    // docker build context directory
	Dockerfile string `yaml:"dockerfile,omitempty"` // path to the Dockerfile, relative to the working directory
}

// WaitKind selects how a tier's readiness is determined.
type WaitKind string

const (
	WaitNone       WaitKind = "none"
	WaitPods       WaitKind = "pods"
	WaitDeployment WaitKind = "deployment"
)

// WaitDefinition is the readiness condition of a tier.
type WaitDefinition struct {
	Kind       WaitKind      `yaml:"kind,omitempty"`
	Selector   string        `yaml:"selector,omitempty"`   // label selector, used by kind=pods and for diagnostics
	Deployment string        `yaml:"deployment,omitempty"` // deployment name, used by kind=deployment
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// TierDefinition is an ordered group of manifests applied and verified together.
type TierDefinition struct {
	Name      string         `yaml:"name"`
	Manifests []string       `yaml:"manifests"`
	Wait      WaitDefinition `yaml:"wait"`
}

// RetryPolicy bounds how often a tier's readiness wait is attempted.
type RetryPolicy struct {
	Attempts     int           `yaml:"attempts,omitempty"`
	InitialDelay time.Duration `yaml:"initialDelay,omitempty"`
	Factor       float64       `yaml:"factor,omitempty"`
}

// ServiceConfig locates the application's HTTP service inside the cluster.
type ServiceConfig struct {
	Name       string `yaml:"name,omitempty"`
	Deployment string `yaml:"deployment,omitempty"`
	Selector   string `yaml:"selector,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	LocalPort  int    `yaml:"localPort,omitempty"` // 0 picks a free port
}

// DatabaseConfig holds the connection parameters of the database tier.
type DatabaseConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Name     string `yaml:"name,omitempty"`
	SSLMode  string `yaml:"sslMode,omitempty"`
	// Service is the in-cluster service coffeectl port-forwards to when it
	// talks to the database itself.
	Service  string `yaml:"service,omitempty"`
	Selector string `yaml:"selector,omitempty"`
	// Verify makes deploy run a SQL round-trip once the database tier is ready.
	Verify bool `yaml:"verify,omitempty"`
}

// SmokeConfig parameterizes the smoke test.
type SmokeConfig struct {
	CustomerName string        `yaml:"customerName,omitempty"` // empty generates a unique name per run
	Timeout      time.Duration `yaml:"timeout,omitempty"`      // per request
	Retries      int           `yaml:"retries,omitempty"`
}

// LoadTestConfig parameterizes the load generator.
type LoadTestConfig struct {
	Requests    int    `yaml:"requests,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	Path        string `yaml:"path,omitempty"`
}

// EventsConfig controls event listings in status reports and diagnostics.
type EventsConfig struct {
	Limit int `yaml:"limit,omitempty"`
}

// Tier returns the tier with the given name.
func (c Config) Tier(name string) (TierDefinition, bool) {
	for _, t := range c.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return TierDefinition{}, false
}
