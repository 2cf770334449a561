package config

import (
	"time"
)

// Label selectors and names shared by the manifests under deploy/k8s.
// Every command resolves pods through these, never through ad-hoc selectors.
const (
	DefaultClusterName = "coffee-queue"
	DefaultNamespace   = "coffee-queue"

	AppName     = "coffee-queue"
	AppSelector = "app.kubernetes.io/name=coffee-queue"
	AppImage    = "coffee-queue-app:latest"
	AppPort     = 8080

	DatabaseName     = "postgres"
	DatabaseSelector = "app.kubernetes.io/name=postgres"
	DatabasePort     = 5432

	TierNamespace   = "namespace"
	TierDatabase    = "database"
	TierApplication = "application"
)

// GetDefaultConfig returns the built-in configuration: a kind cluster named
// coffee-queue with the three-tier manifest set under deploy/k8s.
func GetDefaultConfig() Config {
	return Config{
		Cluster: ClusterConfig{
			Name:    DefaultClusterName,
			Backend: BackendKind,
		},
		Namespace: DefaultNamespace,
		Images: []ImageDefinition{
			{Name: AppImage, Context: ".", Dockerfile: "Dockerfile"},
		},
		Tiers: []TierDefinition{
			{
				Name: TierNamespace,
				Wait: WaitDefinition{Kind: WaitNone},
			},
			{
				Name:      TierDatabase,
				Manifests: []string{"deploy/k8s/postgres.yaml"},
				Wait: WaitDefinition{
					Kind:     WaitPods,
					Selector: DatabaseSelector,
					Timeout:  180 * time.Second,
				},
			},
			{
				Name:      TierApplication,
				Manifests: []string{"deploy/k8s/app.yaml"},
				Wait: WaitDefinition{
					Kind:       WaitDeployment,
					Deployment: AppName,
					Selector:   AppSelector,
					Timeout:    300 * time.Second,
				},
			},
		},
		Retry: RetryPolicy{
			Attempts:     3,
			InitialDelay: 5 * time.Second,
			Factor:       2,
		},
		Service: ServiceConfig{
			Name:       AppName,
			Deployment: AppName,
			Selector:   AppSelector,
			Port:       AppPort,
		},
		Database: DatabaseConfig{
			Host:     DatabaseName,
			Port:     DatabasePort,
			User:     "coffee",
			Password: "coffee",
			Name:     "coffee",
			SSLMode:  "disable",
			Service:  DatabaseName,
			Selector: DatabaseSelector,
		},
		Smoke: SmokeConfig{
			Timeout: 10 * time.Second,
		},
		Load: LoadTestConfig{
			Requests:    200,
			Concurrency: 20,
			Path:        "/numberOfCoffees",
		},
		Events: EventsConfig{
			Limit: 10,
		},
	}
}
