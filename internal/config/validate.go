package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"k8s.io/apimachinery/pkg/labels"
)

// Validate checks the merged configuration and reports every problem at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Cluster.Name == "" {
		result = multierror.Append(result, fmt.Errorf("cluster.name must not be empty"))
	}
	if !c.Cluster.Backend.Valid() {
		result = multierror.Append(result, fmt.Errorf("cluster.backend %q is not one of %v", c.Cluster.Backend, Backends))
	}
	if c.Namespace == "" {
		result = multierror.Append(result, fmt.Errorf("namespace must not be empty"))
	}

	seen := map[string]bool{}
	for i, t := range c.Tiers {
		if t.Name == "" {
			result = multierror.Append(result, fmt.Errorf("tiers[%d]: name must not be empty", i))
			continue
		}
		if seen[t.Name] {
			result = multierror.Append(result, fmt.Errorf("tiers[%d]: duplicate tier %q", i, t.Name))
		}
		seen[t.Name] = true
		if len(t.Manifests) == 0 && t.Name != TierNamespace {
			result = multierror.Append(result, fmt.Errorf("tier %q: no manifests", t.Name))
		}
		switch t.Wait.Kind {
		case "", WaitNone:
		case WaitPods:
			if t.Wait.Selector == "" {
				result = multierror.Append(result, fmt.Errorf("tier %q: wait kind pods requires a selector", t.Name))
			}
		case WaitDeployment:
			if t.Wait.Deployment == "" {
				result = multierror.Append(result, fmt.Errorf("tier %q: wait kind deployment requires a deployment name", t.Name))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("tier %q: unknown wait kind %q", t.Name, t.Wait.Kind))
		}
		if t.Wait.Selector != "" {
			if _, err := labels.Parse(t.Wait.Selector); err != nil {
				result = multierror.Append(result, fmt.Errorf("tier %q: invalid selector: %w", t.Name, err))
			}
		}
		if t.Wait.Timeout < 0 {
			result = multierror.Append(result, fmt.Errorf("tier %q: negative timeout", t.Name))
		}
	}

	if c.Retry.Attempts < 1 {
		result = multierror.Append(result, fmt.Errorf("retry.attempts must be at least 1"))
	}
	if c.Retry.Factor != 0 && c.Retry.Factor < 1 {
		result = multierror.Append(result, fmt.Errorf("retry.factor must be >= 1"))
	}
	if c.Service.Name == "" || c.Service.Port <= 0 {
		result = multierror.Append(result, fmt.Errorf("service.name and service.port are required"))
	}
	if c.Service.Selector != "" {
		if _, err := labels.Parse(c.Service.Selector); err != nil {
			result = multierror.Append(result, fmt.Errorf("service.selector: %w", err))
		}
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("database.port %d out of range", c.Database.Port))
	}
	if c.Load.Concurrency < 0 || c.Load.Requests < 0 {
		result = multierror.Append(result, fmt.Errorf("load.requests and load.concurrency must not be negative"))
	}
	if c.Events.Limit < 0 {
		result = multierror.Append(result, fmt.Errorf("events.limit must not be negative"))
	}

	return result.ErrorOrNil()
}
