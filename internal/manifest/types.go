package manifest

import (
	"fmt"
	"strings"
	"time"

	"coffeectl/internal/kube"
)

// State is the lifecycle position of one tier during a deploy.
type State string

const (
	StateNotApplied State = "NotApplied"
	StateApplied    State = "Applied"
	StateReady      State = "Ready"
	StateTimedOut   State = "TimedOut"
)

// Resource identifies one object reported by kubectl apply.
type Resource struct {
	Kind      string `json:"kind" yaml:"kind"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Name      string `json:"name" yaml:"name"`
}

func (r Resource) String() string {
	if r.Namespace == "" {
		return fmt.Sprintf("%s/%s", strings.ToLower(r.Kind), r.Name)
	}
	return fmt.Sprintf("%s/%s/%s", r.Namespace, strings.ToLower(r.Kind), r.Name)
}

// Transition is passed to the Observer whenever a tier changes state or a
// readiness attempt ends.
type Transition struct {
	Tier      string
	State     State
	Attempt   int
	Resources []Resource
	// Detail is the reason of a failed attempt.
	Detail string
}

// TierResult summarizes one tier of an Apply run.
type TierResult struct {
	Name      string        `json:"name" yaml:"name"`
	State     State         `json:"state" yaml:"state"`
	Resources []Resource    `json:"resources,omitempty" yaml:"resources,omitempty"`
	Attempts  int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// ApplyError is returned when kubectl rejects a manifest.
type ApplyError struct {
	Tier     string
	Manifest string
	Output   string
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("applying %s (tier %s): %v", e.Manifest, e.Tier, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// TierTimeoutError is returned when a tier did not become ready within its
// retry budget. Diagnostics describe the cluster at the moment of failure.
type TierTimeoutError struct {
	Tier        string
	Attempts    int
	Diagnostics kube.Diagnostics
	Err         error
}

func (e *TierTimeoutError) Error() string {
	return fmt.Sprintf("tier %s not ready after %d attempt(s): %v", e.Tier, e.Attempts, e.Err)
}

func (e *TierTimeoutError) Unwrap() error { return e.Err }
