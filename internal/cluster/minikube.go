package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"coffeectl/internal/config"
	"coffeectl/internal/runner"
)

// minikube exits with this code when the profile does not exist.
const minikubeExitProfileNotFound = 85

type minikube struct {
	name    string
	context string
	runner  runner.Runner
}

// minikubeStatus is `minikube status -o json` for a single-node profile.
type minikubeStatus struct {
	Name       string `json:"Name"`
	Host       string `json:"Host"`
	Kubelet    string `json:"Kubelet"`
	APIServer  string `json:"APIServer"`
	Kubeconfig string `json:"Kubeconfig"`
}

func (m *minikube) Backend() config.Backend { return config.BackendMinikube }
func (m *minikube) Name() string            { return m.name }
func (m *minikube) ContextName() string     { return m.context }
func (m *minikube) SharesHostImages() bool  { return false }

func (m *minikube) Status(ctx context.Context) (Status, error) {
	// status exits non-zero whenever a component is not running, so the
	// JSON on stdout is authoritative rather than the exit code.
	res, err := m.runner.Run(ctx, "minikube", "-p", m.name, "status", "-o", "json")
	if runner.ExitCode(err) == minikubeExitProfileNotFound {
		return Status{}, nil
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		if err != nil {
			return Status{}, provisionErr(config.BackendMinikube, "query status of "+m.name, res, err)
		}
		return Status{}, nil
	}
	var st minikubeStatus
	if jsonErr := json.Unmarshal([]byte(out), &st); jsonErr != nil {
		return Status{}, provisionErr(config.BackendMinikube, "parse status of "+m.name, res, fmt.Errorf("unexpected output: %w", jsonErr))
	}
	if st.Host == "" || st.Host == "Nonexistent" {
		return Status{}, nil
	}
	return Status{
		Exists:  true,
		Running: st.Host == "Running" && st.APIServer == "Running",
		Detail:  fmt.Sprintf("host %s, apiserver %s", st.Host, st.APIServer),
	}, nil
}

func (m *minikube) Create(ctx context.Context) error {
	res, err := m.runner.Run(ctx, "minikube", "start", "-p", m.name, "--wait", "all")
	if err != nil {
		pe := provisionErr(config.BackendMinikube, "start profile "+m.name, res, err)
		pe.Hint = "see `minikube logs -p " + m.name + "`; `minikube delete -p " + m.name + "` resets a broken profile"
		return pe
	}
	return nil
}

func (m *minikube) Delete(ctx context.Context) error {
	res, err := m.runner.Run(ctx, "minikube", "delete", "-p", m.name)
	if err != nil {
		return provisionErr(config.BackendMinikube, "delete profile "+m.name, res, err)
	}
	return nil
}

func (m *minikube) LoadImage(ctx context.Context, image string) error {
	res, err := m.runner.Run(ctx, "minikube", "-p", m.name, "image", "load", image)
	if err != nil {
		pe := provisionErr(config.BackendMinikube, "load image "+image, res, err)
		pe.Hint = "build the image first with `coffeectl build`"
		return pe
	}
	return nil
}
