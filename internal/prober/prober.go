// Package prober verifies that the local tools and the target cluster are
// usable before anything is changed. Every failed check carries a
// remediation hint and ends the run; nothing is retried.
package prober

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coffeectl/internal/config"
	"coffeectl/internal/kube"
	"coffeectl/internal/runner"
	"coffeectl/pkg/logging"
)

// Check is the outcome of one probe.
type Check struct {
	Name   string `json:"name" yaml:"name"`
	OK     bool   `json:"ok" yaml:"ok"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Hint   string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// Report collects the checks run so far, in order.
type Report struct {
	Checks []Check `json:"checks" yaml:"checks"`
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// PrerequisiteError is returned for the first failed check.
type PrerequisiteError struct {
	Check Check
}

func (e *PrerequisiteError) Error() string {
	if e.Check.Detail == "" {
		return fmt.Sprintf("prerequisite %q not met", e.Check.Name)
	}
	return fmt.Sprintf("prerequisite %q not met: %s", e.Check.Name, e.Check.Detail)
}

// Hint is the operator-facing remediation text.
func (e *PrerequisiteError) Hint() string { return e.Check.Hint }

// loadKubeconfig is swapped in tests.
var loadKubeconfig = kube.GetStartingConfig

// Prober runs the prerequisite checks for one cluster configuration.
type Prober struct {
	runner  runner.Runner
	kube    kube.Manager
	cluster config.ClusterConfig
	// APITimeout bounds the API server round-trip.
	APITimeout time.Duration
}

// New returns a Prober for the configured cluster.
func New(cluster config.ClusterConfig, r runner.Runner, km kube.Manager) *Prober {
	return &Prober{
		runner:     r,
		kube:       km,
		cluster:    cluster,
		APITimeout: 10 * time.Second,
	}
}

type probe func(ctx context.Context) Check

// Run runs the tool checks followed by the cluster checks.
func (p *Prober) Run(ctx context.Context) (Report, error) {
	report, err := p.Tools(ctx)
	if err != nil {
		return report, err
	}
	clusterReport, err := p.Cluster(ctx)
	report.Checks = append(report.Checks, clusterReport.Checks...)
	return report, err
}

// Tools checks docker, the docker daemon, kubectl and the backend's own CLI.
// These are needed before a cluster can be provisioned.
func (p *Prober) Tools(ctx context.Context) (Report, error) {
	probes := []probe{p.checkDockerBinary, p.checkDockerDaemon, p.checkKubectl}
	switch p.cluster.Backend {
	case config.BackendKind:
		probes = append(probes, p.checkKind)
	case config.BackendMinikube:
		probes = append(probes, p.checkMinikube)
	}
	return p.run(ctx, probes)
}

// Cluster checks that the kube context exists and its API server answers
// with at least one Ready node.
func (p *Prober) Cluster(ctx context.Context) (Report, error) {
	return p.run(ctx, []probe{p.checkContext, p.checkAPIServer, p.checkNodes})
}

func (p *Prober) run(ctx context.Context, probes []probe) (Report, error) {
	var report Report
	for _, pr := range probes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c := pr(ctx)
		report.Checks = append(report.Checks, c)
		if !c.OK {
			logging.Debug("Prober", "Check %q failed: %s", c.Name, c.Detail)
			return report, &PrerequisiteError{Check: c}
		}
		logging.Debug("Prober", "Check %q passed: %s", c.Name, c.Detail)
	}
	return report, nil
}

func (p *Prober) checkDockerBinary(_ context.Context) Check {
	c := Check{Name: "docker installed"}
	path, err := p.runner.LookPath("docker")
	if err != nil {
		c.Detail = "docker not found on PATH"
		c.Hint = "install Docker Desktop or Docker Engine: https://docs.docker.com/get-docker/"
		return c
	}
	c.OK, c.Detail = true, path
	return c
}

// dockerServer is the subset of `docker version` server info coffeectl reads.
type dockerServer struct {
	Platform struct {
		Name string `json:"Name"`
	} `json:"Platform"`
	Version    string `json:"Version"`
	APIVersion string `json:"ApiVersion"`
	Os         string `json:"Os"`
	Arch       string `json:"Arch"`
}

func (p *Prober) checkDockerDaemon(ctx context.Context) Check {
	c := Check{Name: "docker daemon running"}
	hint := "start Docker Desktop (or the docker service) and retry"

	res, err := p.runner.Run(ctx, "docker", "version", "--format", "{{json .Server}}")
	var server *dockerServer
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(res.Stdout)), &server); jsonErr != nil || server == nil || server.Version == "" {
		c.Detail = "docker daemon is not reachable"
		if err != nil {
			c.Detail = fmt.Sprintf("%s: %s", c.Detail, firstLine(res.Stderr, err))
		}
		c.Hint = hint
		return c
	}
	c.OK = true
	c.Detail = fmt.Sprintf("server %s (API %s, %s/%s)", server.Version, server.APIVersion, server.Os, server.Arch)
	if server.Platform.Name != "" {
		c.Detail = server.Platform.Name + ", " + c.Detail
	}
	return c
}

type kubectlVersion struct {
	ClientVersion struct {
		GitVersion string `json:"gitVersion"`
	} `json:"clientVersion"`
}

func (p *Prober) checkKubectl(ctx context.Context) Check {
	c := Check{Name: "kubectl installed", Hint: "install kubectl: https://kubernetes.io/docs/tasks/tools/"}
	if _, err := p.runner.LookPath("kubectl"); err != nil {
		c.Detail = "kubectl not found on PATH"
		return c
	}
	res, err := p.runner.Run(ctx, "kubectl", "version", "--client", "-o", "json")
	if err != nil {
		c.Detail = "kubectl version failed: " + firstLine(res.Stderr, err)
		return c
	}
	var v kubectlVersion
	if err := json.Unmarshal([]byte(res.Stdout), &v); err != nil {
		c.Detail = fmt.Sprintf("unexpected kubectl version output: %v", err)
		return c
	}
	c.OK, c.Detail, c.Hint = true, "client "+v.ClientVersion.GitVersion, ""
	return c
}

func (p *Prober) checkKind(ctx context.Context) Check {
	c := Check{Name: "kind installed", Hint: "install kind: https://kind.sigs.k8s.io/docs/user/quick-start/#installation"}
	if _, err := p.runner.LookPath("kind"); err != nil {
		c.Detail = "kind not found on PATH"
		return c
	}
	res, err := p.runner.Run(ctx, "kind", "version")
	if err != nil {
		c.Detail = "kind version failed: " + firstLine(res.Stderr, err)
		return c
	}
	// "kind v0.23.0 go1.22.2 linux/amd64"
	fields := strings.Fields(res.Stdout)
	c.OK, c.Hint = true, ""
	if len(fields) >= 2 {
		c.Detail = fields[1]
	}
	return c
}

type minikubeVersion struct {
	MinikubeVersion string `json:"minikubeVersion"`
}

func (p *Prober) checkMinikube(ctx context.Context) Check {
	c := Check{Name: "minikube installed", Hint: "install minikube: https://minikube.sigs.k8s.io/docs/start/"}
	if _, err := p.runner.LookPath("minikube"); err != nil {
		c.Detail = "minikube not found on PATH"
		return c
	}
	res, err := p.runner.Run(ctx, "minikube", "version", "-o", "json")
	if err != nil {
		c.Detail = "minikube version failed: " + firstLine(res.Stderr, err)
		return c
	}
	var v minikubeVersion
	if err := json.Unmarshal([]byte(res.Stdout), &v); err != nil {
		c.Detail = fmt.Sprintf("unexpected minikube version output: %v", err)
		return c
	}
	c.OK, c.Detail, c.Hint = true, v.MinikubeVersion, ""
	return c
}

func (p *Prober) checkContext(_ context.Context) Check {
	name := p.cluster.KubeContext()
	c := Check{Name: "kube context configured"}
	ok, err := p.kube.ContextExists(name)
	if err != nil {
		c.Detail = err.Error()
		c.Hint = "check that your kubeconfig ($KUBECONFIG or ~/.kube/config) is readable"
		return c
	}
	if !ok {
		c.Detail = fmt.Sprintf("context %q not found in kubeconfig", name)
		c.Hint = p.missingClusterHint()
		return c
	}
	c.OK, c.Detail = true, name

	if kubeconfig, err := loadKubeconfig(); err == nil {
		if detected := kube.DetectBackend(kubeconfig, name); detected != "" && detected != p.cluster.Backend {
			logging.Warn("Prober", "Context %s looks like a %s cluster but the configured backend is %s", name, detected, p.cluster.Backend)
		}
	}
	return c
}

func (p *Prober) checkAPIServer(ctx context.Context) Check {
	name := p.cluster.KubeContext()
	c := Check{Name: "cluster reachable"}
	ctx, cancel := context.WithTimeout(ctx, p.APITimeout)
	defer cancel()

	version, err := p.kube.CheckAPIHealth(ctx, name)
	if err != nil {
		c.Detail = fmt.Sprintf("API server of %q did not answer: %v", name, err)
		c.Hint = p.unreachableHint()
		return c
	}
	c.OK, c.Detail = true, "Kubernetes "+version
	return c
}

func (p *Prober) checkNodes(ctx context.Context) Check {
	c := Check{Name: "nodes ready"}
	health, err := p.kube.GetClusterNodeHealth(ctx, p.cluster.KubeContext())
	if err != nil {
		c.Detail = err.Error()
		c.Hint = p.unreachableHint()
		return c
	}
	if health.ReadyNodes == 0 {
		c.Detail = fmt.Sprintf("0/%d nodes ready", health.TotalNodes)
		c.Hint = "wait for the cluster nodes to become Ready (kubectl get nodes)"
		return c
	}
	c.OK, c.Detail = true, fmt.Sprintf("%d/%d nodes ready", health.ReadyNodes, health.TotalNodes)
	return c
}

func (p *Prober) missingClusterHint() string {
	switch p.cluster.Backend {
	case config.BackendDockerDesktop:
		return "enable Kubernetes in Docker Desktop (Settings -> Kubernetes -> Enable Kubernetes)"
	default:
		return "create the cluster with `coffeectl cluster up`"
	}
}

func (p *Prober) unreachableHint() string {
	switch p.cluster.Backend {
	case config.BackendDockerDesktop:
		return "enable Kubernetes in Docker Desktop and wait until it reports 'Kubernetes is running'"
	case config.BackendMinikube:
		return fmt.Sprintf("start the cluster with `minikube start -p %s`", p.cluster.Name)
	case config.BackendKind:
		return fmt.Sprintf("check that the kind node container is running (`docker ps --filter name=%s-control-plane`) or recreate it with `coffeectl cluster up`", p.cluster.Name)
	default:
		return "check that the cluster is running and your kubeconfig credentials are valid"
	}
}

func firstLine(stderr string, err error) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return strings.SplitN(s, "\n", 2)[0]
	}
	return err.Error()
}
