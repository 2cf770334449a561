package deploy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"coffeectl/internal/config"
	"coffeectl/internal/kube"
	"coffeectl/internal/manifest"
	"coffeectl/internal/portforward"
	"coffeectl/internal/prober"
	"coffeectl/internal/runner"
	"coffeectl/internal/smoketest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes/fake"
	clientportforward "k8s.io/client-go/tools/portforward"
)

const ns = config.DefaultNamespace

// forwarder pretends to tunnel to the pod while the test server listens on
// the advertised local port.
type forwarder struct {
	stopCh  <-chan struct{}
	readyCh chan struct{}
	local   uint16
	tunnels *tunnels
}

func (f *forwarder) ForwardPorts() error {
	close(f.readyCh)
	<-f.stopCh
	f.tunnels.stopped.Add(1)
	return nil
}

func (f *forwarder) GetPorts() ([]clientportforward.ForwardedPort, error) {
	return []clientportforward.ForwardedPort{{Local: f.local, Remote: config.AppPort}}, nil
}

// tunnels counts the forwards opened and the ones whose stop channel was
// closed again.
type tunnels struct {
	opened  atomic.Int32
	stopped atomic.Int32
}

func forwardTo(t *testing.T, srv *httptest.Server) *tunnels {
	t.Helper()
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	tun := &tunnels{}
	orig := portforward.NewForwarder
	t.Cleanup(func() { portforward.NewForwarder = orig })
	portforward.NewForwarder = func(_ *kube.Clients, _, _ string, _, _ int, stopCh <-chan struct{}, readyCh chan struct{}, _, _ io.Writer) (portforward.Forwarder, error) {
		tun.opened.Add(1)
		return &forwarder{stopCh: stopCh, readyCh: readyCh, local: uint16(port), tunnels: tun}, nil
	}
	return tun
}

func fastPolling(t *testing.T) {
	t.Helper()
	orig := kube.PollInterval
	kube.PollInterval = 5 * time.Millisecond
	t.Cleanup(func() { kube.PollInterval = orig })
}

func readyPod(name string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: labels},
		Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "main"}}},
		Status: corev1.PodStatus{
			Phase:             corev1.PodRunning,
			Conditions:        []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
			ContainerStatuses: []corev1.ContainerStatus{{Name: "main", Ready: true}},
		},
	}
}

func healthyCluster() *kube.Clients {
	appLabels := map[string]string{"app.kubernetes.io/name": config.AppName}
	return &kube.Clients{
		Context: "kind-coffee-queue",
		Kube: fake.NewSimpleClientset(
			readyPod("postgres-0", map[string]string{"app.kubernetes.io/name": config.DatabaseName}),
			readyPod("coffee-queue-abc", appLabels),
			&corev1.Service{
				ObjectMeta: metav1.ObjectMeta{Name: config.AppName, Namespace: ns},
				Spec: corev1.ServiceSpec{
					Selector: appLabels,
					Ports:    []corev1.ServicePort{{Port: config.AppPort, TargetPort: intstr.FromInt32(config.AppPort)}},
				},
			},
			&appsv1.Deployment{
				ObjectMeta: metav1.ObjectMeta{Name: config.AppName, Namespace: ns},
				Status: appsv1.DeploymentStatus{
					Replicas:          1,
					UpdatedReplicas:   1,
					AvailableReplicas: 1,
					Conditions:        []appsv1.DeploymentCondition{{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue}},
				},
			},
		),
	}
}

func toolRunner() *runner.Fake {
	return runner.NewFake().
		On("docker version", runner.Response{Stdout: `{"Version":"27.0.3","ApiVersion":"1.46","Os":"linux","Arch":"amd64"}`}).
		On("kubectl version", runner.Response{Stdout: `{"clientVersion":{"gitVersion":"v1.30.2"}}`}).
		On("kind version", runner.Response{Stdout: "kind v0.23.0 go1.22.2 linux/amd64\n"}).
		On("kind get clusters", runner.Response{Stdout: "coffee-queue\n"})
}

func testConfig() config.Config {
	cfg := config.GetDefaultConfig()
	for i := range cfg.Tiers {
		cfg.Tiers[i].Wait.Timeout = time.Second
	}
	cfg.Retry = config.RetryPolicy{Attempts: 1, Factor: 1}
	cfg.Smoke = config.SmokeConfig{CustomerName: "deploy-test", Timeout: time.Second}
	return cfg
}

func coffeeServer() (*httptest.Server, *[]string) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/order" {
			_, _ = w.Write([]byte(`{"id":7}`))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	return srv, &seen
}

func TestRun_FullPipeline(t *testing.T) {
	fastPolling(t)
	srv, seen := coffeeServer()
	defer srv.Close()
	tun := forwardTo(t, srv)

	r := toolRunner()
	km := &kube.FakeManager{
		Contexts:  []string{"kind-coffee-queue"},
		Version:   "v1.30.0",
		Nodes:     kube.NodeHealth{ReadyNodes: 1, TotalNodes: 1},
		ClientSet: healthyCluster(),
	}

	var events []string
	p := New(testConfig(), r, km)
	p.Reporter = func(e Event) { events = append(events, string(e.Step)+":"+string(e.Status)) }

	summary, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.False(t, summary.ClusterCreated)
	assert.Equal(t, []string{config.AppImage}, summary.Images)
	require.Len(t, summary.Tiers, 3)
	for _, tier := range summary.Tiers {
		assert.Equal(t, manifest.StateReady, tier.State)
	}
	require.NotNil(t, summary.Smoke)
	assert.Equal(t, "7", summary.Smoke.OrderID)
	assert.Equal(t, []string{"GET /health", "POST /order", "GET /status", "GET /numberOfCoffees"}, *seen)
	assert.EqualValues(t, 1, tun.opened.Load())
	assert.EqualValues(t, 1, tun.stopped.Load(), "the port-forward is released")
	assert.Len(t, summary.Checks, 7)
	assert.Equal(t, []string{"kind-coffee-queue"}, km.Switched)

	lines := r.Lines()
	assert.Contains(t, lines, "docker build -t coffee-queue-app:latest -f Dockerfile .")
	assert.Contains(t, lines, "kind load docker-image coffee-queue-app:latest --name coffee-queue")
	assert.Contains(t, lines, "kubectl --context kind-coffee-queue --namespace coffee-queue apply -f deploy/k8s/app.yaml -o json")

	assert.Equal(t, []string{
		"tools:started", "tools:done",
		"cluster:started", "cluster:done",
		"images:started", "images:done",
		"connectivity:started", "connectivity:done",
		"manifests:started",
		"manifests:Applied", "manifests:Ready",
		"manifests:Applied", "manifests:Ready",
		"manifests:Applied", "manifests:Ready",
		"manifests:done",
		"smoke test:started", "smoke test:done",
	}, events)
}

func TestRun_UnreachableClusterFailsBeforeApply(t *testing.T) {
	r := toolRunner()
	km := &kube.FakeManager{
		Contexts: []string{"kind-coffee-queue"},
		APIErr:   errors.New("dial tcp 127.0.0.1:6443: connect: connection refused"),
	}

	var failed []Step
	p := New(testConfig(), r, km)
	p.Reporter = func(e Event) {
		if e.Status == StatusFailed {
			failed = append(failed, e.Step)
		}
	}

	_, err := p.Run(context.Background(), Options{SkipProvision: true, SkipBuild: true})
	var prereq *prober.PrerequisiteError
	require.True(t, errors.As(err, &prereq))
	assert.Equal(t, "cluster reachable", prereq.Check.Name)
	assert.Equal(t, []Step{StepReach}, failed)

	for _, line := range r.Lines() {
		assert.NotContains(t, line, " apply ")
	}
}

func TestRun_MissingToolStopsEverything(t *testing.T) {
	r := toolRunner().Missing("kind")
	p := New(testConfig(), r, &kube.FakeManager{})

	_, err := p.Run(context.Background(), Options{})
	var prereq *prober.PrerequisiteError
	require.True(t, errors.As(err, &prereq))
	assert.Equal(t, "kind installed", prereq.Check.Name)
	assert.NotContains(t, r.Lines(), "kind get clusters")
}

func TestRun_SmokeFailure(t *testing.T) {
	fastPolling(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	tun := forwardTo(t, srv)

	km := &kube.FakeManager{
		Contexts:  []string{"kind-coffee-queue"},
		Version:   "v1.30.0",
		Nodes:     kube.NodeHealth{ReadyNodes: 1, TotalNodes: 1},
		ClientSet: healthyCluster(),
	}
	summary, err := New(testConfig(), toolRunner(), km).Run(context.Background(), Options{SkipBuild: true})

	var stepErr *smoketest.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, smoketest.StepHealth, stepErr.Step)

	require.NotNil(t, summary.Smoke)
	require.Len(t, summary.Smoke.Steps, 1)
	assert.Equal(t, http.StatusServiceUnavailable, summary.Smoke.Steps[0].Status)

	assert.EqualValues(t, 1, tun.opened.Load())
	assert.EqualValues(t, 1, tun.stopped.Load(), "the port-forward is released on failure")
}

func TestRun_SkipSmoke(t *testing.T) {
	fastPolling(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	tun := forwardTo(t, srv)

	km := &kube.FakeManager{
		Contexts:  []string{"kind-coffee-queue"},
		Version:   "v1.30.0",
		Nodes:     kube.NodeHealth{ReadyNodes: 1, TotalNodes: 1},
		ClientSet: healthyCluster(),
	}
	summary, err := New(testConfig(), toolRunner(), km).Run(context.Background(), Options{SkipBuild: true, SkipSmoke: true})
	require.NoError(t, err)
	assert.Nil(t, summary.Smoke)
	assert.Zero(t, tun.opened.Load())
}
