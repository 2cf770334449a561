package portforward

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"coffeectl/internal/kube"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/tools/portforward"
)

type fakeForwarder struct {
	stopCh  <-chan struct{}
	readyCh chan struct{}
	local   uint16
	remote  uint16
	failErr error
	never   bool
}

func (f *fakeForwarder) ForwardPorts() error {
	if f.failErr != nil {
		return f.failErr
	}
	if !f.never {
		close(f.readyCh)
	}
	<-f.stopCh
	return nil
}

func (f *fakeForwarder) GetPorts() ([]portforward.ForwardedPort, error) {
	return []portforward.ForwardedPort{{Local: f.local, Remote: f.remote}}, nil
}

func testClients() *kube.Clients {
	labels := map[string]string{"app.kubernetes.io/name": "coffee-queue"}
	return &kube.Clients{Kube: fake.NewSimpleClientset(
		&corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: "coffee-queue", Namespace: "coffee-queue"},
			Spec: corev1.ServiceSpec{
				Selector: labels,
				Ports:    []corev1.ServicePort{{Port: 8080, TargetPort: intstr.FromInt32(8080)}},
			},
		},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "coffee-queue-abc", Namespace: "coffee-queue", Labels: labels},
			Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "app"}}},
			Status: corev1.PodStatus{
				Phase:             corev1.PodRunning,
				Conditions:        []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
				ContainerStatuses: []corev1.ContainerStatus{{Name: "app", Ready: true}},
			},
		},
	)}
}

var target = Target{Namespace: "coffee-queue", Service: "coffee-queue", Port: 8080}

// useForwarder installs a NewForwarder that hands out f (wired to the
// session's channels) and returns a pointer to it for inspection.
func useForwarder(t *testing.T, f *fakeForwarder) {
	t.Helper()
	orig := NewForwarder
	t.Cleanup(func() { NewForwarder = orig })
	NewForwarder = func(_ *kube.Clients, namespace, pod string, localPort, remotePort int, stopCh <-chan struct{}, readyCh chan struct{}, _, _ io.Writer) (Forwarder, error) {
		assert.Equal(t, "coffee-queue", namespace)
		assert.Equal(t, "coffee-queue-abc", pod)
		f.stopCh = stopCh
		f.readyCh = readyCh
		f.remote = uint16(remotePort)
		return f, nil
	}
}

func TestOpen_ReadyAndClose(t *testing.T) {
	f := &fakeForwarder{local: 40123}
	useForwarder(t, f)

	s, err := Open(context.Background(), testClients(), target)
	require.NoError(t, err)
	assert.Equal(t, 40123, s.LocalPort())
	assert.Equal(t, "http://127.0.0.1:40123", s.LocalURL())
	assert.Equal(t, "coffee-queue-abc", s.Pod())
	assert.Equal(t, uint16(8080), f.remote)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is safe")
	select {
	case <-s.Done():
	default:
		t.Fatal("session should be done after Close")
	}
}

func TestOpen_ForwarderFails(t *testing.T) {
	useForwarder(t, &fakeForwarder{failErr: errors.New("pod not running")})

	_, err := Open(context.Background(), testClients(), target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pod not running")
}

func TestOpen_ReadyTimeout(t *testing.T) {
	orig := ReadyTimeout
	ReadyTimeout = 30 * time.Millisecond
	defer func() { ReadyTimeout = orig }()

	useForwarder(t, &fakeForwarder{never: true})

	_, err := Open(context.Background(), testClients(), target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestOpen_UnknownService(t *testing.T) {
	useForwarder(t, &fakeForwarder{local: 1})

	_, err := Open(context.Background(), testClients(), Target{Namespace: "coffee-queue", Service: "postgres", Port: 5432})
	assert.Error(t, err)
}

func TestOpen_ContextCancelReleasesSession(t *testing.T) {
	useForwarder(t, &fakeForwarder{local: 40124})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, testClients(), target)
	require.NoError(t, err)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not released after context cancellation")
	}
}

func TestWith_AlwaysCloses(t *testing.T) {
	useForwarder(t, &fakeForwarder{local: 40125})

	var session *Session
	boom := errors.New("smoke failed")
	err := With(context.Background(), testClients(), target, func(s *Session) error {
		session = s
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, session)
	select {
	case <-session.Done():
	default:
		t.Fatal("With must close the session even when fn fails")
	}
}
