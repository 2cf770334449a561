package teardown

import (
	"context"
	"errors"
	"testing"
	"time"

	"coffeectl/internal/cluster"
	"coffeectl/internal/config"
	"coffeectl/internal/kube"
	"coffeectl/internal/runner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
)

const ns = "coffee-queue"

type answer struct {
	yes       bool
	questions []string
}

func (a *answer) Confirm(q string) (bool, error) {
	a.questions = append(a.questions, q)
	return a.yes, nil
}

func newTeardown(t *testing.T, r *runner.Fake, cs *fake.Clientset, confirm Confirmer) *Teardown {
	t.Helper()
	p, err := cluster.New(config.ClusterConfig{Name: "coffee-queue", Backend: config.BackendKind}, r, &kube.FakeManager{})
	require.NoError(t, err)
	return &Teardown{
		Namespace:   ns,
		Provisioner: p,
		Clientset: func() (kubernetes.Interface, error) {
			if cs == nil {
				return nil, errors.New("no cluster")
			}
			return cs, nil
		},
		Confirmer: confirm,
	}
}

func clusterExists() *runner.Fake {
	return runner.NewFake().On("kind get clusters", runner.Response{Stdout: "coffee-queue\n"})
}

func TestRun_Declined(t *testing.T) {
	r := clusterExists()
	cs := fake.NewSimpleClientset(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: ns}})
	confirm := &answer{yes: false}

	_, err := newTeardown(t, r, cs, confirm).Run(context.Background(), Options{DeleteCluster: true})
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, []string{"Delete namespace coffee-queue and kind cluster coffee-queue?"}, confirm.questions)
	assert.Empty(t, r.Calls())

	_, err = cs.CoreV1().Namespaces().Get(context.Background(), ns, metav1.GetOptions{})
	assert.NoError(t, err, "namespace is untouched")
}

func TestRun_DeletesNamespace(t *testing.T) {
	r := clusterExists()
	cs := fake.NewSimpleClientset(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: ns}})
	confirm := &answer{yes: true}

	res, err := newTeardown(t, r, cs, confirm).Run(context.Background(), Options{WaitTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, Result{NamespaceDeleted: true}, res)
	assert.Equal(t, []string{"Delete namespace coffee-queue?"}, confirm.questions)
	assert.NotContains(t, r.Lines(), "kind delete cluster --name coffee-queue")

	_, err = cs.CoreV1().Namespaces().Get(context.Background(), ns, metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestRun_MissingNamespaceIsSuccess(t *testing.T) {
	td := newTeardown(t, clusterExists(), fake.NewSimpleClientset(), nil)
	td.AssumeYes = true

	res, err := td.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, res.NamespaceDeleted)
}

func TestRun_DeleteCluster(t *testing.T) {
	r := clusterExists()
	td := newTeardown(t, r, fake.NewSimpleClientset(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: ns}}), nil)
	td.AssumeYes = true

	res, err := td.Run(context.Background(), Options{DeleteCluster: true})
	require.NoError(t, err)
	assert.Equal(t, Result{NamespaceDeleted: true, ClusterDeleted: true}, res)
	assert.Contains(t, r.Lines(), "kind delete cluster --name coffee-queue")
}

func TestRun_AbsentClusterIsSuccess(t *testing.T) {
	r := runner.NewFake().On("kind get clusters", runner.Response{Stderr: "No kind clusters found.\n"})
	td := newTeardown(t, r, nil, nil)
	td.AssumeYes = true

	res, err := td.Run(context.Background(), Options{DeleteCluster: true})
	require.NoError(t, err, "the clientset is never requested")
	assert.Equal(t, Result{}, res)
	assert.NotContains(t, r.Lines(), "kind delete cluster --name coffee-queue")
}

func TestRun_StoppedClusterIsStillDeleted(t *testing.T) {
	stopped := `{"Name":"coffee-queue","Host":"Stopped","Kubelet":"Stopped","APIServer":"Stopped","Kubeconfig":"Stopped"}`
	r := runner.NewFake().On("minikube -p coffee-queue status", runner.Response{ExitCode: 7, Stdout: stopped})
	p, err := cluster.New(config.ClusterConfig{Name: "coffee-queue", Backend: config.BackendMinikube}, r, &kube.FakeManager{})
	require.NoError(t, err)

	connected := false
	td := &Teardown{
		Namespace:   ns,
		Provisioner: p,
		Clientset: func() (kubernetes.Interface, error) {
			connected = true
			return nil, errors.New("dial tcp 192.168.49.2:8443: connect: connection refused")
		},
		AssumeYes: true,
	}

	res, err := td.Run(context.Background(), Options{DeleteCluster: true, WaitTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, Result{ClusterDeleted: true, ClusterStopped: true}, res)
	assert.False(t, connected, "a stopped cluster is not contacted")
	assert.Contains(t, r.Lines(), "minikube delete -p coffee-queue")
}

func TestIsYes(t *testing.T) {
	for _, in := range []string{"y", "Y", "yes", " YES \n"} {
		assert.True(t, IsYes(in), in)
	}
	for _, in := range []string{"", "n", "no", "yep", "sure"} {
		assert.False(t, IsYes(in), in)
	}
}
