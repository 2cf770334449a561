package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"coffeectl/internal/kube"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
)

const ns = "coffee-queue"

func demoObjects() []runtime.Object {
	replicas := int32(2)
	return []runtime.Object{
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: ns}},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "coffee-queue-7d9f", Namespace: ns},
			Spec:       corev1.PodSpec{NodeName: "kind-control-plane", Containers: []corev1.Container{{Name: "app"}}},
			Status: corev1.PodStatus{
				Phase:             corev1.PodRunning,
				Conditions:        []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
				ContainerStatuses: []corev1.ContainerStatus{{Name: "app", Ready: true}},
			},
		},
		&corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: "coffee-queue", Namespace: ns},
			Spec: corev1.ServiceSpec{
				Type:      corev1.ServiceTypeClusterIP,
				ClusterIP: "10.96.12.1",
				Ports:     []corev1.ServicePort{{Port: 8080, Protocol: corev1.ProtocolTCP}},
			},
		},
		&appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: "coffee-queue", Namespace: ns},
			Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
			Status:     appsv1.DeploymentStatus{ReadyReplicas: 2, UpdatedReplicas: 2, AvailableReplicas: 2},
		},
		&corev1.Event{
			ObjectMeta:     metav1.ObjectMeta{Name: "ev1", Namespace: ns},
			InvolvedObject: corev1.ObjectReference{Kind: "Pod", Name: "coffee-queue-7d9f"},
			Type:           corev1.EventTypeNormal,
			Reason:         "Started",
			Message:        "Started container app",
			LastTimestamp:  metav1.NewTime(time.Now().Add(-time.Minute)),
		},
	}
}

func withUsage() *metricsfake.Clientset {
	metrics := metricsfake.NewSimpleClientset()
	metrics.PrependReactor("list", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, &metricsv1beta1.PodMetricsList{Items: []metricsv1beta1.PodMetrics{{
			ObjectMeta: metav1.ObjectMeta{Name: "coffee-queue-7d9f", Namespace: ns},
			Containers: []metricsv1beta1.ContainerMetrics{{
				Name: "app",
				Usage: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("25m"),
					corev1.ResourceMemory: resource.MustParse("64Mi"),
				},
			}},
		}}}, nil
	})
	return metrics
}

func TestCollect(t *testing.T) {
	clients := &kube.Clients{Context: "kind-coffee-queue", Kube: fake.NewSimpleClientset(demoObjects()...), Metrics: withUsage()}

	snap, err := NewReporter(clients, ns, 10).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "kind-coffee-queue", snap.Context)
	assert.False(t, snap.NamespaceMissing)
	require.Len(t, snap.Pods, 1)
	assert.Equal(t, "1/1", snap.Pods[0].Ready)
	require.Len(t, snap.Services, 1)
	require.Len(t, snap.Deployments, 1)
	assert.Equal(t, "2/2", snap.Deployments[0].Ready)
	assert.Empty(t, snap.Autoscalers)
	require.Len(t, snap.Usage, 1)
	assert.Equal(t, "25m", snap.Usage[0].CPU)
	assert.Empty(t, snap.UsageUnavailable)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "Started", snap.Events[0].Reason)
}

func TestCollect_WithoutMetrics(t *testing.T) {
	clients := &kube.Clients{Context: "docker-desktop", Kube: fake.NewSimpleClientset(demoObjects()...)}

	snap, err := NewReporter(clients, ns, 10).Collect(context.Background())
	require.NoError(t, err, "missing metrics are not an error")
	assert.Empty(t, snap.Usage)
	assert.Contains(t, snap.UsageUnavailable, "metrics-server")
	assert.Len(t, snap.Pods, 1)
}

func TestCollect_MissingNamespace(t *testing.T) {
	clients := &kube.Clients{Kube: fake.NewSimpleClientset()}

	snap, err := NewReporter(clients, ns, 10).Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.NamespaceMissing)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, snap, FormatTable))
	assert.Contains(t, buf.String(), "does not exist")
}

func TestCollect_PartialFailure(t *testing.T) {
	cs := fake.NewSimpleClientset(demoObjects()...)
	cs.PrependReactor("list", "services", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("services are forbidden")
	})
	clients := &kube.Clients{Kube: cs, Metrics: withUsage()}

	snap, err := NewReporter(clients, ns, 10).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "services are forbidden")
	assert.Len(t, snap.Pods, 1, "the rest of the snapshot is collected")
	assert.Len(t, snap.Deployments, 1)
}

func TestRender(t *testing.T) {
	clients := &kube.Clients{Context: "kind-coffee-queue", Kube: fake.NewSimpleClientset(demoObjects()...), Metrics: withUsage()}
	snap, err := NewReporter(clients, ns, 10).Collect(context.Background())
	require.NoError(t, err)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, snap, FormatTable))
		out := buf.String()
		for _, want := range []string{"Pods", "coffee-queue-7d9f", "10.96.12.1", "8080/TCP", "Autoscalers", "No items found", "64Mi", "Started container app"} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, snap, FormatJSON))
		var decoded Snapshot
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, snap.Pods, decoded.Pods)
		assert.Equal(t, snap.Usage, decoded.Usage)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, snap, FormatYAML))
		var decoded map[string]interface{}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, ns, decoded["namespace"])
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
