// Package portforward opens scoped client-go port-forwards to in-cluster
// services. A Session is always released by Close, by cancelling the context
// it was opened with, or by the helper With returning.
package portforward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"coffeectl/internal/kube"
	"coffeectl/pkg/logging"

	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// ReadyTimeout bounds how long Open waits for the tunnel to come up.
var ReadyTimeout = 60 * time.Second

// Target names the service to forward to.
type Target struct {
	Namespace string
	Service   string
	// Port is the service port; it is resolved to the backing pod's port.
	Port int
	// LocalPort is the port to listen on at 127.0.0.1. Zero picks a free port.
	LocalPort int
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s:%d", t.Namespace, t.Service, t.Port)
}

// Forwarder is the part of *portforward.PortForwarder a Session drives.
type Forwarder interface {
	ForwardPorts() error
	GetPorts() ([]portforward.ForwardedPort, error)
}

// NewForwarder builds the forwarder for a pod. Tests replace it.
var NewForwarder = func(clients *kube.Clients, namespace, pod string, localPort, remotePort int, stopCh <-chan struct{}, readyCh chan struct{}, out, errOut io.Writer) (Forwarder, error) {
	reqURL := clients.Kube.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("portforward").
		URL()

	transport, upgrader, err := spdy.RoundTripperFor(clients.REST)
	if err != nil {
		return nil, fmt.Errorf("failed to create SPDY round tripper: %w", err)
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

	ports := []string{fmt.Sprintf("%d:%d", localPort, remotePort)}
	return portforward.NewOnAddresses(dialer, []string{"127.0.0.1"}, ports, stopCh, readyCh, out, errOut)
}

// Session is an open port-forward.
type Session struct {
	target    Target
	pod       string
	localPort int

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Open resolves a ready pod behind the target service and forwards a local
// port to it. It returns once the tunnel is ready.
func Open(ctx context.Context, clients *kube.Clients, target Target) (*Session, error) {
	subsystem := "PortForward-" + target.Service

	pod, err := kube.ResolvePodForService(ctx, clients.Kube, target.Namespace, target.Service)
	if err != nil {
		return nil, err
	}
	remotePort, err := kube.TargetPort(ctx, clients.Kube, target.Namespace, target.Service, pod, target.Port)
	if err != nil {
		return nil, err
	}

	s := &Session{
		target: target,
		pod:    pod,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	readyCh := make(chan struct{})
	out := &logWriter{subsystem: subsystem}
	errOut := &logWriter{subsystem: subsystem, asError: true}

	fw, err := NewForwarder(clients, target.Namespace, pod, target.LocalPort, remotePort, s.stopCh, readyCh, out, errOut)
	if err != nil {
		return nil, fmt.Errorf("failed to create port forwarder for %s: %w", target, err)
	}

	logging.Debug(subsystem, "Starting port forward to pod %s port %d", pod, remotePort)
	errCh := make(chan error, 1)
	go func() {
		defer close(s.doneCh)
		err := fw.ForwardPorts()
		s.setErr(err)
		errCh <- err
	}()

	timer := time.NewTimer(ReadyTimeout)
	defer timer.Stop()

	select {
	case <-readyCh:
	case err := <-errCh:
		s.Close()
		if err == nil {
			err = errors.New("port forward ended before it became ready")
		}
		return nil, fmt.Errorf("port forward to %s failed: %w", target, err)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("port forward to %s not ready after %s", target, ReadyTimeout)
	}

	ports, err := fw.GetPorts()
	if err != nil || len(ports) == 0 {
		s.Close()
		if err == nil {
			err = errors.New("no ports bound")
		}
		return nil, fmt.Errorf("could not determine local port for %s: %w", target, err)
	}
	s.localPort = int(ports[0].Local)

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.doneCh:
		}
	}()

	logging.Info(subsystem, "Forwarding from 127.0.0.1:%d to %s (pod %s)", s.localPort, target, pod)
	return s, nil
}

// With opens a session, runs fn and always closes the session afterwards.
func With(ctx context.Context, clients *kube.Clients, target Target, fn func(s *Session) error) error {
	s, err := Open(ctx, clients, target)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// LocalPort is the bound local port.
func (s *Session) LocalPort() int { return s.localPort }

// Addr is the local host:port of the tunnel.
func (s *Session) Addr() string { return fmt.Sprintf("127.0.0.1:%d", s.localPort) }

// LocalURL is the base HTTP URL of the tunnel.
func (s *Session) LocalURL() string { return "http://" + s.Addr() }

// Pod is the pod the session forwards to.
func (s *Session) Pod() string { return s.pod }

// Done is closed once the tunnel has shut down.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Err reports why the tunnel ended, if it ended on its own.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the tunnel and waits for it to shut down. It is safe to call
// more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("port forward to %s did not shut down in time", s.target)
	}
	return nil
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// logWriter relays the forwarder's output lines to the debug log.
type logWriter struct {
	subsystem string
	asError   bool
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		if w.asError {
			logging.Warn(w.subsystem, "%s", line)
		} else {
			logging.Debug(w.subsystem, "%s", line)
		}
	}
	return len(p), nil
}
