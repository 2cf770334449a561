package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExec_CapturesOutput(t *testing.T) {
	skipIfNoShell(t)

	res, err := Exec{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExec_NonZeroExit(t *testing.T) {
	skipIfNoShell(t)

	res, err := Exec{}.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, 3, ExitCode(err))
	assert.Contains(t, err.Error(), "broken")
}

func TestExec_Stdin(t *testing.T) {
	skipIfNoShell(t)

	res, err := Exec{}.RunWithStdin(context.Background(), strings.NewReader("espresso"), "sh", "-c", "cat")
	require.NoError(t, err)
	assert.Equal(t, "espresso", res.Stdout)
}

func TestExec_ContextCancelled(t *testing.T) {
	skipIfNoShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Exec{}.Run(ctx, "sh", "-c", "exec sleep 5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, -1, ExitCode(err))
}

func TestExec_Stream(t *testing.T) {
	skipIfNoShell(t)

	var out, errOut bytes.Buffer
	err := Exec{}.Stream(context.Background(), &out, &errOut, "sh", "-c", "echo a; echo b >&2; exit 1")
	require.Error(t, err)
	assert.Equal(t, "a\n", out.String())
	assert.Equal(t, "b\n", errOut.String())
	assert.Contains(t, err.Error(), "b")
}

func TestExec_MissingBinary(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), "coffeectl-definitely-not-installed")
	require.Error(t, err)
	assert.Equal(t, -1, ExitCode(err))
}

func TestFake_LongestPrefixWins(t *testing.T) {
	f := NewFake().
		On("kind", Response{Stdout: "generic"}).
		On("kind get clusters", Response{Stdout: "coffee-queue\n"})

	res, err := f.Run(context.Background(), "kind", "get", "clusters")
	require.NoError(t, err)
	assert.Equal(t, "coffee-queue\n", res.Stdout)

	res, err = f.Run(context.Background(), "kind", "version")
	require.NoError(t, err)
	assert.Equal(t, "generic", res.Stdout)

	res, err = f.Run(context.Background(), "docker", "info")
	require.NoError(t, err)
	assert.Empty(t, res.Stdout)

	assert.Equal(t, []string{"kind get clusters", "kind version", "docker info"}, f.Lines())
}

func TestFake_QueuedResponsesAndExitCodes(t *testing.T) {
	f := NewFake().
		On("kubectl apply", Response{ExitCode: 1, Stderr: "connection refused"}).
		On("kubectl apply", Response{Stdout: "ok"})

	_, err := f.RunWithStdin(context.Background(), strings.NewReader("kind: Namespace"), "kubectl", "apply", "-f", "-")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))

	res, err := f.Run(context.Background(), "kubectl", "apply", "-f", "-")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)

	res, err = f.Run(context.Background(), "kubectl", "apply", "-f", "-")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout, "last response repeats")

	assert.Equal(t, "kind: Namespace", f.Calls()[0].Stdin)
}

func TestFake_LookPath(t *testing.T) {
	f := NewFake().Missing("minikube")

	_, err := f.LookPath("minikube")
	assert.Error(t, err)

	path, err := f.LookPath("docker")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/docker", path)
}

func TestLogging_DelegatesToWrapped(t *testing.T) {
	f := NewFake().On("docker version", Response{Stdout: "27.0"})
	l := Logging{Runner: f}

	res, err := l.Run(context.Background(), "docker", "version")
	require.NoError(t, err)
	assert.Equal(t, "27.0", res.Stdout)

	var out bytes.Buffer
	require.NoError(t, l.Stream(context.Background(), &out, nil, "docker", "version"))
	assert.Equal(t, "27.0", out.String())
	assert.Len(t, f.Calls(), 2)
}
