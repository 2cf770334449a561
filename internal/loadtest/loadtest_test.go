package loadtest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"coffeectl/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RespectsConcurrency(t *testing.T) {
	var inFlight, peak, hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if hits.Add(1)%10 == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("3"))
	}))
	defer srv.Close()

	g := New(srv.URL, config.LoadTestConfig{Requests: 50, Concurrency: 4, Path: "numberOfCoffees"}, time.Second)
	assert.Equal(t, srv.URL+"/numberOfCoffees", g.Target())

	summary, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 50, summary.Total)
	assert.Equal(t, 45, summary.Successes)
	assert.Equal(t, 5, summary.Failures)
	assert.Equal(t, map[int]int{200: 45, 503: 5}, summary.StatusCodes)
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.LessOrEqual(t, summary.MinLatency, summary.AvgLatency)
	assert.LessOrEqual(t, summary.AvgLatency, summary.MaxLatency)
	assert.LessOrEqual(t, summary.P95Latency, summary.MaxLatency)
}

func TestRun_ConnectionErrorsDoNotAbort(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	summary, err := New(url, config.LoadTestConfig{Requests: 5, Concurrency: 2}, time.Second).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 5, summary.Errors)
	assert.Equal(t, 5, summary.Failures)
	assert.Empty(t, summary.StatusCodes)
}

func TestRun_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(srv.URL, config.LoadTestConfig{Requests: 100, Concurrency: 10}, time.Second).Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, summary.Total)
}

func TestSummarize(t *testing.T) {
	var outcomes []outcome
	for i := 1; i <= 20; i++ {
		outcomes = append(outcomes, outcome{status: 200, latency: time.Duration(i) * time.Millisecond})
	}
	s := summarize(outcomes)
	assert.Equal(t, time.Millisecond, s.MinLatency)
	assert.Equal(t, 20*time.Millisecond, s.MaxLatency)
	assert.Equal(t, 19*time.Millisecond, s.P95Latency)
	assert.Equal(t, 10500*time.Microsecond, s.AvgLatency)
}
