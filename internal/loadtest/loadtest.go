// Package loadtest fires a bounded burst of concurrent requests at the demo
// service so its horizontal pod autoscaler has something to react to.
package loadtest

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"coffeectl/internal/config"
	"coffeectl/internal/httpclient"
	"coffeectl/pkg/logging"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"
)

// Summary aggregates the outcome of a burst.
type Summary struct {
	Total     int `json:"total" yaml:"total"`
	Successes int `json:"successes" yaml:"successes"`
	Failures  int `json:"failures" yaml:"failures"`
	// StatusCodes counts responses per HTTP status. Requests that got no
	// response are counted in Errors instead.
	StatusCodes map[int]int   `json:"statusCodes" yaml:"statusCodes"`
	Errors      int           `json:"errors" yaml:"errors"`
	MinLatency  time.Duration `json:"minLatency" yaml:"minLatency"`
	AvgLatency  time.Duration `json:"avgLatency" yaml:"avgLatency"`
	P95Latency  time.Duration `json:"p95Latency" yaml:"p95Latency"`
	MaxLatency  time.Duration `json:"maxLatency" yaml:"maxLatency"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Generator sends GET requests to one URL.
type Generator struct {
	target      string
	requests    int
	concurrency int
	client      *retryablehttp.Client
}

// New returns a Generator for baseURL using the request count, concurrency
// and path of cfg.
func New(baseURL string, cfg config.LoadTestConfig, timeout time.Duration) *Generator {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Generator{
		target:      strings.TrimRight(baseURL, "/") + path,
		requests:    cfg.Requests,
		concurrency: concurrency,
		client:      httpclient.New(httpclient.Options{Timeout: timeout, MaxConns: concurrency}),
	}
}

// Target is the URL the generator hits.
func (g *Generator) Target() string { return g.target }

type outcome struct {
	status  int
	latency time.Duration
	err     error
}

// Run sends the burst. Failed requests are counted, not returned; Run only
// fails when ctx is cancelled, and then still returns what was collected.
func (g *Generator) Run(ctx context.Context) (Summary, error) {
	logging.Info("LoadTest", "Sending %d requests to %s with concurrency %d", g.requests, g.target, g.concurrency)

	var (
		mu       sync.Mutex
		outcomes = make([]outcome, 0, g.requests)
	)
	start := time.Now()

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i := 0; i < g.requests; i++ {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			o := g.send(ctx)
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	summary := summarize(outcomes)
	summary.Elapsed = time.Since(start)
	logging.Info("LoadTest", "%d/%d requests succeeded in %s", summary.Successes, summary.Total, summary.Elapsed.Round(time.Millisecond))
	return summary, ctx.Err()
}

func (g *Generator) send(ctx context.Context) outcome {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.target, nil)
	if err != nil {
		return outcome{err: err}
	}
	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return outcome{latency: time.Since(start), err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return outcome{status: resp.StatusCode, latency: time.Since(start)}
}

func summarize(outcomes []outcome) Summary {
	s := Summary{Total: len(outcomes), StatusCodes: map[int]int{}}
	if len(outcomes) == 0 {
		return s
	}
	latencies := make([]time.Duration, 0, len(outcomes))
	var sum time.Duration
	for _, o := range outcomes {
		if o.err != nil {
			s.Errors++
			s.Failures++
			continue
		}
		s.StatusCodes[o.status]++
		if o.status >= 200 && o.status < 300 {
			s.Successes++
		} else {
			s.Failures++
		}
		latencies = append(latencies, o.latency)
		sum += o.latency
	}
	if len(latencies) == 0 {
		return s
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	s.MinLatency = latencies[0]
	s.MaxLatency = latencies[len(latencies)-1]
	s.AvgLatency = sum / time.Duration(len(latencies))
	s.P95Latency = latencies[(len(latencies)*95+99)/100-1]
	return s
}
