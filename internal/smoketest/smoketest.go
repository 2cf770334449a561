// Package smoketest runs the fixed sequence of requests that shows the
// deployed coffee service is alive: health, create an order, read its status
// and read the aggregate statistics. The first failing request ends the run.
package smoketest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coffeectl/internal/config"
	"coffeectl/internal/httpclient"
	"coffeectl/pkg/logging"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Step names, in execution order.
const (
	StepHealth     = "health"
	StepOrder      = "create order"
	StepStatus     = "order status"
	StepStatistics = "statistics"
)

const bodyExcerptLen = 200

// Step is one executed request.
type Step struct {
	Name    string        `json:"name" yaml:"name"`
	Method  string        `json:"method" yaml:"method"`
	URL     string        `json:"url" yaml:"url"`
	Status  int           `json:"status" yaml:"status"`
	Latency time.Duration `json:"latency" yaml:"latency"`
	Body    string        `json:"body,omitempty" yaml:"body,omitempty"`
}

// Result lists the steps that ran.
type Result struct {
	BaseURL  string `json:"baseURL" yaml:"baseURL"`
	Customer string `json:"customer" yaml:"customer"`
	// OrderID is set when the order response carried an id.
	OrderID string `json:"orderID,omitempty" yaml:"orderID,omitempty"`
	Steps   []Step `json:"steps" yaml:"steps"`
}

// StepError reports the first failed step. Status is zero when the request
// never got a response.
type StepError struct {
	Step   string
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smoke test step %q (%s %s) failed: %v", e.Step, e.Method, e.URL, e.Err)
	}
	msg := fmt.Sprintf("smoke test step %q (%s %s) returned %d", e.Step, e.Method, e.URL, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// Tester runs the smoke test against one base URL.
type Tester struct {
	baseURL  string
	customer string
	client   *retryablehttp.Client
}

// New returns a Tester for baseURL. An empty customer name in cfg is
// replaced by a unique one so repeated runs do not collide.
func New(baseURL string, cfg config.SmokeConfig) *Tester {
	customer := cfg.CustomerName
	if customer == "" {
		customer = "smoke-" + uuid.NewString()[:8]
	}
	return &Tester{
		baseURL:  strings.TrimRight(baseURL, "/"),
		customer: customer,
		client:   httpclient.New(httpclient.Options{Timeout: cfg.Timeout, Retries: cfg.Retries}),
	}
}

// Customer is the name the orders are placed under.
func (t *Tester) Customer() string { return t.customer }

// Run executes the steps in order and stops at the first failure. The
// failing step is the last one in Result.Steps.
func (t *Tester) Run(ctx context.Context) (Result, error) {
	result := Result{BaseURL: t.baseURL, Customer: t.customer}
	name := url.Values{"name": []string{t.customer}}.Encode()

	steps := []struct {
		name, method, path string
	}{
		{StepHealth, http.MethodGet, "/health"},
		{StepOrder, http.MethodPost, "/order?" + name},
		{StepStatus, http.MethodGet, "/status?" + name},
		{StepStatistics, http.MethodGet, "/numberOfCoffees"},
	}

	for _, s := range steps {
		step, body, err := t.do(ctx, s.name, s.method, s.path)
		result.Steps = append(result.Steps, step)
		if err != nil {
			return result, err
		}
		logging.Info("SmokeTest", "%s %s -> %d (%s)", s.method, step.URL, step.Status, step.Latency.Round(time.Millisecond))

		if s.name == StepOrder {
			result.OrderID = orderID(body)
		}
	}
	return result, nil
}

func (t *Tester) do(ctx context.Context, name, method, path string) (Step, []byte, error) {
	target := t.baseURL + path
	step := Step{Name: name, Method: method, URL: target}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return step, nil, &StepError{Step: name, Method: method, URL: target, Err: err}
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	step.Latency = time.Since(start)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return step, nil, &StepError{Step: name, Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()
	step.Status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return step, nil, &StepError{Step: name, Method: method, URL: target, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	step.Body = excerpt(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return step, body, &StepError{Step: name, Method: method, URL: target, Status: resp.StatusCode, Body: step.Body}
	}
	return step, body, nil
}

// orderID extracts the "id" field of a JSON order response.
func orderID(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"id", "orderId", "order_id"} {
		switch v := payload[key].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodyExcerptLen {
		return s[:bodyExcerptLen] + "..."
	}
	return s
}
