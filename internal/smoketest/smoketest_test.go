package smoketest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"coffeectl/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coffeeService mimics the demo application's HTTP API and records the
// requests it receives.
type coffeeService struct {
	mu       sync.Mutex
	requests []string
	// fail maps a path to the status it should answer with.
	fail map[string]int
}

func (s *coffeeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	status, failing := s.fail[r.URL.Path]
	s.mu.Unlock()

	if failing {
		http.Error(w, "something broke", status)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		_, _ = w.Write([]byte(`{"status":"UP"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/order":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42,"name":"` + r.URL.Query().Get("name") + `","status":"QUEUED"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/status":
		if r.URL.Query().Get("name") == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"status":"QUEUED","position":1}`))
	case r.Method == http.MethodGet && r.URL.Path == "/numberOfCoffees":
		_, _ = w.Write([]byte("17"))
	default:
		http.NotFound(w, r)
	}
}

func (s *coffeeService) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func TestRun_HealthyService(t *testing.T) {
	svc := &coffeeService{}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	tester := New(srv.URL+"/", config.SmokeConfig{CustomerName: "ada lovelace", Timeout: time.Second})
	res, err := tester.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /health", "POST /order", "GET /status", "GET /numberOfCoffees"}, svc.seen())
	require.Len(t, res.Steps, 4)
	assert.Equal(t, "42", res.OrderID)
	assert.Equal(t, "ada lovelace", res.Customer)
	assert.Equal(t, srv.URL+"/order?name=ada+lovelace", res.Steps[1].URL)
	assert.Equal(t, http.StatusCreated, res.Steps[1].Status)
	assert.Equal(t, "17", res.Steps[3].Body)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name     string
		failPath string
		wantStep string
		wantSeen int
	}{
		{"health", "/health", StepHealth, 1},
		{"order", "/order", StepOrder, 2},
		{"status", "/status", StepStatus, 3},
		{"statistics", "/numberOfCoffees", StepStatistics, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &coffeeService{fail: map[string]int{tt.failPath: http.StatusInternalServerError}}
			srv := httptest.NewServer(svc)
			defer srv.Close()

			res, err := New(srv.URL, config.SmokeConfig{Timeout: time.Second}).Run(context.Background())
			require.Error(t, err)

			var stepErr *StepError
			require.True(t, errors.As(err, &stepErr))
			assert.Equal(t, tt.wantStep, stepErr.Step)
			assert.Equal(t, http.StatusInternalServerError, stepErr.Status)
			assert.Contains(t, stepErr.Body, "something broke")
			assert.Len(t, svc.seen(), tt.wantSeen, "later steps are not attempted")
			require.Len(t, res.Steps, tt.wantSeen, "the failing step is recorded too")
			failed := res.Steps[len(res.Steps)-1]
			assert.Equal(t, tt.wantStep, failed.Name)
			assert.Equal(t, http.StatusInternalServerError, failed.Status)
			assert.Contains(t, failed.Body, "something broke")
			assert.Contains(t, failed.URL, srv.URL+tt.failPath)
		})
	}
}

func TestRun_Unreachable(t *testing.T) {
	srv := httptest.NewServer(&coffeeService{})
	url := srv.URL
	srv.Close()

	_, err := New(url, config.SmokeConfig{Timeout: time.Second}).Run(context.Background())
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepHealth, stepErr.Step)
	assert.Zero(t, stepErr.Status)
	assert.Error(t, stepErr.Err)
}

func TestNew_GeneratesCustomerName(t *testing.T) {
	a := New("http://localhost", config.SmokeConfig{})
	b := New("http://localhost", config.SmokeConfig{})
	assert.True(t, strings.HasPrefix(a.Customer(), "smoke-"))
	assert.Len(t, a.Customer(), len("smoke-")+8)
	assert.NotEqual(t, a.Customer(), b.Customer())
}

func TestOrderID(t *testing.T) {
	assert.Equal(t, "42", orderID([]byte(`{"id":42}`)))
	assert.Equal(t, "abc", orderID([]byte(`{"orderId":"abc"}`)))
	assert.Equal(t, "", orderID([]byte(`Order accepted`)))
}
