package runner

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Response is a canned reply of the Fake runner.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err is returned as-is, before ExitCode is considered.
	Err error
}

// Call records one invocation of the Fake runner.
type Call struct {
	Name  string
	Args  []string
	Stdin string
}

// Line returns the call as a single space separated command line.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is an in-memory Runner for tests. Responses are matched against the
// command line by the longest registered prefix; unmatched commands succeed
// with empty output.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]Response
	missing   map[string]bool
	calls     []Call
}

var _ Runner = (*Fake)(nil)

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		responses: map[string][]Response{},
		missing:   map[string]bool{},
	}
}

// On registers a response for commands starting with prefix. Registering the
// same prefix more than once queues the responses; the last one repeats.
func (f *Fake) On(prefix string, r Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = append(f.responses[prefix], r)
	return f
}

// Missing makes LookPath fail for name.
func (f *Fake) Missing(name string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[name] = true
	return f
}

// Calls returns every recorded invocation in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the recorded invocations as command lines.
func (f *Fake) Lines() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Line())
	}
	return out
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return f.RunWithStdin(ctx, nil, name, args...)
}

func (f *Fake) RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	call := Call{Name: name, Args: append([]string(nil), args...)}
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return Result{}, err
		}
		call.Stdin = string(data)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	resp := f.match(call.Line())
	f.mu.Unlock()

	res := Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}
	if resp.Err != nil {
		return res, resp.Err
	}
	if resp.ExitCode != 0 {
		return res, &ExitError{Name: name, Args: args, Code: resp.ExitCode, Stderr: resp.Stderr}
	}
	return res, nil
}

func (f *Fake) Stream(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	res, err := f.Run(ctx, name, args...)
	if stdout != nil {
		_, _ = io.WriteString(stdout, res.Stdout)
	}
	if stderr != nil {
		_, _ = io.WriteString(stderr, res.Stderr)
	}
	return err
}

func (f *Fake) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return "/usr/local/bin/" + name, nil
}

// match must be called with f.mu held.
func (f *Fake) match(line string) Response {
	prefixes := make([]string, 0, len(f.responses))
	for p := range f.responses {
		if strings.HasPrefix(line, p) {
			prefixes = append(prefixes, p)
		}
	}
	if len(prefixes) == 0 {
		return Response{}
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	queue := f.responses[prefixes[0]]
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[prefixes[0]] = queue[1:]
	}
	return resp
}
