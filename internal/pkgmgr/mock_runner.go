package pkgmgr

import (
	"context"
	"sync"
	"time"
)

// MockRunner is a scripted Runner for tests: each command maps to a fixed
// result, unscripted commands exit 127.
type MockRunner struct {
	mu      sync.Mutex
	scripts map[string]MockResult
	calls   []string
}

// MockResult is the canned outcome for one command.
type MockResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
	Lines    []string // streamed stdout for Stream calls
}

func NewMockRunner() *MockRunner {
	return &MockRunner{scripts: map[string]MockResult{}}
}

// Set scripts the result for cmd.
func (m *MockRunner) Set(cmd string, res MockResult) {
	m.mu.Lock()
	m.scripts[cmd] = res
	m.mu.Unlock()
}

// Calls returns the commands executed so far, in order.
func (m *MockRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockRunner) lookup(cmd string) (MockResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd)
	r, ok := m.scripts[cmd]
	return r, ok
}

func (m *MockRunner) Run(ctx context.Context, cmd string) (int, string, string, error) {
	r, ok := m.lookup(cmd)
	if !ok {
		return 127, "", "", nil
	}
	return r.ExitCode, r.Stdout, r.Stderr, r.Err
}

func (m *MockRunner) RunTimeout(ctx context.Context, cmd string, _ time.Duration) (int, string, string, error) {
	return m.Run(ctx, cmd)
}

func (m *MockRunner) Stream(ctx context.Context, cmd string) (<-chan string, <-chan int, error) {
	r, ok := m.lookup(cmd)
	if !ok {
		r = MockResult{ExitCode: 127}
	}
	if r.Err != nil {
		return nil, nil, r.Err
	}
	lines := make(chan string, len(r.Lines))
	exit := make(chan int, 1)
	for _, l := range r.Lines {
		lines <- l
	}
	close(lines)
	exit <- r.ExitCode
	close(exit)
	return lines, exit, nil
}
