// Package testutil provides common test helpers for kvmigrate tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

// TestConfig returns a JobConfig that executes commands (dry-run off)
// with hook paths under t.TempDir().
func TestConfig(t *testing.T) hypervisor.JobConfig {
	t.Helper()

	cfg := hypervisor.DefaultJobConfig()
	cfg.DryRun = false
	cfg.BondCheckScript = WriteScript(t, t.TempDir(), hypervisor.DefaultBondScript)
	return cfg
}

// WriteScript creates an executable shell script in dir and returns its path.
func WriteScript(t *testing.T, dir, name string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatalf("failed to write script %s: %v", path, err)
	}
	return path
}

// Response is one scripted result of a remote command.
type Response struct {
	Output string
	Err    error
}

// OK returns a successful response with output.
func OK(output string) Response {
	return Response{Output: output}
}

// Fail returns a response for a command that exited non-zero.
func Fail(status int, stderr string) Response {
	return Response{Err: &remote.CommandError{ExitStatus: status, Stderr: stderr}}
}

// Unreachable returns a response for a transport failure.
func Unreachable() Response {
	return Response{Err: &remote.TransportError{Op: "dial", Err: os.ErrDeadlineExceeded}}
}

// Call is a recorded Run invocation.
type Call struct {
	Target  remote.Target
	Request remote.Request
}

type rule struct {
	match     string
	responses []Response
}

// FakeExecutor is a scripted remote.Executor. Commands are matched by
// substring against the registered rules in order; each rule replays its
// responses and keeps returning the last one. Unmatched commands succeed
// with empty output.
type FakeExecutor struct {
	mu         sync.Mutex
	rules      []*rule
	uploadErrs map[string]error

	Calls   []Call
	Uploads []remote.Upload
	// Log interleaves "run <command>" and "upload <remote path>" entries
	// in the order they happened.
	Log []string
}

var _ remote.Executor = (*FakeExecutor)(nil)

// NewFakeExecutor creates an executor with no rules.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{uploadErrs: make(map[string]error)}
}

// On scripts the responses for commands containing match.
func (f *FakeExecutor) On(match string, responses ...Response) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{match: match, responses: responses})
	return f
}

// FailUpload makes uploads of localPath fail with err.
func (f *FakeExecutor) FailUpload(localPath string, err error) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadErrs[localPath] = err
	return f
}

// Run implements remote.Executor.
func (f *FakeExecutor) Run(ctx context.Context, target remote.Target, req remote.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, Call{Target: target, Request: req})
	f.Log = append(f.Log, "run "+req.Command)
	if err := ctx.Err(); err != nil {
		return "", &remote.TransportError{Target: target.String(), Op: "run", Err: err}
	}
	for _, r := range f.rules {
		if !strings.Contains(req.Command, r.match) || len(r.responses) == 0 {
			continue
		}
		resp := r.responses[0]
		if len(r.responses) > 1 {
			r.responses = r.responses[1:]
		}
		if ce, ok := resp.Err.(*remote.CommandError); ok && ce.Command == "" {
			cp := *ce
			cp.Command = req.CommandLine()
			return resp.Output, &cp
		}
		return resp.Output, resp.Err
	}
	return "", nil
}

// Upload implements remote.Executor.
func (f *FakeExecutor) Upload(ctx context.Context, target remote.Target, u remote.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Uploads = append(f.Uploads, u)
	f.Log = append(f.Log, "upload "+u.RemotePath)
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.uploadErrs[u.LocalPath]
}

// Commands returns the command text of every recorded call.
func (f *FakeExecutor) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmds := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		cmds[i] = c.Request.Command
	}
	return cmds
}

// FakePortChecker replays Results for successive PortOpen calls and keeps
// returning the last one.
type FakePortChecker struct {
	mu      sync.Mutex
	Results []bool
	Calls   int
}

var _ remote.PortChecker = (*FakePortChecker)(nil)

// PortOpen implements remote.PortChecker.
func (p *FakePortChecker) PortOpen(ctx context.Context, address string, port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls++
	if len(p.Results) == 0 {
		return false
	}
	open := p.Results[0]
	if len(p.Results) > 1 {
		p.Results = p.Results[1:]
	}
	return open
}

// Sleeper records requested sleeps without waiting. After Limit sleeps
// (when non-zero) it returns Err.
type Sleeper struct {
	mu    sync.Mutex
	Slept []time.Duration
	Limit int
	Err   error
}

// Sleep matches the signature of hypervisor.Deps.Sleep.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Limit > 0 && len(s.Slept) >= s.Limit {
		return s.Err
	}
	s.Slept = append(s.Slept, d)
	return nil
}

// Durations returns a copy of the recorded sleeps.
func (s *Sleeper) Durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.Slept...)
}
