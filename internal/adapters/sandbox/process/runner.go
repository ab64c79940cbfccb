// Package process runs sandbox test cases in a child process.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

var _ ports.Sandbox = (*Runner)(nil)

// SandboxCommand is the hidden CLI command the child executes.
const SandboxCommand = "sandbox"

// gracePeriod bounds process start and JSON exchange on top of the run timeout.
const gracePeriod = 2 * time.Second

// Runner re-executes a binary whose sandbox command reads a test case on stdin and
// writes the result on stdout. A child that outlives its timeout is killed.
type Runner struct {
	executable string
	args       []string
	env        []string
	timeout    time.Duration
	allowed    []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithCommand overrides the executable and its arguments. The default is the running
// binary with the sandbox command.
func WithCommand(executable string, args ...string) Option {
	return func(r *Runner) {
		r.executable = executable
		r.args = args
	}
}

// WithEnv appends environment variables for the child.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// NewRunner creates a Runner for the given sandbox configuration.
func NewRunner(cfg domain.SandboxConfig, opts ...Option) (*Runner, error) {
	r := &Runner{timeout: cfg.Timeout, allowed: cfg.AllowedImports}
	if r.timeout <= 0 {
		r.timeout = domain.DefaultSandboxTimeout
	}
	if r.allowed == nil {
		r.allowed = domain.DefaultAllowedImports
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, zerr.Wrap(err, domain.ErrSandboxFailed.Error())
		}
		r.executable = exe
		r.args = []string{SandboxCommand}
	}
	return r, nil
}

// Run sends the test case to a fresh child process and classifies its answer.
func (r *Runner) Run(ctx context.Context, tc domain.TestCase) (domain.TestResult, error) {
	if tc.Timeout <= 0 {
		tc.Timeout = r.timeout
	}
	if tc.AllowedImports == nil {
		tc.AllowedImports = r.allowed
	}

	input, err := json.Marshal(tc)
	if err != nil {
		return domain.TestResult{}, zerr.Wrap(err, domain.ErrSandboxFailed.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, tc.Timeout+gracePeriod)
	defer cancel()

	// #nosec G204 -- the executable is this binary or one set by the caller
	cmd := exec.CommandContext(runCtx, r.executable, r.args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = gracePeriod

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return domain.TestResult{}, err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return domain.TestResult{
			Outcome:  domain.OutcomeTimeout,
			Detail:   fmt.Sprintf("child process killed after %s", tc.Timeout),
			Duration: elapsed,
		}, nil
	}
	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = runErr.Error()
		}
		return domain.TestResult{
			Outcome:  domain.OutcomeRuntimeError,
			Detail:   "sandbox process failed: " + detail,
			Duration: elapsed,
		}, nil
	}

	var result domain.TestResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return domain.TestResult{}, zerr.With(zerr.Wrap(err, domain.ErrSandboxFailed.Error()),
			"stdout", strings.TrimSpace(stdout.String()))
	}
	return result, nil
}
