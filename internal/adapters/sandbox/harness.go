package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/traefik/yaegi/interp"

	"go.trai.ch/parablock/check"
	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

var _ ports.Sandbox = (*Harness)(nil)

// Harness runs test cases in a fresh yaegi interpreter inside the current process.
// Programs that start goroutines are rejected before they run. A run that times out is
// abandoned; code that never yields keeps its goroutine. Use the process runner when that matters.
type Harness struct {
	allowed []string
	timeout time.Duration
}

// NewHarness creates a Harness. The config supplies the allowlist and timeout used
// when a test case does not carry its own.
func NewHarness(cfg domain.SandboxConfig) *Harness {
	h := &Harness{allowed: cfg.AllowedImports, timeout: cfg.Timeout}
	if h.allowed == nil {
		h.allowed = domain.DefaultAllowedImports
	}
	if h.timeout <= 0 {
		h.timeout = domain.DefaultSandboxTimeout
	}
	return h
}

// Run executes the test case. Candidate failures are reported in the result. The error is
// non-nil only when ctx itself ends.
func (h *Harness) Run(ctx context.Context, tc domain.TestCase) (domain.TestResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TestResult{}, err
	}
	if tc.AllowedImports == nil {
		tc.AllowedImports = h.allowed
	}
	if tc.Timeout <= 0 {
		tc.Timeout = h.timeout
	}

	start := time.Now()
	result := h.run(ctx, tc)
	if err := ctx.Err(); err != nil {
		return domain.TestResult{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (h *Harness) run(ctx context.Context, tc domain.TestCase) domain.TestResult {
	program, err := BuildProgram(tc)
	if err != nil {
		return domain.TestResult{Outcome: domain.OutcomeRuntimeError, Detail: err.Error()}
	}

	rec := check.NewRecorder()
	i, err := NewInterpreter(tc.AllowedImports, checkExports(rec.Symbols()))
	if err != nil {
		return domain.TestResult{Outcome: domain.OutcomeRuntimeError, Detail: err.Error()}
	}

	runCtx, cancel := context.WithTimeout(ctx, tc.Timeout)
	defer cancel()

	if _, err := i.EvalWithContext(runCtx, program); err != nil {
		return classify(runCtx, tc.Timeout, "compile", err)
	}
	if _, err := i.EvalWithContext(runCtx, "main."+CheckFunc+"()"); err != nil {
		return classify(runCtx, tc.Timeout, "run", err)
	}

	if rec.Failed() {
		return domain.TestResult{Outcome: domain.OutcomeAssertionFailed, Detail: rec.Report()}
	}
	return domain.TestResult{Outcome: domain.OutcomePass}
}

func classify(runCtx context.Context, timeout time.Duration, phase string, err error) domain.TestResult {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return domain.TestResult{
			Outcome: domain.OutcomeTimeout,
			Detail:  fmt.Sprintf("did not finish within %s", timeout),
		}
	}
	var p interp.Panic
	if errors.As(err, &p) {
		return domain.TestResult{Outcome: domain.OutcomeRuntimeError, Detail: fmt.Sprintf("panic: %v", p.Value)}
	}
	return domain.TestResult{Outcome: domain.OutcomeRuntimeError, Detail: phase + ": " + err.Error()}
}
