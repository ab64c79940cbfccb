package ports

import (
	"context"

	"go.trai.ch/parablock/internal/core/domain"
)

// Sandbox runs a candidate implementation against a declaration's tests in isolation.
//
//go:generate mockgen -source=sandbox.go -destination=mocks/mock_sandbox.go -package=mocks
type Sandbox interface {
	// Run executes the test case and classifies the outcome. Failures of the candidate are
	// reported in the result; the error is reserved for failures of the sandbox itself.
	Run(ctx context.Context, tc domain.TestCase) (domain.TestResult, error)
}
