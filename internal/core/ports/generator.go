package ports

import (
	"context"

	"go.trai.ch/parablock/internal/core/domain"
)

// TextGenerator is the external text-generation capability.
// Implementations may be nondeterministic, slow, rate limited or unavailable.
//
//go:generate mockgen -source=generator.go -destination=mocks/mock_generator.go -package=mocks
type TextGenerator interface {
	// Generate returns the raw service output for the prompt.
	// Failures of the service wrap domain.ErrServiceUnavailable.
	Generate(ctx context.Context, prompt domain.Prompt) (string, error)
}
