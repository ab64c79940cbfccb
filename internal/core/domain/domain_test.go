package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/parablock/internal/core/domain"
)

func TestFunctionDeclarationHeader(t *testing.T) {
	decl := domain.FunctionDeclaration{
		Identity: domain.NewIdentity("example.com/demo", "Join"),
		Params:   []domain.Param{{Name: "sep", Type: "string"}, {Name: "parts", Type: "...string"}},
		Results:  "string",
	}

	assert.Equal(t, "func Join(sep string, parts ...string) string", decl.Header())
	assert.True(t, decl.Variadic())
	assert.False(t, decl.HasTests())
	assert.Equal(t, "Join", decl.Name())
}

func TestOutcomeErr(t *testing.T) {
	require.NoError(t, domain.OutcomePass.Err())
	require.ErrorIs(t, domain.OutcomeAssertionFailed.Err(), domain.ErrAssertionFailed)
	require.ErrorIs(t, domain.OutcomeRuntimeError.Err(), domain.ErrRuntimeError)
	require.ErrorIs(t, domain.OutcomeTimeout.Err(), domain.ErrTimeout)
	require.ErrorIs(t, domain.OutcomeServiceError.Err(), domain.ErrServiceUnavailable)

	res := domain.TestResult{Outcome: domain.OutcomeAssertionFailed, Detail: "want 3, got 4"}
	require.ErrorIs(t, res.Err(), domain.ErrAssertionFailed)
	assert.Contains(t, res.Err().Error(), "want 3, got 4")
}

func TestStatusServable(t *testing.T) {
	assert.True(t, domain.StatusAccepted.Servable())
	assert.True(t, domain.StatusFrozen.Servable())
	assert.False(t, domain.StatusFailed.Servable())
}

func TestAttemptBudget(t *testing.T) {
	tests := []struct {
		configured int
		want       int
	}{
		{configured: 0, want: 1},
		{configured: 3, want: 3},
		{configured: domain.MaxAttemptsCeiling, want: domain.MaxAttemptsCeiling},
		{configured: 500, want: domain.MaxAttemptsCeiling},
	}

	for _, tt := range tests {
		cfg := domain.GeneratorConfig{MaxAttempts: tt.configured}
		assert.Equal(t, tt.want, cfg.AttemptBudget(), "configured %d", tt.configured)
	}
}

func TestCandidateFailures(t *testing.T) {
	history := []domain.GenerationAttempt{
		{Number: 1, Outcome: domain.OutcomeServiceError},
		{Number: 2, Outcome: domain.OutcomeAssertionFailed},
		{Number: 3, Outcome: domain.OutcomeTimeout},
		{Number: 4, Outcome: domain.OutcomeRuntimeError},
		{Number: 5, Outcome: domain.OutcomePass},
	}

	assert.Equal(t, 3, domain.CandidateFailures(history))
	assert.Zero(t, domain.CandidateFailures(nil))
	assert.False(t, domain.OutcomeServiceError.CandidateFailure())
	assert.False(t, domain.OutcomePass.CandidateFailure())
}
