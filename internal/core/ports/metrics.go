package ports

import "go.trai.ch/parablock/internal/core/domain"

// Metrics counts generation activity.
//
//go:generate mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks
type Metrics interface {
	// AttemptRecorded counts one recorded attempt by outcome.
	AttemptRecorded(outcome domain.Outcome)
	// GenerationFinished counts one finished generation run by final state.
	GenerationFinished(state domain.GenerationState)
	// ServiceRetried counts one retried service call.
	ServiceRetried()
}
