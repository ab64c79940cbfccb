package domain

import (
	"time"

	"go.trai.ch/zerr"
)

// Status is the lifecycle state of a CacheEntry.
type Status string

const (
	// StatusAccepted marks an implementation that passed its tests.
	StatusAccepted Status = "accepted"
	// StatusFrozen marks an accepted implementation pinned against automatic regeneration.
	StatusFrozen Status = "frozen"
	// StatusFailed marks an implementation demoted after it stopped passing its tests.
	StatusFailed Status = "failed"
)

// Servable reports whether an entry with this status may be handed to callers.
func (s Status) Servable() bool {
	return s == StatusAccepted || s == StatusFrozen
}

// Outcome classifies a sandbox run or a recorded generation attempt.
type Outcome string

const (
	// OutcomePass means every assertion held and nothing panicked.
	OutcomePass Outcome = "pass"
	// OutcomeAssertionFailed means a test assertion did not hold.
	OutcomeAssertionFailed Outcome = "assertion_failed"
	// OutcomeRuntimeError means the candidate failed to compile, panicked or was rejected.
	OutcomeRuntimeError Outcome = "runtime_error"
	// OutcomeTimeout means the candidate exceeded its time budget.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeServiceError means the text-generation service failed after all retries.
	OutcomeServiceError Outcome = "service_error"
)

// Err returns the sentinel error matching a failing outcome, or nil for a pass.
func (o Outcome) Err() error {
	switch o {
	case OutcomePass:
		return nil
	case OutcomeAssertionFailed:
		return ErrAssertionFailed
	case OutcomeTimeout:
		return ErrTimeout
	case OutcomeServiceError:
		return ErrServiceUnavailable
	default:
		return ErrRuntimeError
	}
}

// CandidateFailure reports whether the outcome is a tested candidate that failed.
// Service errors never reached a candidate and do not count.
func (o Outcome) CandidateFailure() bool {
	switch o {
	case OutcomeAssertionFailed, OutcomeRuntimeError, OutcomeTimeout:
		return true
	default:
		return false
	}
}

// TestResult is the classified result of running a candidate against its tests.
type TestResult struct {
	Outcome  Outcome       `json:"outcome"`
	Detail   string        `json:"detail,omitzero"`
	Duration time.Duration `json:"duration,omitzero"`
}

// Passed reports whether the run passed.
func (r TestResult) Passed() bool {
	return r.Outcome == OutcomePass
}

// Err converts a failing result into an error carrying its detail.
func (r TestResult) Err() error {
	sentinel := r.Outcome.Err()
	if sentinel == nil {
		return nil
	}
	if r.Detail == "" {
		return sentinel
	}
	return zerr.Wrap(sentinel, r.Detail)
}

// TestCase is the input of a sandbox run.
type TestCase struct {
	Declaration    FunctionDeclaration `json:"declaration"`
	Candidate      string              `json:"candidate"`
	Timeout        time.Duration       `json:"timeout"`
	AllowedImports []string            `json:"allowed_imports,omitzero"`
}

// CacheEntry is a committed implementation for one identity and fingerprint.
type CacheEntry struct {
	Identity       Identity    `json:"identity"`
	Fingerprint    Fingerprint `json:"fingerprint"`
	Implementation string      `json:"implementation"`
	Status         Status      `json:"status"`
	Test           TestResult  `json:"test"`
	Created        time.Time   `json:"created"`
	Attempts       int         `json:"attempts,omitzero"`
}

// GenerationAttempt is one recorded try at producing an implementation. Never mutated.
type GenerationAttempt struct {
	Identity    Identity    `json:"identity"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Number      int         `json:"number"`
	Candidate   string      `json:"candidate,omitzero"`
	Outcome     Outcome     `json:"outcome"`
	Detail      string      `json:"detail,omitzero"`
	Created     time.Time   `json:"created"`
}

// CandidateFailures counts the attempts in history that tested a candidate and failed.
func CandidateFailures(history []GenerationAttempt) int {
	n := 0
	for _, a := range history {
		if a.Outcome.CandidateFailure() {
			n++
		}
	}
	return n
}

// Pin records that an identity is frozen to the entry with the given fingerprint.
type Pin struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Created     time.Time   `json:"created"`
}
