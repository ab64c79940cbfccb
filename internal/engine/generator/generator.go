// Package generator implements the generation engine: the loop that asks the text-generation
// service for candidates, tests them in the sandbox, records every attempt and commits the first pass.
package generator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

// Request asks for an implementation of one declaration at one fingerprint.
type Request struct {
	Declaration domain.FunctionDeclaration
	Fingerprint domain.Fingerprint
	// Force regenerates even when a servable entry exists, and grants a fresh attempt budget.
	Force bool
	// StillCurrent reports whether Fingerprint is still the latest fingerprint of the
	// declaration. A run whose fingerprint moved on commits nothing. Nil means always current.
	StillCurrent func() bool
}

// Result describes how a generation run ended.
type Result struct {
	State domain.GenerationState
	// Entry is the committed entry for Accepted, or the existing one for Skipped.
	Entry *domain.CacheEntry
	// Attempts counts the attempts recorded by this run.
	Attempts int
	// Last is the test result of the last recorded attempt.
	Last domain.TestResult
}

// Engine drives generation runs. It is safe for concurrent use for distinct identities.
type Engine struct {
	store   ports.CacheStore
	sandbox ports.Sandbox
	gen     ports.TextGenerator
	tracer  ports.Tracer
	metrics ports.Metrics
	logger  ports.Logger
	cfg     domain.Config
	now     func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(
	store ports.CacheStore,
	sandbox ports.Sandbox,
	gen ports.TextGenerator,
	tracer ports.Tracer,
	metrics ports.Metrics,
	logger ports.Logger,
	cfg domain.Config,
) *Engine {
	return &Engine{
		store:   store,
		sandbox: sandbox,
		gen:     gen,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Generate runs the generation loop for the request.
//
// The returned error is ErrExhausted when the attempt budget is spent, ErrServiceUnavailable
// when the service kept failing, or a store, sandbox or context error. Failures of candidates
// never surface as errors; they are recorded as attempts.
func (e *Engine) Generate(ctx context.Context, req Request) (res Result, err error) {
	decl := req.Declaration
	id := decl.Identity

	ctx, span := e.tracer.Start(ctx, "generate")
	span.SetAttribute("identity", id.String())
	span.SetAttribute("fingerprint", req.Fingerprint.String())
	defer func() {
		span.SetAttribute("state", string(res.State))
		span.SetAttribute("attempts", res.Attempts)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if res.State != domain.StatePending {
			e.metrics.GenerationFinished(res.State)
		}
	}()

	res.State = domain.StatePending

	if !req.Force {
		entry, err := e.store.Lookup(ctx, id, req.Fingerprint)
		if err != nil {
			return res, err
		}
		if entry != nil {
			res.State = domain.StateSkipped
			res.Entry = entry
			return res, nil
		}
	}

	history, err := e.store.Attempts(ctx, id, req.Fingerprint)
	if err != nil {
		return res, err
	}
	budget := e.cfg.Generator.AttemptBudget()
	if !req.Force {
		budget -= domain.CandidateFailures(history)
	}
	if budget <= 0 {
		res.State = domain.StateExhausted
		return res, e.exhausted(decl, req.Fingerprint)
	}

	res.State = domain.StateGenerating
	e.logger.Info("generating " + id.String() + " (" + req.Fingerprint.Short() + ")")

	for range budget {
		if err := ctx.Err(); err != nil {
			res.State = domain.StatePending
			return res, err
		}
		if !current(req) {
			res.State = domain.StateSuperseded
			e.logger.Debug(id.String() + " changed, dropping generation for " + req.Fingerprint.Short())
			return res, nil
		}

		attempt, err := e.attempt(ctx, req, history)
		if err != nil {
			res.State = domain.StatePending
			if attempt.Number > 0 {
				res.Attempts++
				res.Last = domain.TestResult{Outcome: attempt.Outcome, Detail: attempt.Detail}
			}
			return res, err
		}
		history = append(history, attempt.GenerationAttempt)
		res.Attempts++
		res.Last = attempt.result

		if !attempt.result.Passed() {
			e.logger.Warn(id.String() + " attempt " + strconv.Itoa(attempt.Number) + " failed: " +
				string(attempt.Outcome) + ": " + summary(attempt.Detail))
			continue
		}

		if !current(req) {
			res.State = domain.StateSuperseded
			e.logger.Debug(id.String() + " changed, discarding passing candidate for " + req.Fingerprint.Short())
			return res, nil
		}
		entry, err := e.commit(ctx, req, attempt)
		if err != nil {
			res.State = domain.StatePending
			return res, err
		}
		res.State = domain.StateAccepted
		res.Entry = &entry
		e.logger.Info("accepted " + id.String() + " after " + strconv.Itoa(attempt.Number) + " attempt(s)")
		return res, nil
	}

	res.State = domain.StateExhausted
	return res, e.exhausted(decl, req.Fingerprint)
}

type recordedAttempt struct {
	domain.GenerationAttempt
	result domain.TestResult
}

// attempt produces, tests and records one candidate. A service failure after retries is
// recorded as a service_error attempt and returned as an error.
func (e *Engine) attempt(ctx context.Context, req Request, history []domain.GenerationAttempt) (recordedAttempt, error) {
	decl := req.Declaration

	ctx, span := e.tracer.Start(ctx, "attempt")
	defer span.End()
	span.SetAttribute("identity", decl.Identity.String())

	prompt, err := BuildPrompt(decl, e.cfg.Sandbox.AllowedImports, history)
	if err != nil {
		span.RecordError(err)
		return recordedAttempt{}, err
	}

	response, err := e.ask(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			return recordedAttempt{}, ctx.Err()
		}
		failed := domain.TestResult{Outcome: domain.OutcomeServiceError, Detail: err.Error()}
		recorded, recErr := e.record(ctx, req, "", failed)
		if recErr != nil {
			return recordedAttempt{}, errors.Join(err, recErr)
		}
		return recorded, err
	}

	candidate, err := ExtractCandidate(decl, response)
	var result domain.TestResult
	if err != nil {
		candidate = response
		result = domain.TestResult{Outcome: domain.OutcomeRuntimeError, Detail: err.Error()}
	} else {
		result, err = e.sandbox.Run(ctx, domain.TestCase{
			Declaration:    decl,
			Candidate:      candidate,
			Timeout:        e.cfg.Sandbox.Timeout,
			AllowedImports: e.cfg.Sandbox.AllowedImports,
		})
		if err != nil {
			span.RecordError(err)
			if ctx.Err() != nil {
				return recordedAttempt{}, ctx.Err()
			}
			return recordedAttempt{}, zerr.With(zerr.Wrap(err, "sandbox run failed"), "identity", decl.Identity.String())
		}
	}

	span.SetAttribute("outcome", string(result.Outcome))
	span.SetAttribute("duration", result.Duration)
	return e.record(ctx, req, candidate, result)
}

func (e *Engine) record(ctx context.Context, req Request, candidate string, result domain.TestResult) (recordedAttempt, error) {
	attempt, err := e.store.RecordAttempt(ctx, domain.GenerationAttempt{
		Identity:    req.Declaration.Identity,
		Fingerprint: req.Fingerprint,
		Candidate:   candidate,
		Outcome:     result.Outcome,
		Detail:      result.Detail,
		Created:     e.now().UTC(),
	})
	if err != nil {
		return recordedAttempt{}, err
	}
	e.metrics.AttemptRecorded(result.Outcome)
	return recordedAttempt{GenerationAttempt: attempt, result: result}, nil
}

// ask calls the service, retrying failures with exponential backoff.
func (e *Engine) ask(ctx context.Context, prompt domain.Prompt) (string, error) {
	cfg := e.cfg.Generator
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.BackoffInitial),
		backoff.WithMaxInterval(cfg.BackoffMax),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(cfg.ServiceRetries, 0))), ctx)

	return backoff.RetryNotifyWithData(func() (string, error) {
		out, err := e.gen.Generate(ctx, prompt)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return out, err
	}, b, func(err error, wait time.Duration) {
		e.metrics.ServiceRetried()
		e.logger.Debug("retrying " + prompt.Identity.String() + " in " + wait.Round(time.Millisecond).String() +
			": " + err.Error())
	})
}

// commit writes the accepted entry. An explicit regeneration of a pinned identity moves the pin
// to the new entry.
func (e *Engine) commit(ctx context.Context, req Request, attempt recordedAttempt) (domain.CacheEntry, error) {
	id := req.Declaration.Identity
	entry := domain.CacheEntry{
		Identity:       id,
		Fingerprint:    req.Fingerprint,
		Implementation: attempt.Candidate,
		Status:         domain.StatusAccepted,
		Test:           attempt.result,
		Created:        e.now().UTC(),
		Attempts:       attempt.Number,
	}
	if err := e.store.Commit(ctx, entry); err != nil {
		return domain.CacheEntry{}, err
	}
	if !req.Force {
		return entry, nil
	}
	pin, err := e.store.Pin(ctx, id)
	if err != nil || pin == nil {
		return entry, err
	}
	return e.store.Freeze(ctx, id)
}

func (e *Engine) exhausted(decl domain.FunctionDeclaration, fp domain.Fingerprint) error {
	err := zerr.With(zerr.With(zerr.Wrap(domain.ErrExhausted, "no candidate passed its tests"),
		"identity", decl.Identity.String()), "fingerprint", fp.String())
	e.logger.Warn(decl.Identity.String() + ": attempts exhausted for " + fp.Short())
	return err
}

func current(req Request) bool {
	return req.StillCurrent == nil || req.StillCurrent()
}
