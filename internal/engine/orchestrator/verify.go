package orchestrator

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"go.trai.ch/parablock/internal/core/domain"
)

// Verdict is the verification result of one declaration.
type Verdict struct {
	Identity    domain.Identity
	Fingerprint domain.Fingerprint
	// Missing is set when no servable entry exists for the current fingerprint.
	Missing bool
	Result  domain.TestResult
}

// Verify re-runs the tests of every current declaration against its committed entry and
// demotes entries that no longer pass. Entries of other fingerprints are left alone.
func (o *Orchestrator) Verify(ctx context.Context, root string) ([]Verdict, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrFailedToGetRoot.Error()), "root", root)
	}

	// Scanning without a pool only records declarations.
	o.mu.Lock()
	o.pool = nil
	o.only = nil
	o.mu.Unlock()
	if err := o.scan(ctx, root); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		verdicts []Verdict
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.Watch.Workers, 1))
	for _, decl := range o.Known() {
		fp, ok := o.Fingerprint(decl.Identity)
		if !ok {
			continue
		}
		g.Go(func() error {
			v, err := o.verify(ctx, decl, fp)
			if err != nil {
				return err
			}
			mu.Lock()
			verdicts = append(verdicts, v)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(verdicts, func(a, b Verdict) int {
		return strings.Compare(a.Identity.String(), b.Identity.String())
	})
	return verdicts, nil
}

func (o *Orchestrator) verify(ctx context.Context, decl domain.FunctionDeclaration, fp domain.Fingerprint) (Verdict, error) {
	v := Verdict{Identity: decl.Identity, Fingerprint: fp}

	entry, err := o.store.Get(ctx, decl.Identity, fp)
	if err != nil {
		return v, err
	}
	if entry == nil || !entry.Status.Servable() {
		v.Missing = true
		return v, nil
	}

	v.Result, err = o.sandbox.Run(ctx, domain.TestCase{
		Declaration:    decl,
		Candidate:      entry.Implementation,
		Timeout:        o.cfg.Sandbox.Timeout,
		AllowedImports: o.cfg.Sandbox.AllowedImports,
	})
	if err != nil {
		return v, zerr.With(zerr.Wrap(err, "sandbox run failed"), "identity", decl.Identity.String())
	}
	if v.Result.Passed() {
		return v, nil
	}

	o.logger.Warn(decl.Identity.String() + " no longer passes its tests: " + string(v.Result.Outcome))
	if err := o.store.MarkFailed(ctx, decl.Identity, fp, v.Result); err != nil {
		return v, err
	}
	return v, nil
}
