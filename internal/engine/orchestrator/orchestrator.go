// Package orchestrator keeps the cache in step with the declaration files of a project.
// It scans and watches the tree, tracks the current fingerprint of every declaration and
// runs the generation engine for declarations that need an implementation.
package orchestrator

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"go.trai.ch/parablock/internal/adapters/watcher"
	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
	"go.trai.ch/parablock/internal/engine/generator"
)

// Generator runs one generation for a declaration.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (generator.Result, error)
}

// SyncOptions tune a one-shot Sync.
type SyncOptions struct {
	// Force regenerates every selected declaration, frozen ones included.
	Force bool
	// Only restricts the run to declarations whose identity or function name is listed.
	Only []string
}

// Summary reports the outcome of a Sync per identity.
type Summary struct {
	mu      sync.Mutex
	results map[domain.Identity]Outcome
}

// Outcome is the final state of one identity in a Sync.
type Outcome struct {
	State domain.GenerationState
	Err   error
}

// Results returns the outcomes sorted by identity.
func (s *Summary) Results() []IdentityOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IdentityOutcome, 0, len(s.results))
	for id, o := range s.results {
		out = append(out, IdentityOutcome{Identity: id, Outcome: o})
	}
	slices.SortFunc(out, func(a, b IdentityOutcome) int {
		return strings.Compare(a.Identity.String(), b.Identity.String())
	})
	return out
}

// Err joins the errors of every identity that did not end accepted, skipped or pinned.
func (s *Summary) Err() error {
	var errs error
	for _, r := range s.Results() {
		errs = errors.Join(errs, r.Err)
	}
	return errs
}

func (s *Summary) set(id domain.Identity, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = o
}

// IdentityOutcome pairs an identity with its outcome.
type IdentityOutcome struct {
	Identity domain.Identity
	Outcome
}

// declared is the latest observation of a declaration.
type declared struct {
	decl domain.FunctionDeclaration
	fp   domain.Fingerprint
}

// Orchestrator is the writer role of a project: it is the only component that generates.
type Orchestrator struct {
	parser  ports.DeclarationParser
	store   ports.CacheStore
	gen     Generator
	sandbox ports.Sandbox
	watcher ports.Watcher
	logger  ports.Logger
	cfg     domain.Config

	mu        sync.Mutex
	files     map[string][]domain.Identity
	decls     map[domain.Identity]declared
	exhausted map[domain.Identity]domain.Fingerprint

	force   bool
	only    []string
	summary *Summary
	pool    *pool
}

// New creates an Orchestrator. w may be nil when Run is never called.
func New(
	parser ports.DeclarationParser,
	store ports.CacheStore,
	gen Generator,
	sandbox ports.Sandbox,
	w ports.Watcher,
	logger ports.Logger,
	cfg domain.Config,
) *Orchestrator {
	return &Orchestrator{
		parser:    parser,
		store:     store,
		gen:       gen,
		sandbox:   sandbox,
		watcher:   w,
		logger:    logger,
		cfg:       cfg,
		files:     make(map[string][]domain.Identity),
		decls:     make(map[domain.Identity]declared),
		exhausted: make(map[domain.Identity]domain.Fingerprint),
	}
}

// Run scans root, generates what is missing and then keeps watching until ctx is canceled.
// Bursts of file events are debounced into one re-evaluation per burst.
func (o *Orchestrator) Run(ctx context.Context, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFailedToGetRoot.Error()), "root", root)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.watcher.Start(ctx, root); err != nil {
		return err
	}
	defer func() { _ = o.watcher.Stop() }()

	o.start(ctx, SyncOptions{})
	defer o.stop()

	if err := o.scan(ctx, root); err != nil {
		return err
	}
	o.logger.Info("watching " + root)

	batches := make(chan []string)
	debouncer := watcher.NewDebouncer(o.cfg.Watch.Debounce, func(paths []string) {
		select {
		case batches <- paths:
		case <-ctx.Done():
		}
	})
	defer debouncer.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		for event := range o.watcher.Events() {
			if ctx.Err() != nil {
				return nil
			}
			debouncer.Add(event.Path)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return o.watcher.Stop()
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case paths := <-batches:
				for _, path := range paths {
					o.changed(gctx, path)
				}
			}
		}
	})
	return g.Wait()
}

// Sync scans root once, generates what is missing and waits until every flight has landed.
func (o *Orchestrator) Sync(ctx context.Context, root string, opts SyncOptions) (*Summary, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrFailedToGetRoot.Error()), "root", root)
	}

	summary := o.start(ctx, opts)
	err = o.scan(ctx, root)
	o.pool.Wait()
	o.stop()
	if err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

// Known returns the current declarations and fingerprints sorted by identity.
func (o *Orchestrator) Known() []domain.FunctionDeclaration {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.FunctionDeclaration, 0, len(o.decls))
	for _, d := range o.decls {
		out = append(out, d.decl)
	}
	slices.SortFunc(out, func(a, b domain.FunctionDeclaration) int {
		return strings.Compare(a.Identity.String(), b.Identity.String())
	})
	return out
}

// Fingerprint returns the latest known fingerprint of id.
func (o *Orchestrator) Fingerprint(id domain.Identity) (domain.Fingerprint, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.decls[id]
	return d.fp, ok
}

func (o *Orchestrator) start(ctx context.Context, opts SyncOptions) *Summary {
	summary := &Summary{results: make(map[domain.Identity]Outcome)}
	o.mu.Lock()
	o.force = opts.Force
	o.only = opts.Only
	o.summary = summary
	o.pool = newPool(o.cfg.Watch.Workers, func(id domain.Identity) {
		o.process(ctx, id)
	})
	o.mu.Unlock()
	return summary
}

func (o *Orchestrator) stop() {
	o.mu.Lock()
	p := o.pool
	o.mu.Unlock()
	if p == nil {
		return
	}
	p.Close()
	p.Wait()
}

// scan evaluates every Go file under root that is not in an ignored directory.
func (o *Orchestrator) scan(ctx context.Context, root string) error {
	skip := make(map[string]bool, len(o.cfg.Watch.Ignore))
	for _, name := range o.cfg.Watch.Ignore {
		skip[name] = true
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			o.logger.Warn("cannot read " + path + ": " + err.Error())
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if isGoFile(path) {
			o.evaluate(path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return zerr.With(zerr.Wrap(err, "failed to scan project"), "root", root)
	}
	return nil
}

// changed handles one debounced path: a file or a directory that was written, created or removed.
func (o *Orchestrator) changed(ctx context.Context, path string) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		o.forgetUnder(path)
	case err != nil:
		o.logger.Warn("cannot stat " + path + ": " + err.Error())
	case info.IsDir():
		if err := o.scan(ctx, path); err != nil {
			o.logger.Error(err)
		}
	case isGoFile(path):
		o.evaluate(path)
	}
}

// evaluate reparses path, updates the known declarations and submits every declaration in it.
// A file that does not parse keeps its previous declarations until it parses again.
func (o *Orchestrator) evaluate(path string) {
	res, err := o.parser.ParseFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			o.forgetUnder(path)
			return
		}
		o.logger.Error(err)
		return
	}
	for _, malformed := range res.Malformed {
		o.logger.Error(malformed)
	}

	type observed struct {
		declared
		changed bool
	}
	var found []observed
	for _, decl := range res.Declarations {
		fp, err := domain.ComputeFingerprint(decl)
		if err != nil {
			o.logger.Error(zerr.With(err, "file", path))
			continue
		}
		found = append(found, observed{declared: declared{decl: decl, fp: fp}})
	}

	o.mu.Lock()
	current := make([]domain.Identity, 0, len(found))
	for i, d := range found {
		id := d.decl.Identity
		prev, ok := o.decls[id]
		found[i].changed = !ok || prev.fp != d.fp
		if found[i].changed && ok {
			delete(o.exhausted, id)
		}
		o.decls[id] = d.declared
		current = append(current, id)
	}
	for _, id := range o.files[path] {
		if !slices.Contains(current, id) {
			delete(o.decls, id)
			delete(o.exhausted, id)
			o.logger.Debug("forgot " + id.String())
		}
	}
	if len(current) == 0 {
		delete(o.files, path)
	} else {
		o.files[path] = current
	}
	p := o.pool
	o.mu.Unlock()

	for _, d := range found {
		if d.changed {
			o.logger.Debug(d.decl.Identity.String() + " is at " + d.fp.Short())
		}
		if p != nil && o.selected(d.decl.Identity) {
			p.Submit(d.decl.Identity)
		}
	}
}

// forgetUnder drops every declaration of path and of files below it.
func (o *Orchestrator) forgetUnder(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prefix := path + string(filepath.Separator)
	for file, ids := range o.files {
		if file != path && !strings.HasPrefix(file, prefix) {
			continue
		}
		for _, id := range ids {
			delete(o.decls, id)
			delete(o.exhausted, id)
			o.logger.Debug("forgot " + id.String())
		}
		delete(o.files, file)
	}
}

func (o *Orchestrator) selected(id domain.Identity) bool {
	if len(o.only) == 0 {
		return true
	}
	return slices.ContainsFunc(o.only, func(s string) bool {
		return s == id.String() || s == id.Name()
	})
}

// current reports whether fp is still the latest fingerprint of id.
func (o *Orchestrator) current(id domain.Identity, fp domain.Fingerprint) bool {
	got, ok := o.Fingerprint(id)
	return ok && got == fp
}

// process runs one flight for id. Errors are logged and recorded, never propagated:
// one identity failing must not stop the others.
func (o *Orchestrator) process(ctx context.Context, id domain.Identity) {
	o.mu.Lock()
	d, ok := o.decls[id]
	force := o.force
	summary := o.summary
	o.mu.Unlock()
	if !ok || ctx.Err() != nil {
		return
	}

	if !force {
		needs, state, err := o.needsGeneration(ctx, d)
		if err != nil {
			o.logger.Error(err)
			summary.set(id, Outcome{State: domain.StatePending, Err: err})
			return
		}
		if !needs {
			outcome := Outcome{State: state}
			if state == domain.StateExhausted {
				outcome.Err = zerr.With(zerr.Wrap(domain.ErrExhausted, "attempt budget spent"), "identity", id.String())
			}
			summary.set(id, outcome)
			return
		}
	}

	res, err := o.gen.Generate(ctx, generator.Request{
		Declaration:  d.decl,
		Fingerprint:  d.fp,
		Force:        force,
		StillCurrent: func() bool { return o.current(id, d.fp) },
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrExhausted):
		o.mu.Lock()
		o.exhausted[id] = d.fp
		o.mu.Unlock()
	case ctx.Err() != nil:
		return
	default:
		o.logger.Error(err)
	}
	summary.set(id, Outcome{State: res.State, Err: err})
}

// needsGeneration decides whether d needs a flight. When it does not, the returned state says why.
func (o *Orchestrator) needsGeneration(ctx context.Context, d declared) (bool, domain.GenerationState, error) {
	id := d.decl.Identity

	pin, err := o.store.Pin(ctx, id)
	if err != nil {
		return false, domain.StatePending, err
	}
	if pin != nil {
		return false, domain.StateSkipped, nil
	}

	if d.decl.Frozen {
		entries, err := o.store.Entries(ctx, id)
		if err != nil {
			return false, domain.StatePending, err
		}
		if slices.ContainsFunc(entries, func(e domain.CacheEntry) bool { return e.Status.Servable() }) {
			return false, domain.StateSkipped, nil
		}
	}

	entry, err := o.store.Get(ctx, id, d.fp)
	if err != nil {
		return false, domain.StatePending, err
	}
	if entry != nil && entry.Status.Servable() {
		return false, domain.StateSkipped, nil
	}

	history, err := o.store.Attempts(ctx, id, d.fp)
	if err != nil {
		return false, domain.StatePending, err
	}
	if domain.CandidateFailures(history) >= o.cfg.Generator.AttemptBudget() {
		o.markExhausted(id, d.fp)
		return false, domain.StateExhausted, nil
	}
	return true, domain.StatePending, nil
}

// markExhausted reports an exhausted fingerprint once.
func (o *Orchestrator) markExhausted(id domain.Identity, fp domain.Fingerprint) {
	o.mu.Lock()
	reported := o.exhausted[id] == fp
	o.exhausted[id] = fp
	o.mu.Unlock()
	if !reported {
		o.logger.Warn(id.String() + ": no candidate passed its tests, edit the declaration or run generate --force")
	}
}

func isGoFile(path string) bool {
	return strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go")
}
