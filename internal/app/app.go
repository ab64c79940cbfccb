// Package app implements the application layer for parablock.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"go.trai.ch/parablock/internal/adapters/cas"
	"go.trai.ch/parablock/internal/adapters/sandbox"
	"go.trai.ch/parablock/internal/adapters/sandbox/process"
	"go.trai.ch/parablock/internal/adapters/textgen"
	"go.trai.ch/parablock/internal/adapters/watcher"
	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
	"go.trai.ch/parablock/internal/engine/generator"
	"go.trai.ch/parablock/internal/engine/orchestrator"
)

// MetricsServer is a metrics sink that can also expose itself over HTTP.
type MetricsServer interface {
	ports.Metrics
	Serve(ctx context.Context, addr string) error
}

// logFormatter is implemented by loggers whose output format can be switched at runtime.
type logFormatter interface {
	SetJSON(enable bool)
	SetVerbose(enable bool)
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	parser       ports.DeclarationParser
	tracer       ports.Tracer
	metrics      MetricsServer
	logger       ports.Logger
	out          io.Writer
	getenv       func(string) string

	textGen ports.TextGenerator
	sandbox ports.Sandbox
	json    bool
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	parser ports.DeclarationParser,
	tracer ports.Tracer,
	metrics MetricsServer,
	log ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		parser:       parser,
		tracer:       tracer,
		metrics:      metrics,
		logger:       log,
		out:          os.Stdout,
		getenv:       os.Getenv,
	}
}

// WithOutput sets the writer command results are printed to.
func (a *App) WithOutput(w io.Writer) *App {
	a.out = w
	return a
}

// WithTextGenerator replaces the configured text-generation service.
// This is primarily used for testing to avoid network calls.
func (a *App) WithTextGenerator(gen ports.TextGenerator) *App {
	a.textGen = gen
	return a
}

// WithSandbox replaces the configured sandbox.
func (a *App) WithSandbox(sb ports.Sandbox) *App {
	a.sandbox = sb
	return a
}

// WithGetenv sets the function used to read API keys from the environment.
func (a *App) WithGetenv(getenv func(string) string) *App {
	a.getenv = getenv
	return a
}

// SetLogFormat switches the logger to JSON and debug output when supported.
// JSON mode also makes show and verify print JSON.
func (a *App) SetLogFormat(json, verbose bool) {
	a.json = json
	if f, ok := a.logger.(logFormatter); ok {
		f.SetJSON(json)
		f.SetVerbose(verbose)
	}
}

// GenerateOptions configuration for the Generate method.
type GenerateOptions struct {
	Force bool
	Only  []string
}

// session holds what every command resolves from the configuration.
type session struct {
	cfg     domain.Config
	store   *cas.Store
	sandbox ports.Sandbox
}

func (a *App) open() (session, error) {
	cfg, err := a.configLoader.Load(".")
	if err != nil {
		return session{}, zerr.Wrap(err, "failed to load configuration")
	}

	store, err := cas.NewStore(cfg.Store)
	if err != nil {
		return session{}, err
	}

	sb := a.sandbox
	if sb == nil {
		sb, err = newSandbox(cfg.Sandbox)
		if err != nil {
			return session{}, err
		}
	}
	return session{cfg: cfg, store: store, sandbox: sb}, nil
}

func newSandbox(cfg domain.SandboxConfig) (ports.Sandbox, error) {
	if cfg.Isolation == domain.IsolationProcess {
		return process.NewRunner(cfg)
	}
	return sandbox.NewHarness(cfg), nil
}

// orchestrator builds the generation engine and the orchestrator around it.
// w may be nil for commands that never watch.
func (a *App) orchestrator(ctx context.Context, s session, w ports.Watcher) (*orchestrator.Orchestrator, error) {
	gen := a.textGen
	if gen == nil {
		var err error
		gen, err = textgen.New(ctx, s.cfg.Generator, a.getenv)
		if err != nil {
			return nil, err
		}
	}

	engine := generator.NewEngine(s.store, s.sandbox, gen, a.tracer, a.metrics, a.logger, s.cfg)
	return orchestrator.New(a.parser, s.store, engine, s.sandbox, w, a.logger, s.cfg), nil
}

// Watch generates missing implementations and keeps them current until ctx is canceled.
func (a *App) Watch(ctx context.Context) error {
	s, err := a.open()
	if err != nil {
		return err
	}

	w, err := watcher.NewWatcher(a.logger, s.cfg.Watch.Ignore)
	if err != nil {
		return err
	}

	orch, err := a.orchestrator(ctx, s, w)
	if err != nil {
		return err
	}

	a.logger.Info(fmt.Sprintf("watching %s", s.cfg.Root))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(ctx, s.cfg.Root)
	})
	if addr := s.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error {
			a.logger.Info(fmt.Sprintf("serving metrics on http://%s/metrics", addr))
			return a.metrics.Serve(ctx, addr)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Generate runs one generation pass over the project and reports the outcome per identity.
func (a *App) Generate(ctx context.Context, opts GenerateOptions) error {
	s, err := a.open()
	if err != nil {
		return err
	}

	orch, err := a.orchestrator(ctx, s, nil)
	if err != nil {
		return err
	}

	summary, err := orch.Sync(ctx, s.cfg.Root, orchestrator.SyncOptions{Force: opts.Force, Only: opts.Only})
	if err != nil {
		return err
	}

	results := summary.Results()
	if err := a.printOutcomes(results); err != nil {
		return err
	}

	if err := summary.Err(); err != nil {
		return errors.Join(domain.ErrGenerationFailed, err)
	}
	return nil
}

// Verify re-runs the tests of every committed implementation and demotes the ones that fail.
func (a *App) Verify(ctx context.Context) error {
	s, err := a.open()
	if err != nil {
		return err
	}

	orch := orchestrator.New(a.parser, s.store, nil, s.sandbox, nil, a.logger, s.cfg)
	verdicts, err := orch.Verify(ctx, s.cfg.Root)
	if err != nil {
		return err
	}

	if err := a.printVerdicts(verdicts); err != nil {
		return err
	}

	var errs error
	for _, v := range verdicts {
		switch {
		case v.Missing:
			errs = errors.Join(errs, zerr.With(
				zerr.Wrap(domain.ErrImplementationUnavailable, "no committed implementation"),
				"identity", v.Identity.String(),
			))
		case !v.Result.Passed():
			errs = errors.Join(errs, zerr.With(
				zerr.Wrap(v.Result.Err(), "implementation no longer passes"),
				"identity", v.Identity.String(),
			))
		}
	}
	if errs != nil {
		return errors.Join(domain.ErrVerificationFailed, errs)
	}
	return nil
}

// Freeze pins an identity to its most recent accepted implementation.
func (a *App) Freeze(ctx context.Context, identity string) error {
	id, s, err := a.identity(identity)
	if err != nil {
		return err
	}

	entry, err := s.store.Freeze(ctx, id)
	if err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("froze %s at %s", id, entry.Fingerprint.Short()))
	return nil
}

// Unfreeze releases the pin of an identity.
func (a *App) Unfreeze(ctx context.Context, identity string) error {
	id, s, err := a.identity(identity)
	if err != nil {
		return err
	}

	if err := s.store.Unfreeze(ctx, id); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("unfroze %s", id))
	return nil
}

// Clear removes every record of an identity, or of every identity when it is empty.
func (a *App) Clear(ctx context.Context, identity string) error {
	if identity == "" {
		s, err := a.open()
		if err != nil {
			return err
		}
		if err := s.store.ClearAll(ctx); err != nil {
			return err
		}
		a.logger.Info(fmt.Sprintf("cleared %s", s.store.Dir()))
		return nil
	}

	id, s, err := a.identity(identity)
	if err != nil {
		return err
	}
	if err := s.store.Clear(ctx, id); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("cleared %s", id))
	return nil
}

// Show prints the stored entries, pin and latest attempts of an identity.
func (a *App) Show(ctx context.Context, identity string) error {
	id, s, err := a.identity(identity)
	if err != nil {
		return err
	}

	report, err := inspect(ctx, s.store, id)
	if err != nil {
		return err
	}
	if a.json {
		return writeJSON(a.out, report)
	}
	return renderReport(a.out, report)
}

// ServeSandbox runs one test case read from r and writes its result to w.
// The process sandbox re-executes the binary into this.
func (a *App) ServeSandbox(ctx context.Context, r io.Reader, w io.Writer) error {
	return sandbox.Serve(ctx, r, w, sandbox.NewHarness(domain.SandboxConfig{}))
}

func (a *App) identity(identity string) (domain.Identity, session, error) {
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return domain.Identity{}, session{}, err
	}
	s, err := a.open()
	if err != nil {
		return domain.Identity{}, session{}, err
	}
	return id, s, nil
}
