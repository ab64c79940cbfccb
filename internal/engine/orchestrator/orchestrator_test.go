package orchestrator_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"go.trai.ch/parablock/internal/adapters/cas"
	"go.trai.ch/parablock/internal/adapters/goparser"
	"go.trai.ch/parablock/internal/adapters/watcher"
	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
	"go.trai.ch/parablock/internal/core/ports/mocks"
	"go.trai.ch/parablock/internal/engine/generator"
	"go.trai.ch/parablock/internal/engine/orchestrator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGenerator records requests and answers them with respond, Accepted by default.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []generator.Request
	respond  func(generator.Request) (generator.Result, error)
	seen     chan generator.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req generator.Request) (generator.Result, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.seen != nil {
		g.seen <- req
	}
	if g.respond != nil {
		return g.respond(req)
	}
	return generator.Result{State: domain.StateAccepted, Attempts: 1}, nil
}

func (g *fakeGenerator) names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.requests))
	for _, r := range g.requests {
		names = append(names, r.Declaration.Name())
	}
	return names
}

func decl(name string) domain.FunctionDeclaration {
	return domain.FunctionDeclaration{
		Identity: domain.NewIdentity("example.com/demo", name),
		Params:   []domain.Param{{Name: "s", Type: "string"}},
		Results:  "string",
		Doc:      name + " transforms s.",
	}
}

func fingerprint(t *testing.T, d domain.FunctionDeclaration) domain.Fingerprint {
	t.Helper()
	fp, err := domain.ComputeFingerprint(d)
	require.NoError(t, err)
	return fp
}

func quietLogger(ctrl *gomock.Controller) *mocks.MockLogger {
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any()).AnyTimes()
	logger.EXPECT().Info(gomock.Any()).AnyTimes()
	logger.EXPECT().Warn(gomock.Any()).AnyTimes()
	logger.EXPECT().Error(gomock.Any()).AnyTimes()
	return logger
}

type fixture struct {
	root    string
	file    string
	store   *cas.Store
	parser  *mocks.MockDeclarationParser
	sandbox *mocks.MockSandbox
	gen     *fakeGenerator
	orch    *orchestrator.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	root := t.TempDir()
	file := filepath.Join(root, "demo.go")
	require.NoError(t, os.WriteFile(file, []byte("//go:build parablock\n\npackage demo\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".parablock", "ignored"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".parablock", "ignored", "x.go"), []byte("package x\n"), 0o600))

	store, err := cas.NewStore(filepath.Join(root, ".parablock", "store"))
	require.NoError(t, err)

	cfg := domain.DefaultConfig()
	cfg.Watch.Workers = 2

	f := &fixture{
		root:    root,
		file:    file,
		store:   store,
		parser:  mocks.NewMockDeclarationParser(ctrl),
		sandbox: mocks.NewMockSandbox(ctrl),
		gen:     &fakeGenerator{},
	}
	f.orch = orchestrator.New(f.parser, store, f.gen, f.sandbox, nil, quietLogger(ctrl), cfg)
	return f
}

func (f *fixture) declares(decls ...domain.FunctionDeclaration) *gomock.Call {
	return f.parser.EXPECT().ParseFile(f.file).Return(ports.ParseResult{Declarations: decls}, nil)
}

func (f *fixture) commit(t *testing.T, d domain.FunctionDeclaration, fp domain.Fingerprint) {
	t.Helper()
	require.NoError(t, f.store.Commit(context.Background(), domain.CacheEntry{
		Identity:       d.Identity,
		Fingerprint:    fp,
		Implementation: "package main\n",
		Status:         domain.StatusAccepted,
		Test:           domain.TestResult{Outcome: domain.OutcomePass},
	}))
}

func states(s *orchestrator.Summary) map[string]domain.GenerationState {
	out := make(map[string]domain.GenerationState)
	for _, r := range s.Results() {
		out[r.Identity.Name()] = r.State
	}
	return out
}

func TestSync_GeneratesMissing(t *testing.T) {
	f := newFixture(t)
	f.declares(decl("Upper"), decl("Lower"))

	summary, err := f.orch.Sync(context.Background(), f.root, orchestrator.SyncOptions{})
	require.NoError(t, err)
	require.NoError(t, summary.Err())

	assert.ElementsMatch(t, []string{"Upper", "Lower"}, f.gen.names())
	assert.Equal(t, map[string]domain.GenerationState{
		"Lower": domain.StateAccepted,
		"Upper": domain.StateAccepted,
	}, states(summary))

	for _, req := range f.gen.requests {
		assert.Equal(t, fingerprint(t, req.Declaration), req.Fingerprint)
		assert.False(t, req.Force)
		assert.True(t, req.StillCurrent())
	}
}

func TestSync_SkipsWhatNeedsNoGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	accepted := decl("Accepted")
	f.commit(t, accepted, fingerprint(t, accepted))

	pinned := decl("Pinned")
	old := pinned
	old.Doc = "an older description"
	f.commit(t, pinned, fingerprint(t, old))
	_, err := f.store.Freeze(ctx, pinned.Identity)
	require.NoError(t, err)

	frozen := decl("Frozen")
	frozen.Frozen = true
	f.commit(t, frozen, fingerprint(t, old))

	exhausted := decl("Exhausted")
	for range 3 {
		_, err := f.store.RecordAttempt(ctx, domain.GenerationAttempt{
			Identity:    exhausted.Identity,
			Fingerprint: fingerprint(t, exhausted),
			Outcome:     domain.OutcomeAssertionFailed,
		})
		require.NoError(t, err)
	}

	failed := decl("Failed")
	f.commit(t, failed, fingerprint(t, failed))
	require.NoError(t, f.store.MarkFailed(ctx, failed.Identity, fingerprint(t, failed),
		domain.TestResult{Outcome: domain.OutcomeAssertionFailed}))

	f.declares(accepted, pinned, frozen, exhausted, failed)

	summary, err := f.orch.Sync(ctx, f.root, orchestrator.SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Failed"}, f.gen.names(), "a failed entry counts as missing")
	assert.Equal(t, map[string]domain.GenerationState{
		"Accepted":  domain.StateSkipped,
		"Pinned":    domain.StateSkipped,
		"Frozen":    domain.StateSkipped,
		"Exhausted": domain.StateExhausted,
		"Failed":    domain.StateAccepted,
	}, states(summary))
	require.ErrorIs(t, summary.Err(), domain.ErrExhausted)
}

func TestSync_ForceAndOnly(t *testing.T) {
	f := newFixture(t)
	upper := decl("Upper")
	f.commit(t, upper, fingerprint(t, upper))
	f.declares(upper, decl("Lower"))

	_, err := f.orch.Sync(context.Background(), f.root, orchestrator.SyncOptions{
		Force: true,
		Only:  []string{"example.com/demo.Upper"},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"Upper"}, f.gen.names())
	assert.True(t, f.gen.requests[0].Force)
}

func TestSync_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.gen.respond = func(req generator.Request) (generator.Result, error) {
		if req.Declaration.Name() == "Broken" {
			return generator.Result{State: domain.StatePending},
				zerr.Wrap(domain.ErrServiceUnavailable, "status 503")
		}
		return generator.Result{State: domain.StateAccepted}, nil
	}
	f.declares(decl("Broken"), decl("Fine"))

	summary, err := f.orch.Sync(context.Background(), f.root, orchestrator.SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]domain.GenerationState{
		"Broken": domain.StatePending,
		"Fine":   domain.StateAccepted,
	}, states(summary))
	require.ErrorIs(t, summary.Err(), domain.ErrServiceUnavailable)
}

func TestSync_ForgetsRemovedDeclarations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gomock.InOrder(
		f.declares(decl("Upper"), decl("Lower")),
		f.declares(decl("Upper")),
	)

	_, err := f.orch.Sync(ctx, f.root, orchestrator.SyncOptions{})
	require.NoError(t, err)
	assert.Len(t, f.orch.Known(), 2)

	_, err = f.orch.Sync(ctx, f.root, orchestrator.SyncOptions{})
	require.NoError(t, err)
	known := f.orch.Known()
	require.Len(t, known, 1)
	assert.Equal(t, "Upper", known[0].Name())

	_, ok := f.orch.Fingerprint(decl("Lower").Identity)
	assert.False(t, ok)
}

func TestSync_MalformedFileKeepsOtherFiles(t *testing.T) {
	f := newFixture(t)
	other := filepath.Join(f.root, "other.go")
	require.NoError(t, os.WriteFile(other, []byte("//go:build parablock\n\npackage demo\n"), 0o600))

	f.parser.EXPECT().ParseFile(f.file).
		Return(ports.ParseResult{}, zerr.Wrap(domain.ErrMalformedDeclaration, "1:1: expected package"))
	f.parser.EXPECT().ParseFile(other).Return(ports.ParseResult{
		Declarations: []domain.FunctionDeclaration{decl("Upper")},
		Malformed:    []error{zerr.Wrap(domain.ErrMalformedDeclaration, "method")},
	}, nil)

	_, err := f.orch.Sync(context.Background(), f.root, orchestrator.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Upper"}, f.gen.names())
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good, bad, missing := decl("Good"), decl("Bad"), decl("Missing")
	f.commit(t, good, fingerprint(t, good))
	f.commit(t, bad, fingerprint(t, bad))
	f.declares(good, bad, missing)

	f.sandbox.EXPECT().Run(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tc domain.TestCase) (domain.TestResult, error) {
			if tc.Declaration.Name() == "Bad" {
				return domain.TestResult{Outcome: domain.OutcomeAssertionFailed, Detail: "no"}, nil
			}
			return domain.TestResult{Outcome: domain.OutcomePass}, nil
		}).Times(2)

	verdicts, err := f.orch.Verify(ctx, f.root)
	require.NoError(t, err)
	require.Len(t, verdicts, 3)

	assert.Equal(t, "Bad", verdicts[0].Identity.Name())
	assert.Equal(t, domain.OutcomeAssertionFailed, verdicts[0].Result.Outcome)
	assert.Equal(t, "Good", verdicts[1].Identity.Name())
	assert.True(t, verdicts[1].Result.Passed())
	assert.Equal(t, "Missing", verdicts[2].Identity.Name())
	assert.True(t, verdicts[2].Missing)

	entry, err := f.store.Lookup(ctx, bad.Identity, fingerprint(t, bad))
	require.NoError(t, err)
	assert.Nil(t, entry, "a demoted entry is not served")
	assert.Empty(t, f.gen.names(), "verify never generates")
}

const declarationFile = `//go:build parablock

package demo

import "strings"

// %s
func Greeting(name string) string {
	check.True(strings.Contains(fn("Susan"), "Susan"))
}
`

func TestRun_RegeneratesOnChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/demo\n\ngo 1.25\n"), 0o600))
	file := filepath.Join(root, "greeting.go")
	write := func(doc string) {
		require.NoError(t, os.WriteFile(file, []byte(fmt.Sprintf(declarationFile, doc)), 0o600))
	}
	write("Greeting greets.")

	store, err := cas.NewStore(filepath.Join(root, ".parablock", "store"))
	require.NoError(t, err)
	logger := quietLogger(ctrl)
	w, err := watcher.NewWatcher(logger, []string{".parablock"})
	require.NoError(t, err)

	cfg := domain.DefaultConfig()
	cfg.Watch.Debounce = 10 * time.Millisecond
	gen := &fakeGenerator{seen: make(chan generator.Request, 16)}
	orch := orchestrator.New(goparser.New(), store, gen, nil, w, logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx, root) }()

	first := receive(t, gen.seen)
	assert.Equal(t, "example.com/demo.Greeting", first.Declaration.Identity.String())

	write("Greeting greets warmly.")
	for {
		next := receive(t, gen.seen)
		if next.Fingerprint != first.Fingerprint {
			assert.Equal(t, "Greeting greets warmly.", next.Declaration.Doc)
			assert.True(t, next.StillCurrent())
			break
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func receive(t *testing.T, ch <-chan generator.Request) generator.Request {
	t.Helper()
	select {
	case req := <-ch:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a generation request")
		return generator.Request{}
	}
}
