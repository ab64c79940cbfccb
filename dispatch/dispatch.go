// Package dispatch serves generated implementations to the program that declared them.
//
// A program embeds its declaration files and registers them, then calls declared functions
// by name:
//
//	//go:embed *.go
//	var declarations embed.FS
//
//	d, err := dispatch.Open()
//	...
//	err = d.Register("example.com/demo", declarations)
//	...
//	out, err := d.Call(ctx, "Greeting", "Susan")
//
// The dispatcher only reads the store. It never generates and never waits: a declaration
// without an accepted implementation for its current fingerprint fails with
// ErrImplementationUnavailable until the watch process commits one. A declaration marked
// //parablock:frozen is served its newest accepted implementation whatever its fingerprint.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/adapters/cas"
	"go.trai.ch/parablock/internal/adapters/goparser"
	"go.trai.ch/parablock/internal/adapters/sandbox"
	"go.trai.ch/parablock/internal/core/domain"
)

// Errors returned by the dispatcher. Match them with errors.Is.
var (
	ErrImplementationUnavailable = domain.ErrImplementationUnavailable
	ErrUnknownFunction           = domain.ErrUnknownFunction
	ErrArgumentMismatch          = domain.ErrArgumentMismatch
	ErrImplementationPanicked    = domain.ErrImplementationPanicked
	ErrMalformedDeclaration      = domain.ErrMalformedDeclaration
	ErrClosed                    = zerr.New("dispatcher is closed")
)

type options struct {
	store   string
	allowed []string
}

// Option configures Open.
type Option func(*options)

// WithStore sets the store directory. It overrides the PARABLOCK_STORE environment variable.
func WithStore(dir string) Option {
	return func(o *options) { o.store = dir }
}

// WithAllowedImports restricts the packages an implementation may import at call time.
// By default the whole standard library is available.
func WithAllowedImports(paths ...string) Option {
	return func(o *options) { o.allowed = paths }
}

// registered is a declaration together with the source it was read from.
type registered struct {
	decl   domain.FunctionDeclaration
	fp     domain.Fingerprint
	fsys   fs.FS
	file   string
	digest uint64
	pkg    string
	// broken is set while the file no longer parses.
	broken error
}

// Dispatcher resolves calls against the store. It is safe for concurrent use.
type Dispatcher struct {
	store   *cas.Store
	parser  *goparser.Parser
	allowed []string

	mu       sync.RWMutex
	closed   bool
	byID     map[domain.Identity]*registered
	byName   map[string][]domain.Identity
	compiled map[uint64]reflect.Value
}

// Open opens the store for reading. The directory is taken from WithStore, then from
// PARABLOCK_STORE, then defaults to .parablock/store under the working directory.
func Open(opts ...Option) (*Dispatcher, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == "" {
		o.store = os.Getenv(domain.StoreEnvVar)
	}
	if o.store == "" {
		o.store = domain.DefaultStorePath()
	}

	store, err := cas.NewStore(o.store)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		store:    store,
		parser:   goparser.New(),
		allowed:  o.allowed,
		byID:     make(map[domain.Identity]*registered),
		byName:   make(map[string][]domain.Identity),
		compiled: make(map[uint64]reflect.Value),
	}, nil
}

// Register reads the declaration files at the root of fsys as belonging to importPath.
// Well-formed declarations are registered even when others are malformed; the malformed
// ones are returned joined.
func (d *Dispatcher) Register(importPath string, fsys fs.FS) error {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read declarations"), "package", importPath)
	}

	var errs error
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		if err := d.load(importPath, fsys, name); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// load parses one file and replaces the declarations registered from it.
func (d *Dispatcher) load(importPath string, fsys fs.FS, name string) error {
	src, err := fs.ReadFile(fsys, name)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read declaration file"), "file", name)
	}
	res, parseErr := d.parser.ParseSource(importPath, name, src)
	digest := xxhash.Sum64(src)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	if parseErr != nil {
		// Keep the declarations known but refuse to serve them until the file parses again.
		for id, r := range d.byID {
			if r.pkg == importPath && r.file == name {
				broken := *r
				broken.digest = digest
				broken.broken = parseErr
				d.byID[id] = &broken
			}
		}
		return parseErr
	}

	for id, r := range d.byID {
		if r.pkg == importPath && r.file == name {
			d.forget(id)
		}
	}
	errs := errors.Join(res.Malformed...)
	for _, decl := range res.Declarations {
		fp, err := domain.ComputeFingerprint(decl)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		id := decl.Identity
		if _, ok := d.byID[id]; !ok {
			d.byName[decl.Name()] = append(d.byName[decl.Name()], id)
		}
		d.byID[id] = &registered{decl: decl, fp: fp, fsys: fsys, file: name, digest: digest, pkg: importPath}
	}
	return errs
}

func (d *Dispatcher) forget(id domain.Identity) {
	delete(d.byID, id)
	ids := d.byName[id.Name()]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(d.byName, id.Name())
	} else {
		d.byName[id.Name()] = ids
	}
}

// Call invokes the declared function name with args and returns its results.
// name is a function name, or a full identity when the name is registered by several packages.
func (d *Dispatcher) Call(ctx context.Context, name string, args ...any) (out []any, err error) {
	fn, decl, err := d.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	in, err := arguments(decl, fn.Type(), args)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = zerr.With(zerr.With(zerr.Wrap(ErrImplementationPanicked, fmt.Sprint(r)),
				"identity", decl.Identity.String()), "panic", r)
		}
	}()
	results := fn.Call(in)

	out = make([]any, len(results))
	for i, r := range results {
		out[i] = r.Interface()
	}
	return out, nil
}

// Get resolves name once and returns the implementation as a typed function. The returned
// function is bound to the implementation served at the time of the call; call Get again to
// pick up a newer one. Panics of the implementation propagate to the caller.
func Get[F any](ctx context.Context, d *Dispatcher, name string) (F, error) {
	var zero F
	want := reflect.TypeFor[F]()
	if want.Kind() != reflect.Func {
		return zero, zerr.With(zerr.Wrap(ErrArgumentMismatch, "type parameter is not a function"), "type", want.String())
	}

	fn, decl, err := d.resolve(ctx, name)
	if err != nil {
		return zero, err
	}
	switch {
	case fn.Type().AssignableTo(want):
	case fn.Type().ConvertibleTo(want):
		fn = fn.Convert(want)
	default:
		return zero, zerr.With(zerr.With(zerr.Wrap(ErrArgumentMismatch, "implementation is "+fn.Type().String()),
			"identity", decl.Identity.String()), "type", want.String())
	}
	f, ok := fn.Interface().(F)
	if !ok {
		return zero, zerr.With(zerr.Wrap(ErrArgumentMismatch, "implementation is "+fn.Type().String()), "type", want.String())
	}
	return f, nil
}

// Close releases compiled implementations. Calls after Close fail with ErrClosed.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	clear(d.compiled)
	clear(d.byID)
	clear(d.byName)
	return nil
}

// resolve finds the current declaration for name, looks up its implementation and compiles it.
func (d *Dispatcher) resolve(ctx context.Context, name string) (reflect.Value, domain.FunctionDeclaration, error) {
	r, err := d.current(name)
	if err != nil {
		return reflect.Value{}, domain.FunctionDeclaration{}, err
	}

	entry, err := d.store.Lookup(ctx, r.decl.Identity, r.fp)
	if err != nil {
		return reflect.Value{}, r.decl, err
	}
	if entry == nil && r.decl.Frozen {
		entry, err = d.newestServable(ctx, r.decl.Identity)
		if err != nil {
			return reflect.Value{}, r.decl, err
		}
	}
	if entry == nil {
		return reflect.Value{}, r.decl, zerr.With(zerr.With(zerr.Wrap(ErrImplementationUnavailable, "no accepted implementation"),
			"identity", r.decl.Identity.String()), "fingerprint", r.fp.String())
	}

	fn, err := d.compile(ctx, r.decl, entry)
	return fn, r.decl, err
}

// newestServable returns the most recent servable entry of id whatever its fingerprint.
// Declarations marked frozen in source keep being served across edits.
func (d *Dispatcher) newestServable(ctx context.Context, id domain.Identity) (*domain.CacheEntry, error) {
	entries, err := d.store.Entries(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Status.Servable() {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// current returns the registration for name, rereading its file when the source changed.
func (d *Dispatcher) current(name string) (*registered, error) {
	r, err := d.lookup(name)
	if err != nil {
		return nil, err
	}

	src, err := fs.ReadFile(r.fsys, r.file)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read declaration file"), "file", r.file)
	}
	if xxhash.Sum64(src) == r.digest {
		if r.broken != nil {
			return nil, r.broken
		}
		return r, nil
	}

	// The file changed since it was registered, so fingerprints may have moved.
	loadErr := d.load(r.pkg, r.fsys, r.file)
	next, err := d.lookup(r.decl.Identity.String())
	switch {
	case err != nil && loadErr != nil:
		return nil, loadErr
	case err != nil:
		return nil, err
	case next.broken != nil:
		return nil, next.broken
	}
	return next, nil
}

func (d *Dispatcher) lookup(name string) (*registered, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	if strings.Contains(name, ".") {
		id, err := domain.ParseIdentity(name)
		if err == nil {
			if r, ok := d.byID[id]; ok {
				return r, nil
			}
		}
		return nil, zerr.With(zerr.Wrap(ErrUnknownFunction, "not registered"), "function", name)
	}

	ids := d.byName[name]
	switch len(ids) {
	case 0:
		return nil, zerr.With(zerr.Wrap(ErrUnknownFunction, "not registered"), "function", name)
	case 1:
		return d.byID[ids[0]], nil
	default:
		return nil, zerr.With(zerr.Wrap(ErrUnknownFunction, "registered by several packages, use the full identity"),
			"function", name)
	}
}

// compile interprets the implementation once per identity, fingerprint and source.
func (d *Dispatcher) compile(ctx context.Context, decl domain.FunctionDeclaration, entry *domain.CacheEntry) (reflect.Value, error) {
	key := xxhash.Sum64String(entry.Identity.String() + "\x00" + entry.Fingerprint.String() + "\x00" + entry.Implementation)

	d.mu.RLock()
	fn, ok := d.compiled[key]
	d.mu.RUnlock()
	if ok {
		return fn, nil
	}

	i, err := sandbox.NewInterpreter(d.allowed, nil)
	if err != nil {
		return reflect.Value{}, err
	}
	if _, err := i.EvalWithContext(ctx, entry.Implementation); err != nil {
		return reflect.Value{}, zerr.With(zerr.Wrap(ErrImplementationUnavailable, "implementation does not compile: "+err.Error()),
			"identity", decl.Identity.String())
	}
	fn, err = i.EvalWithContext(ctx, "main."+decl.Name())
	if err != nil || fn.Kind() != reflect.Func {
		return reflect.Value{}, zerr.With(zerr.Wrap(ErrImplementationUnavailable, "implementation does not define the function"),
			"identity", decl.Identity.String())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return reflect.Value{}, ErrClosed
	}
	d.compiled[key] = fn
	return fn, nil
}

// arguments converts args to the parameter types of fn.
func arguments(decl domain.FunctionDeclaration, ft reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
	}
	if len(args) < fixed || (!ft.IsVariadic() && len(args) != fixed) {
		return nil, zerr.With(zerr.Wrap(ErrArgumentMismatch, fmt.Sprintf("want %d arguments, got %d", ft.NumIn(), len(args))),
			"identity", decl.Identity.String())
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var target reflect.Type
		if i < fixed {
			target = ft.In(i)
		} else {
			target = ft.In(fixed).Elem()
		}
		v, ok := convert(arg, target)
		if !ok {
			return nil, zerr.With(zerr.With(zerr.Wrap(ErrArgumentMismatch, fmt.Sprintf("argument %d is %T, want %s", i, arg, target)),
				"identity", decl.Identity.String()), "argument", i)
		}
		in[i] = v
	}
	return in, nil
}

func convert(arg any, target reflect.Type) (reflect.Value, bool) {
	if arg == nil {
		switch target.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(target), true
		default:
			return reflect.Value{}, false
		}
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(target) {
		return v, true
	}
	if numeric(v.Kind()) && numeric(target.Kind()) && v.CanConvert(target) {
		return v.Convert(target), true
	}
	return reflect.Value{}, false
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
