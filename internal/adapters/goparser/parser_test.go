package goparser_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/parablock/internal/adapters/goparser"
	"go.trai.ch/parablock/internal/core/domain"
)

const greetingSource = `//go:build parablock

package demo

import (
	"strings"

	"go.trai.ch/parablock/check"
)

// Greeting returns a friendly greeting that contains the given name.
func Greeting(name string) string {
	check.True(strings.Contains(fn("Susan"), "Susan"), "greeting mentions the name")
}

// Join concatenates parts with sep between them.
//
//parablock:frozen
func Join(sep string, parts ...string) string {}

// Divide returns the quotient and remainder.
func Divide(a, b int) (q, r int) {
	q, r = fn(7, 2)
	check.Equal(q, 3)
	check.Equal(r, 1)
}

// Log has no results.
func Log(msg string) {}
`

func TestParseSource_Declarations(t *testing.T) {
	p := goparser.New()

	res, err := p.ParseSource("example.com/demo", "demo.go", []byte(greetingSource))
	require.NoError(t, err)
	require.Empty(t, res.Malformed)
	require.Len(t, res.Declarations, 4)

	greeting := res.Declarations[0]
	assert.Equal(t, "example.com/demo.Greeting", greeting.Identity.String())
	assert.Equal(t, "Greeting returns a friendly greeting that contains the given name.", greeting.Doc)
	assert.Equal(t, []domain.Param{{Name: "name", Type: "string"}}, greeting.Params)
	assert.Equal(t, "string", greeting.Results)
	assert.Equal(t, `check.True(strings.Contains(fn("Susan"), "Susan"), "greeting mentions the name")`, greeting.TestBody)
	assert.Equal(t, []domain.Import{{Path: "strings"}}, greeting.Imports, "the check package is implicit")
	assert.False(t, greeting.Frozen)
	assert.Equal(t, "demo.go", greeting.File)

	join := res.Declarations[1]
	assert.True(t, join.Frozen)
	assert.True(t, join.Variadic())
	assert.Equal(t, "Join concatenates parts with sep between them.", join.Doc, "directives are not part of the doc")
	assert.False(t, join.HasTests())
	assert.Equal(t, "func Join(sep string, parts ...string) string", join.Header())

	divide := res.Declarations[2]
	assert.Equal(t, []domain.Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}}, divide.Params)
	assert.Equal(t, "(q, r int)", divide.Results)
	assert.Equal(t, "q, r = fn(7, 2)\ncheck.Equal(q, 3)\ncheck.Equal(r, 1)", divide.TestBody)

	log := res.Declarations[3]
	assert.Empty(t, log.Results)
	assert.Equal(t, "func Log(msg string)", log.Header())
}

func TestParseSource_StableAcrossReparse(t *testing.T) {
	p := goparser.New()

	first, err := p.ParseSource("example.com/demo", "demo.go", []byte(greetingSource))
	require.NoError(t, err)
	second, err := p.ParseSource("example.com/demo", "demo.go", []byte(greetingSource))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for i := range first.Declarations {
		a, err := domain.ComputeFingerprint(first.Declarations[i])
		require.NoError(t, err)
		b, err := domain.ComputeFingerprint(second.Declarations[i])
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestParseSource_WithoutBuildTag(t *testing.T) {
	src := "package demo\n\n// Greeting greets.\nfunc Greeting(name string) string { return name }\n"

	res, err := goparser.New().ParseSource("example.com/demo", "demo.go", []byte(src))
	require.NoError(t, err)
	assert.Empty(t, res.Declarations)
	assert.Empty(t, res.Malformed)
}

func TestParseSource_Malformed(t *testing.T) {
	src := `//go:build parablock

package demo

type T struct{}

// Method has a receiver.
func (T) Method(x int) int {}

// Generic has type parameters.
func Generic[E any](x E) E {}

// Unnamed has an unnamed parameter.
func Unnamed(int) int {}

// Blank has a blank parameter.
func Blank(_ int) int {}

// Fine is well formed.
func Fine(x int) int {}
`
	res, err := goparser.New().ParseSource("example.com/demo", "demo.go", []byte(src))
	require.NoError(t, err)

	require.Len(t, res.Declarations, 1)
	assert.Equal(t, "Fine", res.Declarations[0].Name())
	require.Len(t, res.Malformed, 4)
	for _, m := range res.Malformed {
		assert.ErrorIs(t, m, domain.ErrMalformedDeclaration)
	}
}

func TestParseSource_SyntaxError(t *testing.T) {
	src := "//go:build parablock\n\npackage demo\n\nfunc Broken(x int int {}\n"

	_, err := goparser.New().ParseSource("example.com/demo", "demo.go", []byte(src))
	require.ErrorIs(t, err, domain.ErrMalformedDeclaration)
}

func TestHasBuildTag(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{name: "plain tag", src: "//go:build parablock\n\npackage p\n", want: true},
		{name: "after comment", src: "// Copyright.\n\n//go:build parablock\n\npackage p\n", want: true},
		{name: "compound", src: "//go:build parablock && linux\n\npackage p\n", want: false},
		{name: "negated", src: "//go:build !parablock\n\npackage p\n", want: false},
		{name: "other tag", src: "//go:build integration\n\npackage p\n", want: false},
		{name: "none", src: "package p\n", want: false},
		{name: "after package", src: "package p\n\n//go:build parablock\n", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, goparser.HasBuildTag([]byte(tt.src)))
		})
	}
}

func TestParseFile_ResolvesImportPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/demo\n\ngo 1.25\n"), 0o600))
	dir := filepath.Join(root, "internal", "text")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	file := filepath.Join(dir, "fns.go")
	require.NoError(t, os.WriteFile(file, []byte(greetingSource), 0o600))

	p := goparser.New()
	res, err := p.ParseFile(file)
	require.NoError(t, err)
	require.NotEmpty(t, res.Declarations)
	assert.Equal(t, "example.com/demo/internal/text", res.Declarations[0].Identity.Package())
	assert.Equal(t, file, res.Declarations[0].File)

	importPath, err := p.ImportPath(root)
	require.NoError(t, err)
	assert.Equal(t, "example.com/demo", importPath)
}

func TestParseFile_NoModule(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "fns.go")
	require.NoError(t, os.WriteFile(file, []byte(greetingSource), 0o600))

	_, err := goparser.New().ParseFile(file)
	// The temp dir may live under a module on some machines; only assert the sentinel when it fails.
	if err != nil {
		assert.ErrorIs(t, err, domain.ErrModuleNotFound)
	}
}

func TestParseFile_Missing(t *testing.T) {
	_, err := goparser.New().ParseFile(filepath.Join(t.TempDir(), "absent.go"))
	require.Error(t, err)
}
