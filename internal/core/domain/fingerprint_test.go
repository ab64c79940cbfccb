package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/parablock/internal/core/domain"
)

func greeting() domain.FunctionDeclaration {
	return domain.FunctionDeclaration{
		Identity: domain.NewIdentity("example.com/demo", "Greeting"),
		Params:   []domain.Param{{Name: "name", Type: "string"}},
		Results:  "string",
		Doc:      "Greeting returns a friendly greeting\nthat contains the given name.",
		TestBody: `check.True(strings.Contains(fn("Susan"), "Susan"), "mentions the name")`,
	}
}

func mustFingerprint(t *testing.T, decl domain.FunctionDeclaration) domain.Fingerprint {
	t.Helper()
	fp, err := domain.ComputeFingerprint(decl)
	require.NoError(t, err)
	return fp
}

func TestFingerprintDeterministic(t *testing.T) {
	a := mustFingerprint(t, greeting())
	b := mustFingerprint(t, greeting())

	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 16)
	assert.Equal(t, a.String()[:8], a.Short())
}

func TestFingerprintNormalization(t *testing.T) {
	base := mustFingerprint(t, greeting())

	tests := []struct {
		name    string
		mutate  func(*domain.FunctionDeclaration)
		changes bool
	}{
		{
			name: "docstring whitespace",
			mutate: func(d *domain.FunctionDeclaration) {
				d.Doc = "\n  Greeting   returns a friendly greeting  \n\tthat contains the given name.\n\n"
			},
		},
		{
			name: "test body indentation and comments",
			mutate: func(d *domain.FunctionDeclaration) {
				d.TestBody = "\n\t// the name must appear\n\tcheck.True(strings.Contains(fn(\"Susan\"),   \"Susan\"), \"mentions the name\")\n\n"
			},
		},
		{
			name: "source file moves",
			mutate: func(d *domain.FunctionDeclaration) {
				d.File = "/elsewhere/demo.go"
			},
		},
		{
			name:    "docstring content",
			mutate:  func(d *domain.FunctionDeclaration) { d.Doc = "Greeting returns a rude greeting." },
			changes: true,
		},
		{
			name:    "paragraph break added",
			mutate:  func(d *domain.FunctionDeclaration) { d.Doc = "Greeting returns a friendly greeting\n\nthat contains the given name." },
			changes: true,
		},
		{
			name:    "parameter type",
			mutate:  func(d *domain.FunctionDeclaration) { d.Params[0].Type = "[]byte" },
			changes: true,
		},
		{
			name:    "result type",
			mutate:  func(d *domain.FunctionDeclaration) { d.Results = "(string, error)" },
			changes: true,
		},
		{
			name:    "test body",
			mutate:  func(d *domain.FunctionDeclaration) { d.TestBody = `check.Equal("Hello, Susan!", fn("Susan"))` },
			changes: true,
		},
		{
			name:    "tests removed",
			mutate:  func(d *domain.FunctionDeclaration) { d.TestBody = "" },
			changes: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decl := greeting()
			decl.Params = append([]domain.Param(nil), decl.Params...)
			tt.mutate(&decl)
			got := mustFingerprint(t, decl)
			if tt.changes {
				assert.NotEqual(t, base, got)
			} else {
				assert.Equal(t, base, got)
			}
		})
	}
}

func TestFingerprintParameterOrder(t *testing.T) {
	decl := domain.FunctionDeclaration{
		Identity: domain.NewIdentity("example.com/demo", "Sub"),
		Params:   []domain.Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
		Results:  "int",
	}
	swapped := decl
	swapped.Params = []domain.Param{{Name: "b", Type: "int"}, {Name: "a", Type: "int"}}

	assert.NotEqual(t, mustFingerprint(t, decl), mustFingerprint(t, swapped))
}

func TestFingerprintEmptyDocIsLegal(t *testing.T) {
	decl := greeting()
	decl.Doc = ""

	_, err := domain.ComputeFingerprint(decl)
	require.NoError(t, err)
}

func TestFingerprintMalformed(t *testing.T) {
	tests := []struct {
		name string
		decl domain.FunctionDeclaration
	}{
		{name: "no identity", decl: domain.FunctionDeclaration{}},
		{
			name: "unnamed parameter",
			decl: domain.FunctionDeclaration{
				Identity: domain.NewIdentity("example.com/demo", "F"),
				Params:   []domain.Param{{Name: "", Type: "int"}},
			},
		},
		{
			name: "blank parameter",
			decl: domain.FunctionDeclaration{
				Identity: domain.NewIdentity("example.com/demo", "F"),
				Params:   []domain.Param{{Name: "_", Type: "int"}},
			},
		},
		{
			name: "untyped parameter",
			decl: domain.FunctionDeclaration{
				Identity: domain.NewIdentity("example.com/demo", "F"),
				Params:   []domain.Param{{Name: "x", Type: " "}},
			},
		},
		{
			name: "variadic not last",
			decl: domain.FunctionDeclaration{
				Identity: domain.NewIdentity("example.com/demo", "F"),
				Params:   []domain.Param{{Name: "xs", Type: "...int"}, {Name: "y", Type: "int"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.ComputeFingerprint(tt.decl)
			require.ErrorIs(t, err, domain.ErrMalformedDeclaration)
		})
	}
}

func TestNormalizeDoc(t *testing.T) {
	assert.Equal(t, "a b\n\nc", domain.NormalizeDoc("\n\n  a   b \n\n\n\t c  \n\n"))
	assert.Empty(t, domain.NormalizeDoc(" \n\t\n"))
}
