package domain

import (
	"bytes"
	"fmt"
	"go/parser"
	"go/printer"
	"go/token"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// fingerprintVersion is mixed into every digest so normalization changes invalidate deliberately.
const fingerprintVersion = "parablock/fingerprint/v1"

// Fingerprint is a digest of a declaration's behavioral content.
type Fingerprint string

// String returns the hex form of the fingerprint.
func (f Fingerprint) String() string {
	return string(f)
}

// Short returns the first eight characters, for display.
func (f Fingerprint) Short() string {
	if len(f) > 8 {
		return string(f[:8])
	}
	return string(f)
}

// ComputeFingerprint digests the docstring, signature and test body of a declaration.
// It is pure and deterministic. Whitespace-only docstring edits, and indentation,
// blank-line or comment-only test body edits, do not change the result.
func ComputeFingerprint(decl FunctionDeclaration) (Fingerprint, error) {
	if err := validateDeclaration(decl); err != nil {
		return "", err
	}

	h := xxhash.New()
	write := func(tag, value string) {
		_, _ = h.WriteString(tag)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(value)
		_, _ = h.Write([]byte{0})
	}

	write("version", fingerprintVersion)
	write("doc", NormalizeDoc(decl.Doc))
	for _, p := range decl.Params {
		write("param", p.Name+" "+normalizeSpace(p.Type))
	}
	write("results", normalizeSpace(decl.Results))
	write("tests", NormalizeTestBody(decl.TestBody))

	return Fingerprint(fmt.Sprintf("%016x", h.Sum64())), nil
}

func validateDeclaration(decl FunctionDeclaration) error {
	if decl.Identity.IsZero() {
		return zerr.Wrap(ErrMalformedDeclaration, "declaration has no identity")
	}
	for i, p := range decl.Params {
		if p.Name == "" || p.Name == "_" {
			return zerr.With(zerr.With(zerr.Wrap(ErrMalformedDeclaration, "parameter must be named"),
				"identity", decl.Identity.String()), "position", i)
		}
		if strings.TrimSpace(p.Type) == "" {
			return zerr.With(zerr.With(zerr.Wrap(ErrMalformedDeclaration, "parameter has no type"),
				"identity", decl.Identity.String()), "param", p.Name)
		}
		if strings.HasPrefix(p.Type, "...") && i != len(decl.Params)-1 {
			return zerr.With(zerr.With(zerr.Wrap(ErrMalformedDeclaration, "only the last parameter may be variadic"),
				"identity", decl.Identity.String()), "param", p.Name)
		}
	}
	return nil
}

// NormalizeDoc trims every line, collapses runs of spaces and blank lines,
// and drops leading and trailing blank lines.
func NormalizeDoc(doc string) string {
	var out []string
	blank := false
	for line := range strings.Lines(doc) {
		line = normalizeSpace(line)
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// NormalizeTestBody reprints the test body without comments in canonical Go formatting.
// A body that does not parse is whitespace-normalized instead.
func NormalizeTestBody(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	fset := token.NewFileSet()
	src := "package p\nfunc _() {\n" + body + "\n}\n"
	file, err := parser.ParseFile(fset, "", src, parser.SkipObjectResolution)
	if err != nil || len(file.Decls) != 1 {
		return NormalizeDoc(body)
	}

	var buf bytes.Buffer
	cfg := printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}
	if err := cfg.Fprint(&buf, fset, file.Decls[0]); err != nil {
		return NormalizeDoc(body)
	}
	var lines []string
	for line := range strings.Lines(buf.String()) {
		if line = normalizeSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
