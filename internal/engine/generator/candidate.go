package generator

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/printer"
	"go/token"
	"regexp"
	"strings"

	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
)

var (
	fenceGo  = regexp.MustCompile("(?s)```(?:go|golang)[ \t]*\r?\n(.*?)```")
	fenceAny = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\r?\n(.*?)```")
)

// ExtractCandidate turns a service response into a Go source file in package main that
// defines the declared function with an identical signature. A response without a package
// clause gets one. A func main is dropped so interpreting the file has no side effects.
func ExtractCandidate(decl domain.FunctionDeclaration, response string) (string, error) {
	src := unwrapFenced(decl.Name(), response)
	if strings.TrimSpace(src) == "" {
		return "", zerr.Wrap(domain.ErrCandidateMalformed, "empty response")
	}
	if !hasPackageClause(src) {
		src = "package main\n\n" + src
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return "", zerr.Wrap(domain.ErrCandidateMalformed, err.Error())
	}
	file.Name.Name = "main"

	var fd *ast.FuncDecl
	decls := file.Decls[:0]
	for _, d := range file.Decls {
		if f, ok := d.(*ast.FuncDecl); ok && f.Recv == nil {
			if f.Name.Name == "main" {
				continue
			}
			if f.Name.Name == decl.Name() {
				fd = f
			}
		}
		decls = append(decls, d)
	}
	file.Decls = decls

	if fd == nil {
		return "", zerr.With(zerr.Wrap(domain.ErrCandidateMalformed, "function not defined"), "function", decl.Name())
	}
	if fd.Body == nil {
		return "", zerr.With(zerr.Wrap(domain.ErrCandidateMalformed, "function has no body"), "function", decl.Name())
	}
	if fd.Type.TypeParams != nil && len(fd.Type.TypeParams.List) > 0 {
		return "", zerr.Wrap(domain.ErrSignatureMismatch, "candidate declares type parameters")
	}

	want, err := declaredSignature(decl)
	if err != nil {
		return "", err
	}
	got := signatureOf(fset, fd.Type)
	if got != want {
		err := zerr.With(zerr.Wrap(domain.ErrSignatureMismatch, "got "+got), "want", want)
		return "", err
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return "", zerr.Wrap(domain.ErrCandidateMalformed, err.Error())
	}
	return buf.String(), nil
}

// unwrapFenced picks the fenced block that defines name, preferring go-labelled fences.
// Unfenced responses are returned trimmed.
func unwrapFenced(name, response string) string {
	response = strings.TrimSpace(response)
	marker := "func " + name + "("
	for _, re := range []*regexp.Regexp{fenceGo, fenceAny} {
		matches := re.FindAllStringSubmatch(response, -1)
		for _, m := range matches {
			if strings.Contains(m[1], marker) {
				return strings.TrimSpace(m[1])
			}
		}
		if len(matches) > 0 {
			return strings.TrimSpace(matches[0][1])
		}
	}
	return response
}

func hasPackageClause(src string) bool {
	for line := range strings.Lines(src) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		return strings.HasPrefix(trimmed, "package ")
	}
	return false
}

// declaredSignature renders the signature a candidate must have.
func declaredSignature(decl domain.FunctionDeclaration) (string, error) {
	src := "package p\n\n" + decl.Header() + " {}\n"
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "decl.go", src, parser.SkipObjectResolution)
	if err != nil {
		return "", zerr.With(zerr.Wrap(domain.ErrMalformedDeclaration, err.Error()), "identity", decl.Identity.String())
	}
	fd, ok := file.Decls[0].(*ast.FuncDecl)
	if !ok {
		return "", zerr.With(zerr.Wrap(domain.ErrMalformedDeclaration, "cannot read declared signature"), "identity", decl.Identity.String())
	}
	return signatureOf(fset, fd.Type), nil
}

// signatureOf renders parameter and result types in order, ignoring names.
func signatureOf(fset *token.FileSet, ft *ast.FuncType) string {
	return "func(" + strings.Join(fieldTypes(fset, ft.Params), ", ") + ") (" +
		strings.Join(fieldTypes(fset, ft.Results), ", ") + ")"
}

func fieldTypes(fset *token.FileSet, fields *ast.FieldList) []string {
	if fields == nil {
		return nil
	}
	var types []string
	for _, field := range fields.List {
		var buf bytes.Buffer
		_ = printer.Fprint(&buf, fset, field.Type)
		n := max(len(field.Names), 1)
		for range n {
			types = append(types, buf.String())
		}
	}
	return types
}
