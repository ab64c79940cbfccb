package sandbox

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
)

// CheckFunc is the name of the generated function that holds the test body.
// The prefix keeps it clear of declared function names.
const CheckFunc = "ParablockCheck"

// BuildProgram assembles the interpreted program for a test case: the candidate's
// declarations, a check function that binds fn to the candidate and runs the test body,
// and the union of the imports both sides use. Imports outside the allowlist are rejected.
func BuildProgram(tc domain.TestCase) (string, error) {
	fset := token.NewFileSet()
	candidate, err := parser.ParseFile(fset, "candidate.go", tc.Candidate, parser.SkipObjectResolution)
	if err != nil {
		return "", zerr.Wrap(domain.ErrCandidateMalformed, err.Error())
	}
	if findFunc(candidate, tc.Declaration.Name()) == nil {
		return "", zerr.With(zerr.Wrap(domain.ErrCandidateMalformed, "candidate does not define the declared function"),
			"function", tc.Declaration.Name())
	}

	harnessSrc := "package main\n\n" + checkFunc(tc.Declaration)
	harness, err := parser.ParseFile(fset, "check.go", harnessSrc, parser.SkipObjectResolution)
	if err != nil {
		return "", zerr.Wrap(domain.ErrRuntimeError, "test body does not compile: "+err.Error())
	}
	for _, file := range []*ast.File{candidate, harness} {
		if pos, what := spawnsGoroutine(file); what != "" {
			return "", zerr.With(zerr.Wrap(domain.ErrRuntimeError, what+" is not allowed: the interpreter cannot contain its panics"),
				"position", fset.Position(pos).String())
		}
	}

	imports := make(map[string]domain.Import)
	for _, spec := range candidate.Imports {
		p, _ := strconv.Unquote(spec.Path.Value)
		imp := domain.Import{Path: p}
		if spec.Name != nil {
			imp.Name = spec.Name.Name
		}
		imports[localName(imp)] = imp
	}
	used := selectorRoots(candidate)
	for name := range selectorRoots(harness) {
		used[name] = true
	}
	harnessImports := append(slices.Clone(tc.Declaration.Imports), domain.Import{Name: "check", Path: domain.CheckImportPath})
	for _, imp := range harnessImports {
		if _, exists := imports[localName(imp)]; !exists {
			imports[localName(imp)] = imp
		}
	}

	var kept []domain.Import
	for name, imp := range imports {
		if !used[name] || imp.Name == "_" || imp.Name == "." {
			continue
		}
		if !Allowed(tc.AllowedImports, imp.Path) {
			return "", zerr.With(zerr.Wrap(domain.ErrForbiddenImport, imp.Path), "allowed", strings.Join(tc.AllowedImports, ","))
		}
		kept = append(kept, imp)
	}
	slices.SortFunc(kept, func(a, b domain.Import) int { return strings.Compare(a.Path, b.Path) })

	var buf bytes.Buffer
	buf.WriteString("package main\n\n")
	for _, imp := range kept {
		if imp.Name != "" {
			buf.WriteString("import " + imp.Name + " " + strconv.Quote(imp.Path) + "\n")
		} else {
			buf.WriteString("import " + strconv.Quote(imp.Path) + "\n")
		}
	}
	for _, decl := range candidate.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.IMPORT {
			continue
		}
		buf.WriteString("\n")
		if err := format.Node(&buf, fset, decl); err != nil {
			return "", zerr.Wrap(domain.ErrCandidateMalformed, err.Error())
		}
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	buf.WriteString(harnessSrc[len("package main\n\n"):])
	return buf.String(), nil
}

// checkFunc renders the function holding the test body. Without tests it calls fn once
// with the zero value of every non-variadic parameter.
func checkFunc(decl domain.FunctionDeclaration) string {
	var b strings.Builder
	b.WriteString("func " + CheckFunc + "() {\n")
	b.WriteString("\tfn := " + decl.Name() + "\n\t_ = fn\n")
	if decl.HasTests() {
		for line := range strings.Lines(decl.TestBody) {
			b.WriteString("\t" + strings.TrimRight(line, "\n") + "\n")
		}
	} else {
		args := make([]string, 0, len(decl.Params))
		for _, p := range decl.Params {
			if strings.HasPrefix(p.Type, "...") {
				continue
			}
			args = append(args, "*new("+p.Type+")")
		}
		b.WriteString("\tfn(" + strings.Join(args, ", ") + ")\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func findFunc(file *ast.File, name string) *ast.FuncDecl {
	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && fd.Recv == nil && fd.Name.Name == name {
			return fd
		}
	}
	return nil
}

// spawnsGoroutine finds the first construct that runs code on a goroutine of its own.
// Interpreted goroutines are native ones, so a panic there would take the host down.
func spawnsGoroutine(file *ast.File) (token.Pos, string) {
	var (
		pos  token.Pos
		what string
	)
	ast.Inspect(file, func(n ast.Node) bool {
		if what != "" {
			return false
		}
		switch n := n.(type) {
		case *ast.GoStmt:
			pos, what = n.Pos(), "go statement"
		case *ast.SelectorExpr:
			if id, ok := n.X.(*ast.Ident); ok && id.Name == "time" && n.Sel.Name == "AfterFunc" {
				pos, what = n.Pos(), "time.AfterFunc"
			}
		}
		return what == ""
	})
	return pos, what
}

// selectorRoots collects the identifiers used as the left side of selector expressions.
func selectorRoots(node ast.Node) map[string]bool {
	roots := make(map[string]bool)
	ast.Inspect(node, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok {
				roots[id.Name] = true
			}
		}
		return true
	})
	return roots
}

func localName(imp domain.Import) string {
	if imp.Name != "" {
		return imp.Name
	}
	return packageName(imp.Path)
}

// packageName guesses the package name from an import path, skipping major version suffixes.
func packageName(importPath string) string {
	base := path.Base(importPath)
	if len(base) > 1 && base[0] == 'v' && strings.Trim(base[1:], "0123456789") == "" {
		base = path.Base(path.Dir(importPath))
	}
	return base
}
