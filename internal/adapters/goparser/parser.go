// Package goparser reads function declarations from Go declaration files.
package goparser

import (
	"bufio"
	"bytes"
	"errors"
	"go/ast"
	"go/build/constraint"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.trai.ch/zerr"
	"golang.org/x/mod/modfile"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

var _ ports.DeclarationParser = (*Parser)(nil)

// Parser implements ports.DeclarationParser with go/parser.
type Parser struct {
	mu      sync.Mutex
	modules map[string]module
}

type module struct {
	root string
	path string
}

// New creates a Parser.
func New() *Parser {
	return &Parser{modules: make(map[string]module)}
}

// ParseFile parses the declaration file at path, resolving its import path from the nearest go.mod.
func (p *Parser) ParseFile(filename string) (ports.ParseResult, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return ports.ParseResult{}, zerr.With(zerr.Wrap(err, "failed to resolve declaration file"), "file", filename)
	}

	// #nosec G304 -- the path comes from the watched project tree
	src, err := os.ReadFile(abs)
	if err != nil {
		return ports.ParseResult{}, zerr.With(zerr.Wrap(err, "failed to read declaration file"), "file", abs)
	}
	if !HasBuildTag(src) {
		return ports.ParseResult{}, nil
	}

	importPath, err := p.ImportPath(filepath.Dir(abs))
	if err != nil {
		return ports.ParseResult{}, zerr.With(err, "file", abs)
	}
	return p.ParseSource(importPath, abs, src)
}

// ParseSource parses in-memory source that belongs to importPath.
func (p *Parser) ParseSource(importPath, filename string, src []byte) (ports.ParseResult, error) {
	if !HasBuildTag(src) {
		return ports.ParseResult{}, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return ports.ParseResult{}, zerr.With(zerr.Wrap(domain.ErrMalformedDeclaration, err.Error()), "file", filename)
	}

	imports := fileImports(file)

	var result ports.ParseResult
	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok {
			continue
		}
		decl, err := declaration(fset, src, fd)
		if err != nil {
			err = zerr.With(err, "function", fd.Name.Name)
			result.Malformed = append(result.Malformed, zerr.With(err, "file", filename))
			continue
		}
		decl.Identity = domain.NewIdentity(importPath, fd.Name.Name)
		decl.Imports = imports
		decl.File = filename
		result.Declarations = append(result.Declarations, decl)
	}
	return result, nil
}

// ImportPath returns the import path of the package in dir, derived from the nearest go.mod.
func (p *Parser) ImportPath(dir string) (string, error) {
	mod, err := p.moduleFor(dir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(mod.root, dir)
	if err != nil {
		return "", zerr.Wrap(err, domain.ErrModuleNotFound.Error())
	}
	if rel == "." {
		return mod.path, nil
	}
	return path.Join(mod.path, filepath.ToSlash(rel)), nil
}

func (p *Parser) moduleFor(dir string) (module, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var visited []string
	for current := dir; ; {
		if mod, ok := p.modules[current]; ok {
			p.remember(visited, mod)
			return mod, nil
		}
		visited = append(visited, current)

		data, err := os.ReadFile(filepath.Join(current, "go.mod")) // #nosec G304
		if err == nil {
			modPath := modfile.ModulePath(data)
			if modPath == "" {
				return module{}, zerr.With(zerr.Wrap(domain.ErrModuleNotFound, "cannot read module path"), "go_mod", filepath.Join(current, "go.mod"))
			}
			mod := module{root: current, path: modPath}
			p.remember(visited, mod)
			return mod, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return module{}, zerr.Wrap(err, domain.ErrModuleNotFound.Error())
		}

		parent := filepath.Dir(current)
		if parent == current {
			return module{}, zerr.With(zerr.Wrap(domain.ErrModuleNotFound, "no enclosing module"), "dir", dir)
		}
		current = parent
	}
}

// remember must be called with mu held.
func (p *Parser) remember(dirs []string, mod module) {
	for _, d := range dirs {
		p.modules[d] = mod
	}
}

// HasBuildTag reports whether src carries a //go:build constraint that mentions the parablock tag.
func HasBuildTag(src []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(src))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") && !constraint.IsGoBuild(line) {
			continue
		}
		if !constraint.IsGoBuild(line) {
			// The header ends at the first line that is not a comment.
			return false
		}
		expr, err := constraint.Parse(line)
		if err != nil {
			return false
		}
		return expr.Eval(func(tag string) bool { return tag == domain.BuildTag })
	}
	return false
}

func fileImports(file *ast.File) []domain.Import {
	if len(file.Imports) == 0 {
		return nil
	}
	imports := make([]domain.Import, 0, len(file.Imports))
	for _, spec := range file.Imports {
		importPath, err := strconv.Unquote(spec.Path.Value)
		if err != nil || importPath == domain.CheckImportPath {
			continue
		}
		imp := domain.Import{Path: importPath}
		if spec.Name != nil {
			imp.Name = spec.Name.Name
		}
		imports = append(imports, imp)
	}
	return imports
}

func declaration(fset *token.FileSet, src []byte, fd *ast.FuncDecl) (domain.FunctionDeclaration, error) {
	switch {
	case fd.Recv != nil:
		return domain.FunctionDeclaration{}, zerr.Wrap(domain.ErrMalformedDeclaration, "methods cannot be declared")
	case fd.Type.TypeParams != nil && len(fd.Type.TypeParams.List) > 0:
		return domain.FunctionDeclaration{}, zerr.Wrap(domain.ErrMalformedDeclaration, "type parameters are not supported")
	case fd.Name.Name == "_" || fd.Name.Name == "init" || fd.Name.Name == "main":
		return domain.FunctionDeclaration{}, zerr.Wrap(domain.ErrMalformedDeclaration, "reserved function name")
	}

	var decl domain.FunctionDeclaration
	for _, field := range fd.Type.Params.List {
		typ, err := render(fset, field.Type)
		if err != nil {
			return domain.FunctionDeclaration{}, err
		}
		if len(field.Names) == 0 {
			return domain.FunctionDeclaration{}, zerr.With(
				zerr.Wrap(domain.ErrMalformedDeclaration, "parameters must be named"), "type", typ)
		}
		for _, name := range field.Names {
			if name.Name == "_" {
				return domain.FunctionDeclaration{}, zerr.Wrap(domain.ErrMalformedDeclaration, "blank parameter name")
			}
			decl.Params = append(decl.Params, domain.Param{Name: name.Name, Type: typ})
		}
	}

	results, err := resultList(fset, fd.Type.Results)
	if err != nil {
		return domain.FunctionDeclaration{}, err
	}
	decl.Results = results

	if fd.Doc != nil {
		decl.Doc = strings.TrimSpace(fd.Doc.Text())
		for _, c := range fd.Doc.List {
			if strings.TrimSpace(c.Text) == domain.FrozenDirective {
				decl.Frozen = true
			}
		}
	}

	if fd.Body != nil {
		start := fset.Position(fd.Body.Lbrace).Offset + 1
		end := fset.Position(fd.Body.Rbrace).Offset
		if start <= end && end <= len(src) {
			decl.TestBody = trimBlankLines(string(src[start:end]))
		}
	}
	return decl, nil
}

func resultList(fset *token.FileSet, results *ast.FieldList) (string, error) {
	if results == nil || len(results.List) == 0 {
		return "", nil
	}

	var parts []string
	named := false
	for _, field := range results.List {
		typ, err := render(fset, field.Type)
		if err != nil {
			return "", err
		}
		if len(field.Names) == 0 {
			parts = append(parts, typ)
			continue
		}
		named = true
		names := make([]string, len(field.Names))
		for i, n := range field.Names {
			names[i] = n.Name
		}
		parts = append(parts, strings.Join(names, ", ")+" "+typ)
	}

	if len(parts) == 1 && !named {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

func render(fset *token.FileSet, node ast.Node) (string, error) {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, node); err != nil {
		return "", zerr.Wrap(err, domain.ErrMalformedDeclaration.Error())
	}
	return buf.String(), nil
}

// trimBlankLines drops leading and trailing blank lines and removes the common indentation.
func trimBlankLines(body string) string {
	lines := strings.Split(body, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}

	indent := lines[0][:len(lines[0])-len(strings.TrimLeft(lines[0], " \t"))]
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent = commonPrefix(indent, line[:len(line)-len(strings.TrimLeft(line, " \t"))])
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, indent)
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
