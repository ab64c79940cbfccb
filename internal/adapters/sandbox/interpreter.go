// Package sandbox runs candidate implementations against declaration tests in a yaegi interpreter.
package sandbox

import (
	"path"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
)

// checkExportKey is the yaegi export key of the assertion package.
var checkExportKey = domain.CheckImportPath + "/" + path.Base(domain.CheckImportPath)

// NewInterpreter creates an interpreter that can import only the allowed standard library
// packages. A nil allowlist exposes the whole standard library.
func NewInterpreter(allowed []string, extra interp.Exports) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{})

	symbols := stdlib.Symbols
	if allowed != nil {
		symbols = filterSymbols(allowed)
	}
	if err := i.Use(symbols); err != nil {
		return nil, zerr.Wrap(err, domain.ErrSandboxFailed.Error())
	}
	if len(extra) > 0 {
		if err := i.Use(extra); err != nil {
			return nil, zerr.Wrap(err, domain.ErrSandboxFailed.Error())
		}
	}
	return i, nil
}

// filterSymbols keeps the stdlib exports whose import path is allowed.
// Export keys have the form "<import path>/<package name>".
func filterSymbols(allowed []string) interp.Exports {
	set := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		set[p] = true
	}
	filtered := make(interp.Exports, len(allowed))
	for key, syms := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 || !set[key[:idx]] {
			continue
		}
		filtered[key] = syms
	}
	return filtered
}

// Allowed reports whether importPath may be imported under the allowlist.
func Allowed(allowed []string, importPath string) bool {
	if importPath == domain.CheckImportPath {
		return true
	}
	if allowed == nil {
		_, ok := stdlib.Symbols[importPath+"/"+packageName(importPath)]
		return ok
	}
	for _, p := range allowed {
		if p == importPath {
			return true
		}
	}
	return false
}

// checkExports binds the assertion package to symbols.
func checkExports(symbols map[string]reflect.Value) interp.Exports {
	return interp.Exports{checkExportKey: symbols}
}
