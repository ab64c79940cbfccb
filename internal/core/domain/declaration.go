package domain

import "strings"

// Param is one named parameter of a declared function.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Import is an import of a declaration file, offered to the test body.
type Import struct {
	Name string `json:"name,omitzero"`
	Path string `json:"path"`
}

// FunctionDeclaration is a function declared by intent: a prompt, a signature and optional tests.
// It is immutable per observation.
type FunctionDeclaration struct {
	Identity Identity `json:"identity"`
	Params   []Param  `json:"params,omitzero"`
	// Results is the result list as written in source, empty when the function returns nothing.
	Results  string   `json:"results,omitzero"`
	Doc      string   `json:"doc,omitzero"`
	TestBody string   `json:"test_body,omitzero"`
	Imports  []Import `json:"imports,omitzero"`
	Frozen   bool     `json:"frozen,omitzero"`
	File     string   `json:"file,omitzero"`
}

// Name returns the declared function name.
func (d FunctionDeclaration) Name() string {
	return d.Identity.Name()
}

// HasTests reports whether the declaration carries a test body.
func (d FunctionDeclaration) HasTests() bool {
	return strings.TrimSpace(d.TestBody) != ""
}

// Variadic reports whether the last parameter is variadic.
func (d FunctionDeclaration) Variadic() bool {
	return len(d.Params) > 0 && strings.HasPrefix(d.Params[len(d.Params)-1].Type, "...")
}

// ParamList renders the parameters as they appear between the parentheses of a signature.
func (d FunctionDeclaration) ParamList() string {
	parts := make([]string, len(d.Params))
	for i, p := range d.Params {
		parts[i] = p.Name + " " + p.Type
	}
	return strings.Join(parts, ", ")
}

// Header renders the function header, e.g. "func Add(a int, b int) int".
func (d FunctionDeclaration) Header() string {
	header := "func " + d.Name() + "(" + d.ParamList() + ")"
	if d.Results != "" {
		header += " " + d.Results
	}
	return header
}
