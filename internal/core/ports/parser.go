package ports

import "go.trai.ch/parablock/internal/core/domain"

// ParseResult holds the declarations found in one file.
type ParseResult struct {
	// Declarations are the well-formed declarations in source order.
	Declarations []domain.FunctionDeclaration
	// Malformed holds one error per skipped declaration.
	Malformed []error
}

// DeclarationParser locates function declarations in declaration files.
//
//go:generate mockgen -source=parser.go -destination=mocks/mock_parser.go -package=mocks
type DeclarationParser interface {
	// ParseFile parses the file at path. Files without the parablock build constraint
	// yield an empty result. The error reports a file that cannot be read or parsed.
	ParseFile(path string) (ParseResult, error)

	// ParseSource parses in-memory source that belongs to the given import path.
	ParseSource(importPath, filename string, src []byte) (ParseResult, error)
}
