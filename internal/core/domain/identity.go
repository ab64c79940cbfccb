package domain

import (
	"strings"
	"unique"

	"go.trai.ch/zerr"
)

// Identity names a declared function: its package import path and function name.
// It wraps a unique.Handle so identities compare and hash cheaply as map keys.
type Identity struct {
	h unique.Handle[string]
}

// NewIdentity creates an Identity from an import path and a function name.
func NewIdentity(importPath, name string) Identity {
	return Identity{h: unique.Make(importPath + "." + name)}
}

// ParseIdentity parses the textual form <import path>.<Name>.
func ParseIdentity(s string) (Identity, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 || strings.Contains(s[i+1:], "/") {
		return Identity{}, zerr.With(zerr.Wrap(ErrInvalidIdentity, "cannot parse identity"), "identity", s)
	}
	return Identity{h: unique.Make(s)}, nil
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.h == unique.Handle[string]{}
}

// String returns the textual form of the identity.
func (id Identity) String() string {
	if id.IsZero() {
		return ""
	}
	return id.h.Value()
}

// Package returns the import path part of the identity.
func (id Identity) Package() string {
	s := id.String()
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[:i]
	}
	return ""
}

// Name returns the function name part of the identity.
func (id Identity) Name() string {
	s := id.String()
	return s[strings.LastIndex(s, ".")+1:]
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = Identity{}
		return nil
	}
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
