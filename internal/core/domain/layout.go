package domain

import (
	"path/filepath"
	"time"
)

const (
	// ParablockDirName is the name of the internal workspace directory.
	ParablockDirName = ".parablock"

	// StoreDirName is the name of the cache store directory.
	StoreDirName = "store"

	// ConfigFileName is the name of the project configuration file.
	ConfigFileName = "parablock.yaml"

	// BuildTag is the build constraint that marks a file as a declaration file.
	BuildTag = "parablock"

	// FrozenDirective pins a declaration against automatic regeneration.
	FrozenDirective = "//parablock:frozen"

	// CheckImportPath is the import path of the assertion package available to test bodies.
	CheckImportPath = "go.trai.ch/parablock/check"

	// BoundName is the name the candidate implementation is bound to inside a test body.
	BoundName = "fn"

	// StoreEnvVar overrides the store location for the runtime dispatcher.
	StoreEnvVar = "PARABLOCK_STORE"

	// MaxAttemptsCeiling is the hard upper bound on generation attempts per fingerprint.
	MaxAttemptsCeiling = 10

	// DefaultMaxAttempts is the default attempt budget per fingerprint.
	DefaultMaxAttempts = 3

	// DefaultSandboxTimeout bounds a single sandbox run.
	DefaultSandboxTimeout = 5 * time.Second

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultParablockPath returns the default root directory for parablock metadata.
func DefaultParablockPath() string {
	return ParablockDirName
}

// DefaultStorePath returns the default path for the cache store.
// It joins .parablock and store.
func DefaultStorePath() string {
	return filepath.Join(ParablockDirName, StoreDirName)
}
