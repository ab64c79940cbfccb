package domain

import "go.trai.ch/zerr"

var (
	// ErrMalformedDeclaration is returned when a declaration's signature or docstring cannot be read.
	ErrMalformedDeclaration = zerr.New("malformed declaration")

	// ErrModuleNotFound is returned when no go.mod encloses a declaration file.
	ErrModuleNotFound = zerr.New("could not find go.mod for declaration file")

	// ErrServiceUnavailable is returned when the text-generation service call fails.
	ErrServiceUnavailable = zerr.New("text-generation service error")

	// ErrMissingAPIKey is returned when the configured API key variable is empty.
	ErrMissingAPIKey = zerr.New("text-generation api key not set")

	// ErrUnknownProvider is returned when the configured provider has no adapter.
	ErrUnknownProvider = zerr.New("unknown text-generation provider")

	// ErrEmptyResponse is returned when the service answers with no text.
	ErrEmptyResponse = zerr.New("text-generation service returned no content")

	// ErrCandidateMalformed is returned when service output does not contain a usable function.
	ErrCandidateMalformed = zerr.New("candidate is not a valid implementation")

	// ErrSignatureMismatch is returned when a candidate's signature differs from the declaration.
	ErrSignatureMismatch = zerr.New("candidate signature does not match declaration")

	// ErrForbiddenImport is returned when a candidate imports a package outside the allowlist.
	ErrForbiddenImport = zerr.New("forbidden import")

	// ErrAssertionFailed is returned when a test assertion did not hold.
	ErrAssertionFailed = zerr.New("assertion failed")

	// ErrRuntimeError is returned when a candidate failed for a reason other than an assertion.
	ErrRuntimeError = zerr.New("runtime error")

	// ErrTimeout is returned when a candidate exceeded its execution budget.
	ErrTimeout = zerr.New("candidate timed out")

	// ErrExhausted is returned when the attempt budget for a fingerprint is spent without a pass.
	ErrExhausted = zerr.New("generation attempts exhausted")

	// ErrSandboxFailed is returned when the sandbox itself could not run a test case.
	ErrSandboxFailed = zerr.New("sandbox failed")

	// ErrImplementationUnavailable is returned when no committed implementation matches a call.
	ErrImplementationUnavailable = zerr.New("implementation unavailable")

	// ErrUnknownFunction is returned when a call names a function with no declaration.
	ErrUnknownFunction = zerr.New("unknown function")

	// ErrImplementationPanicked is returned when a cached implementation panics during a call.
	ErrImplementationPanicked = zerr.New("implementation panicked")

	// ErrArgumentMismatch is returned when call arguments do not fit the declared parameters.
	ErrArgumentMismatch = zerr.New("arguments do not match declaration")

	// ErrStoreCreateFailed is returned when the store directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create store directory")

	// ErrStoreReadFailed is returned when a store record cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read store record")

	// ErrStoreWriteFailed is returned when a store record cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write store record")

	// ErrStoreMarshalFailed is returned when a store record cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal store record")

	// ErrStoreUnmarshalFailed is returned when a store record cannot be unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal store record")

	// ErrStoreClearFailed is returned when store records cannot be removed.
	ErrStoreClearFailed = zerr.New("failed to clear store")

	// ErrEntryNotFound is returned when no entry exists for an identity and fingerprint.
	ErrEntryNotFound = zerr.New("cache entry not found")

	// ErrNothingToFreeze is returned when freezing an identity with no accepted entry.
	ErrNothingToFreeze = zerr.New("no accepted entry to freeze")

	// ErrConfigReadFailed is returned when the configuration file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the configuration file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrInvalidConfig is returned when a configuration value is out of range.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrWatcherFailed is returned when the file watcher cannot be started.
	ErrWatcherFailed = zerr.New("failed to start file watcher")

	// ErrFailedToGetRoot is returned when the project root cannot be resolved.
	ErrFailedToGetRoot = zerr.New("failed to get absolute path of project root")

	// ErrGenerationFailed is returned by generate when at least one identity did not end accepted.
	ErrGenerationFailed = zerr.New("generation failed")

	// ErrVerificationFailed is returned by verify when a committed entry no longer passes or is missing.
	ErrVerificationFailed = zerr.New("verification failed")

	// ErrInvalidIdentity is returned when a textual identity cannot be split into package and name.
	ErrInvalidIdentity = zerr.New("invalid identity, expected <import path>.<Name>")
)
