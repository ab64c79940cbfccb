package ports

import (
	"context"

	"go.trai.ch/parablock/internal/core/domain"
)

// CacheStore persists accepted implementations and their generation history.
// Readers in other processes observe only complete records.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type CacheStore interface {
	// Lookup returns the entry that serves the identity at the given fingerprint:
	// the pinned entry when the identity is frozen, else the accepted entry for fp.
	// Returns nil, nil if nothing is servable.
	Lookup(ctx context.Context, id domain.Identity, fp domain.Fingerprint) (*domain.CacheEntry, error)

	// Get returns the entry stored for the identity and fingerprint whatever its status.
	// Returns nil, nil if not found.
	Get(ctx context.Context, id domain.Identity, fp domain.Fingerprint) (*domain.CacheEntry, error)

	// Entries returns every entry stored for the identity, newest first.
	Entries(ctx context.Context, id domain.Identity) ([]domain.CacheEntry, error)

	// Commit atomically writes an entry, replacing any entry for the same fingerprint.
	Commit(ctx context.Context, entry domain.CacheEntry) error

	// RecordAttempt appends an attempt and returns it with its assigned number.
	RecordAttempt(ctx context.Context, attempt domain.GenerationAttempt) (domain.GenerationAttempt, error)

	// Attempts returns the attempts for the identity and fingerprint in order.
	Attempts(ctx context.Context, id domain.Identity, fp domain.Fingerprint) ([]domain.GenerationAttempt, error)

	// Freeze pins the identity to its most recently created accepted entry.
	Freeze(ctx context.Context, id domain.Identity) (domain.CacheEntry, error)

	// Unfreeze releases the pin and returns the pinned entry to accepted.
	Unfreeze(ctx context.Context, id domain.Identity) error

	// Pin returns the freeze record of the identity, or nil if it is not frozen.
	Pin(ctx context.Context, id domain.Identity) (*domain.Pin, error)

	// MarkFailed demotes an entry so it is no longer served, recording the failing result.
	MarkFailed(ctx context.Context, id domain.Identity, fp domain.Fingerprint, result domain.TestResult) error

	// Clear removes every record of the identity.
	Clear(ctx context.Context, id domain.Identity) error

	// ClearAll removes every record in the store.
	ClearAll(ctx context.Context) error

	// Identities lists the identities with stored records.
	Identities(ctx context.Context) ([]domain.Identity, error)
}
