package cas_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/parablock/internal/adapters/cas"
	"go.trai.ch/parablock/internal/core/domain"
)

var greeting = domain.NewIdentity("example.com/demo", "Greeting")

func newStore(t *testing.T) *cas.Store {
	t.Helper()
	store, err := cas.NewStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	return store
}

func accepted(fp domain.Fingerprint, impl string) domain.CacheEntry {
	return domain.CacheEntry{
		Identity:       greeting,
		Fingerprint:    fp,
		Implementation: impl,
		Status:         domain.StatusAccepted,
		Test:           domain.TestResult{Outcome: domain.OutcomePass},
		Attempts:       1,
	}
}

func TestStore_CommitLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	got, err := store.Lookup(ctx, greeting, "aaaa")
	require.NoError(t, err)
	assert.Nil(t, got, "empty store serves nothing")

	require.NoError(t, store.Commit(ctx, accepted("aaaa", "func Greeting(name string) string { return name }")))

	got, err = store.Lookup(ctx, greeting, "aaaa")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusAccepted, got.Status)
	assert.Contains(t, got.Implementation, "return name")
	assert.False(t, got.Created.IsZero())

	got, err = store.Lookup(ctx, greeting, "bbbb")
	require.NoError(t, err)
	assert.Nil(t, got, "a different fingerprint is not served")

	old, err := store.Get(ctx, greeting, "aaaa")
	require.NoError(t, err)
	assert.NotNil(t, old, "old entries stay addressable by fingerprint")
}

func TestStore_CommitLastWriterWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Commit(ctx, accepted("aaaa", "first")))
	require.NoError(t, store.Commit(ctx, accepted("aaaa", "second")))

	got, err := store.Lookup(ctx, greeting, "aaaa")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Implementation)

	entries, err := store.Entries(ctx, greeting)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "one entry per fingerprint")
}

func TestStore_CommitRejectsInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	err := store.Commit(ctx, domain.CacheEntry{Fingerprint: "aaaa", Status: domain.StatusAccepted})
	require.ErrorIs(t, err, domain.ErrStoreWriteFailed)

	err = store.Commit(ctx, domain.CacheEntry{Identity: greeting, Status: domain.StatusAccepted})
	require.ErrorIs(t, err, domain.ErrStoreWriteFailed)

	err = store.Commit(ctx, domain.CacheEntry{Identity: greeting, Fingerprint: "aaaa", Status: "bogus"})
	require.ErrorIs(t, err, domain.ErrStoreWriteFailed)
}

func TestStore_FailedEntriesAreNotServed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Commit(ctx, accepted("aaaa", "impl")))
	require.NoError(t, store.MarkFailed(ctx, greeting, "aaaa", domain.TestResult{
		Outcome: domain.OutcomeAssertionFailed,
		Detail:  "want 3, got 4",
	}))

	got, err := store.Lookup(ctx, greeting, "aaaa")
	require.NoError(t, err)
	assert.Nil(t, got)

	raw, err := store.Get(ctx, greeting, "aaaa")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, domain.StatusFailed, raw.Status)
	assert.Equal(t, "want 3, got 4", raw.Test.Detail)

	err = store.MarkFailed(ctx, greeting, "zzzz", domain.TestResult{Outcome: domain.OutcomeRuntimeError})
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestStore_Attempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	for i := range 3 {
		attempt, err := store.RecordAttempt(ctx, domain.GenerationAttempt{
			Identity:    greeting,
			Fingerprint: "aaaa",
			Candidate:   fmt.Sprintf("candidate %d", i),
			Outcome:     domain.OutcomeAssertionFailed,
		})
		require.NoError(t, err)
		assert.Equal(t, i+1, attempt.Number)
	}

	other, err := store.RecordAttempt(ctx, domain.GenerationAttempt{
		Identity: greeting, Fingerprint: "bbbb", Outcome: domain.OutcomePass,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Number, "numbering is per fingerprint")

	attempts, err := store.Attempts(ctx, greeting, "aaaa")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Number)
		assert.Equal(t, fmt.Sprintf("candidate %d", i), a.Candidate)
	}

	none, err := store.Attempts(ctx, greeting, "cccc")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_AttemptsConcurrentWritersNeverOverwrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")

	// Two handles on one directory behave like two processes.
	a, err := cas.NewStore(dir)
	require.NoError(t, err)
	b, err := cas.NewStore(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		store := a
		if i%2 == 1 {
			store = b
		}
		wg.Go(func() {
			_, err := store.RecordAttempt(ctx, domain.GenerationAttempt{
				Identity: greeting, Fingerprint: "aaaa", Outcome: domain.OutcomeRuntimeError,
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	attempts, err := a.Attempts(ctx, greeting, "aaaa")
	require.NoError(t, err)
	require.Len(t, attempts, 20)
	for i, attempt := range attempts {
		assert.Equal(t, i+1, attempt.Number)
	}
}

func TestStore_FreezePinsIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	_, err := store.Freeze(ctx, greeting)
	require.ErrorIs(t, err, domain.ErrNothingToFreeze)

	older := accepted("aaaa", "older")
	older.Created = time.Now().Add(-time.Hour).UTC()
	require.NoError(t, store.Commit(ctx, older))
	require.NoError(t, store.Commit(ctx, accepted("bbbb", "newer")))

	frozen, err := store.Freeze(ctx, greeting)
	require.NoError(t, err)
	assert.Equal(t, domain.Fingerprint("bbbb"), frozen.Fingerprint)
	assert.Equal(t, domain.StatusFrozen, frozen.Status)

	pin, err := store.Pin(ctx, greeting)
	require.NoError(t, err)
	require.NotNil(t, pin)
	assert.Equal(t, domain.Fingerprint("bbbb"), pin.Fingerprint)

	// A frozen identity is served by its pinned entry whatever fingerprint is asked for.
	got, err := store.Lookup(ctx, greeting, "cccc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "newer", got.Implementation)

	require.NoError(t, store.Unfreeze(ctx, greeting))
	pin, err = store.Pin(ctx, greeting)
	require.NoError(t, err)
	assert.Nil(t, pin)

	got, err = store.Lookup(ctx, greeting, "cccc")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.Lookup(ctx, greeting, "bbbb")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusAccepted, got.Status)
}

func TestStore_MarkFailedReleasesPin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Commit(ctx, accepted("aaaa", "impl")))
	_, err := store.Freeze(ctx, greeting)
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed(ctx, greeting, "aaaa", domain.TestResult{Outcome: domain.OutcomeTimeout}))

	pin, err := store.Pin(ctx, greeting)
	require.NoError(t, err)
	assert.Nil(t, pin)
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	other := domain.NewIdentity("example.com/demo", "Add")

	require.NoError(t, store.Commit(ctx, accepted("aaaa", "impl")))
	otherEntry := accepted("ffff", "add")
	otherEntry.Identity = other
	require.NoError(t, store.Commit(ctx, otherEntry))
	_, err := store.RecordAttempt(ctx, domain.GenerationAttempt{Identity: greeting, Fingerprint: "aaaa", Outcome: domain.OutcomePass})
	require.NoError(t, err)

	ids, err := store.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{other, greeting}, ids)

	require.NoError(t, store.Clear(ctx, greeting))
	got, err := store.Lookup(ctx, greeting, "aaaa")
	require.NoError(t, err)
	assert.Nil(t, got)
	attempts, err := store.Attempts(ctx, greeting, "aaaa")
	require.NoError(t, err)
	assert.Empty(t, attempts)

	ids, err = store.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{other}, ids)

	require.NoError(t, store.Clear(ctx, greeting), "clearing twice is fine")

	require.NoError(t, store.ClearAll(ctx))
	_, err = os.Stat(store.Dir())
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, store.ClearAll(ctx))
}

func TestStore_GetCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Commit(ctx, accepted("aaaa", "impl")))

	matches, err := filepath.Glob(filepath.Join(store.Dir(), "*", "entries", "aaaa.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	//nolint:gosec // test fixture
	require.NoError(t, os.WriteFile(matches[0], []byte("{ invalid json"), 0o600))

	_, err = store.Get(ctx, greeting, "aaaa")
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrStoreUnmarshalFailed.Error())
}

func TestStore_ReadersNeverSeePartialCommits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")

	writer, err := cas.NewStore(dir)
	require.NoError(t, err)
	reader, err := cas.NewStore(dir)
	require.NoError(t, err)

	big := make([]byte, 64<<10)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, writer.Commit(ctx, accepted("aaaa", "seed")))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			got, err := reader.Lookup(ctx, greeting, "aaaa")
			if !assert.NoError(t, err) || !assert.NotNil(t, got) {
				return
			}
			assert.Contains(t, []int{len("seed"), len(big)}, len(got.Implementation))
		}
	})

	for i := range 50 {
		impl := "seed"
		if i%2 == 0 {
			impl = string(big)
		}
		require.NoError(t, writer.Commit(ctx, accepted("aaaa", impl)))
	}
	close(done)
	wg.Wait()
}
