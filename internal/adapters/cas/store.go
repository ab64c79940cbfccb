// Package cas implements the cache store: committed implementations and their generation history,
// one JSON file per record, readable by other processes while a writer is active.
package cas

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	entriesDirName  = "entries"
	attemptsDirName = "attempts"
	pinFileName     = "pin.json"
	identityFile    = "identity"
	tempPrefix      = ".tmp-"
	trashPrefix     = ".trash-"
	maxAttemptRaces = 64
)

// Store implements ports.CacheStore on a directory tree.
//
// Layout:
//
//	<sha256(identity)>/identity
//	<sha256(identity)>/entries/<fingerprint>.json
//	<sha256(identity)>/attempts/<fingerprint>/<number>.json
//	<sha256(identity)>/pin.json
type Store struct {
	dir string
	now func() time.Time

	// mu serializes writers inside one process; across processes a single writer role is assumed.
	mu sync.Mutex
}

// NewStore creates a Store rooted at dir. The directory is created on first write.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreCreateFailed.Error()), "dir", dir)
	}
	return &Store{dir: abs, now: time.Now}, nil
}

// Dir returns the absolute root of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Lookup returns the entry that serves id at fp, or nil if none is servable.
func (s *Store) Lookup(ctx context.Context, id domain.Identity, fp domain.Fingerprint) (*domain.CacheEntry, error) {
	pin, err := s.Pin(ctx, id)
	if err != nil {
		return nil, err
	}
	if pin != nil {
		entry, err := s.Get(ctx, id, pin.Fingerprint)
		if err != nil {
			return nil, err
		}
		if entry != nil && entry.Status.Servable() {
			return entry, nil
		}
	}

	entry, err := s.Get(ctx, id, fp)
	if err != nil || entry == nil || !entry.Status.Servable() {
		return nil, err
	}
	return entry, nil
}

// Get returns the entry for id and fp whatever its status.
func (s *Store) Get(_ context.Context, id domain.Identity, fp domain.Fingerprint) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	found, err := readJSON(s.entryPath(id, fp), &entry)
	if err != nil || !found {
		return nil, err
	}
	return &entry, nil
}

// Entries returns every entry of id, newest first.
func (s *Store) Entries(_ context.Context, id domain.Identity) ([]domain.CacheEntry, error) {
	dir := filepath.Join(s.identityDir(id), entriesDirName)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "dir", dir)
	}

	entries := make([]domain.CacheEntry, 0, len(files))
	for _, f := range files {
		if !isRecord(f) {
			continue
		}
		var entry domain.CacheEntry
		found, err := readJSON(filepath.Join(dir, f.Name()), &entry)
		if err != nil {
			return nil, err
		}
		if found {
			entries = append(entries, entry)
		}
	}

	slices.SortFunc(entries, func(a, b domain.CacheEntry) int {
		return b.Created.Compare(a.Created)
	})
	return entries, nil
}

// Commit atomically writes entry. A concurrent reader sees either the previous file or the new one.
// When two writers race on the same fingerprint the last rename wins.
func (s *Store) Commit(ctx context.Context, entry domain.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntry(entry); err != nil {
		return err
	}
	if entry.Created.IsZero() {
		entry.Created = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIdentity(entry.Identity); err != nil {
		return err
	}
	return writeJSONAtomic(s.entryPath(entry.Identity, entry.Fingerprint), entry)
}

// RecordAttempt appends attempt under the next free number. Attempt files are never overwritten.
func (s *Store) RecordAttempt(ctx context.Context, attempt domain.GenerationAttempt) (domain.GenerationAttempt, error) {
	if err := ctx.Err(); err != nil {
		return domain.GenerationAttempt{}, err
	}
	if attempt.Identity.IsZero() || attempt.Fingerprint == "" {
		return domain.GenerationAttempt{}, zerr.Wrap(domain.ErrStoreWriteFailed, "attempt needs identity and fingerprint")
	}
	if attempt.Created.IsZero() {
		attempt.Created = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIdentity(attempt.Identity); err != nil {
		return domain.GenerationAttempt{}, err
	}

	dir := s.attemptsDir(attempt.Identity, attempt.Fingerprint)
	next, err := nextAttemptNumber(dir)
	if err != nil {
		return domain.GenerationAttempt{}, err
	}

	for range maxAttemptRaces {
		attempt.Number = next
		err := writeJSONExclusive(filepath.Join(dir, attemptFileName(next)), attempt)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return domain.GenerationAttempt{}, err
		}
		next++
	}
	return domain.GenerationAttempt{}, zerr.With(
		zerr.Wrap(domain.ErrStoreWriteFailed, "could not allocate attempt number"), "dir", dir)
}

// Attempts returns the attempts for id and fp ordered by number.
func (s *Store) Attempts(_ context.Context, id domain.Identity, fp domain.Fingerprint) ([]domain.GenerationAttempt, error) {
	dir := s.attemptsDir(id, fp)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "dir", dir)
	}

	attempts := make([]domain.GenerationAttempt, 0, len(files))
	for _, f := range files {
		if !isRecord(f) {
			continue
		}
		var attempt domain.GenerationAttempt
		found, err := readJSON(filepath.Join(dir, f.Name()), &attempt)
		if err != nil {
			return nil, err
		}
		if found {
			attempts = append(attempts, attempt)
		}
	}

	slices.SortFunc(attempts, func(a, b domain.GenerationAttempt) int {
		return cmp.Compare(a.Number, b.Number)
	})
	return attempts, nil
}

// Freeze pins id to its newest servable entry.
func (s *Store) Freeze(ctx context.Context, id domain.Identity) (domain.CacheEntry, error) {
	entries, err := s.Entries(ctx, id)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	idx := slices.IndexFunc(entries, func(e domain.CacheEntry) bool { return e.Status.Servable() })
	if idx < 0 {
		return domain.CacheEntry{}, zerr.With(zerr.Wrap(domain.ErrNothingToFreeze, "cannot freeze"), "identity", id.String())
	}
	target := entries[idx]

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.Status == domain.StatusFrozen && e.Fingerprint != target.Fingerprint {
			e.Status = domain.StatusAccepted
			if err := writeJSONAtomic(s.entryPath(id, e.Fingerprint), e); err != nil {
				return domain.CacheEntry{}, err
			}
		}
	}

	target.Status = domain.StatusFrozen
	if err := writeJSONAtomic(s.entryPath(id, target.Fingerprint), target); err != nil {
		return domain.CacheEntry{}, err
	}
	pin := domain.Pin{Fingerprint: target.Fingerprint, Created: s.now().UTC()}
	if err := writeJSONAtomic(s.pinPath(id), pin); err != nil {
		return domain.CacheEntry{}, err
	}
	return target, nil
}

// Unfreeze removes the pin of id and returns the pinned entry to accepted.
func (s *Store) Unfreeze(ctx context.Context, id domain.Identity) error {
	pin, err := s.Pin(ctx, id)
	if err != nil || pin == nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.pinPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "identity", id.String())
	}

	entry, err := s.Get(ctx, id, pin.Fingerprint)
	if err != nil || entry == nil || entry.Status != domain.StatusFrozen {
		return err
	}
	entry.Status = domain.StatusAccepted
	return writeJSONAtomic(s.entryPath(id, entry.Fingerprint), *entry)
}

// Pin returns the freeze record of id, or nil.
func (s *Store) Pin(_ context.Context, id domain.Identity) (*domain.Pin, error) {
	var pin domain.Pin
	found, err := readJSON(s.pinPath(id), &pin)
	if err != nil || !found {
		return nil, err
	}
	return &pin, nil
}

// MarkFailed demotes the entry for id and fp and records why. A pin on that entry is released.
func (s *Store) MarkFailed(ctx context.Context, id domain.Identity, fp domain.Fingerprint, result domain.TestResult) error {
	entry, err := s.Get(ctx, id, fp)
	if err != nil {
		return err
	}
	if entry == nil {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrEntryNotFound, "cannot mark failed"),
			"identity", id.String()), "fingerprint", fp.String())
	}
	pin, err := s.Pin(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pin != nil && pin.Fingerprint == fp {
		if err := os.Remove(s.pinPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "identity", id.String())
		}
	}

	entry.Status = domain.StatusFailed
	entry.Test = result
	return writeJSONAtomic(s.entryPath(id, fp), *entry)
}

// Clear removes every record of id.
func (s *Store) Clear(_ context.Context, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeAside(s.identityDir(id))
}

// ClearAll removes the whole store.
func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeAside(s.dir)
}

// Identities lists the identities that have records, sorted.
func (s *Store) Identities(_ context.Context) ([]domain.Identity, error) {
	dirs, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "dir", s.dir)
	}

	var ids []domain.Identity
	for _, d := range dirs {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		//nolint:gosec // Path is constructed from the store directory and a hashed name
		data, err := os.ReadFile(filepath.Join(s.dir, d.Name(), identityFile))
		if err != nil {
			continue
		}
		id, err := domain.ParseIdentity(strings.TrimSpace(string(data)))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	slices.SortFunc(ids, func(a, b domain.Identity) int { return strings.Compare(a.String(), b.String()) })
	return ids, nil
}

func (s *Store) ensureIdentity(id domain.Identity) error {
	path := filepath.Join(s.identityDir(id), identityFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeFileAtomic(path, []byte(id.String()+"\n"))
}

func (s *Store) identityDir(id domain.Identity) string {
	hash := sha256.Sum256([]byte(id.String()))
	return filepath.Join(s.dir, hex.EncodeToString(hash[:]))
}

func (s *Store) entryPath(id domain.Identity, fp domain.Fingerprint) string {
	return filepath.Join(s.identityDir(id), entriesDirName, fp.String()+".json")
}

func (s *Store) attemptsDir(id domain.Identity, fp domain.Fingerprint) string {
	return filepath.Join(s.identityDir(id), attemptsDirName, fp.String())
}

func (s *Store) pinPath(id domain.Identity) string {
	return filepath.Join(s.identityDir(id), pinFileName)
}

func validateEntry(entry domain.CacheEntry) error {
	switch {
	case entry.Identity.IsZero():
		return zerr.Wrap(domain.ErrStoreWriteFailed, "entry has no identity")
	case entry.Fingerprint == "":
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, "entry has no fingerprint"), "identity", entry.Identity.String())
	case entry.Status != domain.StatusAccepted && entry.Status != domain.StatusFrozen && entry.Status != domain.StatusFailed:
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, "entry has unknown status"), "status", string(entry.Status))
	}
	return nil
}

func isRecord(f fs.DirEntry) bool {
	name := f.Name()
	return !f.IsDir() && strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

func attemptFileName(n int) string {
	return fmt.Sprintf("%06d.json", n)
}

func nextAttemptNumber(dir string) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 1, nil
		}
		return 0, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "dir", dir)
	}
	highest := 0
	for _, f := range files {
		if !isRecord(f) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(f.Name(), ".json"))
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

func readJSON(path string, v any) (bool, error) {
	//nolint:gosec // Path is constructed from the store directory and hashed names
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, zerr.With(zerr.Wrap(err, domain.ErrStoreUnmarshalFailed.Error()), "path", path)
	}
	return true, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temporary file in the target directory, syncs it, and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return nil
}

// writeJSONExclusive publishes a complete file at path, failing with fs.ErrExist if one is already there.
func writeJSONExclusive(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}
	tmp, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return nil
}

func writeTemp(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrStoreCreateFailed.Error()), "dir", dir)
	}
	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "dir", dir)
	}
	name := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(name)
		return "", zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", name)
	}
	if _, err := f.Write(data); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Chmod(domain.FilePerm); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", name)
	}
	return name, nil
}

// removeAside renames dir out of the way before deleting it so readers never walk a half-deleted tree.
func removeAside(dir string) error {
	aside := filepath.Join(filepath.Dir(dir), trashPrefix+filepath.Base(dir)+"-"+strconv.FormatInt(time.Now().UnixNano(), 36))
	if err := os.Rename(dir, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.With(zerr.Wrap(err, domain.ErrStoreClearFailed.Error()), "dir", dir)
	}
	if err := os.RemoveAll(aside); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreClearFailed.Error()), "dir", aside)
	}
	return nil
}
