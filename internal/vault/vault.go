package vault

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/storage"
)

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrEntryExists   = errors.New("entry already exists")
)

// KeyProvider hands out the live session key. Implementations hold their
// key identity lock for the duration of fn.
type KeyProvider interface {
	WithKey(fn func(key []byte) error) error
}

// Notifier receives records after they were written locally. Calls must
// not block.
type Notifier interface {
	NotifyUpload(rec storage.Record)
	NotifyDelete(id string)
}

type nopNotifier struct{}

func (nopNotifier) NotifyUpload(storage.Record) {}
func (nopNotifier) NotifyDelete(string)         {}

// BatchResult counts the outcome of a bulk operation.
type BatchResult struct {
	Applied int
	Skipped int
	Failed  int
}

// Vault is the decrypted credential cache over a Store.
type Vault struct {
	store    storage.Store
	keys     KeyProvider
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
	workers  int

	// mu is the record-set lock; always taken after the key identity lock.
	mu      sync.Mutex
	loaded  bool
	entries map[string]credential.Record
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) { v.log = l }
}

// WithNotifier sets the outbound sync notifier.
func WithNotifier(n Notifier) Option {
	return func(v *Vault) { v.notifier = n }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(v *Vault) { v.newID = gen }
}

// WithWorkers bounds the per-record parallelism of bulk operations.
func WithWorkers(n int) Option {
	return func(v *Vault) {
		if n > 0 {
			v.workers = n
		}
	}
}

// New creates a vault over store, taking keys from keys.
func New(store storage.Store, keys KeyProvider, opts ...Option) *Vault {
	v := &Vault{
		store:    store,
		keys:     keys,
		notifier: nopNotifier{},
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
		workers:  runtime.GOMAXPROCS(0),
		entries:  make(map[string]credential.Record),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Purge drops the decrypted cache. Called when the session locks.
func (v *Vault) Purge() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[string]credential.Record)
	v.loaded = false
}

// ensureLoaded fills the cache on first use. Caller holds v.mu.
func (v *Vault) ensureLoaded(ctx context.Context, key []byte) error {
	if v.loaded {
		return nil
	}
	_, err := v.loadLocked(ctx, key)
	return err
}

// loadLocked decrypts every stored record under key, replacing the cache.
func (v *Vault) loadLocked(ctx context.Context, key []byte) (BatchResult, error) {
	var res BatchResult

	records, malformed, err := storage.GetRecords(ctx, v.store)
	if err != nil {
		return res, fmt.Errorf("failed to read vault: %w", err)
	}
	for _, id := range malformed {
		v.log.Warn("skipping malformed vault record", zap.String("record_id", id))
	}
	res.Failed += len(malformed)

	opened, errs := v.openAll(ctx, records, key)
	entries := make(map[string]credential.Record, len(records))
	for i, rec := range records {
		if errs[i] != nil {
			v.log.Warn("dropping record that does not decrypt under the session key",
				zap.String("record_id", rec.ID), zap.Error(errs[i]))
			res.Failed++
			continue
		}
		entries[rec.ID] = opened[i]
		res.Applied++
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	v.entries = entries
	v.loaded = true
	return res, nil
}

// Reload re-decrypts the whole vault from the store and reports how many
// records made it into the cache.
func (v *Vault) Reload(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		var err error
		res, err = v.loadLocked(ctx, key)
		return err
	})
	return res, err
}

func sortedByCreation(entries map[string]credential.Record, keep func(credential.Record) bool) []credential.Record {
	out := make([]credential.Record, 0, len(entries))
	for _, e := range entries {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v *Vault) snapshot(ctx context.Context, keep func(credential.Record) bool) ([]credential.Record, error) {
	var out []credential.Record
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, key); err != nil {
			return err
		}
		out = sortedByCreation(v.entries, keep)
		return nil
	})
	return out, err
}

// Entries returns every readable credential, newest first.
func (v *Vault) Entries(ctx context.Context) ([]credential.Record, error) {
	return v.snapshot(ctx, nil)
}

// Search returns credentials whose title, username, website, url or tags
// contain query.
func (v *Vault) Search(ctx context.Context, query string) ([]credential.Record, error) {
	return v.snapshot(ctx, func(r credential.Record) bool { return r.Matches(query) })
}

// Favorites returns credentials flagged as favorite.
func (v *Vault) Favorites(ctx context.Context) ([]credential.Record, error) {
	return v.snapshot(ctx, func(r credential.Record) bool { return r.Favorite })
}

// Entry returns one credential by id.
func (v *Vault) Entry(ctx context.Context, id string) (credential.Record, error) {
	var out credential.Record
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, key); err != nil {
			return err
		}
		e, ok := v.entries[id]
		if !ok {
			return ErrEntryNotFound
		}
		out = e
		return nil
	})
	return out, err
}

// StorageRecords returns the raw persisted records, for a full push to a
// remote. No key is needed.
func (v *Vault) StorageRecords(ctx context.Context) ([]storage.Record, error) {
	records, malformed, err := storage.GetRecords(ctx, v.store)
	for _, id := range malformed {
		v.log.Warn("skipping malformed vault record", zap.String("record_id", id))
	}
	return records, err
}

// write persists rec and updates the cache. Caller holds v.mu.
func (v *Vault) write(ctx context.Context, r credential.Record, key []byte) (storage.Record, error) {
	enc := crypto.NewEncryptor(key)
	defer enc.Destroy()
	rec, err := sealRecord(r, enc)
	if err != nil {
		return storage.Record{}, err
	}
	m, err := storage.RecordMutation(rec)
	if err != nil {
		return storage.Record{}, err
	}
	if err := v.store.Batch(ctx, []storage.Mutation{m}); err != nil {
		return storage.Record{}, fmt.Errorf("failed to store entry %s: %w", r.ID, err)
	}
	v.entries[r.ID] = r
	return rec, nil
}

// AddEntry encrypts and stores a new credential. The id and timestamps are
// assigned here unless r already carries an id.
func (v *Vault) AddEntry(ctx context.Context, r credential.Record) (credential.Record, error) {
	var rec storage.Record
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, key); err != nil {
			return err
		}

		if r.ID == "" {
			r.ID = v.newID()
		}
		if _, exists := v.entries[r.ID]; exists {
			return fmt.Errorf("%w: %s", ErrEntryExists, r.ID)
		}
		now := v.now().UnixMilli()
		r.CreatedAt = now
		r.UpdatedAt = now
		r.Strength = credential.ClassifyStrength(r.Password)

		var err error
		rec, err = v.write(ctx, r, key)
		return err
	})
	if err != nil {
		return credential.Record{}, err
	}

	v.notifier.NotifyUpload(rec)
	v.log.Debug("entry added", zap.String("record_id", r.ID))
	return r, nil
}

// UpdateEntry replaces the credential with r.ID. CreatedAt is kept and
// UpdatedAt strictly advances.
func (v *Vault) UpdateEntry(ctx context.Context, r credential.Record) (credential.Record, error) {
	var rec storage.Record
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, key); err != nil {
			return err
		}

		existing, ok := v.entries[r.ID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, r.ID)
		}
		r.CreatedAt = existing.CreatedAt
		r.UpdatedAt = v.now().UnixMilli()
		if r.UpdatedAt <= existing.UpdatedAt {
			r.UpdatedAt = existing.UpdatedAt + 1
		}
		r.Strength = credential.ClassifyStrength(r.Password)

		var err error
		rec, err = v.write(ctx, r, key)
		return err
	})
	if err != nil {
		return credential.Record{}, err
	}

	v.notifier.NotifyUpload(rec)
	v.log.Debug("entry updated", zap.String("record_id", r.ID))
	return r, nil
}

// DeleteEntry removes a credential from the store and the cache.
func (v *Vault) DeleteEntry(ctx context.Context, id string) error {
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, key); err != nil {
			return err
		}

		if _, ok := v.entries[id]; !ok {
			// an unreadable record can still be deleted
			if _, err := v.store.Get(ctx, storage.NamespaceVault, id); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
				}
				return err
			}
		}
		if err := v.store.Delete(ctx, storage.NamespaceVault, id); err != nil {
			return fmt.Errorf("failed to delete entry %s: %w", id, err)
		}
		delete(v.entries, id)
		return nil
	})
	if err != nil {
		return err
	}

	v.notifier.NotifyDelete(id)
	v.log.Debug("entry deleted", zap.String("record_id", id))
	return nil
}

// ClearLocalVault wipes every local record. Used when the user chooses to
// discard the local vault and adopt the cloud one; no key is required.
func (v *Vault) ClearLocalVault(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.store.Clear(ctx, storage.NamespaceVault); err != nil {
		return fmt.Errorf("failed to clear vault: %w", err)
	}
	v.entries = make(map[string]credential.Record)
	v.loaded = false
	v.log.Info("local vault cleared")
	return nil
}
