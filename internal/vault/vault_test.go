package vault

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/session"
	"github.com/illarion/lockvault/internal/storage"
)

var errInjected = errors.New("injected failure")

// staticKeys is a KeyProvider over a fixed key; a nil key means locked.
type staticKeys struct {
	mu  sync.RWMutex
	key []byte
}

func (k *staticKeys) WithKey(fn func([]byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return session.ErrVaultLocked
	}
	return fn(append([]byte(nil), k.key...))
}

// faultStore fails Batch while failBatch is set.
type faultStore struct {
	storage.Store
	failBatch bool
}

func (f *faultStore) Batch(ctx context.Context, m []storage.Mutation) error {
	if f.failBatch {
		return errInjected
	}
	return f.Store.Batch(ctx, m)
}

// recorder is a Notifier that remembers what it was told.
type recorder struct {
	mu      sync.Mutex
	uploads []string
	deletes []string
}

func (r *recorder) NotifyUpload(rec storage.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, rec.ID)
}

func (r *recorder) NotifyDelete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.OpenBolt(filepath.Join(t.TempDir(), "test.lockvault"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newKey(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.GenerateRandom(crypto.KeySize)
	require.NoError(t, err)
	return key
}

// tickingClock advances one second on every call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newVault(t *testing.T, store storage.Store, key []byte, opts ...Option) *Vault {
	t.Helper()
	opts = append([]Option{WithClock(tickingClock())}, opts...)
	return New(store, &staticKeys{key: key}, opts...)
}

// cloudRecord seals r under key the way another device would.
func cloudRecord(t *testing.T, r credential.Record, key []byte) storage.Record {
	t.Helper()
	enc := crypto.NewEncryptor(key)
	defer enc.Destroy()
	rec, err := sealRecord(r, enc)
	require.NoError(t, err)
	return rec
}

func TestAddAndListEntries(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, newStore(t), newKey(t))

	first, err := v.AddEntry(ctx, credential.Record{Title: "mail", Username: "me", Password: "abc"})
	require.NoError(t, err)
	second, err := v.AddEntry(ctx, credential.Record{Title: "bank", Password: "Str0ng!Pass123"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)
	assert.Greater(t, second.CreatedAt, first.CreatedAt)
	assert.Equal(t, credential.Weak, first.Strength)

	entries, err := v.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bank", entries[0].Title, "newest first")
	assert.Equal(t, "mail", entries[1].Title)

	got, err := v.Entry(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "me", got.Username)
}

func TestEntriesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := newKey(t)

	added, err := newVault(t, store, key).AddEntry(ctx, credential.Record{Title: "mail", Tags: []string{"work"}})
	require.NoError(t, err)

	entries, err := newVault(t, store, key).Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, added.ID, entries[0].ID)
	assert.Equal(t, []string{"work"}, entries[0].Tags)
}

func TestAddEntryRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, newStore(t), newKey(t))

	_, err := v.AddEntry(ctx, credential.Record{ID: "x", Title: "a"})
	require.NoError(t, err)
	_, err = v.AddEntry(ctx, credential.Record{ID: "x", Title: "b"})
	assert.ErrorIs(t, err, ErrEntryExists)
}

func TestUpdateEntry(t *testing.T) {
	ctx := context.Background()
	clock := time.UnixMilli(5000)
	v := New(newStore(t), &staticKeys{key: newKey(t)}, WithClock(func() time.Time { return clock }))

	added, err := v.AddEntry(ctx, credential.Record{Title: "mail", Password: "abc"})
	require.NoError(t, err)

	// clock went backwards
	clock = time.UnixMilli(1000)
	added.Password = "Str0ng!Pass123"
	updated, err := v.UpdateEntry(ctx, added)
	require.NoError(t, err)
	assert.Equal(t, added.CreatedAt, updated.CreatedAt)
	assert.Greater(t, updated.UpdatedAt, added.UpdatedAt)
	assert.Equal(t, credential.Secure, updated.Strength)

	_, err = v.UpdateEntry(ctx, credential.Record{ID: "missing"})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDeleteEntry(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	v := newVault(t, store, newKey(t))

	added, err := v.AddEntry(ctx, credential.Record{Title: "mail"})
	require.NoError(t, err)
	require.NoError(t, v.DeleteEntry(ctx, added.ID))

	_, err = v.Entry(ctx, added.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = store.Get(ctx, storage.NamespaceVault, added.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, v.DeleteEntry(ctx, added.ID), ErrEntryNotFound)
}

func TestDeleteUnreadableEntry(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	foreign := cloudRecord(t, credential.Record{ID: "foreign", Title: "x"}, newKey(t))
	m, err := storage.RecordMutation(foreign)
	require.NoError(t, err)
	require.NoError(t, store.Batch(ctx, []storage.Mutation{m}))

	v := newVault(t, store, newKey(t))
	require.NoError(t, v.DeleteEntry(ctx, "foreign"))
	_, err = store.Get(ctx, storage.NamespaceVault, "foreign")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLockedVaultRefusesAccess(t *testing.T) {
	ctx := context.Background()
	v := New(newStore(t), &staticKeys{})

	_, err := v.Entries(ctx)
	assert.ErrorIs(t, err, session.ErrVaultLocked)
	_, err = v.AddEntry(ctx, credential.Record{Title: "x"})
	assert.ErrorIs(t, err, session.ErrVaultLocked)
	assert.ErrorIs(t, v.DeleteEntry(ctx, "x"), session.ErrVaultLocked)
}

func TestUndecryptableRecordsAreDropped(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := newKey(t)

	v := newVault(t, store, key)
	_, err := v.AddEntry(ctx, credential.Record{Title: "mine"})
	require.NoError(t, err)

	foreign := cloudRecord(t, credential.Record{ID: "foreign", Title: "theirs"}, newKey(t))
	m, err := storage.RecordMutation(foreign)
	require.NoError(t, err)
	require.NoError(t, store.Batch(ctx, []storage.Mutation{m}))
	require.NoError(t, store.Put(ctx, storage.NamespaceVault, "junk", []byte("{")))

	core, logs := observer.New(zap.WarnLevel)
	v = newVault(t, store, key, WithLogger(zap.New(core)))

	res, err := v.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Applied: 1, Failed: 2}, res)

	entries, err := v.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mine", entries[0].Title)
	assert.Equal(t, 2, logs.Len())
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	v := newVault(t, newStore(t), newKey(t), WithNotifier(rec))

	added, err := v.AddEntry(ctx, credential.Record{Title: "mail"})
	require.NoError(t, err)
	_, err = v.UpdateEntry(ctx, added)
	require.NoError(t, err)
	require.NoError(t, v.DeleteEntry(ctx, added.ID))

	assert.Equal(t, []string{added.ID, added.ID}, rec.uploads)
	assert.Equal(t, []string{added.ID}, rec.deletes)
}

func TestNotifierSilentOnFailedWrite(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	store := &faultStore{Store: newStore(t), failBatch: true}
	v := newVault(t, store, newKey(t), WithNotifier(rec))

	_, err := v.AddEntry(ctx, credential.Record{Title: "mail"})
	assert.ErrorIs(t, err, errInjected)
	assert.Empty(t, rec.uploads)

	store.failBatch = false
	entries, err := v.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSearchAndFavorites(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, newStore(t), newKey(t))

	_, err := v.AddEntry(ctx, credential.Record{Title: "GitHub", Website: "github.com", Favorite: true})
	require.NoError(t, err)
	_, err = v.AddEntry(ctx, credential.Record{Title: "Bank", Tags: []string{"money"}})
	require.NoError(t, err)

	found, err := v.Search(ctx, "git")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "GitHub", found[0].Title)

	found, err = v.Search(ctx, "MONEY")
	require.NoError(t, err)
	require.Len(t, found, 1)

	favs, err := v.Favorites(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.True(t, favs[0].Favorite)
}

func TestClearLocalVault(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, newStore(t), newKey(t))

	_, err := v.AddEntry(ctx, credential.Record{Title: "mail"})
	require.NoError(t, err)
	require.NoError(t, v.ClearLocalVault(ctx))

	entries, err := v.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPurgeForcesReload(t *testing.T) {
	ctx := context.Background()
	keys := &staticKeys{key: newKey(t)}
	v := New(newStore(t), keys)

	_, err := v.AddEntry(ctx, credential.Record{Title: "mail"})
	require.NoError(t, err)

	v.Purge()
	keys.key = newKey(t)
	entries, err := v.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "cache must not outlive the key it was built with")
}
