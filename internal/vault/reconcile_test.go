package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/storage"
)

// seedLocal stores r as-is under key, keeping its timestamps.
func seedLocal(t *testing.T, store storage.Store, r credential.Record, key []byte) {
	t.Helper()
	m, err := storage.RecordMutation(cloudRecord(t, r, key))
	require.NoError(t, err)
	require.NoError(t, store.Batch(context.Background(), []storage.Mutation{m}))
}

func TestMergeLastWriterWinsLocalWinsTies(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	localKey, cloudKey := newKey(t), newKey(t)

	seedLocal(t, store, credential.Record{ID: "tie", Title: "local", CreatedAt: 50, UpdatedAt: 100}, localKey)
	seedLocal(t, store, credential.Record{ID: "newer", Title: "local", CreatedAt: 50, UpdatedAt: 100}, localKey)
	seedLocal(t, store, credential.Record{ID: "older", Title: "local", CreatedAt: 50, UpdatedAt: 100}, localKey)

	items := []storage.Record{
		cloudRecord(t, credential.Record{ID: "tie", Title: "cloud", CreatedAt: 50, UpdatedAt: 100}, cloudKey),
		cloudRecord(t, credential.Record{ID: "newer", Title: "cloud", CreatedAt: 50, UpdatedAt: 101}, cloudKey),
		cloudRecord(t, credential.Record{ID: "older", Title: "cloud", CreatedAt: 50, UpdatedAt: 99}, cloudKey),
		cloudRecord(t, credential.Record{ID: "fresh", Title: "cloud", CreatedAt: 7, UpdatedAt: 8}, cloudKey),
		cloudRecord(t, credential.Record{ID: "bad", Title: "cloud", UpdatedAt: 500}, newKey(t)),
	}

	v := newVault(t, store, localKey)
	res, err := v.MergeCloudEntries(ctx, items, cloudKey)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Applied: 2, Skipped: 2, Failed: 1}, res)

	titles := map[string]string{}
	entries, err := v.Entries(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		titles[e.ID] = e.Title
	}
	assert.Equal(t, map[string]string{
		"tie":   "local",
		"newer": "cloud",
		"older": "local",
		"fresh": "cloud",
	}, titles)

	// winners are re-sealed under the local key with original timestamps
	reopened, err := newVault(t, store, localKey).Entry(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(7), reopened.CreatedAt)
	assert.Equal(t, int64(8), reopened.UpdatedAt)
}

func TestPreviewMergeWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	localKey, cloudKey := newKey(t), newKey(t)

	seedLocal(t, store, credential.Record{ID: "a", Title: "mail", Username: "me", Password: "one", UpdatedAt: 100}, localKey)
	items := []storage.Record{
		cloudRecord(t, credential.Record{ID: "a", Title: "mail", Username: "you", Password: "two", UpdatedAt: 200}, cloudKey),
		cloudRecord(t, credential.Record{ID: "b", Title: "new", UpdatedAt: 1}, cloudKey),
		cloudRecord(t, credential.Record{ID: "c", Title: "lost", UpdatedAt: 1}, newKey(t)),
	}

	v := newVault(t, store, localKey)
	conflicts, err := v.PreviewMerge(ctx, items, cloudKey)
	require.NoError(t, err)
	require.Len(t, conflicts, 3)

	assert.Equal(t, ActionReplace, conflicts[0].Action)
	assert.Contains(t, conflicts[0].Diff, "- username: me")
	assert.Contains(t, conflicts[0].Diff, "+ username: you")
	assert.Contains(t, conflicts[0].Diff, "(differs)")
	assert.NotContains(t, conflicts[0].Diff, "two")
	assert.Equal(t, ActionInsert, conflicts[1].Action)
	assert.Empty(t, conflicts[1].Diff)
	assert.Equal(t, ActionUnreadable, conflicts[2].Action)
	assert.Error(t, conflicts[2].Err)

	entries, err := v.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "me", entries[0].Username)
}

func TestProcessCloudEntries(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := newKey(t)

	good := cloudRecord(t, credential.Record{ID: "good", Title: "synced", UpdatedAt: 3}, key)
	items := []storage.Record{
		good,
		cloudRecord(t, credential.Record{ID: "stale", Title: "x"}, newKey(t)),
		{ID: "empty"},
	}

	v := newVault(t, store, key)
	res, err := v.ProcessCloudEntries(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Applied: 1, Skipped: 2}, res)

	got, err := v.Entry(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "synced", got.Title)

	// stored verbatim, same nonce
	data, err := store.Get(ctx, storage.NamespaceVault, "good")
	require.NoError(t, err)
	stored, err := storage.DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, good.Nonce, stored.Nonce)
}

func TestProcessCloudEntriesCountsWriteFailures(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)
	store := &faultStore{Store: newStore(t)}
	v := newVault(t, store, key)
	_, err := v.Entries(ctx)
	require.NoError(t, err)

	store.failBatch = true
	res, err := v.ProcessCloudEntries(ctx, []storage.Record{
		cloudRecord(t, credential.Record{ID: "a"}, key),
	})
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Failed: 1}, res)

	_, err = v.Entry(ctx, "a")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDuplicateIDsInOneBatchKeepNewest(t *testing.T) {
	ctx := context.Background()
	localKey, cloudKey := newKey(t), newKey(t)

	dupes := func(key []byte) []storage.Record {
		return []storage.Record{
			cloudRecord(t, credential.Record{ID: "dup", Title: "newer", CreatedAt: 1, UpdatedAt: 200}, key),
			cloudRecord(t, credential.Record{ID: "dup", Title: "older", CreatedAt: 1, UpdatedAt: 150}, key),
			cloudRecord(t, credential.Record{ID: "dup", Title: "tie", CreatedAt: 1, UpdatedAt: 200}, key),
		}
	}

	t.Run("merge", func(t *testing.T) {
		store := newStore(t)
		v := newVault(t, store, localKey)

		conflicts, err := v.PreviewMerge(ctx, dupes(cloudKey), cloudKey)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "newer", conflicts[0].Title)

		res, err := v.MergeCloudEntries(ctx, dupes(cloudKey), cloudKey)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Applied: 1, Skipped: 2}, res)

		got, err := v.Entry(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "newer", got.Title)

		stored, err := newVault(t, store, localKey).Entry(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "newer", stored.Title)
	})

	t.Run("process", func(t *testing.T) {
		store := newStore(t)
		v := newVault(t, store, localKey)

		res, err := v.ProcessCloudEntries(ctx, dupes(localKey))
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Applied: 1, Skipped: 2}, res)

		got, err := v.Entry(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "newer", got.Title)

		stored, err := newVault(t, store, localKey).Entry(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "newer", stored.Title)
	})
}

func TestNewestByID(t *testing.T) {
	items := []storage.Record{
		{ID: "a", UpdatedAt: 1, Icon: "first"},
		{ID: "b", UpdatedAt: 5},
		{ID: "a", UpdatedAt: 3, Icon: "second"},
		{ID: "a", UpdatedAt: 3, Icon: "third"},
	}
	kept, superseded := newestByID(items)
	assert.Equal(t, 2, superseded)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "second", kept[0].Icon)
	assert.Equal(t, "b", kept[1].ID)
}
