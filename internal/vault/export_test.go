package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/lockvault/internal/crypto"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	exportKey := newKey(t)

	src := newVault(t, newStore(t), newKey(t))
	addEntries(t, src, "a", "b")
	blob, err := src.ExportVault(ctx, exportKey)
	require.NoError(t, err)
	assert.Contains(t, blob, `"ciphertext"`)
	assert.Contains(t, blob, `"nonce"`)
	assert.NotContains(t, blob, "a!")

	rec := &recorder{}
	dst := newVault(t, newStore(t), newKey(t), WithNotifier(rec))
	res, err := dst.ImportVault(ctx, blob, exportKey)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Applied: 2}, res)
	assert.Len(t, rec.uploads, 2)

	want, err := src.Entries(ctx)
	require.NoError(t, err)
	got, err := dst.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// importing again changes nothing: local wins ties
	res, err = dst.ImportVault(ctx, blob, exportKey)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Skipped: 2}, res)
}

func TestImportRejects(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, newStore(t), newKey(t))
	blob, err := v.ExportVault(ctx, newKey(t))
	require.NoError(t, err)

	_, err = v.ImportVault(ctx, blob, newKey(t))
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailure)

	_, err = v.ImportVault(ctx, "not json", newKey(t))
	assert.ErrorIs(t, err, ErrInvalidExport)

	_, err = v.ImportVault(ctx, `{"ciphertext":""}`, newKey(t))
	assert.ErrorIs(t, err, ErrInvalidExport)
}

func TestExportEmptyVault(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)
	v := newVault(t, newStore(t), newKey(t))

	blob, err := v.ExportVault(ctx, key)
	require.NoError(t, err)
	res, err := newVault(t, newStore(t), newKey(t)).ImportVault(ctx, blob, key)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, res)
}
