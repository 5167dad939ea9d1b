package vault

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/storage"
)

// Reencrypt re-wraps every stored record from oldKey to newKey and commits
// them together with extra in a single batch. The cache is swapped only
// after the batch is durable, so a failure leaves both the store and the
// cache under oldKey. An unloaded or purged cache is not refilled.
//
// The caller holds the key identity lock in write mode; Reencrypt must not
// go through the KeyProvider.
func (v *Vault) Reencrypt(ctx context.Context, oldKey, newKey []byte, extra ...storage.Mutation) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	records, malformed, err := storage.GetRecords(ctx, v.store)
	if err != nil {
		return fmt.Errorf("failed to read vault: %w", err)
	}
	for _, id := range malformed {
		v.log.Warn("leaving malformed record untouched during re-encryption", zap.String("record_id", id))
	}

	opened, errs := v.openAll(ctx, records, oldKey)
	if err := ctx.Err(); err != nil {
		return err
	}
	readable := make([]credential.Record, 0, len(records))
	for i, rec := range records {
		if errs[i] != nil {
			v.log.Warn("leaving undecryptable record untouched during re-encryption",
				zap.String("record_id", rec.ID), zap.Error(errs[i]))
			continue
		}
		readable = append(readable, opened[i])
	}

	sealed, err := v.sealAll(ctx, readable, newKey)
	if err != nil {
		return err
	}
	batch, err := mutationsFor(sealed)
	if err != nil {
		return err
	}
	batch = append(batch, extra...)

	if err := v.store.Batch(ctx, batch); err != nil {
		return fmt.Errorf("failed to commit re-encrypted vault: %w", err)
	}

	// A purged cache stays purged; it reloads lazily under the new key.
	if v.loaded {
		entries := make(map[string]credential.Record, len(readable))
		for _, r := range readable {
			entries[r.ID] = r
		}
		v.entries = entries
	}

	v.log.Info("vault re-encrypted", zap.Int("records", len(readable)))
	return nil
}
