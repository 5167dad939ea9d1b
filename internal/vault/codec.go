package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/storage"
)

// sealRecord encrypts the sensitive projection of r with enc.
func sealRecord(r credential.Record, enc *crypto.Encryptor) (storage.Record, error) {
	plain, err := json.Marshal(r.Seal())
	if err != nil {
		return storage.Record{}, fmt.Errorf("failed to marshal entry %s: %w", r.ID, err)
	}
	defer crypto.ClearBytes(plain)

	sealed, err := enc.Seal(plain)
	if err != nil {
		return storage.Record{}, fmt.Errorf("failed to encrypt entry %s: %w", r.ID, err)
	}
	return storage.Record{
		ID:        r.ID,
		Payload:   sealed.Ciphertext,
		Nonce:     sealed.Nonce,
		Category:  r.Category,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Favorite:  r.Favorite,
		Icon:      r.Icon,
	}, nil
}

// openRecord decrypts rec with enc and merges it with the clear fields.
func openRecord(rec storage.Record, enc *crypto.Encryptor) (credential.Record, error) {
	if err := rec.Validate(); err != nil {
		return credential.Record{}, err
	}
	plain, err := enc.Open(crypto.Sealed{Ciphertext: rec.Payload, Nonce: rec.Nonce})
	if err != nil {
		return credential.Record{}, err
	}
	defer crypto.ClearBytes(plain)

	var sealed credential.Sealed
	if err := json.Unmarshal(plain, &sealed); err != nil {
		return credential.Record{}, fmt.Errorf("%w: entry %s payload: %v", storage.ErrMalformed, rec.ID, err)
	}

	r := credential.Record{
		ID:        rec.ID,
		Category:  rec.Category,
		Favorite:  rec.Favorite,
		Icon:      rec.Icon,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}.Open(sealed)
	if r.Category == "" {
		r.Category = rec.Category
	}
	return r, nil
}

// openAll decrypts records in parallel. errs[i] is set for every record
// that could not be opened; the caller decides what a failure means.
func (v *Vault) openAll(ctx context.Context, records []storage.Record, key []byte) ([]credential.Record, []error) {
	opened := make([]credential.Record, len(records))
	errs := make([]error, len(records))
	enc := crypto.NewEncryptor(key)
	defer enc.Destroy()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			opened[i], errs[i] = openRecord(rec, enc)
			return nil
		})
	}
	_ = g.Wait()
	return opened, errs
}

// sealAll encrypts records in parallel and stops at the first failure.
func (v *Vault) sealAll(ctx context.Context, records []credential.Record, key []byte) ([]storage.Record, error) {
	sealed := make([]storage.Record, len(records))
	enc := crypto.NewEncryptor(key)
	defer enc.Destroy()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, r := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := sealRecord(r, enc)
			if err != nil {
				return err
			}
			sealed[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sealed, nil
}

func mutationsFor(records []storage.Record) ([]storage.Mutation, error) {
	out := make([]storage.Mutation, 0, len(records))
	for _, rec := range records {
		m, err := storage.RecordMutation(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
