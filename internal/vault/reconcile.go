package vault

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/storage"
)

// Action is what a merge does with one incoming record.
type Action string

const (
	ActionInsert     Action = "insert"
	ActionReplace    Action = "replace"
	ActionKeepLocal  Action = "keep-local"
	ActionUnreadable Action = "unreadable"
)

// Conflict describes the merge decision for one incoming record.
type Conflict struct {
	ID                string
	Title             string
	Action            Action
	LocalUpdatedAt    int64
	IncomingUpdatedAt int64
	// Diff is set when a local version exists and differs from the incoming one.
	Diff string
	Err  error
}

type mergeStep struct {
	incoming credential.Record
	local    credential.Record
	action   Action
	err      error
}

// newestByID keeps one record per id: the highest UpdatedAt, the earlier
// one on a tie. Order of first appearance is preserved.
func newestByID(items []storage.Record) (kept []storage.Record, superseded int) {
	index := make(map[string]int, len(items))
	kept = make([]storage.Record, 0, len(items))
	for _, item := range items {
		i, seen := index[item.ID]
		if !seen {
			index[item.ID] = len(kept)
			kept = append(kept, item)
			continue
		}
		superseded++
		if item.UpdatedAt > kept[i].UpdatedAt {
			kept[i] = item
		}
	}
	return kept, superseded
}

// plan decrypts items under cloudKey and decides each one against the
// cache: the newer UpdatedAt wins and the local copy wins a tie. items
// must hold one record per id. Caller holds v.mu with the cache loaded.
func (v *Vault) plan(ctx context.Context, items []storage.Record, cloudKey []byte) []mergeStep {
	opened, errs := v.openAll(ctx, items, cloudKey)

	steps := make([]mergeStep, len(items))
	for i, item := range items {
		if errs[i] != nil {
			steps[i] = mergeStep{incoming: credential.Record{ID: item.ID, UpdatedAt: item.UpdatedAt}, action: ActionUnreadable, err: errs[i]}
			continue
		}
		step := mergeStep{incoming: opened[i], action: ActionInsert}
		if local, ok := v.entries[item.ID]; ok {
			step.local = local
			step.action = ActionReplace
			if local.UpdatedAt >= opened[i].UpdatedAt {
				step.action = ActionKeepLocal
			}
		}
		steps[i] = step
	}
	return steps
}

// persist writes one record on its own so a failing item does not hold
// back the rest. Caller holds v.mu.
func (v *Vault) persist(ctx context.Context, rec storage.Record) error {
	m, err := storage.RecordMutation(rec)
	if err != nil {
		return err
	}
	return v.store.Batch(ctx, []storage.Mutation{m})
}

// ProcessCloudEntries adopts records fetched from a remote that are sealed
// under the session key. Each readable item overwrites or inserts the
// local copy verbatim; unreadable items are counted and skipped.
func (v *Vault) ProcessCloudEntries(ctx context.Context, items []storage.Record) (BatchResult, error) {
	var res BatchResult
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, key); err != nil {
			return err
		}

		items, superseded := newestByID(items)
		res.Skipped += superseded

		opened, errs := v.openAll(ctx, items, key)
		for i, item := range items {
			if errs[i] != nil {
				v.log.Warn("skipping cloud record that does not decrypt",
					zap.String("record_id", item.ID), zap.Error(errs[i]))
				res.Skipped++
				continue
			}
			if err := v.persist(ctx, item); err != nil {
				v.log.Error("failed to store cloud record",
					zap.String("record_id", item.ID), zap.Error(err))
				res.Failed++
				continue
			}
			v.entries[item.ID] = opened[i]
			res.Applied++
		}
		return ctx.Err()
	})

	v.log.Info("cloud records processed",
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, err
}

// MergeCloudEntries adopts records sealed under cloudKey, a key derived
// from another device's credentials. Winners are re-sealed under the
// session key with their original id and timestamps.
func (v *Vault) MergeCloudEntries(ctx context.Context, items []storage.Record, cloudKey []byte) (BatchResult, error) {
	var res BatchResult
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, key); err != nil {
			return err
		}

		items, superseded := newestByID(items)
		res.Skipped += superseded

		enc := crypto.NewEncryptor(key)
		defer enc.Destroy()
		for _, step := range v.plan(ctx, items, cloudKey) {
			id := step.incoming.ID
			switch step.action {
			case ActionUnreadable:
				v.log.Warn("cloud record does not decrypt under the cloud key",
					zap.String("record_id", id), zap.Error(step.err))
				res.Failed++
				continue
			case ActionKeepLocal:
				res.Skipped++
				continue
			}

			rec, err := sealRecord(step.incoming, enc)
			if err == nil {
				err = v.persist(ctx, rec)
			}
			if err != nil {
				v.log.Error("failed to merge cloud record", zap.String("record_id", id), zap.Error(err))
				res.Failed++
				continue
			}
			v.entries[id] = step.incoming
			res.Applied++
		}
		return ctx.Err()
	})

	v.log.Info("cloud records merged",
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, err
}

// PreviewMerge reports what MergeCloudEntries would do without writing.
func (v *Vault) PreviewMerge(ctx context.Context, items []storage.Record, cloudKey []byte) ([]Conflict, error) {
	var out []Conflict
	err := v.keys.WithKey(func(key []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, key); err != nil {
			return err
		}

		items, _ := newestByID(items)
		for _, step := range v.plan(ctx, items, cloudKey) {
			c := Conflict{
				ID:                step.incoming.ID,
				Title:             step.incoming.Title,
				Action:            step.action,
				LocalUpdatedAt:    step.local.UpdatedAt,
				IncomingUpdatedAt: step.incoming.UpdatedAt,
				Err:               step.err,
			}
			if step.action == ActionReplace || step.action == ActionKeepLocal {
				if c.Title == "" {
					c.Title = step.local.Title
				}
				c.Diff = credential.Diff(step.local, step.incoming)
			}
			out = append(out, c)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to preview merge: %w", err)
	}
	return out, nil
}
