package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps every namespace in one Badger keyspace, keys prefixed
// with "<namespace>/".
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates a Badger directory at path
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func prefix(ns Namespace) []byte {
	return []byte(string(ns) + "/")
}

func badgerKey(ns Namespace, key string) []byte {
	return append(prefix(ns), key...)
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Get returns a copy of the value stored under key
func (s *BadgerStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(ns, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// GetAll returns every entry of a namespace in key order
func (s *BadgerStore) GetAll(ctx context.Context, ns Namespace) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	p := prefix(ns)
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{
				Key:   string(item.Key()[len(p):]),
				Value: v,
			})
		}
		return nil
	})
	return entries, err
}

// Put stores value under key
func (s *BadgerStore) Put(ctx context.Context, ns Namespace, key string, value []byte) error {
	return s.Batch(ctx, []Mutation{Put(ns, key, value)})
}

// Delete removes key; deleting an absent key is not an error
func (s *BadgerStore) Delete(ctx context.Context, ns Namespace, key string) error {
	return s.Batch(ctx, []Mutation{Del(ns, key)})
}

// Clear removes every key of a namespace
func (s *BadgerStore) Clear(ctx context.Context, ns Namespace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkNamespace(ns); err != nil {
		return err
	}
	return s.db.DropPrefix(prefix(ns))
}

// Batch applies all mutations in a single transaction
func (s *BadgerStore) Batch(ctx context.Context, mutations []Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range mutations {
		if err := checkNamespace(m.Namespace); err != nil {
			return err
		}
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, m := range mutations {
			k := badgerKey(m.Namespace, m.Key)
			if m.Delete {
				if err := txn.Delete(k); err != nil {
					return fmt.Errorf("failed to delete %s/%s: %w", m.Namespace, m.Key, err)
				}
				continue
			}
			if err := txn.Set(k, append([]byte(nil), m.Value...)); err != nil {
				return fmt.Errorf("failed to put %s/%s: %w", m.Namespace, m.Key, err)
			}
		}
		return nil
	})
}

// Compact flattens the LSM tree and reclaims value log space
func (s *BadgerStore) Compact() error {
	if err := s.db.Flatten(1); err != nil {
		return fmt.Errorf("failed to flatten: %w", err)
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc failed: %w", err)
		}
	}
}
