package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Config keys of the internal bookkeeping bucket
var (
	configBucket   = []byte("config")
	configVersion  = []byte("version")
	configCreated  = []byte("created")
	configModified = []byte("modified")
)

// BoltStore provides BBolt-based storage for lockvault
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates a lockvault database and provisions its buckets
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &BoltStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.db.Path()
}

// initialize creates the bucket structure on first open
func (s *BoltStore) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, ns := range Namespaces {
			if _, err := tx.CreateBucketIfNotExists([]byte(ns)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", ns, err)
			}
		}

		config, err := tx.CreateBucketIfNotExists(configBucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", configBucket, err)
		}
		if config.Get(configVersion) != nil {
			return nil
		}

		if err := config.Put(configVersion, []byte("1")); err != nil {
			return err
		}
		created, _ := time.Now().MarshalBinary()
		if err := config.Put(configCreated, created); err != nil {
			return err
		}
		return config.Put(configModified, created)
	})
}

func touch(tx *bolt.Tx) error {
	modified, _ := time.Now().MarshalBinary()
	return tx.Bucket(configBucket).Put(configModified, modified)
}

func bucket(tx *bolt.Tx, ns Namespace) (*bolt.Bucket, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	b := tx.Bucket([]byte(ns))
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", ns)
	}
	return b, nil
}

// Get returns a copy of the value stored under key
func (s *BoltStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, ns)
		if err != nil {
			return err
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// GetAll returns every entry of a namespace in key order
func (s *BoltStore) GetAll(ctx context.Context, ns Namespace) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, ns)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			entries = append(entries, Entry{
				Key:   string(k),
				Value: append([]byte(nil), v...),
			})
			return nil
		})
	})
	return entries, err
}

// Put stores value under key
func (s *BoltStore) Put(ctx context.Context, ns Namespace, key string, value []byte) error {
	return s.Batch(ctx, []Mutation{Put(ns, key, value)})
}

// Delete removes key; deleting an absent key is not an error
func (s *BoltStore) Delete(ctx context.Context, ns Namespace, key string) error {
	return s.Batch(ctx, []Mutation{Del(ns, key)})
}

// Clear removes every key of a namespace
func (s *BoltStore) Clear(ctx context.Context, ns Namespace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkNamespace(ns); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(ns)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", ns, err)
		}
		if _, err := tx.CreateBucket([]byte(ns)); err != nil {
			return fmt.Errorf("failed to recreate %s: %w", ns, err)
		}
		return touch(tx)
	})
}

// Batch applies all mutations in a single transaction
func (s *BoltStore) Batch(ctx context.Context, mutations []Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, m := range mutations {
			b, err := bucket(tx, m.Namespace)
			if err != nil {
				return err
			}
			if m.Delete {
				if err := b.Delete([]byte(m.Key)); err != nil {
					return fmt.Errorf("failed to delete %s/%s: %w", m.Namespace, m.Key, err)
				}
				continue
			}
			if err := b.Put([]byte(m.Key), m.Value); err != nil {
				return fmt.Errorf("failed to put %s/%s: %w", m.Namespace, m.Key, err)
			}
		}
		return touch(tx)
	})
}

// Modified returns the time of the last committed write
func (s *BoltStore) Modified() (time.Time, error) {
	var modified time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(configBucket).Get(configModified)
		if data == nil {
			return fmt.Errorf("modified time not found")
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after a password change or a vault clear rewrote every record.
func (s *BoltStore) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
