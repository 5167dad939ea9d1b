package storage

import (
	"context"
	"errors"
	"fmt"
)

// Namespace names a logical keyspace inside a Store.
type Namespace string

const (
	NamespaceVault    Namespace = "vault"
	NamespaceMetadata Namespace = "metadata"
)

// Namespaces lists every namespace a backend must provision.
var Namespaces = []Namespace{NamespaceVault, NamespaceMetadata}

var (
	ErrNotFound         = errors.New("key not found")
	ErrUnknownNamespace = errors.New("unknown namespace")
)

// Entry is one key/value pair returned by GetAll.
type Entry struct {
	Key   string
	Value []byte
}

// Mutation is a single put or delete applied by Batch.
type Mutation struct {
	Namespace Namespace
	Key       string
	Value     []byte
	Delete    bool
}

// Put builds a put mutation.
func Put(ns Namespace, key string, value []byte) Mutation {
	return Mutation{Namespace: ns, Key: key, Value: value}
}

// Del builds a delete mutation.
func Del(ns Namespace, key string) Mutation {
	return Mutation{Namespace: ns, Key: key, Delete: true}
}

// Store is a dumb durable map per namespace.
type Store interface {
	Get(ctx context.Context, ns Namespace, key string) ([]byte, error)
	GetAll(ctx context.Context, ns Namespace) ([]Entry, error)
	Put(ctx context.Context, ns Namespace, key string, value []byte) error
	Delete(ctx context.Context, ns Namespace, key string) error
	Clear(ctx context.Context, ns Namespace) error
	Batch(ctx context.Context, mutations []Mutation) error
	Close() error
}

// Compacter is implemented by backends that can reclaim disk space.
type Compacter interface {
	Compact() error
}

// Backend names accepted by Open.
const (
	BackendBolt   = "bolt"
	BackendBadger = "badger"
)

// Open opens the store for the given backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendBolt:
		return OpenBolt(path)
	case BackendBadger:
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func checkNamespace(ns Namespace) error {
	for _, known := range Namespaces {
		if ns == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
}
