package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrStoreNotFound indicates the store was deleted after it was opened
	ErrStoreNotFound = errors.New("cache store not found")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrInvalidKey indicates a malformed request key
	ErrInvalidKey = errors.New("invalid request key")

	// ErrUnsupportedMethod is returned for keys whose method is not GET
	ErrUnsupportedMethod = errors.New("only GET requests can be cached")
)

// Record pairs a key with the entry to store under it.
type Record struct {
	Key   RequestKey
	Entry *CacheEntry
}

// Storage is a collection of named stores.
type Storage interface {
	// Open returns the store with the given name, creating it if absent.
	Open(ctx context.Context, name string) (Store, error)

	// Has reports whether a store with the given name exists.
	Has(ctx context.Context, name string) (bool, error)

	// Keys lists store names in sorted order.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes a store and all its entries. It reports false if no
	// store had that name.
	Delete(ctx context.Context, name string) (bool, error)

	Close() error
}

// Store is one named request/response store.
type Store interface {
	Name() string

	// Match returns the entry stored for key, or ErrCacheMiss. It returns
	// ErrStoreNotFound once the store has been deleted.
	Match(ctx context.Context, key RequestKey) (*CacheEntry, error)

	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key RequestKey, entry *CacheEntry) error

	// PutAll stores every record or none of them.
	PutAll(ctx context.Context, records []Record) error

	// Delete removes the entry for key and reports whether one existed.
	Delete(ctx context.Context, key RequestKey) (bool, error)

	// Keys lists the keys in the store.
	Keys(ctx context.Context) ([]RequestKey, error)
}

func validateRecords(records []Record) error {
	for _, rec := range records {
		if err := rec.Key.Validate(); err != nil {
			return err
		}
		if rec.Entry == nil {
			return errors.New("cache entry cannot be nil")
		}
	}
	return nil
}
