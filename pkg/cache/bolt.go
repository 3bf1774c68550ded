package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

const backendBolt = "bolt"

// BoltStorage keeps every store as a top-level bucket of one bbolt file.
// It is safe for concurrent use by multiple goroutines.
type BoltStorage struct {
	db    *bolt.DB
	codec *Codec
}

// OpenBolt initializes or opens a BoltStorage at the given path.
func OpenBolt(path string, codec *Codec) (*BoltStorage, error) {
	if codec == nil {
		return nil, fmt.Errorf("codec cannot be nil")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}
	return &BoltStorage{db: db, codec: codec}, nil
}

// Open returns the named store, creating its bucket if absent.
func (s *BoltStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("store name cannot be empty")
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	}); err != nil {
		CacheErrors.WithLabelValues(backendBolt, "open").Inc()
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}
	return &boltStore{db: s.db, codec: s.codec, name: name}, nil
}

// Has reports whether the named bucket exists.
func (s *BoltStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return found, err
}

// Keys lists bucket names; bbolt iterates them in byte order.
func (s *BoltStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendBolt, "keys").Inc()
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return names, nil
}

// Delete drops the named bucket.
func (s *BoltStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte(name))
	})
	if errors.Is(err, berrors.ErrBucketNotFound) {
		return false, nil
	}
	if err != nil {
		CacheErrors.WithLabelValues(backendBolt, "delete").Inc()
		return false, fmt.Errorf("delete bucket %q: %w", name, err)
	}
	return true, nil
}

// Close closes the underlying database.
func (s *BoltStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type boltStore struct {
	db    *bolt.DB
	codec *Codec
	name  string
}

func (s *boltStore) Name() string { return s.name }

func (s *boltStore) Match(ctx context.Context, key RequestKey) (*CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var entry *CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.name))
		if b == nil {
			return ErrStoreNotFound
		}
		v := b.Get([]byte(key.String()))
		if v == nil {
			return ErrCacheMiss
		}
		// Decode copies out of the mmap before the transaction ends
		var err error
		entry, err = s.codec.Decode(v)
		return err
	})
	switch {
	case err == nil:
		CacheHits.WithLabelValues(backendBolt).Inc()
		return entry, nil
	case errors.Is(err, ErrCacheMiss):
		CacheMisses.WithLabelValues(backendBolt).Inc()
		return nil, ErrCacheMiss
	case errors.Is(err, ErrStoreNotFound):
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, s.name)
	default:
		CacheErrors.WithLabelValues(backendBolt, "match").Inc()
		return nil, err
	}
}

func (s *boltStore) Put(ctx context.Context, key RequestKey, entry *CacheEntry) error {
	return s.PutAll(ctx, []Record{{Key: key, Entry: entry}})
}

func (s *boltStore) PutAll(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	encoded := make([][]byte, len(records))
	written := 0
	for i, rec := range records {
		data, err := s.codec.Encode(rec.Entry)
		if err != nil {
			CacheErrors.WithLabelValues(backendBolt, "put").Inc()
			return err
		}
		encoded[i] = data
		written += len(data)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.name))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrStoreNotFound, s.name)
		}
		for i, rec := range records {
			if err := b.Put([]byte(rec.Key.String()), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendBolt, "put").Inc()
		return err
	}

	CacheWrittenBytes.WithLabelValues(backendBolt).Add(float64(written))
	return nil
}

func (s *boltStore) Delete(ctx context.Context, key RequestKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.name))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrStoreNotFound, s.name)
		}
		k := []byte(key.String())
		existed = b.Get(k) != nil
		return b.Delete(k)
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendBolt, "delete").Inc()
		return false, err
	}
	return existed, nil
}

func (s *boltStore) Keys(ctx context.Context) ([]RequestKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []RequestKey
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.name))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrStoreNotFound, s.name)
		}
		return b.ForEach(func(k, _ []byte) error {
			key, err := ParseRequestKey(string(k))
			if err != nil {
				return err
			}
			keys = append(keys, key)
			return nil
		})
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendBolt, "keys").Inc()
		return nil, err
	}
	return keys, nil
}
