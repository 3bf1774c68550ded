package cache

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	backendRedis = "redis"

	// DefaultRedisPrefix is the hash tag every key of a RedisStorage shares,
	// so one storage always lives in a single cluster slot.
	DefaultRedisPrefix = "walletsw"
)

// putScript writes field/value pairs into a store hash only while the store
// name is still registered. A write through a handle opened before the store
// was deleted must not bring the store back.
//
// KEYS[1] names set, KEYS[2] store hash
// ARGV[1] store name, ARGV[2..] field, value, field, value...
var putScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
return 1
`)

// matchScript reads one field of a store hash, reporting whether the store
// name is still registered so reads through a stale handle see the deletion.
//
// KEYS[1] names set, KEYS[2] store hash
// ARGV[1] store name, ARGV[2] field
var matchScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return {0}
end
local v = redis.call('HGET', KEYS[2], ARGV[2])
if not v then
  return {1}
end
return {1, v}
`)

// RedisStorage keeps store names in a set and each store in its own hash.
//
// Key layout:
//
//	{prefix}:caches        set of store names
//	{prefix}:cache:<name>  hash of request key -> encoded entry
type RedisStorage struct {
	redis  redis.UniversalClient
	codec  *Codec
	prefix string
}

// NewRedisStorage creates a Redis-backed storage.
func NewRedisStorage(client redis.UniversalClient, prefix string, codec *Codec) *RedisStorage {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if codec == nil {
		panic("codec cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStorage{
		redis:  client,
		codec:  codec,
		prefix: prefix,
	}
}

func (s *RedisStorage) namesKey() string {
	return "{" + s.prefix + "}:caches"
}

func (s *RedisStorage) storeKey(name string) string {
	return "{" + s.prefix + "}:cache:" + name
}

// Open registers the store name and returns a handle to it.
func (s *RedisStorage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, fmt.Errorf("store name cannot be empty")
	}
	if err := s.redis.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "open").Inc()
		return nil, fmt.Errorf("redis sadd: %w", err)
	}
	return &redisStore{storage: s, name: name}, nil
}

// Has reports whether the store name is registered.
func (s *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	found, err := s.redis.SIsMember(ctx, s.namesKey(), name).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return found, nil
}

// Keys lists registered store names in sorted order.
func (s *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "keys").Inc()
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete unregisters the store and drops its hash in one transaction.
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.storeKey(name))
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return false, fmt.Errorf("redis delete store %q: %w", name, err)
	}
	return removed.Val() > 0, nil
}

// Close closes the Redis client.
func (s *RedisStorage) Close() error {
	return s.redis.Close()
}

type redisStore struct {
	storage *RedisStorage
	name    string
}

func (s *redisStore) Name() string { return s.name }

func (s *redisStore) Match(ctx context.Context, key RequestKey) (*CacheEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	keys := []string{s.storage.namesKey(), s.storage.storeKey(s.name)}
	res, err := matchScript.Run(ctx, s.storage.redis, keys, s.name, key.String()).Slice()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "match").Inc()
		return nil, fmt.Errorf("redis match: %w", err)
	}
	if len(res) == 0 {
		CacheErrors.WithLabelValues(backendRedis, "match").Inc()
		return nil, fmt.Errorf("%w: empty redis reply", ErrInvalidEntry)
	}
	if registered, _ := res[0].(int64); registered == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, s.name)
	}
	if len(res) < 2 {
		CacheMisses.WithLabelValues(backendRedis).Inc()
		return nil, ErrCacheMiss
	}
	data, ok := res[1].(string)
	if !ok {
		CacheErrors.WithLabelValues(backendRedis, "match").Inc()
		return nil, fmt.Errorf("%w: unexpected redis reply %T", ErrInvalidEntry, res[1])
	}

	entry, err := s.storage.codec.Decode([]byte(data))
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "match").Inc()
		return nil, err
	}

	CacheHits.WithLabelValues(backendRedis).Inc()
	return entry, nil
}

func (s *redisStore) Put(ctx context.Context, key RequestKey, entry *CacheEntry) error {
	return s.PutAll(ctx, []Record{{Key: key, Entry: entry}})
}

func (s *redisStore) PutAll(ctx context.Context, records []Record) error {
	if err := validateRecords(records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	args := make([]interface{}, 0, 1+2*len(records))
	args = append(args, s.name)
	written := 0
	for _, rec := range records {
		data, err := s.storage.codec.Encode(rec.Entry)
		if err != nil {
			CacheErrors.WithLabelValues(backendRedis, "put").Inc()
			return err
		}
		args = append(args, rec.Key.String(), data)
		written += len(data)
	}

	keys := []string{s.storage.namesKey(), s.storage.storeKey(s.name)}
	ok, err := putScript.Run(ctx, s.storage.redis, keys, args...).Int()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("redis put: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrStoreNotFound, s.name)
	}

	CacheWrittenBytes.WithLabelValues(backendRedis).Add(float64(written))
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key RequestKey) (bool, error) {
	n, err := s.storage.redis.HDel(ctx, s.storage.storeKey(s.name), key.String()).Result()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return false, fmt.Errorf("redis hdel: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) Keys(ctx context.Context) ([]RequestKey, error) {
	fields, err := s.storage.redis.HKeys(ctx, s.storage.storeKey(s.name)).Result()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "keys").Inc()
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	sort.Strings(fields)

	keys := make([]RequestKey, 0, len(fields))
	for _, f := range fields {
		key, err := ParseRequestKey(f)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
