package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/wallet-sw/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// openStorage opens the configured cache backend. The returned close func
// releases the backend and its codec.
func openStorage(ctx context.Context, s storeSettings) (cache.Storage, func() error, error) {
	codec, err := cache.NewCodec(s.Compress)
	if err != nil {
		return nil, nil, fmt.Errorf("create codec: %w", err)
	}

	var storage cache.Storage
	switch s.Backend {
	case backendRedis:
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			codec.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", s.RedisAddr, err)
		}
		storage = cache.NewRedisStorage(client, s.RedisPrefix, codec)
	default:
		if err := os.MkdirAll(filepath.Dir(s.BoltPath), 0o755); err != nil {
			codec.Close()
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		bolt, err := cache.OpenBolt(s.BoltPath, codec)
		if err != nil {
			codec.Close()
			return nil, nil, err
		}
		storage = bolt
	}

	closeFn := func() error {
		return errors.Join(storage.Close(), codec.Close())
	}
	return storage, closeFn, nil
}
