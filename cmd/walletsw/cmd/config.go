package cmd

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/Sternrassler/wallet-sw/pkg/cache"
	"github.com/Sternrassler/wallet-sw/pkg/lifecycle"
	"github.com/Sternrassler/wallet-sw/pkg/router"
	"github.com/spf13/viper"
)

const (
	backendBolt  = "bolt"
	backendRedis = "redis"
)

type settings struct {
	Listen string
	Router router.Config
	Store  storeSettings
	Retry  lifecycle.RetryConfig
}

type storeSettings struct {
	Backend     string
	BoltPath    string
	RedisAddr   string
	RedisPrefix string
	Compress    bool
}

func defaultVersionTag() string {
	return router.DefaultVersionTag
}

func setDefaults(v *viper.Viper) {
	retry := lifecycle.DefaultRetryConfig()

	v.SetDefault("listen", ":8080")
	v.SetDefault("version", router.DefaultVersionTag)
	v.SetDefault("precache", router.DefaultPrecache)
	v.SetDefault("precache_concurrency", 4)
	v.SetDefault("fallback", router.DefaultFallbackPath)
	v.SetDefault("fresh_suffix", router.DefaultFreshPathSuffix)
	v.SetDefault("store.backend", backendBolt)
	v.SetDefault("store.bolt_path", filepath.Join(defaultDataDir(), "cache.db"))
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_prefix", cache.DefaultRedisPrefix)
	v.SetDefault("store.compress", true)
	v.SetDefault("install.max_attempts", retry.MaxAttempts)
	v.SetDefault("install.initial_backoff", retry.InitialBackoff)
	v.SetDefault("install.max_backoff", retry.MaxBackoff)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// loadSettings reads the effective configuration from v. The origin is only
// parsed here; router.New rejects a missing one.
func loadSettings(v *viper.Viper) (settings, error) {
	var origin *url.URL
	if raw := v.GetString("origin"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return settings{}, fmt.Errorf("parse origin: %w", err)
		}
		origin = u
	}

	cfg := router.DefaultConfig(origin)
	cfg.VersionTag = v.GetString("version")
	cfg.Precache = v.GetStringSlice("precache")
	cfg.PrecacheConcurrency = v.GetInt("precache_concurrency")
	cfg.FallbackPath = v.GetString("fallback")
	cfg.FreshPathSuffix = v.GetString("fresh_suffix")

	store := storeSettings{
		Backend:     v.GetString("store.backend"),
		BoltPath:    v.GetString("store.bolt_path"),
		RedisAddr:   v.GetString("store.redis_addr"),
		RedisPrefix: v.GetString("store.redis_prefix"),
		Compress:    v.GetBool("store.compress"),
	}
	switch store.Backend {
	case backendBolt, backendRedis:
	default:
		return settings{}, fmt.Errorf("unknown store backend %q (want %s or %s)", store.Backend, backendBolt, backendRedis)
	}

	retry := lifecycle.DefaultRetryConfig()
	retry.MaxAttempts = v.GetInt("install.max_attempts")
	retry.InitialBackoff = v.GetDuration("install.initial_backoff")
	retry.MaxBackoff = v.GetDuration("install.max_backoff")
	if retry.InitialBackoff < 0 || retry.MaxBackoff < 0 {
		return settings{}, fmt.Errorf("install backoff cannot be negative")
	}
	if retry.MaxBackoff == 0 {
		retry.MaxBackoff = 30 * time.Second
	}

	return settings{
		Listen: v.GetString("listen"),
		Router: cfg,
		Store:  store,
		Retry:  retry,
	}, nil
}
