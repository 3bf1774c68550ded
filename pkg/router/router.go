package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/wallet-sw/pkg/cache"
	"github.com/Sternrassler/wallet-sw/pkg/lifecycle"
	"github.com/Sternrassler/wallet-sw/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
)

// Router is the offline cache router.
type Router struct {
	cfg     Config
	storage cache.Storage
	network http.RoundTripper
	client  *http.Client
	logger  zerolog.Logger

	fallbackKey cache.RequestKey

	// writes tracks write-through puts still in flight
	writes conc.WaitGroup

	mu    sync.Mutex
	store cache.Store
	gone  bool
}

var _ lifecycle.Worker = (*Router)(nil)

// New creates a router serving cfg.VersionTag from storage.
func New(cfg Config, storage cache.Storage, network http.RoundTripper) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid router config: %w", err)
	}
	if storage == nil {
		return nil, fmt.Errorf("cache storage is required")
	}
	if network == nil {
		return nil, fmt.Errorf("network transport is required")
	}

	return &Router{
		cfg:         cfg,
		storage:     storage,
		network:     network,
		client:      &http.Client{Transport: network},
		logger:      logging.NewCacheLogger("router", cfg.VersionTag),
		fallbackKey: cache.KeyForURL(cfg.resolve(cfg.FallbackPath)),
	}, nil
}

// VersionTag returns the name of the store this router serves from.
func (r *Router) VersionTag() string {
	return r.cfg.VersionTag
}

// Install opens the current store and precaches the manifest into it. Nothing
// is written unless every manifest entry was fetched with a 2xx status.
func (r *Router) Install(ctx context.Context, scope lifecycle.Scope) error {
	store, err := r.storage.Open(ctx, r.cfg.VersionTag)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", r.cfg.VersionTag, err)
	}

	records, err := r.precache(ctx)
	if err != nil {
		return err
	}

	if err := store.PutAll(ctx, records); err != nil {
		return fmt.Errorf("commit precache: %w", err)
	}
	r.setStore(store)
	precacheEntries.Set(float64(len(records)))

	r.logger.Info().
		Int("entries", len(records)).
		Msg("Precache committed")

	scope.SkipWaiting()
	return nil
}

// Activate deletes every store but the current one and claims all clients.
// Both run concurrently; Activate returns once both are done.
func (r *Router) Activate(ctx context.Context, scope lifecycle.Scope) error {
	p := pool.New().WithContext(ctx)
	p.Go(r.purge)
	p.Go(scope.Claim)
	if err := p.Wait(); err != nil {
		return fmt.Errorf("activate %s: %w", r.cfg.VersionTag, err)
	}

	r.logger.Info().Msg("Router activated")
	return nil
}

func (r *Router) purge(ctx context.Context) error {
	names, err := r.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	p := pool.New().WithContext(ctx)
	for _, name := range names {
		if name == r.cfg.VersionTag {
			continue
		}
		p.Go(func(ctx context.Context) error {
			deleted, err := r.storage.Delete(ctx, name)
			if err != nil {
				return fmt.Errorf("delete cache %s: %w", name, err)
			}
			if deleted {
				purgedStores.Inc()
				r.logger.Info().Str("deleted", name).Msg("Deleted stale cache")
			}
			return nil
		})
	}
	return p.Wait()
}

// RoundTrip handles one fetch. An empty method means GET.
func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	if m := req.Method; m != "" && m != http.MethodGet {
		resp, err := r.network.RoundTrip(req)
		fetchTotal.WithLabelValues(strategyPassthrough, outcomeOf(err, outcomeNetwork)).Inc()
		return resp, err
	}
	if r.isFresh(req.URL) {
		return r.networkFirst(req)
	}
	return r.cacheFirst(req)
}

// Flush waits for write-through puts started by earlier fetches.
func (r *Router) Flush() {
	r.writes.Wait()
}

func (r *Router) cacheFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(strategyCacheFirst).Observe(time.Since(start).Seconds())
	}()

	key := cache.KeyFor(req)

	// Step 1: Serve from the current store
	if entry := r.match(ctx, key); entry != nil {
		r.logger.Debug().Str("url", key.URL).Bool("cache_hit", true).Msg("Serving from cache")
		fetchTotal.WithLabelValues(strategyCacheFirst, outcomeCache).Inc()
		return cache.EntryToResponse(entry, req), nil
	}

	// Step 2: Go to the network and write the response through
	resp, err := r.network.RoundTrip(req)
	if err == nil {
		var entry *cache.CacheEntry
		entry, err = cache.ResponseToEntry(resp)
		if err == nil {
			r.writeBehind(ctx, key, entry)
			fetchTotal.WithLabelValues(strategyCacheFirst, outcomeNetwork).Inc()
			return resp, nil
		}
	}

	// Step 3: Offline - fall back to the application shell
	if shell := r.match(ctx, r.fallbackKey); shell != nil {
		r.logger.Warn().
			Err(err).
			Str("url", key.URL).
			Str("fallback", r.fallbackKey.URL).
			Msg("Network failed, serving fallback document")
		fetchTotal.WithLabelValues(strategyCacheFirst, outcomeFallback).Inc()
		return cache.EntryToResponse(shell, req), nil
	}

	fetchTotal.WithLabelValues(strategyCacheFirst, outcomeError).Inc()
	return nil, err
}

func (r *Router) networkFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(strategyNetworkFirst).Observe(time.Since(start).Seconds())
	}()

	key := cache.KeyFor(req)

	resp, err := r.network.RoundTrip(req)
	if err == nil {
		var entry *cache.CacheEntry
		entry, err = cache.ResponseToEntry(resp)
		if err == nil {
			// The store has to match what we return before we return it
			r.put(context.WithoutCancel(ctx), key, entry)
			fetchTotal.WithLabelValues(strategyNetworkFirst, outcomeNetwork).Inc()
			return resp, nil
		}
	}

	if entry := r.match(ctx, key); entry != nil {
		r.logger.Warn().
			Err(err).
			Str("url", key.URL).
			Msg("Network failed, serving last cached copy")
		fetchTotal.WithLabelValues(strategyNetworkFirst, outcomeCache).Inc()
		return cache.EntryToResponse(entry, req), nil
	}

	fetchTotal.WithLabelValues(strategyNetworkFirst, outcomeError).Inc()
	return nil, err
}

func (r *Router) isFresh(u *url.URL) bool {
	return r.cfg.FreshPathSuffix != "" && strings.HasSuffix(u.Path, r.cfg.FreshPathSuffix)
}

// match returns the entry for key, or nil on a miss. Store errors count as
// misses.
func (r *Router) match(ctx context.Context, key cache.RequestKey) *cache.CacheEntry {
	store, err := r.currentStore(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrStoreNotFound) {
			r.logger.Warn().Err(err).Str("url", key.URL).Msg("Cache open error")
		}
		return nil
	}

	entry, err := store.Match(ctx, key)
	switch {
	case err == nil:
		return entry
	case errors.Is(err, cache.ErrCacheMiss):
		r.logger.Debug().Str("url", key.URL).Bool("cache_hit", false).Msg("Cache miss")
	case errors.Is(err, cache.ErrStoreNotFound):
		r.markGone(store)
	default:
		r.logger.Warn().Err(err).Str("url", key.URL).Msg("Cache match error")
	}
	return nil
}

// writeBehind stores entry without holding up the response.
func (r *Router) writeBehind(ctx context.Context, key cache.RequestKey, entry *cache.CacheEntry) {
	ctx = context.WithoutCancel(ctx)
	r.writes.Go(func() {
		r.put(ctx, key, entry)
	})
}

// put writes entry into the current store. Failures are logged, not
// returned. Writes into a deleted store are dropped.
func (r *Router) put(ctx context.Context, key cache.RequestKey, entry *cache.CacheEntry) {
	store, err := r.currentStore(ctx)
	if err == nil {
		err = store.Put(ctx, key, entry)
		if errors.Is(err, cache.ErrStoreNotFound) {
			r.markGone(store)
		}
	}
	if errors.Is(err, cache.ErrStoreNotFound) {
		r.logger.Debug().Str("url", key.URL).Msg("Cache deleted, dropping write")
		return
	}
	if err != nil {
		cacheWriteErrors.Inc()
		r.logger.Warn().Err(err).Str("url", key.URL).Msg("Failed to cache response")
		return
	}
	r.logger.Debug().Str("url", key.URL).Int("status_code", entry.StatusCode).Msg("Cached response")
}

// currentStore returns the store handle, opening it on first use. Once the
// store has been deleted it stays gone until the next Install.
func (r *Router) currentStore(ctx context.Context) (cache.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone {
		return nil, fmt.Errorf("%w: %s", cache.ErrStoreNotFound, r.cfg.VersionTag)
	}
	if r.store != nil {
		return r.store, nil
	}
	store, err := r.storage.Open(ctx, r.cfg.VersionTag)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", r.cfg.VersionTag, err)
	}
	r.store = store
	return store, nil
}

func (r *Router) setStore(store cache.Store) {
	r.mu.Lock()
	r.store = store
	r.gone = false
	r.mu.Unlock()
}

// markGone records that the store behind handle was deleted, unless an
// Install has replaced the handle since.
func (r *Router) markGone(handle cache.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != handle || r.gone {
		return
	}
	r.gone = true
	r.logger.Warn().Msg("Cache was deleted, serving from the network until the next install")
}

func outcomeOf(err error, ok string) string {
	if err != nil {
		return outcomeError
	}
	return ok
}
