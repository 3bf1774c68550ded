// Package cache provides the versioned response stores used by the offline
// cache router.
//
// A Storage holds any number of named stores. Each Store maps a request
// identity (method + URL, GET only) to a snapshot of the response that was
// served for it: status, headers and body. Exactly one store is current at a
// time; its name is the deployment's version tag.
//
// Two backends are provided:
//
//   - BoltStorage keeps every store as a bucket in a single bbolt file.
//   - RedisStorage keeps a set of store names and one hash per store.
//
// # Basic Usage
//
//	storage, err := cache.OpenBolt("/var/lib/walletsw/cache.db", cache.DefaultCodec())
//	if err != nil {
//		return err
//	}
//	defer storage.Close()
//
//	store, err := storage.Open(ctx, "wallet-pwa-v6")
//	if err != nil {
//		return err
//	}
//
//	entry, err := store.Match(ctx, cache.KeyFor(req))
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - go to the network
//	}
//
// # Response Snapshots
//
//	// Snapshot the response; resp.Body stays readable for the caller
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//
//	if err := store.Put(ctx, cache.KeyFor(req), entry); err != nil {
//		return err
//	}
//
// # Concurrency
//
// Stores apply no ordering between writers. Concurrent writes to distinct keys
// never conflict; concurrent writes to the same key are last-write-wins.
//
// # Metrics
//
//   - walletsw_cache_hits_total{backend} - Cache hits
//   - walletsw_cache_misses_total{backend} - Cache misses
//   - walletsw_cache_written_bytes_total{backend} - Encoded bytes written
//   - walletsw_cache_errors_total{backend,operation} - Store operation errors
package cache
