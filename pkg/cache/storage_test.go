package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"
)

// testStorage runs the behaviour every Storage backend must share.
func testStorage(t *testing.T, newStorage func(t *testing.T) Storage) {
	t.Run("open creates and lists stores", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		for _, name := range []string{"wallet-pwa-v2", "wallet-pwa-v1"} {
			if _, err := s.Open(ctx, name); err != nil {
				t.Fatalf("Open(%s): %v", name, err)
			}
		}
		// Opening again is not an error
		if _, err := s.Open(ctx, "wallet-pwa-v1"); err != nil {
			t.Fatalf("reopen: %v", err)
		}

		names, err := s.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if fmt.Sprint(names) != "[wallet-pwa-v1 wallet-pwa-v2]" {
			t.Errorf("Keys() = %v", names)
		}

		ok, err := s.Has(ctx, "wallet-pwa-v2")
		if err != nil || !ok {
			t.Errorf("Has(v2) = %v, %v", ok, err)
		}
		ok, err = s.Has(ctx, "wallet-pwa-v9")
		if err != nil || ok {
			t.Errorf("Has(v9) = %v, %v", ok, err)
		}
	})

	t.Run("put match delete", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		store, err := s.Open(ctx, "v6")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if store.Name() != "v6" {
			t.Errorf("Name() = %q", store.Name())
		}

		key := RequestKey{Method: "GET", URL: "http://origin/app.js"}
		if _, err := store.Match(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("Match on empty store = %v, want ErrCacheMiss", err)
		}

		entry := testEntry("B1")
		if err := store.Put(ctx, key, entry); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := store.Match(ctx, key)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if string(got.Data) != "B1" || got.StatusCode != 200 {
			t.Errorf("Match() = %+v", got)
		}
		if got.Headers.Get("Content-Type") != "text/plain" {
			t.Errorf("headers = %v", got.Headers)
		}

		// Overwrite
		if err := store.Put(ctx, key, testEntry("B2")); err != nil {
			t.Fatalf("Put overwrite: %v", err)
		}
		got, _ = store.Match(ctx, key)
		if string(got.Data) != "B2" {
			t.Errorf("after overwrite Data = %q, want B2", got.Data)
		}

		existed, err := store.Delete(ctx, key)
		if err != nil || !existed {
			t.Errorf("Delete() = %v, %v", existed, err)
		}
		existed, err = store.Delete(ctx, key)
		if err != nil || existed {
			t.Errorf("second Delete() = %v, %v", existed, err)
		}
	})

	t.Run("put rejects non-GET keys", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		store, _ := s.Open(ctx, "v6")

		err := store.Put(ctx, RequestKey{Method: "POST", URL: "http://origin/pay"}, testEntry("x"))
		if !errors.Is(err, ErrUnsupportedMethod) {
			t.Errorf("Put(POST) = %v, want ErrUnsupportedMethod", err)
		}
	})

	t.Run("put all and keys", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		store, _ := s.Open(ctx, "v6")

		records := []Record{
			{Key: RequestKey{Method: "GET", URL: "http://origin/"}, Entry: testEntry("root")},
			{Key: RequestKey{Method: "GET", URL: "http://origin/index.html"}, Entry: testEntry("index")},
			{Key: RequestKey{Method: "GET", URL: "http://origin/app.js"}, Entry: testEntry("app")},
		}
		if err := store.PutAll(ctx, records); err != nil {
			t.Fatalf("PutAll: %v", err)
		}

		keys, err := store.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(keys) != 3 {
			t.Errorf("Keys() = %v, want 3 keys", keys)
		}

		// A nil entry rejects the whole batch
		bad := []Record{
			{Key: RequestKey{Method: "GET", URL: "http://origin/styles.css"}, Entry: testEntry("css")},
			{Key: RequestKey{Method: "GET", URL: "http://origin/broken"}, Entry: nil},
		}
		if err := store.PutAll(ctx, bad); err == nil {
			t.Fatal("PutAll with nil entry should fail")
		}
		if _, err := store.Match(ctx, bad[0].Key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("partial PutAll was committed: %v", err)
		}
	})

	t.Run("delete store", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		store, _ := s.Open(ctx, "v5")
		key := RequestKey{Method: "GET", URL: "http://origin/app.js"}
		if err := store.Put(ctx, key, testEntry("old")); err != nil {
			t.Fatalf("Put: %v", err)
		}

		deleted, err := s.Delete(ctx, "v5")
		if err != nil || !deleted {
			t.Fatalf("Delete() = %v, %v", deleted, err)
		}
		deleted, err = s.Delete(ctx, "v5")
		if err != nil || deleted {
			t.Errorf("second Delete() = %v, %v", deleted, err)
		}

		// A stale handle sees the deletion and cannot resurrect the store
		if _, err := store.Match(ctx, key); !errors.Is(err, ErrStoreNotFound) {
			t.Errorf("Match through stale handle = %v, want ErrStoreNotFound", err)
		}
		if err := store.Put(ctx, key, testEntry("late")); !errors.Is(err, ErrStoreNotFound) {
			t.Errorf("Put through stale handle = %v, want ErrStoreNotFound", err)
		}
		if ok, _ := s.Has(ctx, "v5"); ok {
			t.Error("deleted store reappeared")
		}

		// Reopening starts empty
		store, _ = s.Open(ctx, "v5")
		if _, err := store.Match(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("reopened store Match = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("concurrent writes to one key", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		store, _ := s.Open(ctx, "v6")
		key := RequestKey{Method: "GET", URL: "http://origin/images/card-cliente.png"}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := store.Put(ctx, key, testEntry(fmt.Sprintf("B%d", i))); err != nil {
					t.Errorf("Put: %v", err)
				}
			}(i)
		}
		wg.Wait()

		got, err := store.Match(ctx, key)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if len(got.Data) < 2 || got.Data[0] != 'B' {
			t.Errorf("Data = %q, want one of the written bodies", got.Data)
		}
	})
}

func testEntry(body string) *CacheEntry {
	return &CacheEntry{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/plain"}},
		Data:       []byte(body),
		CachedAt:   time.Now(),
	}
}
