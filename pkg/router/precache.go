package router

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Sternrassler/wallet-sw/pkg/cache"
	"github.com/sourcegraph/conc/pool"
)

// precache fetches every manifest entry in parallel. The first failure
// cancels the remaining fetches and is returned; no records are returned
// unless all entries succeeded.
func (r *Router) precache(ctx context.Context) ([]cache.Record, error) {
	p := pool.NewWithResults[cache.Record]()
	if r.cfg.PrecacheConcurrency > 0 {
		p = p.WithMaxGoroutines(r.cfg.PrecacheConcurrency)
	}
	cp := p.WithContext(ctx).WithCancelOnError().WithFirstError()

	for _, path := range r.cfg.Precache {
		u := r.cfg.resolve(path)
		cp.Go(func(ctx context.Context) (cache.Record, error) {
			return r.fetchForPrecache(ctx, u)
		})
	}

	records, err := cp.Wait()
	if err != nil {
		r.logger.Error().Err(err).Msg("Precache failed")
		return nil, err
	}
	return records, nil
}

func (r *Router) fetchForPrecache(ctx context.Context, u *url.URL) (cache.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cache.Record{}, &PrecacheError{URL: u.String(), Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return cache.Record{}, &PrecacheError{URL: u.String(), Err: err}
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return cache.Record{}, &PrecacheError{URL: u.String(), Err: err}
	}
	if !entry.OK() {
		return cache.Record{}, &PrecacheError{URL: u.String(), StatusCode: entry.StatusCode}
	}

	r.logger.Debug().Str("url", u.String()).Int("bytes", len(entry.Data)).Msg("Precached")
	return cache.Record{Key: cache.KeyFor(req), Entry: entry}, nil
}
