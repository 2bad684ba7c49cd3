package enrich

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache wraps a Store with TTL freshness checks, request coalescing, and a
// stale-fallback policy: when the upstream fails and an expired entry exists,
// the expired entry is served marked stale instead of failing the caller.
type Cache struct {
	store Store
	group singleflight.Group
	now   func() time.Time
}

func NewCache(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// FetchFunc pulls a value from the upstream source.
type FetchFunc func(ctx context.Context) (any, error)

type cachedValue struct {
	data  json.RawMessage
	stale bool
}

// GetOrFetch returns the cached value for (source, key) when it is younger
// than ttl, otherwise fetches from upstream, stores the result, and returns
// it. Concurrent fetches for the same (source, key) are coalesced into one
// upstream call. On upstream failure an expired cached copy, if any, is
// returned with stale=true; with no cached copy the upstream error is
// returned.
func (c *Cache) GetOrFetch(ctx context.Context, source, key string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, bool, error) {
	entry, err := c.store.Get(ctx, source, key)
	if err != nil {
		log.Printf("Enrichment cache read failed for %s:%s: %v", source, key, err)
		entry = nil
	}
	if entry != nil && ttl > 0 && c.now().Sub(entry.FetchedAt) < ttl {
		return entry.Data, false, nil
	}

	v, fetchErr, _ := c.group.Do(source+":"+key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, source, key, Entry{Data: data, FetchedAt: c.now()}); err != nil {
			log.Printf("Enrichment cache write failed for %s:%s: %v", source, key, err)
		}
		return cachedValue{data: data}, nil
	})
	if fetchErr == nil {
		cv := v.(cachedValue)
		return cv.data, cv.stale, nil
	}

	if entry != nil {
		log.Printf("Serving stale %s value for %s after upstream failure: %v", source, key, fetchErr)
		return entry.Data, true, nil
	}
	return nil, false, fetchErr
}
