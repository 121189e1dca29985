package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cached memoizes provider results per (source, target, text).
// Calls without a source language are not cached since the detected
// language may differ between otherwise identical requests.
type Cached struct {
	next  Translator
	cache *ristretto.Cache[string, Result]
	ttl   time.Duration
}

// NewCached wraps next with a cache whose entries expire after ttl.
func NewCached(next Translator, ttl time.Duration) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, Result]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create translation cache: %w", err)
	}
	return &Cached{next: next, cache: cache, ttl: ttl}, nil
}

// Translate returns a cached result or calls the wrapped translator.
func (c *Cached) Translate(ctx context.Context, text, targetLang, sourceLang string) (Result, error) {
	if sourceLang == "" {
		return c.next.Translate(ctx, text, targetLang, sourceLang)
	}

	key := sourceLang + ":" + targetLang + ":" + text
	if result, ok := c.cache.Get(key); ok {
		return result, nil
	}

	result, err := c.next.Translate(ctx, text, targetLang, sourceLang)
	if err != nil {
		return result, err
	}
	c.cache.SetWithTTL(key, result, 1, c.ttl)
	return result, nil
}

// Close releases the cache goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}
