// Package cache provides a TTL response cache for Autotask API calls.
//
// Entries are keyed by a fingerprint of the request (method, endpoint,
// payload) so that identical queries within the TTL window are served
// without touching the network. Two backends implement Store: an
// in-process map for the default setup and a SQLite file for setups
// that want the cache to survive restarts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Key fingerprints a request. JSON marshaling sorts map keys, so
// payloads that differ only in key order produce the same fingerprint.
func Key(method, endpoint string, payload any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", method, endpoint)
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			// Unmarshalable payloads still get a stable, distinct key.
			fmt.Fprintf(h, "!%T", payload)
		} else {
			h.Write(body)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store is the persistence backend behind Cache. Implementations must
// treat an entry with expiresAt at or before now as absent.
type Store interface {
	Get(key string, now time.Time) ([]byte, bool, error)
	Set(key string, payload []byte, expiresAt time.Time) error
	Delete(key string) error
	Clear() error
	Sweep(now time.Time) (int, error)
	Len(now time.Time) (int, error)
	Close() error
}

// Stats is the snapshot returned by the status tool.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
	TTL     float64 `json:"ttl"`
}

// Cache wraps a Store with a fixed TTL and hit/miss accounting. A
// failing store is logged and treated as a miss; caching problems must
// never fail the request they were meant to speed up.
type Cache struct {
	store Store
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache over store with the given TTL.
func New(store Store, ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		store: store,
		ttl:   ttl,
		log:   logger,
		now:   time.Now,
	}
}

// Get returns the cached value for key, or (nil, false) on a miss.
// Values round-trip through JSON, so callers get an independent
// snapshot rather than a shared reference.
func (c *Cache) Get(key string) (map[string]any, bool) {
	payload, ok, err := c.store.Get(key, c.now())
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		c.misses.Add(1)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	var value map[string]any
	if err := json.Unmarshal(payload, &value); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache entry corrupt, evicting")
		_ = c.store.Delete(key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return value, true
}

// Set stores value under key for the cache's default TTL.
func (c *Cache) Set(key string, value map[string]any) {
	c.SetTTL(key, value, c.ttl)
}

// SetTTL stores value under key with an explicit TTL, overriding the
// cache default for this entry only.
func (c *Cache) SetTTL(key string, value map[string]any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache value not serializable, skipping")
		return
	}
	if err := c.store.Set(key, payload, c.now().Add(ttl)); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Invalidate removes a single entry; removing an absent key is a no-op.
func (c *Cache) Invalidate(key string) {
	if err := c.store.Delete(key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache invalidate failed")
	}
}

// Clear removes all entries and returns how many were live. Hit/miss
// counters are preserved so the status tool keeps reporting lifetime
// numbers.
func (c *Cache) Clear() (int, error) {
	n, err := c.store.Len(c.now())
	if err != nil {
		n = 0
	}
	if err := c.store.Clear(); err != nil {
		return 0, err
	}
	return n, nil
}

// Sweep evicts expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	n, err := c.store.Sweep(c.now())
	if err != nil {
		c.log.Warn().Err(err).Msg("cache sweep failed")
		return 0
	}
	return n
}

// Stats returns the current cache statistics. The hit rate is a
// percentage rounded to one decimal place, 0 before any lookup.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var rate float64
	if total := hits + misses; total > 0 {
		rate = math.Round(float64(hits)/float64(total)*1000) / 10
	}

	entries, err := c.store.Len(c.now())
	if err != nil {
		c.log.Warn().Err(err).Msg("cache count failed")
	}

	return Stats{
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
		Entries: entries,
		TTL:     c.ttl.Seconds(),
	}
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}
