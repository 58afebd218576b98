// Package cache provides a two-tier response cache with TTL semantics used to
// memoize expensive agent responses. A shared primary store is attempted
// first; when it is unavailable the cache transparently falls back to an
// in-process store with the same TTL semantics. All operations are
// best-effort: a cache failure only downgrades a potential hit to a
// recomputation, never aborts the caller.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"draftflow/pkg/logx"
)

// DefaultTTL is the expiry applied when a caller passes a zero TTL.
const DefaultTTL = 1 * time.Hour

// SweepInterval is how often the in-process fallback purges expired entries.
const SweepInterval = 60 * time.Second

// Store is the interface a cache tier implements. Values are opaque
// serialized payloads to the store.
type Store interface {
	// Get returns the value for key, or found=false on a miss or expired entry.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds an unexpired value.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}

// Stats is a running counter block for cache effectiveness monitoring.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Errors  int64 `json:"errors"`
}

// HitRate returns the fraction of lookups that were hits, or 0 when no
// lookups have happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ResponseCache fronts a primary store with an in-process fallback.
type ResponseCache struct {
	primary  Store // may be nil when the shared store was unreachable at construction
	fallback *MemoryStore
	logger   *logx.Logger

	mu    sync.Mutex
	stats Stats

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New creates a response cache over the given primary store. Pass a nil
// primary to run purely in-process; the constructor never fails because cache
// availability must not gate the caller.
func New(primary Store) *ResponseCache {
	return &ResponseCache{
		primary:  primary,
		fallback: NewMemoryStore(),
		logger:   logx.NewLogger("cache"),
	}
}

// Start launches the periodic sweep that purges expired fallback entries.
// Calling Start more than once is a no-op.
func (c *ResponseCache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sweepCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.sweepCancel = cancel
	c.sweepDone = make(chan struct{})

	go func() {
		defer close(c.sweepDone)
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged := c.fallback.Sweep()
				if purged > 0 {
					c.logger.Debug("swept %d expired fallback entries", purged)
				}
			}
		}
	}()
}

// Close stops the sweep and closes both tiers.
func (c *ResponseCache) Close() error {
	c.mu.Lock()
	cancel := c.sweepCancel
	done := c.sweepDone
	c.sweepCancel = nil
	c.sweepDone = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var err error
	if c.primary != nil {
		err = c.primary.Close()
	}
	_ = c.fallback.Close()
	return err
}

// Get returns the cached value for key, or found=false on a miss. Primary
// store failures are counted and downgraded to a fallback lookup.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.primary != nil {
		value, found, err := c.primary.Get(ctx, key)
		if err == nil {
			c.count(found)
			if found {
				return value, true
			}
			// Primary answered authoritatively; no second lookup.
			return nil, false
		}
		c.countError()
		c.logger.Warn("primary cache get failed, using fallback: %v", err)
	}

	value, found, err := c.fallback.Get(ctx, key)
	if err != nil {
		c.countError()
		return nil, false
	}
	c.count(found)
	if !found {
		return nil, false
	}
	return value, true
}

// Set stores value under key in whichever tier is reachable.
func (c *ResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if c.primary != nil {
		if err := c.primary.Set(ctx, key, value, ttl); err == nil {
			c.countSet()
			return
		}
		c.countError()
		c.logger.Warn("primary cache set failed, using fallback")
	}

	if err := c.fallback.Set(ctx, key, value, ttl); err != nil {
		c.countError()
		return
	}
	c.countSet()
}

// Delete removes key from both tiers.
func (c *ResponseCache) Delete(ctx context.Context, key string) {
	deleted := false
	if c.primary != nil {
		if err := c.primary.Delete(ctx, key); err != nil {
			c.countError()
		} else {
			deleted = true
		}
	}
	if err := c.fallback.Delete(ctx, key); err != nil {
		c.countError()
	} else {
		deleted = true
	}
	if deleted {
		c.countDelete()
	}
}

// Exists reports whether key holds an unexpired value in either tier.
func (c *ResponseCache) Exists(ctx context.Context, key string) bool {
	if c.primary != nil {
		found, err := c.primary.Exists(ctx, key)
		if err == nil {
			return found
		}
		c.countError()
	}
	found, err := c.fallback.Exists(ctx, key)
	if err != nil {
		c.countError()
		return false
	}
	return found
}

// MultiGet looks up several keys and returns the values that were present.
func (c *ResponseCache) MultiGet(ctx context.Context, keys []string) map[string][]byte {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, found := c.Get(ctx, key); found {
			result[key] = value
		}
	}
	return result
}

// MultiSet stores several key/value pairs with a shared TTL.
func (c *ResponseCache) MultiSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) {
	for key, value := range entries {
		c.Set(ctx, key, value, ttl)
	}
}

// Flush removes every entry from both tiers.
func (c *ResponseCache) Flush(ctx context.Context) {
	if flusher, ok := c.primary.(interface{ Flush(context.Context) error }); ok && c.primary != nil {
		if err := flusher.Flush(ctx); err != nil {
			c.countError()
		}
	}
	c.fallback.Flush()
}

// GetStats returns a snapshot of the running statistics block.
func (c *ResponseCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *ResponseCache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
}

func (c *ResponseCache) countSet() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Sets++
}

func (c *ResponseCache) countDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Deletes++
}

func (c *ResponseCache) countError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Errors++
}

// Key derives a deterministic cache key from the agent type and the logical
// request input. The input is normalized (case folded, whitespace collapsed)
// so that identical requests deduplicate regardless of wording noise.
func Key(agentType, input string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(input), " "))
	h := sha256.Sum256([]byte(agentType + "\x00" + normalized))
	return hex.EncodeToString(h[:])
}
