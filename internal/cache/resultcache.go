// Package cache implements the ResultCache (C6): a content-addressed,
// LRU+TTL cache of captured execution output wrapped around an Executor.
// Concurrent misses on the same source are de-duplicated with
// golang.org/x/sync/singleflight so identical-source submissions that
// race each other trigger exactly one subprocess run, resolving the
// "simultaneous miss" gap noted in SPEC_FULL §4.6.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/luis198755/execgateway/internal/executor"
	"github.com/luis198755/execgateway/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// cacheEntry mirrors spec.md §4: resultBytes, lastAccess and accessCount,
// keyed externally by the hex sha256 of the source it was produced from.
type cacheEntry struct {
	resultBytes []byte
	lastAccess  time.Time
	accessCount int64
}

// ResultCache wraps an *executor.Executor with the C6 caching contract.
// MaxCacheSize == 0 disables caching entirely: every call runs the
// executor directly, per spec.md §4.6's escape hatch for side-effecting
// or nondeterministic programs.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry

	maxSize int
	ttl     time.Duration

	executor *executor.Executor
	sf       singleflight.Group

	fanMu    sync.Mutex
	inflight map[string]*fanout

	stop chan struct{}
}

// New builds a ResultCache of at most maxSize entries, each considered
// stale after ttl has elapsed since its last access.
func New(exec *executor.Executor, maxSize int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries:  make(map[string]*cacheEntry),
		maxSize:  maxSize,
		ttl:      ttl,
		executor: exec,
		inflight: make(map[string]*fanout),
		stop:     make(chan struct{}),
	}
}

// cacheKey implements spec.md's key <- hex(sha256(source)).
func cacheKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Execute implements the gateway's execute(ctx, source, writer) contract
// on top of the cache: a fresh hit writes the cached bytes with no
// subprocess involved (spec.md §8 property 3); a miss runs the wrapped
// Executor, de-duplicated across concurrent identical-source callers, and
// commits the result for subsequent hits.
func (c *ResultCache) Execute(ctx context.Context, source string, w io.Writer) error {
	if c.maxSize <= 0 {
		return c.executor.Execute(ctx, source, w)
	}

	key := cacheKey(source)

	if entry, ok := c.lookupFresh(key); ok {
		go c.touch(key)
		metrics.CacheHitsTotal.Inc()
		_, err := w.Write(entry.resultBytes)
		return err
	}
	metrics.CacheMissesTotal.Inc()

	fo := c.joinFanout(key, w)

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		defer c.leaveFanout(key)

		// Re-check: another goroutine may have committed this key to the
		// cache between this call's initial miss and singleflight
		// actually running its function.
		if entry, ok := c.lookupFresh(key); ok {
			_, werr := fo.Write(entry.resultBytes)
			return entry.resultBytes, werr
		}

		runErr := c.executor.Execute(ctx, source, fo)
		captured := fo.Bytes()
		if runErr != nil {
			return captured, runErr
		}
		c.commit(key, captured)
		return captured, nil
	})

	if err != nil {
		return err
	}
	_ = result
	return nil
}

// lookupFresh returns the entry for key if present and not expired, per
// spec.md's now - entry.lastAccess <= TTL check.
func (c *ResultCache) lookupFresh(key string) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.lastAccess) > c.ttl {
		return nil, false
	}
	return entry, true
}

// touch updates lastAccess/accessCount off the read path, per spec.md's
// "cache-stats updates after a hit are offloaded ... to avoid blocking
// the read path".
func (c *ResultCache) touch(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.lastAccess = time.Now()
		entry.accessCount++
	}
}

// commit inserts captured under key, evicting the least-recently-accessed
// entry first if the cache is already at maxSize.
func (c *ResultCache) commit(key string, captured []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	c.entries[key] = &cacheEntry{
		resultBytes: captured,
		lastAccess:  time.Now(),
		accessCount: 1,
	}
	metrics.CacheSize.Set(float64(len(c.entries)))
}

// evictLRU removes the entry with the smallest lastAccess. Caller holds
// c.mu for writing.
func (c *ResultCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastAccess.Before(oldest) {
			oldestKey, oldest = k, e.lastAccess
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// joinFanout registers w to receive everything written for key, replaying
// whatever has already been captured so a late joiner still sees the full
// output.
func (c *ResultCache) joinFanout(key string, w io.Writer) *fanout {
	c.fanMu.Lock()
	defer c.fanMu.Unlock()
	fo, ok := c.inflight[key]
	if !ok {
		fo = &fanout{}
		c.inflight[key] = fo
	}
	fo.join(w)
	return fo
}

func (c *ResultCache) leaveFanout(key string) {
	c.fanMu.Lock()
	defer c.fanMu.Unlock()
	delete(c.inflight, key)
}

// StartCleaner runs a background goroutine that evicts entries older than
// TTL every TTL/2, per spec.md §4.6.
func (c *ResultCache) StartCleaner() {
	if c.ttl <= 0 {
		return
	}
	interval := c.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweepExpired()
			case <-c.stop:
				return
			}
		}
	}()
}

func (c *ResultCache) Stop() {
	close(c.stop)
}

func (c *ResultCache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.Sub(e.lastAccess) > c.ttl {
			delete(c.entries, k)
		}
	}
	metrics.CacheSize.Set(float64(len(c.entries)))
}

// fanout is a writer that replays its buffered history to any late joiner
// and then forwards subsequent writes to every joined writer, letting a
// single in-flight execution stream live to every caller that deduped
// onto it via singleflight.
type fanout struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	writers []io.Writer
}

func (f *fanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf.Write(p)
	for _, w := range f.writers {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

func (f *fanout) join(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buf.Len() > 0 {
		_, _ = w.Write(f.buf.Bytes())
	}
	f.writers = append(f.writers, w)
}

func (f *fanout) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, f.buf.Len())
	copy(out, f.buf.Bytes())
	return out
}
