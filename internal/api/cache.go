package api

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CachedReport is a finished report and the run that produced it.
type CachedReport struct {
	RunID     string
	Report    any
	CreatedAt time.Time
}

type cacheEntry struct {
	report    *CachedReport
	expiresAt time.Time
}

// ReportCache keeps finished reports for ttl so repeated requests do not
// query the warehouse again.
type ReportCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	once    sync.Once
}

func NewReportCache(ttl time.Duration, maxSize int) *ReportCache {
	cache := &ReportCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		maxSize: max(maxSize, 1),
		done:    make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// Key identifies a report kind and the parameters it was built with.
func (c *ReportCache) Key(kind string, params ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *ReportCache) Get(key string) (*CachedReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		return nil, false
	}

	return entry.report, true
}

func (c *ReportCache) Set(key string, report *CachedReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{
		report:    report,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *ReportCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ReportCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired(time.Now())
		}
	}
}

func (c *ReportCache) removeExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *ReportCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background cleanup.
func (c *ReportCache) Close() {
	c.once.Do(func() { close(c.done) })
}
