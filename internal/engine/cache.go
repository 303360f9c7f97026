package engine

import (
	"sync"
	"time"
)

const defaultReportCacheTTL = 30 * time.Second

type reportEntry struct {
	report  Report
	updated time.Time
}

// ReportCache caches opportunity reports by opportunity ID until they expire
// or the inventory changes underneath them.
type ReportCache struct {
	mu       sync.RWMutex
	reports  map[string]reportEntry
	ttl      time.Duration
	now      func() time.Time
	epoch    uint64
	hits     int64
	misses   int64
	invalids int64
}

// NewReportCache creates a cache with the provided TTL; zero uses a default.
func NewReportCache(ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = defaultReportCacheTTL
	}
	return &ReportCache{
		reports: make(map[string]reportEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *ReportCache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// Epoch returns a token that changes whenever any entry is invalidated. A
// report computed after reading the epoch may only be stored with PutIfEpoch.
func (c *ReportCache) Epoch() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

func (c *ReportCache) Get(id string) (Report, bool) {
	if c == nil || id == "" {
		return Report{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.reports[id]
	if !ok || c.now().Sub(entry.updated) > c.ttl {
		c.misses++
		return Report{}, false
	}
	c.hits++
	return entry.report.Clone(), true
}

// PutIfEpoch stores r unless an invalidation happened since epoch was read.
func (c *ReportCache) PutIfEpoch(epoch uint64, r Report) bool {
	if c == nil || r.OpportunityID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.reports[r.OpportunityID] = reportEntry{report: r.Clone(), updated: c.now()}
	return true
}

// Invalidate drops the given IDs and returns how many cached entries were
// removed.
func (c *ReportCache) Invalidate(ids ...string) int {
	if c == nil || len(ids) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	n := 0
	for _, id := range ids {
		if _, ok := c.reports[id]; ok {
			delete(c.reports, id)
			n++
		}
	}
	c.invalids += int64(n)
	return n
}

// InvalidateAll drops every entry and returns how many were removed.
func (c *ReportCache) InvalidateAll() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	n := len(c.reports)
	c.invalids += int64(n)
	c.reports = make(map[string]reportEntry)
	return n
}

func (c *ReportCache) Stats() (hits, misses, invalids int64) {
	if c == nil {
		return 0, 0, 0
	}
	c.mu.RLock()
	hits, misses, invalids = c.hits, c.misses, c.invalids
	c.mu.RUnlock()
	return
}

// HitRatio returns hits/(hits+misses), or 0 before any lookup.
func (c *ReportCache) HitRatio() float64 {
	hits, misses, _ := c.Stats()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
