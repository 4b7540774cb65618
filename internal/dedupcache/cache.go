// Package dedupcache implements the ingest pipeline's fingerprint dedup
// cache: a concurrent mapping from message fingerprint to the monotonic time
// it was last seen, plus a background task that bounds its memory by
// evicting aged-out entries.
package dedupcache

import (
	"sync"
	"time"
)

// Cache is a concurrent fingerprint -> last-seen-time table. It supports
// concurrent inserts and lookups from many ingest callers plus one
// concurrently-running eviction sweep; readers never observe a torn entry
// because every slot is a single atomically-stored time.Time.
type Cache struct {
	entries sync.Map // uint64 -> time.Time
	window  time.Duration
}

// New returns an empty Cache whose dedup window (the age below which a
// prior entry suppresses a new one) is window.
func New(window time.Duration) *Cache {
	return &Cache{window: window}
}

// CheckAndInsert looks up fingerprint at time now. If a prior entry exists
// and its age is within the dedup window, it reports a duplicate and the
// entry is left untouched. Otherwise it inserts or refreshes the entry to
// now and reports no duplicate.
func (c *Cache) CheckAndInsert(fingerprint uint64, now time.Time) (duplicate bool) {
	if v, ok := c.entries.Load(fingerprint); ok {
		last := v.(time.Time)
		if now.Sub(last) < c.window {
			return true
		}
	}
	c.entries.Store(fingerprint, now)
	return false
}

// Len returns the current number of tracked fingerprints. Approximate under
// concurrent mutation, intended for statistics snapshots only.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep removes every entry whose age exceeds retention, as measured against
// now. It is safe to call concurrently with CheckAndInsert: a concurrent
// insert that refreshes an entry's timestamp during the sweep is protected
// by CompareAndDelete, so a freshly-touched entry is never evicted out from
// under its writer. It returns the number of entries removed.
func (c *Cache) Sweep(now time.Time, retention time.Duration) int {
	removed := 0
	c.entries.Range(func(key, value any) bool {
		last := value.(time.Time)
		if now.Sub(last) > retention {
			if c.entries.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	return removed
}
