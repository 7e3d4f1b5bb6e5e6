// Package statuscache is the process-wide, deduplicating last-known-value
// store keyed by (host, source, type). It is the sole owner of the
// snapshot array served to newly connected browsers; callers (the homebase
// dispatcher and the notification listener) feed it updates rather than
// mutating the snapshot themselves, per the "cyclic relation" design note.
package statuscache

import (
	"sync"
	"time"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// Clock is overridden in tests to make SysTime deterministic.
type Clock func() time.Time

// Cache is a (host, source, type) -> value map with change-detection and a
// synchronized snapshot slice.
type Cache struct {
	mu       sync.RWMutex
	entries  map[models.StatusKey]models.StatusEntry
	snapshot []models.StatusEntry
	clock    Clock
}

func New() *Cache {
	return &Cache{
		entries: make(map[models.StatusKey]models.StatusEntry),
		clock:   time.Now,
	}
}

// NewWithClock is for tests that need a deterministic SysTime.
func NewWithClock(clock Clock) *Cache {
	c := New()
	c.clock = clock
	return c
}

// Apply translates a datapoint update into a cache write. It returns the
// resulting StatusEntry and true if the value actually changed (and so
// should be broadcast); unchanged values return (entry, false) with the
// cached entry unchanged.
func (c *Cache) Apply(host, source, typ, value string) (models.StatusEntry, bool) {
	key := models.StatusKey{Host: host, Source: source, Type: typ}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && existing.Value == value {
		return existing, false
	}

	entry := models.StatusEntry{
		Host:    host,
		Source:  source,
		Type:    typ,
		Value:   value,
		SysTime: c.clock(),
	}

	c.entries[key] = entry
	c.rebuildSnapshotLocked()

	return entry, true
}

// ApplyExternal is the entry point used by the Notification Listener: it
// writes an entry that already carries its own timestamp, dropping the
// same-value no-op the same way Apply does.
func (c *Cache) ApplyExternal(entry models.StatusEntry) (models.StatusEntry, bool) {
	key := entry.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && existing.Value == entry.Value {
		return existing, false
	}

	if entry.SysTime.IsZero() {
		entry.SysTime = c.clock()
	}

	c.entries[key] = entry
	c.rebuildSnapshotLocked()

	return entry, true
}

// Get returns the cached entry for key, if any.
func (c *Cache) Get(key models.StatusKey) (models.StatusEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	return entry, ok
}

// Snapshot returns the current full set of cached entries. The returned
// slice is a copy safe for the caller to retain.
func (c *Cache) Snapshot() []models.StatusEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.StatusEntry, len(c.snapshot))
	copy(out, c.snapshot)

	return out
}

func (c *Cache) rebuildSnapshotLocked() {
	snapshot := make([]models.StatusEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		snapshot = append(snapshot, entry)
	}

	c.snapshot = snapshot
}
