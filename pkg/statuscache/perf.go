package statuscache

import (
	"sync"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// PerfCache is the perf_stats_changes snapshot, keyed by
// host+type+subject+system+protocol+variant. A notification with
// Trials==0 removes the entry rather than storing it, per spec.md §4.F.
type PerfCache struct {
	mu       sync.RWMutex
	entries  map[models.PerfStatsKey]models.PerfStatsEntry
	snapshot []models.PerfStatsEntry
}

func NewPerfCache() *PerfCache {
	return &PerfCache{entries: make(map[models.PerfStatsKey]models.PerfStatsEntry)}
}

// ApplyExternal writes or removes a perf-stats entry. It returns
// (entry, false) both for a same-value no-op and for a drop-because-empty,
// since neither should be broadcast.
func (c *PerfCache) ApplyExternal(entry models.PerfStatsEntry) (models.PerfStatsEntry, bool) {
	key := entry.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.Trials == 0 {
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			c.rebuildSnapshotLocked()
		}

		return entry, false
	}

	if existing, ok := c.entries[key]; ok && existing.Trials == entry.Trials {
		return existing, false
	}

	c.entries[key] = entry
	c.rebuildSnapshotLocked()

	return entry, true
}

func (c *PerfCache) Snapshot() []models.PerfStatsEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.PerfStatsEntry, len(c.snapshot))
	copy(out, c.snapshot)

	return out
}

func (c *PerfCache) rebuildSnapshotLocked() {
	snapshot := make([]models.PerfStatsEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		snapshot = append(snapshot, entry)
	}

	c.snapshot = snapshot
}
