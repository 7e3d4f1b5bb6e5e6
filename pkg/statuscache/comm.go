package statuscache

import (
	"sync"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// CommCache is the comm_status_changes snapshot: keyed by device+address
// rather than host+type, otherwise the same dedupe-and-snapshot discipline
// as Cache.
type CommCache struct {
	mu       sync.RWMutex
	entries  map[models.CommStatusKey]models.CommStatusEntry
	snapshot []models.CommStatusEntry
}

func NewCommCache() *CommCache {
	return &CommCache{entries: make(map[models.CommStatusKey]models.CommStatusEntry)}
}

// ApplyExternal writes a comm-status entry, dropping the update if
// Connected is unchanged from the cached value.
func (c *CommCache) ApplyExternal(entry models.CommStatusEntry) (models.CommStatusEntry, bool) {
	key := entry.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && existing.Connected == entry.Connected {
		return existing, false
	}

	c.entries[key] = entry
	c.rebuildSnapshotLocked()

	return entry, true
}

func (c *CommCache) Snapshot() []models.CommStatusEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.CommStatusEntry, len(c.snapshot))
	copy(out, c.snapshot)

	return out
}

func (c *CommCache) rebuildSnapshotLocked() {
	snapshot := make([]models.CommStatusEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		snapshot = append(snapshot, entry)
	}

	c.snapshot = snapshot
}
