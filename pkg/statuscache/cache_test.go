package statuscache

import (
	"testing"
	"time"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDedupe(t *testing.T) {
	c := New()

	entry, changed := c.Apply("10.0.0.1", "ess", "subject", "sally")
	require.True(t, changed)
	assert.Equal(t, "sally", entry.Value)

	_, changed = c.Apply("10.0.0.1", "ess", "subject", "sally")
	assert.False(t, changed, "identical value must not be reported as a change")

	entry, changed = c.Apply("10.0.0.1", "ess", "subject", "momo")
	require.True(t, changed)
	assert.Equal(t, "momo", entry.Value)
}

func TestSnapshotConsistency(t *testing.T) {
	c := New()

	c.Apply("10.0.0.1", "ess", "subject", "sally")
	c.Apply("10.0.0.1", "ess", "running", "1")
	c.Apply("10.0.0.2", "system", "hostname", "hb2")
	c.Apply("10.0.0.1", "ess", "subject", "momo") // overwrite, not a new key

	snap := c.Snapshot()
	require.Len(t, snap, 3)

	seen := map[string]string{}
	for _, e := range snap {
		seen[e.Host+"/"+e.Source+"/"+e.Type] = e.Value
	}

	assert.Equal(t, "momo", seen["10.0.0.1/ess/subject"])
	assert.Equal(t, "1", seen["10.0.0.1/ess/running"])
	assert.Equal(t, "hb2", seen["10.0.0.2/system/hostname"])
}

func TestApplyExternalPreservesGivenTimestamp(t *testing.T) {
	c := New()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entry, changed := c.ApplyExternal(models.StatusEntry{
		Host:    "10.0.0.9",
		Source:  "ess",
		Type:    "state",
		Value:   "running",
		SysTime: ts,
	})

	require.True(t, changed)
	assert.Equal(t, ts, entry.SysTime)

	_, changed = c.ApplyExternal(models.StatusEntry{
		Host:   "10.0.0.9",
		Source: "ess",
		Type:   "state",
		Value:  "running",
	})
	assert.False(t, changed, "replaying an equal value must not re-broadcast")
}
