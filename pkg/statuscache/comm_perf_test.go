package statuscache

import (
	"testing"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommCacheDedupesOnConnected(t *testing.T) {
	c := NewCommCache()

	_, changed := c.ApplyExternal(models.CommStatusEntry{Device: "hb1", Address: "10.0.0.1", Connected: true})
	require.True(t, changed)

	_, changed = c.ApplyExternal(models.CommStatusEntry{Device: "hb1", Address: "10.0.0.1", Connected: true})
	assert.False(t, changed, "unchanged Connected must not re-broadcast")

	_, changed = c.ApplyExternal(models.CommStatusEntry{Device: "hb1", Address: "10.0.0.1", Connected: false})
	assert.True(t, changed)

	assert.Len(t, c.Snapshot(), 1)
}

func TestPerfCacheDropsZeroTrials(t *testing.T) {
	c := NewPerfCache()

	_, changed := c.ApplyExternal(models.PerfStatsEntry{
		Host: "10.0.0.1", Type: "perf", Subject: "sally", System: "mri", Protocol: "rt", Variant: "a", Trials: 5,
	})
	require.True(t, changed)
	require.Len(t, c.Snapshot(), 1)

	_, changed = c.ApplyExternal(models.PerfStatsEntry{
		Host: "10.0.0.1", Type: "perf", Subject: "sally", System: "mri", Protocol: "rt", Variant: "a", Trials: 0,
	})
	assert.False(t, changed, "a drop must not be broadcast as a change")
	assert.Empty(t, c.Snapshot(), "trials==0 must remove the entry")
}

func TestPerfCacheDedupesOnTrials(t *testing.T) {
	c := NewPerfCache()

	entry := models.PerfStatsEntry{Host: "h", Type: "t", Subject: "s", System: "sys", Protocol: "p", Variant: "v", Trials: 3}

	_, changed := c.ApplyExternal(entry)
	require.True(t, changed)

	_, changed = c.ApplyExternal(entry)
	assert.False(t, changed)
}
