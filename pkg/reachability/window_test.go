package reachability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowStatsEmpty(t *testing.T) {
	w := NewWindow(100)

	avg, ratio := w.Stats()
	assert.Equal(t, 0, avg)
	assert.Equal(t, float64(0), ratio)
}

func TestWindowStatsMixed(t *testing.T) {
	w := NewWindow(4)

	w.Add(true, 10*time.Millisecond)
	w.Add(false, 0)
	w.Add(true, 30*time.Millisecond)
	w.Add(true, 20*time.Millisecond)

	avg, ratio := w.Stats()
	assert.Equal(t, 20, avg) // (10+30+20)/3 = 20
	assert.Equal(t, 0.75, ratio)
}

func TestWindowDropsOldest(t *testing.T) {
	w := NewWindow(3)

	for i := 0; i < 3; i++ {
		w.Add(false, 0)
	}

	// window now full of failures; one new success should not make the
	// ratio 1.0 since only the most recent 3 count and two failures remain.
	w.Add(true, 5*time.Millisecond)

	avg, ratio := w.Stats()
	assert.Equal(t, 5, avg)
	assert.InDelta(t, 1.0/3, ratio, 0.01)
}

func TestWindowReflectsExactlyMostRecentN(t *testing.T) {
	w := NewWindow(100)

	for i := 0; i < 150; i++ {
		w.Add(i%2 == 0, time.Duration(i)*time.Millisecond)
	}

	_, ratio := w.Stats()
	// only the last 100 outcomes (indices 50..149) count; parity pattern
	// still alternates 50/50 regardless of window start, so ratio is 0.5.
	assert.Equal(t, 0.5, ratio)
}
