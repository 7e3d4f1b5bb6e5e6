package homebase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newSpecBackoff() *Backoff {
	return NewBackoff(
		5*time.Minute, 2000*time.Millisecond, 1000*time.Millisecond,
		15000*time.Millisecond, 120000*time.Millisecond, 2000*time.Millisecond,
	)
}

func TestBackoffFastPhase(t *testing.T) {
	b := newSpecBackoff()

	for k := 0; k <= 4; k++ {
		delay := b.Next(4*time.Minute, k)
		assert.GreaterOrEqual(t, delay, 2000*time.Millisecond)
		assert.LessOrEqual(t, delay, 3000*time.Millisecond)
	}
}

func TestBackoffSlowPhaseFirstAttempt(t *testing.T) {
	b := newSpecBackoff()

	delay := b.Next(6*time.Minute, 0)
	assert.GreaterOrEqual(t, delay, 15000*time.Millisecond)
	assert.LessOrEqual(t, delay, 17000*time.Millisecond)
}

func TestBackoffSlowPhaseCapped(t *testing.T) {
	b := newSpecBackoff()

	delay := b.Next(20*time.Minute, 6)
	assert.GreaterOrEqual(t, delay, 120000*time.Millisecond)
	assert.LessOrEqual(t, delay, 122000*time.Millisecond)
}

func TestBackoffMonotonicBound(t *testing.T) {
	b := newSpecBackoff()

	for k := 0; k < 20; k++ {
		delay := b.Next(time.Hour, k)
		assert.LessOrEqual(t, delay, b.SlowMax+b.SlowJitter)
	}
}
