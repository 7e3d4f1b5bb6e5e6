package homebase

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays per the two-phase policy: fast retry for
// the first FastWindow after the first disconnect, slow exponential
// back-off thereafter. Both phases add uniform jitter.
type Backoff struct {
	FastWindow time.Duration
	FastBase   time.Duration
	FastJitter time.Duration

	SlowBase   time.Duration
	SlowMax    time.Duration
	SlowJitter time.Duration

	rnd *rand.Rand
}

func NewBackoff(fastWindow, fastBase, fastJitter, slowBase, slowMax, slowJitter time.Duration) *Backoff {
	return &Backoff{
		FastWindow: fastWindow,
		FastBase:   fastBase,
		FastJitter: fastJitter,
		SlowBase:   slowBase,
		SlowMax:    slowMax,
		SlowJitter: slowJitter,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next reconnect attempt. sinceFirst is
// the wall-clock time elapsed since the first disconnect in the current
// outage; slowFailures is the number of failed attempts since entering the
// slow phase (0 for the first slow-phase attempt).
func (b *Backoff) Next(sinceFirst time.Duration, slowFailures int) time.Duration {
	if sinceFirst < b.FastWindow {
		return b.FastBase + b.jitter(b.FastJitter)
	}

	delay := b.SlowBase

	for i := 0; i < slowFailures; i++ {
		delay *= 2

		if delay <= 0 || delay > b.SlowMax {
			delay = b.SlowMax
			break
		}
	}

	if delay > b.SlowMax {
		delay = b.SlowMax
	}

	return delay + b.jitter(b.SlowJitter)
}

func (b *Backoff) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	return time.Duration(b.rnd.Int63n(int64(max) + 1))
}
