package homebase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestEvalRejectsSynchronouslyWhenCallQueueFullWhileDisconnected guards
// against callCh itself becoming an unbounded blocking point while the
// Link is not Open (dialing or back-off-sleeping): nothing drains callCh
// in that state, since openLoop's select is the only reader and it only
// runs once a connection is Open.
func TestEvalRejectsSynchronouslyWhenCallQueueFullWhileDisconnected(t *testing.T) {
	cache := &fakeCache{changed: true}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	l := New("10.0.0.9", Config{MaxInFlight: 1, MaxQueue: 2}, nil, cache, pub, rec)
	l.ctx = context.Background()

	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, _ = l.Eval(bgCtx, "noop", time.Second)
			done <- struct{}{}
		}()
	}

	// Give the two background calls time to fill callCh's capacity-2 buffer.
	// Nothing in this test ever starts run(), so the fill is durable.
	deadline := time.Now().Add(time.Second)
	for len(l.callCh) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if len(l.callCh) != 2 {
		t.Fatalf("background calls never filled callCh: len=%d", len(l.callCh))
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Eval(context.Background(), "noop", time.Second)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(2 * time.Second):
		t.Fatal("Eval blocked instead of rejecting synchronously when the call queue was full")
	}

	cancel()
	<-done
	<-done
}

func TestSubscribeKeysAppendsExtraKeysToFixedCatalog(t *testing.T) {
	l, _, _, _ := newTestLink()

	assert.Equal(t, catalog, l.subscribeKeys(), "with no override, subscribeKeys must return the fixed catalog unchanged")

	l.SetExtraSubscribeKeys([]string{"ess/extra_one", "ess/extra_two"})

	got := l.subscribeKeys()
	assert.Equal(t, append(append([]string{}, catalog...), "ess/extra_one", "ess/extra_two"), got)

	// subscribeKeys must not mutate the package-level catalog var.
	assert.NotEqual(t, catalog, got)
}
