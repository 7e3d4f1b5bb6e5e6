package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

type fakeStatus struct{ entries []models.StatusEntry }

func (f fakeStatus) Snapshot() []models.StatusEntry { return f.entries }

type fakeComm struct{ entries []models.CommStatusEntry }

func (f fakeComm) Snapshot() []models.CommStatusEntry { return f.entries }

type fakePerf struct{ entries []models.PerfStatsEntry }

func (f fakePerf) Snapshot() []models.PerfStatsEntry { return f.entries }

func drain(t *testing.T, ch <-chan models.BrowserFrame, n int) []models.BrowserFrame {
	t.Helper()

	var out []models.BrowserFrame

	for i := 0; i < n; i++ {
		select {
		case frame := <-ch:
			out = append(out, frame)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for frame %d/%d", i+1, n)
		}
	}

	return out
}

func TestHubSeedsThreeSnapshotFramesOnRegister(t *testing.T) {
	status := fakeStatus{entries: []models.StatusEntry{{Host: "h", Source: "ess", Type: "subject", Value: "sally"}}}
	comm := fakeComm{entries: []models.CommStatusEntry{{Device: "hb1", Address: "10.0.0.1", Connected: true}}}
	perf := fakePerf{}

	h := NewHub(status, comm, perf, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	client := newClient(h, nil, nil)
	h.register <- client

	frames := drain(t, client.send, 3)

	types := map[string]bool{}
	for _, f := range frames {
		types[f.Type] = true
	}

	assert.True(t, types["status"])
	assert.True(t, types["commStatus"])
	assert.True(t, types["perfStats"])
}

func TestHubPublishFansOutToAllClients(t *testing.T) {
	h := NewHub(fakeStatus{}, fakeComm{}, fakePerf{}, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	c1 := newClient(h, nil, nil)
	c2 := newClient(h, nil, nil)
	h.register <- c1
	h.register <- c2

	drain(t, c1.send, 3)
	drain(t, c2.send, 3)

	h.Publish("status_changes", models.StatusEntry{Host: "h", Value: "x"})

	f1 := drain(t, c1.send, 1)
	f2 := drain(t, c2.send, 1)

	assert.Equal(t, "status_changes", f1[0].Type)
	assert.Equal(t, "status_changes", f2[0].Type)
}

func TestHubUnregisterClosesClientSendChannel(t *testing.T) {
	h := NewHub(fakeStatus{}, fakeComm{}, fakePerf{}, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	client := newClient(h, nil, nil)
	h.register <- client
	drain(t, client.send, 3)

	h.unregister <- client

	select {
	case _, ok := <-client.send:
		assert.False(t, ok, "send channel must be closed after unregister")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for send channel to close")
	}

	require.Equal(t, 0, h.ClientCount())
}
