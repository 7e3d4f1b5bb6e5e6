package homebase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

type fakeCache struct {
	entry   models.StatusEntry
	changed bool
}

func (f *fakeCache) Apply(host, source, typ, value string) (models.StatusEntry, bool) {
	f.entry = models.StatusEntry{Host: host, Source: source, Type: typ, Value: value}
	return f.entry, f.changed
}

type fakePublisher struct {
	events []string
	data   []interface{}
}

func (f *fakePublisher) Publish(eventType string, data interface{}) {
	f.events = append(f.events, eventType)
	f.data = append(f.data, data)
}

type fakeRecorder struct {
	calls int
}

func (f *fakeRecorder) RecordStatusChange(ctx context.Context, entry models.StatusEntry) error {
	f.calls++
	return nil
}

func newTestLink() (*Link, *fakeCache, *fakePublisher, *fakeRecorder) {
	cache := &fakeCache{changed: true}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	l := New("10.0.0.5", Config{MaxInFlight: 8, MaxQueue: 200}, nil, cache, pub, rec)
	l.ctx = context.Background()

	return l, cache, pub, rec
}

func TestHandleResponseResolvesOnOk(t *testing.T) {
	l, _, _, _ := newTestLink()

	resultCh := make(chan evalResult, 1)
	_, err := l.requests.enqueue("script", 0, resultCh)
	require.NoError(t, err)
	id := l.requests.admit(0, resultCh, func(string) {})

	l.handleResponse(models.InboundFrame{RequestID: id, Status: "ok", Result: "42"})

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.Equal(t, "42", res.value)
	default:
		t.Fatal("expected response to resolve the pending request")
	}
}

func TestHandleResponsePublishesTCLErrorOnFailure(t *testing.T) {
	l, _, pub, _ := newTestLink()

	resultCh := make(chan evalResult, 1)
	_, err := l.requests.enqueue("script", 0, resultCh)
	require.NoError(t, err)
	id := l.requests.admit(0, resultCh, func(string) {})

	l.handleResponse(models.InboundFrame{RequestID: id, Status: "error", Error: "bad script"})

	select {
	case res := <-resultCh:
		assert.Error(t, res.err)
	default:
		t.Fatal("expected response to reject the pending request")
	}

	require.Len(t, pub.events, 1)
	assert.Equal(t, "TCL_ERROR", pub.events[0])
	assert.Equal(t, "bad script", pub.data[0])
}

func TestHandleDatapointAppliesTranslatesAndPublishes(t *testing.T) {
	l, _, pub, rec := newTestLink()

	l.handleDatapoint(models.InboundFrame{Type: "datapoint", Name: "ess/state", Data: "running"})

	require.Equal(t, 1, rec.calls)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "status_changes", pub.events[0])
}

func TestHandleControlAckSuppressesDatapointNotFound(t *testing.T) {
	l, _, pub, _ := newTestLink()

	l.handleControlAck(models.InboundFrame{Action: "touch", Error: "Datapoint not found"})

	assert.Empty(t, pub.events, "suppressed ack must not publish anything")
}

func TestHandleFrameReassemblesChunksBeforeDispatch(t *testing.T) {
	l, _, pub, _ := newTestLink()

	l.handleFrame([]byte(`{"isChunkedMessage":true,"messageId":"m","chunkIndex":0,"totalChunks":2,"data":"{\"type\":\"data"}`))
	assert.Empty(t, pub.events)

	l.handleFrame([]byte(`{"isChunkedMessage":true,"messageId":"m","chunkIndex":1,"totalChunks":2,"data":"point\",\"name\":\"ess/state\",\"data\":\"idle\"}"}`))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "status_changes", pub.events[0])
}
