package reachability

import (
	"context"
	"testing"
	"time"

	"github.com/sheinberglab/fleet-gateway/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *registry.Registry {
	return registry.New(func(address string) registry.Link { return nil }, nil)
}

func TestRegistrySinkUpdatesLastPingOnlyOnSuccess(t *testing.T) {
	reg := newTestRegistry()
	sink := RegistrySink{Registry: reg}

	now := time.Now()

	require.NoError(t, sink.UpsertReachability(context.Background(), "10.0.0.1", 42, 0.9, true, now))

	devices := reg.Snapshot()
	require.Len(t, devices, 1)
	assert.Equal(t, 42, devices[0].PingAvg)
	assert.Equal(t, 0.9, devices[0].PingSuccess)
	assert.WithinDuration(t, now, devices[0].LastPing, time.Second)

	later := now.Add(time.Minute)
	require.NoError(t, sink.UpsertReachability(context.Background(), "10.0.0.1", 10, 0.5, false, later))

	devices = reg.Snapshot()
	require.Len(t, devices, 1)
	assert.Equal(t, 10, devices[0].PingAvg)
	// last_ping must NOT advance on a failed probe per spec.md §4.B.
	assert.WithinDuration(t, now, devices[0].LastPing, time.Second)
	assert.WithinDuration(t, later, devices[0].LastServerObs, time.Second)
}

type fakeAddressSource struct {
	addresses []string
}

func (f fakeAddressSource) Addresses() []string { return f.addresses }

type recordingSink struct {
	calls []string
}

func (r *recordingSink) UpsertReachability(_ context.Context, address string, _ int, _ float64, _ bool, _ time.Time) error {
	r.calls = append(r.calls, address)
	return nil
}

func TestWindowForIsStablePerAddress(t *testing.T) {
	p := New(fakeAddressSource{}, 10, time.Second, 100*time.Millisecond, nil)

	w1 := p.windowFor("10.0.0.1")
	w1.Add(true, 5*time.Millisecond)

	w2 := p.windowFor("10.0.0.1")
	avg, ratio := w2.Stats()

	assert.Equal(t, 5, avg)
	assert.Equal(t, float64(1), ratio)
}
