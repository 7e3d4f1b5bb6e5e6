package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	address   string
	started   int
	extraKeys []string
	mu        *sync.Mutex
}

func (f *fakeLink) Start(context.Context) {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
}

func (f *fakeLink) Snapshot() models.LinkStatus {
	return models.LinkStatus{Address: f.address, State: "open"}
}

func (f *fakeLink) SetExtraSubscribeKeys(keys []string) {
	f.mu.Lock()
	f.extraKeys = keys
	f.mu.Unlock()
}

func TestEnsureConstructsOnce(t *testing.T) {
	var mu sync.Mutex
	built := 0

	factory := func(address string) Link {
		mu.Lock()
		built++
		mu.Unlock()
		return &fakeLink{address: address, mu: &mu}
	}

	reg := New(factory, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Ensure(context.Background(), "10.0.0.1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, built, "Ensure must construct exactly one Link per address under concurrent callers")
}

func TestEnsureRespectsAllowlist(t *testing.T) {
	factory := func(address string) Link { return &fakeLink{address: address, mu: &sync.Mutex{}} }
	reg := New(factory, []string{"10.0.0.1"})

	_, err := reg.Ensure(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	_, err = reg.Ensure(context.Background(), "10.0.0.2")
	assert.ErrorIs(t, err, ErrAddressNotAllowed)
}

func TestAddBypassesAllowlist(t *testing.T) {
	factory := func(address string) Link { return &fakeLink{address: address, mu: &sync.Mutex{}} }
	reg := New(factory, []string{"10.0.0.1"})

	device, err := reg.Add(context.Background(), "10.0.0.9", "new-rig")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", device.Address)

	_, err = reg.Ensure(context.Background(), "10.0.0.9")
	assert.NoError(t, err, "Add must admit the address into the allow-list")
}

func TestSetAllowlistReplacesLiveAllowlist(t *testing.T) {
	factory := func(address string) Link { return &fakeLink{address: address, mu: &sync.Mutex{}} }
	reg := New(factory, []string{"10.0.0.1"})

	_, err := reg.Ensure(context.Background(), "10.0.0.2")
	assert.ErrorIs(t, err, ErrAddressNotAllowed)

	reg.SetAllowlist([]string{"10.0.0.2"})

	_, err = reg.Ensure(context.Background(), "10.0.0.2")
	assert.NoError(t, err, "SetAllowlist must take effect for addresses not in the original allow-list")

	_, err = reg.Ensure(context.Background(), "10.0.0.1")
	assert.ErrorIs(t, err, ErrAddressNotAllowed, "SetAllowlist must replace, not merge with, the original allow-list")

	reg.SetAllowlist(nil)

	_, err = reg.Ensure(context.Background(), "10.0.0.1")
	assert.NoError(t, err, "an empty SetAllowlist call must mean unrestricted, matching New's nil-allowlist convention")
}

func TestSetExtraSubscribeKeysReachesExistingAndFutureLinks(t *testing.T) {
	factory := func(address string) Link { return &fakeLink{address: address, mu: &sync.Mutex{}} }
	reg := New(factory, nil)

	existing, err := reg.Ensure(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	reg.SetExtraSubscribeKeys([]string{"ess/extra"})

	assert.Equal(t, []string{"ess/extra"}, existing.(*fakeLink).extraKeys,
		"SetExtraSubscribeKeys must forward to every already-constructed Link")

	future, err := reg.Ensure(context.Background(), "10.0.0.2")
	require.NoError(t, err)

	assert.Equal(t, []string{"ess/extra"}, future.(*fakeLink).extraKeys,
		"a Link constructed after SetExtraSubscribeKeys must receive the override at construction time")
}
