// Package registry is the canonical list of known device addresses
// (Component A). It owns the set of Homebase Links: Ensure either returns
// an existing Link for an address or constructs and starts a new one.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// ErrAddressNotAllowed is returned by Ensure when an allow-list is
// configured and address is not a member.
var ErrAddressNotAllowed = errors.New("registry: address not in allow-list")

// Link is the subset of pkg/homebase.Link the registry depends on, kept
// as an interface here to avoid an import cycle (pkg/homebase does not
// need to know about the registry).
type Link interface {
	Start(ctx context.Context)
	Snapshot() models.LinkStatus
	SetExtraSubscribeKeys(keys []string)
}

// Factory constructs a new Link for address. It is called at most once per
// address, serialized by a sync.Once per entry so concurrent Ensure calls
// for the same address never race to build two Links.
type Factory func(address string) Link

// Registry is the process-wide Device Registry.
type Registry struct {
	factory Factory

	mu        sync.RWMutex
	allowlist map[string]bool // nil means unrestricted
	extraKeys []string
	devices   map[string]*models.Device
	links     map[string]Link
	once      map[string]*sync.Once
}

func New(factory Factory, allowlist []string) *Registry {
	var allowed map[string]bool
	if len(allowlist) > 0 {
		allowed = make(map[string]bool, len(allowlist))
		for _, a := range allowlist {
			allowed[a] = true
		}
	}

	return &Registry{
		factory:   factory,
		allowlist: allowed,
		devices:   make(map[string]*models.Device),
		links:     make(map[string]Link),
		once:      make(map[string]*sync.Once),
	}
}

// Load seeds the registry from a pre-fetched device list, typically the
// store's initial ListDevices result at startup. It does not start Links;
// callers call Ensure for each address they want live.
func (r *Registry) Load(devices []models.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range devices {
		d := devices[i]
		r.devices[d.Address] = &d
	}
}

// Ensure returns the Link for address, constructing and starting one if
// none exists yet. Returns ErrAddressNotAllowed if an allow-list is active
// and address is not a member.
func (r *Registry) Ensure(ctx context.Context, address string) (Link, error) {
	if r.allowlist != nil && !r.allowlist[address] {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotAllowed, address)
	}

	r.mu.Lock()
	if _, ok := r.devices[address]; !ok {
		r.devices[address] = &models.Device{Address: address}
	}

	once, ok := r.once[address]
	if !ok {
		once = &sync.Once{}
		r.once[address] = once
	}
	r.mu.Unlock()

	once.Do(func() {
		link := r.factory(address)

		r.mu.Lock()
		r.links[address] = link
		link.SetExtraSubscribeKeys(r.extraKeys)
		r.mu.Unlock()

		link.Start(ctx)
	})

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.links[address], nil
}

// Add registers a brand-new device row (the AddDevice browser intent) and
// ensures its Link, bypassing the allow-list the way an admin action
// always would.
func (r *Registry) Add(ctx context.Context, address, displayName string) (models.Device, error) {
	r.mu.Lock()
	device, ok := r.devices[address]
	if !ok {
		device = &models.Device{Address: address, DisplayName: displayName}
		r.devices[address] = device
	} else if displayName != "" {
		device.DisplayName = displayName
	}
	r.mu.Unlock()

	if r.allowlist != nil {
		r.mu.Lock()
		r.allowlist[address] = true
		r.mu.Unlock()
	}

	if _, err := r.Ensure(ctx, address); err != nil {
		return models.Device{}, err
	}

	return *device, nil
}

// SetAllowlist replaces the live allow-list wholesale, for the KV
// hot-reload path (pkg/config.WatchKV). An empty list means unrestricted,
// matching New's treatment of its allowlist argument.
func (r *Registry) SetAllowlist(addresses []string) {
	var allowed map[string]bool
	if len(addresses) > 0 {
		allowed = make(map[string]bool, len(addresses))
		for _, a := range addresses {
			allowed[a] = true
		}
	}

	r.mu.Lock()
	r.allowlist = allowed
	r.mu.Unlock()
}

// SetExtraSubscribeKeys replaces the extra subscribe-catalog keys applied
// to every known Link (and any Link constructed afterward), for the KV
// hot-reload path.
func (r *Registry) SetExtraSubscribeKeys(keys []string) {
	r.mu.Lock()
	r.extraKeys = keys

	links := make([]Link, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()

	for _, l := range links {
		l.SetExtraSubscribeKeys(keys)
	}
}

// Snapshot returns a copy of every known device row, for the AddDevice
// reply and the dashboard's device list.
func (r *Registry) Snapshot() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}

	return out
}

// Addresses returns every known device address, used by the Reachability
// Prober to know what to probe and by the Browser Session Handler's
// Addsubject rule to iterate every device's animalOptions.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.devices))
	for addr := range r.devices {
		out = append(out, addr)
	}

	return out
}

// LinkFor returns the already-constructed Link for address, if any,
// without constructing a new one.
func (r *Registry) LinkFor(address string) (Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.links[address]
	return l, ok
}

// UpdateReachability records the latest probe aggregates for address on
// the in-memory device row, independent of the store write.
func (r *Registry) UpdateReachability(address string, d models.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.devices[address]
	if !ok {
		r.devices[address] = &d
		return
	}

	existing.PingAvg = d.PingAvg
	existing.PingSuccess = d.PingSuccess
	existing.LastServerObs = d.LastServerObs

	if !d.LastPing.IsZero() {
		existing.LastPing = d.LastPing
	}
}
