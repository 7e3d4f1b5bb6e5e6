// Package reachability is the periodic ICMP probe scheduler (Component B).
// Grounded on the teacher's pkg/scan/icmp_scanner_windows.go shape
// (identifier generation, raw icmp.ListenPacket, sequence tracking), here
// generalized to a portable non-Windows ICMP socket via
// golang.org/x/net/icmp since the gateway runs on Linux.
package reachability

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
	"github.com/sheinberglab/fleet-gateway/pkg/registry"
)

const icmpProtocolICMP = 1

// Sink receives each probe cycle's aggregate for a device. The gateway
// wires this to both the store (authoritative persistence) and the
// registry (in-memory device row refresh).
type Sink interface {
	UpsertReachability(ctx context.Context, address string, pingAvg int, pingSuccess float64, lastPingSuccess bool, serverTime time.Time) error
}

// AddressSource supplies the current set of registered device addresses.
type AddressSource interface {
	Addresses() []string
}

// RegistrySink adapts *registry.Registry to Sink so the Prober can refresh
// the in-memory device row in the same cycle it persists to the store.
type RegistrySink struct {
	Registry *registry.Registry
}

func (r RegistrySink) UpsertReachability(_ context.Context, address string, pingAvg int, pingSuccess float64, lastPingSuccess bool, serverTime time.Time) error {
	device := models.Device{Address: address, PingAvg: pingAvg, PingSuccess: pingSuccess, LastServerObs: serverTime}
	if lastPingSuccess {
		device.LastPing = serverTime
	}

	r.Registry.UpdateReachability(address, device)

	return nil
}

// Prober runs the scheduler described in spec.md §4.B: every interval,
// concurrently probe every registered address with a short timeout,
// maintain a rolling window per device, and upsert aggregates.
type Prober struct {
	interval time.Duration
	timeout  time.Duration
	window   int

	sources []Sink
	devices AddressSource
	log     logger.Logger

	identifier int32
	sequence   atomic.Int32

	mu      sync.Mutex
	windows map[string]*Window
}

func New(devices AddressSource, window int, interval, timeout time.Duration, log logger.Logger, sinks ...Sink) *Prober {
	if window <= 0 {
		window = 100
	}

	return &Prober{
		interval:   interval,
		timeout:    timeout,
		window:     window,
		sources:    sinks,
		devices:    devices,
		log:        log,
		identifier: int32(time.Now().UnixNano() % 65536),
		windows:    make(map[string]*Window),
	}
}

// Run blocks, probing every tick until ctx is canceled. Each cycle's
// failures are logged, never fatal to the scheduler.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

func (p *Prober) runCycle(ctx context.Context) {
	addresses := p.devices.Addresses()

	var wg sync.WaitGroup

	for _, addr := range addresses {
		wg.Add(1)

		go func(address string) {
			defer wg.Done()
			p.probeOne(ctx, address)
		}(addr)
	}

	wg.Wait()
}

func (p *Prober) probeOne(ctx context.Context, address string) {
	success, latency, err := p.ping(address, p.timeout)
	if err != nil && p.log != nil {
		p.log.Debug().Err(err).Str("address", address).Msg("probe failed")
	}

	win := p.windowFor(address)

	p.mu.Lock()
	win.Add(success, latency)
	avg, ratio := win.Stats()
	p.mu.Unlock()

	now := time.Now()

	for _, sink := range p.sources {
		if err := sink.UpsertReachability(ctx, address, avg, ratio, success, now); err != nil && p.log != nil {
			p.log.Warn().Err(err).Str("address", address).Msg("failed to persist reachability aggregate")
		}
	}
}

func (p *Prober) windowFor(address string) *Window {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.windows[address]
	if !ok {
		w = NewWindow(p.window)
		p.windows[address] = w
	}

	return w
}

// ping sends a single ICMP echo request to address and waits up to timeout
// for a matching reply.
func (p *Prober) ping(address string, timeout time.Duration) (success bool, latency time.Duration, err error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return false, 0, fmt.Errorf("reachability: listen: %w", err)
	}
	defer conn.Close()

	dst, err := net.ResolveIPAddr("ip4", address)
	if err != nil {
		return false, 0, fmt.Errorf("reachability: resolve %s: %w", address, err)
	}

	seq := int(p.sequence.Add(1))

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(p.identifier),
			Seq:  seq,
			Data: []byte("fleet-gateway-reachability-probe"),
		},
	}

	wb, err := msg.Marshal(nil)
	if err != nil {
		return false, 0, fmt.Errorf("reachability: marshal: %w", err)
	}

	start := time.Now()

	if _, err := conn.WriteTo(wb, dst); err != nil {
		return false, 0, fmt.Errorf("reachability: write: %w", err)
	}

	if err := conn.SetReadDeadline(start.Add(timeout)); err != nil {
		return false, 0, fmt.Errorf("reachability: set deadline: %w", err)
	}

	reply := make([]byte, 512)

	for {
		n, peer, err := conn.ReadFrom(reply)
		if err != nil {
			return false, 0, nil // timeout or read error: treated as a failed probe, not a scheduler error
		}

		rm, err := icmp.ParseMessage(icmpProtocolICMP, reply[:n])
		if err != nil {
			continue
		}

		if peer.String() != dst.String() {
			continue
		}

		switch body := rm.Body.(type) {
		case *icmp.Echo:
			if body.ID == int(p.identifier) && body.Seq == seq {
				return true, time.Since(start), nil
			}
		default:
			continue
		}
	}
}
