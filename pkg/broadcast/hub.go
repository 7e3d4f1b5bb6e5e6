// Package broadcast implements the Broadcaster (Component G): the set of
// open browser sockets, seeded with three snapshot frames on connect and
// fanned out to on every event the Status Cache or Notification Listener
// emits.
package broadcast

import (
	"context"
	"sort"
	"sync"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// StatusSnapshotter is the subset of pkg/statuscache.Cache the hub needs to
// seed a newly connected browser.
type StatusSnapshotter interface {
	Snapshot() []models.StatusEntry
}

// CommSnapshotter is the subset of pkg/statuscache.CommCache the hub needs.
type CommSnapshotter interface {
	Snapshot() []models.CommStatusEntry
}

// PerfSnapshotter is the subset of pkg/statuscache.PerfCache the hub needs.
type PerfSnapshotter interface {
	Snapshot() []models.PerfStatsEntry
}

// Hub maintains the set of connected browser sockets and is the single
// owner of that set; every mutation happens in Run, fed by the register and
// unregister channels, matching the teacher's hub/client split.
type Hub struct {
	status StatusSnapshotter
	comm   CommSnapshotter
	perf   PerfSnapshotter
	log    logger.Logger

	clients    map[*Client]bool
	broadcast  chan models.BrowserFrame
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

func NewHub(status StatusSnapshotter, comm CommSnapshotter, perf PerfSnapshotter, log logger.Logger) *Hub {
	return &Hub{
		status:     status,
		comm:       comm,
		perf:       perf,
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.BrowserFrame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run owns the clients set until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			h.seed(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case frame := <-h.broadcast:
			h.fanOut(frame)
		}
	}
}

// seed sends the three snapshot frames spec.md §4.G requires on connect.
func (h *Hub) seed(client *Client) {
	client.trySend(models.BrowserFrame{Type: "status", Data: h.status.Snapshot()})
	client.trySend(models.BrowserFrame{Type: "commStatus", Data: h.comm.Snapshot()})
	client.trySend(models.BrowserFrame{Type: "perfStats", Data: h.perf.Snapshot()})
}

// Publish implements the EventPublisher interface consumed by
// pkg/homebase and pkg/notify: it fans eventType+data out to every open
// socket as {type, data}.
func (h *Hub) Publish(eventType string, data interface{}) {
	frame := models.BrowserFrame{Type: eventType, Data: data}

	select {
	case h.broadcast <- frame:
	default:
		h.log.Warn().Str("type", eventType).Msg("broadcast channel full, dropping event")
	}
}

// Reply sends a frame to one specific client. Replies from the Browser
// Session Handler do not go through it: readPump hands HandleMessage the
// client's own trySend as its reply callback.
func (h *Hub) Reply(client *Client, frame models.BrowserFrame) {
	client.trySend(frame)
}

// fanOut sends frame to every client in deterministic id order, matching
// the teacher's sorted-iteration discipline. A single client's full send
// buffer drops that frame for that client only; it never blocks the hub.
func (h *Hub) fanOut(frame models.BrowserFrame) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		c.trySend(frame)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}

	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ClientCount reports the number of currently connected browser sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
