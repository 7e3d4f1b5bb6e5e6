package broadcast

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientIDCounter hands out deterministic, monotonically increasing client
// ids so fan-out iteration order is stable across runs.
var clientIDCounter atomic.Uint64

// MessageHandler is the Browser Session Handler's entry point (Component
// H): one HandleMessage call per inbound browser frame, replying through
// reply rather than returning a value, since a single frame can produce
// zero or more replies to the originating socket.
type MessageHandler interface {
	HandleMessage(ctx context.Context, raw []byte, reply func(models.BrowserFrame))
}

// Client is the per-socket middleman between one browser connection and
// the Hub, mirroring the teacher's websocket.Client split between
// readPump and writePump.
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	handler MessageHandler
	send    chan models.BrowserFrame
}

func newClient(hub *Hub, conn *websocket.Conn, handler MessageHandler) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		handler: handler,
		send:    make(chan models.BrowserFrame, 256),
	}
}

// Serve registers the client, runs its read/write pumps, and blocks until
// either pump exits. Call in its own goroutine per accepted connection.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, handler MessageHandler) {
	client := newClient(h, conn, handler)

	h.register <- client

	done := make(chan struct{})
	go func() {
		client.writePump()
		close(done)
	}()

	client.readPump(ctx)

	h.unregister <- client
	<-done
}

func (c *Client) readPump(ctx context.Context) {
	defer func() { _ = c.conn.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		c.handler.HandleMessage(ctx, raw, c.trySend)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend enqueues frame for delivery, dropping it if the client's buffer
// is full rather than blocking the sender (the hub's fan-out loop, or the
// client's own read pump replying to a command).
func (c *Client) trySend(frame models.BrowserFrame) {
	select {
	case c.send <- frame:
	default:
	}
}
