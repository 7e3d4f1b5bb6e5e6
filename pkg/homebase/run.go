package homebase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// run is the Link's single owner goroutine: the only code that ever
// mutates its state machine, request table, chunk buffers, or touches the
// socket. It alternates between dialing (with back-off) and serving one
// open connection until ctx is canceled. Because dial only ever happens
// here, on this one goroutine, a second concurrent dial is structurally
// impossible — satisfying the "refuse a second concurrent dial" contract
// without extra bookkeeping.
func (l *Link) run(ctx context.Context) {
	var firstDisconnect time.Time

	var slowFailures int

	for ctx.Err() == nil {
		l.setState(models.LinkConnecting)

		conn, err := l.dial(ctx)
		if err != nil {
			l.setLastErr(err)
			l.log.Warn().Err(err).Str("address", l.address).Msg("dial failed")

			if firstDisconnect.IsZero() {
				firstDisconnect = time.Now()
			}

			elapsed := time.Since(firstDisconnect)
			delay := l.backoff.Next(elapsed, slowFailures)

			if elapsed >= l.cfg.FastRetryWindow {
				slowFailures++
			}

			if !sleepOrDone(ctx, delay) {
				return
			}

			continue
		}

		firstDisconnect = time.Time{}
		slowFailures = 0
		l.reconnects++

		l.openLoop(ctx, conn)

		l.setState(models.LinkDraining)
		conn.Close()
		l.requests.rejectAll(ErrLinkClosed)
		l.chunks.reset()
		l.setState(models.LinkClosed)
		l.publishConnected(false)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Link) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := l.dialer.DialContext(dialCtx, l.endpoint(), nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// openLoop serves one live connection: on Open it resets counters, seeds
// subscriptions, and runs the heartbeat/stale/refresh/poll/call/read event
// loop until the socket breaks or ctx is canceled.
func (l *Link) openLoop(ctx context.Context, conn *websocket.Conn) {
	l.setState(models.LinkOpen)
	l.conn = conn

	defer func() { l.conn = nil }()

	l.publishConnected(true)
	l.seedSubscriptions(conn)

	frames := make(chan []byte, 32)
	readErrCh := make(chan error, 1)

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	go l.readPump(conn, frames, readErrCh, readCtx)

	heartbeat := time.NewTicker(l.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	staleTimer := time.NewTimer(l.cfg.StaleTimeout)
	defer staleTimer.Stop()

	var pongDeadline *time.Timer

	defer func() {
		if pongDeadline != nil {
			pongDeadline.Stop()
		}
	}()

	conn.SetPongHandler(func(string) error {
		select {
		case frames <- nil: // nil marks "liveness only", resets staleness without dispatch
		default:
		}

		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErrCh:
			l.setLastErr(err)
			l.log.Info().Err(err).Str("address", l.address).Msg("link read failed, reconnecting")

			return

		case raw := <-frames:
			staleTimer.Reset(l.cfg.StaleTimeout)

			if raw == nil {
				if pongDeadline != nil {
					pongDeadline.Stop()
					pongDeadline = nil
				}

				continue
			}

			l.handleFrame(raw)

		case <-staleTimer.C:
			l.log.Warn().Str("address", l.address).Msg("link stale, reconnecting")
			return

		case <-heartbeat.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.log.Warn().Err(err).Str("address", l.address).Msg("ping write failed, reconnecting")
				return
			}

			timeout := l.cfg.HeartbeatTimeout
			pongDeadline = time.NewTimer(timeout)

		case <-pongTimerChan(pongDeadline):
			l.log.Warn().Str("address", l.address).Msg("pong timeout, reconnecting")
			return

		case <-refresh.C:
			l.seedTouches(conn)

		case <-poll.C:
			l.runPoll()

		case call := <-l.callCh:
			l.dispatchCall(conn, call)

		case id := <-l.timeoutCh:
			if l.requests.timeout(id) {
				l.drainQueueOnce(conn)
			}
		}
	}
}

// pongTimerChan returns t.C, or a channel that never fires if t is nil,
// letting the select above treat "no ping outstanding" uniformly.
func pongTimerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}

	return t.C
}

func (l *Link) readPump(conn *websocket.Conn, frames chan<- []byte, errCh chan<- error, ctx context.Context) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}

			return
		}

		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Link) seedSubscriptions(conn *websocket.Conn) {
	every := l.cfg.SubscribeEvery
	if every <= 0 {
		every = 1
	}

	for _, key := range l.subscribeKeys() {
		_ = l.writeJSON(conn, models.SubscribeCommand{Cmd: "subscribe", Match: key, Every: every})
	}

	l.seedTouches(conn)
}

func (l *Link) seedTouches(conn *websocket.Conn) {
	for _, key := range l.subscribeKeys() {
		_ = l.writeJSON(conn, models.TouchCommand{Cmd: "touch", Name: key})
	}
}

// subscribeKeys is the fixed catalog plus any KV-overridden extra keys
// (pkg/config.WatchKV), read fresh on every (re)connect so a live override
// takes effect starting with the next seedSubscriptions call.
func (l *Link) subscribeKeys() []string {
	extra := l.extraSubscribeKeys()
	if len(extra) == 0 {
		return catalog
	}

	return append(append([]string{}, catalog...), extra...)
}

func (l *Link) writeJSON(conn *websocket.Conn, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, payload)
}

// dispatchCall admits a new Eval call: if an in-flight slot is free it is
// sent immediately, otherwise it joins the waiting queue (or is rejected
// with ErrQueueFull synchronously).
func (l *Link) dispatchCall(conn *websocket.Conn, call *callRequest) {
	send, err := l.requests.enqueue(call.script, call.timeout, call.resultCh)
	if err != nil {
		select {
		case call.resultCh <- evalResult{err: err}:
		default:
		}

		return
	}

	if send {
		l.sendEval(conn, call.script, call.timeout, call.resultCh)
	}
}

func (l *Link) sendEval(conn *websocket.Conn, script string, timeout time.Duration, resultCh chan evalResult) {
	// onTimeout fires on time.AfterFunc's own goroutine, so it must not
	// touch requestTable directly; it only hands the id to the run loop,
	// which owns all request-table mutation.
	id := l.requests.admit(timeout, resultCh, func(requestID string) {
		select {
		case l.timeoutCh <- requestID:
		default:
		}
	})

	if err := l.writeJSON(conn, models.EvalCommand{Cmd: "eval", Script: script, RequestID: id}); err != nil {
		l.requests.resolve(id, evalResult{err: err})
	}
}

// drainQueueOnce sends at most one waiting call if an in-flight slot is
// currently free, called after every response and every request timeout.
func (l *Link) drainQueueOnce(conn *websocket.Conn) {
	if l.requests.waitingCount() == 0 || !l.requests.inflight.TryAcquire(1) {
		return
	}

	call, ok := l.requests.drainOne()
	if !ok {
		l.requests.inflight.Release(1)
		return
	}

	l.sendEval(conn, call.script, call.timeout, call.resultCh)
}

func (l *Link) publishConnected(open bool) {
	value := "0"
	if open {
		value = "1"
	}

	entry, changed := l.cache.Apply(l.address, "ess", "connected", value)
	if !changed {
		return
	}

	l.publisher.Publish("status_changes", entry)
}
