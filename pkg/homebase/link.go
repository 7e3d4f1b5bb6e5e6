// Package homebase implements the per-device Homebase Link (Component C):
// a persistent, self-healing WebSocket session to one remote experiment
// controller, with heartbeat, reconnect back-off, request/response
// correlation, chunk reassembly, and datapoint dispatch into the status
// cache. All of a Link's mutable state is owned by a single run-loop
// goroutine (see run.go); every other method communicates with it over
// channels.
package homebase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

const refreshInterval = 60 * time.Second

const pollInterval = 10 * time.Second

// StatusCache is the subset of pkg/statuscache.Cache a Link depends on.
type StatusCache interface {
	Apply(host, source, typ, value string) (models.StatusEntry, bool)
}

// EventPublisher fans out an event to every connected browser session
// (implemented by pkg/broadcast.Hub).
type EventPublisher interface {
	Publish(eventType string, data interface{})
}

// StatusRecorder is the store's write path for accepted status changes.
type StatusRecorder interface {
	RecordStatusChange(ctx context.Context, entry models.StatusEntry) error
}

// Config carries the tunables from models.Config relevant to a Link.
type Config struct {
	HeartbeatInterval     time.Duration
	HeartbeatTimeout      time.Duration
	StaleTimeout          time.Duration
	ConnectTimeout        time.Duration
	RequestDefaultTimeout time.Duration
	MaxInFlight           int64
	MaxQueue              int
	SubscribeEvery        int

	FastRetryWindow time.Duration
	FastRetryBase   time.Duration
	FastRetryJitter time.Duration
	SlowBaseBackoff time.Duration
	SlowMaxBackoff  time.Duration
	SlowJitter      time.Duration
}

func defaultRequestTimeout(cfg Config) time.Duration {
	if cfg.RequestDefaultTimeout <= 0 {
		return 10 * time.Second
	}

	return cfg.RequestDefaultTimeout
}

// callChCapacity sizes callCh to cfg.MaxQueue so the channel itself is the
// admission bound per spec.md §4.C/§8 while the Link is not Open: run()'s
// outer loop never drains callCh during dial/back-off, so Eval's send must
// be bounded and rejectable on its own rather than relying on
// requestTable.enqueue, which only runs once a call reaches the run loop.
func callChCapacity(cfg Config) int {
	if cfg.MaxQueue <= 0 {
		return 1
	}

	return cfg.MaxQueue
}

// Link is one Homebase Link. Construct with New and start it with Start;
// it then runs until its context is canceled.
type Link struct {
	address string
	cfg     Config
	log     logger.Logger
	dialer  *websocket.Dialer

	cache     StatusCache
	publisher EventPublisher
	recorder  StatusRecorder

	requests *requestTable
	chunks   *chunkRegistry
	backoff  *Backoff

	ctx    context.Context
	cancel context.CancelFunc

	callCh    chan *callRequest
	timeoutCh chan string
	started   bool

	// conn is the live socket while openLoop runs; touched only by the run
	// goroutine, matching the single-writer invariant.
	conn *websocket.Conn

	statusMu     sync.RWMutex
	state        models.LinkState
	lastErr      string
	reconnects   int
	lastOpenedAt time.Time

	extraMu   sync.RWMutex
	extraKeys []string
}

type callRequest struct {
	script   string
	timeout  time.Duration
	resultCh chan evalResult
}

// New constructs a Link for address. It does not dial; call Start to begin
// the connection supervisor loop.
func New(address string, cfg Config, log logger.Logger, cache StatusCache, publisher EventPublisher, recorder StatusRecorder) *Link {
	return &Link{
		address:   address,
		cfg:       cfg,
		log:       log,
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		cache:     cache,
		publisher: publisher,
		recorder:  recorder,
		requests:  newRequestTable(cfg.MaxInFlight, cfg.MaxQueue),
		chunks:    newChunkRegistry(),
		backoff: NewBackoff(cfg.FastRetryWindow, cfg.FastRetryBase, cfg.FastRetryJitter,
			cfg.SlowBaseBackoff, cfg.SlowMaxBackoff, cfg.SlowJitter),
		callCh:    make(chan *callRequest, callChCapacity(cfg)),
		timeoutCh: make(chan string, 32),
		state:     models.LinkIdle,
	}
}

// Start launches the run loop in its own goroutine. Safe to call once;
// subsequent calls are no-ops, satisfying the Device Registry's Factory
// contract of a single Start per constructed Link.
func (l *Link) Start(ctx context.Context) {
	if l.started {
		return
	}

	l.started = true
	l.ctx, l.cancel = context.WithCancel(ctx)

	go l.run(l.ctx)
}

// Eval sends an eval request and blocks until a result, timeout, or
// queue-full rejection. timeout<=0 uses the configured request default.
func (l *Link) Eval(ctx context.Context, script string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout(l.cfg)
	}

	resultCh := make(chan evalResult, 1)

	select {
	case l.callCh <- &callRequest{script: script, timeout: timeout, resultCh: resultCh}:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.ctx.Done():
		return "", ErrLinkClosed
	default:
		// callCh is only drained by openLoop's select, which only runs
		// while Open; while dialing or back-off-sleeping nothing reads it
		// at all. callCh's capacity is cfg.MaxQueue, so a full buffer here
		// means the queue really is full, not merely that the run loop
		// hasn't gotten to it yet — reject synchronously instead of
		// blocking the caller indefinitely.
		return "", ErrQueueFull
	}

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Snapshot returns the Link's current liveness state for admin views.
func (l *Link) Snapshot() models.LinkStatus {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()

	return models.LinkStatus{
		Address:        l.address,
		State:          l.state.String(),
		LastError:      l.lastErr,
		ReconnectCount: l.reconnects,
		LastOpenedAt:   l.lastOpenedAt,
	}
}

// SetExtraSubscribeKeys replaces the keys appended to the fixed catalog on
// the next (re)connect's subscribe/touch seeding. Safe to call from any
// goroutine; read on the run goroutine via extraSubscribeKeys.
func (l *Link) SetExtraSubscribeKeys(keys []string) {
	l.extraMu.Lock()
	l.extraKeys = keys
	l.extraMu.Unlock()
}

func (l *Link) extraSubscribeKeys() []string {
	l.extraMu.RLock()
	defer l.extraMu.RUnlock()

	return l.extraKeys
}

func (l *Link) setState(state models.LinkState) {
	l.statusMu.Lock()
	l.state = state
	if state == models.LinkOpen {
		l.lastOpenedAt = time.Now()
	}
	l.statusMu.Unlock()
}

func (l *Link) setLastErr(err error) {
	if err == nil {
		return
	}

	l.statusMu.Lock()
	l.lastErr = err.Error()
	l.statusMu.Unlock()
}

func (l *Link) endpoint() string {
	return fmt.Sprintf("ws://%s:2565/ws", l.address)
}
