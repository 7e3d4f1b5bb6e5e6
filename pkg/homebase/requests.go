package homebase

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrQueueFull is returned synchronously when a call arrives with the
// waiting queue already at capacity.
var ErrQueueFull = errors.New("homebase: request queue full")

// ErrLinkClosed is used to reject pending requests when the Link leaves the
// Open state, resolving Open Question 1 (DESIGN.md) by rejecting eagerly
// rather than waiting out each request's own deadline.
var ErrLinkClosed = errors.New("homebase: link closed")

// ErrRequestTimeout marks a request rejected because its deadline elapsed
// before a matching response arrived.
var ErrRequestTimeout = errors.New("homebase: request timed out")

// pendingRequest is a single outstanding eval call awaiting a response.
type pendingRequest struct {
	requestID string
	resultCh  chan evalResult
	deadline  time.Time
	timer     *time.Timer
}

type evalResult struct {
	value string
	err   error
}

// requestTable owns the in-flight semaphore, the waiting queue, and the
// requestId -> pendingRequest map. It is touched only by a Link's run loop,
// matching the single-writer invariant.
type requestTable struct {
	maxQueue int
	inflight *semaphore.Weighted

	pending map[string]*pendingRequest
	waiting []*queuedCall
}

// queuedCall is a call that has not yet acquired an in-flight slot.
type queuedCall struct {
	script   string
	timeout  time.Duration
	resultCh chan evalResult
}

func newRequestTable(maxInFlight int64, maxQueue int) *requestTable {
	return &requestTable{
		maxQueue: maxQueue,
		inflight: semaphore.NewWeighted(maxInFlight),
		pending:  make(map[string]*pendingRequest),
	}
}

// enqueue admits a new call. If an in-flight slot is immediately available
// it is granted synchronously (send==true); otherwise the call joins the
// waiting queue, or is rejected with ErrQueueFull if the queue is already
// at maxQueue.
func (t *requestTable) enqueue(script string, timeout time.Duration, resultCh chan evalResult) (send bool, err error) {
	if t.inflight.TryAcquire(1) {
		return true, nil
	}

	if len(t.waiting) >= t.maxQueue {
		return false, ErrQueueFull
	}

	t.waiting = append(t.waiting, &queuedCall{script: script, timeout: timeout, resultCh: resultCh})

	return false, nil
}

// admit registers a pendingRequest for a call that already holds an
// in-flight slot and arms its deadline timer. sendEval calls it just before
// writing the eval frame, since the frame carries the returned requestId.
func (t *requestTable) admit(timeout time.Duration, resultCh chan evalResult, onTimeout func(requestID string)) string {
	id := uuid.NewString()

	pr := &pendingRequest{requestID: id, resultCh: resultCh, deadline: time.Now().Add(timeout)}
	pr.timer = time.AfterFunc(timeout, func() { onTimeout(id) })

	t.pending[id] = pr

	return id
}

// drainOne pops the next waiting call, if any, releasing its queue slot.
func (t *requestTable) drainOne() (*queuedCall, bool) {
	if len(t.waiting) == 0 {
		return nil, false
	}

	call := t.waiting[0]
	t.waiting = t.waiting[1:]

	return call, true
}

// resolve completes a pending request by requestId, deleting it from the
// table and releasing its in-flight slot. Returns false if no such request
// is outstanding (late or unrecognized requestId).
func (t *requestTable) resolve(requestID string, result evalResult) bool {
	pr, ok := t.pending[requestID]
	if !ok {
		return false
	}

	delete(t.pending, requestID)
	pr.timer.Stop()
	t.inflight.Release(1)

	select {
	case pr.resultCh <- result:
	default:
	}

	return true
}

// timeout completes a pending request due to deadline expiry. A no-op if
// the request already resolved (timer fired after resolve deleted it).
func (t *requestTable) timeout(requestID string) bool {
	pr, ok := t.pending[requestID]
	if !ok {
		return false
	}

	delete(t.pending, requestID)
	t.inflight.Release(1)

	select {
	case pr.resultCh <- evalResult{err: fmt.Errorf("%w: %s", ErrRequestTimeout, requestID)}:
	default:
	}

	return true
}

// rejectAll fails every pending and waiting request with err, used on link
// teardown per Open Question 1's resolution.
func (t *requestTable) rejectAll(err error) {
	for id, pr := range t.pending {
		pr.timer.Stop()
		delete(t.pending, id)
		t.inflight.Release(1)

		select {
		case pr.resultCh <- evalResult{err: err}:
		default:
		}
	}

	for _, call := range t.waiting {
		select {
		case call.resultCh <- evalResult{err: err}:
		default:
		}
	}

	t.waiting = nil
}

// pendingCount and waitingCount support the in-flight/queue cap invariant
// checks in tests.
func (t *requestTable) pendingCount() int { return len(t.pending) }
func (t *requestTable) waitingCount() int { return len(t.waiting) }
