package client

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
)

// PendingRequest is a sent request awaiting its response or its deadline.
type PendingRequest struct {
	id       string
	request  *Request
	timer    *time.Timer
	resolved atomic.Bool
}

func (p *PendingRequest) ID() string {
	return p.id
}

// complete runs fn unless the request was already resolved.
func (p *PendingRequest) complete(fn func()) bool {
	if !p.resolved.CompareAndSwap(false, true) {
		return false
	}
	fn()
	return true
}

// PendingTable correlates response ids with in-flight requests. Every entry
// leaves the table through exactly one of Resolve, its timer, Withdraw or Fail.
type PendingTable struct {
	mu      sync.Mutex
	entries map[string]*PendingRequest
}

func NewPendingTable() *PendingTable {
	return &PendingTable{entries: make(map[string]*PendingRequest)}
}

// Add registers req under id and arms its timeout. A non-positive timeout
// leaves the entry without a deadline.
func (t *PendingTable) Add(id string, req *Request) (*PendingRequest, error) {
	p := &PendingRequest{id: id, request: req}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	t.entries[id] = p
	if req.Timeout > 0 {
		p.timer = time.AfterFunc(req.Timeout, func() { t.expire(id) })
	}
	return p, nil
}

// take is the single atomic check-and-delete every resolution path goes through.
func (t *PendingTable) take(id string) (*PendingRequest, bool) {
	t.mu.Lock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if ok && p.timer != nil {
		p.timer.Stop()
	}
	return p, ok
}

func (t *PendingTable) expire(id string) {
	p, ok := t.take(id)
	if !ok {
		return
	}
	p.complete(func() {
		logger.DebugF("Request %s timed out after %v", id, p.request.Timeout)
		p.request.expire()
	})
}

// Resolve settles the entry matching m.ID() with m. It reports false, and
// only logs, when no entry is waiting for that id.
func (t *PendingTable) Resolve(m *message.Message) bool {
	p, ok := t.take(m.ID())
	if !ok {
		logger.InfoF("Unmatched %s message %s dropped", m.Type(), m.ID())
		return false
	}

	return p.complete(func() {
		switch m.Type() {
		case message.Response:
			p.request.succeed(m.Params())
		case message.Error:
			p.request.fail(&RemoteError{
				Code:    m.StringParamOr(message.ParamCode, ""),
				Message: m.StringParamOr(message.ParamMessage, "unknown error"),
			})
		default:
			p.request.fail(fmt.Errorf("%w: unexpected %s reply", message.ErrMalformedMessage, m.Type()))
		}
	})
}

// Withdraw removes the entry without invoking any callback and hands the
// request back to the caller.
func (t *PendingTable) Withdraw(id string) (*Request, bool) {
	p, ok := t.take(id)
	if !ok {
		return nil, false
	}
	if !p.resolved.CompareAndSwap(false, true) {
		return nil, false
	}
	return p.request, true
}

// Fail settles the entry with err.
func (t *PendingTable) Fail(id string, err error) bool {
	p, ok := t.take(id)
	if !ok {
		return false
	}
	return p.complete(func() { p.request.fail(err) })
}

func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
