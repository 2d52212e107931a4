package client

import (
	"sync"
	"time"
)

type cachedRequest struct {
	request *Request
	timer   *time.Timer
}

// Session holds the client half of the handshake: the issued token and the
// one request parked while a handshake is in flight.
//
// Only a single request can be parked. A second challenge arriving before the
// handshake completes displaces the first; Cache returns the displaced request
// so the caller can fail it instead of losing it.
type Session struct {
	mu     sync.Mutex
	token  string
	cached *cachedRequest
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Session) ClearToken() {
	s.SetToken("")
}

// Cache parks req until the handshake completes. If the handshake has not
// completed after req.Timeout, onExpire receives the request.
func (s *Session) Cache(req *Request, onExpire func(*Request)) (displaced *Request) {
	entry := &cachedRequest{request: req}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		if s.cached.timer != nil {
			s.cached.timer.Stop()
		}
		displaced = s.cached.request
	}
	s.cached = entry
	if req.Timeout > 0 {
		entry.timer = time.AfterFunc(req.Timeout, func() {
			if r, ok := s.takeIf(entry); ok {
				onExpire(r)
			}
		})
	}
	return displaced
}

// TakeCached removes and returns the parked request.
func (s *Session) TakeCached() (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		return nil, false
	}
	entry := s.cached
	s.cached = nil
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return entry.request, true
}

func (s *Session) takeIf(entry *cachedRequest) (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != entry {
		return nil, false
	}
	s.cached = nil
	return entry.request, true
}
