package auth

import (
	"context"
	"sync"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
)

type State int

const (
	StateUnauthenticated State = iota
	StateChallenged
	StateAuthenticated
)

var stateNames = map[State]string{
	StateUnauthenticated: "UNAUTHENTICATED",
	StateChallenged:      "CHALLENGED",
	StateAuthenticated:   "AUTHENTICATED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Session is the server side handshake state of one connection. The token is
// generated when the connection is accepted and only handed out once the
// client presents a valid key.
type Session struct {
	mu         sync.RWMutex
	clientID   string
	token      string
	permission Permission
	state      State
}

func NewSession(clientID string) (*Session, error) {
	token, err := NewSessionToken()
	if err != nil {
		return nil, err
	}
	return &Session{clientID: clientID, token: token}, nil
}

func (s *Session) ClientID() string {
	return s.clientID
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Permission() Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permission
}

// Verify reports whether a request carrying token may be dispatched. A
// request that fails the check moves the session to CHALLENGED.
func (s *Session) Verify(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated && token != "" && TokensEqual(token, s.token) {
		return true
	}
	if s.state != StateAuthenticated {
		s.state = StateChallenged
	}
	return false
}

// Authenticate completes the handshake with the presented key. On success the
// session becomes AUTHENTICATED and the session token is returned. On failure
// the session falls back to UNAUTHENTICATED.
func (s *Session) Authenticate(ctx context.Context, store CredentialStore, key string) (string, error) {
	permission, err := store.Lookup(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUnauthenticated
		s.permission = PermissionNone
		logger.WarnF("[%s] Authentication failed, details: %v", s.clientID, err)
		return "", err
	}
	s.state = StateAuthenticated
	s.permission = permission
	logger.InfoF("[%s] Client authenticated with %s permission", s.clientID, permission)
	return s.token, nil
}
