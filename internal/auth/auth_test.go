package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionToken(t *testing.T) {
	a, err := NewSessionToken()
	require.NoError(t, err)
	b, err := NewSessionToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("FULL")
	require.NoError(t, err)
	assert.Equal(t, PermissionFull, p)
	assert.True(t, p.Allows(PermissionRead))
	assert.False(t, PermissionRead.Allows(PermissionFull))

	_, err = ParsePermission("admin")
	assert.Error(t, err)
}

func TestStaticCredentials(t *testing.T) {
	store, err := StaticCredentialsFromConfig([]config.Credential{
		{Name: "ops", Key: "test", Permission: "full"},
		{Name: "viewer", Key: "viewer-key", Permission: "read"},
	})
	require.NoError(t, err)

	p, err := store.Lookup(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, PermissionFull, p)

	p, err = store.Lookup(context.Background(), "viewer-key")
	require.NoError(t, err)
	assert.Equal(t, PermissionRead, p)

	_, err = store.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.ErrorIs(t, err, ErrHandshakeFailure)

	_, err = store.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = StaticCredentialsFromConfig([]config.Credential{{Key: "k", Permission: "root"}})
	assert.Error(t, err)
}

type failingStore struct{ err error }

func (f failingStore) Lookup(context.Context, string) (Permission, error) {
	return PermissionNone, f.err
}

func TestChainStore(t *testing.T) {
	first := NewStaticCredentials(map[string]Permission{"a": PermissionRead})
	second := NewStaticCredentials(map[string]Permission{"b": PermissionFull})
	chain := ChainStore{first, second}

	p, err := chain.Lookup(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, PermissionFull, p)

	_, err = chain.Lookup(context.Background(), "c")
	assert.ErrorIs(t, err, ErrUnknownKey)

	broken := errors.New("database down")
	_, err = ChainStore{first, failingStore{broken}}.Lookup(context.Background(), "c")
	assert.ErrorIs(t, err, broken)
}

func TestSessionStateMachine(t *testing.T) {
	store := NewStaticCredentials(map[string]Permission{"test": PermissionFull})
	s, err := NewSession("127.0.0.1:4000")
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, s.State())

	assert.False(t, s.Verify(""))
	assert.Equal(t, StateChallenged, s.State())

	_, err = s.Authenticate(context.Background(), store, "wrong")
	assert.ErrorIs(t, err, ErrHandshakeFailure)
	assert.Equal(t, StateUnauthenticated, s.State())

	token, err := s.Authenticate(context.Background(), store, "test")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, PermissionFull, s.Permission())

	assert.True(t, s.Verify(token))
	assert.False(t, s.Verify("stale"))
	// a stale token does not revoke an established session
	assert.Equal(t, StateAuthenticated, s.State())

	// the same token is reissued on a repeated handshake
	again, err := s.Authenticate(context.Background(), store, "test")
	require.NoError(t, err)
	assert.Equal(t, token, again)

	_, err = s.Authenticate(context.Background(), store, "wrong")
	require.Error(t, err)
	assert.False(t, s.Verify(token))
	assert.Equal(t, PermissionNone, s.Permission())
}

func TestSessionConcurrentVerify(t *testing.T) {
	store := NewStaticCredentials(map[string]Permission{"test": PermissionRead})
	s, err := NewSession("c")
	require.NoError(t, err)
	token, err := s.Authenticate(context.Background(), store, "test")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, s.Verify(token))
		}()
	}
	wg.Wait()
	assert.Equal(t, "UNKNOWN", State(9).String())
}
