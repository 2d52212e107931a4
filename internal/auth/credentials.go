package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/config"
)

var (
	ErrHandshakeFailure = errors.New("handshake failure")
	ErrUnknownKey       = fmt.Errorf("%w: key invalid", ErrHandshakeFailure)
	ErrNoKey            = fmt.Errorf("%w: no key provided", ErrHandshakeFailure)
)

// CredentialStore resolves a pre-shared key to the permission it grants.
// Implementations return ErrUnknownKey for keys they do not know.
type CredentialStore interface {
	Lookup(ctx context.Context, key string) (Permission, error)
}

// StaticCredentials is an in-memory credential table. Keys are stored hashed
// and compared in constant time.
type StaticCredentials struct {
	entries []staticEntry
}

type staticEntry struct {
	hash       string
	permission Permission
}

func NewStaticCredentials(keys map[string]Permission) *StaticCredentials {
	s := &StaticCredentials{}
	for k, p := range keys {
		s.entries = append(s.entries, staticEntry{hash: HashKey(k), permission: p})
	}
	return s
}

// StaticCredentialsFromConfig builds the table from server.credentials.
func StaticCredentialsFromConfig(creds []config.Credential) (*StaticCredentials, error) {
	keys := make(map[string]Permission, len(creds))
	for _, c := range creds {
		p, err := ParsePermission(c.Permission)
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", c.Name, err)
		}
		keys[c.Key] = p
	}
	return NewStaticCredentials(keys), nil
}

func (s *StaticCredentials) Lookup(_ context.Context, key string) (Permission, error) {
	if strings.TrimSpace(key) == "" {
		return PermissionNone, ErrNoKey
	}
	hash := HashKey(key)
	found := PermissionNone
	// 遍历全部条目, 不提前返回
	for _, e := range s.entries {
		if TokensEqual(hash, e.hash) {
			found = e.permission
		}
	}
	if found == PermissionNone {
		return PermissionNone, ErrUnknownKey
	}
	return found, nil
}

// ChainStore consults each store in order and returns the first match.
type ChainStore []CredentialStore

func (c ChainStore) Lookup(ctx context.Context, key string) (Permission, error) {
	if strings.TrimSpace(key) == "" {
		return PermissionNone, ErrNoKey
	}
	for _, store := range c {
		p, err := store.Lookup(ctx, key)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrUnknownKey) {
			return PermissionNone, err
		}
	}
	return PermissionNone, ErrUnknownKey
}
