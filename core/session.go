package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

const sessionTokenName = "admin_session_token"

// SessionStore tracks which session ids are currently live. Server-side
// state is what makes Revoke take effect immediately instead of waiting for
// the signed expiry to pass.
type SessionStore interface {
	Put(ctx context.Context, id string, ttl time.Duration) error
	Has(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// SessionGate issues and validates the opaque token proving "caller is the
// authenticated admin". Tokens are random ids signed with the session key;
// the boundary layer decides how to transport them (cookie here).
type SessionGate struct {
	codec *securecookie.SecureCookie
	store SessionStore
	ttl   time.Duration
}

// NewSessionGate builds a gate signing tokens with key and tracking them in
// store for ttl.
func NewSessionGate(key []byte, store SessionStore, ttl time.Duration) *SessionGate {
	codec := securecookie.New(key, nil)
	codec.MaxAge(int(ttl.Seconds()))
	return &SessionGate{codec: codec, store: store, ttl: ttl}
}

// Issue creates a new authenticated session and returns its signed token.
// Call only after CredentialStore has verified the login.
func (g *SessionGate) Issue(ctx context.Context) (string, error) {
	id := randomHex(16)
	if err := g.store.Put(ctx, id, g.ttl); err != nil {
		return "", err
	}
	token, err := g.codec.Encode(sessionTokenName, id)
	if err != nil {
		g.store.Delete(ctx, id)
		return "", err
	}
	return token, nil
}

// Validate reports whether token is present, correctly signed, unexpired,
// and not revoked. Store failures count as invalid: the gate fails closed.
func (g *SessionGate) Validate(ctx context.Context, token string) bool {
	id, ok := g.decode(token)
	if !ok {
		return false
	}
	live, err := g.store.Has(ctx, id)
	if err != nil {
		return false
	}
	return live
}

// Revoke invalidates a token immediately (logout). Revoking an already
// invalid token is a no-op.
func (g *SessionGate) Revoke(ctx context.Context, token string) error {
	id, ok := g.decode(token)
	if !ok {
		return nil
	}
	return g.store.Delete(ctx, id)
}

// RequireAuthenticated is the guard used before mutating operations.
func (g *SessionGate) RequireAuthenticated(ctx context.Context, token string) error {
	if !g.Validate(ctx, token) {
		return ErrAuthRequired
	}
	return nil
}

// decode verifies the signature and the signed-in timestamp (expiry) and
// returns the session id.
func (g *SessionGate) decode(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	var id string
	if err := g.codec.Decode(sessionTokenName, token, &id); err != nil {
		return "", false
	}
	return id, true
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i + 1)
		}
	}
	return hex.EncodeToString(b)
}

// MemorySessionStore keeps live sessions in process memory. It is the
// default store for single-process deployments without redis.
type MemorySessionStore struct {
	mu       sync.Mutex
	deadline map[string]time.Time
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{deadline: make(map[string]time.Time), now: time.Now}
}

func (s *MemorySessionStore) Put(ctx context.Context, id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline[id] = s.now().Add(ttl)
	return nil
}

func (s *MemorySessionStore) Has(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dl, ok := s.deadline[id]
	if !ok {
		return false, nil
	}
	if s.now().After(dl) {
		delete(s.deadline, id)
		return false, nil
	}
	return true, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deadline, id)
	return nil
}
