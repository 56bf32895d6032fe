package core

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// User represents the authenticated principal returned to handlers. There is
// exactly one admin identity per process; no user table exists.
type User struct {
	Username string
	Role     string
}

// AuthService defines authentication behaviour.
type AuthService interface {
	Authenticate(username, password string) (User, error)
}

// CredentialStore validates login attempts against the single configured
// admin identity. It is built once at startup and immutable afterwards.
type CredentialStore struct {
	username     string
	passwordHash string
}

// NewCredentialStore builds the store from config. When no password hash is
// configured the store fails closed: every Verify returns false. A usable
// development credential is only ever produced explicitly, via
// BootstrapDevAdmin with DevMode enabled.
func NewCredentialStore(cfg Config) *CredentialStore {
	return &CredentialStore{
		username:     cfg.AdminUsername,
		passwordHash: cfg.AdminPasswordHash,
	}
}

// Verify reports whether the presented pair matches the configured admin.
// Both the username comparison and the bcrypt comparison run on every call
// so response timing does not reveal which part was wrong.
func (s *CredentialStore) Verify(username, password string) bool {
	if s.passwordHash == "" {
		return false
	}
	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passwordOK := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)) == nil
	return usernameOK && passwordOK
}

// Authenticate implements AuthService. Failures are reported uniformly as
// ErrInvalidCredentials; the raw password is never logged or echoed.
func (s *CredentialStore) Authenticate(username, password string) (User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	if !s.Verify(username, password) {
		return User{}, ErrInvalidCredentials
	}
	return User{Username: s.username, Role: "admin"}, nil
}
