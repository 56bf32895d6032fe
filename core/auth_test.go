package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestCredentialStoreVerify(t *testing.T) {
	store := NewCredentialStore(Config{
		AdminUsername:     "admin",
		AdminPasswordHash: hashFor(t, "correct-horse"),
	})

	assert.True(t, store.Verify("admin", "correct-horse"))
	assert.False(t, store.Verify("admin", "wrong"))
	assert.False(t, store.Verify("someone", "correct-horse"))
	assert.False(t, store.Verify("", ""))
}

func TestCredentialStoreFailsClosed(t *testing.T) {
	// No configured hash means no login, never a permissive default.
	store := NewCredentialStore(Config{AdminUsername: "admin"})
	assert.False(t, store.Verify("admin", ""))
	assert.False(t, store.Verify("admin", "admin"))

	_, err := store.Authenticate("admin", "admin")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate(t *testing.T) {
	store := NewCredentialStore(Config{
		AdminUsername:     "admin",
		AdminPasswordHash: hashFor(t, "correct-horse"),
	})

	user, err := store.Authenticate("admin", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, "admin", user.Role)

	for _, attempt := range [][2]string{
		{"admin", "wrong"},
		{"intruder", "correct-horse"},
		{"", "correct-horse"},
		{"admin", ""},
	} {
		_, err := store.Authenticate(attempt[0], attempt[1])
		assert.ErrorIs(t, err, ErrInvalidCredentials, "attempt %v", attempt)
	}
}

func TestBootstrapDevAdmin(t *testing.T) {
	passwordPath := filepath.Join(t.TempDir(), "dev_admin_password.secret")
	cfg := Config{
		AdminUsername:        "admin",
		DevMode:              true,
		DevAdminPasswordPath: passwordPath,
	}

	require.NoError(t, BootstrapDevAdmin(&cfg))
	require.NotEmpty(t, cfg.AdminPasswordHash)

	raw, err := os.ReadFile(passwordPath)
	require.NoError(t, err)
	password := strings.TrimSpace(string(raw))
	require.NotEmpty(t, password)

	store := NewCredentialStore(cfg)
	assert.True(t, store.Verify("admin", password))
}

func TestBootstrapDevAdminNoops(t *testing.T) {
	// Off outside dev mode: the store keeps failing closed.
	cfg := Config{AdminUsername: "admin"}
	require.NoError(t, BootstrapDevAdmin(&cfg))
	assert.Empty(t, cfg.AdminPasswordHash)

	// A configured hash is never replaced.
	configured := hashFor(t, "explicit")
	cfg = Config{AdminUsername: "admin", DevMode: true, AdminPasswordHash: configured}
	require.NoError(t, BootstrapDevAdmin(&cfg))
	assert.Equal(t, configured, cfg.AdminPasswordHash)
}
