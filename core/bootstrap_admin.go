package core

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// BootstrapDevAdmin fills in a generated admin credential when the process
// runs in development mode without a configured password hash. It is a
// no-op when a hash is already configured or DevMode is off; production
// deployments without a hash simply cannot log in.
func BootstrapDevAdmin(cfg *Config) error {
	if !cfg.DevMode || cfg.AdminPasswordHash != "" {
		return nil
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	cfg.AdminPasswordHash = string(hash)

	if cfg.DevAdminPasswordPath != "" {
		if err := os.WriteFile(cfg.DevAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Printf("dev admin credential generated; password written to %s", cfg.DevAdminPasswordPath)
	} else {
		log.Printf("dev admin credential generated username=%s password=%s", cfg.AdminUsername, password)
	}
	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
