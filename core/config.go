package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime settings for the API process.
type Config struct {
	Port                 string        // HTTP listen port (e.g., "3000")
	PostsFile            string        // path to the flat file holding all posts
	SessionKey           string        // cookie signing key, also signs session tokens
	SessionTTL           time.Duration // lifetime of an issued admin session
	CookieSecure         bool          // whether to set Secure flag on session cookie
	CookieSameSite       string        // SameSite policy: Strict/Lax/None
	LogDir               string        // directory to write application logs
	RedisURL             string        // optional redis URL for the session store ("" -> in-memory)
	AdminUsername        string        // the single admin identity
	AdminPasswordHash    string        // bcrypt hash of the admin password
	DevMode              bool          // allow a generated dev credential when no hash is configured
	DevAdminPasswordPath string        // where to write the generated dev password (if empty -> log output)
	AllowedOrigins       []string      // allowed origins for CORS/CSRF origin check
}

// Load populates Config from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:                 firstNonEmpty(os.Getenv("PORT"), "3000"),
		PostsFile:            firstNonEmpty(os.Getenv("POSTS_FILE"), "./data/posts.json"),
		SessionKey:           firstNonEmpty(os.Getenv("SESSION_KEY"), "change-this-session-key"),
		SessionTTL:           time.Duration(intFromEnv("SESSION_TTL_HOURS", 24)) * time.Hour,
		CookieSecure:         boolFromEnv("COOKIE_SECURE", false),
		CookieSameSite:       firstNonEmpty(os.Getenv("COOKIE_SAMESITE"), "Strict"),
		LogDir:               firstNonEmpty(os.Getenv("LOG_DIR"), "/var/log/blog"),
		RedisURL:             os.Getenv("REDIS_URL"),
		AdminUsername:        firstNonEmpty(os.Getenv("ADMIN_USERNAME"), "admin"),
		AdminPasswordHash:    os.Getenv("ADMIN_PASSWORD_HASH"),
		DevMode:              boolFromEnv("DEV_MODE", false),
		DevAdminPasswordPath: os.Getenv("DEV_ADMIN_PASSWORD_PATH"),
		AllowedOrigins:       parseCSV(os.Getenv("ALLOWED_ORIGINS")),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// boolFromEnv reads a boolean from env var name, falling back to defaultVal when empty or invalid.
func boolFromEnv(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// intFromEnv reads an int from env var name, falling back to defaultVal when empty or invalid.
func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
