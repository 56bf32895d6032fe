package main

import (
	"fmt"
	"log"

	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"

	"simple-blog/core"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := core.Load()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	repo, err := core.NewFilePostRepository(cfg.PostsFile)
	if err != nil {
		// A corrupt posts file is fatal at startup: refusing to run beats
		// silently replacing the operator's data with an empty collection.
		log.Fatalf("failed to open post store: %v", err)
	}

	if err := core.BootstrapDevAdmin(&cfg); err != nil {
		log.Fatalf("dev admin bootstrap failed: %v", err)
	}
	if cfg.AdminPasswordHash == "" {
		log.Printf("no admin password hash configured; admin login is disabled")
	}
	credentials := core.NewCredentialStore(cfg)

	var sessionStore core.SessionStore
	sessionStoreKind := "memory"
	if cfg.RedisURL != "" {
		redisClient, err := core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
		sessionStore = core.NewRedisSessionStore(redisClient)
		sessionStoreKind = "redis"
	} else {
		sessionStore = core.NewMemorySessionStore()
	}
	gate := core.NewSessionGate([]byte(cfg.SessionKey), sessionStore, cfg.SessionTTL)

	// Gorilla cookie store for session transport.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	router := core.NewRouter(cfg, store, credentials, gate, repo, sessionStoreKind)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s (posts file: %s, sessions: %s)", addr, cfg.PostsFile, sessionStoreKind)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
