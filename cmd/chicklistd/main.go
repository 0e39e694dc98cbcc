package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chicklist/internal/database"
	"chicklist/internal/docstore"
	"chicklist/internal/identity"
	"chicklist/internal/logging"
	"chicklist/internal/server"
	"chicklist/internal/sync"
)

func main() {
	logger := logging.Setup(os.Getenv("CHICKLIST_LOG_LEVEL"), os.Getenv("CHICKLIST_LOG_FORMAT"))

	port := os.Getenv("CHICKLIST_PORT")
	if port == "" {
		port = "8080"
	}

	secret := os.Getenv("CHICKLIST_AUTH_SECRET")
	if secret == "" {
		log.Fatal("CHICKLIST_AUTH_SECRET is required")
	}

	hash := os.Getenv("CHICKLIST_PASSPHRASE_HASH")
	if hash == "" {
		if passphrase := os.Getenv("CHICKLIST_PASSPHRASE"); passphrase != "" {
			h, err := identity.HashPassphrase(passphrase)
			if err != nil {
				log.Fatalf("hash passphrase: %v", err)
			}
			hash = h
		}
	}
	if hash == "" {
		log.Fatal("CHICKLIST_PASSPHRASE_HASH or CHICKLIST_PASSPHRASE is required")
	}

	// Redis backend when configured, sqlite otherwise.
	var store docstore.Store
	if redisURL := os.Getenv("CHICKLIST_REDIS_URL"); redisURL != "" {
		rs, err := docstore.NewRedisStore(redisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		store = rs
		logger.Info("document store", "backend", "redis")
	} else {
		dbPath := os.Getenv("CHICKLIST_DB_PATH")
		if dbPath == "" {
			dbPath = "chicklist.db"
		}
		db, err := database.Open(dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		store = docstore.NewSQLiteStore(db)
		logger.Info("document store", "backend", "sqlite", "path", dbPath)
	}

	idsvc := identity.NewService(identity.Config{
		Secret:         []byte(secret),
		PassphraseHash: hash,
	})

	srv := server.New(store, idsvc, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Expired rate-limit entries accumulate without this.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			srv.RateLimiter().Cleanup()
		}
	}()

	go func() {
		fmt.Printf("ChickList daemon running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	srv.Hub().Broadcast(sync.Envelope{ID: sync.NewID(), Type: sync.TypeError, Error: "server shutting down"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
