package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/agrisetu/platform/internal/auth"
	"github.com/agrisetu/platform/internal/config"
	"github.com/agrisetu/platform/internal/db"
	httphandler "github.com/agrisetu/platform/internal/http"
	"github.com/agrisetu/platform/internal/http/handlers"
	"github.com/agrisetu/platform/internal/keys"
	"github.com/agrisetu/platform/internal/kvstore"
	"github.com/agrisetu/platform/internal/repo"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open ephemeral store: %v", err)
	}

	// Key material is loaded once; it lives for the process lifetime.
	keyPair, err := keys.Load(cfg)
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}
	log.Printf("Signing key loaded, kid=%s", keyPair.KeyID)

	identityRepo := repo.NewIdentityRepo(database)
	refreshRepo := repo.NewRefreshRepo(database)

	issuer := auth.NewIssuer(keyPair, cfg.Issuer, cfg.TokenTTL)
	otpService := auth.NewOtpService(store, cfg.OTPTTL)
	sender := auth.LogSender{DevMode: cfg.DevMode}
	authService := auth.NewService(identityRepo, refreshRepo, store, otpService, issuer, sender, cfg.OTPTTL)

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Port
	}

	authHandler := handlers.NewAuthHandler(authService)
	wellKnown := handlers.NewWellKnownHandler(keyPair, cfg.Issuer, baseURL)

	router := httphandler.NewRouter(authHandler, wellKnown, issuer)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Auth service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down auth service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Auth service exited")
}

// openStore connects the ephemeral state store: Redis normally, in-memory in
// dev mode when no REDIS_URL is configured.
func openStore(ctx context.Context, cfg *config.Config) (kvstore.Store, error) {
	if cfg.RedisURL != "" {
		return kvstore.NewRedis(ctx, cfg.RedisURL)
	}
	log.Println("DEV_MODE: using in-memory ephemeral store")
	return kvstore.NewMemory(), nil
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
