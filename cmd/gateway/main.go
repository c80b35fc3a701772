package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/agrisetu/platform/internal/config"
	"github.com/agrisetu/platform/internal/gateway"
)

// jwksCacheMaxEntries bounds the verification-document cache. One global key
// set is in use today; headroom covers a later per-issuer split.
const jwksCacheMaxEntries = 16

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	validator := gateway.NewValidator(cfg.JWKSURL, cfg.JWKSCacheTTL, cfg.FetchTimeout, jwksCacheMaxEntries)

	authProxy, err := gateway.NewProxy(cfg.AuthURL)
	if err != nil {
		log.Fatalf("Failed to build auth proxy: %v", err)
	}
	upstreamProxy, err := gateway.NewProxy(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("Failed to build upstream proxy: %v", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	// Auth and key-discovery endpoints pass through without validation;
	// everything else requires a proven bearer token.
	r.Handle("/auth/*", authProxy)
	r.Handle("/.well-known/*", authProxy)
	r.With(validator.Middleware).Handle("/*", upstreamProxy)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Gateway starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Gateway failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Gateway forced to shutdown: %v", err)
	}

	log.Println("Gateway exited")
}
