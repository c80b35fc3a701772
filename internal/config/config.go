package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the auth service configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	Port        string
	Issuer      string
	TokenTTL    time.Duration
	OTPTTL      time.Duration
	// PEM-encoded RSA private key, or a path to a PEM file. In DevMode an
	// ephemeral key is generated when both are empty.
	PrivateKeyPEM  string
	PrivateKeyFile string
	DevMode        bool
}

// GatewayConfig holds the gateway configuration
type GatewayConfig struct {
	Port         string
	JWKSURL      string
	AuthURL      string
	UpstreamURL  string
	JWKSCacheTTL time.Duration
	FetchTimeout time.Duration
}

// Load reads the auth service configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:     "8080", // default port
		Issuer:   "agrisetu-auth",
		TokenTTL: 24 * time.Hour,
		OTPTTL:   5 * time.Minute,
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DevMode = os.Getenv("DEV_MODE") == "true"
	if cfg.RedisURL == "" && !cfg.DevMode {
		return nil, fmt.Errorf("REDIS_URL environment variable is required (or set DEV_MODE=true)")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if iss := os.Getenv("ISSUER"); iss != "" {
		cfg.Issuer = iss
	}
	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}
	if ttl := os.Getenv("OTP_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid OTP_TTL: %w", err)
		}
		cfg.OTPTTL = d
	}

	cfg.PrivateKeyPEM = os.Getenv("RSA_PRIVATE_KEY_PEM")
	cfg.PrivateKeyFile = os.Getenv("RSA_PRIVATE_KEY_FILE")
	if cfg.PrivateKeyPEM == "" && cfg.PrivateKeyFile == "" && !cfg.DevMode {
		return nil, fmt.Errorf("RSA_PRIVATE_KEY_PEM or RSA_PRIVATE_KEY_FILE is required (or set DEV_MODE=true)")
	}

	return cfg, nil
}

// LoadGateway reads the gateway configuration from environment variables
func LoadGateway() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		Port:         "8081",
		JWKSCacheTTL: 5 * time.Minute,
		FetchTimeout: 5 * time.Second,
	}

	jwksURL := os.Getenv("JWKS_URL")
	if jwksURL == "" {
		return nil, fmt.Errorf("JWKS_URL environment variable is required")
	}
	cfg.JWKSURL = jwksURL

	authURL := os.Getenv("AUTH_SERVICE_URL")
	if authURL == "" {
		return nil, fmt.Errorf("AUTH_SERVICE_URL environment variable is required")
	}
	cfg.AuthURL = authURL

	upstreamURL := os.Getenv("UPSTREAM_URL")
	if upstreamURL == "" {
		return nil, fmt.Errorf("UPSTREAM_URL environment variable is required")
	}
	cfg.UpstreamURL = upstreamURL

	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		cfg.Port = port
	}
	if ttl := os.Getenv("JWKS_CACHE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid JWKS_CACHE_TTL: %w", err)
		}
		cfg.JWKSCacheTTL = d
	}

	return cfg, nil
}
