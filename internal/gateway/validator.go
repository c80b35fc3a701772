package gateway

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agrisetu/platform/internal/keys"
)

// Rejection reasons. Logged for auditing; the caller-facing response is a
// uniform "unauthorized" regardless of which one occurred.
var (
	ErrNoKeyID          = errors.New("no key id")
	ErrKeyNotFound      = errors.New("key not found")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("expired")
	ErrUnauthorized     = errors.New("unauthorized")
)

// Identity is the validated result the gateway forwards downstream.
type Identity struct {
	UserID   string
	Username string
	Roles    []string
}

type gatewayClaims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Validator verifies inbound bearer tokens against the verification document
// published by the issuer, fetched over HTTP and cached with a TTL. It runs
// in a different process than the issuer and trusts no claim it has not
// independently verified.
type Validator struct {
	jwksURL string
	cache   *keySetCache
	client  *http.Client
	now     func() time.Time
}

// NewValidator creates a validator fetching the verification document from
// jwksURL. The cache holds at most maxEntries documents for cacheTTL each;
// fetches are bounded by fetchTimeout.
func NewValidator(jwksURL string, cacheTTL, fetchTimeout time.Duration, maxEntries int) *Validator {
	return &Validator{
		jwksURL: jwksURL,
		cache:   newKeySetCache(cacheTTL, maxEntries),
		client:  &http.Client{Timeout: fetchTimeout},
		now:     time.Now,
	}
}

// Authorize validates a raw bearer token and returns the identity it proves.
// Every failure denies: "cannot prove validity" and "proven invalid" are
// treated identically.
func (v *Validator) Authorize(ctx context.Context, rawToken string) (Identity, error) {
	claims := &gatewayClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrNoKeyID
		}
		return v.resolveKey(ctx, kid)
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())

	if err != nil {
		switch {
		case errors.Is(err, ErrNoKeyID):
			return Identity{}, ErrNoKeyID
		case errors.Is(err, ErrKeyNotFound):
			return Identity{}, ErrKeyNotFound
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Identity{}, ErrInvalidSignature
		default:
			// Malformed token, fetch failure, missing exp: deny generically.
			return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	if !token.Valid {
		return Identity{}, ErrInvalidSignature
	}

	return Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Roles:    claims.Roles,
	}, nil
}

// resolveKey looks up the public key for kid, consulting the cache first.
// An unknown kid in a cached document triggers a refetch, which is how a
// rotated-in key becomes visible before the TTL elapses.
func (v *Validator) resolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if cached, ok := v.cache.get(keySetCacheKey); ok {
		if key, exists := cached[kid]; exists {
			return key, nil
		}
	}

	fetched, err := v.fetchKeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch verification document: %w", err)
	}
	v.cache.put(keySetCacheKey, fetched)

	key, exists := fetched[kid]
	if !exists {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// fetchKeySet retrieves and parses the JWKS document. The response body is
// limited to 1 MB.
func (v *Validator) fetchKeySet(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var doc keys.JWKS
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}

	keySet := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pub, err := keys.ParseJWK(k)
		if err != nil {
			continue // skip malformed keys
		}
		keySet[k.Kid] = pub
	}
	return keySet, nil
}
