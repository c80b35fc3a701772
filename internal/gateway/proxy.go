package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// Identity headers set only by the gateway after successful validation.
// Downstream services treat absence of HeaderUserID as unauthenticated.
const (
	HeaderUserID   = "X-User-Id"
	HeaderRoles    = "X-User-Roles"
	HeaderUsername = "X-Username"
)

// NewProxy builds a reverse proxy to the given upstream base URL.
func NewProxy(upstream string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", upstream, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error for %s %s: %v", r.Method, r.URL.Path, err)
		respondWithError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy, nil
}

// Middleware enforces bearer validation on every routed request. Inbound
// identity headers are always stripped so a client cannot forge them; on
// success the validated identity is attached as trusted headers.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderUserID)
		r.Header.Del(HeaderRoles)
		r.Header.Del(HeaderUsername)

		rawToken, ok := bearerToken(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		identity, err := v.Authorize(r.Context(), rawToken)
		if err != nil {
			// Specific reason for the audit log only; the response stays
			// uniform so verification internals do not leak.
			log.Printf("authorization rejected for %s %s: %v", r.Method, r.URL.Path, err)
			respondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		r.Header.Set(HeaderUserID, identity.UserID)
		r.Header.Set(HeaderRoles, strings.Join(identity.Roles, ","))
		r.Header.Set(HeaderUsername, identity.Username)

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
