package handlers

import (
	"net/http"

	"github.com/agrisetu/platform/internal/keys"
)

// WellKnownHandler serves the verification and discovery documents. Both are
// pure functions of startup-loaded key material and static configuration.
type WellKnownHandler struct {
	jwks      keys.JWKS
	discovery keys.Discovery
}

// NewWellKnownHandler creates the handler for the /.well-known endpoints.
func NewWellKnownHandler(kp *keys.KeyPair, issuer, baseURL string) *WellKnownHandler {
	return &WellKnownHandler{
		jwks:      kp.JWKS(),
		discovery: keys.NewDiscovery(issuer, baseURL),
	}
}

// HandleJWKS handles GET /.well-known/jwks.json
func (h *WellKnownHandler) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.jwks)
}

// HandleDiscovery handles GET /.well-known/openid-configuration
func (h *WellKnownHandler) HandleDiscovery(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.discovery)
}
