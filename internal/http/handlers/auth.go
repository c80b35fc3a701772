package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/agrisetu/platform/internal/auth"
	"github.com/agrisetu/platform/internal/middleware"
	"github.com/agrisetu/platform/internal/model"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service         *auth.Service
	ipLimiter       *middleware.RateLimiter
	phoneLimiter    *middleware.RateLimiter
	verifyIPLimiter *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler.
// IP rate limiters: 10 per 10min for OTP-sending endpoints, 20 per 10min for
// verification; phone limit: 3 OTP sends per 10min per number.
func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{
		service:         service,
		ipLimiter:       middleware.NewRateLimiter(10*time.Minute, 10),
		phoneLimiter:    middleware.NewRateLimiter(10*time.Minute, 3),
		verifyIPLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// verifyOTPRequest is the request body for POST /auth/verify-otp
type verifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

// loginRequest is the request body for POST /auth/login. Exactly one of the
// two field groups must be populated.
type loginRequest struct {
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Code        string `json:"code,omitempty"`
}

// requestLoginOTPRequest is the request body for POST /auth/request-login-otp
type requestLoginOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// tokenResponse is the JSON response carrying issued credentials
type tokenResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	User         identityResponse `json:"user"`
}

// identityResponse is the identity object in API responses
type identityResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
	Verified    bool   `json:"verified"`
}

func toIdentityResponse(identity model.Identity) identityResponse {
	return identityResponse{
		ID:          identity.ID.String(),
		Username:    identity.Username,
		Email:       identity.Email,
		PhoneNumber: identity.PhoneNumber,
		Role:        string(identity.Role),
		Verified:    identity.Verified,
	}
}

// HandleRegister handles POST /auth/register. It stages the registration and
// sends an OTP; no durable record is created here.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Role = strings.TrimSpace(req.Role)

	if req.Username == "" || req.Email == "" || req.PhoneNumber == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username, email, phone_number, and password are required")
		return
	}
	role := model.Role(req.Role)
	if role == "" {
		role = model.RoleFarmer
	}
	if !model.ValidRole(role) {
		respondWithError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) || !h.phoneLimiter.Allow(middleware.GetPhoneKey(req.PhoneNumber)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	err := h.service.Register(r.Context(), auth.RegistrationRequest{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Role:        role,
	})
	if err != nil {
		h.respondWithServiceError(w, req.PhoneNumber, "registration failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "otp_sent"})
}

// HandleVerifyOTP handles POST /auth/verify-otp. A valid code commits the
// staged registration and returns the first token pair.
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Code = strings.TrimSpace(req.Code)
	if req.PhoneNumber == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "phone_number and code are required")
		return
	}

	if !h.verifyIPLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	identity, err := h.service.CommitRegistration(r.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		h.respondWithServiceError(w, req.PhoneNumber, "OTP verification failed", err)
		return
	}

	// The identity was just created under OTP proof; issue tokens directly
	// instead of replaying a login path.
	tokens, err := h.service.IssueFor(r.Context(), identity)
	if err != nil {
		logMaskedPhone(req.PhoneNumber, "token issuance failed", err)
		respondWithError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "bearer",
		User:         toIdentityResponse(identity),
	})
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.service.Login(r.Context(), auth.LoginRequest{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Phone:    strings.TrimSpace(req.PhoneNumber),
		Code:     strings.TrimSpace(req.Code),
	})
	if err != nil {
		h.respondWithServiceError(w, req.PhoneNumber, "login failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		User:         toIdentityResponse(pair.Identity),
	})
}

// HandleRequestLoginOTP handles POST /auth/request-login-otp
func (h *AuthHandler) HandleRequestLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req requestLoginOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" {
		respondWithError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) || !h.phoneLimiter.Allow(middleware.GetPhoneKey(req.PhoneNumber)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := h.service.RequestLoginOTP(r.Context(), req.PhoneNumber); err != nil {
		h.respondWithServiceError(w, req.PhoneNumber, "login OTP request failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "otp_sent"})
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenReuseDetected) {
			respondWithError(w, http.StatusUnauthorized, "refresh_token_reuse_detected")
			return
		}
		respondWithError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		User:         toIdentityResponse(pair.Identity),
	})
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe handles GET /me (protected). Returns the authenticated identity.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	identity, err := h.service.GetIdentity(r.Context(), claims.Subject)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "identity not found")
		return
	}

	respondWithJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// HandleAdminCreate handles POST /admin/users (ADMIN only). Creates an
// identity directly, marked verified, skipping the OTP flow.
func (h *AuthHandler) HandleAdminCreate(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	role := model.Role(strings.TrimSpace(req.Role))

	if req.Username == "" || req.Email == "" || req.PhoneNumber == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username, email, phone_number, and password are required")
		return
	}
	if !model.ValidRole(role) {
		respondWithError(w, http.StatusBadRequest, "invalid role")
		return
	}

	identity, err := h.service.AdminCreate(r.Context(), auth.RegistrationRequest{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Role:        role,
	})
	if err != nil {
		h.respondWithServiceError(w, req.PhoneNumber, "admin create failed", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

// respondWithServiceError maps service errors onto HTTP responses. State and
// timing failures keep their specific, user-actionable messages; credential
// failures stay uniform.
func (h *AuthHandler) respondWithServiceError(w http.ResponseWriter, phone, logMsg string, err error) {
	logMaskedPhone(phone, logMsg, err)
	switch {
	case errors.Is(err, auth.ErrLoginMethodAmbiguous):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidOTP):
		respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrRegistrationNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrPhoneTaken):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrIdentityDisabled):
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// logMaskedPhone logs a message with masked phone number
func logMaskedPhone(phone, msg string, err error) {
	log.Printf("Phone %s: %s: %v", maskPhone(phone), msg, err)
}

// maskPhone masks a phone number for logging (e.g., +49******89)
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
