package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/agrisetu/platform/internal/kvstore"
	"github.com/agrisetu/platform/internal/model"
	"github.com/agrisetu/platform/internal/repo"
)

const refreshTokenExpiry = 30 * 24 * time.Hour

var (
	// ErrLoginMethodAmbiguous rejects requests that supply both or neither
	// of the password and OTP login paths, before any store is touched.
	ErrLoginMethodAmbiguous = errors.New("exactly one login method must be provided")
	// ErrInvalidCredentials is the uniform rejection for bad password-path
	// and unknown-identity failures.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIdentityDisabled rejects identities that exist but are not active
	// and verified.
	ErrIdentityDisabled = errors.New("identity is not active or verified")
	// ErrRefreshTokenReuseDetected signals a revoked refresh token was
	// presented again; all sessions for the identity are revoked in response.
	ErrRefreshTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrInvalidRefreshToken is the uniform rejection for unknown, expired,
	// or revoked refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// Sender delivers a one-time code to a phone number. The SMS provider is an
// external collaborator; the dev implementation just logs a masked line.
type Sender interface {
	Send(phone, code string)
}

// LogSender logs OTP delivery without the code (or with it, in dev mode).
type LogSender struct {
	DevMode bool
}

// Send logs the delivery. The plaintext code is only emitted in dev mode.
func (l LogSender) Send(phone, code string) {
	if l.DevMode {
		log.Printf("OTP for %s: %s", maskPhone(phone), code)
		return
	}
	log.Printf("OTP sent to %s", maskPhone(phone))
}

// Service orchestrates registration, login, and token lifecycle operations.
type Service struct {
	identities repo.IdentityRepo
	refresh    repo.RefreshRepo
	store      kvstore.Store
	otp        *OtpService
	issuer     *Issuer
	sender     Sender
	otpTTL     time.Duration
}

// NewService creates the auth service.
func NewService(
	identities repo.IdentityRepo,
	refresh repo.RefreshRepo,
	store kvstore.Store,
	otp *OtpService,
	issuer *Issuer,
	sender Sender,
	otpTTL time.Duration,
) *Service {
	return &Service{
		identities: identities,
		refresh:    refresh,
		store:      store,
		otp:        otp,
		issuer:     issuer,
		sender:     sender,
		otpTTL:     otpTTL,
	}
}

// LoginRequest carries both login paths; exactly one must be populated.
type LoginRequest struct {
	Username string
	Email    string
	Password string
	Phone    string
	Code     string
}

// TokenPair is the result of a successful login, OTP commit, or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Identity     model.Identity
}

// Login authenticates via exactly one of the two paths: username/email +
// password, or phone + OTP code. Supplying both or neither is rejected
// before any store access.
func (s *Service) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	passwordPath := req.Password != "" && (req.Email != "" || req.Username != "")
	otpPath := req.Phone != "" && req.Code != ""

	if passwordPath == otpPath {
		return TokenPair{}, ErrLoginMethodAmbiguous
	}
	if passwordPath && (req.Phone != "" || req.Code != "") {
		return TokenPair{}, ErrLoginMethodAmbiguous
	}
	if otpPath && (req.Password != "" || req.Email != "" || req.Username != "") {
		return TokenPair{}, ErrLoginMethodAmbiguous
	}

	if passwordPath {
		return s.loginWithPassword(ctx, req)
	}
	return s.loginWithOTP(ctx, req.Phone, req.Code)
}

func (s *Service) loginWithPassword(ctx context.Context, req LoginRequest) (TokenPair, error) {
	var identity model.Identity
	var err error
	if req.Email != "" {
		identity, err = s.identities.GetByEmail(ctx, req.Email)
	} else {
		identity, err = s.identities.GetByUsername(ctx, req.Username)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("lookup identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !identity.Active || !identity.Verified {
		return TokenPair{}, ErrIdentityDisabled
	}

	return s.issueTokens(ctx, identity)
}

func (s *Service) loginWithOTP(ctx context.Context, phone, code string) (TokenPair, error) {
	if err := s.otp.VerifyOTP(ctx, phone, code); err != nil {
		return TokenPair{}, err
	}

	identity, err := s.identities.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !identity.Active || !identity.Verified {
		return TokenPair{}, ErrIdentityDisabled
	}

	return s.issueTokens(ctx, identity)
}

// RequestLoginOTP sends a login OTP. It requires an existing, active,
// verified identity for the phone number.
func (s *Service) RequestLoginOTP(ctx context.Context, phone string) error {
	identity, err := s.identities.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("lookup identity: %w", err)
	}
	if !identity.Active || !identity.Verified {
		return ErrIdentityDisabled
	}

	code, err := s.otp.RequestOTP(ctx, phone)
	if err != nil {
		return err
	}
	s.deliverOTP(phone, code)
	return nil
}

// Refresh rotates a refresh token and issues a new access token. Presenting
// a revoked token is treated as theft: every session for the identity is
// revoked and ErrRefreshTokenReuseDetected returned.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	hash := HashRefreshToken(refreshToken)

	session, err := s.refresh.FindByTokenHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, repo.ErrSessionNotFound) {
			return TokenPair{}, fmt.Errorf("find session: %w", err)
		}
		stale, staleErr := s.refresh.FindByTokenHashIncludeRevoked(ctx, hash)
		if staleErr == nil && stale.RevokedAt != nil {
			_ = s.refresh.RevokeAllForIdentity(ctx, stale.IdentityID)
			return TokenPair{}, ErrRefreshTokenReuseDetected
		}
		return TokenPair{}, ErrInvalidRefreshToken
	}

	identity, err := s.identities.GetByID(ctx, session.IdentityID)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if !identity.Active {
		return TokenPair{}, ErrIdentityDisabled
	}

	pair, err := s.issueTokens(ctx, identity)
	if err != nil {
		return TokenPair{}, err
	}

	newSession, err := s.refresh.FindByTokenHash(ctx, HashRefreshToken(pair.RefreshToken))
	if err != nil {
		return TokenPair{}, fmt.Errorf("find rotated session: %w", err)
	}
	if err := s.refresh.RevokeAndSetReplacedBy(ctx, session.ID, newSession.ID); err != nil {
		return TokenPair{}, fmt.Errorf("revoke replaced session: %w", err)
	}
	return pair, nil
}

// Logout revokes the refresh session for the given token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.refresh.FindByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return ErrInvalidRefreshToken
	}
	return s.refresh.Revoke(ctx, session.ID)
}

// AdminCreate creates an identity directly, skipping the OTP flow. The
// record is marked verified immediately. Exposed only behind the ADMIN role.
func (s *Service) AdminCreate(ctx context.Context, req RegistrationRequest) (model.Identity, error) {
	if err := s.checkUniqueness(ctx, req.Username, req.Email, req.PhoneNumber); err != nil {
		return model.Identity{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	identity, err := s.identities.Create(ctx, model.Identity{
		Username:     req.Username,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
		Verified:     true,
	})
	if err != nil {
		return model.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return identity, nil
}

// GetIdentity loads an identity by ID (used by the /me handler).
func (s *Service) GetIdentity(ctx context.Context, id string) (model.Identity, error) {
	parsed, err := parseIdentityID(id)
	if err != nil {
		return model.Identity{}, err
	}
	return s.identities.GetByID(ctx, parsed)
}

// IssueFor mints a token pair for an identity whose proof of control was
// just established (e.g. a committed registration).
func (s *Service) IssueFor(ctx context.Context, identity model.Identity) (TokenPair, error) {
	return s.issueTokens(ctx, identity)
}

func (s *Service) issueTokens(ctx context.Context, identity model.Identity) (TokenPair, error) {
	accessToken, err := s.issuer.Issue(identity.ID, identity.Username, []string{string(identity.Role)})
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, hashHex, err := GenerateRefreshToken()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if _, err := s.refresh.Create(ctx, identity.ID, hashHex, time.Now().Add(refreshTokenExpiry)); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh session: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Identity:     identity,
	}, nil
}

func (s *Service) deliverOTP(phone, code string) {
	if s.sender != nil {
		s.sender.Send(phone, code)
	}
}

func parseIdentityID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid identity id: %w", err)
	}
	return parsed, nil
}

// maskPhone masks a phone number for logging (e.g., +49******89)
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	prefix := phone[:2]
	suffix := phone[len(phone)-2:]
	return prefix + strings.Repeat("*", len(phone)-4) + suffix
}
