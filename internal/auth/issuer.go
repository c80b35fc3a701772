package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agrisetu/platform/internal/keys"
)

// Tagged validation failure reasons. Each distinct proof-failure cause gets
// its own sentinel for audit logging; callers collapse them to a uniform
// response.
var (
	ErrTokenUnparsable = errors.New("token unparsable")
	ErrBadSignature    = errors.New("invalid signature")
	ErrIssuerMismatch  = errors.New("issuer mismatch")
	ErrTokenExpired    = errors.New("token expired")
)

// Claims is the signed claim set embedded in every issued token.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issuer mints RS256-signed bearer tokens. It holds the only reference to
// the private key half; verifiers work from the published JWKS.
type Issuer struct {
	keyPair  *rsa.PrivateKey
	keyID    string
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time
}

// NewIssuer creates a token issuer for the given key pair and issuer string.
func NewIssuer(kp *keys.KeyPair, issuer string, tokenTTL time.Duration) *Issuer {
	return &Issuer{
		keyPair:  kp.Private,
		keyID:    kp.KeyID,
		issuer:   issuer,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// Issue signs a token for the subject with the active key. The key identifier
// is stamped into the token header so a verifier can select the matching
// public key from the JWKS.
func (s *Issuer) Issue(subjectID uuid.UUID, username string, roles []string) (string, error) {
	now := s.now()
	claims := &Claims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	tokenString, err := token.SignedString(s.keyPair)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Validate verifies a token against the local public key: signature, issuer
// string, and expiry. Used by the auth service itself; the gateway verifies
// independently via the published JWKS.
func (s *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &s.keyPair.PublicKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenUnparsable, err)
		}
	}
	if !token.Valid {
		return nil, ErrBadSignature
	}
	if claims.Issuer != s.issuer {
		return nil, ErrIssuerMismatch
	}
	return claims, nil
}
