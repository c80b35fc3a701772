package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/agrisetu/platform/internal/kvstore"
)

const (
	otpLength   = 6
	maxAttempts = 5

	otpKeyPrefix      = "otp:"
	attemptsKeyPrefix = "otp_attempts:"
)

// ErrInvalidOTP covers every OTP rejection a caller can act on: never set,
// TTL-expired, wrong code, or attempt limit reached. The cases are not
// distinguished in the message.
var ErrInvalidOTP = errors.New("invalid or expired OTP")

// OtpService generates and validates one-time codes against the ephemeral
// store. Codes are scoped per phone number; collisions across different
// phones are expected and harmless.
type OtpService struct {
	store kvstore.Store
	ttl   time.Duration
}

// NewOtpService creates an OTP service writing codes with the given TTL.
func NewOtpService(store kvstore.Store, ttl time.Duration) *OtpService {
	return &OtpService{store: store, ttl: ttl}
}

// RequestOTP generates a fresh code for the phone number, overwriting any
// prior live code, and resets the attempt counter. The plaintext code is
// returned only so the delivery channel (SMS provider) can send it; it is
// never logged.
func (s *OtpService) RequestOTP(ctx context.Context, phone string) (string, error) {
	code, err := generateCode(otpLength)
	if err != nil {
		return "", fmt.Errorf("generate OTP: %w", err)
	}
	if err := s.store.Set(ctx, otpKeyPrefix+phone, code, s.ttl); err != nil {
		return "", fmt.Errorf("store OTP: %w", err)
	}
	if err := s.store.Delete(ctx, attemptsKeyPrefix+phone); err != nil {
		return "", fmt.Errorf("reset attempt counter: %w", err)
	}
	return code, nil
}

// VerifyOTP checks code against the stored one. On match the code is deleted
// (single use). On mismatch the code is retained and the attempt counter
// incremented; at maxAttempts the code is invalidated.
func (s *OtpService) VerifyOTP(ctx context.Context, phone, code string) error {
	stored, err := s.store.Get(ctx, otpKeyPrefix+phone)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return ErrInvalidOTP
		}
		return fmt.Errorf("read OTP: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		if err := s.recordFailedAttempt(ctx, phone); err != nil {
			return err
		}
		return ErrInvalidOTP
	}

	if err := s.store.Delete(ctx, otpKeyPrefix+phone); err != nil {
		return fmt.Errorf("consume OTP: %w", err)
	}
	_ = s.store.Delete(ctx, attemptsKeyPrefix+phone)
	return nil
}

func (s *OtpService) recordFailedAttempt(ctx context.Context, phone string) error {
	attempts := 0
	if raw, err := s.store.Get(ctx, attemptsKeyPrefix+phone); err == nil {
		attempts, _ = strconv.Atoi(raw)
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("read attempt counter: %w", err)
	}

	attempts++
	if attempts >= maxAttempts {
		_ = s.store.Delete(ctx, otpKeyPrefix+phone)
		_ = s.store.Delete(ctx, attemptsKeyPrefix+phone)
		return nil
	}
	if err := s.store.Set(ctx, attemptsKeyPrefix+phone, strconv.Itoa(attempts), s.ttl); err != nil {
		return fmt.Errorf("store attempt counter: %w", err)
	}
	return nil
}

// generateCode returns n uniformly random decimal digits.
func generateCode(n int) (string, error) {
	max := big.NewInt(10)
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}
