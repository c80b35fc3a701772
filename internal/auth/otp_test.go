package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisetu/platform/internal/kvstore"
)

func TestOtp_SingleUse(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	otp := NewOtpService(store, 5*time.Minute)

	code, err := otp.RequestOTP(ctx, "9000000001")
	require.NoError(t, err)
	require.Len(t, code, otpLength)

	// The stored code is what the delivery channel would send.
	stored, err := store.Get(ctx, "otp:9000000001")
	require.NoError(t, err)
	require.Equal(t, code, stored)

	require.NoError(t, otp.VerifyOTP(ctx, "9000000001", code))

	err = otp.VerifyOTP(ctx, "9000000001", code)
	assert.ErrorIs(t, err, ErrInvalidOTP, "a validated code must be single-use")
}

func TestOtp_NeverRequested(t *testing.T) {
	otp := NewOtpService(kvstore.NewMemory(), 5*time.Minute)
	err := otp.VerifyOTP(context.Background(), "9000000002", "123456")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestOtp_WrongCodeRetainsSession(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	otp := NewOtpService(store, 5*time.Minute)

	code, err := otp.RequestOTP(ctx, "9000000003")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	assert.ErrorIs(t, otp.VerifyOTP(ctx, "9000000003", wrong), ErrInvalidOTP)

	// The legitimate holder can still succeed.
	assert.NoError(t, otp.VerifyOTP(ctx, "9000000003", code))
}

func TestOtp_AttemptLimitInvalidatesCode(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	otp := NewOtpService(store, 5*time.Minute)

	code, err := otp.RequestOTP(ctx, "9000000004")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	for i := 0; i < maxAttempts; i++ {
		assert.ErrorIs(t, otp.VerifyOTP(ctx, "9000000004", wrong), ErrInvalidOTP)
	}

	// The correct code is dead after the attempt limit.
	assert.ErrorIs(t, otp.VerifyOTP(ctx, "9000000004", code), ErrInvalidOTP)
}

func TestOtp_Expiry(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	otp := NewOtpService(store, 5*time.Minute)

	code, err := otp.RequestOTP(ctx, "9000000005")
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	err = otp.VerifyOTP(ctx, "9000000005", code)
	assert.ErrorIs(t, err, ErrInvalidOTP, "expired codes must be indistinguishable from absent codes")
}

func TestOtp_NewRequestOverwritesPriorCode(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	otp := NewOtpService(store, 5*time.Minute)

	first, err := otp.RequestOTP(ctx, "9000000006")
	require.NoError(t, err)
	second, err := otp.RequestOTP(ctx, "9000000006")
	require.NoError(t, err)

	if first != second {
		assert.ErrorIs(t, otp.VerifyOTP(ctx, "9000000006", first), ErrInvalidOTP)
	}
	assert.NoError(t, otp.VerifyOTP(ctx, "9000000006", second))
}

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateCode(otpLength)
		require.NoError(t, err)
		require.Len(t, code, otpLength)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "code must be numeric, got %q", code)
		}
	}
}
