package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisetu/platform/internal/keys"
	"github.com/agrisetu/platform/internal/kvstore"
	"github.com/agrisetu/platform/internal/model"
)

type serviceFixture struct {
	service    *Service
	identities *fakeIdentityRepo
	refresh    *fakeRefreshRepo
	store      *kvstore.Memory
	sender     *captureSender
	issuer     *Issuer
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	kp, err := keys.Generate()
	require.NoError(t, err)

	f := &serviceFixture{
		identities: newFakeIdentityRepo(),
		refresh:    newFakeRefreshRepo(),
		store:      kvstore.NewMemory(),
		sender:     &captureSender{},
		issuer:     NewIssuer(kp, "agrisetu-auth", time.Hour),
	}
	otp := NewOtpService(f.store, 5*time.Minute)
	f.service = NewService(f.identities, f.refresh, f.store, otp, f.issuer, f.sender, 5*time.Minute)
	return f
}

func farmerRegistration(phone string) RegistrationRequest {
	return RegistrationRequest{
		Username:    "ramesh",
		Email:       "ramesh@example.com",
		PhoneNumber: phone,
		Password:    "s3cret-pass",
		Role:        model.RoleFarmer,
	}
}

func TestRegistration_CommitOrdering(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	require.NoError(t, f.service.Register(ctx, farmerRegistration("9999999999")))
	assert.Equal(t, 0, f.identities.count(), "register must not create a durable record")

	phone, code := f.sender.last()
	require.Equal(t, "9999999999", phone)
	require.Len(t, code, otpLength)

	identity, err := f.service.CommitRegistration(ctx, "9999999999", code)
	require.NoError(t, err)
	assert.True(t, identity.Verified)
	assert.True(t, identity.Active)
	assert.Equal(t, "ramesh", identity.Username)
	assert.Equal(t, model.RoleFarmer, identity.Role)
	assert.Equal(t, 1, f.identities.count(), "exactly one durable record")

	// A fresh OTP cannot resurrect the consumed staged payload.
	otp := NewOtpService(f.store, 5*time.Minute)
	newCode, err := otp.RequestOTP(ctx, "9999999999")
	require.NoError(t, err)
	_, err = f.service.CommitRegistration(ctx, "9999999999", newCode)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)
	assert.Equal(t, 1, f.identities.count())
}

func TestRegistration_WrongCodeDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	require.NoError(t, f.service.Register(ctx, farmerRegistration("9000000010")))
	_, code := f.sender.last()

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	_, err := f.service.CommitRegistration(ctx, "9000000010", wrong)
	assert.ErrorIs(t, err, ErrInvalidOTP)
	assert.Equal(t, 0, f.identities.count())

	// The staged payload survives a wrong code; the right one still commits.
	_, err = f.service.CommitRegistration(ctx, "9000000010", code)
	require.NoError(t, err)
}

func TestRegistration_StageRejectsTakenUsername(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	f.identities.put(model.Identity{
		Username:    "ramesh",
		Email:       "other@example.com",
		PhoneNumber: "9000000021",
		Role:        model.RoleFarmer,
		Active:      true,
		Verified:    true,
	})

	err := f.service.Register(ctx, farmerRegistration("9000000020"))
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegistration_CommitTimeUniquenessConflict(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	require.NoError(t, f.service.Register(ctx, farmerRegistration("9000000030")))
	_, code := f.sender.last()

	// The username is claimed between staging and commit.
	f.identities.put(model.Identity{
		Username:    "ramesh",
		Email:       "other@example.com",
		PhoneNumber: "9000000031",
		Role:        model.RoleFarmer,
		Active:      true,
		Verified:    true,
	})

	_, err := f.service.CommitRegistration(ctx, "9000000030", code)
	assert.ErrorIs(t, err, ErrUsernameTaken)

	// The conflicting stage is deleted; retrying cannot resurrect it.
	otp := NewOtpService(f.store, 5*time.Minute)
	newCode, err := otp.RequestOTP(ctx, "9000000030")
	require.NoError(t, err)
	_, err = f.service.CommitRegistration(ctx, "9000000030", newCode)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestRegistration_StagedPayloadExpires(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return now })

	require.NoError(t, f.service.Register(ctx, farmerRegistration("9000000040")))
	_, code := f.sender.last()

	now = now.Add(6 * time.Minute)
	_, err := f.service.CommitRegistration(ctx, "9000000040", code)
	assert.ErrorIs(t, err, ErrInvalidOTP, "OTP and payload share the TTL; the OTP check fails first")
}

func TestRegistration_ReRegisterOverwritesStage(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	require.NoError(t, f.service.Register(ctx, farmerRegistration("9000000050")))

	second := farmerRegistration("9000000050")
	second.Username = "suresh"
	second.Email = "suresh@example.com"
	require.NoError(t, f.service.Register(ctx, second))
	_, code := f.sender.last()

	identity, err := f.service.CommitRegistration(ctx, "9000000050", code)
	require.NoError(t, err)
	assert.Equal(t, "suresh", identity.Username, "a new registration attempt replaces the staged payload")
}
