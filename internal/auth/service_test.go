package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisetu/platform/internal/model"
)

func (f *serviceFixture) createVerifiedFarmer(t *testing.T, phone string) model.Identity {
	t.Helper()
	identity, err := f.service.AdminCreate(context.Background(), RegistrationRequest{
		Username:    "ramesh",
		Email:       "ramesh@example.com",
		PhoneNumber: phone,
		Password:    "s3cret-pass",
		Role:        model.RoleFarmer,
	})
	require.NoError(t, err)
	return identity
}

func TestLogin_ExclusivePathEnforced(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	// Both paths populated.
	_, err := f.service.Login(ctx, LoginRequest{
		Email:    "ramesh@example.com",
		Password: "s3cret-pass",
		Phone:    "9000000001",
		Code:     "482913",
	})
	assert.ErrorIs(t, err, ErrLoginMethodAmbiguous)

	// Neither path populated.
	_, err = f.service.Login(ctx, LoginRequest{})
	assert.ErrorIs(t, err, ErrLoginMethodAmbiguous)

	// Partial mixes.
	_, err = f.service.Login(ctx, LoginRequest{Email: "ramesh@example.com", Password: "x", Code: "123456"})
	assert.ErrorIs(t, err, ErrLoginMethodAmbiguous)

	assert.Equal(t, 0, f.identities.callCount(), "ambiguous requests must be rejected before any store access")
}

func TestLogin_PasswordPath(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	created := f.createVerifiedFarmer(t, "9000000060")

	pair, err := f.service.Login(ctx, LoginRequest{Email: "ramesh@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, pair.Identity.ID)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := f.issuer.Validate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), claims.Subject)
	assert.Equal(t, "ramesh", claims.Username)
	assert.Equal(t, []string{"FARMER"}, claims.Roles)
}

func TestLogin_WrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.createVerifiedFarmer(t, "9000000061")

	_, err := f.service.Login(ctx, LoginRequest{Email: "ramesh@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownIdentity(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_OTPPathScenario(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	created := f.createVerifiedFarmer(t, "9000000001")

	require.NoError(t, f.service.RequestLoginOTP(ctx, "9000000001"))
	phone, code := f.sender.last()
	require.Equal(t, "9000000001", phone)

	pair, err := f.service.Login(ctx, LoginRequest{Phone: "9000000001", Code: code})
	require.NoError(t, err)
	assert.Equal(t, created.ID, pair.Identity.ID)

	// The same code a second time is dead.
	_, err = f.service.Login(ctx, LoginRequest{Phone: "9000000001", Code: code})
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestRequestLoginOTP_RequiresExistingVerifiedIdentity(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	err := f.service.RequestLoginOTP(ctx, "9000000070")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.identities.put(model.Identity{
		Username:    "unverified",
		Email:       "unverified@example.com",
		PhoneNumber: "9000000071",
		Role:        model.RoleFarmer,
		Active:      true,
		Verified:    false,
	})
	err = f.service.RequestLoginOTP(ctx, "9000000071")
	assert.ErrorIs(t, err, ErrIdentityDisabled)
}

func TestRefresh_RotationAndReuseDetection(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.createVerifiedFarmer(t, "9000000080")

	pair, err := f.service.Login(ctx, LoginRequest{Email: "ramesh@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	rotated, err := f.service.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// Replaying the rotated-out token revokes everything.
	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenReuseDetected)

	// The whole family is revoked; the rotated token is dead too.
	_, err = f.service.Refresh(ctx, rotated.RefreshToken)
	assert.Error(t, err)
}

func TestLogout_RevokesSession(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.createVerifiedFarmer(t, "9000000090")

	pair, err := f.service.Login(ctx, LoginRequest{Email: "ramesh@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, pair.RefreshToken))

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err)
}

func TestAdminCreate_VerifiedImmediately(t *testing.T) {
	f := newServiceFixture(t)
	identity := f.createVerifiedFarmer(t, "9000000100")
	assert.True(t, identity.Verified)
	assert.True(t, identity.Active)
}

func TestAdminCreate_RejectsDuplicatePhone(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.createVerifiedFarmer(t, "9000000110")

	_, err := f.service.AdminCreate(ctx, RegistrationRequest{
		Username:    "suresh",
		Email:       "suresh@example.com",
		PhoneNumber: "9000000110",
		Password:    "pass",
		Role:        model.RoleFieldOfficer,
	})
	assert.ErrorIs(t, err, ErrPhoneTaken)
}
