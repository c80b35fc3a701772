package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agrisetu/platform/internal/kvstore"
	"github.com/agrisetu/platform/internal/model"
)

const regKeyPrefix = "reg:"

// State/timing failures of the registration flow. These are expected,
// frequent outcomes and carry user-actionable messages.
var (
	ErrRegistrationNotFound = errors.New("registration data not found")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrEmailTaken           = errors.New("email already registered")
	ErrPhoneTaken           = errors.New("phone number already registered")
)

// RegistrationRequest is the inbound registration payload.
type RegistrationRequest struct {
	Username    string
	Email       string
	PhoneNumber string
	Password    string
	Role        model.Role
}

// Register stages the registration in the ephemeral store and sends an OTP
// to the phone number. No durable record is created here; that happens in
// CommitRegistration once the OTP validates. A second Register call for the
// same phone overwrites the prior stage.
func (s *Service) Register(ctx context.Context, req RegistrationRequest) error {
	if err := s.checkUniqueness(ctx, req.Username, req.Email, req.PhoneNumber); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	staged := model.StagedRegistration{
		Username:     req.Username,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: string(hash),
		Role:         req.Role,
		StagedAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("marshal staged registration: %w", err)
	}

	// Same TTL as the OTP so neither can outlive the other.
	if err := s.store.Set(ctx, regKeyPrefix+req.PhoneNumber, string(payload), s.otpTTL); err != nil {
		return fmt.Errorf("stage registration: %w", err)
	}

	code, err := s.otp.RequestOTP(ctx, req.PhoneNumber)
	if err != nil {
		return err
	}
	s.deliverOTP(req.PhoneNumber, code)
	return nil
}

// CommitRegistration validates the OTP and, on success, turns the staged
// payload into a durable identity with verified = true. The uniqueness
// checks run again at commit time because time has passed since staging.
// The staged payload is deleted on success and on any uniqueness failure so
// a retry cannot resurrect stale data.
func (s *Service) CommitRegistration(ctx context.Context, phone, code string) (model.Identity, error) {
	if err := s.otp.VerifyOTP(ctx, phone, code); err != nil {
		return model.Identity{}, err
	}

	raw, err := s.store.Get(ctx, regKeyPrefix+phone)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return model.Identity{}, ErrRegistrationNotFound
		}
		return model.Identity{}, fmt.Errorf("read staged registration: %w", err)
	}

	var staged model.StagedRegistration
	if err := json.Unmarshal([]byte(raw), &staged); err != nil {
		return model.Identity{}, fmt.Errorf("unmarshal staged registration: %w", err)
	}

	if err := s.checkUniqueness(ctx, staged.Username, staged.Email, staged.PhoneNumber); err != nil {
		_ = s.store.Delete(ctx, regKeyPrefix+phone)
		return model.Identity{}, err
	}

	identity, err := s.identities.Create(ctx, model.Identity{
		Username:     staged.Username,
		Email:        staged.Email,
		PhoneNumber:  staged.PhoneNumber,
		PasswordHash: staged.PasswordHash,
		Role:         staged.Role,
		Active:       true,
		Verified:     true,
	})
	if err != nil {
		return model.Identity{}, fmt.Errorf("create identity: %w", err)
	}

	_ = s.store.Delete(ctx, regKeyPrefix+phone)
	return identity, nil
}

func (s *Service) checkUniqueness(ctx context.Context, username, email, phone string) error {
	if taken, err := s.identities.ExistsByUsername(ctx, username); err != nil {
		return fmt.Errorf("check username: %w", err)
	} else if taken {
		return ErrUsernameTaken
	}
	if taken, err := s.identities.ExistsByEmail(ctx, email); err != nil {
		return fmt.Errorf("check email: %w", err)
	} else if taken {
		return ErrEmailTaken
	}
	if taken, err := s.identities.ExistsByPhone(ctx, phone); err != nil {
		return fmt.Errorf("check phone: %w", err)
	} else if taken {
		return ErrPhoneTaken
	}
	return nil
}
