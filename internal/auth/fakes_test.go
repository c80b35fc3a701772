package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrisetu/platform/internal/model"
	"github.com/agrisetu/platform/internal/repo"
)

// fakeIdentityRepo is an in-memory repo.IdentityRepo for service tests.
type fakeIdentityRepo struct {
	mu         sync.Mutex
	identities map[uuid.UUID]model.Identity
	calls      int
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{identities: make(map[uuid.UUID]model.Identity)}
}

func (f *fakeIdentityRepo) Create(ctx context.Context, identity model.Identity) (model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, existing := range f.identities {
		if existing.Username == identity.Username ||
			existing.Email == identity.Email ||
			existing.PhoneNumber == identity.PhoneNumber {
			return model.Identity{}, repo.ErrDuplicate
		}
	}
	identity.ID = uuid.New()
	identity.CreatedAt = time.Now()
	f.identities[identity.ID] = identity
	return identity, nil
}

func (f *fakeIdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	identity, ok := f.identities[id]
	if !ok {
		return model.Identity{}, repo.ErrNotFound
	}
	return identity, nil
}

func (f *fakeIdentityRepo) GetByUsername(ctx context.Context, username string) (model.Identity, error) {
	return f.getBy(func(i model.Identity) bool { return i.Username == username })
}

func (f *fakeIdentityRepo) GetByEmail(ctx context.Context, email string) (model.Identity, error) {
	return f.getBy(func(i model.Identity) bool { return i.Email == email })
}

func (f *fakeIdentityRepo) GetByPhone(ctx context.Context, phone string) (model.Identity, error) {
	return f.getBy(func(i model.Identity) bool { return i.PhoneNumber == phone })
}

func (f *fakeIdentityRepo) getBy(match func(model.Identity) bool) (model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, identity := range f.identities {
		if match(identity) {
			return identity, nil
		}
	}
	return model.Identity{}, repo.ErrNotFound
}

func (f *fakeIdentityRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := f.GetByUsername(ctx, username)
	return err == nil, nil
}

func (f *fakeIdentityRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.GetByEmail(ctx, email)
	return err == nil, nil
}

func (f *fakeIdentityRepo) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	_, err := f.GetByPhone(ctx, phone)
	return err == nil, nil
}

func (f *fakeIdentityRepo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.identities[id]
	if !ok {
		return repo.ErrNotFound
	}
	identity.Verified = verified
	f.identities[id] = identity
	return nil
}

// put inserts without uniqueness checks, for seeding test state.
func (f *fakeIdentityRepo) put(identity model.Identity) model.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	f.identities[identity.ID] = identity
	return identity
}

func (f *fakeIdentityRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeIdentityRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.identities)
}

// fakeRefreshRepo is an in-memory repo.RefreshRepo for service tests.
type fakeRefreshRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]model.RefreshSession
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{sessions: make(map[uuid.UUID]model.RefreshSession)}
}

func (f *fakeRefreshRepo) Create(ctx context.Context, identityID uuid.UUID, tokenHash string, expiresAt time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.sessions[id] = model.RefreshSession{
		ID:         id,
		IdentityID: identityID,
		TokenHash:  tokenHash,
		CreatedAt:  time.Now(),
		ExpiresAt:  expiresAt,
	}
	return id, nil
}

func (f *fakeRefreshRepo) FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.TokenHash == tokenHash && s.RevokedAt == nil && s.ExpiresAt.After(time.Now()) {
			return s, nil
		}
	}
	return model.RefreshSession{}, repo.ErrSessionNotFound
}

func (f *fakeRefreshRepo) FindByTokenHashIncludeRevoked(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.TokenHash == tokenHash {
			return s, nil
		}
	}
	return model.RefreshSession{}, repo.ErrSessionNotFound
}

func (f *fakeRefreshRepo) RevokeAndSetReplacedBy(ctx context.Context, sessionID uuid.UUID, replacedBy uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return repo.ErrSessionNotFound
	}
	now := time.Now()
	s.RevokedAt = &now
	s.ReplacedBy = &replacedBy
	f.sessions[sessionID] = s
	return nil
}

func (f *fakeRefreshRepo) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return repo.ErrSessionNotFound
	}
	now := time.Now()
	s.RevokedAt = &now
	f.sessions[sessionID] = s
	return nil
}

func (f *fakeRefreshRepo) RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for id, s := range f.sessions {
		if s.IdentityID == identityID && s.RevokedAt == nil {
			s.RevokedAt = &now
			f.sessions[id] = s
		}
	}
	return nil
}

// captureSender records the last delivered OTP.
type captureSender struct {
	mu    sync.Mutex
	phone string
	code  string
}

func (c *captureSender) Send(phone, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phone = phone
	c.code = code
}

func (c *captureSender) last() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phone, c.code
}
