package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agrisetu/platform/internal/model"
)

// ErrSessionNotFound is returned when no refresh session matches the lookup.
var ErrSessionNotFound = errors.New("refresh session not found")

// RefreshRepo defines the interface for refresh session repository operations
type RefreshRepo interface {
	Create(ctx context.Context, identityID uuid.UUID, tokenHash string, expiresAt time.Time) (uuid.UUID, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	FindByTokenHashIncludeRevoked(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeAndSetReplacedBy(ctx context.Context, sessionID uuid.UUID, replacedBy uuid.UUID) error
	Revoke(ctx context.Context, sessionID uuid.UUID) error
	RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID) error
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a new RefreshRepo instance
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

// Create inserts a new refresh session
func (r *refreshRepo) Create(ctx context.Context, identityID uuid.UUID, tokenHash string, expiresAt time.Time) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO refresh_sessions (identity_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, identityID.String(), tokenHash, expiresAt).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert refresh session: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse session ID: %w", err)
	}
	return id, nil
}

// FindByTokenHash returns the session if it exists, is not revoked, and not expired
func (r *refreshRepo) FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	return r.find(ctx, tokenHash, true)
}

// FindByTokenHashIncludeRevoked returns the session regardless of revocation status (used for reuse detection)
func (r *refreshRepo) FindByTokenHashIncludeRevoked(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	return r.find(ctx, tokenHash, false)
}

func (r *refreshRepo) find(ctx context.Context, tokenHash string, activeOnly bool) (model.RefreshSession, error) {
	query := `
		SELECT id, identity_id, token_hash, created_at, expires_at, revoked_at, replaced_by
		FROM refresh_sessions
		WHERE token_hash = $1
	`
	if activeOnly {
		query += ` AND revoked_at IS NULL AND expires_at > now()`
	}

	var s model.RefreshSession
	var idStr, identityIDStr string
	var replacedByStr sql.NullString
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&idStr,
		&identityIDStr,
		&s.TokenHash,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&replacedByStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshSession{}, ErrSessionNotFound
		}
		return model.RefreshSession{}, fmt.Errorf("find session: %w", err)
	}
	s.ID, _ = uuid.Parse(idStr)
	s.IdentityID, _ = uuid.Parse(identityIDStr)
	if replacedByStr.Valid && replacedByStr.String != "" {
		u, _ := uuid.Parse(replacedByStr.String)
		s.ReplacedBy = &u
	}
	return s, nil
}

// RevokeAndSetReplacedBy sets revoked_at and replaced_by for the session
func (r *refreshRepo) RevokeAndSetReplacedBy(ctx context.Context, sessionID uuid.UUID, replacedBy uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = now(), replaced_by = $2
		WHERE id = $1
	`, sessionID.String(), replacedBy.String())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Revoke sets revoked_at for the session
func (r *refreshRepo) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now() WHERE id = $1
	`, sessionID.String())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeAllForIdentity revokes all active refresh sessions for an identity (reuse/theft response)
func (r *refreshRepo) RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now() WHERE identity_id = $1 AND revoked_at IS NULL
	`, identityID.String())
	if err != nil {
		return fmt.Errorf("revoke all sessions for identity: %w", err)
	}
	return nil
}
