package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/agrisetu/platform/internal/model"
)

var (
	// ErrNotFound is returned when no identity matches the lookup.
	ErrNotFound = errors.New("identity not found")
	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint. It is the final backstop behind the service-level
	// uniqueness checks.
	ErrDuplicate = errors.New("identity already exists")
)

// IdentityRepo defines the interface for durable identity records
type IdentityRepo interface {
	Create(ctx context.Context, identity model.Identity) (model.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Identity, error)
	GetByUsername(ctx context.Context, username string) (model.Identity, error)
	GetByEmail(ctx context.Context, email string) (model.Identity, error)
	GetByPhone(ctx context.Context, phone string) (model.Identity, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
}

type identityRepo struct {
	db *sql.DB
}

// NewIdentityRepo creates a new IdentityRepo instance
func NewIdentityRepo(db *sql.DB) IdentityRepo {
	return &identityRepo{db: db}
}

const identityColumns = `id, username, email, phone_number, password_hash, role, active, verified, created_at`

// Create inserts a new identity. Uniqueness violations on username, email,
// or phone surface as ErrDuplicate.
func (r *identityRepo) Create(ctx context.Context, identity model.Identity) (model.Identity, error) {
	query := `
		INSERT INTO identities (username, email, phone_number, password_hash, role, active, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + identityColumns
	row := r.db.QueryRowContext(ctx, query,
		identity.Username,
		identity.Email,
		identity.PhoneNumber,
		identity.PasswordHash,
		string(identity.Role),
		identity.Active,
		identity.Verified,
	)
	created, err := scanIdentity(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.Identity{}, ErrDuplicate
		}
		return model.Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return created, nil
}

// GetByID retrieves an identity by ID
func (r *identityRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Identity, error) {
	return r.getBy(ctx, "id", id.String())
}

// GetByUsername retrieves an identity by username
func (r *identityRepo) GetByUsername(ctx context.Context, username string) (model.Identity, error) {
	return r.getBy(ctx, "username", username)
}

// GetByEmail retrieves an identity by email
func (r *identityRepo) GetByEmail(ctx context.Context, email string) (model.Identity, error) {
	return r.getBy(ctx, "email", email)
}

// GetByPhone retrieves an identity by phone number
func (r *identityRepo) GetByPhone(ctx context.Context, phone string) (model.Identity, error) {
	return r.getBy(ctx, "phone_number", phone)
}

func (r *identityRepo) getBy(ctx context.Context, column, value string) (model.Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE %s = $1`, identityColumns, column)
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, ErrNotFound
		}
		return model.Identity{}, fmt.Errorf("query identity by %s: %w", column, err)
	}
	return identity, nil
}

// ExistsByUsername reports whether a committed identity holds the username
func (r *identityRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.existsBy(ctx, "username", username)
}

// ExistsByEmail reports whether a committed identity holds the email
func (r *identityRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.existsBy(ctx, "email", email)
}

// ExistsByPhone reports whether a committed identity holds the phone number
func (r *identityRepo) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	return r.existsBy(ctx, "phone_number", phone)
}

func (r *identityRepo) existsBy(ctx context.Context, column, value string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM identities WHERE %s = $1)`, column)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists by %s: %w", column, err)
	}
	return exists, nil
}

// SetVerified updates the verified flag for the identity
func (r *identityRepo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE identities SET verified = $2 WHERE id = $1
	`, id.String(), verified)
	if err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanIdentity(row *sql.Row) (model.Identity, error) {
	var identity model.Identity
	var idStr, roleStr string
	err := row.Scan(
		&idStr,
		&identity.Username,
		&identity.Email,
		&identity.PhoneNumber,
		&identity.PasswordHash,
		&roleStr,
		&identity.Active,
		&identity.Verified,
		&identity.CreatedAt,
	)
	if err != nil {
		return model.Identity{}, err
	}
	identity.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Identity{}, fmt.Errorf("parse identity ID: %w", err)
	}
	identity.Role = model.Role(roleStr)
	return identity, nil
}
