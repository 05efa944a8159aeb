package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAdminNotFound signals that no administrator has the given username.
var ErrAdminNotFound = errors.New("auth: admin not found")

// Repository handles data access for administrator accounts.
type Repository interface {
	// UpsertAdmin creates the account or replaces its password hash and role.
	UpsertAdmin(ctx context.Context, params UpsertAdminParams) (Admin, error)
	GetAdminByUsername(ctx context.Context, username string) (Admin, error)
}

// UpsertAdminParams contains write parameters for administrator accounts.
type UpsertAdminParams struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed auth repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) UpsertAdmin(ctx context.Context, params UpsertAdminParams) (Admin, error) {
	const upsertSQL = `
		INSERT INTO admins (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role, updated_at = now()
		RETURNING id::text, username, password_hash, role, created_at, updated_at
	`

	admin, err := scanAdmin(r.pool.QueryRow(ctx, upsertSQL, params.ID, params.Username, params.PasswordHash, string(params.Role)))
	if err != nil {
		return Admin{}, fmt.Errorf("auth: upsert admin: %w", err)
	}
	return admin, nil
}

func (r *PGRepository) GetAdminByUsername(ctx context.Context, username string) (Admin, error) {
	const selectSQL = `
		SELECT id::text, username, password_hash, role, created_at, updated_at
		FROM admins
		WHERE username = $1
	`

	admin, err := scanAdmin(r.pool.QueryRow(ctx, selectSQL, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admin{}, ErrAdminNotFound
		}
		return Admin{}, fmt.Errorf("auth: get admin: %w", err)
	}
	return admin, nil
}

func scanAdmin(row pgx.Row) (Admin, error) {
	var (
		admin Admin
		role  string
	)
	err := row.Scan(
		&admin.ID,
		&admin.Username,
		&admin.PasswordHash,
		&role,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	)
	if err != nil {
		return Admin{}, err
	}
	admin.Role = Role(role)
	return admin, nil
}
