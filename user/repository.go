package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the user does not exist.
	ErrNotFound = errors.New("user: not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("user: email already registered")
)

// Repository handles persistence for registered users.
type Repository interface {
	Create(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, limit int) ([]Summary, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed user repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id::text, name, age, gender, street, city, zip, email, phone, photo, created_at`

// Create inserts a new user. A unique violation on email maps to ErrDuplicateEmail.
func (r *PGRepository) Create(ctx context.Context, u User) (User, error) {
	const insertSQL = `
		INSERT INTO users (id, name, age, gender, street, city, zip, email, phone, photo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()))
		RETURNING ` + userColumns

	var createdAt *time.Time
	if !u.CreatedAt.IsZero() {
		createdAt = &u.CreatedAt
	}
	created, err := scanUser(r.pool.QueryRow(ctx, insertSQL,
		u.ID, u.Name, u.Age, string(u.Gender),
		u.Address.Street, u.Address.City, u.Address.Zip,
		u.Email, u.Phone, u.Photo, createdAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("user: create: %w", err)
	}

	return created, nil
}

// GetByID retrieves a user by ID.
func (r *PGRepository) GetByID(ctx context.Context, id string) (User, error) {
	const selectSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1::uuid`
	if uuid.Validate(id) != nil {
		return User{}, ErrNotFound
	}

	u, err := scanUser(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("user: get by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	const selectSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	u, err := scanUser(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("user: get by email: %w", err)
	}
	return u, nil
}

// List returns up to limit users ordered by name.
func (r *PGRepository) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	const query = `
		SELECT id::text, name, email, phone
		FROM users
		ORDER BY name ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0, 16)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Phone); err != nil {
			return nil, fmt.Errorf("user: scan summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user: iterate: %w", err)
	}
	return out, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u      User
		gender string
		photo  *string
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Age,
		&gender,
		&u.Address.Street,
		&u.Address.City,
		&u.Address.Zip,
		&u.Email,
		&u.Phone,
		&photo,
		&u.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}

	u.Gender = Gender(gender)
	if photo != nil {
		u.Photo = *photo
	}
	return u, nil
}
