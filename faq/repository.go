package faq

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals that no answer exists for the query.
var ErrNotFound = errors.New("faq: not found")

// Repository provides access to answered queries. Queries are matched on
// their normalized key.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert stores answer for query, replacing any earlier answer. created
// reports whether the query was new.
func (r *Repository) Upsert(ctx context.Context, id, key, query, answer string) (Entry, bool, error) {
	const upsertSQL = `
		INSERT INTO faq_entries (id, query_key, query, answer)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (query_key) DO UPDATE
		SET answer = EXCLUDED.answer, updated_at = now()
		RETURNING id::text, query, answer, created_at, updated_at, (xmax = 0)
	`

	var (
		e       Entry
		created bool
	)
	err := r.pool.QueryRow(ctx, upsertSQL, id, key, query, answer).
		Scan(&e.ID, &e.Query, &e.Answer, &e.CreatedAt, &e.UpdatedAt, &created)
	if err != nil {
		return Entry{}, false, fmt.Errorf("faq: upsert: %w", err)
	}
	return e, created, nil
}

// GetByKey fetches the entry for a normalized query.
func (r *Repository) GetByKey(ctx context.Context, key string) (Entry, error) {
	const query = `
		SELECT id::text, query, answer, created_at, updated_at
		FROM faq_entries
		WHERE query_key = $1
	`

	var e Entry
	err := r.pool.QueryRow(ctx, query, key).Scan(&e.ID, &e.Query, &e.Answer, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("faq: get: %w", err)
	}
	return e, nil
}

// Search returns up to limit entries whose query contains term.
func (r *Repository) Search(ctx context.Context, term string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	const query = `
		SELECT id::text, query, answer, created_at, updated_at
		FROM faq_entries
		WHERE query_key LIKE '%' || $1 || '%'
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, term, limit)
	if err != nil {
		return nil, fmt.Errorf("faq: search: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, 8)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Query, &e.Answer, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("faq: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("faq: iterate entries: %w", err)
	}
	return entries, nil
}
