package mediation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

var (
	ErrCaseNotFound      = errors.New("mediation: case not found")
	ErrPartyNotFound     = errors.New("mediation: party not found")
	ErrInvalidTransition = errors.New("mediation: invalid status transition")
)

// Repository persists cases together with their embedded sub-records.
type Repository interface {
	Create(ctx context.Context, c Case) (Case, error)
	GetByID(ctx context.Context, id string) (Case, error)
	List(ctx context.Context, f ListFilter) ([]Case, error)
	// Apply writes upd when the case's current status is in from (nil allows
	// any status). It returns ErrCaseNotFound or ErrInvalidTransition when no
	// row was changed.
	Apply(ctx context.Context, id string, from []Status, upd Update) (Case, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// PGRepository stores cases in PostgreSQL. Witnesses, panel, sessions and
// the resolution live in JSONB columns on the case row.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const caseColumns = `
	c.id::text, c.case_type, c.issue_description,
	c.party_id::text, u.name, u.email, u.phone,
	c.opposite_party, c.proof, c.court_pending, c.status,
	c.witnesses, c.panel, c.mediation_sessions, c.resolution,
	c.created_at, c.updated_at`

func (r *PGRepository) Create(ctx context.Context, c Case) (Case, error) {
	const insertSQL = `
		WITH c AS (
			INSERT INTO cases (
				id, case_type, issue_description, party_id, opposite_party, proof,
				court_pending, status, witnesses, panel, mediation_sessions, resolution,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8, '[]'::jsonb, '[]'::jsonb, '[]'::jsonb, $9::jsonb, $10, $10)
			RETURNING *
		)
		SELECT ` + caseColumns + `
		FROM c
		LEFT JOIN users u ON u.id = c.party_id`

	var courtPending *string
	if c.CourtPending != nil {
		s := mustJSON(c.CourtPending)
		courtPending = &s
	}
	proof := c.Proof
	if proof == nil {
		proof = []string{}
	}

	created, err := scanCase(r.pool.QueryRow(ctx, insertSQL,
		c.ID, string(c.CaseType), c.IssueDescription, c.Party.ID,
		mustJSON(c.OppositeParty), mustJSON(proof), courtPending, string(c.Status),
		mustJSON(c.Resolution), c.CreatedAt,
	))
	if err != nil {
		return Case{}, fmt.Errorf("mediation: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Case, error) {
	const selectSQL = `SELECT ` + caseColumns + `
		FROM cases c
		LEFT JOIN users u ON u.id = c.party_id
		WHERE c.id = $1::uuid`
	if uuid.Validate(id) != nil {
		return Case{}, ErrCaseNotFound
	}

	c, err := scanCase(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, ErrCaseNotFound
		}
		return Case{}, fmt.Errorf("mediation: get: %w", err)
	}
	return c, nil
}

// List returns matching cases, newest first.
func (r *PGRepository) List(ctx context.Context, f ListFilter) ([]Case, error) {
	query := `SELECT ` + caseColumns + `
		FROM cases c
		LEFT JOIN users u ON u.id = c.party_id
		WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND c.status = $%d", len(args))
	}
	if f.CaseType != "" {
		args = append(args, string(f.CaseType))
		query += fmt.Sprintf(" AND c.case_type = $%d", len(args))
	}
	query += " ORDER BY c.created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mediation: list: %w", err)
	}
	defer rows.Close()

	out := make([]Case, 0, 16)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("mediation: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mediation: iterate: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Apply(ctx context.Context, id string, from []Status, upd Update) (Case, error) {
	if uuid.Validate(id) != nil {
		return Case{}, ErrCaseNotFound
	}
	args := []any{id, statusStrings(from), upd.UpdatedAt}
	sets := []string{"updated_at = $3"}
	set := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if upd.Status != "" {
		set("status = $%d", string(upd.Status))
	}
	if upd.HasAccepted != nil {
		set("opposite_party = jsonb_set(opposite_party, '{hasAccepted}', to_jsonb($%d::boolean))", *upd.HasAccepted)
	}
	if upd.Panel != nil {
		set("panel = $%d::jsonb", mustJSON(upd.Panel))
	}
	if len(upd.AppendWitnesses) > 0 {
		set("witnesses = witnesses || $%d::jsonb", mustJSON(upd.AppendWitnesses))
	}
	if upd.AppendSession != nil {
		set("mediation_sessions = mediation_sessions || jsonb_build_array($%d::jsonb)", mustJSON(upd.AppendSession))
	}
	if upd.Resolution != nil {
		set("resolution = $%d::jsonb", mustJSON(upd.Resolution))
	}

	query := `
		WITH c AS (
			UPDATE cases
			SET ` + strings.Join(sets, ", ") + `
			WHERE id = $1::uuid
			  AND ($2::text[] IS NULL OR status = ANY($2::text[]))
			RETURNING *
		)
		SELECT ` + caseColumns + `
		FROM c
		LEFT JOIN users u ON u.id = c.party_id`

	updated, err := scanCase(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Case{}, fmt.Errorf("mediation: update: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cases WHERE id = $1::uuid)`, id).Scan(&exists); err != nil {
		return Case{}, fmt.Errorf("mediation: update check: %w", err)
	}
	if !exists {
		return Case{}, ErrCaseNotFound
	}
	return Case{}, ErrInvalidTransition
}

// Stats runs the dashboard aggregates concurrently.
func (r *PGRepository) Stats(ctx context.Context, now time.Time) (Stats, error) {
	st := Stats{
		ByStatus: make(map[Status]int, len(Statuses)),
		ByType:   make(map[CaseType]int, 3),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `SELECT status, count(*) FROM cases GROUP BY status`)
		if err != nil {
			return fmt.Errorf("mediation: stats by status: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status string
				n      int
			)
			if err := rows.Scan(&status, &n); err != nil {
				return fmt.Errorf("mediation: stats scan: %w", err)
			}
			st.ByStatus[Status(status)] = n
		}
		return rows.Err()
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `SELECT case_type, count(*) FROM cases GROUP BY case_type`)
		if err != nil {
			return fmt.Errorf("mediation: stats by type: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				caseType string
				n        int
			)
			if err := rows.Scan(&caseType, &n); err != nil {
				return fmt.Errorf("mediation: stats scan: %w", err)
			}
			st.ByType[CaseType(caseType)] = n
		}
		return rows.Err()
	})
	g.Go(func() error {
		const totals = `
			SELECT
				count(*),
				count(*) FILTER (WHERE (resolution->>'isResolved')::boolean),
				count(*) FILTER (WHERE status IN ('Queued', 'Awaiting Response')
					AND (opposite_party->>'responseDeadline')::timestamptz < $1)
			FROM cases`
		if err := r.pool.QueryRow(gctx, totals, now).Scan(&st.TotalCases, &st.Resolved, &st.OverdueResponses); err != nil {
			return fmt.Errorf("mediation: stats totals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func scanCase(row pgx.Row) (Case, error) {
	var (
		c                                           Case
		caseType, status                            string
		partyName, partyEmail, partyPhone           *string
		opposite, proof, court                      []byte
		witnesses, panel, sessions, resolutionBytes []byte
	)
	err := row.Scan(
		&c.ID, &caseType, &c.IssueDescription,
		&c.Party.ID, &partyName, &partyEmail, &partyPhone,
		&opposite, &proof, &court, &status,
		&witnesses, &panel, &sessions, &resolutionBytes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Case{}, err
	}

	c.CaseType = CaseType(caseType)
	c.Status = Status(status)
	if partyName != nil {
		c.Party.Name = *partyName
	}
	if partyEmail != nil {
		c.Party.Email = *partyEmail
	}
	if partyPhone != nil {
		c.Party.Phone = *partyPhone
	}

	if err := json.Unmarshal(opposite, &c.OppositeParty); err != nil {
		return Case{}, fmt.Errorf("decode opposite party: %w", err)
	}
	if len(court) > 0 {
		var cp CourtPending
		if err := json.Unmarshal(court, &cp); err != nil {
			return Case{}, fmt.Errorf("decode court pending: %w", err)
		}
		c.CourtPending = &cp
	}
	for _, doc := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"proof", proof, &c.Proof},
		{"witnesses", witnesses, &c.Witnesses},
		{"panel", panel, &c.Panel},
		{"sessions", sessions, &c.MediationSessions},
		{"resolution", resolutionBytes, &c.Resolution},
	} {
		if len(doc.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(doc.raw, doc.dst); err != nil {
			return Case{}, fmt.Errorf("decode %s: %w", doc.name, err)
		}
	}
	if c.Proof == nil {
		c.Proof = []string{}
	}
	if c.Witnesses == nil {
		c.Witnesses = []Witness{}
	}
	if c.Panel == nil {
		c.Panel = []PanelMember{}
	}
	if c.MediationSessions == nil {
		c.MediationSessions = []MediationSession{}
	}
	return c, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
