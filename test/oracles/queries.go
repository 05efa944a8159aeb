// Package oracles holds SQL invariants over the case tables. Each query
// returns offending rows; an empty result means the invariant holds.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_resolution_complete",
			SQL: `SELECT id, resolution FROM cases
                  WHERE (resolution->>'isResolved')::boolean
                    AND (COALESCE(resolution->>'agreement','') = '' OR resolution->>'resolvedAt' IS NULL)`,
		},
		{
			Name: "O2_panel_minimum",
			SQL: `SELECT id, jsonb_array_length(panel) FROM cases
                  WHERE jsonb_array_length(panel) BETWEEN 1 AND 2`,
		},
		{
			Name: "O3_array_columns",
			SQL: `SELECT id FROM cases
                  WHERE jsonb_typeof(proof) <> 'array'
                     OR jsonb_typeof(witnesses) <> 'array'
                     OR jsonb_typeof(panel) <> 'array'
                     OR jsonb_typeof(mediation_sessions) <> 'array'`,
		},
		{
			Name: "O4_session_attendees",
			SQL: `SELECT c.id, s FROM cases c, jsonb_array_elements(c.mediation_sessions) s
                  WHERE s->>'scheduledAt' IS NULL OR jsonb_typeof(s->'attendees') <> 'array'`,
		},
		{
			Name: "O5_timestamps_ordered",
			SQL: `SELECT id, created_at, updated_at FROM cases WHERE updated_at < created_at`,
		},
		{
			Name: "O6_response_deadline",
			SQL: `SELECT id FROM cases
                  WHERE (opposite_party->>'responseDeadline')::timestamptz <= (opposite_party->>'notifiedAt')::timestamptz`,
		},
		{
			// Jobs left pending well past their due time were lost by the scheduler.
			Name: "O7_stale_pending_job",
			SQL: `SELECT id, case_id, due_at, attempts FROM scheduled_transitions
                  WHERE state = 'pending' AND due_at < now() - interval '30 seconds'`,
		},
		{
			Name: "O8_duplicate_pending_job",
			SQL: `SELECT case_id, from_status, to_status, COUNT(*) FROM scheduled_transitions
                  WHERE state = 'pending'
                  GROUP BY case_id, from_status, to_status HAVING COUNT(*) > 1`,
		},
		{
			Name: "O9_finished_job_timestamp",
			SQL: `SELECT id, state FROM scheduled_transitions
                  WHERE state <> 'pending' AND finished_at IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
