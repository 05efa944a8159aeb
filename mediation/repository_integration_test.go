package mediation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"resolveit/db"
	"resolveit/schedule"
	"resolveit/user"
	"resolveit/validation"
)

// TestCaseLifecycle_Integration connects to a real PostgreSQL via DATABASE_URL
// and walks one case through the workflow on the PostgreSQL repositories.
func TestCaseLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := user.NewRepository(pool)
	party, err := users.Create(ctx, user.User{
		ID:        uuid.NewString(),
		Name:      "Asha Rao",
		Age:       34,
		Gender:    user.GenderFemale,
		Address:   user.Address{Street: "12 Lake Rd", City: "Pune", Zip: "411001"},
		Email:     fmt.Sprintf("asha+%d@example.com", time.Now().UnixNano()),
		Phone:     "9876543210",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed party: %v", err)
	}

	var caseID string
	// Cleanup seeded rows after test (best-effort, ignore errors)
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM scheduled_transitions WHERE case_id = $1::uuid`, caseID)
		pool.Exec(ctx2, `DELETE FROM cases WHERE id = $1::uuid`, caseID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id = $1::uuid`, party.ID)
	})

	// Not running: jobs are only persisted.
	sched := schedule.New(schedule.NewPGStore(pool), nil, nil)
	svc := NewService(NewRepository(pool), users, nil, nil).WithScheduler(sched)

	raw := validCase()
	raw["partyId"] = party.ID
	reg, err := svc.Register(ctx, raw)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	caseID = reg.Case.ID
	if reg.Case.Status != StatusQueued || reg.Case.Party.Email != party.Email {
		t.Fatalf("unexpected registered case: %+v", reg.Case)
	}

	var pending int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_transitions WHERE case_id = $1::uuid AND state = 'pending'`, caseID).Scan(&pending); err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 pending job, got %d", pending)
	}

	// The deferred move applies once.
	if err := svc.RunScheduledTransition(ctx, caseID, string(StatusQueued), string(StatusAwaitingResponse)); err != nil {
		t.Fatalf("scheduled transition: %v", err)
	}
	err = svc.RunScheduledTransition(ctx, caseID, string(StatusQueued), string(StatusAwaitingResponse))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on replay, got %v", err)
	}

	c, err := svc.RespondOppositeParty(ctx, caseID, validation.Raw{"accepted": true})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if c.Status != StatusAccepted || !c.OppositeParty.HasAccepted {
		t.Fatalf("unexpected case after response: status=%s accepted=%v", c.Status, c.OppositeParty.HasAccepted)
	}
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_transitions WHERE case_id = $1::uuid AND state = 'pending'`, caseID).Scan(&pending); err != nil {
		t.Fatalf("recount jobs: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected response to cancel pending jobs, %d left", pending)
	}

	for _, name := range []string{"Meera", "Joseph"} {
		if _, err := svc.NominateWitnesses(ctx, caseID, []any{map[string]any{"name": name, "contact": "9000000000"}}); err != nil {
			t.Fatalf("nominate %s: %v", name, err)
		}
	}
	if _, err := svc.CreatePanel(ctx, caseID, validPanel()); err != nil {
		t.Fatalf("create panel: %v", err)
	}
	if _, err := svc.ScheduleMediation(ctx, caseID, validation.Raw{
		"scheduledAt": "2025-03-10T10:00:00Z",
		"attendees":   []any{"Asha", "Ravi"},
	}); err != nil {
		t.Fatalf("schedule mediation: %v", err)
	}
	c, err = svc.Resolve(ctx, caseID, validation.Raw{"agreement": "Wall rebuilt jointly", "satisfactionLevel": float64(4)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.CreatePanel(ctx, caseID, validPanel()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected panel on a resolved case to fail with ErrInvalidTransition, got %v", err)
	}

	got, err := svc.Get(ctx, caseID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusResolved || !got.Resolution.IsResolved || got.Resolution.ResolvedAt == nil {
		t.Fatalf("unexpected resolution: %+v", got.Resolution)
	}
	if len(got.Witnesses) != 2 || got.Witnesses[0].Name != "Meera" || got.Witnesses[1].Name != "Joseph" {
		t.Fatalf("witnesses out of order: %+v", got.Witnesses)
	}
	if len(got.Panel) != 3 || len(got.MediationSessions) != 1 {
		t.Fatalf("unexpected panel/sessions: %d/%d", len(got.Panel), len(got.MediationSessions))
	}
	if got.Resolution.SatisfactionLevel != 4 || c.Resolution.Agreement != "Wall rebuilt jointly" {
		t.Fatalf("unexpected resolution details: %+v", got.Resolution)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalCases < 1 || st.Resolved < 1 || st.ByStatus[StatusResolved] < 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	if _, err := svc.Get(ctx, uuid.NewString()); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}

func validPanel() []any {
	return []any{
		map[string]any{"name": "Meera", "expertise": "Lawyer"},
		map[string]any{"name": "Imam Ali", "expertise": "Religious Scholar"},
		map[string]any{"name": "Joseph", "expertise": "Community Member"},
	}
}

func TestPGRepositoryMalformedIDIsNotFound(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("get: expected ErrCaseNotFound, got %v", err)
	}
	if _, err := repo.Apply(ctx, "42", nil, Update{Status: StatusResolved}); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("apply: expected ErrCaseNotFound, got %v", err)
	}
}
