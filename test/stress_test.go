package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"resolveit/broadcast"
	"resolveit/mediation"
	"resolveit/schedule"
	"resolveit/test/actors"
	"resolveit/test/chaos"
	"resolveit/test/infra"
	"resolveit/test/oracles"
	"resolveit/user"
	"resolveit/validation"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 4, "number of actors of each kind")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestMediationConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress run skipped in -short mode")
	}
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if errors.Is(err, infra.ErrPostgresNotRunning) {
				t.Skip("no -dsn, STRESS_TEST_PG_DSN, Docker, or local PostgreSQL available")
			}
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := user.NewService(user.NewRepository(pool))
	party := mustSeedParty(t, ctx, users)

	hub := broadcast.NewHub(64)
	defer hub.Close()
	events, unsubscribe := hub.Subscribe(broadcast.TopicDashboard)
	defer unsubscribe()

	var cases *mediation.Service
	handler := func(ctx context.Context, j schedule.Job) error {
		err := cases.RunScheduledTransition(ctx, j.CaseID, j.FromStatus, j.ToStatus)
		if errors.Is(err, mediation.ErrInvalidTransition) || errors.Is(err, mediation.ErrCaseNotFound) {
			return nil
		}
		return err
	}
	newScheduler := func() *schedule.Scheduler {
		return schedule.New(schedule.NewPGStore(pool), handler, logger).
			WithPollInterval(200*time.Millisecond).
			WithRetry(200*time.Millisecond, schedule.DefaultMaxAttempts)
	}
	scheduler := newScheduler()
	var jobsDone atomic.Int64
	scheduler.OnFinish = func(st schedule.State) {
		if st == schedule.StateDone {
			jobsDone.Add(1)
		}
	}
	cases = mediation.NewService(mediation.NewRepository(pool), users, hub, logger).
		WithScheduler(scheduler).
		WithTiming(100*time.Millisecond, 0)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	registry := &actors.Cases{}

	schedCtx, stopScheduler := context.WithCancel(ctx2)
	defer stopScheduler()
	g.Go(func() error { return scheduler.Run(schedCtx) })
	g.Go(func() error {
		return chaos.RestartScheduler(ctx2, func() chaos.Runner { return newScheduler() }, stop)
	})
	var received atomic.Int64
	go func() {
		for range events {
			received.Add(1)
		}
	}()

	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Registrar(ctx2, cases, party, registry, stop) })
		g.Go(func() error { return actors.Responder(ctx2, cases, registry, stop) })
		g.Go(func() error { return actors.PanelBuilder(ctx2, cases, registry, stop) })
		g.Go(func() error { return actors.Mediator(ctx2, cases, registry, stop) })
	}
	g.Go(func() error { return actors.Witnesses(ctx2, cases, registry, stop) })
	g.Go(func() error { return actors.Overrider(ctx2, cases, registry, stop) })
	g.Go(func() error { return actors.Reader(ctx2, cases, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx2.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				// A terminated backend can fail a single oracle query.
				t.Logf("oracle error: %v", err)
				continue
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	stopScheduler()
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}
	if registry.Len() == 0 {
		t.Fatalf("no cases registered (seed=%d)", seed)
	}
	t.Logf("cases=%d events=%d scheduled transitions done=%d", registry.Len(), received.Load(), jobsDone.Load())
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func mustSeedParty(t *testing.T, ctx context.Context, users *user.Service) string {
	t.Helper()
	u, err := users.Register(ctx, validation.Raw{
		"name":   "Stress Party",
		"age":    float64(40),
		"gender": "Other",
		"address": map[string]any{
			"street": "1 Market Street",
			"city":   "Pune",
			"zip":    "411001",
		},
		"email": fmt.Sprintf("party%d@example.com", rand.Int63()),
		"phone": "9876543210",
	})
	if err != nil {
		t.Fatalf("seed party: %v", err)
	}
	return u.ID
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"cases", `SELECT id, case_type, status, jsonb_array_length(panel) AS panel, resolution, updated_at FROM cases ORDER BY updated_at DESC LIMIT 50`},
		{"scheduled_transitions", `SELECT id, case_id, from_status, to_status, state, attempts, due_at, last_error FROM scheduled_transitions ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
