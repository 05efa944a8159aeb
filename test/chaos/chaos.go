// Package chaos injects faults while the stress actors run.
package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend randomly kills a backend connection of the current database.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = current_database() AND pid <> pg_backend_pid() ORDER BY random() LIMIT 1`)
			}
		}
	}
}

// Runner is a scheduler built fresh for each life.
type Runner interface {
	Run(ctx context.Context) error
}

// RestartScheduler keeps a second scheduler alive over the same job store,
// stopping it after a random lifetime and starting a new one from newRunner.
// Jobs fire from both this scheduler and the primary one.
func RestartScheduler(ctx context.Context, newRunner func() Runner, stop <-chan struct{}) error {
	for {
		life, cancel := context.WithTimeout(ctx, time.Duration(500+rand.Intn(2500))*time.Millisecond)
		done := make(chan error, 1)
		go func() { done <- newRunner().Run(life) }()

		select {
		case <-stop:
			cancel()
			<-done
			return nil
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case <-done:
			// The life timed out, or loading pending jobs failed on a
			// terminated backend.
			cancel()
			time.Sleep(50 * time.Millisecond)
		}
	}
}
