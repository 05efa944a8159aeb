// Package actors drives the mediation services concurrently against a shared
// database. Every actor loops until stop is closed or ctx is done.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"resolveit/mediation"
	"resolveit/validation"
)

// Cases is the set of case ids registered so far, shared by all actors.
type Cases struct {
	mu  sync.Mutex
	ids []string
}

func (c *Cases) Add(id string) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
}

// Pick returns a random registered id, or "" before the first registration.
func (c *Cases) Pick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ids) == 0 {
		return ""
	}
	return c.ids[rand.Intn(len(c.ids))]
}

func (c *Cases) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// unexpected filters out errors the workflow produces under contention and
// connection errors caused by chaos. Anything else is returned.
func unexpected(err error) error {
	if err == nil ||
		errors.Is(err, mediation.ErrInvalidTransition) ||
		errors.Is(err, mediation.ErrCaseNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		validation.IsValidationError(err) {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// Broken connection or pool error; the next iteration reconnects.
		return nil
	}
	switch pgErr.Code[:2] {
	case "08", "57":
		return nil
	}
	return err
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

func pause(min, spread int) {
	time.Sleep(time.Duration(min+rand.Intn(spread)) * time.Millisecond)
}

var caseTypes = []string{"Family", "Business", "Criminal"}

// Registrar files new cases for partyID.
func Registrar(ctx context.Context, svc *mediation.Service, partyID string, cases *Cases, stop <-chan struct{}) error {
	for n := 0; !stopped(ctx, stop); n++ {
		raw := validation.Raw{
			"caseType":         caseTypes[rand.Intn(len(caseTypes))],
			"issueDescription": fmt.Sprintf("Stress dispute %d", n),
			"partyId":          partyID,
			"oppositeParty": map[string]any{
				"name":    "Opposite Party",
				"contact": "9123456780",
				"address": "1 Court Road",
			},
		}
		if rand.Intn(4) == 0 {
			raw["courtPending"] = map[string]any{"isPending": true, "caseNumber": fmt.Sprintf("CN-%d", n)}
		}
		reg, err := svc.Register(ctx, raw)
		if err := unexpected(err); err != nil {
			return fmt.Errorf("registrar: %w", err)
		}
		if err == nil {
			cases.Add(reg.Case.ID)
		}
		pause(20, 40)
	}
	return nil
}

// Responder answers the mediation request for random cases, racing the
// scheduled move to Awaiting Response.
func Responder(ctx context.Context, svc *mediation.Service, cases *Cases, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if id := cases.Pick(); id != "" {
			raw := validation.Raw{"accepted": rand.Intn(3) != 0}
			if rand.Intn(2) == 0 {
				raw["reason"] = "stress"
			}
			_, err := svc.RespondOppositeParty(ctx, id, raw)
			if err := unexpected(err); err != nil {
				return fmt.Errorf("responder: %w", err)
			}
		}
		pause(15, 35)
	}
	return nil
}

// PanelBuilder forms panels, sometimes with an incomplete composition that
// must be rejected.
func PanelBuilder(ctx context.Context, svc *mediation.Service, cases *Cases, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if id := cases.Pick(); id != "" {
			panel := []any{
				map[string]any{"name": "Meera", "expertise": "Lawyer"},
				map[string]any{"name": "Imam Ali", "expertise": "Religious Scholar"},
				map[string]any{"name": "Joseph", "expertise": "Community Member"},
			}
			if rand.Intn(4) == 0 {
				panel = panel[:2]
			}
			_, err := svc.CreatePanel(ctx, id, panel)
			if err := unexpected(err); err != nil {
				return fmt.Errorf("panel builder: %w", err)
			}
		}
		pause(30, 50)
	}
	return nil
}

// Witnesses nominates witnesses without touching the status.
func Witnesses(ctx context.Context, svc *mediation.Service, cases *Cases, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if id := cases.Pick(); id != "" {
			_, err := svc.NominateWitnesses(ctx, id, []any{
				map[string]any{"name": "Neighbour", "contact": "9000000000", "nominatedBy": "party"},
			})
			if err := unexpected(err); err != nil {
				return fmt.Errorf("witnesses: %w", err)
			}
		}
		pause(40, 60)
	}
	return nil
}

// Mediator schedules sessions and resolves cases.
func Mediator(ctx context.Context, svc *mediation.Service, cases *Cases, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		id := cases.Pick()
		if id == "" {
			pause(20, 20)
			continue
		}
		var err error
		if rand.Intn(3) == 0 {
			raw := validation.Raw{"agreement": "Shared boundary wall repaired jointly"}
			if rand.Intn(2) == 0 {
				raw["satisfactionLevel"] = float64(1 + rand.Intn(5))
			}
			_, err = svc.Resolve(ctx, id, raw)
		} else {
			_, err = svc.ScheduleMediation(ctx, id, validation.Raw{
				"scheduledAt": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
				"attendees":   []any{"Asha", "Ravi"},
			})
		}
		if err := unexpected(err); err != nil {
			return fmt.Errorf("mediator: %w", err)
		}
		pause(30, 50)
	}
	return nil
}

// Overrider sets arbitrary workflow statuses, including back to Queued.
func Overrider(ctx context.Context, svc *mediation.Service, cases *Cases, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if id := cases.Pick(); id != "" {
			status := mediation.Statuses[rand.Intn(len(mediation.Statuses))]
			_, err := svc.OverrideStatus(ctx, id, string(status))
			if err := unexpected(err); err != nil {
				return fmt.Errorf("overrider: %w", err)
			}
		}
		pause(80, 120)
	}
	return nil
}

// Reader lists and aggregates while writers run.
func Reader(ctx context.Context, svc *mediation.Service, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if _, err := svc.Stats(ctx); unexpected(err) != nil {
			return fmt.Errorf("reader stats: %w", err)
		}
		status := ""
		if rand.Intn(2) == 0 {
			status = string(mediation.Statuses[rand.Intn(len(mediation.Statuses))])
		}
		if _, err := svc.List(ctx, status, ""); unexpected(err) != nil {
			return fmt.Errorf("reader list: %w", err)
		}
		pause(50, 50)
	}
	return nil
}
