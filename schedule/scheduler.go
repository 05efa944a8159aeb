package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultRetryDelay   = 10 * time.Second
	DefaultMaxAttempts  = 5
)

// Handler performs a due job. Returning nil finishes the job; an error
// schedules a retry until the attempt limit is reached.
type Handler func(ctx context.Context, j Job) error

// Scheduler arms a timer for every pending job and re-reads the store on a
// fixed interval so jobs created elsewhere, or missed while stopped, still run.
type Scheduler struct {
	store   Store
	handler Handler
	logger  *slog.Logger

	pollInterval time.Duration
	retryDelay   time.Duration
	maxAttempts  int
	now          func() time.Time
	idGenerator  func() string

	// OnFinish, when set, is called with the final state of every job.
	OnFinish func(State)

	mu      sync.Mutex
	runCtx  context.Context
	timers  map[string]*time.Timer
	byCase  map[string]map[string]struct{}
	running map[string]struct{}
	stopped bool
	wg      sync.WaitGroup
}

func New(store Store, handler Handler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        store,
		handler:      handler,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		retryDelay:   DefaultRetryDelay,
		maxAttempts:  DefaultMaxAttempts,
		now:          time.Now,
		idGenerator:  func() string { return uuid.NewString() },
		timers:       map[string]*time.Timer{},
		byCase:       map[string]map[string]struct{}{},
		running:      map[string]struct{}{},
	}
}

func (s *Scheduler) WithPollInterval(d time.Duration) *Scheduler {
	if d > 0 {
		s.pollInterval = d
	}
	return s
}

func (s *Scheduler) WithRetry(delay time.Duration, maxAttempts int) *Scheduler {
	if delay > 0 {
		s.retryDelay = delay
	}
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	return s
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) WithIDGenerator(gen func() string) *Scheduler {
	s.idGenerator = gen
	return s
}

// ScheduleTransition persists a job moving caseID from -> to at due. The job
// is armed immediately when the scheduler is running, otherwise on Run.
func (s *Scheduler) ScheduleTransition(ctx context.Context, caseID, from, to string, due time.Time) error {
	j, err := s.store.Enqueue(ctx, Job{
		ID:         s.idGenerator(),
		CaseID:     caseID,
		FromStatus: from,
		ToStatus:   to,
		DueAt:      due,
		State:      StatePending,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.arm(j)
	return nil
}

// CancelTransitions cancels every pending job for caseID.
func (s *Scheduler) CancelTransitions(ctx context.Context, caseID string) error {
	ids, err := s.store.CancelCase(ctx, caseID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, id := range ids {
		s.disarmLocked(caseID, id)
	}
	// Timers armed from another path may not be in the store result.
	for id := range s.byCase[caseID] {
		s.disarmLocked(caseID, id)
	}
	s.mu.Unlock()

	for range ids {
		s.finished(StateCancelled)
	}
	return nil
}

// Run arms every pending job and polls the store until ctx is cancelled.
// It waits for in-flight jobs before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return errors.New("schedule: already running")
	}
	s.runCtx = ctx
	s.mu.Unlock()

	pending, err := s.store.Pending(ctx)
	if err != nil {
		s.shutdown()
		return fmt.Errorf("schedule: load pending: %w", err)
	}
	for _, j := range pending {
		s.arm(j)
	}
	s.logger.Info("schedule: started", "pending", len(pending), "poll_interval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// Armed returns the number of jobs with a live timer.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) poll(ctx context.Context) {
	due, err := s.store.Due(ctx, s.now(), 100)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("schedule: poll failed", "error", err)
		}
		return
	}
	for _, j := range due {
		s.arm(j)
	}
}

func (s *Scheduler) arm(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil || s.stopped {
		return
	}
	if _, ok := s.timers[j.ID]; ok {
		return
	}
	if _, ok := s.running[j.ID]; ok {
		return
	}

	delay := j.DueAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[j.ID] = time.AfterFunc(delay, func() { s.fire(j) })
	if s.byCase[j.CaseID] == nil {
		s.byCase[j.CaseID] = map[string]struct{}{}
	}
	s.byCase[j.CaseID][j.ID] = struct{}{}
}

func (s *Scheduler) disarmLocked(caseID, id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if jobs := s.byCase[caseID]; jobs != nil {
		delete(jobs, id)
		if len(jobs) == 0 {
			delete(s.byCase, caseID)
		}
	}
}

func (s *Scheduler) fire(j Job) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if _, ok := s.timers[j.ID]; !ok {
		// Cancelled after the timer had already fired.
		s.mu.Unlock()
		return
	}
	s.disarmLocked(j.CaseID, j.ID)
	s.running[j.ID] = struct{}{}
	ctx := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, j.ID)
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j Job) {
	err := s.handler(ctx, j)
	if err == nil {
		if ferr := s.store.Finish(ctx, j.ID, StateDone, ""); ferr != nil && !errors.Is(ferr, ErrJobNotFound) {
			s.logger.Warn("schedule: mark done", "job_id", j.ID, "error", ferr)
		}
		s.finished(StateDone)
		return
	}
	if ctx.Err() != nil {
		// Left pending; picked up again on the next Run.
		return
	}

	if j.Attempts+1 >= s.maxAttempts {
		s.logger.Error("schedule: giving up", "job_id", j.ID, "case_id", j.CaseID, "attempts", j.Attempts+1, "error", err)
		if ferr := s.store.Finish(ctx, j.ID, StateFailed, err.Error()); ferr != nil && !errors.Is(ferr, ErrJobNotFound) {
			s.logger.Warn("schedule: mark failed", "job_id", j.ID, "error", ferr)
		}
		s.finished(StateFailed)
		return
	}

	s.logger.Warn("schedule: job failed, retrying", "job_id", j.ID, "case_id", j.CaseID, "error", err)
	next, rerr := s.store.Retry(ctx, j.ID, s.now().Add(s.retryDelay), err.Error())
	if rerr != nil {
		if !errors.Is(rerr, ErrJobNotFound) {
			s.logger.Warn("schedule: record retry", "job_id", j.ID, "error", rerr)
		}
		return
	}
	s.mu.Lock()
	delete(s.running, j.ID)
	s.mu.Unlock()
	s.arm(next)
}

func (s *Scheduler) finished(state State) {
	if s.OnFinish != nil {
		s.OnFinish(state)
	}
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.byCase = map[string]map[string]struct{}{}
	s.mu.Unlock()

	s.wg.Wait()
}
