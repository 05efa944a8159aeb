package mediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"resolveit/broadcast"
	"resolveit/user"
	"resolveit/validation"
)

const (
	DefaultNotificationDelay = 5 * time.Second
	DefaultResponseWindow    = 7 * 24 * time.Hour
)

// PartyDirectory resolves the registered user filing a case.
type PartyDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// TransitionScheduler defers a status change. Implementations must be
// durable enough to survive a restart and safe to fire more than once.
type TransitionScheduler interface {
	ScheduleTransition(ctx context.Context, caseID string, from, to string, due time.Time) error
	CancelTransitions(ctx context.Context, caseID string) error
}

// TransitionObserver is told about every status a case enters.
type TransitionObserver interface {
	ObserveTransition(status string)
}

// Registration is the outcome of filing a case.
type Registration struct {
	Case               Case
	VerificationStatus string
	Notice             string
}

// Service drives cases through the mediation workflow.
type Service struct {
	repo      Repository
	parties   PartyDirectory
	publisher broadcast.Publisher
	scheduler TransitionScheduler
	observer  TransitionObserver
	logger    *slog.Logger

	notificationDelay time.Duration
	responseWindow    time.Duration
	idGenerator       func() string
	now               func() time.Time
}

func NewService(repo Repository, parties PartyDirectory, publisher broadcast.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = broadcast.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:              repo,
		parties:           parties,
		publisher:         publisher,
		logger:            logger,
		notificationDelay: DefaultNotificationDelay,
		responseWindow:    DefaultResponseWindow,
		idGenerator:       func() string { return uuid.NewString() },
		now:               time.Now,
	}
}

func (s *Service) WithScheduler(sched TransitionScheduler) *Service {
	s.scheduler = sched
	return s
}

func (s *Service) WithObserver(o TransitionObserver) *Service {
	s.observer = o
	return s
}

// WithTiming overrides the notification delay and response window. Zero
// values keep the defaults.
func (s *Service) WithTiming(notificationDelay, responseWindow time.Duration) *Service {
	if notificationDelay > 0 {
		s.notificationDelay = notificationDelay
	}
	if responseWindow > 0 {
		s.responseWindow = responseWindow
	}
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register files a new case in status Queued and arms the delayed move to
// Awaiting Response.
func (s *Service) Register(ctx context.Context, raw validation.Raw) (Registration, error) {
	in, err := validation.ValidateCase(raw)
	if err != nil {
		return Registration{}, err
	}

	party, err := s.parties.GetByID(ctx, in.PartyID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Registration{}, ErrPartyNotFound
		}
		return Registration{}, fmt.Errorf("mediation: lookup party: %w", err)
	}

	now := s.now().UTC()
	c := Case{
		ID:               s.idGenerator(),
		CaseType:         CaseType(in.CaseType),
		IssueDescription: in.IssueDescription,
		Party:            PartyRef{ID: party.ID, Name: party.Name, Email: party.Email, Phone: party.Phone},
		OppositeParty: OppositeParty{
			Name:             in.OppositeParty.Name,
			Contact:          in.OppositeParty.Contact,
			Address:          in.OppositeParty.Address,
			NotifiedAt:       now,
			ResponseDeadline: now.Add(s.responseWindow),
		},
		Proof:     in.Proof,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.CourtPending != nil {
		c.CourtPending = &CourtPending{
			IsPending:         in.CourtPending.IsPending,
			CaseNumber:        in.CourtPending.CaseNumber,
			FIRNumber:         in.CourtPending.FIRNumber,
			CourtOrPoliceName: in.CourtPending.CourtOrPoliceName,
		}
	}

	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Registration{}, err
	}
	s.observe(created.Status)

	if s.scheduler != nil {
		// The case row is committed; a caller that goes away must not lose the job.
		due := now.Add(s.notificationDelay)
		if err := s.scheduler.ScheduleTransition(context.WithoutCancel(ctx), created.ID, string(StatusQueued), string(StatusAwaitingResponse), due); err != nil {
			// The case stays Queued; an administrator can still move it on.
			s.logger.Error("mediation: schedule awaiting response", "case_id", created.ID, "error", err)
		}
	}
	s.emit(ctx, created, map[string]any{"created": true})

	return Registration{
		Case:               created,
		VerificationStatus: VerificationStatus(created.CourtPending),
		Notice: fmt.Sprintf("Opposite party %s will be notified for mediation. Response deadline: %s",
			created.OppositeParty.Name, created.OppositeParty.ResponseDeadline.Format("2006-01-02")),
	}, nil
}

// VerificationStatus describes any proceedings already open elsewhere.
func VerificationStatus(cp *CourtPending) string {
	if cp == nil || !cp.IsPending {
		return "Not Pending"
	}
	ref := cp.CaseNumber
	if ref == "" {
		ref = cp.FIRNumber
	}
	return fmt.Sprintf("Pending in %s (Case/FIR: %s)", cp.CourtOrPoliceName, ref)
}

// MarkAwaitingResponse moves a Queued case to Awaiting Response. It reports
// whether this call made the transition; later calls are no-ops.
func (s *Service) MarkAwaitingResponse(ctx context.Context, caseID string) (bool, error) {
	err := s.RunScheduledTransition(ctx, caseID, string(StatusQueued), string(StatusAwaitingResponse))
	if errors.Is(err, ErrInvalidTransition) {
		return false, nil
	}
	return err == nil, err
}

// RunScheduledTransition applies a deferred from -> to move. A case that has
// already left from yields ErrInvalidTransition and is left untouched.
func (s *Service) RunScheduledTransition(ctx context.Context, caseID, from, to string) error {
	fromStatus, ok := ParseStatus(from)
	if !ok {
		return fmt.Errorf("mediation: scheduled transition from unknown status %q", from)
	}
	toStatus, ok := ParseStatus(to)
	if !ok {
		return fmt.Errorf("mediation: scheduled transition to unknown status %q", to)
	}

	c, err := s.repo.Apply(ctx, caseID, []Status{fromStatus}, Update{
		Status:    toStatus,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.observe(c.Status)
	s.emit(ctx, c, map[string]any{"scheduled": true})
	return nil
}

// RespondOppositeParty records whether the opposite party accepts mediation.
// A later answer replaces an earlier one, whatever the case's status.
func (s *Service) RespondOppositeParty(ctx context.Context, caseID string, raw validation.Raw) (Case, error) {
	accepted, reason, err := validation.ValidateResponse(raw)
	if err != nil {
		return Case{}, err
	}

	status := StatusRejected
	if accepted {
		status = StatusAccepted
	}
	c, err := s.repo.Apply(ctx, caseID, nil, Update{
		Status:      status,
		HasAccepted: &accepted,
		UpdatedAt:   s.now().UTC(),
	})
	if err != nil {
		return Case{}, err
	}

	s.cancelPending(ctx, caseID)
	s.observe(c.Status)
	meta := map[string]any{"oppositePartyResponse": accepted}
	if reason != "" {
		meta["reason"] = reason
	}
	s.emit(ctx, c, meta)
	return c, nil
}

// CreatePanel replaces the mediator panel and moves the case to Panel Created.
func (s *Service) CreatePanel(ctx context.Context, caseID string, members any) (Case, error) {
	in, err := validation.ValidatePanelMembers(members)
	if err != nil {
		return Case{}, err
	}

	now := s.now().UTC()
	panel := make([]PanelMember, 0, len(in))
	for _, m := range in {
		panel = append(panel, PanelMember{Name: m.Name, Expertise: m.Expertise, Contact: m.Contact, AssignedAt: now})
	}
	if err := CheckPanel(panel); err != nil {
		return Case{}, err
	}

	c, err := s.repo.Apply(ctx, caseID, openFrom, Update{
		Status:    StatusPanelCreated,
		Panel:     panel,
		UpdatedAt: now,
	})
	if err != nil {
		return Case{}, err
	}

	s.cancelPending(ctx, caseID)
	s.observe(c.Status)
	s.emit(ctx, c, map[string]any{"panelSize": len(panel)})
	return c, nil
}

// NominateWitnesses appends witnesses in the order given. Status is unchanged.
func (s *Service) NominateWitnesses(ctx context.Context, caseID string, witnesses any) (Case, error) {
	in, err := validation.ValidateWitnesses(witnesses)
	if err != nil {
		return Case{}, err
	}

	add := make([]Witness, 0, len(in))
	for _, w := range in {
		add = append(add, Witness{Name: w.Name, Contact: w.Contact, Role: w.Role, NominatedBy: w.NominatedBy})
	}
	return s.repo.Apply(ctx, caseID, nil, Update{
		AppendWitnesses: add,
		UpdatedAt:       s.now().UTC(),
	})
}

// ScheduleMediation appends a session and moves the case to Mediation in
// Progress from any status.
func (s *Service) ScheduleMediation(ctx context.Context, caseID string, raw validation.Raw) (Case, error) {
	in, err := validation.ValidateSession(raw)
	if err != nil {
		return Case{}, err
	}

	session := MediationSession{
		ScheduledAt: in.ScheduledAt,
		Status:      SessionScheduled,
		Notes:       in.Notes,
		Attendees:   in.Attendees,
	}
	c, err := s.repo.Apply(ctx, caseID, nil, Update{
		Status:        StatusMediationInProgress,
		AppendSession: &session,
		UpdatedAt:     s.now().UTC(),
	})
	if err != nil {
		return Case{}, err
	}

	s.cancelPending(ctx, caseID)
	s.observe(c.Status)
	s.emit(ctx, c, map[string]any{"scheduledAt": session.ScheduledAt})
	return c, nil
}

// Resolve records the agreement and closes the case as Resolved. Resolving
// again replaces the recorded agreement.
func (s *Service) Resolve(ctx context.Context, caseID string, raw validation.Raw) (Case, error) {
	in, err := validation.ValidateResolution(raw)
	if err != nil {
		return Case{}, err
	}

	now := s.now().UTC()
	c, err := s.repo.Apply(ctx, caseID, nil, Update{
		Status: StatusResolved,
		Resolution: &Resolution{
			IsResolved:        true,
			Agreement:         in.Agreement,
			ResolvedAt:        &now,
			SatisfactionLevel: in.SatisfactionLevel,
		},
		UpdatedAt: now,
	})
	if err != nil {
		return Case{}, err
	}

	s.cancelPending(ctx, caseID)
	s.observe(c.Status)
	meta := map[string]any{"resolved": true}
	if in.SatisfactionLevel > 0 {
		meta["satisfactionLevel"] = in.SatisfactionLevel
	}
	s.emit(ctx, c, meta)
	return c, nil
}

// OverrideStatus sets any workflow status regardless of the current one.
func (s *Service) OverrideStatus(ctx context.Context, caseID, status string) (Case, error) {
	target, ok := ParseStatus(status)
	if !ok {
		return Case{}, validation.Fail("status", "invalid workflow status")
	}

	c, err := s.repo.Apply(ctx, caseID, nil, Update{
		Status:    target,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return Case{}, err
	}

	if target != StatusQueued {
		s.cancelPending(ctx, caseID)
	}
	s.observe(c.Status)
	s.emit(ctx, c, map[string]any{"workflowUpdate": true})
	return c, nil
}

func (s *Service) Get(ctx context.Context, caseID string) (Case, error) {
	return s.repo.GetByID(ctx, caseID)
}

// List returns cases matching the filter. Unknown filter values are rejected.
func (s *Service) List(ctx context.Context, status, caseType string) ([]Case, error) {
	var f ListFilter
	if status != "" {
		st, ok := ParseStatus(status)
		if !ok {
			return nil, validation.Fail("status", "invalid workflow status")
		}
		f.Status = st
	}
	if caseType != "" {
		switch ct := CaseType(caseType); ct {
		case CaseTypeFamily, CaseTypeBusiness, CaseTypeCriminal:
			f.CaseType = ct
		default:
			return nil, validation.Fail("caseType", "invalid case type")
		}
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx, s.now().UTC())
}

func (s *Service) emit(ctx context.Context, c Case, meta map[string]any) {
	ev := broadcast.Event{
		CaseID:   c.ID,
		Status:   string(c.Status),
		Metadata: meta,
		At:       c.UpdatedAt,
	}
	if err := s.publisher.Publish(ctx, broadcast.TopicDashboard, ev); err != nil {
		s.logger.Warn("mediation: broadcast failed", "case_id", c.ID, "status", c.Status, "error", err)
	}
}

func (s *Service) cancelPending(ctx context.Context, caseID string) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.CancelTransitions(ctx, caseID); err != nil {
		s.logger.Warn("mediation: cancel scheduled transition", "case_id", caseID, "error", err)
	}
}

func (s *Service) observe(status Status) {
	if s.observer != nil {
		s.observer.ObserveTransition(string(status))
	}
}
