package calendly

import (
	"context"
	"log/slog"
	"time"

	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/matching"
	transitionservice "salescrm_backend/internal/transitions/service"
	"salescrm_backend/platform/apperr"
	"salescrm_backend/platform/logger"
)

// Outcome says what a delivery led to.
type Outcome string

const (
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeRescheduled Outcome = "rescheduled"
	// OutcomeSuppressed is the cancel half of a reschedule. The matching
	// invitee.created carries the change.
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeNewBooking Outcome = "new_booking"
	OutcomeUnmatched  Outcome = "unmatched"
	OutcomeRejected   Outcome = "rejected"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeDuplicate  Outcome = "duplicate"
)

// EventMatcher correlates an external event with a hot lead.
type EventMatcher interface {
	Match(ctx context.Context, ev matching.Event) (matching.Result, error)
}

// Transitioner applies status changes.
type Transitioner interface {
	Apply(ctx context.Context, req transitionservice.Request) (domain.HotLead, error)
}

// InviteeResolver looks up the start of a previous booking by URI.
type InviteeResolver interface {
	ResolveInviteeStart(ctx context.Context, inviteeURI string) (time.Time, error)
}

// Service routes webhook deliveries to the matcher and the transition engine.
type Service struct {
	matcher     EventMatcher
	transitions Transitioner
	resolver    InviteeResolver
	loc         *time.Location
	log         *logger.Logger
}

func NewService(matcher EventMatcher, transitions Transitioner, resolver InviteeResolver, loc *time.Location, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{matcher: matcher, transitions: transitions, resolver: resolver, loc: loc, log: log}
}

// Process handles one parsed delivery. archiveKey references the stored raw
// payload and may be empty. Errors are returned only for failures a
// redelivery could fix.
func (s *Service) Process(ctx context.Context, hook Webhook, archiveKey string) (Outcome, error) {
	log := s.log.WithContext(ctx)

	switch hook.Event {
	case EventInviteeCanceled:
		if hook.Payload.Rescheduled {
			log.Info("cancel of rescheduled invitee suppressed", "inviteeUri", hook.Payload.URI)
			return OutcomeSuppressed, nil
		}
		return s.cancel(ctx, hook, archiveKey)

	case EventInviteeCreated:
		old, ok := hook.Payload.PreviousInvitee()
		if !ok {
			log.Info("new invitee booking logged", "inviteeUri", hook.Payload.URI, "email", hook.Payload.Email)
			return OutcomeNewBooking, nil
		}
		return s.reschedule(ctx, hook, old, archiveKey)

	default:
		log.Info("webhook event ignored", "event", hook.Event)
		return OutcomeIgnored, nil
	}
}

func (s *Service) cancel(ctx context.Context, hook Webhook, archiveKey string) (Outcome, error) {
	result, err := s.matcher.Match(ctx, matching.Event{
		Kind:          matching.EventCanceled,
		InviteeEmail:  hook.Payload.Email,
		CompanyAnswer: hook.Payload.CompanyAnswer(),
		Start:         hook.Payload.ScheduledEvent.StartTime,
		ArchiveKey:    archiveKey,
	})
	if err != nil {
		return "", err
	}
	if !result.Matched() {
		s.logUnmatched(ctx, hook)
		return OutcomeUnmatched, nil
	}

	return s.apply(ctx, OutcomeCancelled, transitionservice.Request{
		HotLeadID:   result.HotLead.ID,
		Status:      domain.StatusTerminAbgesagt,
		Appointment: &domain.AppointmentChange{Clear: true},
		AuditText:   domain.CancellationText(hook.Payload.CanceledBy(), hook.Payload.CancelReason()),
		Origin:      events.OriginCalendar,
	})
}

func (s *Service) reschedule(ctx context.Context, hook Webhook, old OldInvitee, archiveKey string) (Outcome, error) {
	newStart := hook.Payload.ScheduledEvent.StartTime
	oldStart := old.Start
	if oldStart == nil && old.URI != "" && s.resolver != nil {
		resolved, err := s.resolver.ResolveInviteeStart(ctx, old.URI)
		if err != nil {
			s.log.WithContext(ctx).UpstreamFailure("calendly", "resolve_old_invitee", false, err)
		} else {
			oldStart = &resolved
		}
	}

	result, err := s.matcher.Match(ctx, matching.Event{
		Kind:          matching.EventRescheduled,
		InviteeEmail:  hook.Payload.Email,
		CompanyAnswer: hook.Payload.CompanyAnswer(),
		Start:         newStart,
		OldStart:      oldStart,
		ArchiveKey:    archiveKey,
	})
	if err != nil {
		return "", err
	}
	if !result.Matched() {
		s.logUnmatched(ctx, hook)
		return OutcomeUnmatched, nil
	}

	return s.apply(ctx, OutcomeRescheduled, transitionservice.Request{
		HotLeadID:   result.HotLead.ID,
		Status:      domain.StatusTerminVerschoben,
		Appointment: &domain.AppointmentChange{At: newStart.UTC()},
		AuditText:   domain.RescheduleText(newStart, s.loc),
		Origin:      events.OriginCalendar,
	})
}

// apply runs the transition. A transition the state machine refuses is
// logged and acknowledged, since redelivering it cannot succeed.
func (s *Service) apply(ctx context.Context, outcome Outcome, req transitionservice.Request) (Outcome, error) {
	if _, err := s.transitions.Apply(ctx, req); err != nil {
		if apperr.Is(err, apperr.KindValidation) || apperr.Is(err, apperr.KindConflict) {
			s.log.WithContext(ctx).Warn("calendar transition rejected",
				slog.String("hot_lead_id", req.HotLeadID.String()),
				slog.String("target_status", string(req.Status)),
				slog.String("error", err.Error()),
			)
			return OutcomeRejected, nil
		}
		return "", err
	}
	return outcome, nil
}

func (s *Service) logUnmatched(ctx context.Context, hook Webhook) {
	s.log.WithContext(ctx).Warn("no hot lead matched calendar event",
		slog.String("event", hook.Event),
		slog.String("invitee_uri", hook.Payload.URI),
		slog.String("company_answer", hook.Payload.CompanyAnswer()),
	)
}
