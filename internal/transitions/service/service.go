// Package service implements the hot lead status transition engine.
package service

import (
	"context"
	"fmt"
	"time"

	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/platform/apperr"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/metrics"
	"salescrm_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultStatusWriteAttempts = 3
	defaultStatusWriteBackoff  = 200 * time.Millisecond
)

// Store is the subset of the lead store the engine writes to.
type Store interface {
	GetHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error)
	UpdateHotLeadStatus(ctx context.Context, id uuid.UUID, status domain.Status, change *domain.AppointmentChange) (domain.HotLead, error)
	UpdateDealTerms(ctx context.Context, id uuid.UUID, terms domain.DealTerms) (domain.HotLead, error)
	AppendHotLeadNote(ctx context.Context, id uuid.UUID, entry string) (domain.HotLead, error)
	PrependLeadComment(ctx context.Context, leadID uuid.UUID, entry string) error
}

// Request describes one logical change to a hot lead.
type Request struct {
	HotLeadID uuid.UUID
	// Status is the target status. Empty keeps the current one.
	Status domain.Status
	// Appointment changes the appointment along with the status. Nil leaves it.
	Appointment *domain.AppointmentChange
	Note        string
	// AuditText replaces the generated "STATUS: a → b" text.
	AuditText string
	ActorID   *uuid.UUID
	Origin    events.Origin
}

// Service applies status transitions.
type Service struct {
	store    Store
	bus      events.Bus
	loc      *time.Location
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics counts landed transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStatusWriteRetry sets the number of status write attempts and the
// backoff unit. Attempt n waits n*n*backoff before the next one.
func WithStatusWriteRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.backoff = backoff
	}
}

// New creates the transition engine. loc is the audit trail timezone.
func New(store Store, bus events.Bus, loc *time.Location, log *logger.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Discard()
	}
	s := &Service{
		store:    store,
		bus:      bus,
		loc:      loc,
		log:      log,
		now:      time.Now,
		attempts: defaultStatusWriteAttempts,
		backoff:  defaultStatusWriteBackoff,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply runs one transition. A request that changes neither status nor
// appointment only stores the note on the hot lead. Otherwise exactly one
// audit entry is prepended to the original lead before the status write,
// and the status write is retried until it lands or attempts run out.
// Re-running a failed Apply is safe: the audit prepend skips an entry equal
// to the newest one.
func (s *Service) Apply(ctx context.Context, req Request) (domain.HotLead, error) {
	hot, err := s.store.GetHotLead(ctx, req.HotLeadID)
	if err != nil {
		return domain.HotLead{}, err
	}

	target := req.Status
	if target == "" {
		target = hot.Status
	}
	note := sanitize.Text(req.Note)

	if target == hot.Status && req.Appointment == nil {
		return s.appendNote(ctx, hot, note)
	}

	if err := s.checkTransition(hot, target); err != nil {
		return domain.HotLead{}, err
	}

	text := req.AuditText
	if text == "" {
		text = domain.StatusChangeText(hot.Status, target, note)
	}
	entry := domain.FormatAuditEntry(s.now(), s.loc, text)
	if err := s.store.PrependLeadComment(ctx, hot.OriginalLeadID, entry); err != nil {
		return domain.HotLead{}, err
	}

	updated, err := s.writeStatus(ctx, hot.ID, target, req.Appointment)
	if err != nil {
		s.log.WithContext(ctx).Error("status write failed after audit entry was written",
			"hot_lead_id", hot.ID.String(),
			"lead_id", hot.OriginalLeadID.String(),
			"target_status", string(target),
			"error", err,
		)
		return domain.HotLead{}, err
	}

	s.metrics.RecordTransition(string(target))
	if s.bus != nil {
		origin := req.Origin
		if origin == "" {
			origin = events.OriginUser
		}
		s.bus.Publish(ctx, events.HotLeadStatusChanged{
			BaseEvent:   events.NewBaseEvent(),
			HotLeadID:   updated.ID,
			LeadID:      updated.OriginalLeadID,
			CompanyName: updated.CompanyName,
			OldStatus:   string(hot.Status),
			NewStatus:   string(target),
			SetterID:    updated.SetterID,
			CloserID:    updated.CloserID,
			ActorID:     req.ActorID,
			Origin:      origin,
		})
	}
	return updated, nil
}

// SetDealTerms stores the commercial terms required to close a hot lead.
func (s *Service) SetDealTerms(ctx context.Context, hotLeadID uuid.UUID, terms domain.DealTerms) (domain.HotLead, error) {
	var fields []apperr.FieldError
	if terms.SetupFeeCents != nil && *terms.SetupFeeCents < 0 {
		fields = append(fields, apperr.FieldError{Field: "setupFeeCents", Message: "must not be negative"})
	}
	if terms.RecurringFeeCents != nil && *terms.RecurringFeeCents < 0 {
		fields = append(fields, apperr.FieldError{Field: "recurringFeeCents", Message: "must not be negative"})
	}
	if terms.ContractMonths != nil && *terms.ContractMonths <= 0 {
		fields = append(fields, apperr.FieldError{Field: "contractMonths", Message: "must be at least 1"})
	}
	if len(fields) > 0 {
		return domain.HotLead{}, apperr.ValidationFields("invalid deal terms", fields)
	}

	hot, err := s.store.GetHotLead(ctx, hotLeadID)
	if err != nil {
		return domain.HotLead{}, err
	}
	if hot.Status.IsTerminal() {
		return domain.HotLead{}, apperr.Conflict(fmt.Sprintf("hot lead is already %s", hot.Status))
	}
	return s.store.UpdateDealTerms(ctx, hotLeadID, terms)
}

func (s *Service) appendNote(ctx context.Context, hot domain.HotLead, note string) (domain.HotLead, error) {
	if note == "" {
		return domain.HotLead{}, apperr.Validation("nothing to change: status, appointment and note are all unchanged")
	}
	return s.store.AppendHotLeadNote(ctx, hot.ID, domain.FormatAuditEntry(s.now(), s.loc, note))
}

func (s *Service) checkTransition(hot domain.HotLead, target domain.Status) error {
	if !domain.CanTransition(hot.Status, target) {
		return apperr.Validation(fmt.Sprintf("transition from %q to %q is not allowed", hot.Status, target)).
			WithDetails(map[string]string{"from": string(hot.Status), "to": string(target)})
	}
	if target == domain.StatusAbgeschlossen && !hot.DealTerms.Complete() {
		return apperr.ValidationFields("deal terms are required before closing", []apperr.FieldError{
			{Field: "dealTerms", Message: "setup fee, recurring fee and contract length must be set"},
		})
	}
	return nil
}

func (s *Service) writeStatus(ctx context.Context, id uuid.UUID, status domain.Status, change *domain.AppointmentChange) (domain.HotLead, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		updated, err := s.store.UpdateHotLeadStatus(ctx, id, status, change)
		if err == nil {
			return updated, nil
		}
		lastErr = err
		if !apperr.IsRetryable(err) || attempt == s.attempts {
			break
		}
		s.log.WithContext(ctx).Warn("retrying status write", "hot_lead_id", id.String(), "attempt", attempt, "error", err)
		if err := s.sleep(ctx, time.Duration(attempt*attempt)*s.backoff); err != nil {
			return domain.HotLead{}, err
		}
	}
	return domain.HotLead{}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
