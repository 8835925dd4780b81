// Package service coordinates consultation bookings across the primary
// calendar, the secondary scheduler and the lead store.
package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"salescrm_backend/internal/calendar"
	"salescrm_backend/internal/calendly"
	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/leads/repository"
	"salescrm_backend/internal/scheduler"
	userrepo "salescrm_backend/internal/users/repository"
	"salescrm_backend/platform/apperr"
	"salescrm_backend/platform/httpkit"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/metrics"
	"salescrm_backend/platform/phone"
	"salescrm_backend/platform/sanitize"
	"salescrm_backend/platform/validator"

	"github.com/google/uuid"
)

const (
	// WarningSecondaryCalendarUnavailable is reported when the mirrored
	// booking in the secondary scheduler failed.
	WarningSecondaryCalendarUnavailable = "secondary_calendar_unavailable"
	// WarningLeadUpdatePending is reported when the hot lead exists but the
	// originating lead could not be annotated.
	WarningLeadUpdatePending = "lead_update_pending"

	defaultSlotDuration     = 30 * time.Minute
	defaultPrimaryTimeout   = 15 * time.Second
	defaultSecondaryTimeout = 10 * time.Second
	defaultReminderLeadTime = time.Hour
	compensationTimeout     = 10 * time.Second

	systemPrimaryCalendar   = "primary_calendar"
	systemSecondaryCalendar = "calendly"

	outcomeBooked            = "booked"
	outcomeBookedDegraded    = "booked_without_secondary"
	outcomePrimaryFailed     = "primary_failed"
	outcomeDuplicate         = "duplicate"
	outcomeValidationFailure = "validation_failed"

	msgPrimaryCalendarFailed = "appointment could not be created in the closer's calendar"
	msgSlotsUnavailable      = "free slots could not be loaded from the closer's calendar"
)

// LeadStore is the part of the lead store the coordinator writes to.
type LeadStore interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetHotLeadByOriginalLeadID(ctx context.Context, leadID uuid.UUID) (domain.HotLead, error)
	CreateHotLead(ctx context.Context, p repository.CreateHotLeadParams) (domain.HotLead, error)
	PrependLeadComment(ctx context.Context, leadID uuid.UUID, entry string) error
	UpdateLeadOutcome(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error
}

// Directory resolves closers to their calendar identity.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (userrepo.User, error)
}

// PrimaryCalendar is the closer's real calendar. Event creation is mandatory.
type PrimaryCalendar interface {
	ListFreeSlots(ctx context.Context, calendarID string, date time.Time) ([]calendar.Block, error)
	CreateEvent(ctx context.Context, calendarID string, ev calendar.NewEvent) (calendar.CreatedEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// SecondaryScheduler mirrors bookings on a best-effort basis.
type SecondaryScheduler interface {
	BookEvent(ctx context.Context, b calendly.Booking) (string, error)
}

// BookRequest is a validated booking command.
type BookRequest struct {
	LeadID            uuid.UUID  `json:"leadId" validate:"required"`
	CloserID          uuid.UUID  `json:"closerId" validate:"required"`
	SetterID          *uuid.UUID `json:"-"`
	SlotStart         time.Time  `json:"slotStart" validate:"required"`
	CompanyName       string     `json:"companyName" validate:"required,max=200"`
	ContactName       string     `json:"contactName" validate:"max=200"`
	ContactEmail      string     `json:"contactEmail" validate:"required,email,max=254"`
	ContactPhone      string     `json:"contactPhone" validate:"required,max=40"`
	Problem           string     `json:"problem" validate:"required,max=4000"`
	AppointmentMedium string     `json:"appointmentMedium" validate:"omitempty,oneof=phone video"`
	MeetingLink       string     `json:"meetingLink" validate:"omitempty,url,max=500"`
	Priority          string     `json:"priority" validate:"omitempty,oneof=low normal high"`
}

// BookResult is a successful booking. Warnings name optional steps that failed.
type BookResult struct {
	HotLead        domain.HotLead
	PrimaryEventID string
	SecondaryURI   string
	Warnings       []string
}

// Slot is one bookable interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Service is the booking coordinator.
type Service struct {
	store            LeadStore
	directory        Directory
	primary          PrimaryCalendar
	secondary        SecondaryScheduler
	reminders        scheduler.ReminderScheduler
	bus              events.Bus
	val              *validator.Validator
	metrics          *metrics.Metrics
	log              *logger.Logger
	loc              *time.Location
	now              func() time.Time
	slotDuration     time.Duration
	reminderLeadTime time.Duration
	primaryTimeout   time.Duration
	secondaryTimeout time.Duration
	eventTypeURI     string
}

// Option configures a Service.
type Option func(*Service)

// WithSecondary enables mirroring to the secondary scheduler.
func WithSecondary(s SecondaryScheduler, eventTypeURI string) Option {
	return func(svc *Service) {
		svc.secondary = s
		svc.eventTypeURI = eventTypeURI
	}
}

// WithReminders schedules an appointment reminder per booking.
func WithReminders(r scheduler.ReminderScheduler, leadTime time.Duration) Option {
	return func(svc *Service) {
		svc.reminders = r
		if leadTime > 0 {
			svc.reminderLeadTime = leadTime
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithSlotDuration sets the length of offered slots and booked events.
func WithSlotDuration(d time.Duration) Option {
	return func(svc *Service) {
		if d > 0 {
			svc.slotDuration = d
		}
	}
}

// WithTimeouts bounds the primary and secondary calendar calls.
func WithTimeouts(primary, secondary time.Duration) Option {
	return func(svc *Service) {
		if primary > 0 {
			svc.primaryTimeout = primary
		}
		if secondary > 0 {
			svc.secondaryTimeout = secondary
		}
	}
}

// WithMetrics counts booking outcomes and upstream failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// New creates the coordinator. loc is used for audit text and date parsing.
func New(store LeadStore, directory Directory, primary PrimaryCalendar, bus events.Bus, val *validator.Validator, loc *time.Location, log *logger.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Discard()
	}
	if val == nil {
		val = validator.New()
	}
	s := &Service{
		store:            store,
		directory:        directory,
		primary:          primary,
		bus:              bus,
		val:              val,
		log:              log,
		loc:              loc,
		now:              time.Now,
		slotDuration:     defaultSlotDuration,
		reminderLeadTime: defaultReminderLeadTime,
		primaryTimeout:   defaultPrimaryTimeout,
		secondaryTimeout: defaultSecondaryTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the timezone dates are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// AvailableSlots splits the closer's free blocks on date into slots and
// drops every slot that does not start after now.
func (s *Service) AvailableSlots(ctx context.Context, closerID uuid.UUID, date time.Time) ([]Slot, error) {
	closer, err := s.resolveCloser(ctx, closerID)
	if err != nil {
		return nil, err
	}

	blocks, err := s.primary.ListFreeSlots(ctx, closer.CalendarID, date)
	if err != nil {
		s.upstreamFailure(ctx, systemPrimaryCalendar, "list_free_slots", true, err)
		return nil, apperr.Upstream(msgSlotsUnavailable, err)
	}
	return splitBlocks(blocks, s.slotDuration, s.now()), nil
}

// Book creates the appointment in the primary calendar, materializes the hot
// lead and then mirrors the appointment to the secondary scheduler. Nothing
// is persisted unless the primary calendar accepted the event, and a failed
// hot lead insert removes that event again.
func (s *Service) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	log := s.log.WithContext(ctx)

	if err := s.validate(req); err != nil {
		s.metrics.RecordBooking(outcomeValidationFailure)
		return BookResult{}, err
	}

	lead, err := s.store.GetLead(ctx, req.LeadID)
	if err != nil {
		return BookResult{}, err
	}
	if err := s.ensureNoHotLead(ctx, req.LeadID); err != nil {
		return BookResult{}, err
	}
	closer, err := s.resolveCloser(ctx, req.CloserID)
	if err != nil {
		return BookResult{}, err
	}

	start := req.SlotStart.UTC()
	end := start.Add(s.slotDuration)

	created, err := s.createPrimaryEvent(ctx, closer, req, start, end)
	if err != nil {
		s.metrics.RecordBooking(outcomePrimaryFailed)
		return BookResult{}, err
	}

	hot, err := s.store.CreateHotLead(ctx, s.hotLeadParams(lead, req, closer, start, created))
	if err != nil {
		s.compensatePrimary(ctx, closer.CalendarID, created.ID)
		if apperr.Is(err, apperr.KindConflict) {
			s.metrics.RecordBooking(outcomeDuplicate)
		}
		return BookResult{}, err
	}

	// The secondary booking is only made once the hot lead exists.
	result := BookResult{HotLead: hot, PrimaryEventID: created.ID}
	if uri, ok := s.mirrorToSecondary(ctx, req, start); ok {
		result.SecondaryURI = uri
	} else if s.secondary != nil {
		result.Warnings = append(result.Warnings, WarningSecondaryCalendarUnavailable)
	}

	entry := domain.FormatAuditEntry(s.now(), s.loc, domain.BookingText(start, s.loc, closer.DisplayName))
	if err := s.store.PrependLeadComment(ctx, lead.ID, entry); err != nil {
		log.Error("booking audit entry not written", "lead_id", lead.ID.String(), "hot_lead_id", hot.ID.String(), "error", err)
		result.Warnings = append(result.Warnings, WarningLeadUpdatePending)
	} else if err := s.store.UpdateLeadOutcome(ctx, lead.ID, domain.OutcomeConsultationBooked); err != nil {
		log.Error("lead outcome not updated after booking", "lead_id", lead.ID.String(), "error", err)
		result.Warnings = append(result.Warnings, WarningLeadUpdatePending)
	}

	s.scheduleReminder(ctx, hot.ID, start)

	if s.bus != nil {
		s.bus.Publish(ctx, events.HotLeadCreated{
			BaseEvent:     events.NewBaseEvent(),
			HotLeadID:     hot.ID,
			LeadID:        lead.ID,
			CompanyName:   hot.CompanyName,
			SetterID:      hot.SetterID,
			CloserID:      hot.CloserID,
			AppointmentAt: start,
		})
	}

	if s.secondary != nil && result.SecondaryURI == "" {
		s.metrics.RecordBooking(outcomeBookedDegraded)
	} else {
		s.metrics.RecordBooking(outcomeBooked)
	}
	log.Info("consultation booked",
		"hot_lead_id", hot.ID.String(),
		"lead_id", lead.ID.String(),
		"closer_id", closer.ID.String(),
		"appointment_at", start.Format(time.RFC3339),
		"warnings", strings.Join(result.Warnings, ","),
	)
	return result, nil
}

func (s *Service) validate(req BookRequest) error {
	var fields []apperr.FieldError
	if err := s.val.Struct(req); err != nil {
		converted := validator.ToAppError(err)
		var appErr *apperr.Error
		if !errors.As(converted, &appErr) {
			return converted
		}
		details, ok := appErr.Details.([]apperr.FieldError)
		if !ok {
			return converted
		}
		fields = append(fields, details...)
	}
	if strings.TrimSpace(req.ContactPhone) != "" && !phone.HasMinDigits(req.ContactPhone) {
		fields = append(fields, apperr.FieldError{Field: "contactPhone", Message: "must contain at least 6 digits"})
	}
	if strings.TrimSpace(req.CompanyName) == "" && req.CompanyName != "" {
		fields = append(fields, apperr.FieldError{Field: "companyName", Message: "is required"})
	}
	if strings.TrimSpace(req.Problem) == "" && req.Problem != "" {
		fields = append(fields, apperr.FieldError{Field: "problem", Message: "is required"})
	}
	if !req.SlotStart.IsZero() && !req.SlotStart.After(s.now()) {
		fields = append(fields, apperr.FieldError{Field: "slotStart", Message: "must be in the future"})
	}
	if len(fields) > 0 {
		return apperr.ValidationFields("booking request is invalid", fields)
	}
	return nil
}

func (s *Service) ensureNoHotLead(ctx context.Context, leadID uuid.UUID) error {
	_, err := s.store.GetHotLeadByOriginalLeadID(ctx, leadID)
	switch {
	case err == nil:
		s.metrics.RecordBooking(outcomeDuplicate)
		return apperr.Conflict(repository.MsgDuplicateHotLead)
	case apperr.Is(err, apperr.KindNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) resolveCloser(ctx context.Context, closerID uuid.UUID) (userrepo.User, error) {
	closer, err := s.directory.GetByID(ctx, closerID)
	if apperr.Is(err, apperr.KindNotFound) {
		return userrepo.User{}, apperr.ValidationFields("unknown closer", []apperr.FieldError{{Field: "closerId", Message: "does not exist"}})
	}
	if err != nil {
		return userrepo.User{}, err
	}
	if !closer.Active || closer.Role != httpkit.RoleCloser {
		return userrepo.User{}, apperr.ValidationFields("closer is not available", []apperr.FieldError{{Field: "closerId", Message: "must be an active closer"}})
	}
	if closer.CalendarID == "" {
		return userrepo.User{}, apperr.ValidationFields("closer has no calendar", []apperr.FieldError{{Field: "closerId", Message: "has no calendar configured"}})
	}
	return closer, nil
}

func (s *Service) createPrimaryEvent(ctx context.Context, closer userrepo.User, req BookRequest, start, end time.Time) (calendar.CreatedEvent, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.primaryTimeout)
	defer cancel()

	created, err := s.primary.CreateEvent(callCtx, closer.CalendarID, calendar.NewEvent{
		Title:       "Beratung: " + sanitize.Line(req.CompanyName),
		Description: eventDescription(req),
		Start:       start,
		End:         end,
	})
	if err != nil {
		s.upstreamFailure(ctx, systemPrimaryCalendar, "create_event", true, err)
		return calendar.CreatedEvent{}, apperr.Upstream(msgPrimaryCalendarFailed, err)
	}
	return created, nil
}

// mirrorToSecondary returns the invitee URI and true on success. Failures are
// logged and never returned.
func (s *Service) mirrorToSecondary(ctx context.Context, req BookRequest, start time.Time) (string, bool) {
	if s.secondary == nil {
		return "", false
	}
	callCtx, cancel := context.WithTimeout(ctx, s.secondaryTimeout)
	defer cancel()

	uri, err := s.secondary.BookEvent(callCtx, calendly.Booking{
		EventTypeURI: s.eventTypeURI,
		Start:        start,
		InviteeName:  inviteeName(req),
		InviteeEmail: strings.TrimSpace(req.ContactEmail),
		InviteePhone: req.ContactPhone,
		Timezone:     s.loc.String(),
		Metadata: map[string]string{
			"Firma":    sanitize.Line(req.CompanyName),
			"Anliegen": sanitize.Line(req.Problem),
		},
	})
	if err != nil {
		s.upstreamFailure(ctx, systemSecondaryCalendar, "book_event", false, err)
		return "", false
	}
	return uri, true
}

func (s *Service) compensatePrimary(ctx context.Context, calendarID, eventID string) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.primary.DeleteEvent(callCtx, calendarID, eventID); err != nil {
		s.upstreamFailure(ctx, systemPrimaryCalendar, "delete_event", false, err)
	}
}

func (s *Service) hotLeadParams(lead domain.Lead, req BookRequest, closer userrepo.User, start time.Time, created calendar.CreatedEvent) repository.CreateHotLeadParams {
	closerID := closer.ID
	eventID := created.ID
	medium := domain.MediumPhone
	if req.AppointmentMedium == string(domain.MediumVideo) {
		medium = domain.MediumVideo
	}
	var link *string
	switch {
	case strings.TrimSpace(req.MeetingLink) != "":
		v := strings.TrimSpace(req.MeetingLink)
		link = &v
	case medium == domain.MediumVideo && created.Link != "":
		v := created.Link
		link = &v
	}
	return repository.CreateHotLeadParams{
		OriginalLeadID:    lead.ID,
		CompanyName:       sanitize.Line(req.CompanyName),
		AppointmentAt:     start,
		AppointmentMedium: medium,
		MeetingLink:       link,
		Source:            lead.Source,
		Priority:          req.Priority,
		SetterID:          req.SetterID,
		CloserID:          &closerID,
		Comment:           lead.Comment,
		PrimaryEventID:    &eventID,
	}
}

func (s *Service) scheduleReminder(ctx context.Context, hotLeadID uuid.UUID, start time.Time) {
	if s.reminders == nil {
		return
	}
	runAt := start.Add(-s.reminderLeadTime)
	if !runAt.After(s.now()) {
		return
	}
	err := s.reminders.ScheduleAppointmentReminder(ctx, scheduler.AppointmentReminderPayload{
		HotLeadID:     hotLeadID.String(),
		AppointmentAt: start,
	}, runAt)
	if err != nil {
		s.upstreamFailure(ctx, "scheduler", "schedule_reminder", false, err)
	}
}

func (s *Service) upstreamFailure(ctx context.Context, system, op string, mandatory bool, err error) {
	s.log.WithContext(ctx).UpstreamFailure(system, op, mandatory, err)
	s.metrics.RecordUpstreamFailure(system, op)
}

func eventDescription(req BookRequest) string {
	lines := []string{
		"Firma: " + sanitize.Line(req.CompanyName),
		"Kontakt: " + inviteeName(req),
		"E-Mail: " + strings.TrimSpace(req.ContactEmail),
		"Telefon: " + phone.NormalizeE164(req.ContactPhone),
		"",
		sanitize.Text(req.Problem),
	}
	return strings.Join(lines, "\n")
}

func inviteeName(req BookRequest) string {
	if name := sanitize.Line(req.ContactName); name != "" {
		return name
	}
	return sanitize.Line(req.CompanyName)
}

// splitBlocks cuts every free block into back-to-back slots of d. A trailing
// remainder shorter than d is not offered.
func splitBlocks(blocks []calendar.Block, d time.Duration, now time.Time) []Slot {
	slots := make([]Slot, 0)
	for _, block := range blocks {
		for start := block.Start.UTC(); !start.Add(d).After(block.End.UTC()); start = start.Add(d) {
			if !start.After(now) {
				continue
			}
			slots = append(slots, Slot{Start: start, End: start.Add(d)})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}
