package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"salescrm_backend/internal/calendar"
	"salescrm_backend/internal/calendly"
	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/leads/leadstest"
	"salescrm_backend/internal/scheduler"
	userrepo "salescrm_backend/internal/users/repository"
	"salescrm_backend/platform/apperr"
	"salescrm_backend/platform/httpkit"

	"github.com/google/uuid"
)

const fmtUnexpectedErr = "unexpected error: %v"

var (
	fixedNow  = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	slotStart = time.Date(2025, 3, 12, 13, 0, 0, 0, time.UTC)
	cet       = time.FixedZone("CET", 3600)
)

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

type memDirectory map[uuid.UUID]userrepo.User

func (d memDirectory) GetByID(_ context.Context, id uuid.UUID) (userrepo.User, error) {
	u, ok := d[id]
	if !ok {
		return userrepo.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

// callLog records the order of calendar calls across both fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

type fakePrimary struct {
	log       *callLog
	blocks    []calendar.Block
	listErr   error
	createErr error
	created   []calendar.NewEvent
	deleted   []string
}

func (f *fakePrimary) ListFreeSlots(context.Context, string, time.Time) ([]calendar.Block, error) {
	return f.blocks, f.listErr
}

func (f *fakePrimary) CreateEvent(_ context.Context, _ string, ev calendar.NewEvent) (calendar.CreatedEvent, error) {
	f.log.add("primary")
	if f.createErr != nil {
		return calendar.CreatedEvent{}, f.createErr
	}
	f.created = append(f.created, ev)
	return calendar.CreatedEvent{ID: "evt-1", Link: "https://meet.example.com/evt-1"}, nil
}

func (f *fakePrimary) DeleteEvent(_ context.Context, _, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeSecondary struct {
	log      *callLog
	err      error
	bookings []calendly.Booking
}

func (f *fakeSecondary) BookEvent(_ context.Context, b calendly.Booking) (string, error) {
	f.log.add("secondary")
	if f.err != nil {
		return "", f.err
	}
	f.bookings = append(f.bookings, b)
	return "https://api.calendly.com/invitees/inv-1", nil
}

type fakeReminders struct {
	runAts []time.Time
}

func (f *fakeReminders) ScheduleAppointmentReminder(_ context.Context, _ scheduler.AppointmentReminderPayload, runAt time.Time) error {
	f.runAts = append(f.runAts, runAt)
	return nil
}

type fixture struct {
	store     *leadstest.Store
	primary   *fakePrimary
	secondary *fakeSecondary
	reminders *fakeReminders
	bus       *captureBus
	calls     *callLog
	closer    userrepo.User
	lead      domain.Lead
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	calls := &callLog{}
	f := &fixture{
		store:     leadstest.New(),
		primary:   &fakePrimary{log: calls},
		secondary: &fakeSecondary{log: calls},
		reminders: &fakeReminders{},
		bus:       &captureBus{},
		calls:     calls,
		closer: userrepo.User{
			ID:          uuid.New(),
			DisplayName: "Clara Closer",
			Role:        httpkit.RoleCloser,
			CalendarID:  "clara@example.com",
			Active:      true,
		},
	}
	f.lead = f.store.PutLead(domain.Lead{CompanyName: "Musterfirma GmbH", Source: "cold_call", Comment: "Erstkontakt am Telefon"})
	f.svc = New(f.store, memDirectory{f.closer.ID: f.closer}, f.primary, f.bus, nil, cet, nil,
		WithClock(func() time.Time { return fixedNow }),
		WithSecondary(f.secondary, "https://api.calendly.com/event_types/beratung"),
		WithReminders(f.reminders, time.Hour),
	)
	return f
}

func (f *fixture) request() BookRequest {
	setter := uuid.New()
	return BookRequest{
		LeadID:       f.lead.ID,
		CloserID:     f.closer.ID,
		SetterID:     &setter,
		SlotStart:    slotStart,
		CompanyName:  "Musterfirma GmbH",
		ContactName:  "Max Muster",
		ContactEmail: "max@musterfirma.de",
		ContactPhone: "030 1234567",
		Problem:      "Website bringt keine Anfragen",
	}
}

func TestBookCreatesHotLeadAndAuditEntry(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Book(context.Background(), f.request())
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}

	hot := result.HotLead
	if hot.Status != domain.StatusLead || hot.CloserID == nil || *hot.CloserID != f.closer.ID {
		t.Fatalf("unexpected hot lead %+v", hot)
	}
	if hot.AppointmentAt == nil || !hot.AppointmentAt.Equal(slotStart) {
		t.Fatalf("expected appointment at %s, got %v", slotStart, hot.AppointmentAt)
	}
	if hot.PrimaryEventID == nil || *hot.PrimaryEventID != "evt-1" {
		t.Fatalf("expected primary event id to be stored, got %v", hot.PrimaryEventID)
	}
	if hot.Comment != "Erstkontakt am Telefon" || hot.Source != "cold_call" {
		t.Fatalf("expected comment and source copied from lead, got %q / %q", hot.Comment, hot.Source)
	}

	lead, err := f.store.GetLead(context.Background(), f.lead.ID)
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	wantEntry := "[10.03.2025, 10:00] HOT LEAD: Termin am 12.03.2025 um 14:00 mit Clara Closer"
	if !strings.HasPrefix(lead.Comment, wantEntry) {
		t.Fatalf("expected audit entry %q first, got %q", wantEntry, lead.Comment)
	}
	if lead.Outcome != domain.OutcomeConsultationBooked {
		t.Fatalf("expected outcome %s, got %s", domain.OutcomeConsultationBooked, lead.Outcome)
	}

	if got := strings.Join(f.calls.calls, ","); got != "primary,secondary" {
		t.Fatalf("expected primary before secondary, got %s", got)
	}
	if !f.primary.created[0].End.Equal(slotStart.Add(defaultSlotDuration)) {
		t.Fatalf("unexpected event end %s", f.primary.created[0].End)
	}
	if b := f.secondary.bookings[0]; b.InviteeEmail != "max@musterfirma.de" || !b.Start.Equal(slotStart) {
		t.Fatalf("unexpected secondary booking %+v", b)
	}

	if len(f.reminders.runAts) != 1 || !f.reminders.runAts[0].Equal(slotStart.Add(-time.Hour)) {
		t.Fatalf("expected reminder one hour before, got %v", f.reminders.runAts)
	}
	if len(f.bus.events) != 1 {
		t.Fatalf("expected one event, got %d", len(f.bus.events))
	}
	if evt, ok := f.bus.events[0].(events.HotLeadCreated); !ok || evt.HotLeadID != hot.ID || evt.LeadID != f.lead.ID {
		t.Fatalf("unexpected event %#v", f.bus.events[0])
	}
}

func TestBookSucceedsWhenSecondaryFails(t *testing.T) {
	f := newFixture(t)
	f.secondary.err = errors.New("calendly: 503")

	result, err := f.svc.Book(context.Background(), f.request())
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != WarningSecondaryCalendarUnavailable {
		t.Fatalf("expected secondary warning, got %v", result.Warnings)
	}
	if f.store.HotLeadCount() != 1 {
		t.Fatalf("expected hot lead to be created")
	}
	lead, _ := f.store.GetLead(context.Background(), f.lead.ID)
	if !strings.Contains(lead.Comment, "HOT LEAD: Termin am 12.03.2025 um 14:00") {
		t.Fatalf("expected audit entry, got %q", lead.Comment)
	}
}

func TestBookAbortsWhenPrimaryFails(t *testing.T) {
	f := newFixture(t)
	f.primary.createErr = errors.New("calendar: 500")

	_, err := f.svc.Book(context.Background(), f.request())
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if f.store.HotLeadCount() != 0 {
		t.Fatalf("expected no hot lead")
	}
	lead, _ := f.store.GetLead(context.Background(), f.lead.ID)
	if lead.Comment != "Erstkontakt am Telefon" || lead.Outcome != "" {
		t.Fatalf("expected lead untouched, got %+v", lead)
	}
	if len(f.secondary.bookings) != 0 || len(f.calls.calls) != 1 {
		t.Fatalf("expected secondary not to be called, got %v", f.calls.calls)
	}
	if len(f.bus.events) != 0 || len(f.reminders.runAts) != 0 {
		t.Fatalf("expected no side effects")
	}
}

func TestBookRejectsExistingHotLead(t *testing.T) {
	f := newFixture(t)
	f.store.PutHotLead(domain.HotLead{OriginalLeadID: f.lead.ID, Status: domain.StatusLead})

	_, err := f.svc.Book(context.Background(), f.request())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.calls.calls) != 0 {
		t.Fatalf("expected no calendar calls, got %v", f.calls.calls)
	}
}

// racingStore hides existing hot leads from the pre-check so the insert
// itself reports the duplicate.
type racingStore struct {
	*leadstest.Store
}

func (racingStore) GetHotLeadByOriginalLeadID(context.Context, uuid.UUID) (domain.HotLead, error) {
	return domain.HotLead{}, apperr.NotFound("hot lead not found")
}

func TestBookCompensatesPrimaryEventOnConcurrentDuplicate(t *testing.T) {
	f := newFixture(t)
	f.store.PutHotLead(domain.HotLead{OriginalLeadID: f.lead.ID, Status: domain.StatusLead})
	svc := New(racingStore{f.store}, memDirectory{f.closer.ID: f.closer}, f.primary, f.bus, nil, cet, nil,
		WithClock(func() time.Time { return fixedNow }),
		WithSecondary(f.secondary, "https://api.calendly.com/event_types/beratung"),
	)

	_, err := svc.Book(context.Background(), f.request())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.primary.deleted) != 1 || f.primary.deleted[0] != "evt-1" {
		t.Fatalf("expected primary event to be deleted, got %v", f.primary.deleted)
	}
	if len(f.secondary.bookings) != 0 || len(f.calls.calls) != 1 {
		t.Fatalf("expected no secondary booking, got %v", f.calls.calls)
	}
	if f.store.HotLeadCount() != 1 {
		t.Fatalf("expected only the pre-existing hot lead")
	}
}

func TestBookValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*BookRequest)
		field  string
	}{
		"bad email":     {func(r *BookRequest) { r.ContactEmail = "max-at-musterfirma" }, "contactEmail"},
		"short phone":   {func(r *BookRequest) { r.ContactPhone = "12 34" }, "contactPhone"},
		"no company":    {func(r *BookRequest) { r.CompanyName = "" }, "companyName"},
		"blank problem": {func(r *BookRequest) { r.Problem = "   " }, "problem"},
		"past slot":     {func(r *BookRequest) { r.SlotStart = fixedNow.Add(-time.Hour) }, "slotStart"},
		"bad medium":    {func(r *BookRequest) { r.AppointmentMedium = "fax" }, "appointmentMedium"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			req := f.request()
			tc.mutate(&req)

			_, err := f.svc.Book(context.Background(), req)
			var appErr *apperr.Error
			if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			fields, _ := appErr.Details.([]apperr.FieldError)
			found := false
			for _, fe := range fields {
				if fe.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected field %s in %+v", tc.field, fields)
			}
			if len(f.calls.calls) != 0 || f.store.HotLeadCount() != 0 {
				t.Fatalf("expected no side effects on validation failure")
			}
		})
	}
}

func TestBookRejectsUnavailableCloser(t *testing.T) {
	f := newFixture(t)
	noCalendar := userrepo.User{ID: uuid.New(), Role: httpkit.RoleCloser, Active: true}
	inactive := userrepo.User{ID: uuid.New(), Role: httpkit.RoleCloser, CalendarID: "x@example.com"}
	setter := userrepo.User{ID: uuid.New(), Role: httpkit.RoleSetter, CalendarID: "y@example.com", Active: true}
	f.svc.directory = memDirectory{noCalendar.ID: noCalendar, inactive.ID: inactive, setter.ID: setter}

	for _, id := range []uuid.UUID{noCalendar.ID, inactive.ID, setter.ID, uuid.New()} {
		req := f.request()
		req.CloserID = id
		if _, err := f.svc.Book(context.Background(), req); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for closer %s, got %v", id, err)
		}
	}
	if len(f.calls.calls) != 0 {
		t.Fatalf("expected no calendar calls")
	}
}

func TestBookReportsAuditFailureAsWarning(t *testing.T) {
	f := newFixture(t)
	f.store.FailPrepend = errors.New("db down")

	result, err := f.svc.Book(context.Background(), f.request())
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != WarningLeadUpdatePending {
		t.Fatalf("expected lead update warning, got %v", result.Warnings)
	}
	if f.store.HotLeadCount() != 1 {
		t.Fatalf("expected hot lead to be kept")
	}
}

func TestBookSkipsReminderInsideLeadTime(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.SlotStart = fixedNow.Add(30 * time.Minute)

	if _, err := f.svc.Book(context.Background(), req); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(f.reminders.runAts) != 0 {
		t.Fatalf("expected no reminder, got %v", f.reminders.runAts)
	}
}

func TestBookVideoUsesCalendarLink(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.AppointmentMedium = "video"

	result, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if result.HotLead.AppointmentMedium != domain.MediumVideo || result.HotLead.MeetingLink == nil || *result.HotLead.MeetingLink != "https://meet.example.com/evt-1" {
		t.Fatalf("expected video appointment with calendar link, got %+v", result.HotLead)
	}
}

func TestAvailableSlotsSplitsBlocksAndDropsPast(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	f.primary.blocks = []calendar.Block{
		{Start: day.Add(11 * time.Hour), End: day.Add(11*time.Hour + 45*time.Minute)},
		{Start: day.Add(8 * time.Hour), End: day.Add(10 * time.Hour)},
	}

	slots, err := f.svc.AvailableSlots(context.Background(), f.closer.ID, day)
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	want := []time.Time{day.Add(9*time.Hour + 30*time.Minute), day.Add(11 * time.Hour)}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %+v", len(want), slots)
	}
	for i, slot := range slots {
		if !slot.Start.Equal(want[i]) || slot.End.Sub(slot.Start) != defaultSlotDuration {
			t.Fatalf("slot %d: expected start %s, got %+v", i, want[i], slot)
		}
	}
}

func TestAvailableSlotsCalendarFailure(t *testing.T) {
	f := newFixture(t)
	f.primary.listErr = errors.New("calendar: timeout")

	if _, err := f.svc.AvailableSlots(context.Background(), f.closer.ID, fixedNow); !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
