package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"salescrm_backend/internal/email"
	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/notification/inapp"
	notificationoutbox "salescrm_backend/internal/notification/outbox"
	userrepo "salescrm_backend/internal/users/repository"
	"salescrm_backend/platform/apperr"
	"salescrm_backend/platform/httpkit"

	"github.com/google/uuid"
)

const (
	fmtUnexpectedErr = "unexpected error: %v"
	testCompany      = "Musterfirma GmbH"
)

type memInbox struct {
	mu      sync.Mutex
	items   []inapp.Notification
	failFor map[uuid.UUID]bool
}

func (s *memInbox) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[p.UserID] {
		return inapp.Notification{}, apperr.Internal("insert failed")
	}
	n := inapp.Notification{ID: uuid.New(), UserID: p.UserID, Title: p.Title, Content: p.Content, ResourceID: p.ResourceID, Category: p.Category}
	s.items = append(s.items, n)
	return n, nil
}

func (s *memInbox) List(context.Context, uuid.UUID, int, int) ([]inapp.Notification, int, error) {
	return nil, 0, nil
}
func (s *memInbox) CountUnread(context.Context, uuid.UUID) (int, error)  { return 0, nil }
func (s *memInbox) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (s *memInbox) MarkAllRead(context.Context, uuid.UUID) error         { return nil }
func (s *memInbox) Delete(context.Context, uuid.UUID, uuid.UUID) error   { return nil }

func (s *memInbox) forUser(id uuid.UUID) []inapp.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inapp.Notification
	for _, n := range s.items {
		if n.UserID == id {
			out = append(out, n)
		}
	}
	return out
}

type memDirectory struct {
	users []userrepo.User
}

func (d *memDirectory) add(role string, active bool) userrepo.User {
	u := userrepo.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", DisplayName: "User", Role: role, Active: active}
	d.users = append(d.users, u)
	return u
}

func (d *memDirectory) GetByID(_ context.Context, id uuid.UUID) (userrepo.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return userrepo.User{}, apperr.NotFound("user not found")
}

func (d *memDirectory) ListActiveByRole(_ context.Context, role string) ([]userrepo.User, error) {
	var out []userrepo.User
	for _, u := range d.users {
		if u.Role == role && u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

type memOutbox struct {
	mu       sync.Mutex
	records  map[uuid.UUID]notificationoutbox.Record
	statuses map[uuid.UUID]notificationoutbox.Status
	retryAt  map[uuid.UUID]time.Time
	lastErr  map[uuid.UUID]string
}

func newMemOutbox() *memOutbox {
	return &memOutbox{
		records:  map[uuid.UUID]notificationoutbox.Record{},
		statuses: map[uuid.UUID]notificationoutbox.Status{},
		retryAt:  map[uuid.UUID]time.Time{},
		lastErr:  map[uuid.UUID]string{},
	}
}

func (o *memOutbox) Insert(_ context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	id := uuid.New()
	o.records[id] = notificationoutbox.Record{ID: id, Kind: p.Kind, Template: p.Template, Payload: payload, RunAt: p.RunAt, Status: notificationoutbox.StatusPending}
	o.statuses[id] = notificationoutbox.StatusPending
	return id, nil
}

func (o *memOutbox) GetByID(_ context.Context, id uuid.UUID) (notificationoutbox.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return rec, apperr.NotFound("outbox record not found")
	}
	rec.Status = o.statuses[id]
	return rec, nil
}

func (o *memOutbox) setStatus(id uuid.UUID, s notificationoutbox.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[id] = s
}

func (o *memOutbox) MarkProcessing(_ context.Context, id uuid.UUID) error {
	o.setStatus(id, notificationoutbox.StatusProcessing)
	return nil
}

func (o *memOutbox) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	o.setStatus(id, notificationoutbox.StatusSucceeded)
	return nil
}

func (o *memOutbox) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	o.setStatus(id, notificationoutbox.StatusFailed)
	o.mu.Lock()
	o.lastErr[id] = lastError
	o.mu.Unlock()
	return nil
}

func (o *memOutbox) ScheduleRetry(_ context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	o.setStatus(id, notificationoutbox.StatusPending)
	o.mu.Lock()
	o.retryAt[id] = runAt
	o.lastErr[id] = lastError
	o.mu.Unlock()
	return nil
}

func (o *memOutbox) ids() []uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]uuid.UUID, 0, len(o.records))
	for id := range o.records {
		out = append(out, id)
	}
	return out
}

type sentEmail struct {
	to      string
	subject string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *recordingSender) SendNotificationEmail(_ context.Context, to string, msg email.Message) error {
	return s.SendCustomEmail(context.Background(), to, msg.Subject, "")
}

func (s *recordingSender) SendCustomEmail(_ context.Context, to, subject, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEmail{to: to, subject: subject})
	return nil
}

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	m      *Module
	inbox  *memInbox
	dir    *memDirectory
	outbox *memOutbox
	sender *recordingSender
}

func newFixture(withOutbox bool) *fixture {
	f := &fixture{
		inbox:  &memInbox{failFor: map[uuid.UUID]bool{}},
		dir:    &memDirectory{},
		sender: &recordingSender{},
	}
	f.m = New(f.inbox, f.dir, f.sender, time.UTC, "https://crm.example.com/", nil)
	f.m.now = func() time.Time { return fixedNow }
	if withOutbox {
		f.outbox = newMemOutbox()
		f.m.SetOutbox(f.outbox)
	}
	return f
}

func TestHotLeadCreatedNotifiesAssignedCloser(t *testing.T) {
	f := newFixture(true)
	closer := f.dir.add(httpkit.RoleCloser, true)
	other := f.dir.add(httpkit.RoleCloser, true)
	hotLeadID := uuid.New()

	err := f.m.Handle(context.Background(), events.HotLeadCreated{
		HotLeadID:     hotLeadID,
		CompanyName:   testCompany,
		CloserID:      &closer.ID,
		AppointmentAt: time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}

	got := f.inbox.forUser(closer.ID)
	if len(got) != 1 || got[0].Content != testCompany+" am 12.03.2025 um 14:00" {
		t.Fatalf("expected one notification for the closer, got %+v", got)
	}
	if got[0].ResourceID == nil || *got[0].ResourceID != hotLeadID {
		t.Fatalf("expected the hot lead as resource")
	}
	if len(f.inbox.forUser(other.ID)) != 0 {
		t.Fatalf("expected other closers to stay quiet")
	}

	ids := f.outbox.ids()
	if len(ids) != 1 {
		t.Fatalf("expected one queued email, got %d", len(ids))
	}
	rec, _ := f.outbox.GetByID(context.Background(), ids[0])
	var payload emailSendOutboxPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ToEmail != closer.Email || !strings.Contains(payload.BodyHTML, "https://crm.example.com/hot-leads/"+hotLeadID.String()) {
		t.Fatalf("unexpected queued email: %+v", payload)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("expected no inline send when the outbox is configured")
	}
}

func TestStatusChangedNotifiesSetterForCancellation(t *testing.T) {
	f := newFixture(false)
	setter := f.dir.add(httpkit.RoleSetter, true)
	closer := f.dir.add(httpkit.RoleCloser, true)

	err := f.m.Handle(context.Background(), events.HotLeadStatusChanged{
		HotLeadID:   uuid.New(),
		CompanyName: testCompany,
		OldStatus:   string(domain.StatusLead),
		NewStatus:   string(domain.StatusTerminAbgesagt),
		SetterID:    &setter.ID,
		CloserID:    &closer.ID,
		ActorID:     &closer.ID,
		Origin:      events.OriginUser,
	})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(f.inbox.forUser(setter.ID)) != 1 {
		t.Fatalf("expected the setter to be notified")
	}
	if len(f.inbox.forUser(closer.ID)) != 0 {
		t.Fatalf("expected no notification for the acting closer")
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].to != setter.Email {
		t.Fatalf("expected one inline email to the setter, got %+v", f.sender.sent)
	}
}

func TestStatusChangedFromCalendarNotifiesCloserToo(t *testing.T) {
	f := newFixture(false)
	setter := f.dir.add(httpkit.RoleSetter, true)
	closer := f.dir.add(httpkit.RoleCloser, true)

	err := f.m.Handle(context.Background(), events.HotLeadStatusChanged{
		HotLeadID:   uuid.New(),
		CompanyName: testCompany,
		OldStatus:   string(domain.StatusAngebot),
		NewStatus:   string(domain.StatusTerminAbgesagt),
		SetterID:    &setter.ID,
		CloserID:    &closer.ID,
		Origin:      events.OriginCalendar,
	})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(f.inbox.forUser(setter.ID)) != 1 || len(f.inbox.forUser(closer.ID)) != 1 {
		t.Fatalf("expected setter and closer to be notified")
	}
	for _, sent := range f.sender.sent {
		if sent.subject != email.SubjectCalendarCancellation {
			t.Fatalf("expected calendar cancellation subject, got %q", sent.subject)
		}
	}
}

func TestStatusChangedIgnoresIntermediateStatusForSetter(t *testing.T) {
	f := newFixture(false)
	setter := f.dir.add(httpkit.RoleSetter, true)
	closer := f.dir.add(httpkit.RoleCloser, true)

	err := f.m.Handle(context.Background(), events.HotLeadStatusChanged{
		HotLeadID: uuid.New(),
		OldStatus: string(domain.StatusLead),
		NewStatus: string(domain.StatusAngebot),
		SetterID:  &setter.ID,
		CloserID:  &closer.ID,
		Origin:    events.OriginUser,
	})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(f.inbox.items) != 0 {
		t.Fatalf("expected no notifications, got %d", len(f.inbox.items))
	}
}

func TestStatusChangedSkipsInactiveSetter(t *testing.T) {
	f := newFixture(false)
	setter := f.dir.add(httpkit.RoleSetter, false)

	err := f.m.Handle(context.Background(), events.HotLeadStatusChanged{
		HotLeadID: uuid.New(),
		NewStatus: string(domain.StatusVerloren),
		SetterID:  &setter.ID,
		Origin:    events.OriginUser,
	})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(f.inbox.items) != 0 {
		t.Fatalf("expected inactive setter to be skipped")
	}
}

func TestReleaseFansOutToOtherClosersDespiteFailures(t *testing.T) {
	f := newFixture(true)
	releaser := f.dir.add(httpkit.RoleCloser, true)
	broken := f.dir.add(httpkit.RoleCloser, true)
	healthy := []userrepo.User{f.dir.add(httpkit.RoleCloser, true), f.dir.add(httpkit.RoleCloser, true)}
	f.dir.add(httpkit.RoleCloser, false)
	f.inbox.failFor[broken.ID] = true

	err := f.m.Handle(context.Background(), events.HotLeadReleased{
		HotLeadID:        uuid.New(),
		CompanyName:      testCompany,
		ReleasedByUserID: releaser.ID,
	})
	if err != nil {
		t.Fatalf("expected release fan-out to swallow failures, got %v", err)
	}
	if len(f.inbox.forUser(releaser.ID)) != 0 {
		t.Fatalf("expected the releasing closer to be skipped")
	}
	for _, u := range healthy {
		if len(f.inbox.forUser(u.ID)) != 1 {
			t.Fatalf("expected closer %s to be notified", u.ID)
		}
	}
	if len(f.inbox.items) != 2 {
		t.Fatalf("expected exactly 2 notifications, got %d", len(f.inbox.items))
	}
}

func TestBulkReleaseSendsOneNotificationPerCloser(t *testing.T) {
	f := newFixture(true)
	deactivated := f.dir.add(httpkit.RoleCloser, false)
	a := f.dir.add(httpkit.RoleCloser, true)
	b := f.dir.add(httpkit.RoleCloser, true)

	err := f.m.Handle(context.Background(), events.HotLeadsBulkReleased{
		CloserID:   deactivated.ID,
		HotLeadIDs: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
	})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	for _, u := range []userrepo.User{a, b} {
		got := f.inbox.forUser(u.ID)
		if len(got) != 1 || !strings.HasPrefix(got[0].Content, "3 Hot Leads") {
			t.Fatalf("expected one batch notification for %s, got %+v", u.ID, got)
		}
	}
	if len(f.outbox.ids()) != 2 {
		t.Fatalf("expected 2 queued emails, got %d", len(f.outbox.ids()))
	}
}

func TestOutboxDueDeliversAndMarksSucceeded(t *testing.T) {
	f := newFixture(true)
	id, _ := f.outbox.Insert(context.Background(), notificationoutbox.InsertParams{
		Kind:     notificationoutbox.KindEmail,
		Template: notificationoutbox.TemplateEmailSend,
		Payload:  emailSendOutboxPayload{ToEmail: "closer@example.com", Subject: "Betreff", BodyHTML: "<p>Hallo</p>"},
	})

	if err := f.m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: id}); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	rec, _ := f.outbox.GetByID(context.Background(), id)
	if rec.Status != notificationoutbox.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", rec.Status)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].subject != "Betreff" {
		t.Fatalf("expected one delivered email, got %+v", f.sender.sent)
	}

	if err := f.m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: id}); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("expected a redelivered due event to be skipped")
	}
}

func TestOutboxDueSchedulesRetryOnSendFailure(t *testing.T) {
	f := newFixture(true)
	f.sender.err = errors.New("smtp down")
	id, _ := f.outbox.Insert(context.Background(), notificationoutbox.InsertParams{
		Kind:     notificationoutbox.KindEmail,
		Template: notificationoutbox.TemplateEmailSend,
		Payload:  emailSendOutboxPayload{ToEmail: "closer@example.com", Subject: "Betreff", BodyHTML: "<p>Hallo</p>"},
	})

	if err := f.m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: id}); err == nil {
		t.Fatalf("expected delivery error")
	}
	rec, _ := f.outbox.GetByID(context.Background(), id)
	if rec.Status != notificationoutbox.StatusPending {
		t.Fatalf("expected pending for retry, got %s", rec.Status)
	}
	if want := fixedNow.Add(time.Minute); !f.outbox.retryAt[id].Equal(want) {
		t.Fatalf("expected retry at %s, got %s", want, f.outbox.retryAt[id])
	}
}

func TestOutboxDueGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(true)
	f.sender.err = errors.New("smtp down")
	id, _ := f.outbox.Insert(context.Background(), notificationoutbox.InsertParams{
		Kind:     notificationoutbox.KindEmail,
		Template: notificationoutbox.TemplateEmailSend,
		Payload:  emailSendOutboxPayload{ToEmail: "closer@example.com", Subject: "Betreff", BodyHTML: "<p>Hallo</p>"},
	})
	rec := f.outbox.records[id]
	rec.Attempts = maxOutboxRetryAttempts - 1
	f.outbox.records[id] = rec

	_ = f.m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: id})
	got, _ := f.outbox.GetByID(context.Background(), id)
	if got.Status != notificationoutbox.StatusFailed {
		t.Fatalf("expected failed after max attempts, got %s", got.Status)
	}
}

func TestOutboxDueRejectsUnsupportedTemplate(t *testing.T) {
	f := newFixture(true)
	id, _ := f.outbox.Insert(context.Background(), notificationoutbox.InsertParams{
		Kind:     "sms",
		Template: "sms_send",
		Payload:  map[string]string{},
	})

	if err := f.m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: id}); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if !strings.HasPrefix(f.outbox.lastErr[id], "unsupported outbox kind/template") {
		t.Fatalf("unexpected last error %q", f.outbox.lastErr[id])
	}
}

func TestComputeOutboxRetryDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{7, 60 * time.Minute},
		{10, 60 * time.Minute},
	}
	for _, tc := range cases {
		if got := computeOutboxRetryDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}
