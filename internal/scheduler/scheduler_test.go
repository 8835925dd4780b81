package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"salescrm_backend/internal/events"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/leads/leadstest"
	"salescrm_backend/internal/notification/outbox"
	"salescrm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const fmtUnexpectedErr = "unexpected error: %v"

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

func (b *captureBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

var appointmentAt = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func reminderTask(t *testing.T, hotLeadID uuid.UUID, at time.Time) *asynq.Task {
	t.Helper()
	task, err := NewAppointmentReminderTask(AppointmentReminderPayload{HotLeadID: hotLeadID.String(), AppointmentAt: at})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	return task
}

func newTestWorker(store HotLeadReader, bus events.Bus) *Worker {
	return &Worker{store: store, bus: bus, log: logger.Discard()}
}

func TestAppointmentReminderPublishesWhenDue(t *testing.T) {
	store := leadstest.New()
	closer := uuid.New()
	at := appointmentAt
	hot := store.PutHotLead(domain.HotLead{CompanyName: "Musterfirma GmbH", AppointmentAt: &at, Status: domain.StatusLead, CloserID: &closer})
	bus := &captureBus{}

	if err := newTestWorker(store, bus).handleAppointmentReminder(context.Background(), reminderTask(t, hot.ID, appointmentAt)); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if bus.count() != 1 {
		t.Fatalf("expected one reminder event, got %d", bus.count())
	}
	evt, ok := bus.events[0].(events.AppointmentReminderDue)
	if !ok || evt.CloserID != closer || !evt.AppointmentAt.Equal(appointmentAt) {
		t.Fatalf("unexpected event %#v", bus.events[0])
	}
}

func TestAppointmentReminderDropsStaleReminders(t *testing.T) {
	closer := uuid.New()
	moved := appointmentAt.Add(48 * time.Hour)
	cases := map[string]domain.HotLead{
		"moved":     {AppointmentAt: &moved, Status: domain.StatusTerminVerschoben, CloserID: &closer},
		"cancelled": {Status: domain.StatusTerminAbgesagt, CloserID: &closer},
		"pooled":    {AppointmentAt: &appointmentAt, Status: domain.StatusLead},
		"lost":      {AppointmentAt: &appointmentAt, Status: domain.StatusVerloren, CloserID: &closer},
	}
	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			store := leadstest.New()
			hot := store.PutHotLead(seed)
			bus := &captureBus{}
			if err := newTestWorker(store, bus).handleAppointmentReminder(context.Background(), reminderTask(t, hot.ID, appointmentAt)); err != nil {
				t.Fatalf(fmtUnexpectedErr, err)
			}
			if bus.count() != 0 {
				t.Fatalf("expected no reminder, got %d", bus.count())
			}
		})
	}
}

func TestAppointmentReminderForUnknownHotLeadIsDropped(t *testing.T) {
	bus := &captureBus{}
	if err := newTestWorker(leadstest.New(), bus).handleAppointmentReminder(context.Background(), reminderTask(t, uuid.New(), appointmentAt)); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if bus.count() != 0 {
		t.Fatalf("expected no reminder")
	}
}

func TestAppointmentReminderRejectsBadPayload(t *testing.T) {
	err := newTestWorker(leadstest.New(), &captureBus{}).handleAppointmentReminder(context.Background(), asynq.NewTask(TaskAppointmentReminder, []byte(`{"hotLeadId":"nope"}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestOutboxDueTaskPublishesSync(t *testing.T) {
	bus := &captureBus{}
	id := uuid.New()
	task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{OutboxID: id.String()})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if err := newTestWorker(leadstest.New(), bus).handleNotificationOutboxDue(context.Background(), task); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	evt, ok := bus.events[0].(events.NotificationOutboxDue)
	if !ok || evt.OutboxID != id {
		t.Fatalf("unexpected event %#v", bus.events[0])
	}
}

func TestScheduleAppointmentReminderIgnoresDuplicateTask(t *testing.T) {
	enq := &fakeEnqueuer{err: asynq.ErrTaskIDConflict}
	c := &Client{client: enq, queue: "default"}
	if err := c.ScheduleAppointmentReminder(context.Background(), AppointmentReminderPayload{HotLeadID: uuid.NewString(), AppointmentAt: appointmentAt}, appointmentAt.Add(-time.Hour)); err != nil {
		t.Fatalf("expected duplicate reminder to be ignored, got %v", err)
	}

	enq.err = errors.New("redis down")
	if err := c.ScheduleAppointmentReminder(context.Background(), AppointmentReminderPayload{HotLeadID: uuid.NewString(), AppointmentAt: appointmentAt}, appointmentAt.Add(-time.Hour)); err == nil {
		t.Fatalf("expected enqueue error")
	}

	var nilClient *Client
	if err := nilClient.ScheduleAppointmentReminder(context.Background(), AppointmentReminderPayload{}, appointmentAt); err != nil {
		t.Fatalf("expected nil client to be a no-op, got %v", err)
	}
}

func TestReminderTaskIDDependsOnAppointment(t *testing.T) {
	id := uuid.NewString()
	a := reminderTaskID(AppointmentReminderPayload{HotLeadID: id, AppointmentAt: appointmentAt})
	b := reminderTaskID(AppointmentReminderPayload{HotLeadID: id, AppointmentAt: appointmentAt.Add(time.Hour)})
	if a == b {
		t.Fatalf("expected different task ids for different appointments")
	}
}

type memOutbox struct {
	records []outbox.Record
	pending []uuid.UUID
}

func (m *memOutbox) ClaimPending(context.Context, int) ([]outbox.Record, error) {
	claimed := m.records
	m.records = nil
	return claimed, nil
}

func (m *memOutbox) MarkPending(_ context.Context, id uuid.UUID, _ *string) error {
	m.pending = append(m.pending, id)
	return nil
}

func TestDispatchOnceEnqueuesClaimedRecords(t *testing.T) {
	repo := &memOutbox{records: []outbox.Record{{ID: uuid.New(), RunAt: appointmentAt}, {ID: uuid.New(), RunAt: appointmentAt}}}
	enq := &fakeEnqueuer{}
	d := &NotificationOutboxDispatcher{client: enq, queue: "default", repo: repo, log: logger.Discard()}

	if n := d.dispatchOnce(context.Background()); n != 2 {
		t.Fatalf("expected 2 enqueued, got %d", n)
	}
	if len(enq.tasks) != 2 || enq.tasks[0].Type() != TaskNotificationOutboxDue {
		t.Fatalf("unexpected tasks %+v", enq.tasks)
	}
}

func TestDispatchOnceResetsRecordsOnEnqueueFailure(t *testing.T) {
	id := uuid.New()
	repo := &memOutbox{records: []outbox.Record{{ID: id, RunAt: appointmentAt}}}
	d := &NotificationOutboxDispatcher{client: &fakeEnqueuer{err: errors.New("redis down")}, queue: "default", repo: repo, log: logger.Discard()}

	if n := d.dispatchOnce(context.Background()); n != 0 {
		t.Fatalf("expected nothing enqueued, got %d", n)
	}
	if len(repo.pending) != 1 || repo.pending[0] != id {
		t.Fatalf("expected record to be reset to pending, got %+v", repo.pending)
	}
}

type fakePruner struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (p *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.deleted, p.err
}

func TestHousekeepingCleansUpWithRetention(t *testing.T) {
	pruner := &fakePruner{deleted: 7}
	h, err := NewHousekeeping(pruner, 30*24*time.Hour, "", logger.Discard())
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	now := time.Date(2025, 4, 30, 3, 30, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	if got := h.cleanupMatchLog(context.Background()); got != 7 {
		t.Fatalf("expected 7 deleted, got %d", got)
	}
	if !pruner.cutoff.Equal(time.Date(2025, 3, 31, 3, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected cutoff %s", pruner.cutoff)
	}

	pruner.err = errors.New("db down")
	if got := h.cleanupMatchLog(context.Background()); got != 0 {
		t.Fatalf("expected 0 on failure, got %d", got)
	}
}

func TestHousekeepingRejectsInvalidSchedule(t *testing.T) {
	if _, err := NewHousekeeping(&fakePruner{}, time.Hour, "every tuesday", logger.Discard()); err == nil {
		t.Fatalf("expected invalid cron spec to fail")
	}
}
