// Package notification turns hot lead domain events into in-app
// notifications, live SSE pushes and queued email copies.
// Domain modules only publish events and never talk to email or SSE directly.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"salescrm_backend/internal/email"
	"salescrm_backend/internal/events"
	apphttp "salescrm_backend/internal/http"
	"salescrm_backend/internal/leads/domain"
	notifhandler "salescrm_backend/internal/notification/handler"
	"salescrm_backend/internal/notification/inapp"
	"salescrm_backend/internal/notification/sse"
	userrepo "salescrm_backend/internal/users/repository"
	"salescrm_backend/platform/httpkit"
	"salescrm_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultFanOutLimit = 8

// RecipientDirectory resolves the users a notification goes to.
type RecipientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (userrepo.User, error)
	ListActiveByRole(ctx context.Context, role string) ([]userrepo.User, error)
}

// notice is one notification addressed to a single user.
type notice struct {
	Title     string
	Content   string
	Type      string
	Category  string
	HotLeadID uuid.UUID
	Email     email.Message
}

// Module handles all notification-related event subscriptions.
type Module struct {
	directory    RecipientDirectory
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
	sse          *sse.Service
	outbox       OutboxStore
	sender       email.Sender
	loc          *time.Location
	appBaseURL   string
	fanOutLimit  int
	now          func() time.Time
	log          *logger.Logger
}

// New creates a new notification module. Email copies are sent directly
// through sender until an outbox is configured with SetOutbox.
func New(inAppStore inapp.Store, directory RecipientDirectory, sender email.Sender, loc *time.Location, appBaseURL string, log *logger.Logger) *Module {
	if log == nil {
		log = logger.Discard()
	}
	if sender == nil {
		sender = email.NoopSender{}
	}
	if loc == nil {
		loc = time.UTC
	}
	inAppSvc := inapp.NewService(inAppStore, log)

	return &Module{
		directory:    directory,
		inAppService: inAppSvc,
		inAppHandler: notifhandler.NewHTTPHandler(inAppSvc, nil),
		sender:       sender,
		loc:          loc,
		appBaseURL:   strings.TrimRight(appBaseURL, "/"),
		fanOutLimit:  defaultFanOutLimit,
		now:          time.Now,
		log:          log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.inAppHandler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// SetSSE enables live pushes and the /notifications/stream endpoint.
func (m *Module) SetSSE(s *sse.Service) {
	m.sse = s
	m.inAppService.SetSSE(s)
	m.inAppHandler = notifhandler.NewHTTPHandler(m.inAppService, s)
}

// SetOutbox queues email copies instead of sending them inline.
func (m *Module) SetOutbox(outbox OutboxStore) { m.outbox = outbox }

// InAppService exposes the inbox service.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.HotLeadCreated{}.EventName(), m)
	bus.Subscribe(events.HotLeadStatusChanged{}.EventName(), m)
	bus.Subscribe(events.HotLeadReleased{}.EventName(), m)
	bus.Subscribe(events.HotLeadsBulkReleased{}.EventName(), m)
	bus.Subscribe(events.HotLeadClaimed{}.EventName(), m)
	bus.Subscribe(events.AppointmentReminderDue{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.HotLeadCreated:
		return m.handleHotLeadCreated(ctx, e)
	case events.HotLeadStatusChanged:
		return m.handleHotLeadStatusChanged(ctx, e)
	case events.HotLeadReleased:
		return m.handleHotLeadReleased(ctx, e)
	case events.HotLeadsBulkReleased:
		return m.handleHotLeadsBulkReleased(ctx, e)
	case events.HotLeadClaimed:
		return m.handleHotLeadClaimed(ctx, e)
	case events.AppointmentReminderDue:
		return m.handleAppointmentReminderDue(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleHotLeadCreated(ctx context.Context, e events.HotLeadCreated) error {
	when := domain.FormatAppointment(e.AppointmentAt, m.loc)
	n := notice{
		Title:     "Neuer Beratungstermin",
		Content:   fmt.Sprintf("%s am %s", e.CompanyName, when),
		Type:      inapp.TypeHotLeadCreated,
		Category:  "info",
		HotLeadID: e.HotLeadID,
		Email: email.Message{
			Subject: fmt.Sprintf(email.SubjectHotLeadCreatedFmt, e.CompanyName),
			Heading: "Neuer Beratungstermin",
			Body:    "Für dich wurde ein Beratungstermin gebucht.",
			Details: []email.Detail{
				{Label: "Firma", Value: e.CompanyName},
				{Label: "Termin", Value: when},
			},
			CTALabel: "Hot Lead öffnen",
		},
	}

	if e.CloserID != nil {
		return m.notifyUser(ctx, *e.CloserID, n)
	}

	n.Title = "Neuer Hot Lead im Pool"
	n.Email.Subject = fmt.Sprintf(email.SubjectHotLeadReleasedFmt, e.CompanyName)
	n.Email.Heading = n.Title
	n.Email.Body = "Ein neuer Beratungstermin ist ohne Closer gebucht worden und wartet im Pool."
	m.notifyActiveClosers(ctx, nil, n)
	m.pushPoolChanged(ctx, e.HotLeadID)
	return nil
}

// handleHotLeadStatusChanged notifies the setter about outcomes they care
// about and the closer about changes made from outside the app.
func (m *Module) handleHotLeadStatusChanged(ctx context.Context, e events.HotLeadStatusChanged) error {
	status := domain.Status(e.NewStatus)
	recipients := make([]uuid.UUID, 0, 2)

	if e.SetterID != nil && setterCaresAbout(status) && !sameUser(e.SetterID, e.ActorID) {
		recipients = append(recipients, *e.SetterID)
	}
	if e.CloserID != nil && e.Origin == events.OriginCalendar && !containsID(recipients, *e.CloserID) {
		recipients = append(recipients, *e.CloserID)
	}

	category := "info"
	switch status {
	case domain.StatusAbgeschlossen:
		category = "success"
	case domain.StatusVerloren, domain.StatusTerminAbgesagt:
		category = "warning"
	}

	subject := fmt.Sprintf(email.SubjectStatusChangedFmt, e.CompanyName, e.NewStatus)
	if e.Origin == events.OriginCalendar && status == domain.StatusTerminAbgesagt {
		subject = email.SubjectCalendarCancellation
	}

	n := notice{
		Title:     "Statusänderung: " + e.NewStatus,
		Content:   fmt.Sprintf("%s: %s → %s", e.CompanyName, e.OldStatus, e.NewStatus),
		Type:      inapp.TypeHotLeadStatus,
		Category:  category,
		HotLeadID: e.HotLeadID,
		Email: email.Message{
			Subject: subject,
			Heading: "Status geändert",
			Body:    fmt.Sprintf("Der Status von %s wurde geändert.", e.CompanyName),
			Details: []email.Detail{
				{Label: "Vorher", Value: e.OldStatus},
				{Label: "Jetzt", Value: e.NewStatus},
			},
			CTALabel: "Hot Lead öffnen",
		},
	}
	if e.Origin == events.OriginCalendar {
		n.Email.FooterNote = "Diese Änderung wurde durch den externen Kalender ausgelöst."
	}

	var firstErr error
	for _, userID := range recipients {
		if err := m.notifyUser(ctx, userID, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.pushHotLeadUpdated(e)
	return firstErr
}

func (m *Module) handleHotLeadReleased(ctx context.Context, e events.HotLeadReleased) error {
	exclude := e.ReleasedByUserID
	m.notifyActiveClosers(ctx, &exclude, notice{
		Title:     "Hot Lead im Pool",
		Content:   fmt.Sprintf("%s ist wieder im Pool verfügbar.", e.CompanyName),
		Type:      inapp.TypeHotLeadReleased,
		Category:  "info",
		HotLeadID: e.HotLeadID,
		Email: email.Message{
			Subject:  fmt.Sprintf(email.SubjectHotLeadReleasedFmt, e.CompanyName),
			Heading:  "Hot Lead im Pool",
			Body:     fmt.Sprintf("%s wurde freigegeben und kann übernommen werden.", e.CompanyName),
			CTALabel: "Pool öffnen",
		},
	})
	m.pushPoolChanged(ctx, e.HotLeadID)
	return nil
}

// handleHotLeadsBulkReleased sends one notification per closer for the
// whole batch.
func (m *Module) handleHotLeadsBulkReleased(ctx context.Context, e events.HotLeadsBulkReleased) error {
	if len(e.HotLeadIDs) == 0 {
		return nil
	}
	exclude := e.CloserID
	count := len(e.HotLeadIDs)
	m.notifyActiveClosers(ctx, &exclude, notice{
		Title:    "Hot Leads im Pool",
		Content:  fmt.Sprintf("%d Hot Leads sind wieder im Pool verfügbar.", count),
		Type:     inapp.TypeHotLeadsReleased,
		Category: "info",
		Email: email.Message{
			Subject:  fmt.Sprintf(email.SubjectBulkReleasedFmt, count),
			Heading:  "Hot Leads im Pool",
			Body:     fmt.Sprintf("%d Hot Leads wurden freigegeben und können übernommen werden.", count),
			CTALabel: "Pool öffnen",
		},
	})
	m.pushPoolChanged(ctx, uuid.Nil)
	return nil
}

func (m *Module) handleHotLeadClaimed(ctx context.Context, e events.HotLeadClaimed) error {
	m.pushPoolChanged(ctx, e.HotLeadID)
	return nil
}

func (m *Module) handleAppointmentReminderDue(ctx context.Context, e events.AppointmentReminderDue) error {
	when := domain.FormatAppointment(e.AppointmentAt, m.loc)
	return m.notifyUser(ctx, e.CloserID, notice{
		Title:     "Terminerinnerung",
		Content:   fmt.Sprintf("%s am %s", e.CompanyName, when),
		Type:      inapp.TypeAppointmentReminder,
		Category:  "info",
		HotLeadID: e.HotLeadID,
		Email: email.Message{
			Subject:   email.SubjectAppointmentReminder,
			Heading:   "Dein nächster Beratungstermin",
			Body:      fmt.Sprintf("Der Termin mit %s beginnt bald.", e.CompanyName),
			Details:   []email.Detail{{Label: "Termin", Value: when}},
			CTALabel:  "Hot Lead öffnen",
			Template:  email.TemplateReminder,
			Preheader: when,
		},
	})
}

// notifyUser persists the in-app notification and hands the email copy to
// the outbox. Inactive or unknown users are skipped.
func (m *Module) notifyUser(ctx context.Context, userID uuid.UUID, n notice) error {
	user, err := m.directory.GetByID(ctx, userID)
	if err != nil {
		m.log.Warn("notification recipient lookup failed", "userId", userID, "error", err)
		return err
	}
	if !user.Active {
		return nil
	}
	return m.deliver(ctx, user, n)
}

func (m *Module) deliver(ctx context.Context, user userrepo.User, n notice) error {
	var resourceID *uuid.UUID
	resourceType := ""
	if n.HotLeadID != uuid.Nil {
		id := n.HotLeadID
		resourceID = &id
		resourceType = inapp.ResourceHotLead
	}

	if _, err := m.inAppService.Send(ctx, inapp.SendParams{
		UserID:       user.ID,
		Title:        n.Title,
		Content:      n.Content,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Category:     n.Category,
		Type:         n.Type,
	}); err != nil {
		return err
	}

	if strings.TrimSpace(user.Email) == "" {
		return nil
	}
	msg := n.Email
	msg.CTAURL = m.link(n.HotLeadID)
	return m.queueEmail(ctx, user.Email, msg)
}

// notifyActiveClosers fans n out to every active closer except exclude.
// Individual failures are logged and do not stop the batch.
func (m *Module) notifyActiveClosers(ctx context.Context, exclude *uuid.UUID, n notice) {
	closers, err := m.directory.ListActiveByRole(ctx, httpkit.RoleCloser)
	if err != nil {
		m.log.Warn("failed to list closers for pool notification", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.fanOutLimit)
	for _, closer := range closers {
		if exclude != nil && closer.ID == *exclude {
			continue
		}
		g.Go(func() error {
			if err := m.deliver(gctx, closer, n); err != nil {
				m.log.Warn("pool notification failed",
					slog.String("user_id", closer.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Module) pushPoolChanged(ctx context.Context, hotLeadID uuid.UUID) {
	if m.sse == nil {
		return
	}
	closers, err := m.directory.ListActiveByRole(ctx, httpkit.RoleCloser)
	if err != nil {
		m.log.Warn("failed to list closers for pool push", "error", err)
		return
	}
	ids := make([]uuid.UUID, 0, len(closers))
	for _, c := range closers {
		ids = append(ids, c.ID)
	}
	m.sse.PublishToUsers(ids, sse.Event{Type: sse.EventPoolChanged, HotLeadID: hotLeadID})
}

func (m *Module) pushHotLeadUpdated(e events.HotLeadStatusChanged) {
	if m.sse == nil {
		return
	}
	ids := make([]uuid.UUID, 0, 2)
	if e.SetterID != nil {
		ids = append(ids, *e.SetterID)
	}
	if e.CloserID != nil && !containsID(ids, *e.CloserID) {
		ids = append(ids, *e.CloserID)
	}
	m.sse.PublishToUsers(ids, sse.Event{
		Type:      sse.EventHotLeadUpdated,
		HotLeadID: e.HotLeadID,
		Message:   e.NewStatus,
	})
}

func (m *Module) link(hotLeadID uuid.UUID) string {
	if m.appBaseURL == "" {
		return ""
	}
	if hotLeadID == uuid.Nil {
		return m.appBaseURL + "/pool"
	}
	return m.appBaseURL + "/hot-leads/" + hotLeadID.String()
}

func setterCaresAbout(status domain.Status) bool {
	switch status {
	case domain.StatusTerminAbgesagt, domain.StatusAbgeschlossen, domain.StatusVerloren:
		return true
	}
	return false
}

func sameUser(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
