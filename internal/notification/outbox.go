package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salescrm_backend/internal/email"
	"salescrm_backend/internal/events"
	notificationoutbox "salescrm_backend/internal/notification/outbox"

	"github.com/google/uuid"
)

const (
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute
	invalidOutboxPayloadPrefix = "invalid payload: "
)

// OutboxStore is the persistence the module needs for queued deliveries.
type OutboxStore interface {
	Insert(ctx context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (notificationoutbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

type emailSendOutboxPayload struct {
	ToEmail  string `json:"toEmail"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"bodyHtml"`
}

// queueEmail renders msg and stores it for the scheduler. Without an
// outbox the email is sent right away.
func (m *Module) queueEmail(ctx context.Context, toEmail string, msg email.Message) error {
	if m.outbox == nil {
		return m.sender.SendNotificationEmail(ctx, toEmail, msg)
	}

	body, err := email.RenderMessage(msg)
	if err != nil {
		return err
	}
	id, err := m.outbox.Insert(ctx, notificationoutbox.InsertParams{
		Kind:     notificationoutbox.KindEmail,
		Template: notificationoutbox.TemplateEmailSend,
		Payload: emailSendOutboxPayload{
			ToEmail:  toEmail,
			Subject:  msg.Subject,
			BodyHTML: body,
		},
		RunAt: m.now().UTC(),
	})
	if err != nil {
		return err
	}
	m.log.Debug("email queued in outbox", "outboxId", id.String(), "toEmail", toEmail)
	return nil
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox repository not configured; skipping outbox due event", "outboxId", e.OutboxID)
		return nil
	}
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != notificationoutbox.KindEmail || rec.Template != notificationoutbox.TemplateEmailSend {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if err := m.processEmailOutbox(ctx, rec); err != nil {
		m.handleOutboxDeliveryError(ctx, rec, err)
		return err
	}
	m.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return nil
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (notificationoutbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return notificationoutbox.Record{}, false, err
	}
	if rec.Status == notificationoutbox.StatusSucceeded {
		m.log.Debug("outbox record already succeeded; skipping", "outboxId", rec.ID.String())
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return notificationoutbox.Record{}, false, err
	}
	return rec, true, nil
}

func (m *Module) processEmailOutbox(ctx context.Context, rec notificationoutbox.Record) error {
	var payload emailSendOutboxPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}
	if strings.TrimSpace(payload.ToEmail) == "" {
		_ = m.outbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}
	if strings.TrimSpace(payload.Subject) == "" || strings.TrimSpace(payload.BodyHTML) == "" {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+"subject and bodyHtml are required")
		return nil
	}

	if err := m.sender.SendCustomEmail(ctx, payload.ToEmail, payload.Subject, payload.BodyHTML); err != nil {
		return err
	}
	_ = m.outbox.MarkSucceeded(ctx, rec.ID)
	return nil
}

// handleOutboxDeliveryError schedules a retry with exponential backoff or
// gives up after maxOutboxRetryAttempts.
func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec notificationoutbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := m.now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"attempt", attempt,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec notificationoutbox.Record) {
	msg := fmt.Sprintf("unsupported outbox kind/template: %s/%s", rec.Kind, rec.Template)
	_ = m.outbox.MarkFailed(ctx, rec.ID, msg)
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
}
