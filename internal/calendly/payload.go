// Package calendly receives invitee webhooks from the external scheduler
// and books mirrored appointments in it.
package calendly

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	EventInviteeCreated  = "invitee.created"
	EventInviteeCanceled = "invitee.canceled"
)

// companyQuestionKeywords mark the free-text question that carries the
// invitee's company name.
var companyQuestionKeywords = []string{"company", "firma", "unternehmen"}

// Webhook is an inbound scheduler delivery.
type Webhook struct {
	Event     string         `json:"event"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   InviteePayload `json:"payload"`
}

type InviteePayload struct {
	URI                 string           `json:"uri"`
	Email               string           `json:"email"`
	Name                string           `json:"name"`
	QuestionsAndAnswers []QuestionAnswer `json:"questions_and_answers"`
	ScheduledEvent      ScheduledEvent   `json:"scheduled_event"`
	Cancellation        *Cancellation    `json:"cancellation"`
	Rescheduled         bool             `json:"rescheduled"`
	OldInvitee          json.RawMessage  `json:"old_invitee"`
}

type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type ScheduledEvent struct {
	URI       string    `json:"uri"`
	StartTime time.Time `json:"start_time"`
}

type Cancellation struct {
	CanceledBy string `json:"canceled_by"`
	Reason     string `json:"reason"`
}

// OldInvitee is the previous booking of a rescheduled invitee. The
// scheduler sends either an embedded object or just its URI.
type OldInvitee struct {
	URI   string
	Start *time.Time
}

var errMissingEvent = errors.New("webhook event is missing")

// ParseWebhook decodes a delivery body.
func ParseWebhook(body []byte) (Webhook, error) {
	var hook Webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return Webhook{}, fmt.Errorf("decode webhook: %w", err)
	}
	if strings.TrimSpace(hook.Event) == "" {
		return Webhook{}, errMissingEvent
	}
	return hook, nil
}

// CompanyAnswer returns the trimmed answer of the first question that asks
// for the company, or "".
func (p InviteePayload) CompanyAnswer() string {
	for _, qa := range p.QuestionsAndAnswers {
		question := strings.ToLower(qa.Question)
		for _, keyword := range companyQuestionKeywords {
			if strings.Contains(question, keyword) {
				return strings.TrimSpace(qa.Answer)
			}
		}
	}
	return ""
}

// CanceledBy returns the cancelling party, if any.
func (p InviteePayload) CanceledBy() string {
	if p.Cancellation == nil {
		return ""
	}
	return p.Cancellation.CanceledBy
}

// CancelReason returns the cancellation reason, if any.
func (p InviteePayload) CancelReason() string {
	if p.Cancellation == nil {
		return ""
	}
	return p.Cancellation.Reason
}

// PreviousInvitee decodes old_invitee. ok is false when the field is absent
// or null.
func (p InviteePayload) PreviousInvitee() (OldInvitee, bool) {
	raw := bytes.TrimSpace(p.OldInvitee)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return OldInvitee{}, false
	}

	var uri string
	if err := json.Unmarshal(raw, &uri); err == nil {
		if uri == "" {
			return OldInvitee{}, false
		}
		return OldInvitee{URI: uri}, true
	}

	var embedded struct {
		URI            string `json:"uri"`
		ScheduledEvent struct {
			StartTime *time.Time `json:"start_time"`
		} `json:"scheduled_event"`
	}
	if err := json.Unmarshal(raw, &embedded); err != nil {
		return OldInvitee{}, false
	}
	return OldInvitee{URI: embedded.URI, Start: embedded.ScheduledEvent.StartTime}, true
}

// DeliveryKey identifies one logical delivery across redeliveries.
func (w Webhook) DeliveryKey() string {
	return w.Event + "|" + w.Payload.URI + "|" + w.CreatedAt.UTC().Format(time.RFC3339Nano)
}
