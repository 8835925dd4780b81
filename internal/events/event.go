// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"salescrm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// Origin tells who triggered a hot lead change.
type Origin string

const (
	// OriginUser is a change made by a signed-in setter, closer or admin.
	OriginUser Origin = "user"
	// OriginCalendar is a change triggered by an external calendar webhook.
	OriginCalendar Origin = "calendar"
)

// =============================================================================
// Hot Lead Domain Events
// =============================================================================

// HotLeadCreated is published when a booking materializes a hot lead.
type HotLeadCreated struct {
	BaseEvent
	HotLeadID     uuid.UUID  `json:"hotLeadId"`
	LeadID        uuid.UUID  `json:"leadId"`
	CompanyName   string     `json:"companyName"`
	SetterID      *uuid.UUID `json:"setterId,omitempty"`
	CloserID      *uuid.UUID `json:"closerId,omitempty"`
	AppointmentAt time.Time  `json:"appointmentAt"`
}

func (e HotLeadCreated) EventName() string { return "hotlead.created" }

// HotLeadStatusChanged is published after a status write landed.
type HotLeadStatusChanged struct {
	BaseEvent
	HotLeadID   uuid.UUID  `json:"hotLeadId"`
	LeadID      uuid.UUID  `json:"leadId"`
	CompanyName string     `json:"companyName"`
	OldStatus   string     `json:"oldStatus"`
	NewStatus   string     `json:"newStatus"`
	SetterID    *uuid.UUID `json:"setterId,omitempty"`
	CloserID    *uuid.UUID `json:"closerId,omitempty"`
	ActorID     *uuid.UUID `json:"actorId,omitempty"`
	Origin      Origin     `json:"origin"`
}

func (e HotLeadStatusChanged) EventName() string { return "hotlead.status_changed" }

// HotLeadReleased is published when a closer hands a hot lead back to the pool.
type HotLeadReleased struct {
	BaseEvent
	HotLeadID        uuid.UUID `json:"hotLeadId"`
	CompanyName      string    `json:"companyName"`
	ReleasedByUserID uuid.UUID `json:"releasedByUserId"`
}

func (e HotLeadReleased) EventName() string { return "hotlead.released" }

// HotLeadsBulkReleased is published once per bulk release, for example when
// a closer account is deactivated.
type HotLeadsBulkReleased struct {
	BaseEvent
	CloserID   uuid.UUID   `json:"closerId"`
	HotLeadIDs []uuid.UUID `json:"hotLeadIds"`
}

func (e HotLeadsBulkReleased) EventName() string { return "hotlead.bulk_released" }

// HotLeadClaimed is published when a closer takes a hot lead from the pool.
type HotLeadClaimed struct {
	BaseEvent
	HotLeadID   uuid.UUID `json:"hotLeadId"`
	CompanyName string    `json:"companyName"`
	CloserID    uuid.UUID `json:"closerId"`
}

func (e HotLeadClaimed) EventName() string { return "hotlead.claimed" }

// =============================================================================
// Scheduler Events
// =============================================================================

// AppointmentReminderDue is published by the worker when a reminder task fires.
type AppointmentReminderDue struct {
	BaseEvent
	HotLeadID     uuid.UUID `json:"hotLeadId"`
	CloserID      uuid.UUID `json:"closerId"`
	CompanyName   string    `json:"companyName"`
	AppointmentAt time.Time `json:"appointmentAt"`
}

func (e AppointmentReminderDue) EventName() string { return "hotlead.appointment_reminder_due" }

// NotificationOutboxDue asks the notification module to deliver one outbox record.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox_due" }
