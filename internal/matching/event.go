// Package matching correlates external calendar events with hot leads.
// The two calendar systems share no identifier, so correlation runs through
// pluggable strategies: company name first, appointment time as fallback.
package matching

import "time"

// EventKind classifies the external event being matched.
type EventKind string

const (
	EventCanceled    EventKind = "invitee.canceled"
	EventRescheduled EventKind = "invitee.rescheduled"
	EventCreated     EventKind = "invitee.created"
)

// Event is the part of an external calendar event that matching looks at.
type Event struct {
	Kind          EventKind
	InviteeEmail  string
	CompanyAnswer string
	Start         time.Time
	// OldStart is the previous start of a rescheduled event.
	OldStart *time.Time
	// ArchiveKey points at the archived raw payload, when one was stored.
	ArchiveKey string
}

// ReferenceTime is the time compared against stored appointments: the old
// start for a reschedule, the event start otherwise. A reschedule whose old
// start is unknown has no reference time, so only the company tier applies.
func (e Event) ReferenceTime() time.Time {
	if e.OldStart != nil {
		return *e.OldStart
	}
	if e.Kind == EventRescheduled {
		return time.Time{}
	}
	return e.Start
}
