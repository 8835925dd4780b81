package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of the last contact attempt on a cold lead.
type Outcome string

const (
	OutcomeNone               Outcome = "none"
	OutcomeNotReached         Outcome = "not_reached"
	OutcomeNoInterest         Outcome = "no_interest"
	OutcomeConsultationBooked Outcome = "consultation_booked"
	OutcomeDocumentsRequested Outcome = "documents_requested"
	OutcomeFollowUp           Outcome = "follow_up"
	OutcomeInvalid            Outcome = "invalid"
)

// AppointmentMedium is how the consultation takes place.
type AppointmentMedium string

const (
	MediumPhone AppointmentMedium = "phone"
	MediumVideo AppointmentMedium = "video"
)

// Lead is a cold prospect worked by a setter. Comment holds the audit log,
// newest entry first.
type Lead struct {
	ID               uuid.UUID  `json:"id"`
	CompanyName      string     `json:"companyName"`
	ContactFirstName string     `json:"contactFirstName"`
	ContactLastName  string     `json:"contactLastName"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone"`
	Website          string     `json:"website"`
	City             string     `json:"city"`
	Region           string     `json:"region"`
	Country          string     `json:"country"`
	Category         string     `json:"category"`
	Source           string     `json:"source"`
	Comment          string     `json:"comment"`
	Contacted        bool       `json:"contacted"`
	Outcome          Outcome    `json:"outcome"`
	FollowUpAt       *time.Time `json:"followUpAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ContactName joins first and last name.
func (l Lead) ContactName() string {
	switch {
	case l.ContactFirstName == "":
		return l.ContactLastName
	case l.ContactLastName == "":
		return l.ContactFirstName
	default:
		return l.ContactFirstName + " " + l.ContactLastName
	}
}

// DealTerms are the commercial terms required to close a hot lead.
type DealTerms struct {
	SetupFeeCents     *int64 `json:"setupFeeCents,omitempty"`
	RecurringFeeCents *int64 `json:"recurringFeeCents,omitempty"`
	ContractMonths    *int   `json:"contractMonths,omitempty"`
}

// Complete reports whether every term is set.
func (d DealTerms) Complete() bool {
	return d.SetupFeeCents != nil && d.RecurringFeeCents != nil && d.ContractMonths != nil && *d.ContractMonths > 0
}

// HotLead is a lead with a booked consultation. CloserID nil means the hot
// lead sits in the shared pool.
type HotLead struct {
	ID                uuid.UUID         `json:"id"`
	OriginalLeadID    uuid.UUID         `json:"originalLeadId"`
	CompanyName       string            `json:"companyName"`
	AppointmentAt     *time.Time        `json:"appointmentAt,omitempty"`
	AppointmentMedium AppointmentMedium `json:"appointmentMedium"`
	MeetingLink       *string           `json:"meetingLink,omitempty"`
	Status            Status            `json:"status"`
	Source            string            `json:"source"`
	Priority          string            `json:"priority"`
	DealTerms         DealTerms         `json:"dealTerms"`
	SetterID          *uuid.UUID        `json:"setterId,omitempty"`
	CloserID          *uuid.UUID        `json:"closerId,omitempty"`
	Attachments       []string          `json:"attachments"`
	Comment           string            `json:"comment"`
	PrimaryEventID    *string           `json:"primaryEventId,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// InPool reports whether no closer owns the hot lead.
func (h HotLead) InPool() bool {
	return h.CloserID == nil
}

// IsMatchCandidate reports whether an external calendar event may be
// correlated with this hot lead. Terminal hot leads stay candidates; the
// status graph refuses any change to them.
func (h HotLead) IsMatchCandidate() bool {
	return h.AppointmentAt != nil && !h.Status.IsCancelled()
}

// AppointmentChange describes how a status write affects the appointment.
// A nil *AppointmentChange leaves it untouched.
type AppointmentChange struct {
	// Clear removes the appointment. When false, At is the new time.
	Clear bool
	At    time.Time
}
