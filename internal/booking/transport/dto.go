// Package transport holds the booking request and response shapes.
package transport

import (
	"time"

	"salescrm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// BookRequest is the body of POST /booking.
type BookRequest struct {
	LeadID            uuid.UUID `json:"leadId"`
	CloserID          uuid.UUID `json:"closerId"`
	SlotStart         time.Time `json:"slotStart"`
	CompanyName       string    `json:"companyName"`
	ContactName       string    `json:"contactName"`
	ContactEmail      string    `json:"contactEmail"`
	ContactPhone      string    `json:"contactPhone"`
	Problem           string    `json:"problem"`
	AppointmentMedium string    `json:"appointmentMedium"`
	MeetingLink       string    `json:"meetingLink"`
	Priority          string    `json:"priority"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SlotsResponse struct {
	CloserID uuid.UUID      `json:"closerId"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

// BookResponse is returned with 201. Warnings is never null.
type BookResponse struct {
	HotLead  domain.HotLead `json:"hotLead"`
	Warnings []string       `json:"warnings"`
}
