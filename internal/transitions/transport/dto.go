// Package transport holds the transition request shapes.
package transport

import "time"

// UpdateStatusRequest is the body of PATCH /hot-leads/:id/status.
// Status may be omitted to attach a note only.
type UpdateStatusRequest struct {
	Status        string     `json:"status" validate:"omitempty,max=40"`
	Note          string     `json:"note" validate:"max=2000"`
	AppointmentAt *time.Time `json:"appointmentAt"`
	// ClearAppointment removes the appointment. Ignored when AppointmentAt is set.
	ClearAppointment bool `json:"clearAppointment"`
}

// DealTermsRequest is the body of PUT /hot-leads/:id/deal-terms.
type DealTermsRequest struct {
	SetupFeeCents     *int64 `json:"setupFeeCents" validate:"omitempty,min=0"`
	RecurringFeeCents *int64 `json:"recurringFeeCents" validate:"omitempty,min=0"`
	ContractMonths    *int   `json:"contractMonths" validate:"omitempty,min=1,max=120"`
}
