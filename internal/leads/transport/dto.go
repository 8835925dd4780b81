// Package transport holds the lead HTTP request and response shapes.
package transport

import (
	"time"

	"salescrm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// DealTermsResponse exposes the commercial terms in cents.
type DealTermsResponse struct {
	SetupFeeCents     *int64 `json:"setupFeeCents,omitempty"`
	RecurringFeeCents *int64 `json:"recurringFeeCents,omitempty"`
	ContractMonths    *int   `json:"contractMonths,omitempty"`
	Complete          bool   `json:"complete"`
}

// HotLeadResponse is the API shape of a hot lead.
type HotLeadResponse struct {
	ID                uuid.UUID         `json:"id"`
	OriginalLeadID    uuid.UUID         `json:"originalLeadId"`
	CompanyName       string            `json:"companyName"`
	AppointmentAt     *time.Time        `json:"appointmentAt"`
	AppointmentMedium string            `json:"appointmentMedium"`
	MeetingLink       *string           `json:"meetingLink,omitempty"`
	Status            string            `json:"status"`
	Source            string            `json:"source"`
	Priority          string            `json:"priority"`
	DealTerms         DealTermsResponse `json:"dealTerms"`
	SetterID          *uuid.UUID        `json:"setterId,omitempty"`
	CloserID          *uuid.UUID        `json:"closerId"`
	InPool            bool              `json:"inPool"`
	Attachments       []string          `json:"attachments"`
	Comment           string            `json:"comment"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// HotLeadListResponse wraps a list of hot leads.
type HotLeadListResponse struct {
	Items []HotLeadResponse `json:"items"`
	Total int               `json:"total"`
}

// LeadResponse is the API shape of a cold lead.
type LeadResponse struct {
	ID          uuid.UUID  `json:"id"`
	CompanyName string     `json:"companyName"`
	ContactName string     `json:"contactName"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	City        string     `json:"city"`
	Source      string     `json:"source"`
	Comment     string     `json:"comment"`
	Contacted   bool       `json:"contacted"`
	Outcome     string     `json:"outcome"`
	FollowUpAt  *time.Time `json:"followUpAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func ToHotLeadResponse(h domain.HotLead) HotLeadResponse {
	attachments := h.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return HotLeadResponse{
		ID:                h.ID,
		OriginalLeadID:    h.OriginalLeadID,
		CompanyName:       h.CompanyName,
		AppointmentAt:     h.AppointmentAt,
		AppointmentMedium: string(h.AppointmentMedium),
		MeetingLink:       h.MeetingLink,
		Status:            string(h.Status),
		Source:            h.Source,
		Priority:          h.Priority,
		DealTerms: DealTermsResponse{
			SetupFeeCents:     h.DealTerms.SetupFeeCents,
			RecurringFeeCents: h.DealTerms.RecurringFeeCents,
			ContractMonths:    h.DealTerms.ContractMonths,
			Complete:          h.DealTerms.Complete(),
		},
		SetterID:    h.SetterID,
		CloserID:    h.CloserID,
		InPool:      h.InPool(),
		Attachments: attachments,
		Comment:     h.Comment,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
}

func ToHotLeadListResponse(items []domain.HotLead) HotLeadListResponse {
	out := make([]HotLeadResponse, 0, len(items))
	for _, item := range items {
		out = append(out, ToHotLeadResponse(item))
	}
	return HotLeadListResponse{Items: out, Total: len(out)}
}

func ToLeadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		ID:          l.ID,
		CompanyName: l.CompanyName,
		ContactName: l.ContactName(),
		Email:       l.Email,
		Phone:       l.Phone,
		City:        l.City,
		Source:      l.Source,
		Comment:     l.Comment,
		Contacted:   l.Contacted,
		Outcome:     string(l.Outcome),
		FollowUpAt:  l.FollowUpAt,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}
