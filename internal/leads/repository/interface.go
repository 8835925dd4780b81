package repository

import (
	"context"
	"time"

	"salescrm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces
// =====================================

// LeadReader provides read-only access to cold leads.
type LeadReader interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
}

// LeadWriter provides write operations on cold leads.
type LeadWriter interface {
	CreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, error)
	UpdateLeadOutcome(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error
}

// AuditSink prepends audit entries to a lead's comment. Implementations must
// never rewrite existing entries.
type AuditSink interface {
	PrependLeadComment(ctx context.Context, leadID uuid.UUID, entry string) error
}

// HotLeadReader provides read-only access to hot leads.
type HotLeadReader interface {
	GetHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error)
	GetHotLeadByOriginalLeadID(ctx context.Context, leadID uuid.UUID) (domain.HotLead, error)
	ListPool(ctx context.Context) ([]domain.HotLead, error)
	ListHotLeadsByCloser(ctx context.Context, closerID uuid.UUID) ([]domain.HotLead, error)
}

// MatchCandidateReader lists hot leads an external calendar event may refer to,
// ordered by creation time then id.
type MatchCandidateReader interface {
	ListMatchCandidates(ctx context.Context) ([]domain.HotLead, error)
	ListMatchCandidatesBetween(ctx context.Context, from, to time.Time) ([]domain.HotLead, error)
}

// HotLeadWriter provides lifecycle writes on hot leads.
type HotLeadWriter interface {
	CreateHotLead(ctx context.Context, params CreateHotLeadParams) (domain.HotLead, error)
	UpdateHotLeadStatus(ctx context.Context, id uuid.UUID, status domain.Status, change *domain.AppointmentChange) (domain.HotLead, error)
	UpdateDealTerms(ctx context.Context, id uuid.UUID, terms domain.DealTerms) (domain.HotLead, error)
	AppendHotLeadNote(ctx context.Context, id uuid.UUID, entry string) (domain.HotLead, error)
}

// PoolWriter moves hot leads between closers and the shared pool.
type PoolWriter interface {
	ClaimHotLead(ctx context.Context, id, closerID uuid.UUID) (domain.HotLead, error)
	ReleaseHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error)
	ReleaseHotLeadsForCloser(ctx context.Context, closerID uuid.UUID) ([]domain.HotLead, error)
}

// Store is the full lead store.
type Store interface {
	LeadReader
	LeadWriter
	AuditSink
	HotLeadReader
	MatchCandidateReader
	HotLeadWriter
	PoolWriter
}

// CreateLeadParams holds the fields for a new cold lead.
type CreateLeadParams struct {
	CompanyName      string
	ContactFirstName string
	ContactLastName  string
	Email            string
	Phone            string
	Website          string
	City             string
	Region           string
	Country          string
	Category         string
	Source           string
	Comment          string
}

// CreateHotLeadParams holds the fields for a new hot lead. Status is always
// domain.StatusLead on creation.
type CreateHotLeadParams struct {
	OriginalLeadID    uuid.UUID
	CompanyName       string
	AppointmentAt     time.Time
	AppointmentMedium domain.AppointmentMedium
	MeetingLink       *string
	Source            string
	Priority          string
	SetterID          *uuid.UUID
	CloserID          *uuid.UUID
	Attachments       []string
	Comment           string
	PrimaryEventID    *string
}
