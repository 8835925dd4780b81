// Package leadstest provides an in-memory lead store for service tests.
package leadstest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/leads/repository"
	"salescrm_backend/platform/apperr"

	"github.com/google/uuid"
)

// Store mirrors the PostgreSQL repository semantics on maps.
// The exported Fail* fields inject failures into the next calls.
type Store struct {
	mu       sync.Mutex
	leads    map[uuid.UUID]domain.Lead
	hotLeads map[uuid.UUID]domain.HotLead
	seq      int

	// FailStatusWrites makes the next n UpdateHotLeadStatus calls fail.
	FailStatusWrites int
	// FailPrepend makes every PrependLeadComment call return this error.
	FailPrepend error
	// StatusWrites counts UpdateHotLeadStatus calls, failed ones included.
	StatusWrites int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		leads:    make(map[uuid.UUID]domain.Lead),
		hotLeads: make(map[uuid.UUID]domain.HotLead),
	}
}

var _ repository.Store = (*Store)(nil)

// clock returns strictly increasing timestamps so creation order is stable.
func (s *Store) clock() time.Time {
	s.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

// PutLead stores lead as-is, assigning an id when missing.
func (s *Store) PutLead(lead domain.Lead) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = s.clock()
		lead.UpdatedAt = lead.CreatedAt
	}
	s.leads[lead.ID] = lead
	return lead
}

// PutHotLead stores hot as-is, assigning an id when missing.
func (s *Store) PutHotLead(hot domain.HotLead) domain.HotLead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hot.ID == uuid.Nil {
		hot.ID = uuid.New()
	}
	if hot.CreatedAt.IsZero() {
		hot.CreatedAt = s.clock()
		hot.UpdatedAt = hot.CreatedAt
	}
	if hot.Attachments == nil {
		hot.Attachments = []string{}
	}
	s.hotLeads[hot.ID] = hot
	return hot
}

// HotLeadCount returns the number of stored hot leads.
func (s *Store) HotLeadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hotLeads)
}

func (s *Store) CreateLead(_ context.Context, p repository.CreateLeadParams) (domain.Lead, error) {
	return s.PutLead(domain.Lead{
		CompanyName:      p.CompanyName,
		ContactFirstName: p.ContactFirstName,
		ContactLastName:  p.ContactLastName,
		Email:            p.Email,
		Phone:            p.Phone,
		Website:          p.Website,
		City:             p.City,
		Region:           p.Region,
		Country:          p.Country,
		Category:         p.Category,
		Source:           p.Source,
		Comment:          p.Comment,
		Outcome:          domain.OutcomeNone,
	}), nil
}

func (s *Store) GetLead(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (s *Store) UpdateLeadOutcome(_ context.Context, id uuid.UUID, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	lead.Outcome = outcome
	lead.Contacted = true
	s.leads[id] = lead
	return nil
}

func (s *Store) PrependLeadComment(_ context.Context, leadID uuid.UUID, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPrepend != nil {
		return s.FailPrepend
	}
	lead, ok := s.leads[leadID]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	lead.Comment = domain.PrependAuditEntry(lead.Comment, entry)
	s.leads[leadID] = lead
	return nil
}

func (s *Store) CreateHotLead(_ context.Context, p repository.CreateHotLeadParams) (domain.HotLead, error) {
	s.mu.Lock()
	for _, existing := range s.hotLeads {
		if existing.OriginalLeadID == p.OriginalLeadID {
			s.mu.Unlock()
			return domain.HotLead{}, apperr.Conflict(repository.MsgDuplicateHotLead)
		}
	}
	s.mu.Unlock()

	at := p.AppointmentAt
	medium := p.AppointmentMedium
	if medium == "" {
		medium = domain.MediumPhone
	}
	return s.PutHotLead(domain.HotLead{
		OriginalLeadID:    p.OriginalLeadID,
		CompanyName:       p.CompanyName,
		AppointmentAt:     &at,
		AppointmentMedium: medium,
		MeetingLink:       p.MeetingLink,
		Status:            domain.StatusLead,
		Source:            p.Source,
		Priority:          p.Priority,
		SetterID:          p.SetterID,
		CloserID:          p.CloserID,
		Attachments:       p.Attachments,
		Comment:           p.Comment,
		PrimaryEventID:    p.PrimaryEventID,
	}), nil
}

func (s *Store) GetHotLead(_ context.Context, id uuid.UUID) (domain.HotLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hot, ok := s.hotLeads[id]
	if !ok {
		return domain.HotLead{}, apperr.NotFound("hot lead not found")
	}
	return hot, nil
}

func (s *Store) GetHotLeadByOriginalLeadID(_ context.Context, leadID uuid.UUID) (domain.HotLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hot := range s.hotLeads {
		if hot.OriginalLeadID == leadID {
			return hot, nil
		}
	}
	return domain.HotLead{}, apperr.NotFound("hot lead not found")
}

func (s *Store) ListPool(_ context.Context) ([]domain.HotLead, error) {
	return s.filter(func(h domain.HotLead) bool { return h.CloserID == nil }), nil
}

func (s *Store) ListHotLeadsByCloser(_ context.Context, closerID uuid.UUID) ([]domain.HotLead, error) {
	return s.filter(func(h domain.HotLead) bool { return h.CloserID != nil && *h.CloserID == closerID }), nil
}

func (s *Store) ListMatchCandidates(_ context.Context) ([]domain.HotLead, error) {
	return s.filter(domain.HotLead.IsMatchCandidate), nil
}

func (s *Store) ListMatchCandidatesBetween(_ context.Context, from, to time.Time) ([]domain.HotLead, error) {
	return s.filter(func(h domain.HotLead) bool {
		return h.IsMatchCandidate() && h.AppointmentAt.After(from) && h.AppointmentAt.Before(to)
	}), nil
}

func (s *Store) UpdateHotLeadStatus(_ context.Context, id uuid.UUID, status domain.Status, change *domain.AppointmentChange) (domain.HotLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusWrites++
	if s.FailStatusWrites > 0 {
		s.FailStatusWrites--
		return domain.HotLead{}, apperr.Internal("status write failed")
	}
	hot, ok := s.hotLeads[id]
	if !ok {
		return domain.HotLead{}, apperr.NotFound("hot lead not found")
	}
	hot.Status = status
	if change != nil {
		if change.Clear {
			hot.AppointmentAt = nil
		} else {
			at := change.At
			hot.AppointmentAt = &at
		}
	}
	hot.UpdatedAt = s.clock()
	s.hotLeads[id] = hot
	return hot, nil
}

func (s *Store) UpdateDealTerms(_ context.Context, id uuid.UUID, terms domain.DealTerms) (domain.HotLead, error) {
	return s.mutate(id, func(h *domain.HotLead) { h.DealTerms = terms })
}

func (s *Store) AppendHotLeadNote(_ context.Context, id uuid.UUID, entry string) (domain.HotLead, error) {
	return s.mutate(id, func(h *domain.HotLead) {
		if h.Comment == "" {
			h.Comment = entry
			return
		}
		h.Comment = entry + "\n" + h.Comment
	})
}

func (s *Store) ClaimHotLead(_ context.Context, id, closerID uuid.UUID) (domain.HotLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hot, ok := s.hotLeads[id]
	if !ok {
		return domain.HotLead{}, apperr.NotFound("hot lead not found")
	}
	if hot.CloserID != nil {
		return domain.HotLead{}, apperr.Conflict(repository.MsgAlreadyClaimed)
	}
	claimer := closerID
	hot.CloserID = &claimer
	s.hotLeads[id] = hot
	return hot, nil
}

func (s *Store) ReleaseHotLead(_ context.Context, id uuid.UUID) (domain.HotLead, error) {
	return s.mutate(id, func(h *domain.HotLead) { h.CloserID = nil })
}

func (s *Store) ReleaseHotLeadsForCloser(_ context.Context, closerID uuid.UUID) ([]domain.HotLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := make([]domain.HotLead, 0)
	for id, hot := range s.hotLeads {
		if hot.CloserID == nil || *hot.CloserID != closerID || hot.Status.IsTerminal() {
			continue
		}
		hot.CloserID = nil
		s.hotLeads[id] = hot
		released = append(released, hot)
	}
	sortByCreation(released)
	return released, nil
}

func (s *Store) mutate(id uuid.UUID, fn func(*domain.HotLead)) (domain.HotLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hot, ok := s.hotLeads[id]
	if !ok {
		return domain.HotLead{}, apperr.NotFound("hot lead not found")
	}
	fn(&hot)
	s.hotLeads[id] = hot
	return hot, nil
}

func (s *Store) filter(keep func(domain.HotLead) bool) []domain.HotLead {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.HotLead, 0)
	for _, hot := range s.hotLeads {
		if keep(hot) {
			items = append(items, hot)
		}
	}
	sortByCreation(items)
	return items
}

func sortByCreation(items []domain.HotLead) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return strings.Compare(items[i].ID.String(), items[j].ID.String()) < 0
	})
}
