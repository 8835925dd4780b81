package matching

import (
	"strings"
	"time"

	"salescrm_backend/internal/leads/domain"

	"golang.org/x/text/cases"
)

// Strategy names recorded in logs, metrics and the match log.
const (
	StrategyCompany = "company"
	StrategyTime    = "time"
	StrategyNone    = "none"
)

// DefaultTimeTolerance is the maximum distance between a stored appointment
// and the event's reference time. The bound is exclusive.
const DefaultTimeTolerance = 10 * time.Minute

// Strategy picks the first candidate that corresponds to ev. Candidates
// arrive in the store's stable enumeration order.
type Strategy interface {
	Name() string
	Find(ev Event, candidates []domain.HotLead) (domain.HotLead, bool)
}

// CompanyStrategy matches when the stored company name and the extracted
// answer are equal or one contains the other, ignoring case.
type CompanyStrategy struct{}

func NewCompanyStrategy() *CompanyStrategy {
	return &CompanyStrategy{}
}

func (s *CompanyStrategy) Name() string { return StrategyCompany }

func (s *CompanyStrategy) Find(ev Event, candidates []domain.HotLead) (domain.HotLead, bool) {
	answer := s.normalize(ev.CompanyAnswer)
	if answer == "" {
		return domain.HotLead{}, false
	}
	for _, candidate := range candidates {
		if !candidate.IsMatchCandidate() {
			continue
		}
		name := s.normalize(candidate.CompanyName)
		if name == "" {
			continue
		}
		if name == answer || strings.Contains(name, answer) || strings.Contains(answer, name) {
			return candidate, true
		}
	}
	return domain.HotLead{}, false
}

// normalize folds case and collapses inner whitespace.
func (s *CompanyStrategy) normalize(value string) string {
	return strings.Join(strings.Fields(cases.Fold().String(value)), " ")
}

// TimeStrategy matches when the stored appointment lies strictly within
// Tolerance of the event's reference time.
type TimeStrategy struct {
	Tolerance time.Duration
}

func NewTimeStrategy(tolerance time.Duration) *TimeStrategy {
	if tolerance <= 0 {
		tolerance = DefaultTimeTolerance
	}
	return &TimeStrategy{Tolerance: tolerance}
}

func (s *TimeStrategy) Name() string { return StrategyTime }

func (s *TimeStrategy) Find(ev Event, candidates []domain.HotLead) (domain.HotLead, bool) {
	ref := ev.ReferenceTime()
	if ref.IsZero() {
		return domain.HotLead{}, false
	}
	for _, candidate := range candidates {
		if !candidate.IsMatchCandidate() {
			continue
		}
		diff := candidate.AppointmentAt.Sub(ref)
		if diff < 0 {
			diff = -diff
		}
		if diff < s.Tolerance {
			return candidate, true
		}
	}
	return domain.HotLead{}, false
}
