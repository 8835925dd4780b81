package matching

import (
	"context"
	"time"

	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/metrics"

	"github.com/google/uuid"
)

// CandidateSource lists match candidates in a stable order.
type CandidateSource interface {
	ListMatchCandidates(ctx context.Context) ([]domain.HotLead, error)
	ListMatchCandidatesBetween(ctx context.Context, from, to time.Time) ([]domain.HotLead, error)
}

// DecisionRecorder persists match decisions for later review.
type DecisionRecorder interface {
	Record(ctx context.Context, decision Decision) error
}

// Decision is one logged matching outcome.
type Decision struct {
	EventKind     EventKind
	Strategy      string
	CompanyAnswer string
	ReferenceTime time.Time
	HotLeadID     *uuid.UUID
	ArchiveKey    string
}

// Result is what the matcher found. HotLead is nil when Strategy is "none".
type Result struct {
	Strategy string
	HotLead  *domain.HotLead
}

// Matched reports whether a hot lead was found.
func (r Result) Matched() bool {
	return r.HotLead != nil
}

// Matcher runs the company strategy, then the time strategy.
type Matcher struct {
	source   CandidateSource
	recorder DecisionRecorder
	company  Strategy
	time     *TimeStrategy
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithRecorder stores every decision through r.
func WithRecorder(r DecisionRecorder) Option {
	return func(m *Matcher) { m.recorder = r }
}

// WithMetrics counts decisions per strategy.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Matcher) { m.metrics = mt }
}

// WithTimeTolerance overrides the time strategy tolerance.
func WithTimeTolerance(d time.Duration) Option {
	return func(m *Matcher) { m.time = NewTimeStrategy(d) }
}

// NewMatcher creates a matcher reading candidates from source.
func NewMatcher(source CandidateSource, log *logger.Logger, opts ...Option) *Matcher {
	if log == nil {
		log = logger.Discard()
	}
	m := &Matcher{
		source:  source,
		company: NewCompanyStrategy(),
		time:    NewTimeStrategy(DefaultTimeTolerance),
		log:     log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match finds the hot lead ev refers to. Finding nothing is a "none" result,
// not an error. Errors come only from reading candidates.
func (m *Matcher) Match(ctx context.Context, ev Event) (Result, error) {
	result, err := m.find(ctx, ev)
	if err != nil {
		return Result{}, err
	}
	m.record(ctx, ev, result)
	return result, nil
}

func (m *Matcher) find(ctx context.Context, ev Event) (Result, error) {
	if ev.CompanyAnswer != "" {
		candidates, err := m.source.ListMatchCandidates(ctx)
		if err != nil {
			return Result{}, err
		}
		if hot, ok := m.company.Find(ev, candidates); ok {
			return Result{Strategy: m.company.Name(), HotLead: &hot}, nil
		}
	}

	ref := ev.ReferenceTime()
	if !ref.IsZero() {
		candidates, err := m.source.ListMatchCandidatesBetween(ctx, ref.Add(-m.time.Tolerance), ref.Add(m.time.Tolerance))
		if err != nil {
			return Result{}, err
		}
		if hot, ok := m.time.Find(ev, candidates); ok {
			return Result{Strategy: m.time.Name(), HotLead: &hot}, nil
		}
	}

	return Result{Strategy: StrategyNone}, nil
}

func (m *Matcher) record(ctx context.Context, ev Event, result Result) {
	decision := Decision{
		EventKind:     ev.Kind,
		Strategy:      result.Strategy,
		CompanyAnswer: ev.CompanyAnswer,
		ReferenceTime: ev.ReferenceTime(),
		ArchiveKey:    ev.ArchiveKey,
	}
	hotLeadID := ""
	if result.HotLead != nil {
		id := result.HotLead.ID
		decision.HotLeadID = &id
		hotLeadID = id.String()
	}

	m.log.WithContext(ctx).MatchDecision(string(ev.Kind), result.Strategy, ev.CompanyAnswer, decision.ReferenceTime.UTC().Format(time.RFC3339), hotLeadID)
	m.metrics.RecordMatch(string(ev.Kind), result.Strategy)

	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, decision); err != nil {
		m.log.WithContext(ctx).Warn("failed to record match decision", "error", err)
	}
}
