package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreateLead           = "leads.repository.create_lead"
	opGetLead              = "leads.repository.get_lead"
	opUpdateOutcome        = "leads.repository.update_outcome"
	opPrependComment       = "leads.repository.prepend_comment"
	opCreateHotLead        = "leads.repository.create_hot_lead"
	opGetHotLead           = "leads.repository.get_hot_lead"
	opGetHotLeadByOriginal = "leads.repository.get_hot_lead_by_original"
	opListPool             = "leads.repository.list_pool"
	opListByCloser         = "leads.repository.list_by_closer"
	opListCandidates       = "leads.repository.list_match_candidates"
	opUpdateStatus         = "leads.repository.update_status"
	opUpdateDealTerms      = "leads.repository.update_deal_terms"
	opAppendNote           = "leads.repository.append_note"
	opClaim                = "leads.repository.claim"
	opRelease              = "leads.repository.release"
	opReleaseForCloser     = "leads.repository.release_for_closer"

	msgLeadNotFound    = "lead not found"
	msgHotLeadNotFound = "hot lead not found"
	// MsgDuplicateHotLead is returned when a lead already has a hot lead.
	MsgDuplicateHotLead = "a hot lead already exists for this lead"
	// MsgAlreadyClaimed is returned when a pool claim loses the race.
	MsgAlreadyClaimed = "hot lead already claimed"

	pgUniqueViolation = "23505"
)

const leadColumns = `id, company_name, contact_first_name, contact_last_name, email, phone, website,
	city, region, country, category, source, comment, contacted, outcome, follow_up_at, created_at, updated_at`

const hotLeadColumns = `id, original_lead_id, company_name, appointment_at, appointment_medium, meeting_link,
	status, source, priority, setup_fee_cents, recurring_fee_cents, contract_months, setter_id, closer_id,
	attachments, comment, primary_event_id, created_at, updated_at`

// matchCandidateFilter excludes cancelled hot leads and those without an
// appointment. Keep in sync with domain.HotLead.IsMatchCandidate.
const matchCandidateFilter = `appointment_at IS NOT NULL
	AND status <> 'Termin abgesagt'`

// Repository is the PostgreSQL lead store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a repository on pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// =====================================
// Leads
// =====================================

func (r *Repository) CreateLead(ctx context.Context, p CreateLeadParams) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			company_name, contact_first_name, contact_last_name, email, phone, website,
			city, region, country, category, source, comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+leadColumns,
		p.CompanyName, p.ContactFirstName, p.ContactLastName, p.Email, p.Phone, p.Website,
		p.City, p.Region, p.Country, p.Category, p.Source, p.Comment,
	)
	lead, err := scanLead(row)
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("create lead failed: %v", err)).WithOp(opCreateLead)
	}
	return lead, nil
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, apperr.NotFound(msgLeadNotFound).WithOp(opGetLead)
	}
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("get lead failed: %v", err)).WithOp(opGetLead)
	}
	return lead, nil
}

func (r *Repository) UpdateLeadOutcome(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET outcome = $2, contacted = TRUE, updated_at = now()
		WHERE id = $1
	`, id, string(outcome))
	if err != nil {
		return apperr.Internal(fmt.Sprintf("update lead outcome failed: %v", err)).WithOp(opUpdateOutcome)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgLeadNotFound).WithOp(opUpdateOutcome)
	}
	return nil
}

// PrependLeadComment writes entry in front of the existing audit trail in a
// single statement. Existing text is never rewritten, and an entry equal to
// the current newest line is skipped.
func (r *Repository) PrependLeadComment(ctx context.Context, leadID uuid.UUID, entry string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			comment = CASE
				WHEN comment = '' THEN $2
				WHEN split_part(comment, E'\n', 1) = $2 THEN comment
				ELSE $2 || E'\n' || comment
			END,
			updated_at = now()
		WHERE id = $1
	`, leadID, entry)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("prepend lead comment failed: %v", err)).WithOp(opPrependComment)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgLeadNotFound).WithOp(opPrependComment)
	}
	return nil
}

// =====================================
// Hot leads
// =====================================

// CreateHotLead inserts a hot lead in status Lead. The unique constraint on
// original_lead_id turns a concurrent second booking into a Conflict.
func (r *Repository) CreateHotLead(ctx context.Context, p CreateHotLeadParams) (domain.HotLead, error) {
	attachments := p.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	medium := p.AppointmentMedium
	if medium == "" {
		medium = domain.MediumPhone
	}
	priority := p.Priority
	if priority == "" {
		priority = "normal"
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO hot_leads (
			original_lead_id, company_name, appointment_at, appointment_medium, meeting_link,
			status, source, priority, setter_id, closer_id, attachments, comment, primary_event_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+hotLeadColumns,
		p.OriginalLeadID, p.CompanyName, p.AppointmentAt, string(medium), p.MeetingLink,
		string(domain.StatusLead), p.Source, priority, p.SetterID, p.CloserID, attachments, p.Comment, p.PrimaryEventID,
	)
	hot, err := scanHotLead(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.HotLead{}, apperr.Conflict(MsgDuplicateHotLead).WithOp(opCreateHotLead)
		}
		return domain.HotLead{}, apperr.Internal(fmt.Sprintf("create hot lead failed: %v", err)).WithOp(opCreateHotLead)
	}
	return hot, nil
}

func (r *Repository) GetHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+hotLeadColumns+` FROM hot_leads WHERE id = $1`, id)
	return r.oneHotLead(row, opGetHotLead)
}

func (r *Repository) GetHotLeadByOriginalLeadID(ctx context.Context, leadID uuid.UUID) (domain.HotLead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+hotLeadColumns+` FROM hot_leads WHERE original_lead_id = $1`, leadID)
	return r.oneHotLead(row, opGetHotLeadByOriginal)
}

func (r *Repository) ListPool(ctx context.Context) ([]domain.HotLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+hotLeadColumns+`
		FROM hot_leads
		WHERE closer_id IS NULL
		ORDER BY created_at ASC, id ASC
	`)
	return collectHotLeads(rows, err, opListPool)
}

func (r *Repository) ListHotLeadsByCloser(ctx context.Context, closerID uuid.UUID) ([]domain.HotLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+hotLeadColumns+`
		FROM hot_leads
		WHERE closer_id = $1
		ORDER BY appointment_at ASC NULLS LAST, id ASC
	`, closerID)
	return collectHotLeads(rows, err, opListByCloser)
}

func (r *Repository) ListMatchCandidates(ctx context.Context) ([]domain.HotLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+hotLeadColumns+`
		FROM hot_leads
		WHERE `+matchCandidateFilter+`
		ORDER BY created_at ASC, id ASC
	`)
	return collectHotLeads(rows, err, opListCandidates)
}

// ListMatchCandidatesBetween narrows candidates to appointments strictly
// inside (from, to) using the appointment index.
func (r *Repository) ListMatchCandidatesBetween(ctx context.Context, from, to time.Time) ([]domain.HotLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+hotLeadColumns+`
		FROM hot_leads
		WHERE `+matchCandidateFilter+`
			AND appointment_at > $1 AND appointment_at < $2
		ORDER BY created_at ASC, id ASC
	`, from, to)
	return collectHotLeads(rows, err, opListCandidates)
}

func (r *Repository) UpdateHotLeadStatus(ctx context.Context, id uuid.UUID, status domain.Status, change *domain.AppointmentChange) (domain.HotLead, error) {
	setAppointment := change != nil
	var appointmentAt *time.Time
	if change != nil && !change.Clear {
		at := change.At
		appointmentAt = &at
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE hot_leads SET
			status = $2,
			appointment_at = CASE WHEN $3::boolean THEN $4::timestamptz ELSE appointment_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+hotLeadColumns,
		id, string(status), setAppointment, appointmentAt,
	)
	return r.oneHotLead(row, opUpdateStatus)
}

func (r *Repository) UpdateDealTerms(ctx context.Context, id uuid.UUID, terms domain.DealTerms) (domain.HotLead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hot_leads SET
			setup_fee_cents = $2,
			recurring_fee_cents = $3,
			contract_months = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING `+hotLeadColumns,
		id, terms.SetupFeeCents, terms.RecurringFeeCents, terms.ContractMonths,
	)
	return r.oneHotLead(row, opUpdateDealTerms)
}

// AppendHotLeadNote prepends a note to the hot lead's own comment, newest first.
func (r *Repository) AppendHotLeadNote(ctx context.Context, id uuid.UUID, entry string) (domain.HotLead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hot_leads SET
			comment = CASE WHEN comment = '' THEN $2 ELSE $2 || E'\n' || comment END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+hotLeadColumns,
		id, entry,
	)
	return r.oneHotLead(row, opAppendNote)
}

// =====================================
// Pool
// =====================================

// ClaimHotLead assigns closerID only while the hot lead is still in the pool.
// Losing a race yields Conflict, an unknown id yields NotFound.
func (r *Repository) ClaimHotLead(ctx context.Context, id, closerID uuid.UUID) (domain.HotLead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hot_leads SET closer_id = $2, updated_at = now()
		WHERE id = $1 AND closer_id IS NULL
		RETURNING `+hotLeadColumns,
		id, closerID,
	)
	hot, err := scanHotLead(row)
	if err == nil {
		return hot, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.HotLead{}, apperr.Internal(fmt.Sprintf("claim hot lead failed: %v", err)).WithOp(opClaim)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM hot_leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.HotLead{}, apperr.Internal(fmt.Sprintf("claim hot lead lookup failed: %v", err)).WithOp(opClaim)
	}
	if !exists {
		return domain.HotLead{}, apperr.NotFound(msgHotLeadNotFound).WithOp(opClaim)
	}
	return domain.HotLead{}, apperr.Conflict(MsgAlreadyClaimed).WithOp(opClaim)
}

// ReleaseHotLead clears the closer and leaves every other column untouched.
func (r *Repository) ReleaseHotLead(ctx context.Context, id uuid.UUID) (domain.HotLead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hot_leads SET closer_id = NULL, updated_at = now()
		WHERE id = $1
		RETURNING `+hotLeadColumns,
		id,
	)
	return r.oneHotLead(row, opRelease)
}

// ReleaseHotLeadsForCloser returns every non-terminal hot lead of closerID to the pool.
func (r *Repository) ReleaseHotLeadsForCloser(ctx context.Context, closerID uuid.UUID) ([]domain.HotLead, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE hot_leads SET closer_id = NULL, updated_at = now()
		WHERE closer_id = $1 AND status NOT IN ('Abgeschlossen', 'Verloren')
		RETURNING `+hotLeadColumns,
		closerID,
	)
	return collectHotLeads(rows, err, opReleaseForCloser)
}

// =====================================
// Scanning
// =====================================

func (r *Repository) oneHotLead(row pgx.Row, op string) (domain.HotLead, error) {
	hot, err := scanHotLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.HotLead{}, apperr.NotFound(msgHotLeadNotFound).WithOp(op)
	}
	if err != nil {
		return domain.HotLead{}, apperr.Internal(fmt.Sprintf("hot lead query failed: %v", err)).WithOp(op)
	}
	return hot, nil
}

func collectHotLeads(rows pgx.Rows, queryErr error, op string) ([]domain.HotLead, error) {
	if queryErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("hot lead query failed: %v", queryErr)).WithOp(op)
	}
	defer rows.Close()

	items := make([]domain.HotLead, 0)
	for rows.Next() {
		hot, err := scanHotLead(rows)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan hot lead failed: %v", err)).WithOp(op)
		}
		items = append(items, hot)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate hot leads failed: %v", err)).WithOp(op)
	}
	return items, nil
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	var outcome string
	err := row.Scan(
		&l.ID, &l.CompanyName, &l.ContactFirstName, &l.ContactLastName, &l.Email, &l.Phone, &l.Website,
		&l.City, &l.Region, &l.Country, &l.Category, &l.Source, &l.Comment, &l.Contacted, &outcome,
		&l.FollowUpAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	l.Outcome = domain.Outcome(outcome)
	return l, nil
}

func scanHotLead(row pgx.Row) (domain.HotLead, error) {
	var h domain.HotLead
	var medium, status string
	err := row.Scan(
		&h.ID, &h.OriginalLeadID, &h.CompanyName, &h.AppointmentAt, &medium, &h.MeetingLink,
		&status, &h.Source, &h.Priority, &h.DealTerms.SetupFeeCents, &h.DealTerms.RecurringFeeCents,
		&h.DealTerms.ContractMonths, &h.SetterID, &h.CloserID,
		&h.Attachments, &h.Comment, &h.PrimaryEventID, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return domain.HotLead{}, err
	}
	h.AppointmentMedium = domain.AppointmentMedium(medium)
	h.Status = domain.Status(status)
	return h, nil
}
