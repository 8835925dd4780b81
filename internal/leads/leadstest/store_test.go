package leadstest

import (
	"context"
	"testing"
	"time"

	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/leads/repository"
	"salescrm_backend/platform/apperr"

	"github.com/google/uuid"
)

func TestCreateHotLeadRejectsSecondForSameLead(t *testing.T) {
	ctx := context.Background()
	store := New()
	lead := store.PutLead(domain.Lead{CompanyName: "Musterfirma GmbH"})
	params := repository.CreateHotLeadParams{
		OriginalLeadID: lead.ID,
		CompanyName:    lead.CompanyName,
		AppointmentAt:  time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
	}

	first, err := store.CreateHotLead(ctx, params)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	params.CompanyName = "Overwrite Attempt"
	if _, err := store.CreateHotLead(ctx, params); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := store.GetHotLeadByOriginalLeadID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != first.ID || got.CompanyName != "Musterfirma GmbH" {
		t.Fatalf("first hot lead was overwritten: %+v", got)
	}
	if store.HotLeadCount() != 1 {
		t.Fatalf("expected exactly one hot lead, got %d", store.HotLeadCount())
	}
}

func TestPoolQueryMatchesNilCloser(t *testing.T) {
	ctx := context.Background()
	store := New()
	closer := uuid.New()
	a := store.PutHotLead(domain.HotLead{CompanyName: "A", Status: domain.StatusLead})
	b := store.PutHotLead(domain.HotLead{CompanyName: "B", Status: domain.StatusLead, CloserID: &closer})

	if _, err := store.ReleaseHotLead(ctx, b.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := store.ClaimHotLead(ctx, a.ID, closer); err != nil {
		t.Fatalf("claim: %v", err)
	}

	pool, err := store.ListPool(ctx)
	if err != nil {
		t.Fatalf("list pool: %v", err)
	}
	inPool := make(map[uuid.UUID]bool)
	for _, h := range pool {
		inPool[h.ID] = true
	}
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		hot, _ := store.GetHotLead(ctx, id)
		if hot.InPool() != inPool[id] {
			t.Fatalf("pool membership mismatch for %s: closer=%v listed=%v", hot.CompanyName, hot.CloserID, inPool[id])
		}
	}
}

func TestPrependLeadCommentKeepsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := New()
	lead := store.PutLead(domain.Lead{Comment: "old note"})

	for _, entry := range []string{"[01.03.2025, 09:00] first", "[02.03.2025, 09:00] second"} {
		if err := store.PrependLeadComment(ctx, lead.ID, entry); err != nil {
			t.Fatalf("prepend: %v", err)
		}
	}

	got, _ := store.GetLead(ctx, lead.ID)
	want := "[02.03.2025, 09:00] second\n[01.03.2025, 09:00] first\nold note"
	if got.Comment != want {
		t.Fatalf("unexpected comment:\n%s\nwant:\n%s", got.Comment, want)
	}
}
