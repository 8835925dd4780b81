package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salescrm_backend/internal/booking/service"
	"salescrm_backend/internal/booking/transport"
	"salescrm_backend/internal/calendar"
	"salescrm_backend/internal/leads/domain"
	"salescrm_backend/internal/leads/leadstest"
	userrepo "salescrm_backend/internal/users/repository"
	"salescrm_backend/platform/apperr"
	"salescrm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const fmtUnexpectedStatus = "expected status %d, got %d: %s"

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type stubDirectory struct{ closer userrepo.User }

func (d stubDirectory) GetByID(_ context.Context, id uuid.UUID) (userrepo.User, error) {
	if id != d.closer.ID {
		return userrepo.User{}, apperr.NotFound("user not found")
	}
	return d.closer, nil
}

type stubCalendar struct{}

func (stubCalendar) ListFreeSlots(_ context.Context, _ string, date time.Time) ([]calendar.Block, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 14, 0, 0, 0, time.UTC)
	return []calendar.Block{{Start: start, End: start.Add(time.Hour)}}, nil
}

func (stubCalendar) CreateEvent(context.Context, string, calendar.NewEvent) (calendar.CreatedEvent, error) {
	return calendar.CreatedEvent{ID: "evt-1"}, nil
}

func (stubCalendar) DeleteEvent(context.Context, string, string) error { return nil }

func newTestRouter(store *leadstest.Store, closer userrepo.User, userID uuid.UUID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, userID)
		c.Set(httpkit.ContextRolesKey, []string{role})
		c.Next()
	})
	svc := service.New(store, stubDirectory{closer: closer}, stubCalendar{}, nil, nil, time.UTC, nil,
		service.WithClock(func() time.Time { return fixedNow }))
	New(svc).RegisterRoutes(engine.Group("/booking"))
	return engine
}

func testCloser() userrepo.User {
	return userrepo.User{ID: uuid.New(), DisplayName: "Clara Closer", Role: httpkit.RoleCloser, CalendarID: "clara@example.com", Active: true}
}

func TestBookReturnsCreatedWithSetter(t *testing.T) {
	store := leadstest.New()
	lead := store.PutLead(domain.Lead{CompanyName: "Musterfirma GmbH"})
	closer := testCloser()
	setter := uuid.New()

	body := `{"leadId":"` + lead.ID.String() + `","closerId":"` + closer.ID.String() + `","slotStart":"2025-03-12T13:00:00Z",` +
		`"companyName":"Musterfirma GmbH","contactEmail":"max@musterfirma.de","contactPhone":"030 1234567","problem":"Keine Anfragen"}`
	req := httptest.NewRequest(http.MethodPost, "/booking", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newTestRouter(store, closer, setter, httpkit.RoleSetter).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf(fmtUnexpectedStatus, http.StatusCreated, rec.Code, rec.Body.String())
	}
	var resp transport.BookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.HotLead.SetterID == nil || *resp.HotLead.SetterID != setter {
		t.Fatalf("expected setter from identity, got %+v", resp.HotLead.SetterID)
	}
	if resp.Warnings == nil || len(resp.Warnings) != 0 {
		t.Fatalf("expected empty warnings list, got %v", resp.Warnings)
	}
}

func TestBookForbiddenForCloser(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/booking", strings.NewReader(`{}`))
	newTestRouter(leadstest.New(), testCloser(), uuid.New(), httpkit.RoleCloser).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf(fmtUnexpectedStatus, http.StatusForbidden, rec.Code, rec.Body.String())
	}
}

func TestListSlots(t *testing.T) {
	closer := testCloser()
	router := newTestRouter(leadstest.New(), closer, uuid.New(), httpkit.RoleCloser)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/booking/slots?closerId="+closer.ID.String()+"&date=2025-03-11", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf(fmtUnexpectedStatus, http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp transport.SlotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Date != "2025-03-11" || len(resp.Slots) != 2 {
		t.Fatalf("expected two slots, got %+v", resp)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/booking/slots?closerId="+closer.ID.String()+"&date=11.03.2025", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf(fmtUnexpectedStatus, http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}
