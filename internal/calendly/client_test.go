package calendly

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type testConfig struct {
	url   string
	token string
}

func (c testConfig) GetCalendlyAPIURL() string          { return c.url }
func (c testConfig) GetCalendlyToken() string           { return c.token }
func (c testConfig) GetCalendlyEventTypeURI() string    { return "https://api.calendly.com/event_types/ET1" }
func (c testConfig) GetCalendlySigningKey() string      { return "" }
func (c testConfig) GetCalendlyTimeout() time.Duration  { return time.Second }
func (c testConfig) GetWebhookDedupeTTL() time.Duration { return time.Hour }

func TestNewClientWithoutTokenIsDisabled(t *testing.T) {
	client, err := NewClient(testConfig{url: "https://api.calendly.com"}, nil)
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if client != nil {
		t.Fatalf("expected nil client without token")
	}
	if _, err := client.BookEvent(context.Background(), Booking{}); err == nil {
		t.Fatalf("expected disabled client to refuse booking")
	}
}

func TestBookEventSendsInvitee(t *testing.T) {
	var got inviteeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/invitees" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resource":{"uri":"https://api.calendly.com/invitees/INV9"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig{url: srv.URL, token: "tok"}, nil)
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	uri, err := client.BookEvent(context.Background(), Booking{
		Start:        time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		InviteeName:  "Max Muster",
		InviteeEmail: "max@musterfirma.de",
		InviteePhone: "030 1234567",
		Metadata:     map[string]string{"problem": "Website", "company": "Musterfirma GmbH"},
	})
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if uri != "https://api.calendly.com/invitees/INV9" {
		t.Fatalf("unexpected uri %q", uri)
	}
	if got.EventType != "https://api.calendly.com/event_types/ET1" || got.StartTime != "2025-03-12T09:00:00Z" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Invitee.TextReminderNumber != "+49301234567" {
		t.Fatalf("expected E.164 phone, got %q", got.Invitee.TextReminderNumber)
	}
	if len(got.QuestionsAndAnswers) != 2 || got.QuestionsAndAnswers[0].Question != "company" {
		t.Fatalf("expected metadata sorted by key, got %+v", got.QuestionsAndAnswers)
	}
}

func TestBookEventReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slot taken", http.StatusConflict)
	}))
	defer srv.Close()

	client, _ := NewClient(testConfig{url: srv.URL, token: "tok"}, nil)
	if _, err := client.BookEvent(context.Background(), Booking{Start: time.Now()}); err == nil {
		t.Fatalf("expected error for 409")
	}
}

func TestResolveInviteeStartFollowsEvent(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/scheduled_events/EV1/invitees/INV1":
			_, _ = w.Write([]byte(`{"resource":{"event":"` + srv.URL + `/scheduled_events/EV1"}}`))
		case "/scheduled_events/EV1":
			_, _ = w.Write([]byte(`{"resource":{"start_time":"2025-03-10T10:00:00Z"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, _ := NewClient(testConfig{url: srv.URL, token: "tok"}, nil)
	start, err := client.ResolveInviteeStart(context.Background(), srv.URL+"/scheduled_events/EV1/invitees/INV1")
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if !start.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", start)
	}
}

func TestResolveInviteeStartRefusesForeignHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Errorf("no request expected")
	}))
	defer srv.Close()

	client, _ := NewClient(testConfig{url: srv.URL, token: "tok"}, nil)
	if _, err := client.ResolveInviteeStart(context.Background(), "https://evil.example.com/invitees/1"); err == nil {
		t.Fatalf("expected foreign uri to be refused")
	}
}
