package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type testConfig struct {
	endpoint string
	maxSize  int64
}

func (c testConfig) GetMinIOEndpoint() string             { return c.endpoint }
func (c testConfig) GetMinIOAccessKey() string            { return "access" }
func (c testConfig) GetMinIOSecretKey() string            { return "secret" }
func (c testConfig) GetMinIOUseSSL() bool                 { return false }
func (c testConfig) GetMinIOMaxFileSize() int64           { return c.maxSize }
func (c testConfig) GetMinioBucketWebhookArchive() string { return "webhooks" }
func (c testConfig) IsMinIOEnabled() bool                 { return c.endpoint != "" }

var receivedAt = time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("CET", 3600))

func TestArchiveKey(t *testing.T) {
	id := uuid.MustParse("7b0c3f5e-52a4-4a8e-9d3f-0a4b6c1d2e3f")
	got := ArchiveKey("invitee.canceled", receivedAt, id)
	want := "calendly/2025/03/09/invitee.canceled-7b0c3f5e-52a4-4a8e-9d3f-0a4b6c1d2e3f.json"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got := ArchiveKey("../Evil Event", receivedAt, id); !strings.HasPrefix(got, "calendly/2025/03/09/.._evil_event-") {
		t.Fatalf("expected sanitized segment, got %s", got)
	}
	if got := ArchiveKey("", receivedAt, id); !strings.HasPrefix(got, "calendly/2025/03/09/unknown-") {
		t.Fatalf("expected unknown segment, got %s", got)
	}
}

func TestNewWebhookArchiveRequiresEndpoint(t *testing.T) {
	if _, err := NewWebhookArchive(testConfig{}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}

type objectServer struct {
	mu      sync.Mutex
	method  string
	path    string
	body    string
	content string
}

func (s *objectServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.method = r.Method
	s.path = r.URL.Path
	s.body = string(body)
	s.content = r.Header.Get("Content-Type")
	s.mu.Unlock()
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func TestArchiveWebhookPutsObject(t *testing.T) {
	srv := &objectServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	u, _ := url.Parse(ts.URL)

	archive, err := NewWebhookArchive(testConfig{endpoint: u.Host})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := uuid.New()
	archive.newID = func() uuid.UUID { return id }

	key, err := archive.ArchiveWebhook(context.Background(), "invitee.created", receivedAt, []byte(`{"event":"invitee.created"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != ArchiveKey("invitee.created", receivedAt, id) {
		t.Fatalf("unexpected key %s", key)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.method != http.MethodPut || srv.path != "/webhooks/"+key {
		t.Fatalf("unexpected request %s %s", srv.method, srv.path)
	}
	if srv.content != archiveContentType {
		t.Fatalf("unexpected content type %q", srv.content)
	}
}

func TestArchiveWebhookRejectsOversizedBody(t *testing.T) {
	archive, err := NewWebhookArchive(testConfig{endpoint: "127.0.0.1:1", maxSize: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := archive.ArchiveWebhook(context.Background(), "invitee.created", receivedAt, []byte("too large")); err == nil {
		t.Fatalf("expected size error")
	}
}
