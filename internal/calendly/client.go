package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"salescrm_backend/platform/config"
	"salescrm_backend/platform/logger"
	"salescrm_backend/platform/phone"
)

const (
	defaultClientTimeout = 10 * time.Second
	maxErrorBody         = 512
)

// Booking is a mirrored appointment in the external scheduler.
type Booking struct {
	EventTypeURI string
	Start        time.Time
	InviteeName  string
	InviteeEmail string
	InviteePhone string
	Timezone     string
	// Metadata is sent as question/answer pairs, sorted by key.
	Metadata map[string]string
}

// Client calls the scheduler's REST API. A nil *Client is a valid,
// disabled client.
type Client struct {
	baseURL      *url.URL
	token        string
	eventTypeURI string
	http         *http.Client
	log          *logger.Logger
}

// NewClient returns nil when no API token is configured.
func NewClient(cfg config.CalendlyConfig, log *logger.Logger) (*Client, error) {
	if cfg.GetCalendlyToken() == "" {
		return nil, nil
	}
	base, err := url.Parse(strings.TrimRight(cfg.GetCalendlyAPIURL(), "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid CALENDLY_API_URL %q", cfg.GetCalendlyAPIURL())
	}
	timeout := cfg.GetCalendlyTimeout()
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL:      base,
		token:        cfg.GetCalendlyToken(),
		eventTypeURI: cfg.GetCalendlyEventTypeURI(),
		http:         &http.Client{Timeout: timeout},
		log:          log,
	}, nil
}

type inviteeRequest struct {
	EventType           string           `json:"event_type"`
	StartTime           string           `json:"start_time"`
	Invitee             inviteeDetails   `json:"invitee"`
	QuestionsAndAnswers []questionAnswer `json:"questions_and_answers,omitempty"`
}

type inviteeDetails struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Timezone           string `json:"timezone,omitempty"`
	TextReminderNumber string `json:"text_reminder_number,omitempty"`
}

type questionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Position int    `json:"position"`
}

// BookEvent creates the mirrored booking and returns the invitee URI.
func (c *Client) BookEvent(ctx context.Context, b Booking) (string, error) {
	if c == nil {
		return "", fmt.Errorf("calendly client not configured")
	}
	eventType := b.EventTypeURI
	if eventType == "" {
		eventType = c.eventTypeURI
	}

	req := inviteeRequest{
		EventType: eventType,
		StartTime: b.Start.UTC().Format(time.RFC3339),
		Invitee: inviteeDetails{
			Name:               b.InviteeName,
			Email:              b.InviteeEmail,
			Timezone:           b.Timezone,
			TextReminderNumber: phone.NormalizeE164(b.InviteePhone),
		},
	}

	keys := make([]string, 0, len(b.Metadata))
	for k := range b.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		req.QuestionsAndAnswers = append(req.QuestionsAndAnswers, questionAnswer{Question: k, Answer: b.Metadata[k], Position: i})
	}

	var resp struct {
		Resource struct {
			URI string `json:"uri"`
		} `json:"resource"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL.String()+"/invitees", req, &resp); err != nil {
		return "", fmt.Errorf("book event: %w", err)
	}
	c.log.Info("secondary scheduler booking created", "inviteeUri", resp.Resource.URI)
	return resp.Resource.URI, nil
}

// ResolveInviteeStart looks up the start time of the event an invitee URI
// belongs to. Only URIs on the configured API host are followed.
func (c *Client) ResolveInviteeStart(ctx context.Context, inviteeURI string) (time.Time, error) {
	if c == nil {
		return time.Time{}, fmt.Errorf("calendly client not configured")
	}
	if err := c.checkHost(inviteeURI); err != nil {
		return time.Time{}, err
	}

	var invitee struct {
		Resource struct {
			Event string `json:"event"`
		} `json:"resource"`
	}
	if err := c.do(ctx, http.MethodGet, inviteeURI, nil, &invitee); err != nil {
		return time.Time{}, fmt.Errorf("get invitee: %w", err)
	}
	if err := c.checkHost(invitee.Resource.Event); err != nil {
		return time.Time{}, err
	}

	var event struct {
		Resource struct {
			StartTime time.Time `json:"start_time"`
		} `json:"resource"`
	}
	if err := c.do(ctx, http.MethodGet, invitee.Resource.Event, nil, &event); err != nil {
		return time.Time{}, fmt.Errorf("get scheduled event: %w", err)
	}
	if event.Resource.StartTime.IsZero() {
		return time.Time{}, fmt.Errorf("scheduled event has no start time")
	}
	return event.Resource.StartTime, nil
}

func (c *Client) checkHost(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host != c.baseURL.Host || u.Scheme != c.baseURL.Scheme {
		return fmt.Errorf("refusing to follow foreign uri %q", raw)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal calendly payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calendly request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("calendly returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode calendly response: %w", err)
	}
	return nil
}
