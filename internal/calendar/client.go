// Package calendar talks to the organizational calendar that holds each
// closer's real schedule.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"salescrm_backend/platform/config"
	"salescrm_backend/platform/logger"
)

const (
	defaultTimeout = 15 * time.Second
	dateLayout     = "2006-01-02"
	maxErrorBody   = 512
)

// Block is a free interval in a closer's calendar.
type Block struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewEvent describes an appointment to create.
type NewEvent struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// CreatedEvent is the calendar's reference to a created appointment.
type CreatedEvent struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// Client is the HTTP client for the primary calendar API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(cfg config.PrimaryCalendarConfig, log *logger.Logger) *Client {
	timeout := cfg.GetPrimaryCalendarTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.GetPrimaryCalendarURL(), "/"),
		token:   cfg.GetPrimaryCalendarToken(),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// ListFreeSlots returns the free blocks of calendarID on date (calendar day
// in the calendar's own zone).
func (c *Client) ListFreeSlots(ctx context.Context, calendarID string, date time.Time) ([]Block, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/free?date=%s",
		c.baseURL, url.PathEscape(calendarID), url.QueryEscape(date.Format(dateLayout)))

	var resp struct {
		Blocks []Block `json:"blocks"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("list free slots: %w", err)
	}
	return resp.Blocks, nil
}

// CreateEvent books ev in calendarID.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev NewEvent) (CreatedEvent, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(calendarID))

	var created CreatedEvent
	if err := c.do(ctx, http.MethodPost, endpoint, ev, &created); err != nil {
		return CreatedEvent{}, fmt.Errorf("create event: %w", err)
	}
	if created.ID == "" {
		return CreatedEvent{}, fmt.Errorf("create event: calendar returned no event id")
	}
	c.log.Info("primary calendar event created", "calendarId", calendarID, "eventId", created.ID)
	return created, nil
}

// DeleteEvent removes a previously created event. A missing event is not an error.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))

	err := c.do(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// StatusError is a non-2xx answer from the calendar API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calendar service returned %d: %s", e.Code, e.Body)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal calendar payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode calendar response: %w", err)
	}
	return nil
}
