// Package sse provides Server-Sent Events support for real-time notifications.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"salescrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventHotLeadUpdated  EventType = "hot_lead_updated"
	EventPoolChanged     EventType = "pool_changed"
	EventNotificationNew EventType = "in_app_notification"
)

const (
	clientBuffer      = 32
	heartbeatInterval = 25 * time.Second
)

// Event represents an SSE event payload
type Event struct {
	Type      EventType   `json:"type"`
	HotLeadID uuid.UUID   `json:"hotLeadId,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type client struct {
	userID uuid.UUID
	events chan Event
}

// Service manages SSE connections and event broadcasting
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client
	done    chan struct{}
	once    sync.Once
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		done:    make(chan struct{}),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.userID] = append(s.clients[c.userID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.userID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(s.clients[c.userID]) == 0 {
		delete(s.clients, c.userID)
	}
}

// ClientCount returns the number of open connections for userID.
func (s *Service) ClientCount(userID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[userID])
}

// Publish sends an event to every connection of a user. Slow clients drop events.
func (s *Service) Publish(userID uuid.UUID, event Event) {
	s.mu.RLock()
	clients := append([]*client(nil), s.clients[userID]...)
	s.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse event buffer full", "user_id", userID.String(), "event", string(event.Type))
		}
	}
}

// PublishToUsers sends the same event to each user once.
func (s *Service) PublishToUsers(userIDs []uuid.UUID, event Event) {
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.Publish(id, event)
	}
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(getUserID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{userID: userID, events: make(chan Event, clientBuffer)}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"userId": userID})
		c.Writer.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case <-s.done:
				return
			case <-heartbeat.C:
				c.SSEvent("ping", "")
				c.Writer.Flush()
			case event := <-cl.events:
				data, err := json.Marshal(event)
				if err != nil {
					s.log.Error("sse marshal failed", "error", err)
					continue
				}
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects every open stream.
func (s *Service) Close() {
	s.once.Do(func() { close(s.done) })
}
