package calendly

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"salescrm_backend/platform/httpkit"
	"salescrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	maxWebhookBodyBytes = 1 << 20

	errInvalidPayload   = "invalid webhook payload"
	errBodyTooLarge     = "webhook payload too large"
	errInvalidSignature = "invalid webhook signature"
)

// Processor handles a parsed delivery.
type Processor interface {
	Process(ctx context.Context, hook Webhook, archiveKey string) (Outcome, error)
}

// Archiver stores raw delivery bodies and returns the object key.
type Archiver interface {
	ArchiveWebhook(ctx context.Context, event string, receivedAt time.Time, body []byte) (string, error)
}

// Handler receives scheduler webhooks.
type Handler struct {
	processor  Processor
	deduper    Deduper
	archiver   Archiver
	signingKey string
	tolerance  time.Duration
	now        func() time.Time
	log        *logger.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithDeduper enables delivery idempotency.
func WithDeduper(d Deduper) HandlerOption {
	return func(h *Handler) { h.deduper = d }
}

// WithArchiver enables raw payload archiving.
func WithArchiver(a Archiver) HandlerOption {
	return func(h *Handler) { h.archiver = a }
}

// WithSigningKey turns on signature verification.
func WithSigningKey(key string) HandlerOption {
	return func(h *Handler) { h.signingKey = key }
}

// WithHandlerClock overrides the clock used for signature tolerance.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

func NewHandler(processor Processor, log *logger.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	h := &Handler{
		processor: processor,
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWebhook processes POST /api/v1/webhooks/calendly.
// Every parsable delivery is acknowledged with 200, whatever the outcome.
func (h *Handler) HandleWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.log.WithContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpkit.Error(c, http.StatusRequestEntityTooLarge, errBodyTooLarge, nil)
			return
		}
		httpkit.Error(c, http.StatusBadRequest, errInvalidPayload, nil)
		return
	}

	if h.signingKey != "" {
		if err := VerifySignature(c.GetHeader(SignatureHeader), body, h.signingKey, h.now(), h.tolerance); err != nil {
			log.Warn("webhook signature rejected", slog.String("error", err.Error()), slog.String("client_ip", c.ClientIP()))
			httpkit.Error(c, http.StatusUnauthorized, errInvalidSignature, nil)
			return
		}
	}

	hook, err := ParseWebhook(body)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidPayload, nil)
		return
	}

	key := hook.DeliveryKey()
	if h.deduper != nil {
		first, err := h.deduper.FirstDelivery(ctx, key)
		switch {
		case err != nil:
			log.Warn("webhook dedupe unavailable", slog.String("error", err.Error()))
		case !first:
			log.Info("duplicate webhook delivery acknowledged", slog.String("event", hook.Event), slog.String("invitee_uri", hook.Payload.URI))
			h.ack(c, OutcomeDuplicate)
			return
		}
	}

	archiveKey := h.archive(ctx, hook, body)

	outcome, err := h.processor.Process(ctx, hook, archiveKey)
	if err != nil {
		log.Error("webhook processing failed",
			slog.String("event", hook.Event),
			slog.String("invitee_uri", hook.Payload.URI),
			slog.String("error", err.Error()),
		)
		if h.deduper != nil {
			if ferr := h.deduper.Forget(ctx, key); ferr != nil {
				log.Warn("failed to forget webhook delivery", slog.String("error", ferr.Error()))
			}
		}
		h.ack(c, "")
		return
	}

	log.Info("webhook processed", slog.String("event", hook.Event), slog.String("outcome", string(outcome)))
	h.ack(c, outcome)
}

func (h *Handler) archive(ctx context.Context, hook Webhook, body []byte) string {
	if h.archiver == nil {
		return ""
	}
	key, err := h.archiver.ArchiveWebhook(ctx, hook.Event, h.now(), body)
	if err != nil {
		h.log.WithContext(ctx).UpstreamFailure("object_storage", "archive_webhook", false, err)
		return ""
	}
	return key
}

func (h *Handler) ack(c *gin.Context, outcome Outcome) {
	if outcome != "" {
		c.Set("webhookOutcome", string(outcome))
	}
	httpkit.OK(c, gin.H{"received": true})
}
