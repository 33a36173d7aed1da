package handler

import (
	"errors"
	"fmt"
	"net/http"

	"sync-server/internal/apierrors"
	"sync-server/internal/observability"
	"sync-server/internal/store"
	"sync-server/internal/webhooks/processor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor   processor.WebhookProcessor
	verifyToken string
	logger      *observability.Logger
}

// New creates the webhook handler. verifyToken answers Facebook's GET
// subscription challenge.
func New(processor processor.WebhookProcessor, verifyToken string, logger *observability.Logger) Handler {
	return Handler{
		processor:   processor,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// HandleReceive ingests one inbound platform webhook. The platform comes
// from the route, the signature from the platform's header.
func (h *Handler) HandleReceive(platform string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body, err := c.GetRawData()
		if err != nil {
			apierrors.BadRequest(c, "INVALID_BODY", "Failed to read request body")
			return
		}

		event, err := h.processor.IngestWebhook(ctx, processor.IngestParams{
			Platform:   platform,
			Body:       body,
			Signature:  signatureHeader(c, platform),
			RequestURL: c.Request.URL.String(),
		})
		if err != nil {
			h.handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"id": event.ID, "status": "received"})
	}
}

// HandleVerifyChallenge answers Facebook's subscription verification GET
func (h *Handler) HandleVerifyChallenge(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.verifyToken {
		apierrors.Forbidden(c, "VERIFICATION_FAILED", "Webhook verification failed")
		return
	}

	c.String(http.StatusOK, challenge)
}

// HandleListEvents lists stored webhook events, newest first
func (h *Handler) HandleListEvents(c *gin.Context) {
	ctx := c.Request.Context()

	var tenantID *uuid.UUID
	if tenantIDStr := c.Query("tenant_id"); tenantIDStr != "" {
		id, err := uuid.Parse(tenantIDStr)
		if err != nil {
			apierrors.BadRequest(c, "INVALID_INPUT", "Invalid tenant ID format")
			return
		}
		tenantID = &id
	}

	var platform *string
	if platformStr := c.Query("platform"); platformStr != "" {
		platform = &platformStr
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if _, err := fmt.Sscanf(limitStr, "%d", &limit); err != nil || limit < 1 || limit > 100 {
			limit = 50
		}
	}
	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if _, err := fmt.Sscanf(offsetStr, "%d", &offset); err != nil || offset < 0 {
			offset = 0
		}
	}

	events, err := h.processor.ListEvents(ctx, tenantID, platform, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// HandleReplayEvent re-runs processing for one stored event
func (h *Handler) HandleReplayEvent(c *gin.Context) {
	ctx := c.Request.Context()

	eventID, ok := h.getEventID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: eventID.String()},
	)

	event, err := h.processor.ReplayEvent(ctx, eventID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": event.ID, "status": "replayed"})
}

// HandleDeleteEvent removes one stored event
func (h *Handler) HandleDeleteEvent(c *gin.Context) {
	ctx := c.Request.Context()

	eventID, ok := h.getEventID(c)
	if !ok {
		return
	}

	if err := h.processor.DeleteEvent(ctx, eventID); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) getEventID(c *gin.Context) (uuid.UUID, bool) {
	eventIDStr := c.Param("event_id")
	eventID, err := uuid.Parse(eventIDStr)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_INPUT", "Invalid event ID format")
		return uuid.UUID{}, false
	}
	return eventID, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processor.ErrInvalidSignature):
		apierrors.BadRequest(c, "INVALID_SIGNATURE", "Invalid signature")
	case errors.Is(err, processor.ErrInvalidPayload):
		apierrors.BadRequest(c, "INVALID_PAYLOAD", "Invalid webhook payload")
	case errors.Is(err, processor.ErrUnknownPlatform):
		apierrors.NotFound(c, "Unknown webhook platform")
	case errors.Is(err, processor.ErrEventNotFound):
		apierrors.NotFound(c, "Webhook event not found")
	default:
		apierrors.InternalError(c, err)
	}
}

// signatureHeader picks the platform's signature header off the request
func signatureHeader(c *gin.Context, platform string) string {
	switch platform {
	case store.PlatformFacebook:
		return c.GetHeader("X-Hub-Signature-256")
	case store.PlatformLine:
		return c.GetHeader("X-Line-Signature")
	case store.PlatformShopee:
		return c.GetHeader("Authorization")
	default:
		return ""
	}
}
