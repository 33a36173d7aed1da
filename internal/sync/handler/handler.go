package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"sync-server/internal/apierrors"
	"sync-server/internal/observability"
	"sync-server/internal/platforms"
	"sync-server/internal/sync/processor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor processor.SyncProcessor
	logger    *observability.Logger
}

func New(processor processor.SyncProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// HandleSyncIntegration triggers a sync for one integration immediately
func (h *Handler) HandleSyncIntegration(c *gin.Context) {
	ctx := c.Request.Context()

	integrationID, ok := h.getIntegrationID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: integrationID.String()},
	)

	window, ok := h.dateRangeQuery(c)
	if !ok {
		return
	}

	result, err := h.processor.SyncIntegrationByID(ctx, integrationID, window)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleSyncAll triggers a sync across every active integration of the tenant
func (h *Handler) HandleSyncAll(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "tenant_id", Value: tenantID.String()},
	)

	window, ok := h.dateRangeQuery(c)
	if !ok {
		return
	}

	results, err := h.processor.SyncAllPlatforms(ctx, tenantID, window)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// HandleGetSyncHistory lists recent sync attempts for one integration
func (h *Handler) HandleGetSyncHistory(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}
	integrationID, ok := h.getIntegrationID(c)
	if !ok {
		return
	}

	history, err := h.processor.GetSyncHistory(ctx, tenantID, integrationID, h.limitQuery(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// HandleGetNotifications lists recent integration notifications for the tenant
func (h *Handler) HandleGetNotifications(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}

	notifications, err := h.processor.GetNotifications(ctx, tenantID, h.limitQuery(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) getTenantID(c *gin.Context) (uuid.UUID, bool) {
	tenantIDStr, exists := c.Get("Tenant-ID")
	if !exists {
		apierrors.Unauthorized(c, "Tenant ID not found in context")
		return uuid.UUID{}, false
	}

	tenantID, err := uuid.Parse(tenantIDStr.(string))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_INPUT", "Invalid tenant ID format")
		return uuid.UUID{}, false
	}
	return tenantID, true
}

func (h *Handler) getIntegrationID(c *gin.Context) (uuid.UUID, bool) {
	integrationIDStr := c.Param("integration_id")
	integrationID, err := uuid.Parse(integrationIDStr)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_INPUT", "Invalid integration ID format")
		return uuid.UUID{}, false
	}
	return integrationID, true
}

func (h *Handler) limitQuery(c *gin.Context) int {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if _, err := fmt.Sscanf(limitStr, "%d", &limit); err != nil || limit < 1 || limit > 100 {
			limit = 20
		}
	}
	return limit
}

// dateRangeQuery reads the optional since/until query params. Absent params
// leave the range zero and the processor applies its default window.
func (h *Handler) dateRangeQuery(c *gin.Context) (platforms.DateRange, bool) {
	var window platforms.DateRange
	for _, bound := range []struct {
		name   string
		target *time.Time
	}{
		{"since", &window.Since},
		{"until", &window.Until},
	} {
		value := c.Query(bound.name)
		if value == "" {
			continue
		}
		parsed, err := time.Parse("2006-01-02", value)
		if err != nil {
			apierrors.BadRequest(c, "INVALID_INPUT", "Invalid "+bound.name+" date, expected YYYY-MM-DD")
			return platforms.DateRange{}, false
		}
		*bound.target = parsed
	}
	if !window.Since.IsZero() && !window.Until.IsZero() && window.Until.Before(window.Since) {
		apierrors.BadRequest(c, "INVALID_INPUT", "until must not be before since")
		return platforms.DateRange{}, false
	}
	return window, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processor.ErrIntegrationNotFound):
		apierrors.NotFound(c, "Integration not found")
	case errors.Is(err, processor.ErrIntegrationInactive):
		apierrors.BadRequest(c, "INTEGRATION_INACTIVE", "Integration is not active")
	default:
		apierrors.InternalError(c, err)
	}
}
