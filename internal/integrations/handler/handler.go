package handler

import (
	"errors"
	"net/http"
	"time"

	"sync-server/internal/apierrors"
	"sync-server/internal/integrations/processor"
	"sync-server/internal/observability"
	"sync-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor processor.IntegrationProcessor
	logger    *observability.Logger
}

func New(processor processor.IntegrationProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

type CreateIntegrationRequest struct {
	Provider    string      `json:"provider" binding:"required"`
	Credentials store.JSONB `json:"credentials"`
	Config      store.JSONB `json:"config"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// HandleCreateIntegration connects the tenant to a platform
func (h *Handler) HandleCreateIntegration(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}

	var req CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	integration, err := h.processor.CreateIntegration(ctx, tenantID, req.Provider, req.Credentials, req.Config)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, integration)
}

// HandleListIntegrations lists the tenant's active integrations
func (h *Handler) HandleListIntegrations(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}

	integrations, err := h.processor.ListIntegrations(ctx, tenantID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"integrations": integrations})
}

// HandleSetActive enables or disables an integration
func (h *Handler) HandleSetActive(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}
	integrationID, ok := h.getIntegrationID(c)
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	if err := h.processor.SetActive(ctx, tenantID, integrationID, *req.IsActive); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"is_active": *req.IsActive})
}

// HandleListCampaigns lists all synced campaigns for the tenant
func (h *Handler) HandleListCampaigns(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}

	campaigns, err := h.processor.ListCampaigns(ctx, tenantID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

// HandleListMetrics lists the tenant's metrics for a date range
func (h *Handler) HandleListMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}

	since, ok := h.dateQuery(c, "since")
	if !ok {
		return
	}
	until, ok := h.dateQuery(c, "until")
	if !ok {
		return
	}

	metrics, err := h.processor.ListMetrics(ctx, tenantID, since, until)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
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
	integrationID, err := uuid.Parse(c.Param("integration_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_INPUT", "Invalid integration ID format")
		return uuid.UUID{}, false
	}
	return integrationID, true
}

func (h *Handler) dateQuery(c *gin.Context, name string) (time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		return time.Time{}, true
	}

	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_INPUT", "Invalid "+name+" date, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return parsed, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processor.ErrIntegrationNotFound):
		apierrors.NotFound(c, "Integration not found")
	case errors.Is(err, processor.ErrIntegrationExists):
		apierrors.Conflict(c, "INTEGRATION_EXISTS", "Integration already exists for this provider")
	case errors.Is(err, processor.ErrUnsupportedProvider):
		apierrors.BadRequest(c, "UNSUPPORTED_PROVIDER", "Unsupported provider")
	case errors.Is(err, processor.ErrInvalidCredentials):
		apierrors.BadRequest(c, "INVALID_CREDENTIALS", "Credentials were rejected by the platform")
	default:
		apierrors.InternalError(c, err)
	}
}
