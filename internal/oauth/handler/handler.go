package handler

import (
	"errors"
	"net/http"
	"net/url"

	"sync-server/internal/apierrors"
	"sync-server/internal/oauth/processor"
	"sync-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor          processor.OAuthProcessor
	failureRedirectURI string
	logger             *observability.Logger
}

func New(processor processor.OAuthProcessor, failureRedirectURI string, logger *observability.Logger) Handler {
	return Handler{
		processor:          processor,
		failureRedirectURI: failureRedirectURI,
		logger:             logger,
	}
}

// StartOAuthRequest carries the callback URI the provider should return to
type StartOAuthRequest struct {
	RedirectURI string `json:"redirect_uri" binding:"required,url"`
}

// HandleStartOAuth begins the authorization round trip for one integration
func (h *Handler) HandleStartOAuth(c *gin.Context) {
	ctx := c.Request.Context()

	integrationID, ok := h.getIntegrationID(c)
	if !ok {
		return
	}

	var req StartOAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: integrationID.String()},
	)

	authURL, err := h.processor.StartOAuth(ctx, integrationID, req.RedirectURI)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"auth_url": authURL})
}

// HandleCallback is the provider redirect target. Browsers land here, so
// every outcome is a redirect back to the web app. Failure redirects carry
// no detail about what went wrong.
func (h *Handler) HandleCallback(c *gin.Context) {
	ctx := c.Request.Context()

	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		h.logger.Warn(ctx, "oauth callback missing state or code")
		c.Redirect(http.StatusFound, h.failureRedirectURI)
		return
	}

	integration, redirectURI, err := h.processor.HandleCallback(ctx, state, code)
	if err != nil {
		h.logger.InfoWithError(ctx, "oauth callback failed", err)
		c.Redirect(http.StatusFound, h.failureRedirectURI)
		return
	}

	c.Redirect(http.StatusFound, successRedirect(redirectURI, integration.Provider))
}

// successRedirect sends the browser back to the URI the flow was started
// with, carrying the success indicator.
func successRedirect(redirectURI, provider string) string {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	query := target.Query()
	query.Set("oauth", "connected")
	query.Set("provider", provider)
	target.RawQuery = query.Encode()
	return target.String()
}

// HandleRefreshToken refreshes an integration's stored tokens
func (h *Handler) HandleRefreshToken(c *gin.Context) {
	ctx := c.Request.Context()

	integrationID, ok := h.getIntegrationID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: integrationID.String()},
	)

	integration, err := h.processor.RefreshToken(ctx, integrationID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, integration)
}

// HandleGetStatus reports the connection state of one integration
func (h *Handler) HandleGetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	integrationID, ok := h.getIntegrationID(c)
	if !ok {
		return
	}

	status, err := h.processor.GetStatus(ctx, integrationID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
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

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processor.ErrIntegrationNotFound):
		apierrors.NotFound(c, "Integration not found")
	case errors.Is(err, processor.ErrInvalidState):
		apierrors.BadRequest(c, "INVALID_STATE", "Invalid or expired OAuth state")
	case errors.Is(err, processor.ErrOAuthNotSupported):
		apierrors.BadRequest(c, "OAUTH_NOT_SUPPORTED", "Platform does not support OAuth")
	default:
		apierrors.InternalError(c, err)
	}
}
