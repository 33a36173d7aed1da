package api

import (
	"net/http"

	integrationHandler "sync-server/internal/integrations/handler"
	oauthHandler "sync-server/internal/oauth/handler"
	"sync-server/internal/store"
	syncHandler "sync-server/internal/sync/handler"
	webhookHandler "sync-server/internal/webhooks/handler"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type API struct {
	router             *gin.RouterGroup
	integrationHandler integrationHandler.Handler
	syncHandler        syncHandler.Handler
	oauthHandler       oauthHandler.Handler
	webhookHandler     webhookHandler.Handler
}

func New(
	router *gin.RouterGroup,
	integrationHandler integrationHandler.Handler,
	syncHandler syncHandler.Handler,
	oauthHandler oauthHandler.Handler,
	webhookHandler webhookHandler.Handler,
) API {
	return API{
		router:             router,
		integrationHandler: integrationHandler,
		syncHandler:        syncHandler,
		oauthHandler:       oauthHandler,
		webhookHandler:     webhookHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")

	// Platform webhooks are unauthenticated; the signature is the auth.
	webhookGroup := apiGroup.Group("/webhooks")
	{
		webhookGroup.GET("/facebook", a.webhookHandler.HandleVerifyChallenge)
		for _, platform := range []string{
			store.PlatformFacebook, store.PlatformLine, store.PlatformTikTok, store.PlatformShopee,
		} {
			webhookGroup.POST("/"+platform, a.webhookHandler.HandleReceive(platform))
		}
	}

	// OAuth callbacks arrive from the provider without tenant headers.
	apiGroup.GET("/oauth/callback", a.oauthHandler.HandleCallback)

	tenantGroup := apiGroup.Group("/", TenantMiddleware())
	{
		tenantGroup.POST("/integrations", a.integrationHandler.HandleCreateIntegration)
		tenantGroup.GET("/integrations", a.integrationHandler.HandleListIntegrations)
		tenantGroup.PATCH("/integrations/:integration_id/active", a.integrationHandler.HandleSetActive)
		tenantGroup.GET("/campaigns", a.integrationHandler.HandleListCampaigns)
		tenantGroup.GET("/metrics", a.integrationHandler.HandleListMetrics)

		tenantGroup.POST("/integrations/:integration_id/sync", a.syncHandler.HandleSyncIntegration)
		tenantGroup.POST("/sync", a.syncHandler.HandleSyncAll)
		tenantGroup.GET("/integrations/:integration_id/history", a.syncHandler.HandleGetSyncHistory)
		tenantGroup.GET("/notifications", a.syncHandler.HandleGetNotifications)

		tenantGroup.POST("/integrations/:integration_id/oauth/start", a.oauthHandler.HandleStartOAuth)
		tenantGroup.POST("/integrations/:integration_id/oauth/refresh", a.oauthHandler.HandleRefreshToken)
		tenantGroup.GET("/integrations/:integration_id/oauth/status", a.oauthHandler.HandleGetStatus)

		tenantGroup.GET("/webhooks/events", a.webhookHandler.HandleListEvents)
		tenantGroup.POST("/webhooks/events/:event_id/replay", a.webhookHandler.HandleReplayEvent)
		tenantGroup.DELETE("/webhooks/events/:event_id", a.webhookHandler.HandleDeleteEvent)
	}
}

// TenantMiddleware requires a valid X-Tenant-ID header and threads it through
// the request context for handlers.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-Tenant-ID header"})
			return
		}
		if _, err := uuid.Parse(tenantID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Tenant-ID header"})
			return
		}
		c.Set("Tenant-ID", tenantID)
		c.Next()
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
