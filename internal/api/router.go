package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"asset-ledger-backend/config"
	"asset-ledger-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. cacheStore is shared
// with the synchronization loop, which flushes it whenever the record set
// changes.
func NewRouter(h *Handler, cacheStore *cache.Cache, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), 5)
	caching := mw.Cache(cacheStore, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/assets", caching, h.GetAssets)
		api.GET("/assets/summary", caching, h.GetSummary)
		api.POST("/assets/import", h.ImportAssets)
		api.GET("/assets/export", h.ExportAssets)

		api.PUT("/assets/:id", h.UpdateAsset)
		api.POST("/assets/:id/submit", h.SubmitAsset)
		api.POST("/assets/:id/approve", h.ApproveAsset)
		api.POST("/assets/:id/reject", h.RejectAsset)

		api.GET("/assets/:id/attachments", h.ListAttachments)
		api.POST("/assets/:id/attachments", h.UploadAttachment)
		api.DELETE("/assets/:id/attachments", h.DeleteAttachment)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
