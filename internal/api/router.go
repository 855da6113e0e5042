package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"timesync-agent/config"
	"timesync-agent/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/time/start", h.StartTime)
		api.POST("/time/stop", h.StopTime)
		api.POST("/time/switch", h.SwitchTime)
		api.GET("/time/active", h.GetActiveTime)

		api.GET("/queue", h.GetQueue)
		api.GET("/queue/stats", h.GetQueueStats)
		api.POST("/queue/sync", h.SyncQueue)
		api.POST("/queue/retry", h.RetryQueue)
		api.DELETE("/queue", mw.AdminToken(cfg.AdminToken), h.ClearQueue)

		api.GET("/connectivity", h.GetConnectivity)
		api.PUT("/connectivity", h.PutConnectivity)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", caching, h.GetVAPIDPublicKey)
	}

	return r
}
