package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/mw"
	"gauge-tracking-backend/internal/service"
	"gauge-tracking-backend/internal/store"
)

// RouterConfig carries the tunables the router needs from the config file.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
	StatusPriority  []model.GaugeStatus
}

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, pairing *service.PairingService, cascade *service.CascadeService, webpushOptions *webpush.Options, cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, pairing, cascade, webpushOptions, cfg.StatusPriority)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter, caching)
	{
		api.POST("/gauge-sets", handler.CreateGaugeSet)
		api.POST("/gauge-sets/pair", handler.PairSpares)

		api.GET("/gauges/:gauge_id", handler.GetGauge)
		api.GET("/gauges/:gauge_id/history", handler.GetGaugeHistory)
		api.GET("/gauges/:gauge_id/can-checkout", handler.GetCanCheckout)
		api.POST("/gauges/:gauge_id/unpair", handler.UnpairSet)
		api.POST("/gauges/:gauge_id/replace-companion", handler.ReplaceCompanion)
		api.POST("/gauges/:gauge_id/status", handler.CascadeStatus)
		api.POST("/gauges/:gauge_id/location", handler.CascadeLocation)
		api.DELETE("/gauges/:gauge_id", handler.DeleteGauge)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
