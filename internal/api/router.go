package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"outlet-geofence-backend/internal/engine"
	"outlet-geofence-backend/internal/mw"
	"outlet-geofence-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, eng *engine.Engine, webpushOptions *webpush.Options, rateLimitPerSec float64, cacheTTL time.Duration) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, eng, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(rateLimitPerSec), 5)
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/outlets", handler.GetOutlets)
		api.PUT("/outlets/:id", handler.PutOutlet)
		api.POST("/outlets/:id/toggle", handler.ToggleOutlet)
		api.POST("/outlets/:id/timer", handler.ArmManualTimer)
		api.DELETE("/outlets/:id/timer", handler.CancelTimers)

		api.GET("/geofence", handler.GetGeofence)
		api.PUT("/geofence", handler.PutGeofence)
		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.PutSettings)
		api.GET("/notifications/prefs", handler.GetNotificationPrefs)
		api.PUT("/notifications/prefs", handler.PutNotificationPrefs)

		api.GET("/status", handler.GetStatus)
		api.POST("/location", handler.PostLocation)
		api.POST("/evaluate", handler.Evaluate)
		api.GET("/events", caching, handler.GetEvents)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
