package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"outlet-geofence-backend/internal/model"
)

// GetGeofence handles GET /api/geofence.
func (h *Handler) GetGeofence(c *gin.Context) {
	region, _ := h.store.Region(c.Request.Context())
	c.JSON(http.StatusOK, region)
}

// PutGeofence handles PUT /api/geofence. Saving a disabled region takes
// effect on the next evaluation pass, which also drops armed grace timers.
func (h *Handler) PutGeofence(c *gin.Context) {
	var region model.GeofenceRegion
	if err := c.ShouldBindJSON(&region); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if region.Enabled && region.RadiusMeters <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "radiusMeters must be positive"})
		return
	}
	if err := h.store.SaveRegion(c.Request.Context(), region); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type settingsResponse struct {
	GracePeriodSeconds int `json:"gracePeriodSeconds"`
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(c *gin.Context) {
	grace := h.store.GracePeriod(c.Request.Context())
	c.JSON(http.StatusOK, settingsResponse{GracePeriodSeconds: int(grace / time.Second)})
}

type putSettingsRequest struct {
	GracePeriodSeconds int `json:"gracePeriodSeconds" binding:"required,min=1"`
}

// PutSettings handles PUT /api/settings. Values below the floor are clamped
// by the store.
func (h *Handler) PutSettings(c *gin.Context) {
	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SaveGracePeriod(c.Request.Context(), time.Duration(req.GracePeriodSeconds)*time.Second); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetNotificationPrefs handles GET /api/notifications/prefs.
func (h *Handler) GetNotificationPrefs(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.NotificationPrefs(c.Request.Context()))
}

// PutNotificationPrefs handles PUT /api/notifications/prefs.
func (h *Handler) PutNotificationPrefs(c *gin.Context) {
	var prefs model.NotificationPrefs
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SaveNotificationPrefs(c.Request.Context(), prefs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type statusResponse struct {
	Membership model.ZoneMembership  `json:"membership"`
	Timers     []model.ShutdownTimer `json:"timers"`
	LastRun    *time.Time            `json:"lastRun,omitempty"`
	LastStatus string                `json:"lastStatus,omitempty"`
}

// GetStatus handles GET /api/status.
func (h *Handler) GetStatus(c *gin.Context) {
	resp := statusResponse{
		Membership: h.engine.Membership(),
		Timers:     h.engine.ArmedTimers(c.Request.Context()),
	}
	if lastRun, lastStatus := h.engine.LastRun(); !lastRun.IsZero() {
		resp.LastRun = &lastRun
		resp.LastStatus = string(lastStatus)
	}
	c.JSON(http.StatusOK, resp)
}

// Evaluate handles POST /api/evaluate: a foreground-initiated evaluation
// pass, serialized against the background loop through the engine's
// evaluation lock.
func (h *Handler) Evaluate(c *gin.Context) {
	status := h.engine.Evaluate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// GetEvents handles GET /api/events.
func (h *Handler) GetEvents(c *gin.Context) {
	events, err := h.store.RecentEvents(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}
