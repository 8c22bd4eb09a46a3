package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"outlet-geofence-backend/internal/model"
)

type locationRequest struct {
	Lat            float64    `json:"lat"`
	Lng            float64    `json:"lng"`
	AccuracyMeters float64    `json:"accuracyMeters"`
	Timestamp      *time.Time `json:"timestamp"`
}

// PostLocation handles POST /api/location: the companion app pushes a fix
// and the engine runs a foreground evaluation pass with it. The pass
// serializes against the background loop; the freshest sample wins.
func (h *Handler) PostLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sample := model.LocationSample{
		Lat:            req.Lat,
		Lng:            req.Lng,
		AccuracyMeters: req.AccuracyMeters,
		Timestamp:      time.Now().UTC(),
	}
	if req.Timestamp != nil {
		sample.Timestamp = *req.Timestamp
	}

	h.engine.ObserveLocation(sample)
	status := h.engine.Evaluate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": status, "membership": h.engine.Membership()})
}
