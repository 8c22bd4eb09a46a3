package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"outlet-geofence-backend/internal/model"
	"outlet-geofence-backend/internal/outlet"
)

// GetOutlets handles GET /api/outlets.
func (h *Handler) GetOutlets(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Outlets(c.Request.Context()))
}

type putOutletRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

// PutOutlet registers or renames an outlet.
func (h *Handler) PutOutlet(c *gin.Context) {
	var req putOutletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.engine.RegisterOutlet(c.Request.Context(), model.Outlet{
		ID:          c.Param("id"),
		DisplayName: req.DisplayName,
	})
	c.Status(http.StatusNoContent)
}

type toggleRequest struct {
	State model.PowerState `json:"state" binding:"required"`
}

// ToggleOutlet handles POST /api/outlets/{id}/toggle. The response carries
// the issued command; the caller observes the outcome through the outlet's
// displayed state and errored flag.
func (h *Handler) ToggleOutlet(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.State != model.PowerOn && req.State != model.PowerOff {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be \"on\" or \"off\""})
		return
	}

	cmd, err := h.engine.Toggle(c.Request.Context(), c.Param("id"), req.State)
	if err != nil {
		if errors.Is(err, outlet.ErrUnknownOutlet) {
			c.JSON(http.StatusNotFound, gin.H{"error": "outlet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, cmd)
}

type manualTimerRequest struct {
	Minutes int `json:"minutes" binding:"required,min=1"`
}

// ArmManualTimer handles POST /api/outlets/{id}/timer.
func (h *Handler) ArmManualTimer(c *gin.Context) {
	var req manualTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.engine.ArmManualTimer(c.Request.Context(), c.Param("id"), time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		if errors.Is(err, outlet.ErrUnknownOutlet) {
			c.JSON(http.StatusNotFound, gin.H{"error": "outlet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, t)
}

// CancelTimers handles DELETE /api/outlets/{id}/timer.
func (h *Handler) CancelTimers(c *gin.Context) {
	n := h.engine.CancelTimers(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}
