package http

import (
	"net/http"
	"strconv"

	"homehub/internal/core/ports"
	apperrors "homehub/pkg/errors"

	"github.com/gin-gonic/gin"
)

// DeviceHandler serves the device inventory and per-user event history.
type DeviceHandler struct {
	devices ports.DeviceRepository
	events  ports.EventRepository
}

func NewDeviceHandler(devices ports.DeviceRepository, events ports.EventRepository) *DeviceHandler {
	return &DeviceHandler{devices: devices, events: events}
}

func (h *DeviceHandler) SetupRoutes(authenticated *gin.RouterGroup) {
	authenticated.GET("/devices", h.ListDevices)
	authenticated.GET("/events", h.ListEvents)
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	devices, err := h.devices.FindByUser(c.Request.Context(), userID)
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to list devices"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (h *DeviceHandler) ListEvents(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.Error(apperrors.NewInvalidInputError("limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}

	events, err := h.events.ListRecent(c.Request.Context(), userID, limit)
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to list events"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
