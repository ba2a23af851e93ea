package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tripdispatch/internal/notify"
	"tripdispatch/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService *service.DriverService
	alertService  *service.AlertService
	hub           *notify.Hub
}

// NewDriverHandler creates a new DriverHandler. hub may be nil when the
// websocket stream is disabled.
func NewDriverHandler(driverService *service.DriverService, alertService *service.AlertService, hub *notify.Hub) *DriverHandler {
	return &DriverHandler{
		driverService: driverService,
		alertService:  alertService,
		hub:           hub,
	}
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AlertResponse is one entry of the driver alert feed.
type AlertResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	TripID    string `json:"trip_id,omitempty"`
	OfferID   string `json:"offer_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Timestamp string `json:"timestamp"`
}

// UpdateLocation handles POST /v1/drivers/:id/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.driverService.UpdateLocation(c.Request.Context(), c.Param("id"), req.Lat, req.Lng); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GoOffline handles DELETE /v1/drivers/:id/location
func (h *DriverHandler) GoOffline(c *gin.Context) {
	if err := h.driverService.GoOffline(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Alerts handles GET /v1/drivers/:id/alerts?limit=
func (h *DriverHandler) Alerts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	alerts, err := h.alertService.GetDriverAlerts(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]AlertResponse, 0, len(alerts))
	for _, alert := range alerts {
		response = append(response, AlertResponse{
			ID:        alert.ID,
			Type:      string(alert.Type),
			Title:     alert.Title,
			Message:   alert.Message,
			TripID:    alert.TripID,
			OfferID:   alert.OfferID,
			ExpiresAt: formatTime(alert.ExpiresAt),
			Timestamp: formatTime(alert.Timestamp),
		})
	}
	c.JSON(http.StatusOK, response)
}

// Stream handles GET /v1/drivers/:id/stream (websocket upgrade)
func (h *DriverHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "driver stream is disabled"})
		return
	}
	h.hub.ServeWS(c.Param("id"), c.Writer, c.Request)
}
