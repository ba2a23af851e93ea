package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
	"tripdispatch/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// LocationBody is a point on the map.
type LocationBody struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// CreateTripRequest is the HTTP request body for creating a trip.
type CreateTripRequest struct {
	FranchiseID   string       `json:"franchise_id"`
	CustomerName  string       `json:"customer_name"`
	CustomerPhone string       `json:"customer_phone"`
	CustomerEmail string       `json:"customer_email,omitempty"`
	Pickup        LocationBody `json:"pickup"`
	Drop          LocationBody `json:"drop"`
	TripTypeID    string       `json:"trip_type_id"`
	CarCategory   string       `json:"car_category"`
	Transmission  string       `json:"transmission,omitempty"` // MANUAL, AUTOMATIC, BOTH
	ScheduledAt   string       `json:"scheduled_at,omitempty"` // RFC3339
}

// DriverRequest is the HTTP request body for assign and reassign.
type DriverRequest struct {
	DriverID string `json:"driver_id"`
}

// RescheduleRequest is the HTTP request body for rescheduling a trip.
type RescheduleRequest struct {
	ScheduledAt string `json:"scheduled_at"`
}

// CancelTripRequest is the HTTP request body for cancelling a trip.
type CancelTripRequest struct {
	CancelledBy string `json:"cancelled_by"` // CUSTOMER or OFFICE
	Reason      string `json:"reason,omitempty"`
}

// DriverRejectRequest is the HTTP request body for a driver dropping an assigned trip.
type DriverRejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// LiveLocationRequest is the HTTP request body for a live location ping.
type LiveLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// EndDirectRequest is the HTTP request body for ending a trip without OTP.
type EndDirectRequest struct {
	EndOdometer float64 `json:"end_odometer"`
}

// PaymentInfo contains payment details in the response.
type PaymentInfo struct {
	Status     string  `json:"status"`
	Method     string  `json:"method,omitempty"`
	CashAmount float64 `json:"cash_amount"`
	UPIAmount  float64 `json:"upi_amount"`
}

// TripResponse is the HTTP response for trip operations.
type TripResponse struct {
	ID                  string       `json:"id"`
	FranchiseID         string       `json:"franchise_id"`
	CustomerName        string       `json:"customer_name"`
	CustomerPhone       string       `json:"customer_phone"`
	Pickup              LocationBody `json:"pickup"`
	Drop                LocationBody `json:"drop"`
	TripTypeID          string       `json:"trip_type_id"`
	CarCategory         string       `json:"car_category"`
	Transmission        string       `json:"transmission,omitempty"`
	ScheduledAt         string       `json:"scheduled_at"`
	DriverID            string       `json:"driver_id,omitempty"`
	Status              string       `json:"status"`
	BaseAmount          float64      `json:"base_amount"`
	ExtraAmount         float64      `json:"extra_amount"`
	FinalAmount         *float64     `json:"final_amount,omitempty"`
	EstimatedDistanceKm float64      `json:"estimated_distance_km"`
	DistanceKm          float64      `json:"distance_km,omitempty"`
	DurationMinutes     float64      `json:"duration_minutes,omitempty"`
	StartOdometer       *float64     `json:"start_odometer,omitempty"`
	EndOdometer         *float64     `json:"end_odometer,omitempty"`
	LiveLat             *float64     `json:"live_lat,omitempty"`
	LiveLng             *float64     `json:"live_lng,omitempty"`
	Payment             PaymentInfo  `json:"payment"`
	StartedAt           string       `json:"started_at,omitempty"`
	EndedAt             string       `json:"ended_at,omitempty"`
	CancelledBy         string       `json:"cancelled_by,omitempty"`
	CancelReason        string       `json:"cancel_reason,omitempty"`
	CancelledAt         string       `json:"cancelled_at,omitempty"`
	CreatedAt           string       `json:"created_at"`
	UpdatedAt           string       `json:"updated_at"`
}

func toTripResponse(trip *domain.Trip) TripResponse {
	return TripResponse{
		ID:                  trip.ID,
		FranchiseID:         trip.FranchiseID,
		CustomerName:        trip.CustomerName,
		CustomerPhone:       trip.CustomerPhone,
		Pickup:              LocationBody(trip.Pickup),
		Drop:                LocationBody(trip.Drop),
		TripTypeID:          trip.TripTypeID,
		CarCategory:         trip.CarCategory,
		Transmission:        string(trip.Transmission),
		ScheduledAt:         formatTime(trip.ScheduledAt),
		DriverID:            trip.DriverID,
		Status:              string(trip.Status),
		BaseAmount:          trip.BaseAmount,
		ExtraAmount:         trip.ExtraAmount,
		FinalAmount:         trip.FinalAmount,
		EstimatedDistanceKm: trip.EstimatedDistanceKm,
		DistanceKm:          trip.DistanceKm,
		DurationMinutes:     trip.DurationMinutes,
		StartOdometer:       trip.StartOdometer,
		EndOdometer:         trip.EndOdometer,
		LiveLat:             trip.LiveLat,
		LiveLng:             trip.LiveLng,
		Payment: PaymentInfo{
			Status:     string(trip.PaymentStatus),
			Method:     string(trip.PaymentMethod),
			CashAmount: trip.CashAmount,
			UPIAmount:  trip.UPIAmount,
		},
		StartedAt:    formatTime(trip.StartedAt),
		EndedAt:      formatTime(trip.EndedAt),
		CancelledBy:  string(trip.CancelledBy),
		CancelReason: trip.CancelReason,
		CancelledAt:  formatTime(trip.CancelledAt),
		CreatedAt:    formatTime(trip.CreatedAt),
		UpdatedAt:    formatTime(trip.UpdatedAt),
	}
}

// respondTrip writes a trip or the error that prevented producing it.
func respondTrip(c *gin.Context, code int, trip *domain.Trip, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, code, toTripResponse(trip))
}

// CreateTrip handles POST /v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	scheduledAt, err := parseTime(req.ScheduledAt)
	if err != nil {
		respondError(c, service.ErrInvalidScheduleTime)
		return
	}

	trip, err := h.tripService.CreateTrip(c.Request.Context(), service.CreateTripRequest{
		FranchiseID:   req.FranchiseID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Pickup:        domain.Location(req.Pickup),
		Drop:          domain.Location(req.Drop),
		TripTypeID:    req.TripTypeID,
		CarCategory:   req.CarCategory,
		Transmission:  domain.Transmission(req.Transmission),
		ScheduledAt:   scheduledAt,
		ActorID:       c.GetHeader(HeaderActorID),
	})
	respondTrip(c, http.StatusCreated, trip, err)
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.tripService.GetTrip(c.Request.Context(), c.Param("id"))
	respondTrip(c, http.StatusOK, trip, err)
}

// ListTrips handles GET /v1/trips?franchise_id=&driver_id=&status=&limit=
func (h *TripHandler) ListTrips(c *gin.Context) {
	filter := repository.TripFilter{
		FranchiseID: c.Query("franchise_id"),
		DriverID:    c.Query("driver_id"),
	}
	for _, status := range c.QueryArray("status") {
		filter.Statuses = append(filter.Statuses, domain.TripStatus(status))
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		filter.Limit = n
	}

	trips, err := h.tripService.ListTrips(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		response = append(response, toTripResponse(trip))
	}
	c.JSON(http.StatusOK, response)
}

// AssignDriver handles POST /v1/trips/:id/assign
func (h *TripHandler) AssignDriver(c *gin.Context) {
	var req DriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	trip, err := h.tripService.AssignDriver(c.Request.Context(), c.Param("id"), req.DriverID, c.GetHeader(HeaderActorID))
	respondTrip(c, http.StatusOK, trip, err)
}

// ReassignDriver handles POST /v1/trips/:id/reassign
func (h *TripHandler) ReassignDriver(c *gin.Context) {
	var req DriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	trip, err := h.tripService.ReassignDriver(c.Request.Context(), c.Param("id"), req.DriverID, c.GetHeader(HeaderActorID))
	respondTrip(c, http.StatusOK, trip, err)
}

// MarkOnTheWay handles POST /v1/trips/:id/on-the-way
func (h *TripHandler) MarkOnTheWay(c *gin.Context) {
	trip, err := h.tripService.MarkDriverOnTheWay(c.Request.Context(), c.Param("id"), c.GetHeader(HeaderDriverID))
	respondTrip(c, http.StatusOK, trip, err)
}

// DriverReject handles POST /v1/trips/:id/driver-reject
func (h *TripHandler) DriverReject(c *gin.Context) {
	var req DriverRejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}

	trip, err := h.tripService.RejectAssignedTrip(c.Request.Context(), c.Param("id"), c.GetHeader(HeaderDriverID), req.Reason)
	respondTrip(c, http.StatusOK, trip, err)
}

// Reschedule handles POST /v1/trips/:id/reschedule
func (h *TripHandler) Reschedule(c *gin.Context) {
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	scheduledAt, err := parseTime(req.ScheduledAt)
	if err != nil {
		respondError(c, service.ErrInvalidScheduleTime)
		return
	}

	trip, err := h.tripService.RescheduleTrip(c.Request.Context(), c.Param("id"), scheduledAt, c.GetHeader(HeaderActorID))
	respondTrip(c, http.StatusOK, trip, err)
}

// Cancel handles POST /v1/trips/:id/cancel
func (h *TripHandler) Cancel(c *gin.Context) {
	var req CancelTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	trip, err := h.tripService.CancelTrip(c.Request.Context(), service.CancelTripRequest{
		TripID:      c.Param("id"),
		CancelledBy: domain.CancelledBy(req.CancelledBy),
		Reason:      req.Reason,
		ActorID:     c.GetHeader(HeaderActorID),
	})
	respondTrip(c, http.StatusOK, trip, err)
}

// UpdateLocation handles POST /v1/trips/:id/location
func (h *TripHandler) UpdateLocation(c *gin.Context) {
	var req LiveLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	trip, err := h.tripService.UpdateLiveLocation(c.Request.Context(), c.Param("id"), c.GetHeader(HeaderDriverID), req.Lat, req.Lng)
	respondTrip(c, http.StatusOK, trip, err)
}

// EndDirect handles POST /v1/trips/:id/end-direct
func (h *TripHandler) EndDirect(c *gin.Context) {
	var req EndDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	trip, err := h.tripService.EndTripDirect(c.Request.Context(), c.Param("id"), req.EndOdometer, c.GetHeader(HeaderActorID))
	respondTrip(c, http.StatusOK, trip, err)
}
