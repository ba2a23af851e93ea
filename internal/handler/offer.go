package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/service"
)

// OfferHandler handles HTTP requests for trip offers and eligibility.
type OfferHandler struct {
	offerService       *service.OfferService
	eligibilityService *service.EligibilityService
}

// NewOfferHandler creates a new OfferHandler.
func NewOfferHandler(offerService *service.OfferService, eligibilityService *service.EligibilityService) *OfferHandler {
	return &OfferHandler{
		offerService:       offerService,
		eligibilityService: eligibilityService,
	}
}

// RequestOffersRequest is the HTTP request body for a fan-out. No driver IDs
// means every eligible driver.
type RequestOffersRequest struct {
	DriverIDs []string `json:"driver_ids,omitempty"`
}

// RequestOffersResponse is the HTTP response for a fan-out.
type RequestOffersResponse struct {
	TripID        string `json:"trip_id"`
	OffersCreated int    `json:"offers_created"`
}

// OfferResponse is the HTTP response for an offer.
type OfferResponse struct {
	ID          string `json:"id"`
	TripID      string `json:"trip_id"`
	DriverID    string `json:"driver_id"`
	FranchiseID string `json:"franchise_id"`
	Status      string `json:"status"`
	Attempt     int    `json:"attempt"`
	OfferedAt   string `json:"offered_at"`
	ExpiresAt   string `json:"expires_at"`
	AcceptedAt  string `json:"accepted_at,omitempty"`
	RejectedAt  string `json:"rejected_at,omitempty"`
	ClosedAt    string `json:"closed_at,omitempty"`
}

// CandidateResponse is one ranked eligible driver.
type CandidateResponse struct {
	DriverID         string   `json:"driver_id"`
	Name             string   `json:"name"`
	Phone            string   `json:"phone"`
	DistanceKm       *float64 `json:"distance_km"`
	PerformanceScore float64  `json:"performance_score"`
}

func toOfferResponse(offer *domain.TripOffer) OfferResponse {
	return OfferResponse{
		ID:          offer.ID,
		TripID:      offer.TripID,
		DriverID:    offer.DriverID,
		FranchiseID: offer.FranchiseID,
		Status:      string(offer.Status),
		Attempt:     offer.Attempt,
		OfferedAt:   formatTime(offer.OfferedAt),
		ExpiresAt:   formatTime(offer.ExpiresAt),
		AcceptedAt:  formatTime(offer.AcceptedAt),
		RejectedAt:  formatTime(offer.RejectedAt),
		ClosedAt:    formatTime(offer.ClosedAt),
	}
}

// RequestOffers handles POST /v1/trips/:id/offers
func (h *OfferHandler) RequestOffers(c *gin.Context) {
	var req RequestOffersRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}

	tripID := c.Param("id")
	ctx := c.Request.Context()

	var (
		created int
		err     error
	)
	switch len(req.DriverIDs) {
	case 0:
		created, err = h.offerService.RequestTripToAllEligibleDrivers(ctx, tripID)
	case 1:
		created, err = h.offerService.RequestTripToEligibleDriverNow(ctx, tripID, req.DriverIDs[0])
	default:
		created, err = h.offerService.RequestTripToEligibleDriversNow(ctx, tripID, req.DriverIDs)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, RequestOffersResponse{TripID: tripID, OffersCreated: created})
}

// EligibleDrivers handles GET /v1/trips/:id/eligible-drivers
func (h *OfferHandler) EligibleDrivers(c *gin.Context) {
	candidates, err := h.eligibilityService.FindEligibleDrivers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]CandidateResponse, 0, len(candidates))
	for _, candidate := range candidates {
		response = append(response, CandidateResponse{
			DriverID:         candidate.Driver.ID,
			Name:             candidate.Driver.Name,
			Phone:            candidate.Driver.Phone,
			DistanceKm:       candidate.DistanceKm,
			PerformanceScore: candidate.PerformanceScore,
		})
	}
	c.JSON(http.StatusOK, response)
}

// Accept handles POST /v1/offers/:id/accept
func (h *OfferHandler) Accept(c *gin.Context) {
	offer, err := h.offerService.AcceptTripOffer(c.Request.Context(), c.Param("id"), c.GetHeader(HeaderDriverID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toOfferResponse(offer))
}

// Reject handles POST /v1/offers/:id/reject
func (h *OfferHandler) Reject(c *gin.Context) {
	offer, err := h.offerService.RejectTripOffer(c.Request.Context(), c.Param("id"), c.GetHeader(HeaderDriverID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toOfferResponse(offer))
}

// PendingOffers handles GET /v1/drivers/:id/offers
func (h *OfferHandler) PendingOffers(c *gin.Context) {
	offers, err := h.offerService.ListPendingOffers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]OfferResponse, 0, len(offers))
	for _, offer := range offers {
		response = append(response, toOfferResponse(offer))
	}
	c.JSON(http.StatusOK, response)
}
