package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/service"
)

// VerificationHandler handles the OTP-gated start/end and payment endpoints.
type VerificationHandler struct {
	verificationService *service.VerificationService
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(verificationService *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verificationService: verificationService}
}

// InitiateStartRequest is the HTTP request body for starting verification.
type InitiateStartRequest struct {
	Odometer     float64 `json:"odometer"`
	OdometerPic  string  `json:"odometer_pic"`
	CarFrontPic  string  `json:"car_front_pic"`
	CarBackPic   string  `json:"car_back_pic"`
	DriverSelfie string  `json:"driver_selfie"`
	StartTime    string  `json:"start_time,omitempty"` // RFC3339
}

// InitiateEndRequest is the HTTP request body for ending verification.
type InitiateEndRequest struct {
	Odometer    float64 `json:"odometer"`
	OdometerPic string  `json:"odometer_pic"`
	EndPic      string  `json:"end_pic"`
	EndTime     string  `json:"end_time,omitempty"` // RFC3339
}

// VerifyRequest is the HTTP request body for submitting the customer's OTP.
type VerifyRequest struct {
	Token string `json:"token"`
	OTP   string `json:"otp"`
}

// CollectPaymentRequest is the HTTP request body for recording a payment.
type CollectPaymentRequest struct {
	Method     string  `json:"method"` // CASH, UPI, SPLIT
	CashAmount float64 `json:"cash_amount"`
	UPIAmount  float64 `json:"upi_amount"`
}

// InitiateResponse is the HTTP response for an initiated verification.
type InitiateResponse struct {
	TripID    string `json:"trip_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// PaymentSummaryResponse is the HTTP response for a collected payment.
type PaymentSummaryResponse struct {
	TripID          string  `json:"trip_id"`
	Method          string  `json:"method"`
	CashAmount      float64 `json:"cash_amount"`
	UPIAmount       float64 `json:"upi_amount"`
	CollectedAmount float64 `json:"collected_amount"`
	ExpectedAmount  float64 `json:"expected_amount"`
	Reconciled      bool    `json:"reconciled"`
}

func respondInitiated(c *gin.Context, result *service.InitiateResult, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, InitiateResponse{
		TripID:    result.TripID,
		Token:     result.Token,
		ExpiresAt: formatTime(result.ExpiresAt),
	})
}

// InitiateStart handles POST /v1/trips/:id/start/initiate
func (h *VerificationHandler) InitiateStart(c *gin.Context) {
	var req InitiateStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	startTime, err := parseTime(req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid start_time"})
		return
	}

	result, err := h.verificationService.InitiateStart(c.Request.Context(), service.InitiateStartRequest{
		TripID:        c.Param("id"),
		ActorDriverID: c.GetHeader(HeaderDriverID),
		Odometer:      req.Odometer,
		OdometerPic:   req.OdometerPic,
		CarFrontPic:   req.CarFrontPic,
		CarBackPic:    req.CarBackPic,
		DriverSelfie:  req.DriverSelfie,
		StartTime:     startTime,
	})
	respondInitiated(c, result, err)
}

// VerifyStart handles POST /v1/trips/:id/start/verify
func (h *VerificationHandler) VerifyStart(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	trip, err := h.verificationService.VerifyAndStart(c.Request.Context(), c.Param("id"), req.Token, req.OTP)
	respondTrip(c, http.StatusOK, trip, err)
}

// InitiateEnd handles POST /v1/trips/:id/end/initiate
func (h *VerificationHandler) InitiateEnd(c *gin.Context) {
	var req InitiateEndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	endTime, err := parseTime(req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid end_time"})
		return
	}

	result, err := h.verificationService.InitiateEnd(c.Request.Context(), service.InitiateEndRequest{
		TripID:        c.Param("id"),
		ActorDriverID: c.GetHeader(HeaderDriverID),
		Odometer:      req.Odometer,
		OdometerPic:   req.OdometerPic,
		EndPic:        req.EndPic,
		EndTime:       endTime,
	})
	respondInitiated(c, result, err)
}

// VerifyEnd handles POST /v1/trips/:id/end/verify
func (h *VerificationHandler) VerifyEnd(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	trip, err := h.verificationService.VerifyAndEnd(c.Request.Context(), c.Param("id"), req.Token, req.OTP)
	respondTrip(c, http.StatusOK, trip, err)
}

// CollectPayment handles POST /v1/trips/:id/payment/collect
func (h *VerificationHandler) CollectPayment(c *gin.Context) {
	var req CollectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	summary, err := h.verificationService.CollectPayment(c.Request.Context(), service.CollectPaymentRequest{
		TripID:        c.Param("id"),
		ActorDriverID: c.GetHeader(HeaderDriverID),
		Method:        domain.PaymentMethod(req.Method),
		CashAmount:    req.CashAmount,
		UPIAmount:     req.UPIAmount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, PaymentSummaryResponse{
		TripID:          summary.TripID,
		Method:          string(summary.Method),
		CashAmount:      summary.CashAmount,
		UPIAmount:       summary.UPIAmount,
		CollectedAmount: summary.CollectedAmount,
		ExpectedAmount:  summary.ExpectedAmount,
		Reconciled:      summary.Reconciled,
	})
}

// VerifyPayment handles POST /v1/trips/:id/payment/verify
func (h *VerificationHandler) VerifyPayment(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	trip, err := h.verificationService.VerifyPaymentAndEndTrip(c.Request.Context(), c.Param("id"), req.Token, req.OTP)
	respondTrip(c, http.StatusOK, trip, err)
}
