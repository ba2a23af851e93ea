package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripdispatch/internal/repository"
	"tripdispatch/internal/service"
)

const (
	// HeaderActorID identifies the office user or system acting on a trip.
	HeaderActorID = "X-Actor-ID"
	// HeaderDriverID identifies the driver acting on an offer or trip.
	HeaderDriverID = "X-Driver-ID"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// badRequest rejects a request whose body could not be parsed.
func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest

	// Ownership errors
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden

	// Verification errors
	case errors.Is(err, service.ErrInvalidOTP):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrChallengeExpired):
		return http.StatusGone

	// Conflict errors
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrDriverIneligible),
		errors.Is(err, service.ErrDispatchInProgress),
		errors.Is(err, repository.ErrStatusConflict):
		return http.StatusConflict

	// Upstream delivery
	case errors.Is(err, service.ErrOTPDelivery):
		return http.StatusBadGateway

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// formatTime renders a timestamp as RFC3339, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses an optional RFC3339 timestamp.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
