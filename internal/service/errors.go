package service

import (
	"errors"
	"fmt"

	"tripdispatch/internal/repository"
)

// Error kinds. Every error returned by the services wraps one of these or
// repository.ErrNotFound.
var (
	// ErrInvalidState is returned when an operation is not legal from the current status.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrUnauthorized is returned when an offer, trip or challenge does not belong to the caller.
	ErrUnauthorized = errors.New("resource does not belong to caller")

	// ErrInvalidOTP is returned when the OTP does not match a live challenge.
	ErrInvalidOTP = errors.New("invalid otp")

	// ErrChallengeExpired is returned when a challenge has expired or was already used.
	ErrChallengeExpired = errors.New("verification challenge expired or already used")

	// ErrDriverIneligible is returned when a driver fails the eligibility filter.
	ErrDriverIneligible = errors.New("driver is not eligible for this trip")

	// ErrValidation is returned for malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrOTPDelivery is returned when the OTP could not be handed to the delivery channel.
	ErrOTPDelivery = errors.New("otp delivery failed")

	// ErrDispatchInProgress is returned when another fan-out holds the trip's dispatch lock.
	ErrDispatchInProgress = errors.New("dispatch already in progress for trip")
)

var (
	ErrInvalidTripID        = fmt.Errorf("%w: invalid trip id", ErrValidation)
	ErrInvalidDriverID      = fmt.Errorf("%w: invalid driver id", ErrValidation)
	ErrInvalidOfferID       = fmt.Errorf("%w: invalid offer id", ErrValidation)
	ErrInvalidFranchiseID   = fmt.Errorf("%w: invalid franchise id", ErrValidation)
	ErrInvalidCustomer      = fmt.Errorf("%w: customer name and phone are required", ErrValidation)
	ErrInvalidPickup        = fmt.Errorf("%w: invalid pickup location", ErrValidation)
	ErrInvalidDrop          = fmt.Errorf("%w: invalid drop location", ErrValidation)
	ErrInvalidTripType      = fmt.Errorf("%w: trip type and car category are required", ErrValidation)
	ErrInvalidLocation      = fmt.Errorf("%w: invalid location", ErrValidation)
	ErrInvalidScheduleTime  = fmt.Errorf("%w: invalid schedule time", ErrValidation)
	ErrInvalidCancelParty   = fmt.Errorf("%w: cancelled_by must be CUSTOMER or OFFICE", ErrValidation)
	ErrNoDriversGiven       = fmt.Errorf("%w: at least one driver id is required", ErrValidation)
	ErrMissingEvidence      = fmt.Errorf("%w: odometer and picture evidence are required", ErrValidation)
	ErrInvalidOdometer      = fmt.Errorf("%w: odometer reading must not be negative", ErrValidation)
	ErrOdometerBelowStart   = fmt.Errorf("%w: end odometer is below start odometer", ErrValidation)
	ErrMissingCredentials   = fmt.Errorf("%w: token and otp are required", ErrValidation)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: payment method must be CASH, UPI or SPLIT", ErrValidation)
	ErrInvalidPaymentAmount = fmt.Errorf("%w: payment amounts do not match the payment method", ErrValidation)
	ErrPaymentMismatch      = fmt.Errorf("%w: collected amount does not match the fare", ErrValidation)

	ErrTripNotAssignable   = fmt.Errorf("%w: trip is not waiting for a driver", ErrInvalidState)
	ErrTripNotStartable    = fmt.Errorf("%w: trip is not assigned", ErrInvalidState)
	ErrTripNotInProgress   = fmt.Errorf("%w: trip is not in progress", ErrInvalidState)
	ErrTripNotReassignable = fmt.Errorf("%w: trip cannot be reassigned", ErrInvalidState)
	ErrTripNotActive       = fmt.Errorf("%w: trip is not active", ErrInvalidState)
	ErrTripAlreadyStarted  = fmt.Errorf("%w: trip has already started", ErrInvalidState)
	ErrCancelNotAllowed    = fmt.Errorf("%w: trip can no longer be cancelled", ErrInvalidState)
	ErrEndNotInitiated     = fmt.Errorf("%w: trip end has not been initiated", ErrInvalidState)
	ErrPaymentNotCollected = fmt.Errorf("%w: payment has not been collected", ErrInvalidState)
	ErrConcurrentUpdate    = fmt.Errorf("%w: changed by a concurrent request", ErrInvalidState)

	ErrNotTripDriver  = fmt.Errorf("%w: trip is not assigned to this driver", ErrUnauthorized)
	ErrNotOfferDriver = fmt.Errorf("%w: offer was made to another driver", ErrUnauthorized)

	ErrChallengeNotFound  = fmt.Errorf("verification challenge: %w", repository.ErrNotFound)
	ErrTooManyOTPAttempts = fmt.Errorf("%w: too many wrong otp attempts", ErrChallengeExpired)
)

// storeErr converts a lost compare-and-swap into ErrConcurrentUpdate.
func storeErr(err error) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return ErrConcurrentUpdate
	}
	return err
}
