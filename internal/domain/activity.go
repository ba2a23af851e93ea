package domain

import "time"

// ActivityAction is the kind of fact recorded in the activity log.
type ActivityAction string

const (
	ActivityTripCreated          ActivityAction = "TRIP_CREATED"
	ActivityOfferSent            ActivityAction = "OFFER_SENT"
	ActivityOfferAccepted        ActivityAction = "OFFER_ACCEPTED"
	ActivityOfferRejected        ActivityAction = "OFFER_REJECTED"
	ActivityTripAssigned         ActivityAction = "TRIP_ASSIGNED"
	ActivityTripReassigned       ActivityAction = "TRIP_REASSIGNED"
	ActivityDriverOnTheWay       ActivityAction = "DRIVER_ON_THE_WAY"
	ActivityTripRejectedByDriver ActivityAction = "TRIP_REJECTED_BY_DRIVER"
	ActivityTripRescheduled      ActivityAction = "TRIP_RESCHEDULED"
	ActivityTripCancelled        ActivityAction = "TRIP_CANCELLED"
	ActivityStartInitiated       ActivityAction = "START_INITIATED"
	ActivityTripStarted          ActivityAction = "TRIP_STARTED"
	ActivityEndInitiated         ActivityAction = "END_INITIATED"
	ActivityPaymentCollected     ActivityAction = "PAYMENT_COLLECTED"
	ActivityTripEnded            ActivityAction = "TRIP_ENDED"
)

// ActivityLogEntry is an append-only record of something that happened to a
// trip or driver.
type ActivityLogEntry struct {
	ID          string
	Action      ActivityAction
	EntityType  string
	EntityID    string
	DriverID    string
	TripID      string
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}
