package domain

import "time"

// OfferStatus represents the state of a trip offer.
type OfferStatus string

const (
	OfferStatusOffered   OfferStatus = "OFFERED"
	OfferStatusAccepted  OfferStatus = "ACCEPTED"
	OfferStatusRejected  OfferStatus = "REJECTED"
	OfferStatusExpired   OfferStatus = "EXPIRED"
	OfferStatusCancelled OfferStatus = "CANCELLED"
)

// IsTerminal reports whether the offer can no longer change.
func (s OfferStatus) IsTerminal() bool {
	return s != OfferStatusOffered
}

// TripOffer is one driver's time-bounded invitation to take one trip.
type TripOffer struct {
	ID          string
	TripID      string
	DriverID    string
	FranchiseID string
	Status      OfferStatus
	Attempt     int
	Round       int // Trip.DispatchRound when the offer was made
	OfferedAt   time.Time
	ExpiresAt   time.Time
	AcceptedAt  time.Time
	RejectedAt  time.Time
	ClosedAt    time.Time // Set when the offer expires or is cancelled
}

// IsExpired reports whether the offer's TTL has elapsed at the given instant.
func (o *TripOffer) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// IsLive reports whether the offer is still actionable by its driver.
func (o *TripOffer) IsLive(now time.Time) bool {
	return o.Status == OfferStatusOffered && !o.IsExpired(now)
}
