package repository

import (
	"context"
	"time"

	"tripdispatch/internal/domain"
)

// OfferRepository defines the persistence operations for trip offers.
type OfferRepository interface {
	// Create persists a new offer.
	Create(ctx context.Context, offer *domain.TripOffer) error

	// GetByID retrieves an offer by ID.
	GetByID(ctx context.Context, id string) (*domain.TripOffer, error)

	// GetByIDForUpdate retrieves an offer and locks its row.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.TripOffer, error)

	// ListByTrip retrieves every offer ever made for a trip, oldest first.
	ListByTrip(ctx context.Context, tripID string) ([]*domain.TripOffer, error)

	// ListLiveByDriver retrieves OFFERED offers of a driver that expire after now.
	ListLiveByDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.TripOffer, error)

	// UpdateStatus writes the offer's status and timestamps if its stored
	// status still equals expected. Returns ErrStatusConflict when it does not.
	UpdateStatus(ctx context.Context, offer *domain.TripOffer, expected domain.OfferStatus) error

	// CancelOpenByTrip cancels every OFFERED offer of the trip except exceptID.
	CancelOpenByTrip(ctx context.Context, tripID, exceptID string, at time.Time) (int, error)

	// ExpireStale marks OFFERED offers whose expiry is not after now as EXPIRED.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}
