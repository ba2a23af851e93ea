package service

import (
	"time"

	"github.com/google/uuid"

	"tripdispatch/internal/domain"
)

const (
	entityTrip  = "trip"
	entityOffer = "offer"
)

// tripActivity builds an activity entry about a trip.
func tripActivity(action domain.ActivityAction, trip *domain.Trip, driverID, description string, metadata map[string]any, at time.Time) *domain.ActivityLogEntry {
	return &domain.ActivityLogEntry{
		ID:          uuid.New().String(),
		Action:      action,
		EntityType:  entityTrip,
		EntityID:    trip.ID,
		DriverID:    driverID,
		TripID:      trip.ID,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   at,
	}
}

// offerActivity builds an activity entry about an offer.
func offerActivity(action domain.ActivityAction, offer *domain.TripOffer, description string, at time.Time) *domain.ActivityLogEntry {
	return &domain.ActivityLogEntry{
		ID:          uuid.New().String(),
		Action:      action,
		EntityType:  entityOffer,
		EntityID:    offer.ID,
		DriverID:    offer.DriverID,
		TripID:      offer.TripID,
		Description: description,
		Metadata: map[string]any{
			"offer_id": offer.ID,
			"attempt":  offer.Attempt,
		},
		CreatedAt: at,
	}
}
