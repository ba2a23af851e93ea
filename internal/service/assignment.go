package service

import (
	"context"
	"fmt"
	"time"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
)

// transition moves a trip along the state graph.
func transition(trip *domain.Trip, to domain.TripStatus) error {
	if !domain.CanTransition(trip.Status, to) {
		return fmt.Errorf("%w: cannot move trip from %s to %s", ErrInvalidState, trip.Status, to)
	}
	trip.Status = to
	return nil
}

// bindDriver assigns driverID to an unassigned trip, cancels the trip's open
// offers and records TRIP_ASSIGNED. The caller persists the trip.
func bindDriver(ctx context.Context, repos repository.Repos, trip *domain.Trip, driverID, actorID string, at time.Time) error {
	if !trip.Status.IsUnassigned() {
		return ErrTripNotAssignable
	}
	if err := transition(trip, domain.TripStatusAssigned); err != nil {
		return err
	}
	trip.DriverID = driverID

	if _, err := repos.Offers.CancelOpenByTrip(ctx, trip.ID, "", at); err != nil {
		return err
	}

	return repos.Activity.Append(ctx, tripActivity(
		domain.ActivityTripAssigned, trip, driverID,
		"Trip assigned to driver",
		map[string]any{"actor_id": actorID},
		at,
	))
}
