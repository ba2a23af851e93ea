package repository

import (
	"context"
	"time"

	"tripdispatch/internal/domain"
)

// TripFilter narrows a trip listing. Zero values match everything.
type TripFilter struct {
	FranchiseID string
	DriverID    string
	Statuses    []domain.TripStatus
	Limit       int
}

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Create persists a new trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// GetByIDForUpdate retrieves a trip and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error)

	// List retrieves trips matching the filter, newest first.
	List(ctx context.Context, filter TripFilter) ([]*domain.Trip, error)

	// Update writes the trip if its stored status still equals expected.
	// Returns ErrStatusConflict when it does not.
	Update(ctx context.Context, trip *domain.Trip, expected domain.TripStatus) error

	// GetActiveByDriverID retrieves the active trip for a driver.
	// Returns nil if no active trip exists.
	GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Trip, error)

	// ListBusyDriverIDs returns the drivers of a franchise that hold an active trip.
	ListBusyDriverIDs(ctx context.Context, franchiseID string) (map[string]bool, error)

	// SumCompletedFaresSince returns, per driver, the final amounts of trips
	// completed at or after since.
	SumCompletedFaresSince(ctx context.Context, driverIDs []string, since time.Time) (map[string]float64, error)
}
