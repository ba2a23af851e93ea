package repository

import (
	"context"

	"tripdispatch/internal/domain"
)

// ActivityRepository defines the append-only activity log.
type ActivityRepository interface {
	// Append records a new entry.
	Append(ctx context.Context, entry *domain.ActivityLogEntry) error

	// ListByDriver retrieves the newest entries of a driver restricted to the
	// given actions.
	ListByDriver(ctx context.Context, driverID string, actions []domain.ActivityAction, limit int) ([]*domain.ActivityLogEntry, error)

	// ListByTrip retrieves every entry of a trip, oldest first.
	ListByTrip(ctx context.Context, tripID string) ([]*domain.ActivityLogEntry, error)
}
