package repository

import (
	"context"

	"tripdispatch/internal/domain"
)

// DriverRepository exposes the driver profiles dispatch reads.
type DriverRepository interface {
	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByIDForUpdate retrieves a driver and locks the row so concurrent
	// assignments of the same driver serialize.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Driver, error)

	// ListByFranchise retrieves every driver of a franchise.
	ListByFranchise(ctx context.Context, franchiseID string) ([]*domain.Driver, error)
}

// FranchiseRepository exposes the franchise settings dispatch reads.
type FranchiseRepository interface {
	// GetByID retrieves a franchise by ID.
	GetByID(ctx context.Context, id string) (*domain.Franchise, error)
}
