package service

import (
	"context"
	"fmt"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/redis"
	"tripdispatch/internal/repository"
)

// DriverService handles driver presence operations.
type DriverService struct {
	store         repository.Store
	locationStore redis.LocationStoreInterface
}

// NewDriverService creates a new DriverService.
func NewDriverService(store repository.Store, locationStore redis.LocationStoreInterface) *DriverService {
	return &DriverService{
		store:         store,
		locationStore: locationStore,
	}
}

// UpdateLocation records a driver's position in the GEO index used for
// ranking eligible drivers.
func (s *DriverService) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	if !validCoordinates(lat, lng) {
		return ErrInvalidLocation
	}

	driver, err := s.store.Repos().Drivers.GetByID(ctx, driverID)
	if err != nil {
		return err
	}
	if driver.AccountStatus != domain.DriverAccountActive {
		return fmt.Errorf("%w: account is not active", ErrDriverIneligible)
	}

	return s.locationStore.UpdateLocation(ctx, driverID, lat, lng)
}

// GoOffline removes a driver from the GEO index. Their distance becomes unknown.
func (s *DriverService) GoOffline(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	return s.locationStore.RemoveLocation(ctx, driverID)
}
