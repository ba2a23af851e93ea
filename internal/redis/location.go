package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const driverLocationKey = "drivers:locations"

// DriverLocation represents a driver's last known position.
type DriverLocation struct {
	DriverID string
	Lat      float64
	Lng      float64
}

// LocationStore handles driver location operations in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a driver's location using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// GetLocations returns the last known positions of the given drivers.
// Drivers that never reported a position are absent from the result.
func (s *LocationStore) GetLocations(ctx context.Context, driverIDs []string) (map[string]DriverLocation, error) {
	locations := make(map[string]DriverLocation, len(driverIDs))
	if len(driverIDs) == 0 {
		return locations, nil
	}

	positions, err := s.client.GeoPos(ctx, driverLocationKey, driverIDs...).Result()
	if err != nil {
		return nil, err
	}

	for i, pos := range positions {
		if pos == nil {
			continue
		}
		locations[driverIDs[i]] = DriverLocation{
			DriverID: driverIDs[i],
			Lat:      pos.Latitude,
			Lng:      pos.Longitude,
		}
	}

	return locations, nil
}

// RemoveLocation removes a driver's location from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	return s.client.ZRem(ctx, driverLocationKey, driverID).Err()
}
