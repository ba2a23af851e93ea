package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/metrics"
	"tripdispatch/internal/redis"
	"tripdispatch/internal/repository"
)

const maxComplaintPenalty = 10

// DriverCandidate is a driver that passed every eligibility filter for a trip.
type DriverCandidate struct {
	Driver           *domain.Driver
	DistanceKm       *float64 // nil when the driver's location is unknown
	PerformanceScore float64
}

// EligibilityService answers which drivers may take a trip, best first.
type EligibilityService struct {
	store     repository.Store
	locations redis.LocationStoreInterface
	now       func() time.Time
}

// NewEligibilityService creates a new EligibilityService. locations may be nil.
func NewEligibilityService(store repository.Store, locations redis.LocationStoreInterface) *EligibilityService {
	return &EligibilityService{
		store:     store,
		locations: locations,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *EligibilityService) SetClock(now func() time.Time) {
	s.now = now
}

// FindEligibleDrivers returns the ranked candidates for an unassigned trip.
// It never mutates state.
func (s *EligibilityService) FindEligibleDrivers(ctx context.Context, tripID string) ([]DriverCandidate, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	repos := s.store.Repos()
	trip, err := repos.Trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !trip.Status.IsUnassigned() {
		return nil, ErrTripNotAssignable
	}

	return s.rank(ctx, repos, trip)
}

// rank applies the filters in order and sorts the survivors.
func (s *EligibilityService) rank(ctx context.Context, repos repository.Repos, trip *domain.Trip) ([]DriverCandidate, error) {
	franchise, err := repos.Franchises.GetByID(ctx, trip.FranchiseID)
	if err != nil {
		return nil, err
	}

	drivers, err := repos.Drivers.ListByFranchise(ctx, trip.FranchiseID)
	if err != nil {
		return nil, err
	}

	busy, err := repos.Trips.ListBusyDriverIDs(ctx, trip.FranchiseID)
	if err != nil {
		return nil, err
	}

	survivors := make([]*domain.Driver, 0, len(drivers))
	for _, driver := range drivers {
		if reason := profileIneligibility(driver, trip, franchise); reason != "" {
			continue
		}
		if busy[driver.ID] {
			continue
		}
		survivors = append(survivors, driver)
	}

	survivors, err = s.filterEarnings(ctx, repos, trip, survivors)
	if err != nil {
		return nil, err
	}

	locations := s.locate(ctx, survivors)

	candidates := make([]DriverCandidate, 0, len(survivors))
	for _, driver := range survivors {
		candidate := DriverCandidate{
			Driver:           driver,
			PerformanceScore: performanceScore(driver),
		}
		if loc, ok := locations[driver.ID]; ok {
			d := haversineKm(trip.Pickup.Lat, trip.Pickup.Lng, loc.Lat, loc.Lng)
			candidate.DistanceKm = &d
		}
		candidates = append(candidates, candidate)
	}

	sortCandidates(candidates)
	metrics.EligibleDrivers.Observe(float64(len(candidates)))

	return candidates, nil
}

// checkDriver re-validates one driver for a trip inside a transaction. The
// driver row is locked so two trips cannot claim the same driver at once.
func (s *EligibilityService) checkDriver(ctx context.Context, repos repository.Repos, trip *domain.Trip, driverID string) error {
	driver, err := repos.Drivers.GetByIDForUpdate(ctx, driverID)
	if err != nil {
		return err
	}

	franchise, err := repos.Franchises.GetByID(ctx, trip.FranchiseID)
	if err != nil {
		return err
	}

	if reason := profileIneligibility(driver, trip, franchise); reason != "" {
		return fmt.Errorf("%w: %s", ErrDriverIneligible, reason)
	}

	active, err := repos.Trips.GetActiveByDriverID(ctx, driverID)
	if err != nil {
		return err
	}
	if active != nil && active.ID != trip.ID {
		return fmt.Errorf("%w: driver is on trip %s", ErrDriverIneligible, active.ID)
	}

	remaining, err := s.filterEarnings(ctx, repos, trip, []*domain.Driver{driver})
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return fmt.Errorf("%w: daily earning limit reached", ErrDriverIneligible)
	}

	return nil
}

// profileIneligibility returns why a driver's profile rules them out, or "".
func profileIneligibility(driver *domain.Driver, trip *domain.Trip, franchise *domain.Franchise) string {
	switch {
	case driver.AccountStatus != domain.DriverAccountActive:
		return "account is not active"
	case driver.FranchiseID != trip.FranchiseID:
		return "driver belongs to another franchise"
	case !driver.SupportsCategory(trip.CarCategory):
		return "car category not supported"
	case !driver.SupportsTransmission(trip.Transmission):
		return "transmission not supported"
	case franchise.AttendanceRequired && !driver.CheckedIn:
		return "driver is not checked in"
	}
	return ""
}

// filterEarnings drops drivers whose completed fares today plus this trip's
// estimate would exceed their daily limit.
func (s *EligibilityService) filterEarnings(ctx context.Context, repos repository.Repos, trip *domain.Trip, drivers []*domain.Driver) ([]*domain.Driver, error) {
	var limited []string
	for _, driver := range drivers {
		if driver.DailyEarningLimit > 0 {
			limited = append(limited, driver.ID)
		}
	}
	if len(limited) == 0 {
		return drivers, nil
	}

	earned, err := repos.Trips.SumCompletedFaresSince(ctx, limited, startOfDay(s.now()))
	if err != nil {
		return nil, err
	}

	estimate := trip.EstimatedFare()
	kept := drivers[:0:0]
	for _, driver := range drivers {
		if driver.DailyEarningLimit > 0 && earned[driver.ID]+estimate > driver.DailyEarningLimit {
			continue
		}
		kept = append(kept, driver)
	}
	return kept, nil
}

// locate fetches last known positions. A location store failure leaves
// every distance unknown rather than failing the query.
func (s *EligibilityService) locate(ctx context.Context, drivers []*domain.Driver) map[string]redis.DriverLocation {
	if s.locations == nil || len(drivers) == 0 {
		return nil
	}

	ids := make([]string, len(drivers))
	for i, driver := range drivers {
		ids[i] = driver.ID
	}

	locations, err := s.locations.GetLocations(ctx, ids)
	if err != nil {
		log.Printf("[ELIGIBILITY] location lookup failed: %v", err)
		return nil
	}
	return locations
}

// performanceScore is rating/5*50 + completionRate*40 - min(complaints, 10), floored at 0.
func performanceScore(driver *domain.Driver) float64 {
	rating := math.Min(math.Max(driver.Rating, 0), 5)
	completion := math.Min(math.Max(driver.CompletionRate, 0), 1)
	penalty := math.Min(float64(driver.ComplaintCount), maxComplaintPenalty)

	score := rating/5*50 + completion*40 - penalty
	if score < 0 {
		return 0
	}
	return score
}

// sortCandidates orders known distances first (nearest first), then by
// score descending, then by driver ID.
func sortCandidates(candidates []DriverCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if (a.DistanceKm == nil) != (b.DistanceKm == nil) {
			return a.DistanceKm != nil
		}
		if a.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm {
			return *a.DistanceKm < *b.DistanceKm
		}
		if a.PerformanceScore != b.PerformanceScore {
			return a.PerformanceScore > b.PerformanceScore
		}
		return a.Driver.ID < b.Driver.ID
	})
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
