package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"tripdispatch/internal/config"
	"tripdispatch/internal/domain"
	"tripdispatch/internal/metrics"
	"tripdispatch/internal/redis"
	"tripdispatch/internal/repository"
)

const (
	defaultOfferTTL         = 5 * time.Minute
	defaultMaxOfferAttempts = 3
	dispatchLockTTL         = 30 * time.Second
)

// OfferService fans trips out to drivers and resolves their answers.
type OfferService struct {
	store         repository.Store
	eligibility   *EligibilityService
	lockStore     redis.LockStoreInterface
	notifications *NotificationService
	offerTTL      time.Duration
	maxAttempts   int
	now           func() time.Time
}

// NewOfferService creates a new OfferService. lockStore may be nil.
func NewOfferService(
	store repository.Store,
	eligibility *EligibilityService,
	lockStore redis.LockStoreInterface,
	notifications *NotificationService,
	cfg config.DispatchConfig,
) *OfferService {
	s := &OfferService{
		store:         store,
		eligibility:   eligibility,
		lockStore:     lockStore,
		notifications: notifications,
		offerTTL:      cfg.OfferTTL,
		maxAttempts:   cfg.MaxOfferAttempts,
		now:           time.Now,
	}
	if s.offerTTL <= 0 {
		s.offerTTL = defaultOfferTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxOfferAttempts
	}
	return s
}

// SetClock replaces the time source.
func (s *OfferService) SetClock(now func() time.Time) {
	s.now = now
}

// RequestTripToAllEligibleDrivers offers the trip to every eligible driver.
func (s *OfferService) RequestTripToAllEligibleDrivers(ctx context.Context, tripID string) (int, error) {
	candidates, err := s.eligibility.FindEligibleDrivers(ctx, tripID)
	if err != nil {
		return 0, err
	}

	driverIDs := make([]string, len(candidates))
	for i, c := range candidates {
		driverIDs[i] = c.Driver.ID
	}
	return s.fanOut(ctx, tripID, driverIDs)
}

// RequestTripToEligibleDriverNow offers the trip to one driver, who must be eligible.
func (s *OfferService) RequestTripToEligibleDriverNow(ctx context.Context, tripID, driverID string) (int, error) {
	if driverID == "" {
		return 0, ErrInvalidDriverID
	}

	eligible, err := s.eligibleSet(ctx, tripID)
	if err != nil {
		return 0, err
	}
	if !eligible[driverID] {
		return 0, ErrDriverIneligible
	}
	return s.fanOut(ctx, tripID, []string{driverID})
}

// RequestTripToEligibleDriversNow offers the trip to the eligible subset of driverIDs.
func (s *OfferService) RequestTripToEligibleDriversNow(ctx context.Context, tripID string, driverIDs []string) (int, error) {
	if len(driverIDs) == 0 {
		return 0, ErrNoDriversGiven
	}

	eligible, err := s.eligibleSet(ctx, tripID)
	if err != nil {
		return 0, err
	}

	targets := make([]string, 0, len(driverIDs))
	for _, id := range driverIDs {
		if eligible[id] {
			targets = append(targets, id)
			delete(eligible, id)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}
	return s.fanOut(ctx, tripID, targets)
}

func (s *OfferService) eligibleSet(ctx context.Context, tripID string) (map[string]bool, error) {
	candidates, err := s.eligibility.FindEligibleDrivers(ctx, tripID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		set[c.Driver.ID] = true
	}
	return set, nil
}

// fanOut creates offers for the given drivers in one transaction.
func (s *OfferService) fanOut(ctx context.Context, tripID string, driverIDs []string) (int, error) {
	if s.lockStore != nil {
		locked, err := s.lockStore.AcquireTripDispatchLock(ctx, tripID, dispatchLockTTL)
		if err != nil {
			return 0, err
		}
		if !locked {
			return 0, ErrDispatchInProgress
		}
		defer func() {
			if err := s.lockStore.ReleaseTripDispatchLock(ctx, tripID); err != nil {
				log.Printf("[DISPATCH] failed to release lock for trip %s: %v", tripID, err)
			}
		}()
	}

	var (
		trip    *domain.Trip
		created []*domain.TripOffer
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		created = nil
		now := s.now()

		t, err := repos.Trips.GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		if !t.Status.IsUnassigned() {
			return ErrTripNotAssignable
		}
		trip = t

		offers, err := repos.Offers.ListByTrip(ctx, tripID)
		if err != nil {
			return err
		}

		excluded, err := exclusionSet(ctx, repos, tripID, offers)
		if err != nil {
			return err
		}

		attempts := make(map[string]int)
		live := make(map[string]bool)
		for _, offer := range offers {
			attempts[offer.DriverID]++
			if offer.Status != domain.OfferStatusOffered {
				continue
			}
			if offer.IsExpired(now) {
				// Frees the open-pair slot for a fresh offer.
				if err := closeOffer(ctx, repos, offer, domain.OfferStatusExpired, now); err != nil {
					return err
				}
				continue
			}
			live[offer.DriverID] = true
		}

		for _, driverID := range driverIDs {
			if excluded[driverID] || live[driverID] || attempts[driverID] >= s.maxAttempts {
				continue
			}

			offer := &domain.TripOffer{
				ID:          uuid.New().String(),
				TripID:      trip.ID,
				DriverID:    driverID,
				FranchiseID: trip.FranchiseID,
				Status:      domain.OfferStatusOffered,
				Attempt:     attempts[driverID] + 1,
				Round:       trip.DispatchRound,
				OfferedAt:   now,
				ExpiresAt:   now.Add(s.offerTTL),
			}
			if err := repos.Offers.Create(ctx, offer); err != nil {
				return err
			}
			if err := repos.Activity.Append(ctx, offerActivity(domain.ActivityOfferSent, offer, "Trip offered to driver", now)); err != nil {
				return err
			}

			live[driverID] = true
			created = append(created, offer)
		}
		return nil
	})
	if err != nil {
		return 0, storeErr(err)
	}

	metrics.OffersCreated.Add(float64(len(created)))
	for _, offer := range created {
		s.notifications.NotifyTripOffered(ctx, trip, offer)
	}

	log.Printf("[DISPATCH] trip=%s offered=%d requested=%d", tripID, len(created), len(driverIDs))
	return len(created), nil
}

// exclusionSet returns the drivers who already turned this trip down.
func exclusionSet(ctx context.Context, repos repository.Repos, tripID string, offers []*domain.TripOffer) (map[string]bool, error) {
	excluded := make(map[string]bool)
	for _, offer := range offers {
		if offer.Status == domain.OfferStatusRejected {
			excluded[offer.DriverID] = true
		}
	}

	entries, err := repos.Activity.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Action == domain.ActivityTripRejectedByDriver && entry.DriverID != "" {
			excluded[entry.DriverID] = true
		}
	}
	return excluded, nil
}

// AcceptTripOffer lets the offered driver take the trip. At most one offer
// per dispatch round wins; losers get their offer back in its resolved state.
func (s *OfferService) AcceptTripOffer(ctx context.Context, offerID, driverID string) (*domain.TripOffer, error) {
	if offerID == "" {
		return nil, ErrInvalidOfferID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	var (
		result   *domain.TripOffer
		trip     *domain.Trip
		resolved bool
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		resolved = false

		t, offer, err := lockTripAndOffer(ctx, repos, offerID, driverID)
		if err != nil {
			return err
		}
		result = offer

		if offer.Status.IsTerminal() {
			return nil
		}

		now := s.now()
		if offer.IsExpired(now) {
			resolved = true
			return closeOffer(ctx, repos, offer, domain.OfferStatusExpired, now)
		}

		// An offer from an earlier round must not bind a trip that has
		// since been assigned and handed back.
		if !t.Status.IsUnassigned() || offer.Round != t.DispatchRound {
			resolved = true
			return closeOffer(ctx, repos, offer, domain.OfferStatusCancelled, now)
		}

		if err := s.eligibility.checkDriver(ctx, repos, t, driverID); err != nil {
			return err
		}

		offer.Status = domain.OfferStatusAccepted
		offer.AcceptedAt = now
		if err := repos.Offers.UpdateStatus(ctx, offer, domain.OfferStatusOffered); err != nil {
			return storeErr(err)
		}
		if err := repos.Activity.Append(ctx, offerActivity(domain.ActivityOfferAccepted, offer, "Driver accepted the trip offer", now)); err != nil {
			return err
		}

		expected := t.Status
		if err := bindDriver(ctx, repos, t, driverID, driverID, now); err != nil {
			return err
		}
		t.UpdatedAt = now
		if err := repos.Trips.Update(ctx, t, expected); err != nil {
			return storeErr(err)
		}

		trip = t
		resolved = true
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	if resolved {
		metrics.OfferOutcomes.WithLabelValues(string(result.Status)).Inc()
	}
	if trip != nil {
		metrics.TripTransitions.WithLabelValues(string(trip.Status)).Inc()
		s.notifications.NotifyOfferAccepted(ctx, trip, result)
		s.notifications.NotifyTripAssigned(ctx, trip)
	}

	return result, nil
}

// RejectTripOffer declines an offer. The driver will not be offered this trip again.
func (s *OfferService) RejectTripOffer(ctx context.Context, offerID, driverID string) (*domain.TripOffer, error) {
	if offerID == "" {
		return nil, ErrInvalidOfferID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	var (
		result   *domain.TripOffer
		rejected bool
		resolved bool
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		rejected, resolved = false, false

		_, offer, err := lockTripAndOffer(ctx, repos, offerID, driverID)
		if err != nil {
			return err
		}
		result = offer

		if offer.Status.IsTerminal() {
			return nil
		}

		now := s.now()
		resolved = true
		if offer.IsExpired(now) {
			return closeOffer(ctx, repos, offer, domain.OfferStatusExpired, now)
		}

		offer.Status = domain.OfferStatusRejected
		offer.RejectedAt = now
		if err := repos.Offers.UpdateStatus(ctx, offer, domain.OfferStatusOffered); err != nil {
			return storeErr(err)
		}
		if err := repos.Activity.Append(ctx, offerActivity(domain.ActivityOfferRejected, offer, "Driver rejected the trip offer", now)); err != nil {
			return err
		}

		rejected = true
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	if resolved {
		metrics.OfferOutcomes.WithLabelValues(string(result.Status)).Inc()
	}
	if rejected {
		s.notifications.NotifyOfferRejected(ctx, result)
	}

	return result, nil
}

// lockTripAndOffer locks the offer's trip and then the offer. Every
// transaction that touches offers takes the trip row first, so sibling
// accepts queue on the trip instead of deadlocking on each other's offers.
func lockTripAndOffer(ctx context.Context, repos repository.Repos, offerID, driverID string) (*domain.Trip, *domain.TripOffer, error) {
	peek, err := repos.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	if peek.DriverID != driverID {
		return nil, nil, ErrNotOfferDriver
	}

	trip, err := repos.Trips.GetByIDForUpdate(ctx, peek.TripID)
	if err != nil {
		return nil, nil, err
	}
	offer, err := repos.Offers.GetByIDForUpdate(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	return trip, offer, nil
}

// ListPendingOffers returns the driver's live offers, newest first.
func (s *OfferService) ListPendingOffers(ctx context.Context, driverID string) ([]*domain.TripOffer, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return s.store.Repos().Offers.ListLiveByDriver(ctx, driverID, s.now())
}

// ExpireStaleOffers marks every OFFERED offer past its expiry as EXPIRED.
func (s *OfferService) ExpireStaleOffers(ctx context.Context) (int, error) {
	n, err := s.store.Repos().Offers.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.OfferOutcomes.WithLabelValues(string(domain.OfferStatusExpired)).Add(float64(n))
	}
	return n, nil
}

// RunExpirySweeper calls ExpireStaleOffers every interval until ctx is done.
func (s *OfferService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireStaleOffers(ctx)
			if err != nil {
				log.Printf("[SWEEPER] offer expiry sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[SWEEPER] expired %d stale offers", n)
			}
		}
	}
}

// closeOffer moves an OFFERED offer to EXPIRED or CANCELLED.
func closeOffer(ctx context.Context, repos repository.Repos, offer *domain.TripOffer, status domain.OfferStatus, at time.Time) error {
	offer.Status = status
	offer.ClosedAt = at
	return storeErr(repos.Offers.UpdateStatus(ctx, offer, domain.OfferStatusOffered))
}
