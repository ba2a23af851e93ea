package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/metrics"
	"tripdispatch/internal/redis"
	"tripdispatch/internal/repository"
)

// Dispatcher fans a trip out to eligible drivers.
// This interface allows for testing with mock implementations.
type Dispatcher interface {
	RequestTripToAllEligibleDrivers(ctx context.Context, tripID string) (int, error)
}

// Ensure OfferService implements Dispatcher.
var _ Dispatcher = (*OfferService)(nil)

// TripService handles trip lifecycle operations.
type TripService struct {
	store               repository.Store
	eligibility         *EligibilityService
	dispatcher          Dispatcher
	rateCard            RateCard
	locationStore       redis.LocationStoreInterface
	notificationService *NotificationService
	now                 func() time.Time
}

// NewTripService creates a new TripService. dispatcher and locationStore may be nil.
func NewTripService(
	store repository.Store,
	eligibility *EligibilityService,
	dispatcher Dispatcher,
	rateCard RateCard,
	locationStore redis.LocationStoreInterface,
	notificationService *NotificationService,
) *TripService {
	if rateCard == nil {
		rateCard = NewTariffRateCard(DefaultTariff, nil)
	}
	return &TripService{
		store:               store,
		eligibility:         eligibility,
		dispatcher:          dispatcher,
		rateCard:            rateCard,
		locationStore:       locationStore,
		notificationService: notificationService,
		now:                 time.Now,
	}
}

// SetClock replaces the time source.
func (s *TripService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateTripRequest contains the parameters for creating a trip.
type CreateTripRequest struct {
	FranchiseID   string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Pickup        domain.Location
	Drop          domain.Location
	TripTypeID    string
	CarCategory   string
	Transmission  domain.Transmission // Optional: empty means any
	ScheduledAt   time.Time           // Optional: zero means now
	ActorID       string
}

// CreateTrip books a trip and offers it to the eligible drivers.
func (s *TripService) CreateTrip(ctx context.Context, req CreateTripRequest) (*domain.Trip, error) {
	if req.FranchiseID == "" {
		return nil, ErrInvalidFranchiseID
	}
	if strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.CustomerPhone) == "" {
		return nil, ErrInvalidCustomer
	}
	if !validCoordinates(req.Pickup.Lat, req.Pickup.Lng) {
		return nil, ErrInvalidPickup
	}
	if !validCoordinates(req.Drop.Lat, req.Drop.Lng) {
		return nil, ErrInvalidDrop
	}
	if req.TripTypeID == "" || req.CarCategory == "" {
		return nil, ErrInvalidTripType
	}
	switch req.Transmission {
	case domain.TransmissionAny, domain.TransmissionManual, domain.TransmissionAutomatic, domain.TransmissionBoth:
	default:
		return nil, ErrInvalidTripType
	}

	distance := haversineKm(req.Pickup.Lat, req.Pickup.Lng, req.Drop.Lat, req.Drop.Lng)
	quote, err := s.rateCard.Quote(ctx, QuoteRequest{
		TripTypeID:  req.TripTypeID,
		CarCategory: req.CarCategory,
		DistanceKm:  &distance,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	trip := &domain.Trip{
		ID:                  uuid.New().String(),
		FranchiseID:         req.FranchiseID,
		CustomerName:        strings.TrimSpace(req.CustomerName),
		CustomerPhone:       strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:       strings.TrimSpace(req.CustomerEmail),
		Pickup:              req.Pickup,
		Drop:                req.Drop,
		TripTypeID:          req.TripTypeID,
		CarCategory:         req.CarCategory,
		Transmission:        req.Transmission,
		ScheduledAt:         scheduledAt,
		Status:              domain.TripStatusRequested,
		PaymentStatus:       domain.PaymentStatusPending,
		BaseAmount:          quote.BaseAmount,
		ExtraAmount:         quote.ExtraAmount,
		EstimatedDistanceKm: roundMoney(distance),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		if _, err := repos.Franchises.GetByID(ctx, req.FranchiseID); err != nil {
			return err
		}
		if err := repos.Trips.Create(ctx, trip); err != nil {
			return err
		}
		return repos.Activity.Append(ctx, tripActivity(
			domain.ActivityTripCreated, trip, "",
			"Trip created",
			map[string]any{"actor_id": req.ActorID},
			now,
		))
	})
	if err != nil {
		return nil, storeErr(err)
	}

	metrics.TripTransitions.WithLabelValues(string(trip.Status)).Inc()
	s.autoDispatch(ctx, trip.ID)

	return trip, nil
}

// autoDispatch offers a trip to all eligible drivers. Failures are logged only.
func (s *TripService) autoDispatch(ctx context.Context, tripID string) {
	if s.dispatcher == nil {
		return
	}
	if _, err := s.dispatcher.RequestTripToAllEligibleDrivers(ctx, tripID); err != nil {
		log.Printf("[DISPATCH] auto-dispatch failed for trip %s: %v", tripID, err)
	}
}

// GetTrip retrieves a trip by ID.
func (s *TripService) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	return s.store.Repos().Trips.GetByID(ctx, tripID)
}

// ListTrips returns trips matching the filter, newest first.
func (s *TripService) ListTrips(ctx context.Context, filter repository.TripFilter) ([]*domain.Trip, error) {
	return s.store.Repos().Trips.List(ctx, filter)
}

// AssignDriver assigns an eligible driver to an unassigned trip.
func (s *TripService) AssignDriver(ctx context.Context, tripID, driverID, actorID string) (*domain.Trip, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	trip, err := s.updateTrip(ctx, tripID, func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error {
		if !trip.Status.IsUnassigned() {
			return ErrTripNotAssignable
		}
		if err := s.eligibility.checkDriver(ctx, repos, trip, driverID); err != nil {
			return err
		}
		return bindDriver(ctx, repos, trip, driverID, actorID, now)
	})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripAssigned(ctx, trip)
	return trip, nil
}

// ReassignDriver hands an assigned trip to another eligible driver.
func (s *TripService) ReassignDriver(ctx context.Context, tripID, newDriverID, actorID string) (*domain.Trip, error) {
	if newDriverID == "" {
		return nil, ErrInvalidDriverID
	}

	var previousDriverID string
	trip, err := s.updateTrip(ctx, tripID, func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error {
		if trip.Status != domain.TripStatusAssigned && trip.Status != domain.TripStatusDriverOnTheWay {
			return ErrTripNotReassignable
		}
		if trip.DriverID == newDriverID {
			return ErrTripNotReassignable
		}
		if err := s.eligibility.checkDriver(ctx, repos, trip, newDriverID); err != nil {
			return err
		}

		previousDriverID = trip.DriverID
		trip.DriverID = newDriverID

		if err := repos.Activity.Append(ctx, tripActivity(
			domain.ActivityTripReassigned, trip, previousDriverID,
			"Trip reassigned to another driver",
			map[string]any{"actor_id": actorID, "new_driver_id": newDriverID},
			now,
		)); err != nil {
			return err
		}
		return repos.Activity.Append(ctx, tripActivity(
			domain.ActivityTripAssigned, trip, newDriverID,
			"Trip assigned to driver",
			map[string]any{"actor_id": actorID, "previous_driver_id": previousDriverID},
			now,
		))
	})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripUnassigned(ctx, trip, previousDriverID)
	s.notificationService.NotifyTripAssigned(ctx, trip)
	return trip, nil
}

// MarkDriverOnTheWay records that the assigned driver is heading to pickup.
func (s *TripService) MarkDriverOnTheWay(ctx context.Context, tripID, driverID string) (*domain.Trip, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	trip, err := s.updateTrip(ctx, tripID, func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error {
		if trip.Status != domain.TripStatusAssigned {
			return ErrTripNotStartable
		}
		if trip.DriverID != driverID {
			return ErrNotTripDriver
		}
		if err := transition(trip, domain.TripStatusDriverOnTheWay); err != nil {
			return err
		}
		return repos.Activity.Append(ctx, tripActivity(
			domain.ActivityDriverOnTheWay, trip, driverID,
			"Driver is on the way to pickup", nil, now,
		))
	})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyDriverOnTheWay(ctx, trip)
	return trip, nil
}

// RejectAssignedTrip lets the assigned driver drop a trip before it starts.
// The trip returns to the pool and is re-offered to other drivers.
func (s *TripService) RejectAssignedTrip(ctx context.Context, tripID, driverID, reason string) (*domain.Trip, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	trip, err := s.updateTrip(ctx, tripID, func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error {
		if trip.Status != domain.TripStatusAssigned && trip.Status != domain.TripStatusDriverOnTheWay {
			return ErrTripNotStartable
		}
		if trip.DriverID != driverID {
			return ErrNotTripDriver
		}
		if err := transition(trip, domain.TripStatusRejectedByDriver); err != nil {
			return err
		}
		trip.DriverID = ""
		trip.DispatchRound++
		trip.LiveLat, trip.LiveLng, trip.LiveLocationAt = nil, nil, time.Time{}

		return repos.Activity.Append(ctx, tripActivity(
			domain.ActivityTripRejectedByDriver, trip, driverID,
			"Driver rejected the assigned trip",
			map[string]any{"reason": reason},
			now,
		))
	})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripRejectedByDriver(ctx, trip, driverID, reason)
	s.autoDispatch(ctx, trip.ID)
	return trip, nil
}

// RescheduleTrip moves the pickup time of a trip that has not started.
func (s *TripService) RescheduleTrip(ctx context.Context, tripID string, scheduledAt time.Time, actorID string) (*domain.Trip, error) {
	if scheduledAt.IsZero() {
		return nil, ErrInvalidScheduleTime
	}

	trip, err := s.updateTrip(ctx, tripID, func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error {
		if !trip.Status.IsUnassigned() && trip.Status != domain.TripStatusAssigned && trip.Status != domain.TripStatusDriverOnTheWay {
			return ErrTripAlreadyStarted
		}
		previous := trip.ScheduledAt
		trip.ScheduledAt = scheduledAt

		return repos.Activity.Append(ctx, tripActivity(
			domain.ActivityTripRescheduled, trip, trip.DriverID,
			"Trip rescheduled",
			map[string]any{
				"actor_id":     actorID,
				"previous":     previous,
				"scheduled_at": scheduledAt,
			},
			now,
		))
	})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripRescheduled(ctx, trip)
	return trip, nil
}

// CancelTripRequest contains the parameters for cancelling a trip.
type CancelTripRequest struct {
	TripID      string
	CancelledBy domain.CancelledBy
	Reason      string
	ActorID     string
}

// CancelTrip cancels a trip that has not started.
func (s *TripService) CancelTrip(ctx context.Context, req CancelTripRequest) (*domain.Trip, error) {
	var target domain.TripStatus
	switch req.CancelledBy {
	case domain.CancelledByCustomer:
		target = domain.TripStatusCancelledByCustomer
	case domain.CancelledByOffice:
		target = domain.TripStatusCancelledByOffice
	default:
		return nil, ErrInvalidCancelParty
	}

	var previousDriverID string
	trip, err := s.updateTrip(ctx, req.TripID, func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error {
		if !domain.CanTransition(trip.Status, target) {
			return ErrCancelNotAllowed
		}
		previousDriverID = trip.DriverID

		trip.Status = target
		trip.DriverID = ""
		trip.CancelledBy = req.CancelledBy
		trip.CancelReason = req.Reason
		trip.CancelledAt = now

		if _, err := repos.Offers.CancelOpenByTrip(ctx, trip.ID, "", now); err != nil {
			return err
		}
		return repos.Activity.Append(ctx, tripActivity(
			domain.ActivityTripCancelled, trip, previousDriverID,
			"Trip cancelled",
			map[string]any{
				"actor_id":     req.ActorID,
				"cancelled_by": req.CancelledBy,
				"reason":       req.Reason,
			},
			now,
		))
	})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripCancelled(ctx, trip, previousDriverID)
	return trip, nil
}

// EndTripDirect completes an in-progress trip without customer verification.
// Payment status is left as it is.
func (s *TripService) EndTripDirect(ctx context.Context, tripID string, endOdometer float64, actorID string) (*domain.Trip, error) {
	if endOdometer < 0 {
		return nil, ErrInvalidOdometer
	}

	trip, err := s.updateTrip(ctx, tripID, func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error {
		if trip.Status != domain.TripStatusInProgress {
			return ErrTripNotInProgress
		}
		if trip.StartOdometer != nil && endOdometer < *trip.StartOdometer {
			return ErrOdometerBelowStart
		}
		evidence := domain.Evidence{Odometer: endOdometer, CapturedAt: now}
		return s.completeTrip(ctx, repos, trip, evidence, now, map[string]any{
			"actor_id": actorID,
			"direct":   true,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripEnded(ctx, trip)
	return trip, nil
}

// UpdateLiveLocation stores the driver's last position on an active trip.
func (s *TripService) UpdateLiveLocation(ctx context.Context, tripID, driverID string, lat, lng float64) (*domain.Trip, error) {
	if !validCoordinates(lat, lng) {
		return nil, ErrInvalidLocation
	}

	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	trip, err := s.updateTrip(ctx, tripID, func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error {
		if !trip.Status.IsActive() {
			return ErrTripNotActive
		}
		if trip.DriverID != driverID {
			return ErrNotTripDriver
		}
		trip.LiveLat = &lat
		trip.LiveLng = &lng
		trip.LiveLocationAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.locationStore != nil {
		if err := s.locationStore.UpdateLocation(ctx, trip.DriverID, lat, lng); err != nil {
			log.Printf("[LOCATION] failed to index driver %s: %v", trip.DriverID, err)
		}
	}
	return trip, nil
}

// updateTrip locks a trip, applies fn and writes it back conditioned on the
// status it was read with.
func (s *TripService) updateTrip(
	ctx context.Context,
	tripID string,
	fn func(ctx context.Context, repos repository.Repos, trip *domain.Trip, now time.Time) error,
) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	var (
		updated  *domain.Trip
		previous domain.TripStatus
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		trip, err := repos.Trips.GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}

		previous = trip.Status
		now := s.now()
		if err := fn(ctx, repos, trip, now); err != nil {
			return err
		}

		trip.UpdatedAt = now
		if err := repos.Trips.Update(ctx, trip, previous); err != nil {
			return storeErr(err)
		}
		updated = trip
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	if updated.Status != previous {
		metrics.TripTransitions.WithLabelValues(string(updated.Status)).Inc()
	}
	return updated, nil
}

// fare prices a trip from its start state and the given end evidence.
func (s *TripService) fare(ctx context.Context, trip *domain.Trip, end domain.Evidence, now time.Time) (Quote, float64, time.Duration, error) {
	endTime := end.CapturedAt
	if endTime.IsZero() {
		endTime = now
	}

	var distance float64
	if trip.StartOdometer != nil {
		distance = end.Odometer - *trip.StartOdometer
	}
	if distance < 0 {
		distance = 0
	}

	var duration time.Duration
	if !trip.StartedAt.IsZero() {
		duration = endTime.Sub(trip.StartedAt)
	}
	if duration < 0 {
		duration = 0
	}

	quote, err := s.rateCard.Quote(ctx, QuoteRequest{
		TripTypeID:  trip.TripTypeID,
		CarCategory: trip.CarCategory,
		DistanceKm:  &distance,
		Duration:    &duration,
	})
	if err != nil {
		return Quote{}, 0, 0, err
	}
	return quote, distance, duration, nil
}

// completeTrip prices and completes an in-progress trip. Collected payments
// that reconcile with the final fare mark the trip PAID.
func (s *TripService) completeTrip(ctx context.Context, repos repository.Repos, trip *domain.Trip, end domain.Evidence, now time.Time, metadata map[string]any) error {
	quote, distance, duration, err := s.fare(ctx, trip, end, now)
	if err != nil {
		return err
	}
	if err := transition(trip, domain.TripStatusCompleted); err != nil {
		return err
	}

	if end.CapturedAt.IsZero() {
		end.CapturedAt = now
	}
	final := quote.Total()
	odometer := end.Odometer

	trip.BaseAmount = quote.BaseAmount
	trip.ExtraAmount = quote.ExtraAmount
	trip.FinalAmount = &final
	trip.DistanceKm = roundMoney(distance)
	trip.DurationMinutes = roundMoney(duration.Minutes())
	trip.EndOdometer = &odometer
	trip.EndEvidence = &end
	trip.EndedAt = end.CapturedAt
	trip.LiveLat, trip.LiveLng, trip.LiveLocationAt = nil, nil, time.Time{}

	if trip.PaymentStatus == domain.PaymentStatusCollected && amountsReconcile(trip.CashAmount+trip.UPIAmount, final) {
		trip.PaymentStatus = domain.PaymentStatusPaid
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["final_amount"] = final
	metadata["distance_km"] = trip.DistanceKm

	return repos.Activity.Append(ctx, tripActivity(
		domain.ActivityTripEnded, trip, trip.DriverID,
		"Trip completed", metadata, now,
	))
}
