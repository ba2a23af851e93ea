package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
	"tripdispatch/internal/service"
)

// ──────────────────────────────────────────────
// 5. TRIP CREATION
// ──────────────────────────────────────────────

func validCreateRequest() service.CreateTripRequest {
	return service.CreateTripRequest{
		FranchiseID:   testFranchiseID,
		CustomerName:  "Asha",
		CustomerPhone: testPhone,
		Pickup:        domain.Location{Address: "MG Road", Lat: pickupLat, Lng: pickupLng},
		Drop:          domain.Location{Address: "Indiranagar", Lat: 12.9784, Lng: 77.6408},
		TripTypeID:    "LOCAL",
		CarCategory:   testCategory,
		ActorID:       "office-1",
	}
}

func TestCreateTrip_DispatchesToEligibleDrivers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.addDriver("d-2")

	trip, err := h.trips.CreateTrip(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trip.Status != domain.TripStatusRequested {
		t.Errorf("expected REQUESTED, got %s", trip.Status)
	}
	if trip.DriverID != "" {
		t.Errorf("expected no driver, got %s", trip.DriverID)
	}
	if trip.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected PENDING payment, got %s", trip.PaymentStatus)
	}
	if !trip.ScheduledAt.Equal(baseTime) {
		t.Errorf("expected schedule to default to now, got %v", trip.ScheduledAt)
	}
	if trip.BaseAmount != 300 || trip.ExtraAmount != 0 {
		t.Errorf("expected estimate 300+0, got %.2f+%.2f", trip.BaseAmount, trip.ExtraAmount)
	}
	if trip.EstimatedDistanceKm <= 0 {
		t.Errorf("expected a positive estimated distance, got %f", trip.EstimatedDistanceKm)
	}

	if got := len(h.store.OffersForTrip(trip.ID)); got != 2 {
		t.Errorf("expected 2 offers from auto-dispatch, got %d", got)
	}
	actions := h.store.ActivityActions(trip.ID)
	if len(actions) == 0 || actions[0] != domain.ActivityTripCreated {
		t.Errorf("expected TRIP_CREATED first, got %v", actions)
	}
}

func TestCreateTrip_NoDriversStillCreates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	trip, err := h.trips.CreateTrip(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored := h.store.GetTrip(trip.ID); stored == nil {
		t.Fatal("expected trip to be stored")
	}
	if got := len(h.store.OffersForTrip(trip.ID)); got != 0 {
		t.Errorf("expected no offers, got %d", got)
	}
}

func TestCreateTrip_Validation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	tests := []struct {
		name   string
		mutate func(*service.CreateTripRequest)
	}{
		{"missing franchise", func(r *service.CreateTripRequest) { r.FranchiseID = "" }},
		{"missing customer name", func(r *service.CreateTripRequest) { r.CustomerName = "  " }},
		{"missing customer phone", func(r *service.CreateTripRequest) { r.CustomerPhone = "" }},
		{"pickup latitude out of range", func(r *service.CreateTripRequest) { r.Pickup.Lat = 91 }},
		{"drop longitude out of range", func(r *service.CreateTripRequest) { r.Drop.Lng = -181 }},
		{"missing car category", func(r *service.CreateTripRequest) { r.CarCategory = "" }},
		{"unknown transmission", func(r *service.CreateTripRequest) { r.Transmission = "CVT" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(&req)
			_, err := h.trips.CreateTrip(context.Background(), req)
			if !errors.Is(err, service.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateTrip_UnknownFranchise(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	req := validCreateRequest()
	req.FranchiseID = "franchise-missing"

	_, err := h.trips.CreateTrip(context.Background(), req)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 6. ASSIGNMENT
// ──────────────────────────────────────────────

func TestAssignDriver_CancelsOpenOffers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.addDriver("d-2")
	h.seedTrip("trip-1")
	ctx := context.Background()

	if _, err := h.offers.RequestTripToAllEligibleDrivers(ctx, "trip-1"); err != nil {
		t.Fatalf("fan-out: %v", err)
	}

	trip, err := h.trips.AssignDriver(ctx, "trip-1", "d-2", "office-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusAssigned || trip.DriverID != "d-2" {
		t.Fatalf("expected ASSIGNED to d-2, got %s/%s", trip.Status, trip.DriverID)
	}
	for _, offer := range h.store.OffersForTrip("trip-1") {
		if offer.Status != domain.OfferStatusCancelled {
			t.Errorf("offer for %s: expected CANCELLED, got %s", offer.DriverID, offer.Status)
		}
	}

	_, err = h.trips.AssignDriver(ctx, "trip-1", "d-1", "office-1")
	if !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for second assignment, got %v", err)
	}
}

func TestAssignDriver_IneligibleDriver(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-suv", func(d *domain.Driver) { d.CarCategories = []string{"SUV"} })
	h.seedTrip("trip-1")

	_, err := h.trips.AssignDriver(context.Background(), "trip-1", "d-suv", "office-1")
	if !errors.Is(err, service.ErrDriverIneligible) {
		t.Fatalf("expected ErrDriverIneligible, got %v", err)
	}
	if trip := h.store.GetTrip("trip-1"); trip.Status != domain.TripStatusRequested {
		t.Errorf("expected trip unchanged, got %s", trip.Status)
	}
}

func TestReassignDriver(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.addDriver("d-2")
	h.addDriver("d-banned", func(d *domain.Driver) { d.AccountStatus = domain.DriverAccountBanned })
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	if _, err := h.trips.ReassignDriver(ctx, "trip-1", "d-1", "office-1"); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("same driver: expected ErrInvalidState, got %v", err)
	}
	if _, err := h.trips.ReassignDriver(ctx, "trip-1", "d-banned", "office-1"); !errors.Is(err, service.ErrDriverIneligible) {
		t.Errorf("banned driver: expected ErrDriverIneligible, got %v", err)
	}

	trip, err := h.trips.ReassignDriver(ctx, "trip-1", "d-2", "office-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.DriverID != "d-2" || trip.Status != domain.TripStatusAssigned {
		t.Fatalf("expected ASSIGNED to d-2, got %s/%s", trip.Status, trip.DriverID)
	}
	if got := h.store.CountActivity("trip-1", domain.ActivityTripReassigned); got != 1 {
		t.Errorf("expected 1 TRIP_REASSIGNED entry, got %d", got)
	}

	h.notifications.Wait()
	var unassigned, assigned bool
	for _, msg := range h.sink.Messages() {
		if msg.Type == string(service.NotificationTripUnassigned) && msg.RecipientID == "d-1" {
			unassigned = true
		}
		if msg.Type == string(service.NotificationTripAssigned) && msg.RecipientID == "d-2" {
			assigned = true
		}
	}
	if !unassigned || !assigned {
		t.Errorf("expected both drivers to be notified, unassigned=%v assigned=%v", unassigned, assigned)
	}
}

func TestReassignDriver_UnassignedTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1")

	_, err := h.trips.ReassignDriver(context.Background(), "trip-1", "d-1", "office-1")
	if !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 7. DRIVER ACTIONS ON ASSIGNED TRIPS
// ──────────────────────────────────────────────

func TestMarkDriverOnTheWay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	h.seedTrip("trip-open")
	ctx := context.Background()

	if _, err := h.trips.MarkDriverOnTheWay(ctx, "trip-1", "d-2"); !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.trips.MarkDriverOnTheWay(ctx, "trip-open", "d-1"); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	trip, err := h.trips.MarkDriverOnTheWay(ctx, "trip-1", "d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusDriverOnTheWay {
		t.Errorf("expected DRIVER_ON_THE_WAY, got %s", trip.Status)
	}
}

func TestRejectAssignedTrip_RedispatchesWithoutRejectingDriver(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.addDriver("d-2")
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	if _, err := h.trips.MarkDriverOnTheWay(ctx, "trip-1", "d-1"); err != nil {
		t.Fatalf("on the way: %v", err)
	}

	trip, err := h.trips.RejectAssignedTrip(ctx, "trip-1", "d-1", "vehicle breakdown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusRejectedByDriver {
		t.Errorf("expected REJECTED_BY_DRIVER, got %s", trip.Status)
	}
	if trip.DriverID != "" {
		t.Errorf("expected driver cleared, got %s", trip.DriverID)
	}

	offers := h.store.OffersForTrip("trip-1")
	if len(offers) != 1 || offers[0].DriverID != "d-2" {
		t.Fatalf("expected a single re-offer to d-2, got %+v", offers)
	}

	// The trip can be taken again from REJECTED_BY_DRIVER.
	accepted, err := h.offers.AcceptTripOffer(ctx, offers[0].ID, "d-2")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.OfferStatusAccepted {
		t.Fatalf("expected ACCEPTED, got %s", accepted.Status)
	}
	if stored := h.store.GetTrip("trip-1"); stored.Status != domain.TripStatusAssigned || stored.DriverID != "d-2" {
		t.Errorf("expected ASSIGNED to d-2, got %s/%s", stored.Status, stored.DriverID)
	}

	h.notifications.Wait()
	if got := h.sink.CountType(string(service.NotificationTripRejected)); got != 1 {
		t.Errorf("expected 1 TRIP_REJECTED_BY_DRIVER notification, got %d", got)
	}
}

func TestRejectAssignedTrip_OneAcceptedOfferPerRound(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.addDriver("d-2")
	h.seedTrip("trip-1")
	ctx := context.Background()

	if _, err := h.offers.RequestTripToAllEligibleDrivers(ctx, "trip-1"); err != nil {
		t.Fatalf("fan-out: %v", err)
	}
	first := h.offerFor(t, "trip-1", "d-1")
	if _, err := h.offers.AcceptTripOffer(ctx, first.ID, "d-1"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := h.trips.RejectAssignedTrip(ctx, "trip-1", "d-1", "flat tyre"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	trip := h.store.GetTrip("trip-1")
	if trip.DispatchRound != 1 {
		t.Fatalf("expected dispatch round 1, got %d", trip.DispatchRound)
	}

	var reoffer *domain.TripOffer
	for _, o := range h.store.OffersForTrip("trip-1") {
		if o.DriverID == "d-2" && o.Status == domain.OfferStatusOffered {
			offer := o
			reoffer = &offer
		}
	}
	if reoffer == nil || reoffer.Round != 1 {
		t.Fatalf("expected a round 1 re-offer to d-2, got %+v", reoffer)
	}
	if _, err := h.offers.AcceptTripOffer(ctx, reoffer.ID, "d-2"); err != nil {
		t.Fatalf("second accept: %v", err)
	}

	accepted := make(map[int][]string)
	for _, o := range h.store.OffersForTrip("trip-1") {
		if o.Status == domain.OfferStatusAccepted {
			accepted[o.Round] = append(accepted[o.Round], o.DriverID)
		}
	}
	if len(accepted) != 2 || len(accepted[0]) != 1 || accepted[0][0] != "d-1" || len(accepted[1]) != 1 || accepted[1][0] != "d-2" {
		t.Errorf("expected one accepted offer per round (d-1 then d-2), got %v", accepted)
	}
	if stored := h.store.GetTrip("trip-1"); stored.DriverID != "d-2" {
		t.Errorf("expected trip assigned to d-2, got %s", stored.DriverID)
	}
}

func TestAcceptOffer_EarlierRoundOfferCancelled(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", func(trip *domain.Trip) {
		trip.Status = domain.TripStatusRejectedByDriver
		trip.DispatchRound = 1
	})
	h.store.AddOffer(&domain.TripOffer{
		ID:          "offer-round-0",
		TripID:      "trip-1",
		DriverID:    "d-1",
		FranchiseID: testFranchiseID,
		Status:      domain.OfferStatusOffered,
		Attempt:     1,
		Round:       0,
		OfferedAt:   baseTime,
		ExpiresAt:   baseTime.Add(5 * time.Minute),
	})

	result, err := h.offers.AcceptTripOffer(context.Background(), "offer-round-0", "d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.OfferStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", result.Status)
	}
	trip := h.store.GetTrip("trip-1")
	if trip.Status != domain.TripStatusRejectedByDriver || trip.DriverID != "" {
		t.Errorf("expected trip to stay unassigned, got %s/%s", trip.Status, trip.DriverID)
	}
}

func TestRejectAssignedTrip_WrongDriver(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))

	_, err := h.trips.RejectAssignedTrip(context.Background(), "trip-1", "d-2", "")
	if !errors.Is(err, service.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUpdateLiveLocation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	h.seedTrip("trip-open")
	ctx := context.Background()

	trip, err := h.trips.UpdateLiveLocation(ctx, "trip-1", "d-1", 12.98, 77.60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.LiveLat == nil || *trip.LiveLat != 12.98 || trip.LiveLng == nil || *trip.LiveLng != 77.60 {
		t.Errorf("expected live location to be stored, got %v/%v", trip.LiveLat, trip.LiveLng)
	}
	if !trip.LiveLocationAt.Equal(baseTime) {
		t.Errorf("expected LiveLocationAt to be now, got %v", trip.LiveLocationAt)
	}
	if loc, ok := h.locations.Location("d-1"); !ok || loc.Lat != 12.98 {
		t.Errorf("expected location mirrored to the GEO index, got %+v", loc)
	}

	if _, err := h.trips.UpdateLiveLocation(ctx, "trip-1", "d-2", 12.98, 77.60); !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.trips.UpdateLiveLocation(ctx, "trip-1", "", 12.98, 77.60); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation without a driver id, got %v", err)
	}
	if _, err := h.trips.UpdateLiveLocation(ctx, "trip-open", "d-1", 12.98, 77.60); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if stored := h.store.GetTrip("trip-open"); stored.LiveLat != nil {
		t.Errorf("expected no live location on an unassigned trip, got %v", *stored.LiveLat)
	}
	if _, err := h.trips.UpdateLiveLocation(ctx, "trip-1", "d-1", 100, 77.60); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 8. RESCHEDULE AND CANCEL
// ──────────────────────────────────────────────

func TestRescheduleTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	h.seedTrip("trip-started", inProgress("d-1", 95, baseTime))
	ctx := context.Background()

	newTime := baseTime.Add(3 * time.Hour)
	trip, err := h.trips.RescheduleTrip(ctx, "trip-1", newTime, "office-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trip.ScheduledAt.Equal(newTime) {
		t.Errorf("expected %v, got %v", newTime, trip.ScheduledAt)
	}
	if trip.Status != domain.TripStatusAssigned {
		t.Errorf("expected status unchanged, got %s", trip.Status)
	}

	if _, err := h.trips.RescheduleTrip(ctx, "trip-started", newTime, "office-1"); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if _, err := h.trips.RescheduleTrip(ctx, "trip-1", time.Time{}, "office-1"); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	h.notifications.Wait()
	if got := h.sink.CountType(string(service.NotificationTripRescheduled)); got != 1 {
		t.Errorf("expected 1 TRIP_RESCHEDULED notification, got %d", got)
	}
}

func TestCancelTrip_RequestedCancelsOffers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1")
	ctx := context.Background()

	if _, err := h.offers.RequestTripToAllEligibleDrivers(ctx, "trip-1"); err != nil {
		t.Fatalf("fan-out: %v", err)
	}

	trip, err := h.trips.CancelTrip(ctx, service.CancelTripRequest{
		TripID:      "trip-1",
		CancelledBy: domain.CancelledByCustomer,
		Reason:      "plans changed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusCancelledByCustomer {
		t.Errorf("expected CANCELLED_BY_CUSTOMER, got %s", trip.Status)
	}
	if trip.CancelReason != "plans changed" || !trip.CancelledAt.Equal(baseTime) {
		t.Errorf("expected cancel details recorded, got %q at %v", trip.CancelReason, trip.CancelledAt)
	}
	if offer := h.offerFor(t, "trip-1", "d-1"); offer.Status != domain.OfferStatusCancelled {
		t.Errorf("expected offer CANCELLED, got %s", offer.Status)
	}

	// Terminal: a second cancel is rejected.
	_, err = h.trips.CancelTrip(ctx, service.CancelTripRequest{TripID: "trip-1", CancelledBy: domain.CancelledByOffice})
	if !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestCancelTrip_AssignedClearsDriverAndNotifies(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))

	trip, err := h.trips.CancelTrip(context.Background(), service.CancelTripRequest{
		TripID:      "trip-1",
		CancelledBy: domain.CancelledByOffice,
		ActorID:     "office-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusCancelledByOffice || trip.DriverID != "" {
		t.Errorf("expected CANCELLED_BY_OFFICE without driver, got %s/%s", trip.Status, trip.DriverID)
	}

	h.notifications.Wait()
	found := false
	for _, msg := range h.sink.Messages() {
		if msg.Type == string(service.NotificationTripCancelled) && msg.RecipientID == "d-1" {
			found = true
		}
	}
	if !found {
		t.Error("expected the previously assigned driver to be notified")
	}
}

func TestCancelTrip_InProgressRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", inProgress("d-1", 95, baseTime))

	_, err := h.trips.CancelTrip(context.Background(), service.CancelTripRequest{
		TripID:      "trip-1",
		CancelledBy: domain.CancelledByOffice,
	})
	if !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if trip := h.store.GetTrip("trip-1"); trip.Status != domain.TripStatusInProgress || trip.DriverID != "d-1" {
		t.Errorf("expected trip untouched, got %s/%s", trip.Status, trip.DriverID)
	}
}

func TestCancelTrip_InvalidParty(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.seedTrip("trip-1")

	_, err := h.trips.CancelTrip(context.Background(), service.CancelTripRequest{TripID: "trip-1", CancelledBy: "DRIVER"})
	if !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 9. DIRECT END AND QUERIES
// ──────────────────────────────────────────────

func TestEndTripDirect_PricesFromOdometerAndDuration(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", inProgress("d-1", 95, baseTime.Add(-90*time.Minute)))
	ctx := context.Background()

	if _, err := h.trips.EndTripDirect(ctx, "trip-1", 94, "office-1"); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation for odometer below start, got %v", err)
	}

	trip, err := h.trips.EndTripDirect(ctx, "trip-1", 105.4, "office-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", trip.Status)
	}
	if trip.FinalAmount == nil || *trip.FinalAmount != 364.8 {
		t.Fatalf("expected final amount 364.8, got %v", trip.FinalAmount)
	}
	if trip.ExtraAmount != 64.8 {
		t.Errorf("expected extra amount 64.8, got %.2f", trip.ExtraAmount)
	}
	if trip.DistanceKm != 10.4 || trip.DurationMinutes != 90 {
		t.Errorf("expected 10.4km over 90min, got %.2fkm over %.2fmin", trip.DistanceKm, trip.DurationMinutes)
	}
	if trip.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected payment status untouched, got %s", trip.PaymentStatus)
	}

	if _, err := h.trips.EndTripDirect(ctx, "trip-1", 110, "office-1"); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on completed trip, got %v", err)
	}
}

func TestGetAndListTrips(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-open")
	h.seedTrip("trip-assigned", assignedTo("d-1"), func(trip *domain.Trip) { trip.CreatedAt = baseTime.Add(time.Minute) })
	ctx := context.Background()

	if _, err := h.trips.GetTrip(ctx, "trip-missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	trips, err := h.trips.ListTrips(ctx, repository.TripFilter{
		FranchiseID: testFranchiseID,
		Statuses:    []domain.TripStatus{domain.TripStatusAssigned},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trips) != 1 || trips[0].ID != "trip-assigned" {
		t.Errorf("expected only trip-assigned, got %d trips", len(trips))
	}

	trips, err = h.trips.ListTrips(ctx, repository.TripFilter{FranchiseID: testFranchiseID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trips) != 2 || trips[0].ID != "trip-assigned" {
		t.Errorf("expected newest first, got %d trips", len(trips))
	}
}
