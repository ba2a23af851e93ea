package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tripdispatch/internal/config"
	"tripdispatch/internal/domain"
	"tripdispatch/internal/service"
)

const (
	testFranchiseID = "franchise-1"
	testCategory    = "SEDAN"
	testPhone       = "+919800000001"

	pickupLat = 12.9716
	pickupLng = 77.5946
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// testClock is a manually advanced time source shared by all services.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store     *MockStore
	locations *MockLocationStore
	locks     *MockLockStore
	sink      *MockSink
	otp       *MockOTPSender
	clock     *testClock

	notifications *service.NotificationService
	eligibility   *service.EligibilityService
	offers        *service.OfferService
	trips         *service.TripService
	verification  *service.VerificationService
	alerts        *service.AlertService
	drivers       *service.DriverService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:     NewMockStore(),
		locations: NewMockLocationStore(),
		locks:     NewMockLockStore(),
		sink:      NewMockSink(),
		otp:       NewMockOTPSender(),
		clock:     &testClock{now: baseTime},
	}

	cfg := config.DispatchConfig{
		OfferTTL:         5 * time.Minute,
		MaxOfferAttempts: 3,
		ChallengeTTL:     10 * time.Minute,
		OTPLength:        4,
		OTPHashCost:      bcrypt.MinCost,
	}

	h.notifications = service.NewNotificationService(h.sink, time.Second)
	h.eligibility = service.NewEligibilityService(h.store, h.locations)
	h.offers = service.NewOfferService(h.store, h.eligibility, h.locks, h.notifications, cfg)
	h.trips = service.NewTripService(h.store, h.eligibility, h.offers, nil, h.locations, h.notifications)
	h.verification = service.NewVerificationService(h.store, h.trips, h.otp, h.notifications, cfg)
	h.alerts = service.NewAlertService(h.store)
	h.drivers = service.NewDriverService(h.store, h.locations)

	h.eligibility.SetClock(h.clock.Now)
	h.offers.SetClock(h.clock.Now)
	h.trips.SetClock(h.clock.Now)
	h.verification.SetClock(h.clock.Now)
	h.alerts.SetClock(h.clock.Now)

	h.store.AddFranchise(&domain.Franchise{
		ID:                 testFranchiseID,
		Name:               "Central",
		AttendanceRequired: true,
	})

	t.Cleanup(h.notifications.Wait)
	return h
}

// addDriver stores an eligible driver, customised by the given options.
func (h *harness) addDriver(id string, opts ...func(*domain.Driver)) *domain.Driver {
	driver := &domain.Driver{
		ID:             id,
		FranchiseID:    testFranchiseID,
		Name:           "Driver " + id,
		Phone:          "+91" + id,
		AccountStatus:  domain.DriverAccountActive,
		CarCategories:  []string{testCategory},
		Transmission:   domain.TransmissionBoth,
		CheckedIn:      true,
		Rating:         4.5,
		CompletionRate: 0.9,
	}
	for _, opt := range opts {
		opt(driver)
	}
	h.store.AddDriver(driver)
	return driver
}

// seedTrip stores a REQUESTED trip without dispatching it.
func (h *harness) seedTrip(id string, opts ...func(*domain.Trip)) *domain.Trip {
	trip := &domain.Trip{
		ID:            id,
		FranchiseID:   testFranchiseID,
		CustomerName:  "Asha",
		CustomerPhone: testPhone,
		Pickup:        domain.Location{Address: "MG Road", Lat: pickupLat, Lng: pickupLng},
		Drop:          domain.Location{Address: "Indiranagar", Lat: 12.9784, Lng: 77.6408},
		TripTypeID:    "LOCAL",
		CarCategory:   testCategory,
		ScheduledAt:   baseTime.Add(time.Hour),
		Status:        domain.TripStatusRequested,
		PaymentStatus: domain.PaymentStatusPending,
		BaseAmount:    300,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
	for _, opt := range opts {
		opt(trip)
	}
	h.store.AddTrip(trip)
	return trip
}

// assignedTo returns a trip option binding the trip to a driver.
func assignedTo(driverID string) func(*domain.Trip) {
	return func(trip *domain.Trip) {
		trip.Status = domain.TripStatusAssigned
		trip.DriverID = driverID
	}
}

// inProgress returns a trip option for a trip started at startedAt with the given odometer.
func inProgress(driverID string, odometer float64, startedAt time.Time) func(*domain.Trip) {
	return func(trip *domain.Trip) {
		trip.Status = domain.TripStatusInProgress
		trip.DriverID = driverID
		trip.StartOdometer = &odometer
		trip.StartedAt = startedAt
	}
}

// offerFor returns the offer made to driverID on tripID.
func (h *harness) offerFor(t *testing.T, tripID, driverID string) domain.TripOffer {
	t.Helper()
	var found *domain.TripOffer
	for _, o := range h.store.OffersForTrip(tripID) {
		if o.DriverID == driverID {
			offer := o
			found = &offer
		}
	}
	if found == nil {
		t.Fatalf("no offer for driver %s on trip %s", driverID, tripID)
	}
	return *found
}

// startTrip runs the start handshake for an assigned trip.
func (h *harness) startTrip(t *testing.T, tripID, driverID string, odometer float64) *domain.Trip {
	t.Helper()
	ctx := context.Background()

	res, err := h.verification.InitiateStart(ctx, service.InitiateStartRequest{
		TripID:        tripID,
		ActorDriverID: driverID,
		Odometer:      odometer,
		OdometerPic:   "s3://evidence/odo-start.jpg",
		CarFrontPic:   "s3://evidence/front.jpg",
		CarBackPic:    "s3://evidence/back.jpg",
		DriverSelfie:  "s3://evidence/selfie.jpg",
	})
	if err != nil {
		t.Fatalf("initiate start: %v", err)
	}

	trip, err := h.verification.VerifyAndStart(ctx, tripID, res.Token, h.otp.LastCode(testPhone))
	if err != nil {
		t.Fatalf("verify start: %v", err)
	}
	return trip
}

// initiateEnd runs the first half of the end handshake.
func (h *harness) initiateEnd(t *testing.T, tripID, driverID string, odometer float64) *service.InitiateResult {
	t.Helper()
	res, err := h.verification.InitiateEnd(context.Background(), service.InitiateEndRequest{
		TripID:        tripID,
		ActorDriverID: driverID,
		Odometer:      odometer,
		OdometerPic:   "s3://evidence/odo-end.jpg",
		EndPic:        "s3://evidence/end.jpg",
	})
	if err != nil {
		t.Fatalf("initiate end: %v", err)
	}
	return res
}

// wrongCode returns a well-formed OTP different from code.
func wrongCode(code string) string {
	if code == "0000" {
		return "1111"
	}
	return "0000"
}

func floatEquals(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
