package tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/redis"
	"tripdispatch/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK STORE
// ──────────────────────────────────────────────

// MockStore is an in-memory repository.Store. Transactions are serialized
// and rolled back when the callback returns an error.
type MockStore struct {
	txMu sync.Mutex

	mu         sync.RWMutex
	trips      map[string]domain.Trip
	offers     map[string]domain.TripOffer
	challenges map[string]domain.VerificationChallenge
	activity   []domain.ActivityLogEntry
	drivers    map[string]domain.Driver
	franchises map[string]domain.Franchise

	// Counters for verification
	TxCount       int32
	RollbackCount int32

	// Row locks taken by the running transaction, keyed by trip.
	lockMu         sync.Mutex
	lockedTrips    map[string]bool
	lockViolations []string
}

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		trips:      make(map[string]domain.Trip),
		offers:     make(map[string]domain.TripOffer),
		challenges: make(map[string]domain.VerificationChallenge),
		drivers:    make(map[string]domain.Driver),
		franchises: make(map[string]domain.Franchise),
	}
}

// AddFranchise adds a franchise to the store.
func (m *MockStore) AddFranchise(franchise *domain.Franchise) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.franchises[franchise.ID] = *franchise
}

// AddDriver adds a driver to the store.
func (m *MockStore) AddDriver(driver *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = *driver
}

// AddTrip adds a trip to the store.
func (m *MockStore) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = *trip
}

// AddOffer adds an offer to the store.
func (m *MockStore) AddOffer(offer *domain.TripOffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[offer.ID] = *offer
}

// GetTrip returns a copy of the stored trip for test assertions.
func (m *MockStore) GetTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil
	}
	return &trip
}

// OffersForTrip returns the trip's offers in creation order.
func (m *MockStore) OffersForTrip(tripID string) []domain.TripOffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.TripOffer
	for _, o := range m.offers {
		if o.TripID == tripID {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].OfferedAt.Equal(result[j].OfferedAt) {
			return result[i].OfferedAt.Before(result[j].OfferedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// ChallengesForTrip returns the trip's challenges.
func (m *MockStore) ChallengesForTrip(tripID string) []domain.VerificationChallenge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.VerificationChallenge
	for _, c := range m.challenges {
		if c.TripID == tripID {
			result = append(result, c)
		}
	}
	return result
}

// ActivityActions returns the actions recorded for a trip, oldest first.
func (m *MockStore) ActivityActions(tripID string) []domain.ActivityAction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var actions []domain.ActivityAction
	for _, e := range m.activity {
		if e.TripID == tripID {
			actions = append(actions, e.Action)
		}
	}
	return actions
}

// CountActivity returns how many entries with the action exist for a trip.
func (m *MockStore) CountActivity(tripID string, action domain.ActivityAction) int {
	n := 0
	for _, a := range m.ActivityActions(tripID) {
		if a == action {
			n++
		}
	}
	return n
}

// Repos returns repositories that operate outside any transaction.
func (m *MockStore) Repos() repository.Repos {
	return m.repos(false)
}

func (m *MockStore) repos(tx bool) repository.Repos {
	return repository.Repos{
		Trips:      &mockTrips{m: m, tx: tx},
		Offers:     &mockOffers{m: m, tx: tx},
		Challenges: &mockChallenges{m: m, tx: tx},
		Activity:   &mockActivity{m},
		Drivers:    &mockDrivers{m},
		Franchises: &mockFranchises{m},
	}
}

// LockOrderViolations lists every offer or challenge row that a transaction
// locked before it held the owning trip row.
func (m *MockStore) LockOrderViolations() []string {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	return append([]string(nil), m.lockViolations...)
}

// noteLock records a row lock taken inside a transaction. Postgres would
// block here, so taking a child row before its trip is what lets two
// transactions wait on each other.
func (m *MockStore) noteLock(tx bool, kind, tripID string) {
	if !tx {
		return
	}
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if kind == "trip" {
		m.lockedTrips[tripID] = true
		return
	}
	if !m.lockedTrips[tripID] {
		m.lockViolations = append(m.lockViolations, fmt.Sprintf("%s of trip %s locked before the trip", kind, tripID))
	}
}

// WithinTx runs fn with exclusive access to the store, restoring the
// previous state if fn fails.
func (m *MockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	atomic.AddInt32(&m.TxCount, 1)

	m.lockMu.Lock()
	m.lockedTrips = make(map[string]bool)
	m.lockMu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, m.repos(true)); err != nil {
		m.restore(snap)
		atomic.AddInt32(&m.RollbackCount, 1)
		return err
	}
	return nil
}

type storeSnapshot struct {
	trips       map[string]domain.Trip
	offers      map[string]domain.TripOffer
	challenges  map[string]domain.VerificationChallenge
	activityLen int
}

func (m *MockStore) snapshot() storeSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := storeSnapshot{
		trips:       make(map[string]domain.Trip, len(m.trips)),
		offers:      make(map[string]domain.TripOffer, len(m.offers)),
		challenges:  make(map[string]domain.VerificationChallenge, len(m.challenges)),
		activityLen: len(m.activity),
	}
	for k, v := range m.trips {
		snap.trips[k] = v
	}
	for k, v := range m.offers {
		snap.offers[k] = v
	}
	for k, v := range m.challenges {
		snap.challenges[k] = v
	}
	return snap
}

func (m *MockStore) restore(snap storeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips = snap.trips
	m.offers = snap.offers
	m.challenges = snap.challenges
	m.activity = m.activity[:snap.activityLen]
}

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

type mockTrips struct {
	m  *MockStore
	tx bool
}

func (r *mockTrips) Create(ctx context.Context, trip *domain.Trip) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.trips[trip.ID]; ok {
		return errors.New("duplicate trip id")
	}
	r.m.trips[trip.ID] = *trip
	r.m.noteLock(r.tx, "trip", trip.ID)
	return nil
}

func (r *mockTrips) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	trip, ok := r.m.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &trip, nil
}

func (r *mockTrips) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	trip, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.m.noteLock(r.tx, "trip", id)
	return trip, nil
}

func (r *mockTrips) List(ctx context.Context, filter repository.TripFilter) ([]*domain.Trip, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var result []*domain.Trip
	for _, t := range r.m.trips {
		if filter.FranchiseID != "" && t.FranchiseID != filter.FranchiseID {
			continue
		}
		if filter.DriverID != "" && t.DriverID != filter.DriverID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		trip := t
		result = append(result, &trip)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *mockTrips) Update(ctx context.Context, trip *domain.Trip, expected domain.TripStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.trips[trip.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrStatusConflict
	}
	r.m.trips[trip.ID] = *trip
	return nil
}

func (r *mockTrips) GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Trip, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, t := range r.m.trips {
		if t.DriverID == driverID && t.Status.IsActive() {
			trip := t
			return &trip, nil
		}
	}
	return nil, nil
}

func (r *mockTrips) ListBusyDriverIDs(ctx context.Context, franchiseID string) (map[string]bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	busy := make(map[string]bool)
	for _, t := range r.m.trips {
		if t.FranchiseID == franchiseID && t.DriverID != "" && t.Status.IsActive() {
			busy[t.DriverID] = true
		}
	}
	return busy, nil
}

func (r *mockTrips) SumCompletedFaresSince(ctx context.Context, driverIDs []string, since time.Time) (map[string]float64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	wanted := make(map[string]bool, len(driverIDs))
	for _, id := range driverIDs {
		wanted[id] = true
	}
	totals := make(map[string]float64)
	for _, t := range r.m.trips {
		if !wanted[t.DriverID] || t.Status != domain.TripStatusCompleted || t.EndedAt.Before(since) {
			continue
		}
		if t.FinalAmount != nil {
			totals[t.DriverID] += *t.FinalAmount
		}
	}
	return totals, nil
}

func containsStatus(statuses []domain.TripStatus, s domain.TripStatus) bool {
	for _, status := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────
// MOCK OFFER REPOSITORY
// ──────────────────────────────────────────────

type mockOffers struct {
	m  *MockStore
	tx bool
}

func (r *mockOffers) Create(ctx context.Context, offer *domain.TripOffer) error {
	r.m.noteLock(r.tx, "offer", offer.TripID)
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.offers[offer.ID]; ok {
		return errors.New("duplicate offer id")
	}
	// Mirrors the partial unique index on open (trip, driver) pairs.
	for _, o := range r.m.offers {
		if o.TripID == offer.TripID && o.DriverID == offer.DriverID && o.Status == domain.OfferStatusOffered {
			return errors.New("open offer already exists for driver")
		}
	}
	r.m.offers[offer.ID] = *offer
	return nil
}

func (r *mockOffers) GetByID(ctx context.Context, id string) (*domain.TripOffer, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	offer, ok := r.m.offers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &offer, nil
}

func (r *mockOffers) GetByIDForUpdate(ctx context.Context, id string) (*domain.TripOffer, error) {
	offer, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.m.noteLock(r.tx, "offer", offer.TripID)
	return offer, nil
}

func (r *mockOffers) ListByTrip(ctx context.Context, tripID string) ([]*domain.TripOffer, error) {
	offers := r.m.OffersForTrip(tripID)
	result := make([]*domain.TripOffer, len(offers))
	for i := range offers {
		result[i] = &offers[i]
	}
	return result, nil
}

func (r *mockOffers) ListLiveByDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.TripOffer, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []*domain.TripOffer
	for _, o := range r.m.offers {
		if o.DriverID == driverID && o.IsLive(now) {
			offer := o
			result = append(result, &offer)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].OfferedAt.Equal(result[j].OfferedAt) {
			return result[i].OfferedAt.After(result[j].OfferedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *mockOffers) UpdateStatus(ctx context.Context, offer *domain.TripOffer, expected domain.OfferStatus) error {
	r.m.noteLock(r.tx, "offer", offer.TripID)
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.offers[offer.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrStatusConflict
	}
	// Mirrors the partial unique index on accepted (trip, round) pairs.
	if offer.Status == domain.OfferStatusAccepted {
		for id, o := range r.m.offers {
			if id != offer.ID && o.TripID == stored.TripID && o.Round == stored.Round && o.Status == domain.OfferStatusAccepted {
				return repository.ErrStatusConflict
			}
		}
	}
	stored.Status = offer.Status
	stored.AcceptedAt = offer.AcceptedAt
	stored.RejectedAt = offer.RejectedAt
	stored.ClosedAt = offer.ClosedAt
	r.m.offers[offer.ID] = stored
	return nil
}

func (r *mockOffers) CancelOpenByTrip(ctx context.Context, tripID, exceptID string, at time.Time) (int, error) {
	r.m.noteLock(r.tx, "offer", tripID)
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for id, o := range r.m.offers {
		if o.TripID != tripID || o.Status != domain.OfferStatusOffered || id == exceptID {
			continue
		}
		o.Status = domain.OfferStatusCancelled
		o.ClosedAt = at
		r.m.offers[id] = o
		n++
	}
	return n, nil
}

func (r *mockOffers) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for id, o := range r.m.offers {
		if o.Status != domain.OfferStatusOffered || !o.IsExpired(now) {
			continue
		}
		o.Status = domain.OfferStatusExpired
		o.ClosedAt = now
		r.m.offers[id] = o
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────
// MOCK CHALLENGE REPOSITORY
// ──────────────────────────────────────────────

type mockChallenges struct {
	m  *MockStore
	tx bool
}

func (r *mockChallenges) Create(ctx context.Context, c *domain.VerificationChallenge) error {
	r.m.noteLock(r.tx, "challenge", c.TripID)
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.challenges {
		if existing.Token == c.Token {
			return errors.New("duplicate challenge token")
		}
	}
	r.m.challenges[c.ID] = *c
	return nil
}

func (r *mockChallenges) GetByToken(ctx context.Context, token string) (*domain.VerificationChallenge, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, c := range r.m.challenges {
		if c.Token == token {
			challenge := c
			return &challenge, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *mockChallenges) GetByTokenForUpdate(ctx context.Context, token string) (*domain.VerificationChallenge, error) {
	c, err := r.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	r.m.noteLock(r.tx, "challenge", c.TripID)
	return c, nil
}

func (r *mockChallenges) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.challenges[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	r.m.noteLock(r.tx, "challenge", c.TripID)
	c.Attempts++
	r.m.challenges[id] = c
	return c.Attempts, nil
}

func (r *mockChallenges) GetOpenByTrip(ctx context.Context, tripID string, purpose domain.ChallengePurpose, now time.Time) (*domain.VerificationChallenge, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var newest *domain.VerificationChallenge
	for _, c := range r.m.challenges {
		if c.TripID != tripID || c.Purpose != purpose || !c.IsOpen(now) {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			challenge := c
			newest = &challenge
		}
	}
	if newest == nil {
		return nil, repository.ErrNotFound
	}
	return newest, nil
}

func (r *mockChallenges) Consume(ctx context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.challenges[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.m.noteLock(r.tx, "challenge", c.TripID)
	if c.IsConsumed() {
		return repository.ErrStatusConflict
	}
	c.ConsumedAt = at
	r.m.challenges[id] = c
	return nil
}

func (r *mockChallenges) InvalidateOpen(ctx context.Context, tripID string, purpose domain.ChallengePurpose, at time.Time) error {
	r.m.noteLock(r.tx, "challenge", tripID)
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, c := range r.m.challenges {
		if c.TripID == tripID && c.Purpose == purpose && !c.IsConsumed() {
			c.ConsumedAt = at
			r.m.challenges[id] = c
		}
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK ACTIVITY REPOSITORY
// ──────────────────────────────────────────────

type mockActivity struct{ m *MockStore }

func (r *mockActivity) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	// Round-trip the metadata the way the JSONB column would.
	if entry.Metadata != nil {
		if _, err := json.Marshal(entry.Metadata); err != nil {
			return err
		}
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.activity = append(r.m.activity, *entry)
	return nil
}

func (r *mockActivity) ListByDriver(ctx context.Context, driverID string, actions []domain.ActivityAction, limit int) ([]*domain.ActivityLogEntry, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	wanted := make(map[domain.ActivityAction]bool, len(actions))
	for _, a := range actions {
		wanted[a] = true
	}
	var result []*domain.ActivityLogEntry
	for i := len(r.m.activity) - 1; i >= 0; i-- {
		e := r.m.activity[i]
		if e.DriverID == driverID && wanted[e.Action] {
			entry := e
			result = append(result, &entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *mockActivity) ListByTrip(ctx context.Context, tripID string) ([]*domain.ActivityLogEntry, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []*domain.ActivityLogEntry
	for _, e := range r.m.activity {
		if e.TripID == tripID {
			entry := e
			result = append(result, &entry)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK DRIVER AND FRANCHISE REPOSITORIES
// ──────────────────────────────────────────────

type mockDrivers struct{ m *MockStore }

func (r *mockDrivers) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	driver, ok := r.m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &driver, nil
}

func (r *mockDrivers) GetByIDForUpdate(ctx context.Context, id string) (*domain.Driver, error) {
	return r.GetByID(ctx, id)
}

func (r *mockDrivers) ListByFranchise(ctx context.Context, franchiseID string) ([]*domain.Driver, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []*domain.Driver
	for _, d := range r.m.drivers {
		if d.FranchiseID == franchiseID {
			driver := d
			result = append(result, &driver)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type mockFranchises struct{ m *MockStore }

func (r *mockFranchises) GetByID(ctx context.Context, id string) (*domain.Franchise, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	franchise, ok := r.m.franchises[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &franchise, nil
}

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is a mock implementation of LocationStore.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations map[string]redis.DriverLocation

	// Counters
	UpdateLocationCallCount int32

	// Error injection
	UpdateLocationError error
	GetLocationsError   error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		locations: make(map[string]redis.DriverLocation),
	}
}

// SetLocation places a driver at a point.
func (m *MockLocationStore) SetLocation(driverID string, lat, lng float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[driverID] = redis.DriverLocation{DriverID: driverID, Lat: lat, Lng: lng}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.SetLocation(driverID, lat, lng)
	return nil
}

func (m *MockLocationStore) GetLocations(ctx context.Context, driverIDs []string) (map[string]redis.DriverLocation, error) {
	if m.GetLocationsError != nil {
		return nil, m.GetLocationsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]redis.DriverLocation)
	for _, id := range driverIDs {
		if loc, ok := m.locations[id]; ok {
			result[id] = loc
		}
	}
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, driverID)
	return nil
}

// Location returns a driver's stored location.
func (m *MockLocationStore) Location(driverID string) (redis.DriverLocation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locations[driverID]
	return loc, ok
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]bool),
	}
}

// Hold marks a trip's dispatch lock as taken by someone else.
func (m *MockLockStore) Hold(tripID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[tripID] = true
}

func (m *MockLockStore) AcquireTripDispatchLock(ctx context.Context, tripID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[tripID] {
		return false, nil
	}
	m.locks[tripID] = true
	return true, nil
}

func (m *MockLockStore) ReleaseTripDispatchLock(ctx context.Context, tripID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, tripID)
	return nil
}

// IsLocked reports whether the trip's dispatch lock is held.
func (m *MockLockStore) IsLocked(tripID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[tripID]
}

// ──────────────────────────────────────────────
// MOCK NOTIFICATION SINK
// ──────────────────────────────────────────────

// PublishedMessage is one payload handed to MockSink.
type PublishedMessage struct {
	Topic       string
	Type        string
	RecipientID string
	Data        map[string]any
}

// MockSink records every published notification.
type MockSink struct {
	mu       sync.Mutex
	messages []PublishedMessage

	// Error injection
	PublishError error
}

// NewMockSink creates a new mock sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Publish(ctx context.Context, topic string, payload []byte) error {
	var msg struct {
		Type        string         `json:"type"`
		RecipientID string         `json:"recipient_id"`
		Data        map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}

	m.mu.Lock()
	m.messages = append(m.messages, PublishedMessage{
		Topic:       topic,
		Type:        msg.Type,
		RecipientID: msg.RecipientID,
		Data:        msg.Data,
	})
	m.mu.Unlock()

	return m.PublishError
}

// Messages returns the published messages.
func (m *MockSink) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]PublishedMessage, len(m.messages))
	copy(result, m.messages)
	return result
}

// CountType returns how many messages of the given type were published.
func (m *MockSink) CountType(notificationType string) int {
	n := 0
	for _, msg := range m.Messages() {
		if msg.Type == notificationType {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// MOCK OTP SENDER
// ──────────────────────────────────────────────

// MockOTPSender captures the codes that would be sent to customers.
type MockOTPSender struct {
	mu    sync.Mutex
	codes map[string][]string

	// Error injection
	SendError error
}

// NewMockOTPSender creates a new mock OTP sender.
func NewMockOTPSender() *MockOTPSender {
	return &MockOTPSender{
		codes: make(map[string][]string),
	}
}

func (m *MockOTPSender) SendOTP(ctx context.Context, phone, code string) error {
	if m.SendError != nil {
		return m.SendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[phone] = append(m.codes[phone], code)
	return nil
}

// LastCode returns the most recent code sent to phone.
func (m *MockOTPSender) LastCode(phone string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.codes[phone]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

// SentCount returns how many codes were sent to phone.
func (m *MockOTPSender) SentCount(phone string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes[phone])
}
