package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
)

const defaultTripListLimit = 100

const tripColumns = `
	id, franchise_id, customer_name, customer_phone, customer_email, pickup_address,
	pickup_lat, pickup_lng, drop_address, drop_lat, drop_lng, trip_type_id, car_category,
	transmission, scheduled_at, driver_id, status, payment_status, payment_method,
	cash_amount, upi_amount, base_amount, extra_amount, final_amount, estimated_distance_km,
	distance_km, duration_minutes, start_odometer, end_odometer, start_evidence,
	end_evidence, live_lat, live_lng, live_location_at, started_at, ended_at, cancelled_by,
	cancel_reason, cancelled_at, created_at, updated_at, dispatch_round`

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		$20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37,
		$38, $39, $40, $41, $42
		)
	`

	args, err := tripArgs(trip)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, query, args...)
	return err
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a trip and locks its row.
func (r *TripRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *TripRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Trip, error) {
	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

// List retrieves trips matching the filter, newest first.
func (r *TripRepository) List(ctx context.Context, filter repository.TripFilter) ([]*domain.Trip, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.FranchiseID != "" {
		args = append(args, filter.FranchiseID)
		conditions = append(conditions, fmt.Sprintf("franchise_id = $%d", len(args)))
	}
	if filter.DriverID != "" {
		args = append(args, filter.DriverID)
		conditions = append(conditions, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultTripListLimit
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*domain.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}

	return trips, rows.Err()
}

// Update writes the trip if its stored status still equals expected.
func (r *TripRepository) Update(ctx context.Context, trip *domain.Trip, expected domain.TripStatus) error {
	query := `
		UPDATE trips SET
		franchise_id = $2, customer_name = $3, customer_phone = $4, customer_email = $5,
		pickup_address = $6, pickup_lat = $7, pickup_lng = $8, drop_address = $9, drop_lat = $10,
		drop_lng = $11, trip_type_id = $12, car_category = $13, transmission = $14,
		scheduled_at = $15, driver_id = $16, status = $17, payment_status = $18,
		payment_method = $19, cash_amount = $20, upi_amount = $21, base_amount = $22,
		extra_amount = $23, final_amount = $24, estimated_distance_km = $25, distance_km = $26,
		duration_minutes = $27, start_odometer = $28, end_odometer = $29, start_evidence = $30,
		end_evidence = $31, live_lat = $32, live_lng = $33, live_location_at = $34,
		started_at = $35, ended_at = $36, cancelled_by = $37, cancel_reason = $38,
		cancelled_at = $39, created_at = $40, updated_at = $41, dispatch_round = $42
		WHERE id = $1 AND status = $43
	`

	args, err := tripArgs(trip)
	if err != nil {
		return err
	}
	args = append(args, expected)

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return rowsAffectedOrConflict(ctx, r.q, result, "trips", trip.ID)
}

// GetActiveByDriverID retrieves the active trip for a driver.
// Returns nil if no active trip exists.
func (r *TripRepository) GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE driver_id = $1 AND status = ANY($2)
		LIMIT 1
	`

	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, driverID, pq.Array(activeStatuses())))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return trip, nil
}

// ListBusyDriverIDs returns the drivers of a franchise that hold an active trip.
func (r *TripRepository) ListBusyDriverIDs(ctx context.Context, franchiseID string) (map[string]bool, error) {
	query := `
		SELECT DISTINCT driver_id
		FROM trips
		WHERE franchise_id = $1 AND driver_id IS NOT NULL AND status = ANY($2)
	`

	rows, err := r.q.QueryContext(ctx, query, franchiseID, pq.Array(activeStatuses()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	busy := make(map[string]bool)
	for rows.Next() {
		var driverID string
		if err := rows.Scan(&driverID); err != nil {
			return nil, err
		}
		busy[driverID] = true
	}

	return busy, rows.Err()
}

// SumCompletedFaresSince returns completed earnings per driver since the given instant.
func (r *TripRepository) SumCompletedFaresSince(ctx context.Context, driverIDs []string, since time.Time) (map[string]float64, error) {
	totals := make(map[string]float64, len(driverIDs))
	if len(driverIDs) == 0 {
		return totals, nil
	}

	query := `
		SELECT driver_id, COALESCE(SUM(final_amount), 0)
		FROM trips
		WHERE driver_id = ANY($1) AND status = $2 AND ended_at >= $3
		GROUP BY driver_id
	`

	rows, err := r.q.QueryContext(ctx, query, pq.Array(driverIDs), domain.TripStatusCompleted, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			driverID string
			total    float64
		)
		if err := rows.Scan(&driverID, &total); err != nil {
			return nil, err
		}
		totals[driverID] = total
	}

	return totals, rows.Err()
}

func activeStatuses() []string {
	statuses := make([]string, len(domain.ActiveTripStatuses))
	for i, s := range domain.ActiveTripStatuses {
		statuses[i] = string(s)
	}
	return statuses
}

func tripArgs(trip *domain.Trip) ([]any, error) {
	startEvidence, err := evidenceColumn(trip.StartEvidence)
	if err != nil {
		return nil, err
	}
	endEvidence, err := evidenceColumn(trip.EndEvidence)
	if err != nil {
		return nil, err
	}

	return []any{
		trip.ID,
		trip.FranchiseID,
		trip.CustomerName,
		trip.CustomerPhone,
		nullString(trip.CustomerEmail),
		trip.Pickup.Address,
		trip.Pickup.Lat,
		trip.Pickup.Lng,
		trip.Drop.Address,
		trip.Drop.Lat,
		trip.Drop.Lng,
		trip.TripTypeID,
		trip.CarCategory,
		string(trip.Transmission),
		nullTime(trip.ScheduledAt),
		nullString(trip.DriverID),
		string(trip.Status),
		string(trip.PaymentStatus),
		nullString(string(trip.PaymentMethod)),
		trip.CashAmount,
		trip.UPIAmount,
		trip.BaseAmount,
		trip.ExtraAmount,
		nullFloat(trip.FinalAmount),
		trip.EstimatedDistanceKm,
		trip.DistanceKm,
		trip.DurationMinutes,
		nullFloat(trip.StartOdometer),
		nullFloat(trip.EndOdometer),
		startEvidence,
		endEvidence,
		nullFloat(trip.LiveLat),
		nullFloat(trip.LiveLng),
		nullTime(trip.LiveLocationAt),
		nullTime(trip.StartedAt),
		nullTime(trip.EndedAt),
		nullString(string(trip.CancelledBy)),
		nullString(trip.CancelReason),
		nullTime(trip.CancelledAt),
		trip.CreatedAt,
		trip.UpdatedAt,
		trip.DispatchRound,
	}, nil
}

func scanTrip(row scanner) (*domain.Trip, error) {
	var (
		trip                                    domain.Trip
		customerEmail, driverID, paymentMethod  sql.NullString
		cancelledBy, cancelReason               sql.NullString
		transmission, status, paymentStatus     string
		scheduledAt, liveLocationAt             sql.NullTime
		startedAt, endedAt, cancelledAt         sql.NullTime
		finalAmount, startOdometer, endOdometer sql.NullFloat64
		liveLat, liveLng                        sql.NullFloat64
		startEvidence, endEvidence              []byte
	)

	err := row.Scan(
		&trip.ID,
		&trip.FranchiseID,
		&trip.CustomerName,
		&trip.CustomerPhone,
		&customerEmail,
		&trip.Pickup.Address,
		&trip.Pickup.Lat,
		&trip.Pickup.Lng,
		&trip.Drop.Address,
		&trip.Drop.Lat,
		&trip.Drop.Lng,
		&trip.TripTypeID,
		&trip.CarCategory,
		&transmission,
		&scheduledAt,
		&driverID,
		&status,
		&paymentStatus,
		&paymentMethod,
		&trip.CashAmount,
		&trip.UPIAmount,
		&trip.BaseAmount,
		&trip.ExtraAmount,
		&finalAmount,
		&trip.EstimatedDistanceKm,
		&trip.DistanceKm,
		&trip.DurationMinutes,
		&startOdometer,
		&endOdometer,
		&startEvidence,
		&endEvidence,
		&liveLat,
		&liveLng,
		&liveLocationAt,
		&startedAt,
		&endedAt,
		&cancelledBy,
		&cancelReason,
		&cancelledAt,
		&trip.CreatedAt,
		&trip.UpdatedAt,
		&trip.DispatchRound,
	)
	if err != nil {
		return nil, err
	}

	trip.CustomerEmail = customerEmail.String
	trip.DriverID = driverID.String
	trip.Transmission = domain.Transmission(transmission)
	trip.Status = domain.TripStatus(status)
	trip.PaymentStatus = domain.PaymentStatus(paymentStatus)
	trip.PaymentMethod = domain.PaymentMethod(paymentMethod.String)
	trip.CancelledBy = domain.CancelledBy(cancelledBy.String)
	trip.CancelReason = cancelReason.String
	trip.ScheduledAt = timeOrZero(scheduledAt)
	trip.LiveLocationAt = timeOrZero(liveLocationAt)
	trip.StartedAt = timeOrZero(startedAt)
	trip.EndedAt = timeOrZero(endedAt)
	trip.CancelledAt = timeOrZero(cancelledAt)
	trip.FinalAmount = floatPtr(finalAmount)
	trip.StartOdometer = floatPtr(startOdometer)
	trip.EndOdometer = floatPtr(endOdometer)
	trip.LiveLat = floatPtr(liveLat)
	trip.LiveLng = floatPtr(liveLng)

	if trip.StartEvidence, err = decodeEvidence(startEvidence); err != nil {
		return nil, err
	}
	if trip.EndEvidence, err = decodeEvidence(endEvidence); err != nil {
		return nil, err
	}

	return &trip, nil
}

func evidenceColumn(e *domain.Evidence) (sql.NullString, error) {
	if e == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeEvidence(data []byte) (*domain.Evidence, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var e domain.Evidence
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode evidence: %w", err)
	}
	return &e, nil
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
