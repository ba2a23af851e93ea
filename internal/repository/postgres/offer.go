package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
)

const offerColumns = `id, trip_id, driver_id, franchise_id, status, attempt, round, offered_at, expires_at, accepted_at, rejected_at, closed_at`

// OfferRepository is a PostgreSQL implementation of repository.OfferRepository.
type OfferRepository struct {
	q Querier
}

// NewOfferRepository creates a new PostgreSQL offer repository.
func NewOfferRepository(db *sql.DB) *OfferRepository {
	return &OfferRepository{q: db}
}

// NewOfferRepositoryWithTx creates an offer repository using a transaction.
func NewOfferRepositoryWithTx(tx *sql.Tx) *OfferRepository {
	return &OfferRepository{q: tx}
}

// Create persists a new offer.
func (r *OfferRepository) Create(ctx context.Context, offer *domain.TripOffer) error {
	query := `
		INSERT INTO trip_offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.ExecContext(ctx, query,
		offer.ID,
		offer.TripID,
		offer.DriverID,
		offer.FranchiseID,
		offer.Status,
		offer.Attempt,
		offer.Round,
		offer.OfferedAt,
		offer.ExpiresAt,
		nullTime(offer.AcceptedAt),
		nullTime(offer.RejectedAt),
		nullTime(offer.ClosedAt),
	)

	return err
}

// GetByID retrieves an offer by ID.
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*domain.TripOffer, error) {
	return r.getOne(ctx, `SELECT `+offerColumns+` FROM trip_offers WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves an offer and locks its row.
func (r *OfferRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.TripOffer, error) {
	return r.getOne(ctx, `SELECT `+offerColumns+` FROM trip_offers WHERE id = $1 FOR UPDATE`, id)
}

func (r *OfferRepository) getOne(ctx context.Context, query string, args ...any) (*domain.TripOffer, error) {
	offer, err := scanOffer(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return offer, nil
}

// ListByTrip retrieves every offer of a trip, oldest first.
func (r *OfferRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.TripOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM trip_offers WHERE trip_id = $1 ORDER BY offered_at ASC, id ASC`
	return r.list(ctx, query, tripID)
}

// ListLiveByDriver retrieves a driver's OFFERED offers that expire after now.
func (r *OfferRepository) ListLiveByDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.TripOffer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM trip_offers
		WHERE driver_id = $1 AND status = $2 AND expires_at > $3
		ORDER BY offered_at DESC, id DESC
	`
	return r.list(ctx, query, driverID, domain.OfferStatusOffered, now)
}

func (r *OfferRepository) list(ctx context.Context, query string, args ...any) ([]*domain.TripOffer, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []*domain.TripOffer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}

	return offers, rows.Err()
}

// UpdateStatus writes the offer's status if it still equals expected.
func (r *OfferRepository) UpdateStatus(ctx context.Context, offer *domain.TripOffer, expected domain.OfferStatus) error {
	query := `
		UPDATE trip_offers
		SET status = $1, accepted_at = $2, rejected_at = $3, closed_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		offer.Status,
		nullTime(offer.AcceptedAt),
		nullTime(offer.RejectedAt),
		nullTime(offer.ClosedAt),
		offer.ID,
		expected,
	)
	if err != nil {
		return err
	}

	return rowsAffectedOrConflict(ctx, r.q, result, "trip_offers", offer.ID)
}

// CancelOpenByTrip cancels every OFFERED offer of the trip except exceptID.
// Rows are locked in id order.
func (r *OfferRepository) CancelOpenByTrip(ctx context.Context, tripID, exceptID string, at time.Time) (int, error) {
	query := `
		UPDATE trip_offers
		SET status = $1, closed_at = $2
		WHERE id IN (
			SELECT id FROM trip_offers
			WHERE trip_id = $3 AND status = $4 AND id <> $5
			ORDER BY id
			FOR UPDATE
		)
	`

	result, err := r.q.ExecContext(ctx, query, domain.OfferStatusCancelled, at, tripID, domain.OfferStatusOffered, exceptID)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	return int(n), err
}

// ExpireStale marks OFFERED offers past their expiry as EXPIRED. Offers
// locked by an in-flight transaction are skipped; they are resolved lazily
// or by the next sweep.
func (r *OfferRepository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE trip_offers
		SET status = $1, closed_at = $2
		WHERE id IN (
			SELECT id FROM trip_offers
			WHERE status = $3 AND expires_at <= $2
			ORDER BY id
			FOR UPDATE SKIP LOCKED
		)
	`

	result, err := r.q.ExecContext(ctx, query, domain.OfferStatusExpired, now, domain.OfferStatusOffered)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	return int(n), err
}

func scanOffer(row scanner) (*domain.TripOffer, error) {
	var (
		offer                            domain.TripOffer
		status                           string
		acceptedAt, rejectedAt, closedAt sql.NullTime
	)

	err := row.Scan(
		&offer.ID,
		&offer.TripID,
		&offer.DriverID,
		&offer.FranchiseID,
		&status,
		&offer.Attempt,
		&offer.Round,
		&offer.OfferedAt,
		&offer.ExpiresAt,
		&acceptedAt,
		&rejectedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	offer.Status = domain.OfferStatus(status)
	offer.AcceptedAt = timeOrZero(acceptedAt)
	offer.RejectedAt = timeOrZero(rejectedAt)
	offer.ClosedAt = timeOrZero(closedAt)

	return &offer, nil
}

// Ensure OfferRepository implements repository.OfferRepository.
var _ repository.OfferRepository = (*OfferRepository)(nil)
