package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
)

const activityColumns = `id, action, entity_type, entity_id, driver_id, trip_id, description, metadata, created_at`

// ActivityRepository is a PostgreSQL implementation of repository.ActivityRepository.
type ActivityRepository struct {
	q Querier
}

// NewActivityRepository creates a new PostgreSQL activity repository.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{q: db}
}

// NewActivityRepositoryWithTx creates an activity repository using a transaction.
func NewActivityRepositoryWithTx(tx *sql.Tx) *ActivityRepository {
	return &ActivityRepository{q: tx}
}

// Append records a new entry.
func (r *ActivityRepository) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode activity metadata: %w", err)
	}

	query := `
		INSERT INTO activity_log (` + activityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.q.ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		nullString(entry.DriverID),
		nullString(entry.TripID),
		entry.Description,
		string(data),
		entry.CreatedAt,
	)

	return err
}

// ListByDriver retrieves the newest entries of a driver for the given actions.
func (r *ActivityRepository) ListByDriver(ctx context.Context, driverID string, actions []domain.ActivityAction, limit int) ([]*domain.ActivityLogEntry, error) {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}

	query := `
		SELECT ` + activityColumns + `
		FROM activity_log
		WHERE driver_id = $1 AND action = ANY($2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	return r.list(ctx, query, driverID, pq.Array(names), limit)
}

// ListByTrip retrieves every entry of a trip, oldest first.
func (r *ActivityRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.ActivityLogEntry, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_log WHERE trip_id = $1 ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, tripID)
}

func (r *ActivityRepository) list(ctx context.Context, query string, args ...any) ([]*domain.ActivityLogEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ActivityLogEntry
	for rows.Next() {
		var (
			entry            domain.ActivityLogEntry
			action           string
			driverID, tripID sql.NullString
			metadata         []byte
		)

		if err := rows.Scan(
			&entry.ID,
			&action,
			&entry.EntityType,
			&entry.EntityID,
			&driverID,
			&tripID,
			&entry.Description,
			&metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}

		entry.Action = domain.ActivityAction(action)
		entry.DriverID = driverID.String
		entry.TripID = tripID.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode activity metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Ensure ActivityRepository implements repository.ActivityRepository.
var _ repository.ActivityRepository = (*ActivityRepository)(nil)
