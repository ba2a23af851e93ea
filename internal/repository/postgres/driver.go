package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
)

const driverColumns = `id, franchise_id, name, phone, account_status, car_categories, transmission, checked_in, rating, completion_rate, complaint_count, daily_earning_limit`

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return driver, nil
}

// GetByIDForUpdate retrieves a driver and locks the row.
func (r *DriverRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1 FOR UPDATE`

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return driver, nil
}

// ListByFranchise retrieves every driver of a franchise.
func (r *DriverRepository) ListByFranchise(ctx context.Context, franchiseID string) ([]*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE franchise_id = $1 ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, franchiseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}

	return drivers, rows.Err()
}

func scanDriver(row scanner) (*domain.Driver, error) {
	var (
		driver                      domain.Driver
		accountStatus, transmission string
		categories                  pq.StringArray
	)

	err := row.Scan(
		&driver.ID,
		&driver.FranchiseID,
		&driver.Name,
		&driver.Phone,
		&accountStatus,
		&categories,
		&transmission,
		&driver.CheckedIn,
		&driver.Rating,
		&driver.CompletionRate,
		&driver.ComplaintCount,
		&driver.DailyEarningLimit,
	)
	if err != nil {
		return nil, err
	}

	driver.AccountStatus = domain.DriverAccountStatus(accountStatus)
	driver.Transmission = domain.Transmission(transmission)
	driver.CarCategories = []string(categories)

	return &driver, nil
}

// FranchiseRepository is a PostgreSQL implementation of repository.FranchiseRepository.
type FranchiseRepository struct {
	q Querier
}

// NewFranchiseRepository creates a new PostgreSQL franchise repository.
func NewFranchiseRepository(db *sql.DB) *FranchiseRepository {
	return &FranchiseRepository{q: db}
}

// GetByID retrieves a franchise by ID.
func (r *FranchiseRepository) GetByID(ctx context.Context, id string) (*domain.Franchise, error) {
	query := `SELECT id, name, attendance_required FROM franchises WHERE id = $1`

	var franchise domain.Franchise
	err := r.q.QueryRowContext(ctx, query, id).Scan(&franchise.ID, &franchise.Name, &franchise.AttendanceRequired)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &franchise, nil
}

// Ensure interfaces are satisfied.
var (
	_ repository.DriverRepository    = (*DriverRepository)(nil)
	_ repository.FranchiseRepository = (*FranchiseRepository)(nil)
)
