package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
)

const challengeColumns = `id, trip_id, driver_id, franchise_id, purpose, token, otp_hash, evidence, attempts, expires_at, consumed_at, created_at`

// ChallengeRepository is a PostgreSQL implementation of repository.ChallengeRepository.
type ChallengeRepository struct {
	q Querier
}

// NewChallengeRepository creates a new PostgreSQL challenge repository.
func NewChallengeRepository(db *sql.DB) *ChallengeRepository {
	return &ChallengeRepository{q: db}
}

// NewChallengeRepositoryWithTx creates a challenge repository using a transaction.
func NewChallengeRepositoryWithTx(tx *sql.Tx) *ChallengeRepository {
	return &ChallengeRepository{q: tx}
}

// Create persists a new challenge.
func (r *ChallengeRepository) Create(ctx context.Context, c *domain.VerificationChallenge) error {
	evidence, err := json.Marshal(c.Evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}

	query := `
		INSERT INTO verification_challenges (` + challengeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.q.ExecContext(ctx, query,
		c.ID,
		c.TripID,
		c.DriverID,
		c.FranchiseID,
		c.Purpose,
		c.Token,
		c.OTPHash,
		string(evidence),
		c.Attempts,
		c.ExpiresAt,
		nullTime(c.ConsumedAt),
		c.CreatedAt,
	)

	return err
}

// GetByToken retrieves a challenge by token without locking it.
func (r *ChallengeRepository) GetByToken(ctx context.Context, token string) (*domain.VerificationChallenge, error) {
	return r.getOne(ctx, `SELECT `+challengeColumns+` FROM verification_challenges WHERE token = $1`, token)
}

// GetByTokenForUpdate retrieves a challenge by token and locks it.
func (r *ChallengeRepository) GetByTokenForUpdate(ctx context.Context, token string) (*domain.VerificationChallenge, error) {
	return r.getOne(ctx, `SELECT `+challengeColumns+` FROM verification_challenges WHERE token = $1 FOR UPDATE`, token)
}

func (r *ChallengeRepository) getOne(ctx context.Context, query string, args ...any) (*domain.VerificationChallenge, error) {
	c, err := scanChallenge(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// GetOpenByTrip retrieves the newest open challenge for the trip and purpose.
func (r *ChallengeRepository) GetOpenByTrip(ctx context.Context, tripID string, purpose domain.ChallengePurpose, now time.Time) (*domain.VerificationChallenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM verification_challenges
		WHERE trip_id = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	c, err := scanChallenge(r.q.QueryRowContext(ctx, query, tripID, purpose, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// Consume marks the challenge as used.
func (r *ChallengeRepository) Consume(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE verification_challenges SET consumed_at = $1 WHERE id = $2 AND consumed_at IS NULL`

	result, err := r.q.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}

	return rowsAffectedOrConflict(ctx, r.q, result, "verification_challenges", id)
}

// RecordFailedAttempt increments the wrong OTP counter and returns its new value.
func (r *ChallengeRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	query := `UPDATE verification_challenges SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`

	var attempts int
	if err := r.q.QueryRowContext(ctx, query, id).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// InvalidateOpen consumes every open challenge of the trip and purpose.
func (r *ChallengeRepository) InvalidateOpen(ctx context.Context, tripID string, purpose domain.ChallengePurpose, at time.Time) error {
	query := `
		UPDATE verification_challenges
		SET consumed_at = $1
		WHERE trip_id = $2 AND purpose = $3 AND consumed_at IS NULL
	`

	_, err := r.q.ExecContext(ctx, query, at, tripID, purpose)
	return err
}

func scanChallenge(row scanner) (*domain.VerificationChallenge, error) {
	var (
		c          domain.VerificationChallenge
		purpose    string
		evidence   []byte
		consumedAt sql.NullTime
	)

	err := row.Scan(
		&c.ID,
		&c.TripID,
		&c.DriverID,
		&c.FranchiseID,
		&purpose,
		&c.Token,
		&c.OTPHash,
		&evidence,
		&c.Attempts,
		&c.ExpiresAt,
		&consumedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Purpose = domain.ChallengePurpose(purpose)
	c.ConsumedAt = timeOrZero(consumedAt)
	if err := json.Unmarshal(evidence, &c.Evidence); err != nil {
		return nil, fmt.Errorf("failed to decode evidence: %w", err)
	}

	return &c, nil
}

// Ensure ChallengeRepository implements repository.ChallengeRepository.
var _ repository.ChallengeRepository = (*ChallengeRepository)(nil)
