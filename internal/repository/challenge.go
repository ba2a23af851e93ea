package repository

import (
	"context"
	"time"

	"tripdispatch/internal/domain"
)

// ChallengeRepository defines the persistence operations for verification challenges.
type ChallengeRepository interface {
	// Create persists a new challenge.
	Create(ctx context.Context, challenge *domain.VerificationChallenge) error

	// GetByToken retrieves a challenge by its bearer token without locking it.
	GetByToken(ctx context.Context, token string) (*domain.VerificationChallenge, error)

	// GetByTokenForUpdate retrieves a challenge by its bearer token and locks it.
	GetByTokenForUpdate(ctx context.Context, token string) (*domain.VerificationChallenge, error)

	// GetOpenByTrip retrieves the newest unconsumed, unexpired challenge for
	// the trip and purpose.
	GetOpenByTrip(ctx context.Context, tripID string, purpose domain.ChallengePurpose, now time.Time) (*domain.VerificationChallenge, error)

	// Consume marks the challenge used. Returns ErrStatusConflict if it was
	// already consumed.
	Consume(ctx context.Context, id string, at time.Time) error

	// RecordFailedAttempt increments the challenge's wrong OTP counter and
	// returns the new count.
	RecordFailedAttempt(ctx context.Context, id string) (int, error)

	// InvalidateOpen consumes every open challenge of the trip and purpose.
	InvalidateOpen(ctx context.Context, tripID string, purpose domain.ChallengePurpose, at time.Time) error
}
