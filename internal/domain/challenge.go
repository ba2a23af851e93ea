package domain

import "time"

// ChallengePurpose identifies which transition a challenge gates.
type ChallengePurpose string

const (
	ChallengePurposeStart ChallengePurpose = "START"
	ChallengePurposeEnd   ChallengePurpose = "END"
)

// VerificationChallenge is a single-use token and OTP pair gating a trip
// start or end. The OTP itself is never stored, only its hash.
type VerificationChallenge struct {
	ID          string
	TripID      string
	DriverID    string
	FranchiseID string
	Purpose     ChallengePurpose
	Token       string
	OTPHash     []byte
	Evidence    Evidence
	Attempts    int // Wrong OTP submissions so far
	ExpiresAt   time.Time
	ConsumedAt  time.Time
	CreatedAt   time.Time
}

// IsConsumed reports whether the challenge has already been used.
func (c *VerificationChallenge) IsConsumed() bool {
	return !c.ConsumedAt.IsZero()
}

// IsOpen reports whether the challenge can still be verified.
func (c *VerificationChallenge) IsOpen(now time.Time) bool {
	return !c.IsConsumed() && now.Before(c.ExpiresAt)
}
