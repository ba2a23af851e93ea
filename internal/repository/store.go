package repository

import "context"

// Repos groups the repositories that share one transactional boundary.
type Repos struct {
	Trips      TripRepository
	Offers     OfferRepository
	Challenges ChallengeRepository
	Activity   ActivityRepository
	Drivers    DriverRepository
	Franchises FranchiseRepository
}

// Store is the transactional trip store.
type Store interface {
	// Repos returns repositories bound to no transaction, for plain reads.
	Repos() Repos

	// WithinTx runs fn with repositories bound to a single transaction. The
	// transaction commits if fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}
