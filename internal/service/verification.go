package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tripdispatch/internal/config"
	"tripdispatch/internal/domain"
	"tripdispatch/internal/metrics"
	"tripdispatch/internal/repository"
)

const (
	defaultChallengeTTL   = 10 * time.Minute
	defaultOTPLength      = 4
	defaultMaxOTPAttempts = 5
)

// VerificationService runs the customer OTP handshake that gates trip start
// and end, and the payment collection that precedes a verified end.
type VerificationService struct {
	store               repository.Store
	trips               *TripService
	otpSender           OTPSender
	notificationService *NotificationService
	challengeTTL        time.Duration
	otpLength           int
	hashCost            int
	maxOTPAttempts      int
	now                 func() time.Time
}

// NewVerificationService creates a new VerificationService. A nil otpSender logs codes.
func NewVerificationService(
	store repository.Store,
	trips *TripService,
	otpSender OTPSender,
	notificationService *NotificationService,
	cfg config.DispatchConfig,
) *VerificationService {
	if otpSender == nil {
		otpSender = LogOTPSender{}
	}
	s := &VerificationService{
		store:               store,
		trips:               trips,
		otpSender:           otpSender,
		notificationService: notificationService,
		challengeTTL:        cfg.ChallengeTTL,
		otpLength:           cfg.OTPLength,
		hashCost:            cfg.OTPHashCost,
		maxOTPAttempts:      cfg.MaxOTPAttempts,
		now:                 time.Now,
	}
	if s.challengeTTL <= 0 {
		s.challengeTTL = defaultChallengeTTL
	}
	if s.otpLength <= 0 {
		s.otpLength = defaultOTPLength
	}
	if s.maxOTPAttempts <= 0 {
		s.maxOTPAttempts = defaultMaxOTPAttempts
	}
	if s.hashCost < bcrypt.MinCost || s.hashCost > bcrypt.MaxCost {
		s.hashCost = bcrypt.DefaultCost
	}
	return s
}

// SetClock replaces the time source.
func (s *VerificationService) SetClock(now func() time.Time) {
	s.now = now
}

// InitiateResult is returned to the driver app. The OTP only goes to the customer.
type InitiateResult struct {
	TripID    string
	Token     string
	ExpiresAt time.Time
}

// InitiateStartRequest contains the start evidence captured by the driver.
type InitiateStartRequest struct {
	TripID        string
	ActorDriverID string
	Odometer      float64
	OdometerPic   string
	CarFrontPic   string
	CarBackPic    string
	DriverSelfie  string
	StartTime     time.Time // Optional: zero means now
}

// InitiateStart records start evidence and sends the customer a start OTP.
func (s *VerificationService) InitiateStart(ctx context.Context, req InitiateStartRequest) (*InitiateResult, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if blank(req.OdometerPic, req.CarFrontPic, req.CarBackPic, req.DriverSelfie) {
		return nil, ErrMissingEvidence
	}
	if req.Odometer < 0 {
		return nil, ErrInvalidOdometer
	}

	evidence := domain.Evidence{
		Odometer:     req.Odometer,
		OdometerPic:  req.OdometerPic,
		CarFrontPic:  req.CarFrontPic,
		CarBackPic:   req.CarBackPic,
		DriverSelfie: req.DriverSelfie,
		CapturedAt:   req.StartTime,
	}

	return s.initiate(ctx, req.TripID, req.ActorDriverID, domain.ChallengePurposeStart, evidence, func(trip *domain.Trip) error {
		if trip.Status != domain.TripStatusAssigned && trip.Status != domain.TripStatusDriverOnTheWay {
			return ErrTripNotStartable
		}
		return nil
	})
}

// VerifyAndStart checks the start OTP and moves the trip to IN_PROGRESS.
func (s *VerificationService) VerifyAndStart(ctx context.Context, tripID, token, otp string) (*domain.Trip, error) {
	trip, err := s.verify(ctx, tripID, token, otp, domain.ChallengePurposeStart,
		func(ctx context.Context, repos repository.Repos, trip *domain.Trip, challenge *domain.VerificationChallenge, now time.Time) error {
			if err := transition(trip, domain.TripStatusInProgress); err != nil {
				return err
			}

			evidence := challenge.Evidence
			if evidence.CapturedAt.IsZero() {
				evidence.CapturedAt = now
			}
			odometer := evidence.Odometer

			trip.StartedAt = evidence.CapturedAt
			trip.StartOdometer = &odometer
			trip.StartEvidence = &evidence

			return repos.Activity.Append(ctx, tripActivity(
				domain.ActivityTripStarted, trip, trip.DriverID,
				"Trip started",
				map[string]any{"challenge_id": challenge.ID, "odometer": odometer},
				now,
			))
		})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripStarted(ctx, trip)
	return trip, nil
}

// InitiateEndRequest contains the end evidence captured by the driver.
type InitiateEndRequest struct {
	TripID        string
	ActorDriverID string
	Odometer      float64
	OdometerPic   string
	EndPic        string
	EndTime       time.Time // Optional: zero means now
}

// InitiateEnd records end evidence and sends the customer an end OTP.
func (s *VerificationService) InitiateEnd(ctx context.Context, req InitiateEndRequest) (*InitiateResult, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if blank(req.OdometerPic, req.EndPic) {
		return nil, ErrMissingEvidence
	}
	if req.Odometer < 0 {
		return nil, ErrInvalidOdometer
	}

	evidence := domain.Evidence{
		Odometer:    req.Odometer,
		OdometerPic: req.OdometerPic,
		EndPic:      req.EndPic,
		CapturedAt:  req.EndTime,
	}

	return s.initiate(ctx, req.TripID, req.ActorDriverID, domain.ChallengePurposeEnd, evidence, func(trip *domain.Trip) error {
		if trip.Status != domain.TripStatusInProgress {
			return ErrTripNotInProgress
		}
		if trip.StartOdometer != nil && req.Odometer < *trip.StartOdometer {
			return ErrOdometerBelowStart
		}
		return nil
	})
}

// VerifyAndEnd checks the end OTP, prices the trip and completes it.
func (s *VerificationService) VerifyAndEnd(ctx context.Context, tripID, token, otp string) (*domain.Trip, error) {
	trip, err := s.verify(ctx, tripID, token, otp, domain.ChallengePurposeEnd,
		func(ctx context.Context, repos repository.Repos, trip *domain.Trip, challenge *domain.VerificationChallenge, now time.Time) error {
			return s.trips.completeTrip(ctx, repos, trip, challenge.Evidence, now, map[string]any{
				"challenge_id": challenge.ID,
			})
		})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripEnded(ctx, trip)
	return trip, nil
}

// CollectPaymentRequest contains what the driver collected from the customer.
type CollectPaymentRequest struct {
	TripID        string
	ActorDriverID string
	Method        domain.PaymentMethod
	CashAmount    float64
	UPIAmount     float64
}

// PaymentSummary compares the collected amount with the fare the trip will end at.
type PaymentSummary struct {
	TripID          string
	Method          domain.PaymentMethod
	CashAmount      float64
	UPIAmount       float64
	CollectedAmount float64
	ExpectedAmount  float64
	Reconciled      bool
}

// CollectPayment records the payment collected at the end of a trip. The
// trip must have an open END challenge.
func (s *VerificationService) CollectPayment(ctx context.Context, req CollectPaymentRequest) (*PaymentSummary, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if err := validatePayment(req.Method, req.CashAmount, req.UPIAmount); err != nil {
		return nil, err
	}

	var summary *PaymentSummary
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		trip, err := repos.Trips.GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}
		if trip.Status != domain.TripStatusInProgress {
			return ErrTripNotInProgress
		}
		if req.ActorDriverID != "" && req.ActorDriverID != trip.DriverID {
			return ErrNotTripDriver
		}

		now := s.now()
		challenge, err := repos.Challenges.GetOpenByTrip(ctx, trip.ID, domain.ChallengePurposeEnd, now)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEndNotInitiated
		}
		if err != nil {
			return err
		}

		quote, _, _, err := s.trips.fare(ctx, trip, challenge.Evidence, now)
		if err != nil {
			return err
		}

		trip.PaymentMethod = req.Method
		trip.CashAmount = roundMoney(req.CashAmount)
		trip.UPIAmount = roundMoney(req.UPIAmount)
		trip.PaymentStatus = domain.PaymentStatusCollected
		trip.UpdatedAt = now
		if err := repos.Trips.Update(ctx, trip, domain.TripStatusInProgress); err != nil {
			return storeErr(err)
		}

		collected := roundMoney(trip.CashAmount + trip.UPIAmount)
		expected := quote.Total()
		if err := repos.Activity.Append(ctx, tripActivity(
			domain.ActivityPaymentCollected, trip, trip.DriverID,
			"Payment collected",
			map[string]any{
				"method":          req.Method,
				"cash_amount":     trip.CashAmount,
				"upi_amount":      trip.UPIAmount,
				"expected_amount": expected,
			},
			now,
		)); err != nil {
			return err
		}

		summary = &PaymentSummary{
			TripID:          trip.ID,
			Method:          trip.PaymentMethod,
			CashAmount:      trip.CashAmount,
			UPIAmount:       trip.UPIAmount,
			CollectedAmount: collected,
			ExpectedAmount:  expected,
			Reconciled:      amountsReconcile(collected, expected),
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return summary, nil
}

// VerifyPaymentAndEndTrip completes a trip whose collected payment matches
// the final fare. A mismatch leaves the trip and the challenge untouched.
func (s *VerificationService) VerifyPaymentAndEndTrip(ctx context.Context, tripID, token, otp string) (*domain.Trip, error) {
	trip, err := s.verify(ctx, tripID, token, otp, domain.ChallengePurposeEnd,
		func(ctx context.Context, repos repository.Repos, trip *domain.Trip, challenge *domain.VerificationChallenge, now time.Time) error {
			if trip.PaymentStatus != domain.PaymentStatusCollected {
				return ErrPaymentNotCollected
			}
			if err := s.trips.completeTrip(ctx, repos, trip, challenge.Evidence, now, map[string]any{
				"challenge_id": challenge.ID,
				"payment":      true,
			}); err != nil {
				return err
			}
			if trip.PaymentStatus != domain.PaymentStatusPaid {
				return fmt.Errorf("%w: collected %.2f, fare %.2f",
					ErrPaymentMismatch, trip.CashAmount+trip.UPIAmount, *trip.FinalAmount)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.notificationService.NotifyTripEnded(ctx, trip)
	return trip, nil
}

// initiate creates a fresh challenge for the trip and delivers its OTP.
func (s *VerificationService) initiate(
	ctx context.Context,
	tripID, actorDriverID string,
	purpose domain.ChallengePurpose,
	evidence domain.Evidence,
	guard func(trip *domain.Trip) error,
) (*InitiateResult, error) {
	code, err := generateOTP(s.otpLength)
	if err != nil {
		return nil, err
	}
	hash, err := hashOTP(code, s.hashCost)
	if err != nil {
		return nil, err
	}

	action := domain.ActivityStartInitiated
	if purpose == domain.ChallengePurposeEnd {
		action = domain.ActivityEndInitiated
	}

	var result *InitiateResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		trip, err := repos.Trips.GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		if err := guard(trip); err != nil {
			return err
		}
		if actorDriverID != "" && actorDriverID != trip.DriverID {
			return ErrNotTripDriver
		}

		now := s.now()
		if evidence.CapturedAt.IsZero() {
			evidence.CapturedAt = now
		}

		if err := repos.Challenges.InvalidateOpen(ctx, trip.ID, purpose, now); err != nil {
			return err
		}

		challenge := &domain.VerificationChallenge{
			ID:          uuid.New().String(),
			TripID:      trip.ID,
			DriverID:    trip.DriverID,
			FranchiseID: trip.FranchiseID,
			Purpose:     purpose,
			Token:       uuid.New().String(),
			OTPHash:     hash,
			Evidence:    evidence,
			ExpiresAt:   now.Add(s.challengeTTL),
			CreatedAt:   now,
		}
		if err := repos.Challenges.Create(ctx, challenge); err != nil {
			return err
		}

		if err := repos.Activity.Append(ctx, tripActivity(
			action, trip, trip.DriverID,
			fmt.Sprintf("Trip %s verification initiated", strings.ToLower(string(purpose))),
			map[string]any{"challenge_id": challenge.ID, "odometer": evidence.Odometer},
			now,
		)); err != nil {
			return err
		}

		if err := s.otpSender.SendOTP(ctx, trip.CustomerPhone, code); err != nil {
			return fmt.Errorf("%w: %v", ErrOTPDelivery, err)
		}

		result = &InitiateResult{
			TripID:    trip.ID,
			Token:     challenge.Token,
			ExpiresAt: challenge.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return result, nil
}

// verify resolves a challenge by token, checks its OTP, applies fn to the
// trip and consumes the challenge, all in one transaction. The trip row is
// locked before the challenge row, the same order initiate uses.
//
// A wrong code commits only the incremented miss counter. The miss that
// reaches maxOTPAttempts also consumes the challenge.
func (s *VerificationService) verify(
	ctx context.Context,
	tripID, token, otp string,
	purpose domain.ChallengePurpose,
	fn func(ctx context.Context, repos repository.Repos, trip *domain.Trip, challenge *domain.VerificationChallenge, now time.Time) error,
) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	if token == "" || otp == "" {
		return nil, ErrMissingCredentials
	}

	var (
		updated  *domain.Trip
		previous domain.TripStatus
		miss     error
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		miss = nil

		peek, err := repos.Challenges.GetByToken(ctx, token)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChallengeNotFound
		}
		if err != nil {
			return err
		}
		if peek.TripID != tripID || peek.Purpose != purpose {
			return ErrChallengeNotFound
		}

		trip, err := repos.Trips.GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		previous = trip.Status

		challenge, err := repos.Challenges.GetByTokenForUpdate(ctx, token)
		if err != nil {
			return err
		}

		now := s.now()
		if !challenge.IsOpen(now) {
			return ErrChallengeExpired
		}
		if !otpMatches(challenge.OTPHash, otp, s.otpLength) {
			burned, err := s.recordMiss(ctx, repos, challenge, now)
			if err != nil {
				return err
			}
			miss = ErrInvalidOTP
			if burned {
				miss = ErrTooManyOTPAttempts
			}
			return nil
		}

		if err := fn(ctx, repos, trip, challenge, now); err != nil {
			return err
		}

		if err := repos.Challenges.Consume(ctx, challenge.ID, now); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return ErrChallengeExpired
			}
			return err
		}

		trip.UpdatedAt = now
		if err := repos.Trips.Update(ctx, trip, previous); err != nil {
			return storeErr(err)
		}
		updated = trip
		return nil
	})
	if err == nil {
		err = miss
	}

	metrics.OTPVerifications.WithLabelValues(string(purpose), verificationResult(err)).Inc()
	if err != nil {
		return nil, storeErr(err)
	}

	metrics.TripTransitions.WithLabelValues(string(updated.Status)).Inc()
	return updated, nil
}

// recordMiss counts a wrong code and reports whether it burned the challenge.
func (s *VerificationService) recordMiss(ctx context.Context, repos repository.Repos, challenge *domain.VerificationChallenge, now time.Time) (bool, error) {
	attempts, err := repos.Challenges.RecordFailedAttempt(ctx, challenge.ID)
	if err != nil {
		return false, err
	}
	if attempts < s.maxOTPAttempts {
		return false, nil
	}

	if err := repos.Challenges.Consume(ctx, challenge.ID, now); err != nil && !errors.Is(err, repository.ErrStatusConflict) {
		return false, err
	}
	log.Printf("[VERIFY] challenge %s for trip %s burned after %d wrong codes", challenge.ID, challenge.TripID, attempts)
	return true, nil
}

func verificationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidOTP):
		return "invalid_otp"
	case errors.Is(err, ErrTooManyOTPAttempts):
		return "attempts_exhausted"
	case errors.Is(err, ErrChallengeExpired):
		return "expired"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// validatePayment checks the amounts against the payment method.
func validatePayment(method domain.PaymentMethod, cash, upi float64) error {
	if !method.Valid() {
		return ErrInvalidPaymentMethod
	}
	if cash < 0 || upi < 0 {
		return ErrInvalidPaymentAmount
	}

	switch method {
	case domain.PaymentMethodCash:
		if cash <= 0 || upi != 0 {
			return ErrInvalidPaymentAmount
		}
	case domain.PaymentMethodUPI:
		if upi <= 0 || cash != 0 {
			return ErrInvalidPaymentAmount
		}
	case domain.PaymentMethodSplit:
		if cash <= 0 || upi <= 0 {
			return ErrInvalidPaymentAmount
		}
	}
	return nil
}

// blank reports whether any value is empty.
func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
