package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
	"tripdispatch/internal/service"
)

// ──────────────────────────────────────────────
// 10. START VERIFICATION
// ──────────────────────────────────────────────

func validStartRequest(tripID, driverID string) service.InitiateStartRequest {
	return service.InitiateStartRequest{
		TripID:        tripID,
		ActorDriverID: driverID,
		Odometer:      95,
		OdometerPic:   "s3://evidence/odo-start.jpg",
		CarFrontPic:   "s3://evidence/front.jpg",
		CarBackPic:    "s3://evidence/back.jpg",
		DriverSelfie:  "s3://evidence/selfie.jpg",
	}
}

func TestVerifyAndStart_HappyPathAndReplay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	res, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if res.Token == "" || !res.ExpiresAt.Equal(baseTime.Add(10*time.Minute)) {
		t.Fatalf("unexpected initiate result: %+v", res)
	}

	code := h.otp.LastCode(testPhone)
	if len(code) != 4 {
		t.Fatalf("expected a 4 digit OTP, got %q", code)
	}
	for _, c := range h.store.ChallengesForTrip("trip-1") {
		if string(c.OTPHash) == code {
			t.Fatal("OTP must not be stored in plaintext")
		}
	}

	trip, err := h.verification.VerifyAndStart(ctx, "trip-1", res.Token, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if trip.Status != domain.TripStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", trip.Status)
	}
	if trip.StartOdometer == nil || *trip.StartOdometer != 95 {
		t.Errorf("expected start odometer 95, got %v", trip.StartOdometer)
	}
	if trip.StartEvidence == nil || trip.StartEvidence.DriverSelfie == "" {
		t.Errorf("expected start evidence to be copied onto the trip")
	}
	if !trip.StartedAt.Equal(baseTime) {
		t.Errorf("expected StartedAt %v, got %v", baseTime, trip.StartedAt)
	}

	_, err = h.verification.VerifyAndStart(ctx, "trip-1", res.Token, code)
	if !errors.Is(err, service.ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired on replay, got %v", err)
	}

	h.notifications.Wait()
	if got := h.sink.CountType(string(service.NotificationTripStarted)); got != 1 {
		t.Errorf("expected 1 TRIP_STARTED notification, got %d", got)
	}
}

func TestVerifyAndStart_WrongOTPLeavesTripUntouched(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	res, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	code := h.otp.LastCode(testPhone)

	for _, otp := range []string{wrongCode(code), "12", code + "0"} {
		if _, err := h.verification.VerifyAndStart(ctx, "trip-1", res.Token, otp); !errors.Is(err, service.ErrInvalidOTP) {
			t.Errorf("otp %q: expected ErrInvalidOTP, got %v", otp, err)
		}
	}
	if trip := h.store.GetTrip("trip-1"); trip.Status != domain.TripStatusAssigned || trip.StartOdometer != nil {
		t.Fatalf("expected trip untouched, got %s", trip.Status)
	}

	// The challenge is still usable after a wrong guess.
	if _, err := h.verification.VerifyAndStart(ctx, "trip-1", res.Token, code); err != nil {
		t.Fatalf("expected correct OTP to succeed, got %v", err)
	}
}

func TestVerifyAndStart_WrongCodeIsCounted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	res, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	code := h.otp.LastCode(testPhone)

	if _, err := h.verification.VerifyAndStart(ctx, "trip-1", res.Token, wrongCode(code)); !errors.Is(err, service.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	challenges := h.store.ChallengesForTrip("trip-1")
	if len(challenges) != 1 {
		t.Fatalf("expected 1 challenge, got %d", len(challenges))
	}
	if challenges[0].Attempts != 1 {
		t.Errorf("expected the miss to be persisted, got %d attempts", challenges[0].Attempts)
	}
	if challenges[0].IsConsumed() {
		t.Error("expected a single miss to leave the challenge open")
	}
}

func TestVerifyAndStart_WrongCodesBurnChallenge(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	res, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	code := h.otp.LastCode(testPhone)

	for i := 1; i <= 4; i++ {
		if _, err := h.verification.VerifyAndStart(ctx, "trip-1", res.Token, wrongCode(code)); !errors.Is(err, service.ErrInvalidOTP) {
			t.Fatalf("miss %d: expected ErrInvalidOTP, got %v", i, err)
		}
	}

	_, err = h.verification.VerifyAndStart(ctx, "trip-1", res.Token, wrongCode(code))
	if !errors.Is(err, service.ErrTooManyOTPAttempts) || !errors.Is(err, service.ErrChallengeExpired) {
		t.Fatalf("expected the fifth miss to burn the challenge, got %v", err)
	}
	if c := h.store.ChallengesForTrip("trip-1")[0]; !c.IsConsumed() || c.Attempts != 5 {
		t.Fatalf("expected a consumed challenge with 5 attempts, got consumed=%v attempts=%d", c.IsConsumed(), c.Attempts)
	}

	_, err = h.verification.VerifyAndStart(ctx, "trip-1", res.Token, code)
	if !errors.Is(err, service.ErrChallengeExpired) {
		t.Fatalf("expected the correct code to be refused after burning, got %v", err)
	}
	if trip := h.store.GetTrip("trip-1"); trip.Status != domain.TripStatusAssigned {
		t.Errorf("expected trip to stay ASSIGNED, got %s", trip.Status)
	}

	// A fresh challenge starts a new count.
	res, err = h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("reinitiate: %v", err)
	}
	if _, err := h.verification.VerifyAndStart(ctx, "trip-1", res.Token, h.otp.LastCode(testPhone)); err != nil {
		t.Fatalf("expected the new challenge to verify, got %v", err)
	}
}

func TestVerifyAndStart_ExpiredChallenge(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	res, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	h.clock.Advance(10 * time.Minute)
	_, err = h.verification.VerifyAndStart(ctx, "trip-1", res.Token, h.otp.LastCode(testPhone))
	if !errors.Is(err, service.ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestVerifyAndStart_ReinitiateInvalidatesPreviousChallenge(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	first, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("first initiate: %v", err)
	}
	firstCode := h.otp.LastCode(testPhone)

	second, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("second initiate: %v", err)
	}
	secondCode := h.otp.LastCode(testPhone)

	if _, err := h.verification.VerifyAndStart(ctx, "trip-1", first.Token, firstCode); !errors.Is(err, service.ErrChallengeExpired) {
		t.Errorf("expected superseded challenge to be expired, got %v", err)
	}
	if _, err := h.verification.VerifyAndStart(ctx, "trip-1", second.Token, secondCode); err != nil {
		t.Errorf("expected latest challenge to verify, got %v", err)
	}
}

func TestVerifyAndStart_TokenForAnotherTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.addDriver("d-2")
	h.seedTrip("trip-1", assignedTo("d-1"))
	h.seedTrip("trip-2", assignedTo("d-2"))
	ctx := context.Background()

	res, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-1"))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	code := h.otp.LastCode(testPhone)

	if _, err := h.verification.VerifyAndStart(ctx, "trip-2", res.Token, code); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for mismatched trip, got %v", err)
	}
	if _, err := h.verification.VerifyAndStart(ctx, "trip-1", "no-such-token", code); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown token, got %v", err)
	}
	if _, err := h.verification.VerifyAndEnd(ctx, "trip-1", res.Token, code); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for wrong purpose, got %v", err)
	}
	if _, err := h.verification.VerifyAndStart(ctx, "trip-1", "", code); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation for missing token, got %v", err)
	}
}

func TestInitiateStart_Guards(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	h.seedTrip("trip-open")
	ctx := context.Background()

	missing := validStartRequest("trip-1", "d-1")
	missing.CarBackPic = ""
	if _, err := h.verification.InitiateStart(ctx, missing); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation for missing evidence, got %v", err)
	}

	if _, err := h.verification.InitiateStart(ctx, validStartRequest("trip-1", "d-2")); !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for another driver, got %v", err)
	}

	if _, err := h.verification.InitiateStart(ctx, validStartRequest("trip-open", "")); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for unassigned trip, got %v", err)
	}

	if h.otp.SentCount(testPhone) != 0 {
		t.Errorf("expected no OTP sent, got %d", h.otp.SentCount(testPhone))
	}
}

func TestInitiateStart_DeliveryFailureRollsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	h.otp.SendError = errors.New("sms gateway down")

	_, err := h.verification.InitiateStart(context.Background(), validStartRequest("trip-1", "d-1"))
	if !errors.Is(err, service.ErrOTPDelivery) {
		t.Fatalf("expected ErrOTPDelivery, got %v", err)
	}
	if got := len(h.store.ChallengesForTrip("trip-1")); got != 0 {
		t.Errorf("expected no challenge to be stored, got %d", got)
	}
	if got := h.store.CountActivity("trip-1", domain.ActivityStartInitiated); got != 0 {
		t.Errorf("expected no START_INITIATED entry, got %d", got)
	}
}

// ──────────────────────────────────────────────
// 11. END VERIFICATION
// ──────────────────────────────────────────────

func TestVerifyAndEnd_PricesTheTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", assignedTo("d-1"))
	ctx := context.Background()

	h.startTrip(t, "trip-1", "d-1", 95)
	h.clock.Advance(90 * time.Minute)

	res := h.initiateEnd(t, "trip-1", "d-1", 105.4)
	code := h.otp.LastCode(testPhone)

	if _, err := h.verification.VerifyAndEnd(ctx, "trip-1", res.Token, wrongCode(code)); !errors.Is(err, service.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	trip, err := h.verification.VerifyAndEnd(ctx, "trip-1", res.Token, code)
	if err != nil {
		t.Fatalf("verify end: %v", err)
	}
	if trip.Status != domain.TripStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", trip.Status)
	}
	if trip.FinalAmount == nil || *trip.FinalAmount != 364.8 {
		t.Fatalf("expected final amount 364.8, got %v", trip.FinalAmount)
	}
	if trip.BaseAmount != 300 || trip.ExtraAmount != 64.8 {
		t.Errorf("expected 300 + 64.8, got %.2f + %.2f", trip.BaseAmount, trip.ExtraAmount)
	}
	if trip.EndOdometer == nil || *trip.EndOdometer != 105.4 {
		t.Errorf("expected end odometer 105.4, got %v", trip.EndOdometer)
	}
	if trip.DriverID != "d-1" {
		t.Errorf("expected completed trip to keep its driver, got %q", trip.DriverID)
	}
	if trip.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected payment untouched without collection, got %s", trip.PaymentStatus)
	}

	_, err = h.verification.VerifyAndEnd(ctx, "trip-1", res.Token, code)
	if !errors.Is(err, service.ErrChallengeExpired) {
		t.Errorf("expected ErrChallengeExpired on replay, got %v", err)
	}
}

func TestInitiateEnd_Guards(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-assigned", assignedTo("d-1"))
	h.seedTrip("trip-1", inProgress("d-1", 95, baseTime))
	ctx := context.Background()

	req := service.InitiateEndRequest{
		TripID:      "trip-1",
		Odometer:    90,
		OdometerPic: "s3://evidence/odo-end.jpg",
		EndPic:      "s3://evidence/end.jpg",
	}
	if _, err := h.verification.InitiateEnd(ctx, req); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation for odometer below start, got %v", err)
	}

	req.Odometer = 100
	req.EndPic = ""
	if _, err := h.verification.InitiateEnd(ctx, req); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation for missing picture, got %v", err)
	}

	req.EndPic = "s3://evidence/end.jpg"
	req.TripID = "trip-assigned"
	if _, err := h.verification.InitiateEnd(ctx, req); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState before start, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 12. PAYMENT COLLECTION
// ──────────────────────────────────────────────

func TestPayment_CollectAndVerify(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", inProgress("d-1", 95, baseTime.Add(-90*time.Minute)))
	ctx := context.Background()

	res := h.initiateEnd(t, "trip-1", "d-1", 105.4)
	code := h.otp.LastCode(testPhone)

	summary, err := h.verification.CollectPayment(ctx, service.CollectPaymentRequest{
		TripID:        "trip-1",
		ActorDriverID: "d-1",
		Method:        domain.PaymentMethodSplit,
		CashAmount:    200,
		UPIAmount:     164.8,
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !summary.Reconciled || summary.ExpectedAmount != 364.8 || summary.CollectedAmount != 364.8 {
		t.Fatalf("expected reconciled 364.8, got %+v", summary)
	}
	if trip := h.store.GetTrip("trip-1"); trip.PaymentStatus != domain.PaymentStatusCollected {
		t.Fatalf("expected COLLECTED, got %s", trip.PaymentStatus)
	}

	trip, err := h.verification.VerifyPaymentAndEndTrip(ctx, "trip-1", res.Token, code)
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if trip.Status != domain.TripStatusCompleted || trip.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected COMPLETED and PAID, got %s/%s", trip.Status, trip.PaymentStatus)
	}
	if trip.PaymentMethod != domain.PaymentMethodSplit {
		t.Errorf("expected SPLIT, got %s", trip.PaymentMethod)
	}
}

func TestPayment_MismatchRollsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", inProgress("d-1", 95, baseTime.Add(-90*time.Minute)))
	ctx := context.Background()

	res := h.initiateEnd(t, "trip-1", "d-1", 105.4)
	code := h.otp.LastCode(testPhone)

	summary, err := h.verification.CollectPayment(ctx, service.CollectPaymentRequest{
		TripID:     "trip-1",
		Method:     domain.PaymentMethodCash,
		CashAmount: 300,
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if summary.Reconciled {
		t.Fatal("expected short payment not to reconcile")
	}

	_, err = h.verification.VerifyPaymentAndEndTrip(ctx, "trip-1", res.Token, code)
	if !errors.Is(err, service.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
	trip := h.store.GetTrip("trip-1")
	if trip.Status != domain.TripStatusInProgress || trip.FinalAmount != nil {
		t.Fatalf("expected trip untouched, got %s", trip.Status)
	}

	// Collecting the right amount afterwards lets the same challenge complete the trip.
	if _, err := h.verification.CollectPayment(ctx, service.CollectPaymentRequest{
		TripID:    "trip-1",
		Method:    domain.PaymentMethodUPI,
		UPIAmount: 364.8,
	}); err != nil {
		t.Fatalf("recollect: %v", err)
	}
	trip, err = h.verification.VerifyPaymentAndEndTrip(ctx, "trip-1", res.Token, code)
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if trip.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("expected PAID, got %s", trip.PaymentStatus)
	}
}

func TestPayment_Guards(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.addDriver("d-1")
	h.seedTrip("trip-1", inProgress("d-1", 95, baseTime))
	ctx := context.Background()

	_, err := h.verification.CollectPayment(ctx, service.CollectPaymentRequest{
		TripID:     "trip-1",
		Method:     domain.PaymentMethodCash,
		CashAmount: 300,
	})
	if !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState before end is initiated, got %v", err)
	}

	invalid := []service.CollectPaymentRequest{
		{TripID: "trip-1", Method: "CARD", CashAmount: 300},
		{TripID: "trip-1", Method: domain.PaymentMethodCash, CashAmount: 0},
		{TripID: "trip-1", Method: domain.PaymentMethodCash, CashAmount: 100, UPIAmount: 200},
		{TripID: "trip-1", Method: domain.PaymentMethodSplit, CashAmount: 300},
		{TripID: "trip-1", Method: domain.PaymentMethodUPI, UPIAmount: -5},
	}
	for i, req := range invalid {
		if _, err := h.verification.CollectPayment(ctx, req); !errors.Is(err, service.ErrValidation) {
			t.Errorf("case %d: expected ErrValidation, got %v", i, err)
		}
	}

	res := h.initiateEnd(t, "trip-1", "d-1", 100)
	_, err = h.verification.VerifyPaymentAndEndTrip(ctx, "trip-1", res.Token, h.otp.LastCode(testPhone))
	if !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState without collected payment, got %v", err)
	}

	_, err = h.verification.CollectPayment(ctx, service.CollectPaymentRequest{
		TripID:        "trip-1",
		ActorDriverID: "d-2",
		Method:        domain.PaymentMethodCash,
		CashAmount:    300,
	})
	if !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for another driver, got %v", err)
	}
}
