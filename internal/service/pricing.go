package service

import (
	"context"
	"math"
	"time"
)

// QuoteRequest contains the inputs of a fare quote. DistanceKm and Duration
// are nil when quoting before the trip has been driven.
type QuoteRequest struct {
	TripTypeID  string
	CarCategory string
	DistanceKm  *float64
	Duration    *time.Duration
}

// Quote is a priced fare split into its base and extra components.
type Quote struct {
	BaseAmount  float64
	ExtraAmount float64
}

// Total returns the full fare.
func (q Quote) Total() float64 {
	return roundMoney(q.BaseAmount + q.ExtraAmount)
}

// RateCard prices trips. Implementations must be deterministic for a given request.
type RateCard interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
}

// Tariff is a fixed-price package with per-unit charges beyond its allowance.
type Tariff struct {
	BaseFare        float64
	IncludedKm      float64
	IncludedMinutes float64
	PerExtraKm      float64
	PerExtraMinute  float64
}

// DefaultTariff is used for trip types without a configured tariff.
var DefaultTariff = Tariff{
	BaseFare:        300,
	IncludedKm:      10,
	IncludedMinutes: 60,
	PerExtraKm:      12,
	PerExtraMinute:  2,
}

// TariffRateCard looks tariffs up by trip type and car category.
type TariffRateCard struct {
	fallback Tariff
	tariffs  map[string]Tariff
}

// NewTariffRateCard creates a rate card. Keys of tariffs are built with TariffKey.
func NewTariffRateCard(fallback Tariff, tariffs map[string]Tariff) *TariffRateCard {
	if tariffs == nil {
		tariffs = make(map[string]Tariff)
	}
	return &TariffRateCard{
		fallback: fallback,
		tariffs:  tariffs,
	}
}

// TariffKey returns the lookup key for a trip type and car category.
func TariffKey(tripTypeID, carCategory string) string {
	return tripTypeID + "/" + carCategory
}

// Quote prices the request. Without distance and duration only the base fare is charged.
func (c *TariffRateCard) Quote(_ context.Context, req QuoteRequest) (Quote, error) {
	tariff, ok := c.tariffs[TariffKey(req.TripTypeID, req.CarCategory)]
	if !ok {
		tariff = c.fallback
	}

	var extra float64
	if req.DistanceKm != nil {
		extra += math.Max(0, *req.DistanceKm-tariff.IncludedKm) * tariff.PerExtraKm
	}
	if req.Duration != nil {
		extra += math.Max(0, req.Duration.Minutes()-tariff.IncludedMinutes) * tariff.PerExtraMinute
	}

	return Quote{
		BaseAmount:  roundMoney(tariff.BaseFare),
		ExtraAmount: roundMoney(extra),
	}, nil
}

// roundMoney rounds to two decimal places.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// amountsReconcile reports whether collected matches expected within one paisa.
func amountsReconcile(collected, expected float64) bool {
	return math.Abs(collected-expected) <= 0.01+1e-9
}
