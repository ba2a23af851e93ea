// Package metrics holds the Prometheus collectors of the dispatch core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_created_total",
		Help: "Trip offers created by fan-out.",
	})

	OfferOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_offer_outcomes_total",
		Help: "Offer resolutions by resulting status.",
	}, []string{"status"})

	EligibleDrivers = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_eligible_drivers",
		Help:    "Number of eligible drivers found per eligibility query.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	TripTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_trip_transitions_total",
		Help: "Committed trip status transitions by target status.",
	}, []string{"status"})

	OTPVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_otp_verifications_total",
		Help: "OTP verification attempts by purpose and result.",
	}, []string{"purpose", "result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_notifications_total",
		Help: "Asynchronous notification publishes by result.",
	}, []string{"result"})
)
