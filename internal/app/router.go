package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"tripdispatch/internal/handler"
	"tripdispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler         *handler.TripHandler
	VerificationHandler *handler.VerificationHandler
	OfferHandler        *handler.OfferHandler
	DriverHandler       *handler.DriverHandler
	RedisClient         *redis.Client
	NewRelicApp         *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.DispatchAttributes())
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Trip routes.
		trips := v1.Group("/trips")
		{
			trips.POST("", deps.TripHandler.CreateTrip)
			trips.GET("", deps.TripHandler.ListTrips)
			trips.GET("/:id", deps.TripHandler.GetTrip)
			trips.POST("/:id/assign", deps.TripHandler.AssignDriver)
			trips.POST("/:id/reassign", deps.TripHandler.ReassignDriver)
			trips.POST("/:id/on-the-way", deps.TripHandler.MarkOnTheWay)
			trips.POST("/:id/driver-reject", deps.TripHandler.DriverReject)
			trips.POST("/:id/reschedule", deps.TripHandler.Reschedule)
			trips.POST("/:id/cancel", deps.TripHandler.Cancel)
			trips.POST("/:id/location", deps.TripHandler.UpdateLocation)
			trips.POST("/:id/end-direct", deps.TripHandler.EndDirect)

			trips.POST("/:id/start/initiate", deps.VerificationHandler.InitiateStart)
			trips.POST("/:id/start/verify", deps.VerificationHandler.VerifyStart)
			trips.POST("/:id/end/initiate", deps.VerificationHandler.InitiateEnd)
			trips.POST("/:id/end/verify", deps.VerificationHandler.VerifyEnd)
			trips.POST("/:id/payment/collect", deps.VerificationHandler.CollectPayment)
			trips.POST("/:id/payment/verify", deps.VerificationHandler.VerifyPayment)

			trips.POST("/:id/offers", deps.OfferHandler.RequestOffers)
			trips.GET("/:id/eligible-drivers", deps.OfferHandler.EligibleDrivers)
		}

		// Offer routes.
		offers := v1.Group("/offers")
		{
			offers.POST("/:id/accept", deps.OfferHandler.Accept)
			offers.POST("/:id/reject", deps.OfferHandler.Reject)
		}

		// Driver routes.
		drivers := v1.Group("/drivers")
		{
			drivers.GET("/:id/offers", deps.OfferHandler.PendingOffers)
			drivers.GET("/:id/alerts", deps.DriverHandler.Alerts)
			drivers.POST("/:id/location", deps.DriverHandler.UpdateLocation)
			drivers.DELETE("/:id/location", deps.DriverHandler.GoOffline)
			drivers.GET("/:id/stream", deps.DriverHandler.Stream)
		}
	}

	return router
}
