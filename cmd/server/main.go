package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"tripdispatch/internal/app"
	"tripdispatch/internal/config"
	"tripdispatch/internal/handler"
	"tripdispatch/internal/notify"
	internalRedis "tripdispatch/internal/redis"
	"tripdispatch/internal/repository/postgres"
	"tripdispatch/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Connect to RabbitMQ only when the AMQP sink is enabled.
	var amqpChannel *amqp091.Channel
	if sinkEnabled(cfg.Dispatch.NotifySinks, "amqp") {
		conn, ch, err := app.NewAMQPChannel(cfg.AMQP)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()
		defer ch.Close()
		amqpChannel = ch
		log.Println("Connected to RabbitMQ")
	}

	// Wire dependencies.
	server, background := wireServer(db, redisClient, amqpChannel, nrApp, cfg)

	runCtx, stopBackground := context.WithCancel(context.Background())
	go background.offers.RunExpirySweeper(runCtx, cfg.Dispatch.OfferSweepInterval)

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	stopBackground()
	background.notifications.Wait()

	log.Println("Server exited")
}

// backgroundServices are the services main keeps running or drains on shutdown.
type backgroundServices struct {
	offers        *service.OfferService
	notifications *service.NotificationService
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	amqpChannel *amqp091.Channel,
	nrApp *newrelic.Application,
	cfg *config.Config,
) (*http.Server, backgroundServices) {
	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)

	// Initialize the transactional store.
	store := postgres.NewStore(db)

	driverService := service.NewDriverService(store, locationStore)

	var hub *notify.Hub
	if sinkEnabled(cfg.Dispatch.NotifySinks, "ws") {
		hub = notify.NewHub(driverService)
	}

	// Initialize services.
	notificationService := service.NewNotificationService(buildSink(cfg, redisClient, amqpChannel, hub), cfg.Dispatch.NotificationTimeout)
	eligibilityService := service.NewEligibilityService(store, locationStore)
	offerService := service.NewOfferService(store, eligibilityService, lockStore, notificationService, cfg.Dispatch)
	rateCard := service.NewTariffRateCard(service.Tariff{
		BaseFare:        cfg.Pricing.BaseFare,
		IncludedKm:      cfg.Pricing.IncludedKm,
		IncludedMinutes: cfg.Pricing.IncludedMinutes,
		PerExtraKm:      cfg.Pricing.PerExtraKm,
		PerExtraMinute:  cfg.Pricing.PerExtraMinute,
	}, nil)
	tripService := service.NewTripService(store, eligibilityService, offerService, rateCard, locationStore, notificationService)
	verificationService := service.NewVerificationService(store, tripService, buildOTPSender(cfg, redisClient), notificationService, cfg.Dispatch)
	alertService := service.NewAlertService(store)

	// Initialize handlers.
	tripHandler := handler.NewTripHandler(tripService)
	verificationHandler := handler.NewVerificationHandler(verificationService)
	offerHandler := handler.NewOfferHandler(offerService, eligibilityService)
	driverHandler := handler.NewDriverHandler(driverService, alertService, hub)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TripHandler:         tripHandler,
		VerificationHandler: verificationHandler,
		OfferHandler:        offerHandler,
		DriverHandler:       driverHandler,
		RedisClient:         redisClient,
		NewRelicApp:         nrApp,
	})

	// Create HTTP server.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return server, backgroundServices{
		offers:        offerService,
		notifications: notificationService,
	}
}

// buildSink assembles the notification transports named in the config.
func buildSink(cfg *config.Config, redisClient *redis.Client, amqpChannel *amqp091.Channel, hub *notify.Hub) notify.Sink {
	var sinks notify.Fanout
	for _, name := range cfg.Dispatch.NotifySinks {
		switch name {
		case "redis":
			sinks = append(sinks, notify.NewRedisSink(redisClient))
		case "amqp":
			if amqpChannel == nil {
				continue
			}
			sink, err := notify.NewAMQPSink(amqpChannel, cfg.AMQP.Exchange)
			if err != nil {
				log.Fatalf("failed to declare amqp exchange: %v", err)
			}
			sinks = append(sinks, sink)
		case "ws":
			if hub != nil {
				sinks = append(sinks, hub)
			}
		case "log":
			sinks = append(sinks, notify.LogSink{})
		default:
			log.Printf("unknown notification sink %q ignored", name)
		}
	}
	if len(sinks) == 0 {
		return notify.LogSink{}
	}
	return sinks
}

// buildOTPSender picks the OTP delivery channel.
func buildOTPSender(cfg *config.Config, redisClient *redis.Client) service.OTPSender {
	if cfg.Dispatch.OTPDelivery == "log" {
		return service.LogOTPSender{}
	}
	return internalRedis.NewSMSQueue(redisClient)
}

func sinkEnabled(sinks []string, name string) bool {
	for _, s := range sinks {
		if s == name {
			return true
		}
	}
	return false
}
