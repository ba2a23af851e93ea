package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/metrics"
	"tripdispatch/internal/notify"
)

const defaultNotificationTimeout = 5 * time.Second

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTripOffered     NotificationType = "TRIP_OFFERED"
	NotificationOfferAccepted   NotificationType = "OFFER_ACCEPTED"
	NotificationOfferRejected   NotificationType = "OFFER_REJECTED"
	NotificationTripAssigned    NotificationType = "TRIP_ASSIGNED"
	NotificationTripUnassigned  NotificationType = "TRIP_UNASSIGNED"
	NotificationDriverOnTheWay  NotificationType = "DRIVER_ON_THE_WAY"
	NotificationTripRejected    NotificationType = "TRIP_REJECTED_BY_DRIVER"
	NotificationTripRescheduled NotificationType = "TRIP_RESCHEDULED"
	NotificationTripStarted     NotificationType = "TRIP_STARTED"
	NotificationTripEnded       NotificationType = "TRIP_ENDED"
	NotificationTripCancelled   NotificationType = "TRIP_CANCELLED"
)

// Topic returns the publish topic, e.g. "trip.offered".
func (t NotificationType) Topic() string {
	return strings.ToLower(strings.ReplaceAll(string(t), "_", "."))
}

// Notification represents a notification to be sent.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipient_id"` // Driver ID or franchise office ID
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// officeRecipient addresses the dispatch office of a franchise.
func officeRecipient(franchiseID string) string {
	return "franchise:" + franchiseID
}

// NotificationService publishes notifications after the originating
// transaction has committed. Publishing never blocks the caller and a
// failure never affects the operation that triggered it.
type NotificationService struct {
	sink    notify.Sink
	timeout time.Duration
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewNotificationService creates a new NotificationService. A nil sink logs only.
func NewNotificationService(sink notify.Sink, timeout time.Duration) *NotificationService {
	if sink == nil {
		sink = notify.LogSink{}
	}
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	return &NotificationService{
		sink:    sink,
		timeout: timeout,
		now:     time.Now,
	}
}

// NotifyTripOffered tells a driver about a new offer.
func (s *NotificationService) NotifyTripOffered(ctx context.Context, trip *domain.Trip, offer *domain.TripOffer) {
	s.publish(ctx, Notification{
		Type:        NotificationTripOffered,
		RecipientID: offer.DriverID,
		Title:       "New Trip Request",
		Message:     fmt.Sprintf("New trip request. Pickup at %s", trip.Pickup.Address),
		Data: map[string]any{
			"trip_id":      trip.ID,
			"offer_id":     offer.ID,
			"pickup":       trip.Pickup.Address,
			"drop":         trip.Drop.Address,
			"scheduled_at": trip.ScheduledAt,
			"expires_at":   offer.ExpiresAt,
			"fare":         trip.EstimatedFare(),
		},
	})
}

// NotifyOfferAccepted tells the franchise office that a driver took the trip.
func (s *NotificationService) NotifyOfferAccepted(ctx context.Context, trip *domain.Trip, offer *domain.TripOffer) {
	s.publish(ctx, Notification{
		Type:        NotificationOfferAccepted,
		RecipientID: officeRecipient(trip.FranchiseID),
		Title:       "Offer Accepted",
		Message:     fmt.Sprintf("Driver %s accepted trip %s", offer.DriverID, trip.ID),
		Data: map[string]any{
			"trip_id":   trip.ID,
			"offer_id":  offer.ID,
			"driver_id": offer.DriverID,
		},
	})
}

// NotifyOfferRejected tells the franchise office that a driver declined an offer.
func (s *NotificationService) NotifyOfferRejected(ctx context.Context, offer *domain.TripOffer) {
	s.publish(ctx, Notification{
		Type:        NotificationOfferRejected,
		RecipientID: officeRecipient(offer.FranchiseID),
		Title:       "Offer Rejected",
		Message:     fmt.Sprintf("Driver %s rejected trip %s", offer.DriverID, offer.TripID),
		Data: map[string]any{
			"trip_id":   offer.TripID,
			"offer_id":  offer.ID,
			"driver_id": offer.DriverID,
		},
	})
}

// NotifyTripAssigned tells the driver a trip is now theirs.
func (s *NotificationService) NotifyTripAssigned(ctx context.Context, trip *domain.Trip) {
	s.publish(ctx, Notification{
		Type:        NotificationTripAssigned,
		RecipientID: trip.DriverID,
		Title:       "Trip Assigned",
		Message:     fmt.Sprintf("You have been assigned a trip. Pickup at %s", trip.Pickup.Address),
		Data: map[string]any{
			"trip_id":      trip.ID,
			"scheduled_at": trip.ScheduledAt,
		},
	})
}

// NotifyTripUnassigned tells a driver they were taken off a trip.
func (s *NotificationService) NotifyTripUnassigned(ctx context.Context, trip *domain.Trip, driverID string) {
	if driverID == "" {
		return
	}
	s.publish(ctx, Notification{
		Type:        NotificationTripUnassigned,
		RecipientID: driverID,
		Title:       "Trip Reassigned",
		Message:     "A trip you were assigned to has been given to another driver.",
		Data: map[string]any{
			"trip_id": trip.ID,
		},
	})
}

// NotifyDriverOnTheWay tells the franchise office the driver is heading to pickup.
func (s *NotificationService) NotifyDriverOnTheWay(ctx context.Context, trip *domain.Trip) {
	s.publish(ctx, Notification{
		Type:        NotificationDriverOnTheWay,
		RecipientID: officeRecipient(trip.FranchiseID),
		Title:       "Driver On The Way",
		Message:     fmt.Sprintf("Driver %s is on the way to pickup", trip.DriverID),
		Data: map[string]any{
			"trip_id":   trip.ID,
			"driver_id": trip.DriverID,
		},
	})
}

// NotifyTripRejectedByDriver tells the franchise office an assigned driver dropped the trip.
func (s *NotificationService) NotifyTripRejectedByDriver(ctx context.Context, trip *domain.Trip, driverID, reason string) {
	s.publish(ctx, Notification{
		Type:        NotificationTripRejected,
		RecipientID: officeRecipient(trip.FranchiseID),
		Title:       "Trip Rejected",
		Message:     fmt.Sprintf("Driver %s rejected assigned trip %s", driverID, trip.ID),
		Data: map[string]any{
			"trip_id":   trip.ID,
			"driver_id": driverID,
			"reason":    reason,
		},
	})
}

// NotifyTripRescheduled tells the assigned driver the pickup time moved.
func (s *NotificationService) NotifyTripRescheduled(ctx context.Context, trip *domain.Trip) {
	if trip.DriverID == "" {
		return
	}
	s.publish(ctx, Notification{
		Type:        NotificationTripRescheduled,
		RecipientID: trip.DriverID,
		Title:       "Trip Rescheduled",
		Message:     fmt.Sprintf("Pickup moved to %s", trip.ScheduledAt.Format(time.RFC3339)),
		Data: map[string]any{
			"trip_id":      trip.ID,
			"scheduled_at": trip.ScheduledAt,
		},
	})
}

// NotifyTripStarted tells the franchise office the trip has started.
func (s *NotificationService) NotifyTripStarted(ctx context.Context, trip *domain.Trip) {
	s.publish(ctx, Notification{
		Type:        NotificationTripStarted,
		RecipientID: officeRecipient(trip.FranchiseID),
		Title:       "Trip Started",
		Message:     fmt.Sprintf("Trip %s has started", trip.ID),
		Data: map[string]any{
			"trip_id":    trip.ID,
			"driver_id":  trip.DriverID,
			"started_at": trip.StartedAt,
		},
	})
}

// NotifyTripEnded tells the franchise office the trip has completed.
func (s *NotificationService) NotifyTripEnded(ctx context.Context, trip *domain.Trip) {
	var fare float64
	if trip.FinalAmount != nil {
		fare = *trip.FinalAmount
	}
	s.publish(ctx, Notification{
		Type:        NotificationTripEnded,
		RecipientID: officeRecipient(trip.FranchiseID),
		Title:       "Trip Completed",
		Message:     fmt.Sprintf("Trip %s has ended. Total fare: %.2f", trip.ID, fare),
		Data: map[string]any{
			"trip_id":        trip.ID,
			"driver_id":      trip.DriverID,
			"fare":           fare,
			"payment_status": trip.PaymentStatus,
			"ended_at":       trip.EndedAt,
		},
	})
}

// NotifyTripCancelled tells the previously assigned driver the trip was cancelled.
func (s *NotificationService) NotifyTripCancelled(ctx context.Context, trip *domain.Trip, driverID string) {
	if driverID == "" {
		return
	}
	s.publish(ctx, Notification{
		Type:        NotificationTripCancelled,
		RecipientID: driverID,
		Title:       "Trip Cancelled",
		Message:     "A trip you were assigned to has been cancelled.",
		Data: map[string]any{
			"trip_id":      trip.ID,
			"cancelled_by": trip.CancelledBy,
			"reason":       trip.CancelReason,
		},
	})
}

// Wait blocks until every in-flight publish has finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// publish serializes the notification and hands it to the sink in the background.
func (s *NotificationService) publish(ctx context.Context, notification Notification) {
	notification.ID = uuid.New().String()
	notification.CreatedAt = s.now().UTC()

	payload, err := json.Marshal(notification)
	if err != nil {
		log.Printf("[NOTIFICATION] marshal failed: Type=%s, Recipient=%s, Error=%v",
			notification.Type, notification.RecipientID, err)
		metrics.Notifications.WithLabelValues("error").Inc()
		return
	}

	// Detach from the request so a finished handler does not cancel delivery.
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := s.sink.Publish(ctx, notification.Type.Topic(), payload); err != nil {
			log.Printf("[NOTIFICATION] delivery failed: Type=%s, Recipient=%s, Error=%v",
				notification.Type, notification.RecipientID, err)
			metrics.Notifications.WithLabelValues("error").Inc()
			return
		}
		metrics.Notifications.WithLabelValues("ok").Inc()
	}()
}
