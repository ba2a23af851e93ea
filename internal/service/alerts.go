package service

import (
	"context"
	"sort"
	"time"

	"tripdispatch/internal/domain"
	"tripdispatch/internal/repository"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 200
)

// AlertType classifies a driver alert.
type AlertType string

const (
	AlertIncomingRequest AlertType = "INCOMING_REQUEST"
	AlertTripAssigned    AlertType = "TRIP_ASSIGNED"
	AlertOfferAccepted   AlertType = "OFFER_ACCEPTED"
	AlertOfferRejected   AlertType = "OFFER_REJECTED"
	AlertTripStarted     AlertType = "TRIP_STARTED"
	AlertTripEnded       AlertType = "TRIP_ENDED"
)

// Alert is one entry of a driver's alert feed.
type Alert struct {
	ID        string
	Type      AlertType
	Title     string
	Message   string
	TripID    string
	OfferID   string
	ExpiresAt time.Time // Set for incoming requests only
	Timestamp time.Time
}

type alertTemplate struct {
	alertType AlertType
	title     string
	message   string
}

// alertTemplates maps the activity actions shown to drivers to their copy.
var alertTemplates = map[domain.ActivityAction]alertTemplate{
	domain.ActivityTripAssigned:  {AlertTripAssigned, "Trip Assigned", "A trip has been assigned to you."},
	domain.ActivityOfferAccepted: {AlertOfferAccepted, "Offer Accepted", "You accepted a trip offer."},
	domain.ActivityOfferRejected: {AlertOfferRejected, "Offer Rejected", "You rejected a trip offer."},
	domain.ActivityTripStarted:   {AlertTripStarted, "Trip Started", "Your trip has started."},
	domain.ActivityTripEnded:     {AlertTripEnded, "Trip Completed", "Your trip has been completed."},
}

var alertActions = []domain.ActivityAction{
	domain.ActivityTripAssigned,
	domain.ActivityOfferAccepted,
	domain.ActivityOfferRejected,
	domain.ActivityTripStarted,
	domain.ActivityTripEnded,
}

// AlertService builds driver alert feeds from live offers and activity.
type AlertService struct {
	store repository.Store
	now   func() time.Time
}

// NewAlertService creates a new AlertService.
func NewAlertService(store repository.Store) *AlertService {
	return &AlertService{
		store: store,
		now:   time.Now,
	}
}

// SetClock replaces the time source.
func (s *AlertService) SetClock(now func() time.Time) {
	s.now = now
}

// GetDriverAlerts returns the driver's alerts, newest first.
func (s *AlertService) GetDriverAlerts(ctx context.Context, driverID string, limit int) ([]Alert, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}

	repos := s.store.Repos()

	offers, err := repos.Offers.ListLiveByDriver(ctx, driverID, s.now())
	if err != nil {
		return nil, err
	}

	entries, err := repos.Activity.ListByDriver(ctx, driverID, alertActions, limit)
	if err != nil {
		return nil, err
	}

	alerts := make([]Alert, 0, len(offers)+len(entries))
	for _, offer := range offers {
		alerts = append(alerts, Alert{
			ID:        offer.ID,
			Type:      AlertIncomingRequest,
			Title:     "New Trip Request",
			Message:   "A new trip is waiting for your response.",
			TripID:    offer.TripID,
			OfferID:   offer.ID,
			ExpiresAt: offer.ExpiresAt,
			Timestamp: offer.OfferedAt,
		})
	}

	for _, entry := range entries {
		tmpl, ok := alertTemplates[entry.Action]
		if !ok {
			continue
		}
		alert := Alert{
			ID:        entry.ID,
			Type:      tmpl.alertType,
			Title:     tmpl.title,
			Message:   tmpl.message,
			TripID:    entry.TripID,
			Timestamp: entry.CreatedAt,
		}
		if offerID, ok := entry.Metadata["offer_id"].(string); ok {
			alert.OfferID = offerID
		}
		alerts = append(alerts, alert)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if !alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].Timestamp.After(alerts[j].Timestamp)
		}
		return alerts[i].ID < alerts[j].ID
	})

	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}
