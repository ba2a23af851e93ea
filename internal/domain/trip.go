package domain

import "time"

// TripStatus represents the current status of a trip.
type TripStatus string

const (
	TripStatusRequested           TripStatus = "REQUESTED"
	TripStatusAssigned            TripStatus = "ASSIGNED"
	TripStatusDriverOnTheWay      TripStatus = "DRIVER_ON_THE_WAY"
	TripStatusInProgress          TripStatus = "IN_PROGRESS"
	TripStatusCompleted           TripStatus = "COMPLETED"
	TripStatusCancelledByCustomer TripStatus = "CANCELLED_BY_CUSTOMER"
	TripStatusCancelledByOffice   TripStatus = "CANCELLED_BY_OFFICE"
	TripStatusRejectedByDriver    TripStatus = "REJECTED_BY_DRIVER"
)

// AllowedTransitions is the trip state graph. Statuses without an entry are terminal.
var AllowedTransitions = map[TripStatus][]TripStatus{
	TripStatusRequested: {
		TripStatusAssigned,
		TripStatusCancelledByCustomer,
		TripStatusCancelledByOffice,
	},
	TripStatusRejectedByDriver: {
		TripStatusAssigned,
		TripStatusCancelledByCustomer,
		TripStatusCancelledByOffice,
	},
	TripStatusAssigned: {
		TripStatusDriverOnTheWay,
		TripStatusInProgress,
		TripStatusRejectedByDriver,
		TripStatusCancelledByCustomer,
		TripStatusCancelledByOffice,
	},
	TripStatusDriverOnTheWay: {
		TripStatusInProgress,
		TripStatusRejectedByDriver,
		TripStatusCancelledByCustomer,
		TripStatusCancelledByOffice,
	},
	// Once the customer has confirmed the start OTP the trip can only complete.
	TripStatusInProgress: {
		TripStatusCompleted,
	},
}

// CanTransition reports whether a trip may move from one status to another.
func CanTransition(from, to TripStatus) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined for the status.
func (s TripStatus) IsTerminal() bool {
	return len(AllowedTransitions[s]) == 0
}

// IsUnassigned reports whether a trip in this status is waiting for a driver
// and may be offered.
func (s TripStatus) IsUnassigned() bool {
	return s == TripStatusRequested || s == TripStatusRejectedByDriver
}

// IsActive reports whether a driver is currently bound to the trip.
func (s TripStatus) IsActive() bool {
	return s == TripStatusAssigned || s == TripStatusDriverOnTheWay || s == TripStatusInProgress
}

// HasDriver reports whether a trip in this status must carry a driver.
func (s TripStatus) HasDriver() bool {
	return s.IsActive() || s == TripStatusCompleted
}

// ActiveTripStatuses lists the statuses that occupy a driver.
var ActiveTripStatuses = []TripStatus{
	TripStatusAssigned,
	TripStatusDriverOnTheWay,
	TripStatusInProgress,
}

// Transmission is the gearbox a trip requires or a driver can handle.
type Transmission string

const (
	TransmissionAny       Transmission = ""
	TransmissionManual    Transmission = "MANUAL"
	TransmissionAutomatic Transmission = "AUTOMATIC"
	TransmissionBoth      Transmission = "BOTH"
)

// Location is a pickup or drop point.
type Location struct {
	Address string
	Lat     float64
	Lng     float64
}

// Evidence is the odometer reading and photo references captured at trip
// start or end. Picture fields are opaque URIs of already uploaded files.
type Evidence struct {
	Odometer     float64   `json:"odometer"`
	OdometerPic  string    `json:"odometer_pic"`
	CarFrontPic  string    `json:"car_front_pic,omitempty"`
	CarBackPic   string    `json:"car_back_pic,omitempty"`
	DriverSelfie string    `json:"driver_selfie,omitempty"`
	EndPic       string    `json:"end_pic,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
}

// CancelledBy identifies the party cancelling a trip.
type CancelledBy string

const (
	CancelledByCustomer CancelledBy = "CUSTOMER"
	CancelledByOffice   CancelledBy = "OFFICE"
)

// Trip represents one service engagement, from booking to completion.
type Trip struct {
	ID            string
	FranchiseID   string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Pickup        Location
	Drop          Location
	TripTypeID    string
	CarCategory   string
	Transmission  Transmission
	ScheduledAt   time.Time
	DriverID      string
	Status        TripStatus

	// DispatchRound counts how often the trip went back to the pool after
	// an assignment. Offers belong to the round they were made in.
	DispatchRound int

	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	CashAmount    float64
	UPIAmount     float64

	BaseAmount          float64
	ExtraAmount         float64
	FinalAmount         *float64 // Set only when the trip completes
	EstimatedDistanceKm float64
	DistanceKm          float64
	DurationMinutes     float64

	StartOdometer *float64
	EndOdometer   *float64
	StartEvidence *Evidence
	EndEvidence   *Evidence

	LiveLat        *float64
	LiveLng        *float64
	LiveLocationAt time.Time

	StartedAt    time.Time
	EndedAt      time.Time
	CancelledBy  CancelledBy
	CancelReason string
	CancelledAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EstimatedFare is the quoted amount used for earning-limit headroom checks.
func (t *Trip) EstimatedFare() float64 {
	return t.BaseAmount + t.ExtraAmount
}
