package domain

// PaymentStatus represents the payment state of a trip.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCollected PaymentStatus = "COLLECTED"
	PaymentStatusPaid      PaymentStatus = "PAID"
)

// PaymentMethod represents how the customer settled the fare.
type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "CASH"
	PaymentMethodUPI   PaymentMethod = "UPI"
	PaymentMethodSplit PaymentMethod = "SPLIT"
)

// Valid reports whether the method is one the collection step accepts.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodUPI, PaymentMethodSplit:
		return true
	}
	return false
}
