package domain

// DriverAccountStatus represents the account standing of a driver.
type DriverAccountStatus string

const (
	DriverAccountActive   DriverAccountStatus = "ACTIVE"
	DriverAccountInactive DriverAccountStatus = "INACTIVE"
	DriverAccountBanned   DriverAccountStatus = "BANNED"
)

// Driver is the dispatch view of a driver profile.
type Driver struct {
	ID                string
	FranchiseID       string
	Name              string
	Phone             string
	AccountStatus     DriverAccountStatus
	CarCategories     []string
	Transmission      Transmission
	CheckedIn         bool
	Rating            float64 // 0-5
	CompletionRate    float64 // 0-1
	ComplaintCount    int
	DailyEarningLimit float64 // 0 means no limit
}

// SupportsCategory reports whether the driver can drive the given car category.
func (d *Driver) SupportsCategory(category string) bool {
	for _, c := range d.CarCategories {
		if c == category {
			return true
		}
	}
	return false
}

// SupportsTransmission reports whether the driver can handle the required gearbox.
func (d *Driver) SupportsTransmission(required Transmission) bool {
	if required == TransmissionAny || required == TransmissionBoth {
		return true
	}
	return d.Transmission == TransmissionBoth || d.Transmission == required
}

// Franchise is the dispatch view of a franchise.
type Franchise struct {
	ID                 string
	Name               string
	AttendanceRequired bool
}
