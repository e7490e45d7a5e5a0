package db

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin     = "admin"
	RoleOwner     = "owner"
	RoleAttendant = "attendant"
	RoleDriver    = "driver"
)

const (
	SpaceFree         = "free"
	SpaceOccupied     = "occupied"
	SpaceOutOfService = "out_of_service"
)

const (
	ClassCar        = "car"
	ClassMotorcycle = "motorcycle"
	ClassVan        = "van"
)

const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
	MethodOnline   = "online"
)

const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

const (
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
)

// Services priced by rates. Anything else is an extra (e.g. "wash").
const (
	ServiceHour              = "hour"
	ServiceDay               = "day"
	ServiceWeek              = "week"
	ServiceMonth             = "month"
	ServiceSubscriptionMonth = "subscription_month"
)

type User struct {
	ID           int
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	CreatedAt    time.Time
}

type Lot struct {
	ID               int
	Name             string
	Address          string
	Latitude         float64
	Longitude        float64
	OwnerID          *int
	ToleranceMinutes int
	Open24h          bool
	RatingAvg        decimal.Decimal
	RatingCount      int
	Active           bool
	PaymentMethods   []string
	Schedule         []ScheduleEntry
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ScheduleEntry opens and closes are minutes since midnight. Closes < Opens wraps midnight.
type ScheduleEntry struct {
	Weekday time.Weekday
	Opens   int
	Closes  int
}

type Space struct {
	ID           int
	LotID        int
	Code         string
	VehicleClass string
	Covered      bool
	Reserved     bool
	State        string
	CreatedAt    time.Time
}

type Driver struct {
	ID        int
	UserID    *int
	FullName  string
	Document  string
	Email     string
	Phone     string
	CreatedAt time.Time
}

type Vehicle struct {
	ID           int
	Plate        string
	VehicleClass string
	Brand        string
	Model        string
	Color        string
	DriverID     *int
	CreatedAt    time.Time
}

type Rate struct {
	ID           int
	LotID        int
	Service      string
	VehicleClass string
	Price        decimal.Decimal
	ValidFrom    time.Time
	ValidTo      *time.Time
}

type Occupancy struct {
	ID             int
	Ticket         string
	LotID          int
	SpaceID        int
	SpaceCode      string
	VehicleID      int
	Plate          string
	VehicleClass   string
	SubscriptionID *int
	EnteredAt      time.Time
	ExitedAt       *time.Time
	Amount         *decimal.Decimal
	OpenedBy       int
	ClosedBy       *int
	Extras         []OccupancyExtra
}

type OccupancyExtra struct {
	ID          int
	OccupancyID int
	Service     string
	Price       *decimal.Decimal
	CreatedAt   time.Time
}

type Payment struct {
	ID              int
	LotID           int
	OccupancyID     *int
	SubscriptionID  *int
	ShiftID         *int
	Amount          decimal.Decimal
	Method          string
	Status          string
	StripeSessionID string
	PaymentIntentID string
	PaidAt          *time.Time
	CreatedAt       time.Time
}

type Subscription struct {
	ID           int
	DriverID     int
	LotID        int
	SpaceID      int
	StartsAt     time.Time
	EndsAt       time.Time
	MonthlyPrice decimal.Decimal
	Status       string
	WarnedAt     *time.Time
	VehicleIDs   []int
	CreatedAt    time.Time
}

type Shift struct {
	ID           int
	AttendantID  int
	LotID        int
	OpenedAt     time.Time
	ClosedAt     *time.Time
	OpeningCash  decimal.Decimal
	DeclaredCash *decimal.Decimal
	ExpectedCash *decimal.Decimal
	AutoClosed   bool
}

type Rating struct {
	ID        int
	DriverID  int
	LotID     int
	Stars     int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
