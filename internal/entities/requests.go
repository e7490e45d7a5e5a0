package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Document string `json:"document" validate:"max=30"`
	Phone    string `json:"phone" validate:"max=30"`
}

type StaffRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Role     string `json:"role" validate:"required,oneof=owner attendant"`
}

type LotRequest struct {
	Name             string   `json:"name" validate:"required,max=200"`
	Address          string   `json:"address" validate:"max=300"`
	Latitude         float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude        float64  `json:"longitude" validate:"gte=-180,lte=180"`
	OwnerID          *int     `json:"owner_id"`
	ToleranceMinutes int      `json:"tolerance_minutes" validate:"gte=0,lte=240"`
	PaymentMethods   []string `json:"payment_methods" validate:"dive,oneof=cash card transfer online"`
}

type ActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type ScheduleEntryRequest struct {
	Weekday int    `json:"weekday" validate:"gte=0,lte=6"`
	Opens   string `json:"opens" validate:"required"`
	Closes  string `json:"closes" validate:"required"`
}

type ScheduleRequest struct {
	Open24h bool                   `json:"open24h"`
	Entries []ScheduleEntryRequest `json:"entries" validate:"max=7,dive"`
}

type PaymentMethodsRequest struct {
	Methods []string `json:"methods" validate:"required,min=1,dive,oneof=cash card transfer online"`
}

type StaffAssignRequest struct {
	UserID int `json:"user_id" validate:"required"`
}

type SpaceRequest struct {
	Code         string `json:"code" validate:"required,max=20"`
	VehicleClass string `json:"vehicle_class" validate:"required"`
	Covered      bool   `json:"covered"`
}

type BulkSpacesRequest struct {
	Prefix       string `json:"prefix" validate:"max=10"`
	Count        int    `json:"count" validate:"required,gte=1,lte=500"`
	Start        int    `json:"start" validate:"gte=0"`
	VehicleClass string `json:"vehicle_class" validate:"required"`
	Covered      bool   `json:"covered"`
}

type OutOfServiceRequest struct {
	OutOfService bool `json:"out_of_service"`
}

type DriverRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Document string `json:"document" validate:"max=30"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"max=30"`
}

type VehicleRequest struct {
	Plate        string `json:"plate" validate:"required"`
	VehicleClass string `json:"vehicle_class" validate:"required"`
	Brand        string `json:"brand" validate:"max=60"`
	Model        string `json:"model" validate:"max=60"`
	Color        string `json:"color" validate:"max=30"`
}

type RateRequest struct {
	Service      string          `json:"service" validate:"required"`
	VehicleClass string          `json:"vehicle_class" validate:"required"`
	Price        decimal.Decimal `json:"price"`
	ValidFrom    *time.Time      `json:"valid_from"`
}

type CheckInRequest struct {
	Plate        string `json:"plate" validate:"required"`
	SpaceID      *int   `json:"space_id"`
	VehicleClass string `json:"vehicle_class"`
}

type CheckOutRequest struct {
	Ticket string `json:"ticket"`
	Plate  string `json:"plate" validate:"required_without=Ticket"`
	Method string `json:"method" validate:"required"`
}

type ExtraRequest struct {
	Service string `json:"service" validate:"required"`
}

type SubscriptionRequest struct {
	DriverID   int        `json:"driver_id" validate:"required"`
	SpaceID    int        `json:"space_id" validate:"required"`
	VehicleIDs []int      `json:"vehicle_ids" validate:"required,min=1"`
	StartsAt   *time.Time `json:"starts_at"`
	Months     int        `json:"months" validate:"gte=0,lte=12"`
	Method     string     `json:"method" validate:"required"`
}

type RenewRequest struct {
	Months int    `json:"months" validate:"required,gte=1,lte=12"`
	Method string `json:"method" validate:"required"`
}

type ShiftOpenRequest struct {
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

type ShiftCloseRequest struct {
	DeclaredCash decimal.Decimal `json:"declared_cash"`
}

type RatingRequest struct {
	Stars   int    `json:"stars" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=1000"`
}
