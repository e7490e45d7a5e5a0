package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/billing"
	"playas/internal/db"
	"playas/internal/utils"
)

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func FromUser(u *db.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role, CreatedAt: u.CreatedAt}
}

func FromUsers(users []db.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, FromUser(&users[i]))
	}
	return out
}

type ScheduleEntryResponse struct {
	Weekday int    `json:"weekday"`
	Day     string `json:"day"`
	Opens   string `json:"opens"`
	Closes  string `json:"closes"`
}

type LotResponse struct {
	ID               int                     `json:"id"`
	Name             string                  `json:"name"`
	Address          string                  `json:"address"`
	Latitude         float64                 `json:"latitude"`
	Longitude        float64                 `json:"longitude"`
	OwnerID          *int                    `json:"owner_id,omitempty"`
	ToleranceMinutes int                     `json:"tolerance_minutes"`
	Open24h          bool                    `json:"open24h"`
	Schedule         []ScheduleEntryResponse `json:"schedule"`
	PaymentMethods   []string                `json:"payment_methods"`
	RatingAvg        decimal.Decimal         `json:"rating_avg"`
	RatingCount      int                     `json:"rating_count"`
	Active           bool                    `json:"active"`
}

func FromLot(l *db.Lot) LotResponse {
	r := LotResponse{
		ID:               l.ID,
		Name:             l.Name,
		Address:          l.Address,
		Latitude:         l.Latitude,
		Longitude:        l.Longitude,
		OwnerID:          l.OwnerID,
		ToleranceMinutes: l.ToleranceMinutes,
		Open24h:          l.Open24h,
		PaymentMethods:   l.PaymentMethods,
		RatingAvg:        l.RatingAvg,
		RatingCount:      l.RatingCount,
		Active:           l.Active,
		Schedule:         make([]ScheduleEntryResponse, 0, len(l.Schedule)),
	}
	if r.PaymentMethods == nil {
		r.PaymentMethods = []string{}
	}
	for _, e := range l.Schedule {
		r.Schedule = append(r.Schedule, ScheduleEntryResponse{
			Weekday: int(e.Weekday),
			Day:     e.Weekday.String(),
			Opens:   utils.FormatClock(e.Opens),
			Closes:  utils.FormatClock(e.Closes),
		})
	}
	return r
}

func FromLots(lots []db.Lot) []LotResponse {
	out := make([]LotResponse, 0, len(lots))
	for i := range lots {
		out = append(out, FromLot(&lots[i]))
	}
	return out
}

type SpaceResponse struct {
	ID           int    `json:"id"`
	LotID        int    `json:"lot_id"`
	Code         string `json:"code"`
	VehicleClass string `json:"vehicle_class"`
	Covered      bool   `json:"covered"`
	Reserved     bool   `json:"reserved"`
	State        string `json:"state"`
}

func FromSpace(s *db.Space) SpaceResponse {
	return SpaceResponse{
		ID:           s.ID,
		LotID:        s.LotID,
		Code:         s.Code,
		VehicleClass: s.VehicleClass,
		Covered:      s.Covered,
		Reserved:     s.Reserved,
		State:        s.State,
	}
}

func FromSpaces(spaces []db.Space) []SpaceResponse {
	out := make([]SpaceResponse, 0, len(spaces))
	for i := range spaces {
		out = append(out, FromSpace(&spaces[i]))
	}
	return out
}

type DriverResponse struct {
	ID       int    `json:"id"`
	UserID   *int   `json:"user_id,omitempty"`
	FullName string `json:"full_name"`
	Document string `json:"document,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

func FromDriver(d *db.Driver) DriverResponse {
	return DriverResponse{ID: d.ID, UserID: d.UserID, FullName: d.FullName, Document: d.Document, Email: d.Email, Phone: d.Phone}
}

func FromDrivers(drivers []db.Driver) []DriverResponse {
	out := make([]DriverResponse, 0, len(drivers))
	for i := range drivers {
		out = append(out, FromDriver(&drivers[i]))
	}
	return out
}

type VehicleResponse struct {
	ID           int    `json:"id"`
	Plate        string `json:"plate"`
	VehicleClass string `json:"vehicle_class"`
	Brand        string `json:"brand,omitempty"`
	Model        string `json:"model,omitempty"`
	Color        string `json:"color,omitempty"`
	DriverID     *int   `json:"driver_id,omitempty"`
}

func FromVehicle(v *db.Vehicle) VehicleResponse {
	return VehicleResponse{
		ID:           v.ID,
		Plate:        v.Plate,
		VehicleClass: v.VehicleClass,
		Brand:        v.Brand,
		Model:        v.Model,
		Color:        v.Color,
		DriverID:     v.DriverID,
	}
}

func FromVehicles(vehicles []db.Vehicle) []VehicleResponse {
	out := make([]VehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		out = append(out, FromVehicle(&vehicles[i]))
	}
	return out
}

type RateResponse struct {
	ID           int             `json:"id"`
	LotID        int             `json:"lot_id"`
	Service      string          `json:"service"`
	VehicleClass string          `json:"vehicle_class"`
	Price        decimal.Decimal `json:"price"`
	ValidFrom    time.Time       `json:"valid_from"`
	ValidTo      *time.Time      `json:"valid_to,omitempty"`
}

func FromRate(r *db.Rate) RateResponse {
	return RateResponse{
		ID:           r.ID,
		LotID:        r.LotID,
		Service:      r.Service,
		VehicleClass: r.VehicleClass,
		Price:        r.Price,
		ValidFrom:    r.ValidFrom,
		ValidTo:      r.ValidTo,
	}
}

func FromRates(rates []db.Rate) []RateResponse {
	out := make([]RateResponse, 0, len(rates))
	for i := range rates {
		out = append(out, FromRate(&rates[i]))
	}
	return out
}

type ExtraResponse struct {
	ID        int              `json:"id"`
	Service   string           `json:"service"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func FromExtra(e *db.OccupancyExtra) ExtraResponse {
	return ExtraResponse{ID: e.ID, Service: e.Service, Price: e.Price, CreatedAt: e.CreatedAt}
}

type OccupancyResponse struct {
	ID             int              `json:"id"`
	Ticket         string           `json:"ticket"`
	LotID          int              `json:"lot_id"`
	SpaceID        int              `json:"space_id"`
	SpaceCode      string           `json:"space_code"`
	VehicleID      int              `json:"vehicle_id"`
	Plate          string           `json:"plate"`
	VehicleClass   string           `json:"vehicle_class"`
	SubscriptionID *int             `json:"subscription_id,omitempty"`
	EnteredAt      time.Time        `json:"entered_at"`
	ExitedAt       *time.Time       `json:"exited_at,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Extras         []ExtraResponse  `json:"extras"`
}

func FromOccupancy(o *db.Occupancy) OccupancyResponse {
	r := OccupancyResponse{
		ID:             o.ID,
		Ticket:         o.Ticket,
		LotID:          o.LotID,
		SpaceID:        o.SpaceID,
		SpaceCode:      o.SpaceCode,
		VehicleID:      o.VehicleID,
		Plate:          o.Plate,
		VehicleClass:   o.VehicleClass,
		SubscriptionID: o.SubscriptionID,
		EnteredAt:      o.EnteredAt,
		ExitedAt:       o.ExitedAt,
		Amount:         o.Amount,
		Extras:         make([]ExtraResponse, 0, len(o.Extras)),
	}
	for i := range o.Extras {
		r.Extras = append(r.Extras, FromExtra(&o.Extras[i]))
	}
	return r
}

func FromOccupancies(list []db.Occupancy) []OccupancyResponse {
	out := make([]OccupancyResponse, 0, len(list))
	for i := range list {
		out = append(out, FromOccupancy(&list[i]))
	}
	return out
}

type ActiveStayResponse struct {
	OccupancyResponse
	ElapsedMinutes int            `json:"elapsed_minutes"`
	Quote          *billing.Quote `json:"quote,omitempty"`
}

type PaymentResponse struct {
	ID             int             `json:"id"`
	LotID          int             `json:"lot_id"`
	OccupancyID    *int            `json:"occupancy_id,omitempty"`
	SubscriptionID *int            `json:"subscription_id,omitempty"`
	ShiftID        *int            `json:"shift_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	Status         string          `json:"status"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func FromPayment(p *db.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		LotID:          p.LotID,
		OccupancyID:    p.OccupancyID,
		SubscriptionID: p.SubscriptionID,
		ShiftID:        p.ShiftID,
		Amount:         p.Amount,
		Method:         p.Method,
		Status:         p.Status,
		PaidAt:         p.PaidAt,
		CreatedAt:      p.CreatedAt,
	}
}

func FromPayments(list []db.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(list))
	for i := range list {
		out = append(out, FromPayment(&list[i]))
	}
	return out
}

type CheckOutResponse struct {
	Occupancy   OccupancyResponse `json:"occupancy"`
	Quote       billing.Quote     `json:"quote"`
	Payment     *PaymentResponse  `json:"payment,omitempty"`
	CheckoutURL string            `json:"checkout_url,omitempty"`
}

type CheckoutURLResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

type SubscriptionResponse struct {
	ID           int             `json:"id"`
	DriverID     int             `json:"driver_id"`
	LotID        int             `json:"lot_id"`
	SpaceID      int             `json:"space_id"`
	StartsAt     time.Time       `json:"starts_at"`
	EndsAt       time.Time       `json:"ends_at"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	Status       string          `json:"status"`
	VehicleIDs   []int           `json:"vehicle_ids"`
}

func FromSubscription(s *db.Subscription) SubscriptionResponse {
	r := SubscriptionResponse{
		ID:           s.ID,
		DriverID:     s.DriverID,
		LotID:        s.LotID,
		SpaceID:      s.SpaceID,
		StartsAt:     s.StartsAt,
		EndsAt:       s.EndsAt,
		MonthlyPrice: s.MonthlyPrice,
		Status:       s.Status,
		VehicleIDs:   s.VehicleIDs,
	}
	if r.VehicleIDs == nil {
		r.VehicleIDs = []int{}
	}
	return r
}

func FromSubscriptions(list []db.Subscription) []SubscriptionResponse {
	out := make([]SubscriptionResponse, 0, len(list))
	for i := range list {
		out = append(out, FromSubscription(&list[i]))
	}
	return out
}

type ShiftResponse struct {
	ID           int              `json:"id"`
	AttendantID  int              `json:"attendant_id"`
	LotID        int              `json:"lot_id"`
	OpenedAt     time.Time        `json:"opened_at"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	OpeningCash  decimal.Decimal  `json:"opening_cash"`
	DeclaredCash *decimal.Decimal `json:"declared_cash,omitempty"`
	ExpectedCash *decimal.Decimal `json:"expected_cash,omitempty"`
	Difference   *decimal.Decimal `json:"difference,omitempty"`
	AutoClosed   bool             `json:"auto_closed"`
}

// FromShift expects the cash difference already computed by the caller.
func FromShift(s *db.Shift, difference *decimal.Decimal) ShiftResponse {
	return ShiftResponse{
		ID:           s.ID,
		AttendantID:  s.AttendantID,
		LotID:        s.LotID,
		OpenedAt:     s.OpenedAt,
		ClosedAt:     s.ClosedAt,
		OpeningCash:  s.OpeningCash,
		DeclaredCash: s.DeclaredCash,
		ExpectedCash: s.ExpectedCash,
		Difference:   difference,
		AutoClosed:   s.AutoClosed,
	}
}

type RatingResponse struct {
	ID        int       `json:"id"`
	DriverID  int       `json:"driver_id"`
	LotID     int       `json:"lot_id"`
	Stars     int       `json:"stars"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func FromRating(r *db.Rating) RatingResponse {
	return RatingResponse{
		ID:        r.ID,
		DriverID:  r.DriverID,
		LotID:     r.LotID,
		Stars:     r.Stars,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func FromRatings(list []db.Rating) []RatingResponse {
	out := make([]RatingResponse, 0, len(list))
	for i := range list {
		out = append(out, FromRating(&list[i]))
	}
	return out
}
