package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/auth"
	"playas/internal/cache"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/events"
)

var (
	admin     = auth.Principal{UserID: 1, Role: db.RoleAdmin}
	attendant = auth.Principal{UserID: 7, Role: db.RoleAttendant}
)

type parkingEnv struct {
	lots        *fakeLots
	shifts      *fakeShifts
	spaces      *fakeSpaces
	drivers     *fakeDrivers
	subs        *fakeSubscriptions
	occupancies *fakeOccupancies
	payments    *fakePayments
	publisher   *fakePublisher
	gateway     *fakeGateway
	cache       *cache.MemoryCache
	svc         *OccupancyService
	now         time.Time
}

func newParkingEnv(t *testing.T) *parkingEnv {
	t.Helper()
	e := &parkingEnv{now: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	e.lots = newFakeLots(&db.Lot{
		ID:               1,
		Name:             "Centro",
		Active:           true,
		Open24h:          true,
		ToleranceMinutes: 10,
		PaymentMethods:   []string{db.MethodCash, db.MethodOnline},
	})
	e.lots.staff[[2]int{1, attendant.UserID}] = true
	e.shifts = newFakeShifts(&db.Shift{ID: 3, AttendantID: attendant.UserID, LotID: 1, OpeningCash: dec("500")})
	e.spaces = newFakeSpaces(
		&db.Space{ID: 1, LotID: 1, Code: "A01", VehicleClass: db.ClassCar},
		&db.Space{ID: 2, LotID: 1, Code: "A02", VehicleClass: db.ClassCar, Reserved: true},
		&db.Space{ID: 3, LotID: 1, Code: "M01", VehicleClass: db.ClassMotorcycle},
	)
	e.drivers = newFakeDrivers()
	e.subs = newFakeSubscriptions()
	e.payments = newFakePayments()
	e.occupancies = newFakeOccupancies(e.spaces, e.drivers, e.payments)
	e.publisher = &fakePublisher{}
	e.gateway = &fakeGateway{}
	e.cache = cache.NewMemoryCache()

	access := NewAccess(e.lots, e.shifts)
	e.svc = NewOccupancyService(OccupancyDeps{
		Occupancies:   e.occupancies,
		Spaces:        e.spaces,
		Drivers:       e.drivers,
		Subscriptions: e.subs,
		Rates: &fakeRates{prices: map[string]decimal.Decimal{
			db.ServiceHour: dec("100"),
			db.ServiceDay:  dec("1000"),
			"wash":         dec("250"),
		}},
		Payments:  e.payments,
		Access:    access,
		Locker:    cache.NewLocalLocker(),
		Cache:     e.cache,
		Publisher: e.publisher,
		Gateway:   e.gateway,
	})
	e.svc.now = func() time.Time { return e.now }
	return e
}

func TestCheckInAssignsFirstFreeSpace(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	_ = e.cache.Set(ctx, dashboardKey(1), map[string]int{"stale": 1}, time.Minute)

	o, err := e.svc.CheckIn(ctx, attendant, 1, CheckInInput{Plate: "ab 123 cd", VehicleClass: "Car"})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if o.SpaceCode != "A01" || o.Plate != "AB123CD" {
		t.Errorf("got space %s plate %s, want A01 AB123CD", o.SpaceCode, o.Plate)
	}
	if len(o.Ticket) != 8 {
		t.Errorf("ticket %q should have 8 characters", o.Ticket)
	}
	if e.spaces.spaces[1].State != db.SpaceOccupied {
		t.Errorf("space state = %s, want occupied", e.spaces.spaces[1].State)
	}
	if got := e.publisher.types(); len(got) != 1 || got[0] != events.OccupancyStarted {
		t.Errorf("events = %v", got)
	}
	var stale map[string]int
	if hit, _ := e.cache.Get(ctx, dashboardKey(1), &stale); hit {
		t.Error("dashboard cache was not invalidated")
	}
}

func TestCheckInRejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *parkingEnv)
		who   auth.Principal
		in    CheckInInput
		kind  apperrors.Kind
	}{
		{
			name: "unknown vehicle without class",
			who:  admin,
			in:   CheckInInput{Plate: "AB123CD"},
			kind: apperrors.KindInvalid,
		},
		{
			name: "attendant without shift",
			setup: func(e *parkingEnv) {
				now := e.now
				e.shifts.shifts[3].ClosedAt = &now
			},
			who:  attendant,
			in:   CheckInInput{Plate: "AB123CD", VehicleClass: "car"},
			kind: apperrors.KindForbidden,
		},
		{
			name:  "lot inactive",
			setup: func(e *parkingEnv) { e.lots.lots[1].Active = false },
			who:   admin,
			in:    CheckInInput{Plate: "AB123CD", VehicleClass: "car"},
			kind:  apperrors.KindConflict,
		},
		{
			name: "lot closed",
			setup: func(e *parkingEnv) {
				e.lots.lots[1].Open24h = false
				e.lots.lots[1].Schedule = []db.ScheduleEntry{{Weekday: time.Tuesday, Opens: 8 * 60, Closes: 12 * 60}}
			},
			who:  admin,
			in:   CheckInInput{Plate: "AB123CD", VehicleClass: "car"},
			kind: apperrors.KindConflict,
		},
		{
			name: "requested space reserved",
			who:  admin,
			in:   CheckInInput{Plate: "AB123CD", VehicleClass: "car", SpaceID: intRef(2)},
			kind: apperrors.KindConflict,
		},
		{
			name: "requested space of another class",
			who:  admin,
			in:   CheckInInput{Plate: "AB123CD", VehicleClass: "car", SpaceID: intRef(3)},
			kind: apperrors.KindInvalid,
		},
		{
			name:  "no free space",
			setup: func(e *parkingEnv) { e.spaces.spaces[1].State = db.SpaceOutOfService },
			who:   admin,
			in:    CheckInInput{Plate: "AB123CD", VehicleClass: "car"},
			kind:  apperrors.KindConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newParkingEnv(t)
			if tt.setup != nil {
				tt.setup(e)
			}
			_, err := e.svc.CheckIn(context.Background(), tt.who, 1, tt.in)
			if !apperrors.IsKind(err, tt.kind) {
				t.Fatalf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestCheckInTwiceConflicts(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	if _, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"}); err != nil {
		t.Fatal(err)
	}
	_, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD"})
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("second check-in err = %v, want conflict", err)
	}
}

func TestCheckInSubscriberUsesReservedSpace(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	_ = e.drivers.CreateVehicle(ctx, &db.Vehicle{Plate: "AB123CD", VehicleClass: db.ClassCar})
	e.subs.subs[9] = &db.Subscription{
		ID: 9, LotID: 1, SpaceID: 2, Status: db.SubscriptionActive, VehicleIDs: []int{1},
		StartsAt: e.now.AddDate(0, 0, -5), EndsAt: e.now.AddDate(0, 0, 25),
	}

	o, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD"})
	if err != nil {
		t.Fatal(err)
	}
	if o.SpaceCode != "A02" || o.SubscriptionID == nil || *o.SubscriptionID != 9 {
		t.Fatalf("got space %s subscription %v, want A02 and 9", o.SpaceCode, o.SubscriptionID)
	}

	e.now = e.now.Add(5 * time.Hour)
	res, err := e.svc.CheckOut(ctx, admin, CheckOutInput{Ticket: o.Ticket, Method: "cash"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Quote.Total.IsZero() || res.Payment != nil {
		t.Errorf("subscriber paid %s (payment %v), want nothing", res.Quote.Total, res.Payment)
	}
}

func TestCheckOutCashGoesToShift(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	o, err := e.svc.CheckIn(ctx, attendant, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.AddExtra(ctx, attendant, o.ID, "Wash"); err != nil {
		t.Fatalf("AddExtra: %v", err)
	}

	// 2h30 minus 10 minutes of tolerance bills three hours
	e.now = e.now.Add(150 * time.Minute)
	res, err := e.svc.CheckOut(ctx, attendant, CheckOutInput{Plate: "ab-123-cd", Method: "cash"})
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if res.Quote.Unit != db.ServiceHour || res.Quote.Count != 3 {
		t.Errorf("unit %s x%d, want hour x3", res.Quote.Unit, res.Quote.Count)
	}
	if !res.Quote.Total.Equal(dec("550")) {
		t.Errorf("total = %s, want 550", res.Quote.Total)
	}
	if res.Payment == nil || res.Payment.ShiftID == nil || *res.Payment.ShiftID != 3 {
		t.Fatalf("payment %+v not attached to shift 3", res.Payment)
	}
	if price := e.occupancies.lastClose.ExtraPrices[1]; !price.Equal(dec("250")) {
		t.Errorf("extra priced %s, want 250", price)
	}
	if e.spaces.spaces[1].State != db.SpaceFree {
		t.Errorf("space not freed")
	}
	types := e.publisher.types()
	if types[len(types)-1] != events.OccupancyFinished {
		t.Errorf("last event = %s", types[len(types)-1])
	}

	_, err = e.svc.CheckOut(ctx, attendant, CheckOutInput{Ticket: o.Ticket, Method: "cash"})
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Errorf("second checkout err = %v, want conflict", err)
	}
}

func TestCheckOutWithinToleranceIsFree(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	o, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"})
	if err != nil {
		t.Fatal(err)
	}
	e.now = e.now.Add(9 * time.Minute)
	res, err := e.svc.CheckOut(ctx, admin, CheckOutInput{Ticket: o.Ticket, Method: "cash"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Quote.Total.IsZero() || res.Payment != nil {
		t.Errorf("got total %s payment %v, want a free exit", res.Quote.Total, res.Payment)
	}
}

func TestCheckOutOnlineStartsCheckout(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	driver := e.drivers.addDriver(&db.Driver{FullName: "Ana", Email: "ana@example.com"})
	_ = e.drivers.CreateVehicle(ctx, &db.Vehicle{Plate: "AB123CD", VehicleClass: db.ClassCar, DriverID: &driver.ID})

	o, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD"})
	if err != nil {
		t.Fatal(err)
	}
	e.now = e.now.Add(30 * time.Hour)
	res, err := e.svc.CheckOut(ctx, admin, CheckOutInput{Ticket: o.Ticket, Method: "online"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Payment.Status != db.PaymentPending {
		t.Errorf("status = %s, want pending", res.Payment.Status)
	}
	if res.CheckoutURL == "" || len(e.gateway.checkouts) != 1 {
		t.Fatalf("no checkout created")
	}
	if req := e.gateway.checkouts[0]; req.Email != "ana@example.com" || !req.Amount.Equal(res.Quote.Total) {
		t.Errorf("checkout request = %+v", req)
	}
	if e.payments.pays[res.Payment.ID].StripeSessionID == "" {
		t.Error("session not stored on the payment")
	}
	last := e.publisher.events[len(e.publisher.events)-1]
	if last.Email != "ana@example.com" || last.Method != db.MethodOnline {
		t.Errorf("finished event = %+v", last)
	}
}

func TestCheckOutRejectsUnacceptedMethod(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	o, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.svc.CheckOut(ctx, admin, CheckOutInput{Ticket: o.Ticket, Method: "card"})
	if !apperrors.IsKind(err, apperrors.KindInvalid) {
		t.Fatalf("err = %v, want invalid", err)
	}
}

func TestQuoteAtGivenTime(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	o, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"})
	if err != nil {
		t.Fatal(err)
	}
	// 20 hours would be 2000 by the hour, the day price caps it
	at := e.now.Add(20*time.Hour + 10*time.Minute)
	q, err := e.svc.Quote(ctx, admin, o.ID, &at)
	if err != nil {
		t.Fatal(err)
	}
	if q.Unit != db.ServiceDay || !q.Total.Equal(dec("1000")) {
		t.Errorf("quote = %s %s, want day 1000", q.Unit, q.Total)
	}

	before := e.now.Add(-time.Hour)
	if _, err := e.svc.Quote(ctx, admin, o.ID, &before); !apperrors.IsKind(err, apperrors.KindInvalid) {
		t.Errorf("quote before entry err = %v", err)
	}
}

func TestAddExtraRejectsParkingServices(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	o, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"})
	if err != nil {
		t.Fatal(err)
	}
	for _, svc := range []string{"hour", "subscription_month", "polish"} {
		if _, err := e.svc.AddExtra(ctx, admin, o.ID, svc); !apperrors.IsKind(err, apperrors.KindInvalid) {
			t.Errorf("AddExtra(%s) err = %v, want invalid", svc, err)
		}
	}
}

func TestCheckOutHidesOtherLotsStays(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	o, err := e.svc.CheckIn(ctx, attendant, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"})
	if err != nil {
		t.Fatal(err)
	}
	outsider := auth.Principal{UserID: 8, Role: db.RoleAttendant}
	e.lots.lots[2] = &db.Lot{ID: 2, Name: "Norte", Active: true, Open24h: true, PaymentMethods: []string{db.MethodCash}}
	e.lots.staff[[2]int{2, outsider.UserID}] = true
	e.shifts.shifts[4] = &db.Shift{ID: 4, AttendantID: outsider.UserID, LotID: 2}

	for _, in := range []CheckOutInput{
		{Ticket: o.Ticket, Method: "cash"},
		{Plate: "AB123CD", Method: "cash"},
	} {
		_, err := e.svc.CheckOut(ctx, outsider, in)
		if !apperrors.IsKind(err, apperrors.KindNotFound) {
			t.Errorf("checkout %+v: err = %v, want not found", in, err)
		}
	}
	if e.occupancies.occ[o.ID].ExitedAt != nil {
		t.Fatal("stay was closed by a stranger")
	}

	// a closed stay at a foreign lot is not reported as a conflict either
	e.now = e.now.Add(time.Hour)
	if _, err := e.svc.CheckOut(ctx, attendant, CheckOutInput{Ticket: o.Ticket, Method: "cash"}); err != nil {
		t.Fatal(err)
	}
	_, err = e.svc.CheckOut(ctx, outsider, CheckOutInput{Ticket: o.Ticket, Method: "cash"})
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("closed stay: err = %v, want not found", err)
	}
}

// racingOccupancies lets another check-in take the picked space first.
type racingOccupancies struct {
	*fakeOccupancies
	raced int
}

func (r *racingOccupancies) Open(ctx context.Context, o *db.Occupancy, allowReserved bool) error {
	if r.raced == 0 {
		r.raced = o.SpaceID
		r.spaces.spaces[o.SpaceID].State = db.SpaceOccupied
	}
	return r.fakeOccupancies.Open(ctx, o, allowReserved)
}

func TestCheckInRetriesTakenSpace(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	e.spaces.spaces[4] = &db.Space{ID: 4, LotID: 1, Code: "A03", VehicleClass: db.ClassCar, State: db.SpaceFree}
	racing := &racingOccupancies{fakeOccupancies: e.occupancies}
	e.svc.occupancies = racing

	o, err := e.svc.CheckIn(ctx, attendant, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if racing.raced != 1 || o.SpaceCode != "A03" {
		t.Errorf("raced on %d, parked in %s, want a retry into A03", racing.raced, o.SpaceCode)
	}

	// a requested space is not swapped for another one
	e.spaces.spaces[1].State = db.SpaceFree
	racing.raced = 0
	_, err = e.svc.CheckIn(ctx, attendant, 1, CheckInInput{Plate: "AC456EF", VehicleClass: "car", SpaceID: intRef(1)})
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Errorf("requested space: err = %v, want conflict", err)
	}
}
