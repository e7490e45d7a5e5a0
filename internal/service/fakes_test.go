package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/events"
	"playas/internal/payments"
	"playas/internal/repository"
)

// The fakes embed the repository interface so that only the methods a test
// reaches need a body; anything else panics on the nil embedded value.

type fakeLots struct {
	repository.LotRepository
	lots  map[int]*db.Lot
	staff map[[2]int]bool
}

func newFakeLots(lots ...*db.Lot) *fakeLots {
	f := &fakeLots{lots: map[int]*db.Lot{}, staff: map[[2]int]bool{}}
	for _, l := range lots {
		f.lots[l.ID] = l
	}
	return f
}

func (f *fakeLots) Get(_ context.Context, id int) (*db.Lot, error) {
	l, ok := f.lots[id]
	if !ok {
		return nil, apperrors.NotFound("lots.get", fmt.Sprintf("lot %d", id))
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLots) IsStaff(_ context.Context, lotID, userID int) (bool, error) {
	return f.staff[[2]int{lotID, userID}], nil
}

func (f *fakeLots) List(_ context.Context, filter repository.LotFilter) ([]db.Lot, error) {
	var out []db.Lot
	for id := 1; id <= len(f.lots); id++ {
		l, ok := f.lots[id]
		if !ok {
			continue
		}
		if filter.OwnerID != nil && (l.OwnerID == nil || *l.OwnerID != *filter.OwnerID) {
			continue
		}
		if filter.StaffID != nil && !f.staff[[2]int{l.ID, *filter.StaffID}] {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

type fakeShifts struct {
	repository.ShiftRepository
	shifts map[int]*db.Shift
}

func newFakeShifts(shifts ...*db.Shift) *fakeShifts {
	f := &fakeShifts{shifts: map[int]*db.Shift{}}
	for _, s := range shifts {
		f.shifts[s.ID] = s
	}
	return f
}

func (f *fakeShifts) FindOpen(_ context.Context, attendantID int) (*db.Shift, error) {
	for _, s := range f.shifts {
		if s.AttendantID == attendantID && s.ClosedAt == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeShifts) Open(ctx context.Context, s *db.Shift) error {
	if open, _ := f.FindOpen(ctx, s.AttendantID); open != nil {
		return apperrors.Conflict("shifts.open", "attendant already has an open shift")
	}
	s.ID = len(f.shifts) + 1
	cp := *s
	f.shifts[s.ID] = &cp
	return nil
}

func (f *fakeShifts) Get(_ context.Context, id int) (*db.Shift, error) {
	s, ok := f.shifts[id]
	if !ok {
		return nil, apperrors.NotFound("shifts.get", fmt.Sprintf("shift %d", id))
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShifts) Close(_ context.Context, id int, at time.Time, declared, expected decimal.Decimal) (*db.Shift, error) {
	s := f.shifts[id]
	s.ClosedAt, s.DeclaredCash, s.ExpectedCash = &at, &declared, &expected
	cp := *s
	return &cp, nil
}

func (f *fakeShifts) List(_ context.Context, filter repository.ShiftFilter) ([]db.Shift, error) {
	var out []db.Shift
	for _, s := range f.shifts {
		if filter.LotID != nil && s.LotID != *filter.LotID {
			continue
		}
		if filter.OpenOnly && s.ClosedAt != nil {
			continue
		}
		if filter.AttendantID != nil && s.AttendantID != *filter.AttendantID {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

type fakeSpaces struct {
	repository.SpaceRepository
	spaces map[int]*db.Space
}

func newFakeSpaces(spaces ...*db.Space) *fakeSpaces {
	f := &fakeSpaces{spaces: map[int]*db.Space{}}
	for _, s := range spaces {
		if s.State == "" {
			s.State = db.SpaceFree
		}
		f.spaces[s.ID] = s
	}
	return f
}

func (f *fakeSpaces) Get(_ context.Context, id int) (*db.Space, error) {
	s, ok := f.spaces[id]
	if !ok {
		return nil, apperrors.NotFound("spaces.get", fmt.Sprintf("space %d", id))
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSpaces) FindFree(_ context.Context, lotID int, class string) (*db.Space, error) {
	for id := 1; id <= len(f.spaces); id++ {
		s, ok := f.spaces[id]
		if ok && s.LotID == lotID && s.VehicleClass == class && s.State == db.SpaceFree && !s.Reserved {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeDrivers struct {
	repository.DriverRepository
	drivers  map[int]*db.Driver
	vehicles map[int]*db.Vehicle
}

func newFakeDrivers() *fakeDrivers {
	return &fakeDrivers{drivers: map[int]*db.Driver{}, vehicles: map[int]*db.Vehicle{}}
}

func (f *fakeDrivers) addDriver(d *db.Driver) *db.Driver {
	d.ID = len(f.drivers) + 1
	f.drivers[d.ID] = d
	return d
}

func (f *fakeDrivers) GetDriver(_ context.Context, id int) (*db.Driver, error) {
	d, ok := f.drivers[id]
	if !ok {
		return nil, apperrors.NotFound("drivers.get", fmt.Sprintf("driver %d", id))
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDrivers) GetDriverByUser(_ context.Context, userID int) (*db.Driver, error) {
	for _, d := range f.drivers {
		if d.UserID != nil && *d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("drivers.get_by_user", "driver profile")
}

func (f *fakeDrivers) CreateVehicle(_ context.Context, v *db.Vehicle) error {
	for _, ex := range f.vehicles {
		if ex.Plate == v.Plate {
			return apperrors.Conflict("vehicles.create", "plate already registered")
		}
	}
	v.ID = len(f.vehicles) + 1
	cp := *v
	f.vehicles[v.ID] = &cp
	return nil
}

func (f *fakeDrivers) GetVehicle(_ context.Context, id int) (*db.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok {
		return nil, apperrors.NotFound("vehicles.get", fmt.Sprintf("vehicle %d", id))
	}
	cp := *v
	return &cp, nil
}

func (f *fakeDrivers) FindVehicleByPlate(_ context.Context, plate string) (*db.Vehicle, error) {
	for _, v := range f.vehicles {
		if v.Plate == plate {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDrivers) ClaimVehicle(_ context.Context, v *db.Vehicle) error {
	ex, ok := f.vehicles[v.ID]
	if !ok || ex.DriverID != nil {
		return apperrors.Conflict("vehicles.claim", "plate already registered")
	}
	ex.DriverID, ex.Brand, ex.Model, ex.Color = v.DriverID, v.Brand, v.Model, v.Color
	return nil
}

type fakeSubscriptions struct {
	repository.SubscriptionRepository
	subs    map[int]*db.Subscription
	created []*db.Payment
}

func newFakeSubscriptions(subs ...*db.Subscription) *fakeSubscriptions {
	f := &fakeSubscriptions{subs: map[int]*db.Subscription{}}
	for _, s := range subs {
		f.subs[s.ID] = s
	}
	return f
}

func (f *fakeSubscriptions) FindActiveForVehicle(_ context.Context, vehicleID, lotID int, at time.Time) (*db.Subscription, error) {
	for _, s := range f.subs {
		if s.LotID != lotID || s.Status != db.SubscriptionActive || at.Before(s.StartsAt) || !at.Before(s.EndsAt) {
			continue
		}
		for _, vid := range s.VehicleIDs {
			if vid == vehicleID {
				cp := *s
				return &cp, nil
			}
		}
	}
	return nil, nil
}

// overlaps mirrors the repository check on active subscriptions of one space.
func (f *fakeSubscriptions) overlaps(spaceID, exceptID int, from, to time.Time) bool {
	for _, s := range f.subs {
		if s.ID != exceptID && s.SpaceID == spaceID && s.Status == db.SubscriptionActive &&
			s.StartsAt.Before(to) && s.EndsAt.After(from) {
			return true
		}
	}
	return false
}

func (f *fakeSubscriptions) Create(_ context.Context, s *db.Subscription, first *db.Payment) error {
	if f.overlaps(s.SpaceID, 0, s.StartsAt, s.EndsAt) {
		return apperrors.Conflict("subscriptions.create", "space already reserved for that period")
	}
	s.ID = len(f.subs) + 1
	s.Status = db.SubscriptionActive
	cp := *s
	f.subs[s.ID] = &cp
	if first != nil {
		first.SubscriptionID = &s.ID
		f.created = append(f.created, first)
	}
	return nil
}

func (f *fakeSubscriptions) Get(_ context.Context, id int) (*db.Subscription, error) {
	s, ok := f.subs[id]
	if !ok {
		return nil, apperrors.NotFound("subscriptions.get", fmt.Sprintf("subscription %d", id))
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubscriptions) Extend(ctx context.Context, id int, endsAt time.Time, payment *db.Payment) (*db.Subscription, error) {
	s, ok := f.subs[id]
	if !ok || s.Status != db.SubscriptionActive {
		return nil, apperrors.Conflict("subscriptions.extend", "only active subscriptions can be renewed")
	}
	if f.overlaps(s.SpaceID, id, s.EndsAt, endsAt) {
		return nil, apperrors.Conflict("subscriptions.extend", "space already reserved for the renewed period")
	}
	s.EndsAt, s.WarnedAt = endsAt, nil
	if payment != nil {
		payment.SubscriptionID = &id
		f.created = append(f.created, payment)
	}
	return f.Get(ctx, id)
}

type fakeRates struct {
	repository.RateRepository
	prices map[string]decimal.Decimal
}

func (f *fakeRates) PricesAt(context.Context, int, string, time.Time) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRates) Current(_ context.Context, lotID int, service, class string, _ time.Time) (*db.Rate, error) {
	p, ok := f.prices[service]
	if !ok {
		return nil, apperrors.NotFound("rates.current", "no rate for "+service)
	}
	return &db.Rate{LotID: lotID, Service: service, VehicleClass: class, Price: p}, nil
}

type fakeOccupancies struct {
	repository.OccupancyRepository
	spaces    *fakeSpaces
	vehicles  *fakeDrivers
	occ       map[int]*db.Occupancy
	lastClose repository.CloseParams
	payments  *fakePayments
}

func newFakeOccupancies(spaces *fakeSpaces, vehicles *fakeDrivers, pays *fakePayments) *fakeOccupancies {
	return &fakeOccupancies{spaces: spaces, vehicles: vehicles, occ: map[int]*db.Occupancy{}, payments: pays}
}

func (f *fakeOccupancies) Open(_ context.Context, o *db.Occupancy, allowReserved bool) error {
	sp := f.spaces.spaces[o.SpaceID]
	if sp == nil || sp.LotID != o.LotID || sp.State != db.SpaceFree || (sp.Reserved && !allowReserved) {
		return apperrors.Conflict("occupancies.open", "space is not available")
	}
	sp.State = db.SpaceOccupied
	o.SpaceCode = sp.Code
	o.ID = len(f.occ) + 1
	cp := *o
	f.occ[o.ID] = &cp
	return nil
}

func (f *fakeOccupancies) Get(_ context.Context, id int) (*db.Occupancy, error) {
	o, ok := f.occ[id]
	if !ok {
		return nil, apperrors.NotFound("occupancies.get", fmt.Sprintf("occupancy %d", id))
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOccupancies) GetByTicket(ctx context.Context, ticket string) (*db.Occupancy, error) {
	for _, o := range f.occ {
		if o.Ticket == ticket {
			return f.Get(ctx, o.ID)
		}
	}
	return nil, apperrors.NotFound("occupancies.get_by_ticket", "ticket "+ticket)
}

func (f *fakeOccupancies) FindActiveByPlate(ctx context.Context, plate string) (*db.Occupancy, error) {
	for _, o := range f.occ {
		if o.Plate == plate && o.ExitedAt == nil {
			return f.Get(ctx, o.ID)
		}
	}
	return nil, nil
}

func (f *fakeOccupancies) AddExtra(_ context.Context, id int, service string) (*db.OccupancyExtra, error) {
	o := f.occ[id]
	if o.ExitedAt != nil {
		return nil, apperrors.Conflict("occupancies.add_extra", "occupancy is closed")
	}
	e := db.OccupancyExtra{ID: len(o.Extras) + 1, OccupancyID: id, Service: service}
	o.Extras = append(o.Extras, e)
	return &e, nil
}

func (f *fakeOccupancies) Close(ctx context.Context, p repository.CloseParams) (*db.Occupancy, error) {
	o := f.occ[p.OccupancyID]
	if o.ExitedAt != nil {
		return nil, apperrors.Conflict("occupancies.close", "occupancy already closed")
	}
	f.lastClose = p
	o.ExitedAt, o.Amount, o.ClosedBy = &p.ExitedAt, &p.Amount, &p.ClosedBy
	f.spaces.spaces[o.SpaceID].State = db.SpaceFree
	if p.Payment != nil {
		p.Payment.OccupancyID = &p.OccupancyID
		if err := f.payments.Create(ctx, p.Payment); err != nil {
			return nil, err
		}
	}
	return f.Get(ctx, o.ID)
}

func (f *fakeOccupancies) ListActive(_ context.Context, lotID int) ([]db.Occupancy, error) {
	var out []db.Occupancy
	for id := 1; id <= len(f.occ); id++ {
		if o, ok := f.occ[id]; ok && o.LotID == lotID && o.ExitedAt == nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

type fakePayments struct {
	repository.PaymentRepository
	pays map[int]*db.Payment
}

func newFakePayments() *fakePayments {
	return &fakePayments{pays: map[int]*db.Payment{}}
}

func (f *fakePayments) Create(_ context.Context, p *db.Payment) error {
	if p.Status == "" {
		p.Status = db.PaymentPaid
		if p.Method == db.MethodOnline {
			p.Status = db.PaymentPending
		}
	}
	p.ID = len(f.pays) + 1
	cp := *p
	f.pays[p.ID] = &cp
	return nil
}

func (f *fakePayments) Get(_ context.Context, id int) (*db.Payment, error) {
	p, ok := f.pays[id]
	if !ok {
		return nil, apperrors.NotFound("payments.get", fmt.Sprintf("payment %d", id))
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) SetStripeSession(_ context.Context, id int, sessionID string) error {
	f.pays[id].StripeSessionID = sessionID
	return nil
}

func (f *fakePayments) MarkPaidBySession(_ context.Context, sessionID, intent string, at time.Time) (*db.Payment, error) {
	for _, p := range f.pays {
		if p.StripeSessionID == sessionID {
			if p.Status == db.PaymentPending {
				p.Status, p.PaymentIntentID, p.PaidAt = db.PaymentPaid, intent, &at
			}
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("payments.mark_paid", "payment for session "+sessionID)
}

func (f *fakePayments) MarkRefunded(_ context.Context, id int) (*db.Payment, error) {
	p := f.pays[id]
	switch p.Status {
	case db.PaymentPaid:
		p.Status = db.PaymentRefunded
	case db.PaymentRefunded:
	default:
		return nil, apperrors.Conflict("payments.mark_refunded", "only paid payments can be refunded")
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) GetByPaymentIntent(_ context.Context, intent string) (*db.Payment, error) {
	for _, p := range f.pays {
		if p.PaymentIntentID == intent {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("payments.get_by_payment_intent", intent)
}

func (f *fakePayments) CashTotalForShift(_ context.Context, shiftID int) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range f.pays {
		if p.ShiftID != nil && *p.ShiftID == shiftID && p.Method == db.MethodCash && p.Status == db.PaymentPaid {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeGateway struct {
	checkouts []payments.CheckoutRequest
	refunds   []string
	event     payments.WebhookEvent
	parseErr  error
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (payments.Checkout, error) {
	g.checkouts = append(g.checkouts, req)
	id := fmt.Sprintf("cs_test_%d", req.PaymentID)
	return payments.Checkout{SessionID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *fakeGateway) Refund(_ context.Context, intent string) error {
	g.refunds = append(g.refunds, intent)
	return nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (payments.WebhookEvent, error) {
	return g.event, g.parseErr
}

type fakeStats struct {
	repository.StatsRepository
	counts  []repository.SpaceCount
	revenue map[string]decimal.Decimal
}

func (f *fakeStats) SpaceCounts(context.Context, int) ([]repository.SpaceCount, error) {
	return f.counts, nil
}

func (f *fakeStats) RevenueByMethod(context.Context, int, time.Time, time.Time) (map[string]decimal.Decimal, error) {
	return f.revenue, nil
}

type fakeRatings struct {
	repository.RatingRepository
	ratings map[[2]int]*db.Rating
}

func (f *fakeRatings) Upsert(_ context.Context, r *db.Rating) (repository.RatingAggregate, error) {
	f.ratings[[2]int{r.DriverID, r.LotID}] = r
	return f.aggregate(r.LotID), nil
}

func (f *fakeRatings) Delete(_ context.Context, driverID, lotID int) (repository.RatingAggregate, error) {
	key := [2]int{driverID, lotID}
	if _, ok := f.ratings[key]; !ok {
		return repository.RatingAggregate{}, apperrors.NotFound("ratings.delete", "rating")
	}
	delete(f.ratings, key)
	return f.aggregate(lotID), nil
}

func (f *fakeRatings) aggregate(lotID int) repository.RatingAggregate {
	agg := repository.RatingAggregate{LotID: lotID, Avg: decimal.Zero}
	sum := 0
	for _, r := range f.ratings {
		if r.LotID == lotID {
			sum += r.Stars
			agg.Count++
		}
	}
	if agg.Count > 0 {
		agg.Avg = decimal.NewFromInt(int64(sum)).DivRound(decimal.NewFromInt(int64(agg.Count)), 2)
	}
	return agg
}

type fakeJobs struct {
	repository.JobRepository
	expire []db.Subscription
	warn   []repository.ExpiringSubscription
	warned []int
}

func (f *fakeJobs) ExpireSubscriptions(context.Context, time.Time) ([]db.Subscription, error) {
	return f.expire, nil
}

func (f *fakeJobs) SubscriptionsToWarn(context.Context, time.Time, time.Time) ([]repository.ExpiringSubscription, error) {
	return f.warn, nil
}

func (f *fakeJobs) MarkWarned(_ context.Context, ids []int, _ time.Time) error {
	f.warned = append(f.warned, ids...)
	return nil
}

func intRef(v int) *int {
	return &v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
