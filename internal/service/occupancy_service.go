package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/billing"
	"playas/internal/cache"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/events"
	"playas/internal/metrics"
	"playas/internal/payments"
	"playas/internal/repository"
	"playas/internal/utils"
)

const spaceLockTTL = 10 * time.Second

type CheckInInput struct {
	Plate        string
	SpaceID      *int
	VehicleClass string
}

type CheckOutInput struct {
	Ticket string
	Plate  string
	Method string
}

type CheckOutResult struct {
	Occupancy   *db.Occupancy
	Quote       billing.Quote
	Payment     *db.Payment
	CheckoutURL string
}

// ActiveStay is an occupancy still inside with what it would pay right now.
type ActiveStay struct {
	Occupancy      db.Occupancy
	ElapsedMinutes int
	Quote          *billing.Quote
}

type OccupancyService struct {
	occupancies   repository.OccupancyRepository
	spaces        repository.SpaceRepository
	drivers       repository.DriverRepository
	subscriptions repository.SubscriptionRepository
	rates         repository.RateRepository
	payments      repository.PaymentRepository
	access        *Access
	locker        cache.Locker
	cache         cache.Cache
	publisher     events.Publisher
	gateway       payments.Gateway
	loc           *time.Location
	now           func() time.Time
}

type OccupancyDeps struct {
	Occupancies   repository.OccupancyRepository
	Spaces        repository.SpaceRepository
	Drivers       repository.DriverRepository
	Subscriptions repository.SubscriptionRepository
	Rates         repository.RateRepository
	Payments      repository.PaymentRepository
	Access        *Access
	Locker        cache.Locker
	Cache         cache.Cache
	Publisher     events.Publisher
	Gateway       payments.Gateway
	Location      *time.Location
}

func NewOccupancyService(d OccupancyDeps) *OccupancyService {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &OccupancyService{
		occupancies:   d.Occupancies,
		spaces:        d.Spaces,
		drivers:       d.Drivers,
		subscriptions: d.Subscriptions,
		rates:         d.Rates,
		payments:      d.Payments,
		access:        d.Access,
		locker:        d.Locker,
		cache:         d.Cache,
		publisher:     d.Publisher,
		gateway:       d.Gateway,
		loc:           loc,
		now:           time.Now,
	}
}

func newTicket() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// CheckIn parks a vehicle. A subscriber goes to its reserved space; everyone
// else gets the requested space or the first free one of the vehicle class.
func (s *OccupancyService) CheckIn(ctx context.Context, p auth.Principal, lotID int, in CheckInInput) (*db.Occupancy, error) {
	lot, _, err := s.access.Operate(ctx, p, lotID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !lot.Active {
		return nil, apperrors.Conflict("occupancies.check_in", "lot is not active")
	}
	if !IsOpen(lot, now, s.loc) {
		return nil, apperrors.Conflict("occupancies.check_in", "lot is closed")
	}

	vehicle, err := s.vehicleFor(ctx, in)
	if err != nil {
		return nil, err
	}
	inside, err := s.occupancies.FindActiveByPlate(ctx, vehicle.Plate)
	if err != nil {
		return nil, err
	}
	if inside != nil {
		return nil, apperrors.Conflict("occupancies.check_in",
			fmt.Sprintf("vehicle %s is already inside (ticket %s)", vehicle.Plate, inside.Ticket))
	}

	var o *db.Occupancy
	for attempt := 1; ; attempt++ {
		var retry bool
		o, retry, err = s.park(ctx, p, lotID, vehicle, in.SpaceID, now)
		// an auto-picked space can be taken between the lookup and the insert
		if err == nil || !retry || in.SpaceID != nil || attempt == parkAttempts {
			break
		}
		log.WithError(err).WithFields(log.Fields{"lot_id": lotID, "plate": vehicle.Plate}).
			Info("Picked space was taken, picking another")
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"lot_id": lotID,
		"ticket": o.Ticket,
		"plate":  o.Plate,
		"space":  o.SpaceCode,
	}).Info("Vehicle checked in")
	metrics.CheckIns.WithLabelValues(metrics.Lot(lotID)).Inc()

	e := events.New(events.OccupancyStarted, lotID)
	e.LotName = lot.Name
	e.OccupancyID = o.ID
	e.Ticket = o.Ticket
	e.VehiclePlate = o.Plate
	e.SpaceCode = o.SpaceCode
	e.EnteredAt = events.FormatTime(o.EnteredAt)
	events.Emit(ctx, s.publisher, e)
	invalidateDashboard(ctx, s.cache, lotID)
	return o, nil
}

const parkAttempts = 2

// park picks a space and opens the stay on it under the space lock. retry is
// set when the space was taken after it was picked.
func (s *OccupancyService) park(ctx context.Context, p auth.Principal, lotID int, vehicle *db.Vehicle, requested *int, now time.Time) (*db.Occupancy, bool, error) {
	space, sub, err := s.pickSpace(ctx, lotID, vehicle, requested, now)
	if err != nil {
		return nil, false, err
	}

	lock, err := s.locker.Obtain(ctx, fmt.Sprintf("space:%d", space.ID), spaceLockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrNotObtained) {
			return nil, true, apperrors.Conflict("occupancies.check_in", "space is being assigned, retry")
		}
		return nil, false, fmt.Errorf("occupancies.check_in lock: %w", err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			log.WithError(err).WithField("space_id", space.ID).Warn("Failed to release space lock")
		}
	}()

	o := &db.Occupancy{
		Ticket:       newTicket(),
		LotID:        lotID,
		SpaceID:      space.ID,
		VehicleID:    vehicle.ID,
		Plate:        vehicle.Plate,
		VehicleClass: vehicle.VehicleClass,
		EnteredAt:    now,
		OpenedBy:     p.UserID,
	}
	if sub != nil {
		o.SubscriptionID = &sub.ID
	}
	if err := s.occupancies.Open(ctx, o, sub != nil); err != nil {
		return nil, apperrors.IsKind(err, apperrors.KindConflict), err
	}
	return o, false, nil
}

// vehicleFor finds the vehicle by plate, registering it without owner when unknown.
func (s *OccupancyService) vehicleFor(ctx context.Context, in CheckInInput) (*db.Vehicle, error) {
	plate := utils.NormalizePlate(in.Plate)
	if !utils.ValidPlate(plate) {
		return nil, apperrors.Invalid("occupancies.check_in", fmt.Sprintf("invalid plate %q", in.Plate))
	}
	v, err := s.drivers.FindVehicleByPlate(ctx, plate)
	if err != nil || v != nil {
		return v, err
	}
	if in.VehicleClass == "" {
		return nil, apperrors.Invalid("occupancies.check_in", "vehicle class is required for unknown vehicles")
	}
	class, ok := utils.NormalizeVehicleClass(in.VehicleClass)
	if !ok {
		return nil, apperrors.Invalid("occupancies.check_in", fmt.Sprintf("unknown vehicle class %q", in.VehicleClass))
	}
	v = &db.Vehicle{Plate: plate, VehicleClass: class}
	if err := s.drivers.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *OccupancyService) pickSpace(ctx context.Context, lotID int, v *db.Vehicle, requested *int, now time.Time) (*db.Space, *db.Subscription, error) {
	sub, err := s.subscriptions.FindActiveForVehicle(ctx, v.ID, lotID, now)
	if err != nil {
		return nil, nil, err
	}
	if sub != nil {
		space, err := s.spaces.Get(ctx, sub.SpaceID)
		if err != nil {
			return nil, nil, err
		}
		if space.State == db.SpaceFree {
			return space, sub, nil
		}
		// another vehicle of the subscription is in the reserved space
		log.WithFields(log.Fields{"subscription_id": sub.ID, "plate": v.Plate}).
			Info("Reserved space taken, assigning a regular space")
	}

	if requested != nil {
		space, err := s.spaces.Get(ctx, *requested)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case space.LotID != lotID:
			return nil, nil, apperrors.Invalid("occupancies.check_in", "space belongs to another lot")
		case space.VehicleClass != v.VehicleClass:
			return nil, nil, apperrors.Invalid("occupancies.check_in",
				fmt.Sprintf("space %s is for %s, vehicle is %s", space.Code, space.VehicleClass, v.VehicleClass))
		case space.Reserved:
			return nil, nil, apperrors.Conflict("occupancies.check_in", fmt.Sprintf("space %s is reserved", space.Code))
		case space.State != db.SpaceFree:
			return nil, nil, apperrors.Conflict("occupancies.check_in", fmt.Sprintf("space %s is %s", space.Code, space.State))
		}
		return space, nil, nil
	}

	space, err := s.spaces.FindFree(ctx, lotID, v.VehicleClass)
	if err != nil {
		return nil, nil, err
	}
	if space == nil {
		return nil, nil, apperrors.Conflict("occupancies.check_in", fmt.Sprintf("no free %s space", v.VehicleClass))
	}
	return space, nil, nil
}

func (s *OccupancyService) AddExtra(ctx context.Context, p auth.Principal, occupancyID int, service string) (*db.OccupancyExtra, error) {
	o, err := s.occupancies.Get(ctx, occupancyID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.access.Operate(ctx, p, o.LotID); err != nil {
		return nil, err
	}
	service = strings.ToLower(strings.TrimSpace(service))
	if service == "" || billing.IsParkingService(service) || service == db.ServiceSubscriptionMonth {
		return nil, apperrors.Invalid("occupancies.add_extra", fmt.Sprintf("%q is not an extra service", service))
	}
	// the price is taken at checkout but the service has to exist now
	if _, err := s.rates.Current(ctx, o.LotID, service, o.VehicleClass, s.now()); err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.Invalid("occupancies.add_extra", fmt.Sprintf("lot has no %q rate for %s", service, o.VehicleClass))
		}
		return nil, err
	}
	return s.occupancies.AddExtra(ctx, occupancyID, service)
}

// Quote returns what the stay would cost if the vehicle left at at.
func (s *OccupancyService) Quote(ctx context.Context, p auth.Principal, occupancyID int, at *time.Time) (billing.Quote, error) {
	o, err := s.occupancies.Get(ctx, occupancyID)
	if err != nil {
		return billing.Quote{}, err
	}
	lot, err := s.access.View(ctx, p, o.LotID)
	if err != nil {
		return billing.Quote{}, err
	}
	when := s.now()
	if o.ExitedAt != nil {
		when = *o.ExitedAt
	}
	if at != nil {
		when = *at
	}
	if when.Before(o.EnteredAt) {
		return billing.Quote{}, apperrors.Invalid("occupancies.quote", "time is before the entry")
	}
	q, _, err := s.quote(ctx, lot, o, when)
	return q, err
}

func (s *OccupancyService) quote(ctx context.Context, lot *db.Lot, o *db.Occupancy, at time.Time) (billing.Quote, map[int]decimal.Decimal, error) {
	prices, err := s.rates.PricesAt(ctx, lot.ID, o.VehicleClass, at)
	if err != nil {
		return billing.Quote{}, nil, err
	}
	extraPrices := make(map[int]decimal.Decimal, len(o.Extras))
	stay := billing.Stay{
		EnteredAt:        o.EnteredAt,
		ExitedAt:         at,
		ToleranceMinutes: lot.ToleranceMinutes,
		Covered:          o.SubscriptionID != nil,
	}
	for _, e := range o.Extras {
		price, ok := prices[e.Service]
		if !ok {
			return billing.Quote{}, nil, apperrors.Conflict("occupancies.quote",
				fmt.Sprintf("no %q rate for %s", e.Service, o.VehicleClass))
		}
		extraPrices[e.ID] = price
		stay.Extras = append(stay.Extras, price)
	}
	q, err := billing.Compute(stay, billing.Prices(prices))
	if errors.Is(err, billing.ErrNoRate) {
		return q, nil, apperrors.Conflict("occupancies.quote", fmt.Sprintf("lot has no parking rate for %s", o.VehicleClass))
	}
	return q, extraPrices, err
}

func (s *OccupancyService) find(ctx context.Context, in CheckOutInput) (*db.Occupancy, error) {
	if ticket := strings.ToUpper(strings.TrimSpace(in.Ticket)); ticket != "" {
		return s.occupancies.GetByTicket(ctx, ticket)
	}
	plate := utils.NormalizePlate(in.Plate)
	if plate == "" {
		return nil, apperrors.Invalid("occupancies.check_out", "ticket or plate is required")
	}
	o, err := s.occupancies.FindActiveByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperrors.NotFound("occupancies.check_out", fmt.Sprintf("vehicle %s is not inside", plate))
	}
	return o, nil
}

// missingStay is the error find returns when nothing matches.
func missingStay(in CheckOutInput) error {
	if ticket := strings.ToUpper(strings.TrimSpace(in.Ticket)); ticket != "" {
		return apperrors.NotFound("occupancies.get_by_ticket", "ticket "+ticket+" not found")
	}
	return apperrors.NotFound("occupancies.check_out", fmt.Sprintf("vehicle %s is not inside", utils.NormalizePlate(in.Plate)))
}

// CheckOut closes the stay, frees the space and records the payment. Online
// payments stay pending until the Stripe webhook confirms them.
func (s *OccupancyService) CheckOut(ctx context.Context, p auth.Principal, in CheckOutInput) (*CheckOutResult, error) {
	o, err := s.find(ctx, in)
	if err != nil {
		return nil, err
	}
	// stays at lots the caller cannot see look missing
	if _, err := s.access.View(ctx, p, o.LotID); err != nil {
		if apperrors.IsKind(err, apperrors.KindForbidden) {
			return nil, missingStay(in)
		}
		return nil, err
	}
	if o.ExitedAt != nil {
		return nil, apperrors.Conflict("occupancies.check_out", "occupancy already closed")
	}
	lot, shift, err := s.access.Operate(ctx, p, o.LotID)
	if err != nil {
		return nil, err
	}

	method := strings.ToLower(strings.TrimSpace(in.Method))
	if !slices.Contains(lot.PaymentMethods, method) {
		return nil, apperrors.Invalid("occupancies.check_out", fmt.Sprintf("lot does not accept %q", in.Method))
	}
	if _, off := s.gateway.(payments.Disabled); off && method == db.MethodOnline {
		return nil, apperrors.Invalid("occupancies.check_out", payments.ErrNotConfigured.Error())
	}

	now := s.now()
	q, extraPrices, err := s.quote(ctx, lot, o, now)
	if err != nil {
		return nil, err
	}

	params := repository.CloseParams{
		OccupancyID: o.ID,
		ExitedAt:    now,
		Amount:      q.Total,
		ClosedBy:    p.UserID,
		ExtraPrices: extraPrices,
	}
	if q.Total.IsPositive() {
		params.Payment = &db.Payment{LotID: lot.ID, Amount: q.Total, Method: method}
		if shift != nil {
			params.Payment.ShiftID = &shift.ID
		}
	}
	closed, err := s.occupancies.Close(ctx, params)
	if err != nil {
		return nil, err
	}
	res := &CheckOutResult{Occupancy: closed, Quote: q, Payment: params.Payment}

	driver := s.driverOf(ctx, o.VehicleID)
	if res.Payment != nil && method == db.MethodOnline {
		res.CheckoutURL, err = s.startCheckout(ctx, res.Payment, lot, closed, driver)
		if err != nil {
			// the payment stays pending and can be retried from the payments API
			log.WithError(err).WithField("payment_id", res.Payment.ID).Error("Failed to create checkout session")
		}
	}

	log.WithFields(log.Fields{
		"lot_id": lot.ID,
		"ticket": closed.Ticket,
		"amount": q.Total.StringFixed(2),
		"method": method,
	}).Info("Vehicle checked out")
	metrics.CheckOuts.WithLabelValues(metrics.Lot(lot.ID), method).Inc()

	e := events.New(events.OccupancyFinished, lot.ID)
	e.LotName = lot.Name
	e.OccupancyID = closed.ID
	e.Ticket = closed.Ticket
	e.VehiclePlate = closed.Plate
	e.SpaceCode = closed.SpaceCode
	e.EnteredAt = events.FormatTime(closed.EnteredAt)
	e.ExitedAt = events.FormatTime(now)
	e.Amount = q.Total.StringFixed(2)
	e.Method = method
	if driver != nil {
		e.DriverName, e.Email, e.Phone = driver.FullName, driver.Email, driver.Phone
	}
	events.Emit(ctx, s.publisher, e)
	invalidateDashboard(ctx, s.cache, lot.ID)
	return res, nil
}

func (s *OccupancyService) startCheckout(ctx context.Context, pay *db.Payment, lot *db.Lot, o *db.Occupancy, driver *db.Driver) (string, error) {
	req := payments.CheckoutRequest{
		PaymentID:   pay.ID,
		Amount:      pay.Amount,
		Description: fmt.Sprintf("%s - ticket %s (%s)", lot.Name, o.Ticket, o.Plate),
	}
	if driver != nil {
		req.Email = driver.Email
	}
	co, err := s.gateway.CreateCheckout(ctx, req)
	if err != nil {
		return "", err
	}
	if err := s.payments.SetStripeSession(ctx, pay.ID, co.SessionID); err != nil {
		return "", err
	}
	pay.StripeSessionID = co.SessionID
	return co.URL, nil
}

// driverOf is best effort; a lookup failure only costs the receipt.
func (s *OccupancyService) driverOf(ctx context.Context, vehicleID int) *db.Driver {
	v, err := s.drivers.GetVehicle(ctx, vehicleID)
	if err != nil || v.DriverID == nil {
		return nil
	}
	d, err := s.drivers.GetDriver(ctx, *v.DriverID)
	if err != nil {
		log.WithError(err).WithField("driver_id", *v.DriverID).Warn("Failed to load driver for receipt")
		return nil
	}
	return d
}

func (s *OccupancyService) Active(ctx context.Context, p auth.Principal, lotID int) ([]ActiveStay, error) {
	lot, err := s.access.View(ctx, p, lotID)
	if err != nil {
		return nil, err
	}
	return s.activeStays(ctx, lot)
}

// activeStays attaches a running quote to every vehicle inside. A stay that
// cannot be priced is still listed, without quote.
func (s *OccupancyService) activeStays(ctx context.Context, lot *db.Lot) ([]ActiveStay, error) {
	list, err := s.occupancies.ListActive(ctx, lot.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]ActiveStay, 0, len(list))
	for _, o := range list {
		stay := ActiveStay{Occupancy: o, ElapsedMinutes: int(now.Sub(o.EnteredAt) / time.Minute)}
		q, _, err := s.quote(ctx, lot, &o, now)
		if err == nil {
			stay.Quote = &q
		} else if !apperrors.IsKind(err, apperrors.KindConflict) {
			return nil, err
		}
		out = append(out, stay)
	}
	return out, nil
}

type HistoryInput struct {
	From  *time.Time
	To    *time.Time
	Plate string
	Limit int
}

func (s *OccupancyService) History(ctx context.Context, p auth.Principal, lotID int, in HistoryInput) ([]db.Occupancy, error) {
	if _, err := s.access.View(ctx, p, lotID); err != nil {
		return nil, err
	}
	if in.From != nil && in.To != nil && !in.From.Before(*in.To) {
		return nil, apperrors.Invalid("occupancies.history", "from must be before to")
	}
	if in.Limit <= 0 || in.Limit > 1000 {
		in.Limit = 200
	}
	return s.occupancies.History(ctx, repository.HistoryFilter{
		LotID: lotID,
		From:  in.From,
		To:    in.To,
		Plate: utils.NormalizePlate(in.Plate),
		Limit: in.Limit,
	})
}

func (s *OccupancyService) Get(ctx context.Context, p auth.Principal, id int) (*db.Occupancy, error) {
	o, err := s.occupancies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.View(ctx, p, o.LotID); err != nil {
		return nil, err
	}
	return o, nil
}
