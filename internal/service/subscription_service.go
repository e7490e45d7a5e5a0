package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/cache"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
)

const maxSubscriptionMonths = 12

type SubscriptionInput struct {
	DriverID   int
	SpaceID    int
	VehicleIDs []int
	StartsAt   *time.Time
	Months     int
	Method     string
}

type SubscriptionService struct {
	subscriptions repository.SubscriptionRepository
	spaces        repository.SpaceRepository
	drivers       repository.DriverRepository
	rates         repository.RateRepository
	access        *Access
	cache         cache.Cache
	now           func() time.Time
}

func NewSubscriptionService(subs repository.SubscriptionRepository, spaces repository.SpaceRepository,
	drivers repository.DriverRepository, rates repository.RateRepository, access *Access, c cache.Cache) *SubscriptionService {
	return &SubscriptionService{
		subscriptions: subs,
		spaces:        spaces,
		drivers:       drivers,
		rates:         rates,
		access:        access,
		cache:         c,
		now:           time.Now,
	}
}

// subscriptionMethod checks the lot takes the method. Subscriptions are paid at the desk.
func subscriptionMethod(op string, lot *db.Lot, method string) (string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == db.MethodOnline {
		return "", apperrors.Invalid(op, "subscriptions cannot be paid online")
	}
	if !slices.Contains(lot.PaymentMethods, method) {
		return "", apperrors.Invalid(op, fmt.Sprintf("lot does not accept %q", method))
	}
	return method, nil
}

func (s *SubscriptionService) Create(ctx context.Context, p auth.Principal, lotID int, in SubscriptionInput) (*db.Subscription, error) {
	const op = "subscriptions.create"
	lot, shift, err := s.access.Operate(ctx, p, lotID)
	if err != nil {
		return nil, err
	}
	if in.Months == 0 {
		in.Months = 1
	}
	if in.Months < 0 || in.Months > maxSubscriptionMonths {
		return nil, apperrors.Invalid(op, fmt.Sprintf("months must be between 1 and %d", maxSubscriptionMonths))
	}
	if len(in.VehicleIDs) == 0 {
		return nil, apperrors.Invalid(op, "at least one vehicle is required")
	}
	method, err := subscriptionMethod(op, lot, in.Method)
	if err != nil {
		return nil, err
	}

	if _, err := s.drivers.GetDriver(ctx, in.DriverID); err != nil {
		return nil, err
	}
	space, err := s.spaces.Get(ctx, in.SpaceID)
	if err != nil {
		return nil, err
	}
	if space.LotID != lotID {
		return nil, apperrors.Invalid(op, "space belongs to another lot")
	}
	if space.State == db.SpaceOutOfService {
		return nil, apperrors.Conflict(op, fmt.Sprintf("space %s is out of service", space.Code))
	}
	for _, vid := range in.VehicleIDs {
		v, err := s.drivers.GetVehicle(ctx, vid)
		if err != nil {
			return nil, err
		}
		if v.DriverID == nil || *v.DriverID != in.DriverID {
			return nil, apperrors.Invalid(op, fmt.Sprintf("vehicle %s does not belong to the driver", v.Plate))
		}
		if v.VehicleClass != space.VehicleClass {
			return nil, apperrors.Invalid(op,
				fmt.Sprintf("vehicle %s is %s, space %s is for %s", v.Plate, v.VehicleClass, space.Code, space.VehicleClass))
		}
	}

	starts := s.now()
	if in.StartsAt != nil {
		starts = *in.StartsAt
	}
	rate, err := s.rates.Current(ctx, lotID, db.ServiceSubscriptionMonth, space.VehicleClass, starts)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.Conflict(op, fmt.Sprintf("lot has no subscription rate for %s", space.VehicleClass))
		}
		return nil, err
	}

	sub := &db.Subscription{
		DriverID:     in.DriverID,
		LotID:        lotID,
		SpaceID:      space.ID,
		StartsAt:     starts,
		EndsAt:       starts.AddDate(0, in.Months, 0),
		MonthlyPrice: rate.Price,
		VehicleIDs:   in.VehicleIDs,
	}
	first := &db.Payment{
		LotID:  lotID,
		Amount: rate.Price.Mul(decimal.NewFromInt(int64(in.Months))),
		Method: method,
	}
	if shift != nil {
		first.ShiftID = &shift.ID
	}
	if err := s.subscriptions.Create(ctx, sub, first); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"subscription_id": sub.ID,
		"lot_id":          lotID,
		"space":           space.Code,
		"ends_at":         sub.EndsAt,
	}).Info("Subscription created")
	invalidateDashboard(ctx, s.cache, lotID)
	return sub, nil
}

// Renew extends an active subscription at its monthly price.
func (s *SubscriptionService) Renew(ctx context.Context, p auth.Principal, id, months int, method string) (*db.Subscription, error) {
	const op = "subscriptions.renew"
	sub, err := s.subscriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lot, shift, err := s.access.Operate(ctx, p, sub.LotID)
	if err != nil {
		return nil, err
	}
	if months <= 0 || months > maxSubscriptionMonths {
		return nil, apperrors.Invalid(op, fmt.Sprintf("months must be between 1 and %d", maxSubscriptionMonths))
	}
	method, err = subscriptionMethod(op, lot, method)
	if err != nil {
		return nil, err
	}
	pay := &db.Payment{
		LotID:  sub.LotID,
		Amount: sub.MonthlyPrice.Mul(decimal.NewFromInt(int64(months))),
		Method: method,
	}
	if shift != nil {
		pay.ShiftID = &shift.ID
	}
	return s.subscriptions.Extend(ctx, id, sub.EndsAt.AddDate(0, months, 0), pay)
}

func (s *SubscriptionService) Cancel(ctx context.Context, p auth.Principal, id int) (*db.Subscription, error) {
	sub, err := s.subscriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Manage(ctx, p, sub.LotID); err != nil {
		return nil, err
	}
	cancelled, err := s.subscriptions.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	invalidateDashboard(ctx, s.cache, sub.LotID)
	return cancelled, nil
}

func (s *SubscriptionService) Get(ctx context.Context, p auth.Principal, id int) (*db.Subscription, error) {
	sub, err := s.subscriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role == db.RoleDriver {
		d, err := s.drivers.GetDriverByUser(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		if d.ID != sub.DriverID {
			return nil, apperrors.Forbidden("subscriptions.get", "not your subscription")
		}
		return sub, nil
	}
	if _, err := s.access.View(ctx, p, sub.LotID); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) List(ctx context.Context, p auth.Principal, lotID int, status string) ([]db.Subscription, error) {
	if _, err := s.access.View(ctx, p, lotID); err != nil {
		return nil, err
	}
	switch status {
	case "", db.SubscriptionActive, db.SubscriptionExpired, db.SubscriptionCancelled:
	default:
		return nil, apperrors.Invalid("subscriptions.list", fmt.Sprintf("unknown status %q", status))
	}
	return s.subscriptions.List(ctx, repository.SubscriptionFilter{LotID: &lotID, Status: status})
}

// Mine lists the subscriptions of the calling driver across lots.
func (s *SubscriptionService) Mine(ctx context.Context, p auth.Principal) ([]db.Subscription, error) {
	if p.Role != db.RoleDriver {
		return nil, apperrors.Forbidden("subscriptions.mine", "drivers only")
	}
	d, err := s.drivers.GetDriverByUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return s.subscriptions.List(ctx, repository.SubscriptionFilter{DriverID: &d.ID})
}
