package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
	"playas/internal/utils"
)

var serviceName = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)

type RateInput struct {
	Service      string
	VehicleClass string
	Price        decimal.Decimal
	ValidFrom    *time.Time
}

type RateService struct {
	rates  repository.RateRepository
	access *Access
	now    func() time.Time
}

func NewRateService(rates repository.RateRepository, access *Access) *RateService {
	return &RateService{rates: rates, access: access, now: time.Now}
}

// Create starts a new price. Without valid_from the price applies from now on.
func (s *RateService) Create(ctx context.Context, p auth.Principal, lotID int, in RateInput) (*db.Rate, error) {
	if _, err := s.access.Manage(ctx, p, lotID); err != nil {
		return nil, err
	}
	svc := strings.ToLower(strings.TrimSpace(in.Service))
	if !serviceName.MatchString(svc) {
		return nil, apperrors.Invalid("rates.create", fmt.Sprintf("invalid service %q", in.Service))
	}
	class, ok := utils.NormalizeVehicleClass(in.VehicleClass)
	if !ok {
		return nil, apperrors.Invalid("rates.create", fmt.Sprintf("unknown vehicle class %q", in.VehicleClass))
	}
	if in.Price.IsNegative() {
		return nil, apperrors.Invalid("rates.create", "price cannot be negative")
	}
	from := s.now()
	if in.ValidFrom != nil {
		from = *in.ValidFrom
	}
	r := &db.Rate{
		LotID:        lotID,
		Service:      svc,
		VehicleClass: class,
		Price:        in.Price.Round(2),
		ValidFrom:    from,
	}
	if err := s.rates.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns every rate, or only those valid at at when given.
func (s *RateService) List(ctx context.Context, lotID int, at *time.Time) ([]db.Rate, error) {
	return s.rates.List(ctx, lotID, at)
}

func (s *RateService) Current(ctx context.Context, lotID int, service, vehicleClass string, at time.Time) (*db.Rate, error) {
	class, ok := utils.NormalizeVehicleClass(vehicleClass)
	if !ok {
		return nil, apperrors.Invalid("rates.current", fmt.Sprintf("unknown vehicle class %q", vehicleClass))
	}
	return s.rates.Current(ctx, lotID, strings.ToLower(service), class, at)
}
