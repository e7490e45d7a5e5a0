package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
)

type LotInput struct {
	Name             string
	Address          string
	Latitude         float64
	Longitude        float64
	OwnerID          *int
	ToleranceMinutes int
	PaymentMethods   []string
}

type LotService struct {
	lots   repository.LotRepository
	users  repository.UserRepository
	access *Access
}

func NewLotService(lots repository.LotRepository, users repository.UserRepository, access *Access) *LotService {
	return &LotService{lots: lots, users: users, access: access}
}

var paymentMethods = map[string]bool{
	db.MethodCash:     true,
	db.MethodCard:     true,
	db.MethodTransfer: true,
	db.MethodOnline:   true,
}

func validateMethods(op string, methods []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, m := range methods {
		m = strings.ToLower(strings.TrimSpace(m))
		if !paymentMethods[m] {
			return nil, apperrors.Invalid(op, fmt.Sprintf("unknown payment method %q", m))
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, apperrors.Invalid(op, "at least one payment method is required")
	}
	return out, nil
}

func (s *LotService) validate(ctx context.Context, op string, in *LotInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.Invalid(op, "name is required")
	}
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return apperrors.Invalid(op, "coordinates out of range")
	}
	if in.ToleranceMinutes < 0 || in.ToleranceMinutes > 120 {
		return apperrors.Invalid(op, "tolerance must be between 0 and 120 minutes")
	}
	if in.OwnerID != nil {
		u, err := s.users.GetByID(ctx, *in.OwnerID)
		if err != nil {
			return err
		}
		if u.Role != db.RoleOwner {
			return apperrors.Invalid(op, "owner_id must reference an owner")
		}
	}
	return nil
}

func (s *LotService) Create(ctx context.Context, p auth.Principal, in LotInput) (*db.Lot, error) {
	if p.Role != db.RoleAdmin {
		return nil, apperrors.Forbidden("lots.create", "admin only")
	}
	if err := s.validate(ctx, "lots.create", &in); err != nil {
		return nil, err
	}
	methods := []string{db.MethodCash}
	if len(in.PaymentMethods) > 0 {
		var err error
		if methods, err = validateMethods("lots.create", in.PaymentMethods); err != nil {
			return nil, err
		}
	}
	lot := &db.Lot{
		Name:             in.Name,
		Address:          in.Address,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		OwnerID:          in.OwnerID,
		ToleranceMinutes: in.ToleranceMinutes,
		PaymentMethods:   methods,
	}
	if err := s.lots.Create(ctx, lot); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"lot_id": lot.ID, "name": lot.Name}).Info("lot created")
	return lot, nil
}

func (s *LotService) Get(ctx context.Context, id int) (*db.Lot, error) {
	return s.lots.Get(ctx, id)
}

// ListPublic lists active lots, optionally filtered by name.
func (s *LotService) ListPublic(ctx context.Context, query string) ([]db.Lot, error) {
	return s.lots.List(ctx, repository.LotFilter{Query: query, ActiveOnly: true})
}

func (s *LotService) ListMine(ctx context.Context, p auth.Principal) ([]db.Lot, error) {
	return s.access.VisibleLots(ctx, p)
}

func (s *LotService) Update(ctx context.Context, p auth.Principal, id int, in LotInput) (*db.Lot, error) {
	lot, err := s.access.Manage(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if p.Role != db.RoleAdmin {
		// owners cannot hand their lot over
		in.OwnerID = lot.OwnerID
	}
	if err := s.validate(ctx, "lots.update", &in); err != nil {
		return nil, err
	}
	lot.Name = in.Name
	lot.Address = in.Address
	lot.Latitude = in.Latitude
	lot.Longitude = in.Longitude
	lot.OwnerID = in.OwnerID
	lot.ToleranceMinutes = in.ToleranceMinutes
	if err := s.lots.Update(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

func (s *LotService) SetActive(ctx context.Context, p auth.Principal, id int, active bool) error {
	if p.Role != db.RoleAdmin {
		return apperrors.Forbidden("lots.set_active", "admin only")
	}
	return s.lots.SetActive(ctx, id, active)
}

func (s *LotService) SetSchedule(ctx context.Context, p auth.Principal, id int, open24h bool, entries []db.ScheduleEntry) (*db.Lot, error) {
	if _, err := s.access.Manage(ctx, p, id); err != nil {
		return nil, err
	}
	seen := map[time.Weekday]bool{}
	for _, e := range entries {
		if e.Weekday < time.Sunday || e.Weekday > time.Saturday {
			return nil, apperrors.Invalid("lots.set_schedule", "weekday must be between 0 (sunday) and 6")
		}
		if seen[e.Weekday] {
			return nil, apperrors.Invalid("lots.set_schedule", fmt.Sprintf("weekday %d listed twice", e.Weekday))
		}
		seen[e.Weekday] = true
		if e.Opens < 0 || e.Opens >= 1440 || e.Closes < 0 || e.Closes > 1440 || e.Opens == e.Closes {
			return nil, apperrors.Invalid("lots.set_schedule", "opening hours out of range")
		}
	}
	if err := s.lots.SetSchedule(ctx, id, open24h, entries); err != nil {
		return nil, err
	}
	return s.lots.Get(ctx, id)
}

func (s *LotService) SetPaymentMethods(ctx context.Context, p auth.Principal, id int, methods []string) ([]string, error) {
	if _, err := s.access.Manage(ctx, p, id); err != nil {
		return nil, err
	}
	clean, err := validateMethods("lots.set_payment_methods", methods)
	if err != nil {
		return nil, err
	}
	return clean, s.lots.SetPaymentMethods(ctx, id, clean)
}

func (s *LotService) AssignStaff(ctx context.Context, p auth.Principal, lotID, userID int) error {
	if _, err := s.access.Manage(ctx, p, lotID); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != db.RoleAttendant {
		return apperrors.Invalid("lots.assign_staff", "only attendants can be assigned")
	}
	return s.lots.AddStaff(ctx, lotID, userID)
}

func (s *LotService) RemoveStaff(ctx context.Context, p auth.Principal, lotID, userID int) error {
	if _, err := s.access.Manage(ctx, p, lotID); err != nil {
		return err
	}
	return s.lots.RemoveStaff(ctx, lotID, userID)
}

func (s *LotService) ListStaff(ctx context.Context, p auth.Principal, lotID int) ([]db.User, error) {
	if _, err := s.access.Manage(ctx, p, lotID); err != nil {
		return nil, err
	}
	return s.lots.ListStaff(ctx, lotID)
}
