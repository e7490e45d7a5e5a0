package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
)

type ShiftService struct {
	shifts   repository.ShiftRepository
	payments repository.PaymentRepository
	access   *Access
	now      func() time.Time
}

func NewShiftService(shifts repository.ShiftRepository, payments repository.PaymentRepository, access *Access) *ShiftService {
	return &ShiftService{shifts: shifts, payments: payments, access: access, now: time.Now}
}

// Difference is declared minus expected cash, nil while the shift is open.
func Difference(sh *db.Shift) *decimal.Decimal {
	if sh.DeclaredCash == nil || sh.ExpectedCash == nil {
		return nil
	}
	d := sh.DeclaredCash.Sub(*sh.ExpectedCash)
	return &d
}

func (s *ShiftService) Open(ctx context.Context, p auth.Principal, lotID int, openingCash decimal.Decimal) (*db.Shift, error) {
	if _, err := s.access.View(ctx, p, lotID); err != nil {
		return nil, err
	}
	if openingCash.IsNegative() {
		return nil, apperrors.Invalid("shifts.open", "opening cash cannot be negative")
	}
	sh := &db.Shift{AttendantID: p.UserID, LotID: lotID, OpenedAt: s.now(), OpeningCash: openingCash}
	if err := s.shifts.Open(ctx, sh); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"shift_id": sh.ID, "lot_id": lotID, "attendant_id": p.UserID}).Info("Shift opened")
	return sh, nil
}

// Current returns the caller's open shift.
func (s *ShiftService) Current(ctx context.Context, p auth.Principal) (*db.Shift, error) {
	sh, err := s.shifts.FindOpen(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, apperrors.NotFound("shifts.current", "no open shift")
	}
	return sh, nil
}

// Close settles the cash box: expected is the opening cash plus cash taken during the shift.
func (s *ShiftService) Close(ctx context.Context, p auth.Principal, id int, declared decimal.Decimal) (*db.Shift, error) {
	sh, err := s.shifts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sh.AttendantID != p.UserID {
		if _, err := s.access.Manage(ctx, p, sh.LotID); err != nil {
			return nil, err
		}
	}
	if sh.ClosedAt != nil {
		return nil, apperrors.Conflict("shifts.close", "shift already closed")
	}
	if declared.IsNegative() {
		return nil, apperrors.Invalid("shifts.close", "declared cash cannot be negative")
	}
	cash, err := s.payments.CashTotalForShift(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := sh.OpeningCash.Add(cash)
	closed, err := s.shifts.Close(ctx, id, s.now(), declared, expected)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"shift_id":   id,
		"expected":   expected.StringFixed(2),
		"declared":   declared.StringFixed(2),
		"difference": declared.Sub(expected).StringFixed(2),
	}).Info("Shift closed")
	return closed, nil
}

func (s *ShiftService) List(ctx context.Context, p auth.Principal, lotID int, openOnly bool, from *time.Time) ([]db.Shift, error) {
	f := repository.ShiftFilter{LotID: &lotID, OpenOnly: openOnly, From: from}
	if _, err := s.access.Manage(ctx, p, lotID); err != nil {
		// attendants only see their own shifts
		if _, verr := s.access.View(ctx, p, lotID); verr != nil {
			return nil, err
		}
		f.AttendantID = &p.UserID
	}
	return s.shifts.List(ctx, f)
}
