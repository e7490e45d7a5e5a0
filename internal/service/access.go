package service

import (
	"context"
	"fmt"
	"time"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
)

// Access answers who may see, manage or operate a lot.
type Access struct {
	lots   repository.LotRepository
	shifts repository.ShiftRepository
}

func NewAccess(lots repository.LotRepository, shifts repository.ShiftRepository) *Access {
	return &Access{lots: lots, shifts: shifts}
}

func ownsLot(p auth.Principal, lot *db.Lot) bool {
	return p.Role == db.RoleOwner && lot.OwnerID != nil && *lot.OwnerID == p.UserID
}

// Manage allows admins and the lot owner.
func (a *Access) Manage(ctx context.Context, p auth.Principal, lotID int) (*db.Lot, error) {
	lot, err := a.lots.Get(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if p.Role == db.RoleAdmin || ownsLot(p, lot) {
		return lot, nil
	}
	return nil, apperrors.Forbidden("lots.manage", fmt.Sprintf("not allowed to manage lot %d", lotID))
}

// View additionally allows the attendants assigned to the lot.
func (a *Access) View(ctx context.Context, p auth.Principal, lotID int) (*db.Lot, error) {
	lot, err := a.lots.Get(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if p.Role == db.RoleAdmin || ownsLot(p, lot) {
		return lot, nil
	}
	if p.Role == db.RoleAttendant {
		ok, err := a.lots.IsStaff(ctx, lotID, p.UserID)
		if err != nil {
			return nil, err
		}
		if ok {
			return lot, nil
		}
	}
	return nil, apperrors.Forbidden("lots.view", fmt.Sprintf("not allowed to view lot %d", lotID))
}

// Operate is required for check-in and check-out. Attendants need an open shift
// at this lot; the shift is returned so payments can be attached to it.
func (a *Access) Operate(ctx context.Context, p auth.Principal, lotID int) (*db.Lot, *db.Shift, error) {
	lot, err := a.View(ctx, p, lotID)
	if err != nil {
		return nil, nil, err
	}
	shift, err := a.shifts.FindOpen(ctx, p.UserID)
	if err != nil {
		return nil, nil, err
	}
	if shift != nil && shift.LotID != lotID {
		shift = nil
	}
	if p.Role == db.RoleAttendant && shift == nil {
		return nil, nil, apperrors.Forbidden("lots.operate", "open a shift at this lot first")
	}
	return lot, shift, nil
}

// VisibleLots lists the lots a staff member may see on the overview.
func (a *Access) VisibleLots(ctx context.Context, p auth.Principal) ([]db.Lot, error) {
	f := repository.LotFilter{}
	switch p.Role {
	case db.RoleAdmin:
	case db.RoleOwner:
		f.OwnerID = &p.UserID
	case db.RoleAttendant:
		f.StaffID = &p.UserID
	default:
		return nil, apperrors.Forbidden("lots.visible", "staff only")
	}
	return a.lots.List(ctx, f)
}

// IsOpen reports whether the lot accepts vehicles at t, read in loc.
// An entry whose close is before its open runs past midnight into the next day.
func IsOpen(lot *db.Lot, t time.Time, loc *time.Location) bool {
	if lot.Open24h {
		return true
	}
	if loc != nil {
		t = t.In(loc)
	}
	minute := t.Hour()*60 + t.Minute()
	yesterday := (t.Weekday() + 6) % 7
	for _, e := range lot.Schedule {
		switch {
		case e.Weekday == t.Weekday() && e.Opens <= e.Closes:
			if minute >= e.Opens && minute < e.Closes {
				return true
			}
		case e.Weekday == t.Weekday():
			if minute >= e.Opens {
				return true
			}
		case e.Weekday == yesterday && e.Closes < e.Opens:
			if minute < e.Closes {
				return true
			}
		}
	}
	return false
}
