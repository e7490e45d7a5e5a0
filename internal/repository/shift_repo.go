package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/db"
	apperrors "playas/internal/errors"
)

type ShiftFilter struct {
	LotID       *int
	AttendantID *int
	OpenOnly    bool
	From        *time.Time
}

type ShiftRepository interface {
	Open(ctx context.Context, s *db.Shift) error
	// FindOpen returns nil, nil when the attendant has no open shift.
	FindOpen(ctx context.Context, attendantID int) (*db.Shift, error)
	Get(ctx context.Context, id int) (*db.Shift, error)
	Close(ctx context.Context, id int, at time.Time, declared, expected decimal.Decimal) (*db.Shift, error)
	List(ctx context.Context, f ShiftFilter) ([]db.Shift, error)
}

type shiftRepository struct {
	db *sql.DB
}

func NewShiftRepository(conn *sql.DB) ShiftRepository {
	return &shiftRepository{db: conn}
}

const shiftColumns = `id, attendant_id, lot_id, opened_at, closed_at, opening_cash, declared_cash, expected_cash, auto_closed`

func scanShift(s scanner, sh *db.Shift) error {
	var closed sql.NullTime
	var declared, expected decimal.NullDecimal
	err := s.Scan(&sh.ID, &sh.AttendantID, &sh.LotID, &sh.OpenedAt, &closed, &sh.OpeningCash, &declared, &expected, &sh.AutoClosed)
	if err != nil {
		return err
	}
	sh.ClosedAt = timePtr(closed)
	sh.DeclaredCash = decimalPtr(declared)
	sh.ExpectedCash = decimalPtr(expected)
	return nil
}

func (r *shiftRepository) Open(ctx context.Context, s *db.Shift) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO shifts (attendant_id, lot_id, opened_at, opening_cash)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, s.AttendantID, s.LotID, s.OpenedAt, s.OpeningCash.String()).Scan(&s.ID)
	if err != nil {
		return writeErr(err, "shifts.open", "attendant already has an open shift")
	}
	return nil
}

func (r *shiftRepository) FindOpen(ctx context.Context, attendantID int) (*db.Shift, error) {
	var s db.Shift
	err := scanShift(r.db.QueryRowContext(ctx,
		"SELECT "+shiftColumns+" FROM shifts WHERE attendant_id = $1 AND closed_at IS NULL", attendantID), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("shifts.find_open: %w", err)
	}
	return &s, nil
}

func (r *shiftRepository) Get(ctx context.Context, id int) (*db.Shift, error) {
	var s db.Shift
	err := scanShift(r.db.QueryRowContext(ctx, "SELECT "+shiftColumns+" FROM shifts WHERE id = $1", id), &s)
	if err != nil {
		return nil, notFound(err, "shifts.get", fmt.Sprintf("shift %d", id))
	}
	return &s, nil
}

func (r *shiftRepository) Close(ctx context.Context, id int, at time.Time, declared, expected decimal.Decimal) (*db.Shift, error) {
	var s db.Shift
	err := scanShift(r.db.QueryRowContext(ctx, `
		UPDATE shifts SET closed_at = $2, declared_cash = $3, expected_cash = $4
		WHERE id = $1 AND closed_at IS NULL
		RETURNING `+shiftColumns, id, at, declared.String(), expected.String()), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, gerr := r.Get(ctx, id); gerr != nil {
				return nil, gerr
			}
			return nil, apperrors.Conflict("shifts.close", "shift already closed")
		}
		return nil, fmt.Errorf("shifts.close: %w", err)
	}
	return &s, nil
}

func (r *shiftRepository) List(ctx context.Context, f ShiftFilter) ([]db.Shift, error) {
	query := "SELECT " + shiftColumns + " FROM shifts WHERE 1=1"
	args := []any{}
	idx := 1

	if f.LotID != nil {
		query += " AND lot_id = $" + strconv.Itoa(idx)
		args = append(args, *f.LotID)
		idx++
	}
	if f.AttendantID != nil {
		query += " AND attendant_id = $" + strconv.Itoa(idx)
		args = append(args, *f.AttendantID)
		idx++
	}
	if f.From != nil {
		query += " AND opened_at >= $" + strconv.Itoa(idx)
		args = append(args, *f.From)
		idx++
	}
	if f.OpenOnly {
		query += " AND closed_at IS NULL"
	}
	query += " ORDER BY opened_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("shifts.list: %w", err)
	}
	defer rows.Close()

	var shifts []db.Shift
	for rows.Next() {
		var s db.Shift
		if err := scanShift(rows, &s); err != nil {
			return nil, fmt.Errorf("shifts.list scan: %w", err)
		}
		shifts = append(shifts, s)
	}
	return shifts, rows.Err()
}
