package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"playas/internal/db"
)

type LotFilter struct {
	Query      string
	ActiveOnly bool
	OwnerID    *int
	StaffID    *int
}

type LotRepository interface {
	Create(ctx context.Context, lot *db.Lot) error
	Get(ctx context.Context, id int) (*db.Lot, error)
	List(ctx context.Context, f LotFilter) ([]db.Lot, error)
	Update(ctx context.Context, lot *db.Lot) error
	SetActive(ctx context.Context, id int, active bool) error
	SetSchedule(ctx context.Context, lotID int, open24h bool, entries []db.ScheduleEntry) error
	SetPaymentMethods(ctx context.Context, lotID int, methods []string) error
	AddStaff(ctx context.Context, lotID, userID int) error
	RemoveStaff(ctx context.Context, lotID, userID int) error
	IsStaff(ctx context.Context, lotID, userID int) (bool, error)
	ListStaff(ctx context.Context, lotID int) ([]db.User, error)
}

type lotRepository struct {
	db *sql.DB
}

func NewLotRepository(conn *sql.DB) LotRepository {
	return &lotRepository{db: conn}
}

const lotColumns = `l.id, l.name, l.address, l.latitude, l.longitude, l.owner_id, l.tolerance_minutes, l.open24h,
	l.rating_avg, l.rating_count, l.active, l.payment_methods, l.created_at, l.updated_at`

func scanLot(s scanner, l *db.Lot) error {
	var owner sql.NullInt64
	err := s.Scan(&l.ID, &l.Name, &l.Address, &l.Latitude, &l.Longitude, &owner, &l.ToleranceMinutes, &l.Open24h,
		&l.RatingAvg, &l.RatingCount, &l.Active, pq.Array(&l.PaymentMethods), &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return err
	}
	l.OwnerID = intPtr(owner)
	return nil
}

func (r *lotRepository) Create(ctx context.Context, lot *db.Lot) error {
	if len(lot.PaymentMethods) == 0 {
		lot.PaymentMethods = []string{db.MethodCash}
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO lots (name, address, latitude, longitude, owner_id, tolerance_minutes, open24h, active, payment_methods)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
		RETURNING id, active, created_at, updated_at`,
		lot.Name, lot.Address, lot.Latitude, lot.Longitude, nullableInt(lot.OwnerID), lot.ToleranceMinutes, lot.Open24h,
		pq.Array(lot.PaymentMethods),
	).Scan(&lot.ID, &lot.Active, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return writeErr(err, "lots.create", "lot already exists")
	}
	return nil
}

func (r *lotRepository) Get(ctx context.Context, id int) (*db.Lot, error) {
	var lot db.Lot
	err := scanLot(r.db.QueryRowContext(ctx, "SELECT "+lotColumns+" FROM lots l WHERE l.id = $1", id), &lot)
	if err != nil {
		return nil, notFound(err, "lots.get", fmt.Sprintf("lot %d", id))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT weekday, opens_minute, closes_minute FROM lot_schedules WHERE lot_id = $1 ORDER BY weekday`, id)
	if err != nil {
		return nil, fmt.Errorf("lots.get schedule: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e db.ScheduleEntry
		var weekday int
		if err := rows.Scan(&weekday, &e.Opens, &e.Closes); err != nil {
			return nil, fmt.Errorf("lots.get schedule scan: %w", err)
		}
		e.Weekday = time.Weekday(weekday)
		lot.Schedule = append(lot.Schedule, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lots.get schedule rows: %w", err)
	}
	return &lot, nil
}

func (r *lotRepository) List(ctx context.Context, f LotFilter) ([]db.Lot, error) {
	query := "SELECT " + lotColumns + " FROM lots l WHERE 1=1"
	args := []any{}
	idx := 1

	if f.Query != "" {
		query += " AND l.name ILIKE $" + strconv.Itoa(idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	if f.ActiveOnly {
		query += " AND l.active"
	}
	if f.OwnerID != nil {
		query += " AND l.owner_id = $" + strconv.Itoa(idx)
		args = append(args, *f.OwnerID)
		idx++
	}
	if f.StaffID != nil {
		query += " AND EXISTS (SELECT 1 FROM lot_staff s WHERE s.lot_id = l.id AND s.user_id = $" + strconv.Itoa(idx) + ")"
		args = append(args, *f.StaffID)
		idx++
	}
	query += " ORDER BY l.name, l.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lots.list: %w", err)
	}
	defer rows.Close()

	var lots []db.Lot
	for rows.Next() {
		var lot db.Lot
		if err := scanLot(rows, &lot); err != nil {
			return nil, fmt.Errorf("lots.list scan: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *lotRepository) Update(ctx context.Context, lot *db.Lot) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE lots
		SET name = $2, address = $3, latitude = $4, longitude = $5, owner_id = $6, tolerance_minutes = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		lot.ID, lot.Name, lot.Address, lot.Latitude, lot.Longitude, nullableInt(lot.OwnerID), lot.ToleranceMinutes,
	).Scan(&lot.UpdatedAt)
	if err != nil {
		return notFound(err, "lots.update", fmt.Sprintf("lot %d", lot.ID))
	}
	return nil
}

func (r *lotRepository) SetActive(ctx context.Context, id int, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE lots SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("lots.set_active: %w", err)
	}
	return expectOne(res, "lots.set_active", fmt.Sprintf("lot %d", id))
}

// SetSchedule replaces the weekly schedule.
func (r *lotRepository) SetSchedule(ctx context.Context, lotID int, open24h bool, entries []db.ScheduleEntry) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE lots SET open24h = $2, updated_at = NOW() WHERE id = $1`, lotID, open24h)
		if err != nil {
			return fmt.Errorf("lots.set_schedule: %w", err)
		}
		if err := expectOne(res, "lots.set_schedule", fmt.Sprintf("lot %d", lotID)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lot_schedules WHERE lot_id = $1`, lotID); err != nil {
			return fmt.Errorf("lots.set_schedule clear: %w", err)
		}
		for _, e := range entries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO lot_schedules (lot_id, weekday, opens_minute, closes_minute) VALUES ($1, $2, $3, $4)`,
				lotID, int(e.Weekday), e.Opens, e.Closes)
			if err != nil {
				return writeErr(err, "lots.set_schedule", "weekday listed twice")
			}
		}
		return nil
	})
}

func (r *lotRepository) SetPaymentMethods(ctx context.Context, lotID int, methods []string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lots SET payment_methods = $2, updated_at = NOW() WHERE id = $1`, lotID, pq.Array(methods))
	if err != nil {
		return fmt.Errorf("lots.set_payment_methods: %w", err)
	}
	return expectOne(res, "lots.set_payment_methods", fmt.Sprintf("lot %d", lotID))
}

func (r *lotRepository) AddStaff(ctx context.Context, lotID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lot_staff (lot_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, lotID, userID)
	if err != nil {
		return writeErr(err, "lots.add_staff", "already assigned")
	}
	return nil
}

func (r *lotRepository) RemoveStaff(ctx context.Context, lotID, userID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lot_staff WHERE lot_id = $1 AND user_id = $2`, lotID, userID)
	if err != nil {
		return fmt.Errorf("lots.remove_staff: %w", err)
	}
	return expectOne(res, "lots.remove_staff", "staff assignment")
}

func (r *lotRepository) IsStaff(ctx context.Context, lotID, userID int) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM lot_staff WHERE lot_id = $1 AND user_id = $2)`, lotID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("lots.is_staff: %w", err)
	}
	return ok, nil
}

func (r *lotRepository) ListStaff(ctx context.Context, lotID int) ([]db.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.created_at
		FROM lot_staff s
		JOIN users u ON u.id = s.user_id
		WHERE s.lot_id = $1
		ORDER BY u.full_name`, lotID)
	if err != nil {
		return nil, fmt.Errorf("lots.list_staff: %w", err)
	}
	defer rows.Close()

	var users []db.User
	for rows.Next() {
		var u db.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("lots.list_staff scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
