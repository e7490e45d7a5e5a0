package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"playas/internal/db"
	apperrors "playas/internal/errors"
)

type HistoryFilter struct {
	LotID int
	From  *time.Time
	To    *time.Time
	Plate string
	Limit int
}

// CloseParams carries everything a checkout writes in one transaction.
type CloseParams struct {
	OccupancyID int
	ExitedAt    time.Time
	Amount      decimal.Decimal
	ClosedBy    int
	ExtraPrices map[int]decimal.Decimal
	// Payment is nil when nothing is owed.
	Payment *db.Payment
}

type OccupancyRepository interface {
	// Open flips the space to occupied and inserts the stay. allowReserved lets
	// a subscription holder take its own reserved space.
	Open(ctx context.Context, o *db.Occupancy, allowReserved bool) error
	Get(ctx context.Context, id int) (*db.Occupancy, error)
	GetByTicket(ctx context.Context, ticket string) (*db.Occupancy, error)
	FindActiveByPlate(ctx context.Context, plate string) (*db.Occupancy, error)
	AddExtra(ctx context.Context, occupancyID int, service string) (*db.OccupancyExtra, error)
	Close(ctx context.Context, p CloseParams) (*db.Occupancy, error)
	ListActive(ctx context.Context, lotID int) ([]db.Occupancy, error)
	History(ctx context.Context, f HistoryFilter) ([]db.Occupancy, error)
}

type occupancyRepository struct {
	db *sql.DB
}

func NewOccupancyRepository(conn *sql.DB) OccupancyRepository {
	return &occupancyRepository{db: conn}
}

const occupancySelect = `
	SELECT o.id, o.ticket, o.lot_id, o.space_id, s.code, o.vehicle_id, v.plate, v.vehicle_class,
		o.subscription_id, o.entered_at, o.exited_at, o.amount, o.opened_by, o.closed_by
	FROM occupancies o
	JOIN spaces s ON s.id = o.space_id
	JOIN vehicles v ON v.id = o.vehicle_id`

func scanOccupancy(s scanner, o *db.Occupancy) error {
	var sub, closedBy sql.NullInt64
	var exited sql.NullTime
	var amount decimal.NullDecimal
	err := s.Scan(&o.ID, &o.Ticket, &o.LotID, &o.SpaceID, &o.SpaceCode, &o.VehicleID, &o.Plate, &o.VehicleClass,
		&sub, &o.EnteredAt, &exited, &amount, &o.OpenedBy, &closedBy)
	if err != nil {
		return err
	}
	o.SubscriptionID = intPtr(sub)
	o.ExitedAt = timePtr(exited)
	o.Amount = decimalPtr(amount)
	o.ClosedBy = intPtr(closedBy)
	return nil
}

func (r *occupancyRepository) Open(ctx context.Context, o *db.Occupancy, allowReserved bool) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE spaces SET state = 'occupied'
			WHERE id = $1 AND lot_id = $2 AND state = 'free' AND (NOT reserved OR $3)
			RETURNING code`, o.SpaceID, o.LotID, allowReserved).Scan(&o.SpaceCode)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.Conflict("occupancies.open", "space is not available")
			}
			return fmt.Errorf("occupancies.open space: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO occupancies (ticket, lot_id, space_id, vehicle_id, subscription_id, entered_at, opened_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			o.Ticket, o.LotID, o.SpaceID, o.VehicleID, nullableInt(o.SubscriptionID), o.EnteredAt, o.OpenedBy,
		).Scan(&o.ID)
		if err != nil {
			return writeErr(err, "occupancies.open", "vehicle is already parked")
		}
		return nil
	})
}

func (r *occupancyRepository) getOne(ctx context.Context, op, where string, arg any) (*db.Occupancy, error) {
	var o db.Occupancy
	if err := scanOccupancy(r.db.QueryRowContext(ctx, occupancySelect+" WHERE "+where, arg), &o); err != nil {
		return nil, err
	}
	if err := r.loadExtras(ctx, []*db.Occupancy{&o}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &o, nil
}

func (r *occupancyRepository) Get(ctx context.Context, id int) (*db.Occupancy, error) {
	o, err := r.getOne(ctx, "occupancies.get", "o.id = $1", id)
	if err != nil {
		return nil, notFound(err, "occupancies.get", fmt.Sprintf("occupancy %d", id))
	}
	return o, nil
}

func (r *occupancyRepository) GetByTicket(ctx context.Context, ticket string) (*db.Occupancy, error) {
	o, err := r.getOne(ctx, "occupancies.get_by_ticket", "o.ticket = $1", ticket)
	if err != nil {
		return nil, notFound(err, "occupancies.get_by_ticket", "ticket "+ticket)
	}
	return o, nil
}

// FindActiveByPlate returns nil, nil when the vehicle is not parked anywhere.
func (r *occupancyRepository) FindActiveByPlate(ctx context.Context, plate string) (*db.Occupancy, error) {
	o, err := r.getOne(ctx, "occupancies.find_active", "v.plate = $1 AND o.exited_at IS NULL", plate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("occupancies.find_active: %w", err)
	}
	return o, nil
}

func (r *occupancyRepository) AddExtra(ctx context.Context, occupancyID int, service string) (*db.OccupancyExtra, error) {
	e := db.OccupancyExtra{OccupancyID: occupancyID, Service: service}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO occupancy_extras (occupancy_id, service)
		SELECT id, $2 FROM occupancies WHERE id = $1 AND exited_at IS NULL
		RETURNING id, created_at`, occupancyID, service).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Conflict("occupancies.add_extra", "occupancy is not active")
		}
		return nil, fmt.Errorf("occupancies.add_extra: %w", err)
	}
	return &e, nil
}

func (r *occupancyRepository) Close(ctx context.Context, p CloseParams) (*db.Occupancy, error) {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var spaceID int
		err := tx.QueryRowContext(ctx, `
			UPDATE occupancies SET exited_at = $2, amount = $3, closed_by = $4
			WHERE id = $1 AND exited_at IS NULL
			RETURNING space_id`, p.OccupancyID, p.ExitedAt, p.Amount.String(), p.ClosedBy).Scan(&spaceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.Conflict("occupancies.close", "occupancy already closed")
			}
			return fmt.Errorf("occupancies.close: %w", err)
		}

		for id, price := range p.ExtraPrices {
			_, err := tx.ExecContext(ctx,
				`UPDATE occupancy_extras SET price = $3 WHERE id = $1 AND occupancy_id = $2`, id, p.OccupancyID, price.String())
			if err != nil {
				return fmt.Errorf("occupancies.close extra %d: %w", id, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE spaces SET state = 'free' WHERE id = $1 AND state = 'occupied'`, spaceID); err != nil {
			return fmt.Errorf("occupancies.close free space: %w", err)
		}

		if p.Payment != nil {
			p.Payment.OccupancyID = &p.OccupancyID
			return insertPayment(ctx, tx, p.Payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, p.OccupancyID)
}

func (r *occupancyRepository) ListActive(ctx context.Context, lotID int) ([]db.Occupancy, error) {
	return r.list(ctx, "occupancies.list_active",
		occupancySelect+" WHERE o.lot_id = $1 AND o.exited_at IS NULL ORDER BY o.entered_at", lotID)
}

func (r *occupancyRepository) History(ctx context.Context, f HistoryFilter) ([]db.Occupancy, error) {
	query := occupancySelect + " WHERE o.lot_id = $1"
	args := []any{f.LotID}
	idx := 2

	if f.From != nil {
		query += " AND o.entered_at >= $" + strconv.Itoa(idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		query += " AND o.entered_at < $" + strconv.Itoa(idx)
		args = append(args, *f.To)
		idx++
	}
	if f.Plate != "" {
		query += " AND v.plate = $" + strconv.Itoa(idx)
		args = append(args, f.Plate)
		idx++
	}
	query += " ORDER BY o.entered_at DESC"
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}
	return r.list(ctx, "occupancies.history", query, args...)
}

func (r *occupancyRepository) list(ctx context.Context, op, query string, args ...any) ([]db.Occupancy, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []db.Occupancy
	for rows.Next() {
		var o db.Occupancy
		if err := scanOccupancy(rows, &o); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}

	ptrs := make([]*db.Occupancy, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := r.loadExtras(ctx, ptrs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (r *occupancyRepository) loadExtras(ctx context.Context, occs []*db.Occupancy) error {
	if len(occs) == 0 {
		return nil
	}
	byID := make(map[int]*db.Occupancy, len(occs))
	ids := make([]int, 0, len(occs))
	for _, o := range occs {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, occupancy_id, service, price, created_at
		FROM occupancy_extras WHERE occupancy_id = ANY($1)
		ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load extras: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e db.OccupancyExtra
		var price decimal.NullDecimal
		if err := rows.Scan(&e.ID, &e.OccupancyID, &e.Service, &price, &e.CreatedAt); err != nil {
			return fmt.Errorf("load extras scan: %w", err)
		}
		e.Price = decimalPtr(price)
		if o, ok := byID[e.OccupancyID]; ok {
			o.Extras = append(o.Extras, e)
		}
	}
	return rows.Err()
}
