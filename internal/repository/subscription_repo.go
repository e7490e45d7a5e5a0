package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"playas/internal/db"
	apperrors "playas/internal/errors"
)

type SubscriptionFilter struct {
	LotID    *int
	DriverID *int
	Status   string
}

type SubscriptionRepository interface {
	// Create reserves the space and records the first payment.
	Create(ctx context.Context, s *db.Subscription, first *db.Payment) error
	Get(ctx context.Context, id int) (*db.Subscription, error)
	List(ctx context.Context, f SubscriptionFilter) ([]db.Subscription, error)
	FindActiveForVehicle(ctx context.Context, vehicleID, lotID int, at time.Time) (*db.Subscription, error)
	Extend(ctx context.Context, id int, endsAt time.Time, payment *db.Payment) (*db.Subscription, error)
	Cancel(ctx context.Context, id int) (*db.Subscription, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(conn *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: conn}
}

const subscriptionColumns = `s.id, s.driver_id, s.lot_id, s.space_id, s.starts_at, s.ends_at, s.monthly_price,
	s.status, s.warned_at, s.created_at,
	ARRAY(SELECT sv.vehicle_id FROM subscription_vehicles sv WHERE sv.subscription_id = s.id ORDER BY sv.vehicle_id)`

func scanSubscription(sc scanner, s *db.Subscription) error {
	var warned sql.NullTime
	var vehicles pq.Int64Array
	err := sc.Scan(&s.ID, &s.DriverID, &s.LotID, &s.SpaceID, &s.StartsAt, &s.EndsAt, &s.MonthlyPrice,
		&s.Status, &warned, &s.CreatedAt, &vehicles)
	if err != nil {
		return err
	}
	s.WarnedAt = timePtr(warned)
	s.VehicleIDs = make([]int, len(vehicles))
	for i, v := range vehicles {
		s.VehicleIDs[i] = int(v)
	}
	return nil
}

// refreshReserved recomputes the reserved flag from the active subscriptions.
func refreshReserved(ctx context.Context, ex execer, spaceIDs []int) error {
	if len(spaceIDs) == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx, `
		UPDATE spaces sp SET reserved = EXISTS (
			SELECT 1 FROM subscriptions s WHERE s.space_id = sp.id AND s.status = 'active')
		WHERE sp.id = ANY($1)`, pq.Array(spaceIDs))
	if err != nil {
		return fmt.Errorf("refresh reserved: %w", err)
	}
	return nil
}

// lockSpace holds the space row until the transaction ends so that concurrent
// subscriptions on it see each other's writes.
func lockSpace(ctx context.Context, tx *sql.Tx, op string, spaceID int) error {
	var id int
	err := tx.QueryRowContext(ctx, `SELECT id FROM spaces WHERE id = $1 FOR UPDATE`, spaceID).Scan(&id)
	if err != nil {
		return notFound(err, op, fmt.Sprintf("space %d", spaceID))
	}
	return nil
}

// overlaps reports whether another active subscription holds the space in [from, to).
func overlaps(ctx context.Context, tx *sql.Tx, spaceID, exceptID int, from, to time.Time) (bool, error) {
	var overlap bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE space_id = $1 AND id <> $2 AND status = 'active' AND starts_at < $4 AND ends_at > $3)`,
		spaceID, exceptID, from, to).Scan(&overlap)
	return overlap, err
}

func (r *subscriptionRepository) Create(ctx context.Context, s *db.Subscription, first *db.Payment) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockSpace(ctx, tx, "subscriptions.create", s.SpaceID); err != nil {
			return err
		}
		overlap, err := overlaps(ctx, tx, s.SpaceID, 0, s.StartsAt, s.EndsAt)
		if err != nil {
			return fmt.Errorf("subscriptions.create overlap: %w", err)
		}
		if overlap {
			return apperrors.Conflict("subscriptions.create", "space already reserved for that period")
		}

		s.Status = db.SubscriptionActive
		err = tx.QueryRowContext(ctx, `
			INSERT INTO subscriptions (driver_id, lot_id, space_id, starts_at, ends_at, monthly_price, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`,
			s.DriverID, s.LotID, s.SpaceID, s.StartsAt, s.EndsAt, s.MonthlyPrice.String(), s.Status,
		).Scan(&s.ID, &s.CreatedAt)
		if err != nil {
			return writeErr(err, "subscriptions.create", "duplicate subscription")
		}

		for _, vid := range s.VehicleIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO subscription_vehicles (subscription_id, vehicle_id) VALUES ($1, $2)`, s.ID, vid)
			if err != nil {
				return writeErr(err, "subscriptions.create vehicle", "vehicle listed twice")
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE spaces SET reserved = TRUE WHERE id = $1`, s.SpaceID); err != nil {
			return fmt.Errorf("subscriptions.create reserve: %w", err)
		}

		if first != nil {
			first.SubscriptionID = &s.ID
			return insertPayment(ctx, tx, first)
		}
		return nil
	})
}

func (r *subscriptionRepository) Get(ctx context.Context, id int) (*db.Subscription, error) {
	var s db.Subscription
	err := scanSubscription(r.db.QueryRowContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions s WHERE s.id = $1", id), &s)
	if err != nil {
		return nil, notFound(err, "subscriptions.get", fmt.Sprintf("subscription %d", id))
	}
	return &s, nil
}

func (r *subscriptionRepository) List(ctx context.Context, f SubscriptionFilter) ([]db.Subscription, error) {
	query := "SELECT " + subscriptionColumns + " FROM subscriptions s WHERE 1=1"
	args := []any{}
	idx := 1

	if f.LotID != nil {
		query += " AND s.lot_id = $" + strconv.Itoa(idx)
		args = append(args, *f.LotID)
		idx++
	}
	if f.DriverID != nil {
		query += " AND s.driver_id = $" + strconv.Itoa(idx)
		args = append(args, *f.DriverID)
		idx++
	}
	if f.Status != "" {
		query += " AND s.status = $" + strconv.Itoa(idx)
		args = append(args, f.Status)
		idx++
	}
	query += " ORDER BY s.ends_at DESC, s.id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("subscriptions.list: %w", err)
	}
	defer rows.Close()

	var subs []db.Subscription
	for rows.Next() {
		var s db.Subscription
		if err := scanSubscription(rows, &s); err != nil {
			return nil, fmt.Errorf("subscriptions.list scan: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// FindActiveForVehicle returns nil, nil when the vehicle has no subscription covering at.
func (r *subscriptionRepository) FindActiveForVehicle(ctx context.Context, vehicleID, lotID int, at time.Time) (*db.Subscription, error) {
	var s db.Subscription
	err := scanSubscription(r.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions s
		JOIN subscription_vehicles v ON v.subscription_id = s.id
		WHERE v.vehicle_id = $1 AND s.lot_id = $2 AND s.status = 'active'
		  AND s.starts_at <= $3 AND s.ends_at > $3
		ORDER BY s.ends_at DESC
		LIMIT 1`, vehicleID, lotID, at), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("subscriptions.find_active: %w", err)
	}
	return &s, nil
}

func (r *subscriptionRepository) Extend(ctx context.Context, id int, endsAt time.Time, payment *db.Payment) (*db.Subscription, error) {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var spaceID int
		var endsOld time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT space_id, ends_at FROM subscriptions WHERE id = $1 AND status = 'active'`, id).Scan(&spaceID, &endsOld)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.Conflict("subscriptions.extend", "only active subscriptions can be renewed")
			}
			return fmt.Errorf("subscriptions.extend: %w", err)
		}
		if err := lockSpace(ctx, tx, "subscriptions.extend", spaceID); err != nil {
			return err
		}
		overlap, err := overlaps(ctx, tx, spaceID, id, endsOld, endsAt)
		if err != nil {
			return fmt.Errorf("subscriptions.extend overlap: %w", err)
		}
		if overlap {
			return apperrors.Conflict("subscriptions.extend", "space already reserved for the renewed period")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET ends_at = $2, warned_at = NULL WHERE id = $1`, id, endsAt); err != nil {
			return fmt.Errorf("subscriptions.extend: %w", err)
		}
		if payment != nil {
			payment.SubscriptionID = &id
			return insertPayment(ctx, tx, payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *subscriptionRepository) Cancel(ctx context.Context, id int) (*db.Subscription, error) {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var spaceID int
		err := tx.QueryRowContext(ctx, `
			UPDATE subscriptions SET status = 'cancelled'
			WHERE id = $1 AND status = 'active'
			RETURNING space_id`, id).Scan(&spaceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.Conflict("subscriptions.cancel", "subscription is not active")
			}
			return fmt.Errorf("subscriptions.cancel: %w", err)
		}
		return refreshReserved(ctx, tx, []int{spaceID})
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}
