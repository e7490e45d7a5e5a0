package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"playas/internal/db"
)

// ExpiringSubscription joins what a reminder needs.
type ExpiringSubscription struct {
	SubscriptionID int
	LotID          int
	LotName        string
	SpaceCode      string
	DriverName     string
	Email          string
	Phone          string
	EndsAt         time.Time
}

type JobRepository interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) ([]db.Subscription, error)
	SubscriptionsToWarn(ctx context.Context, now, until time.Time) ([]ExpiringSubscription, error)
	MarkWarned(ctx context.Context, ids []int, at time.Time) error
	AutoCloseStaleShifts(ctx context.Context, openedBefore, now time.Time) ([]db.Shift, error)
	RecomputeAllRatings(ctx context.Context) (int64, error)
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(conn *sql.DB) JobRepository {
	return &jobRepository{db: conn}
}

// ExpireSubscriptions marks active subscriptions past their end as expired and releases their spaces.
func (r *jobRepository) ExpireSubscriptions(ctx context.Context, now time.Time) ([]db.Subscription, error) {
	var expired []db.Subscription
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE subscriptions SET status = 'expired'
			WHERE status = 'active' AND ends_at <= $1
			RETURNING id, driver_id, lot_id, space_id, starts_at, ends_at, monthly_price, status`, now)
		if err != nil {
			return fmt.Errorf("error expiring subscriptions: %w", err)
		}
		var spaceIDs []int
		for rows.Next() {
			var s db.Subscription
			if err := rows.Scan(&s.ID, &s.DriverID, &s.LotID, &s.SpaceID, &s.StartsAt, &s.EndsAt, &s.MonthlyPrice, &s.Status); err != nil {
				rows.Close()
				return fmt.Errorf("error scanning expired subscription: %w", err)
			}
			expired = append(expired, s)
			spaceIDs = append(spaceIDs, s.SpaceID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error after iterating rows: %w", err)
		}
		return refreshReserved(ctx, tx, spaceIDs)
	})
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		log.WithField("count", len(expired)).Info("subscriptions expired")
	}
	return expired, nil
}

func (r *jobRepository) SubscriptionsToWarn(ctx context.Context, now, until time.Time) ([]ExpiringSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.lot_id, l.name, sp.code, d.full_name, d.email, d.phone, s.ends_at
		FROM subscriptions s
		JOIN lots l ON l.id = s.lot_id
		JOIN spaces sp ON sp.id = s.space_id
		JOIN drivers d ON d.id = s.driver_id
		WHERE s.status = 'active' AND s.warned_at IS NULL AND s.ends_at > $1 AND s.ends_at <= $2
		ORDER BY s.ends_at`, now, until)
	if err != nil {
		return nil, fmt.Errorf("error querying expiring subscriptions: %w", err)
	}
	defer rows.Close()

	var out []ExpiringSubscription
	for rows.Next() {
		var e ExpiringSubscription
		if err := rows.Scan(&e.SubscriptionID, &e.LotID, &e.LotName, &e.SpaceCode, &e.DriverName, &e.Email, &e.Phone, &e.EndsAt); err != nil {
			return nil, fmt.Errorf("error scanning expiring subscription: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *jobRepository) MarkWarned(ctx context.Context, ids []int, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET warned_at = $1 WHERE id = ANY($2)`, at, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("error marking subscriptions warned: %w", err)
	}
	return nil
}

// AutoCloseStaleShifts closes forgotten shifts declaring exactly the expected cash.
func (r *jobRepository) AutoCloseStaleShifts(ctx context.Context, openedBefore, now time.Time) ([]db.Shift, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH cash AS (
			SELECT s.id, s.opening_cash + COALESCE((
				SELECT SUM(p.amount) FROM payments p
				WHERE p.shift_id = s.id AND p.method = 'cash' AND p.status = 'paid'), 0) AS expected
			FROM shifts s
			WHERE s.closed_at IS NULL AND s.opened_at < $1
		)
		UPDATE shifts s
		SET closed_at = $2, auto_closed = TRUE, expected_cash = cash.expected, declared_cash = cash.expected
		FROM cash
		WHERE s.id = cash.id
		RETURNING `+prefixed("s.", shiftColumns), openedBefore, now)
	if err != nil {
		return nil, fmt.Errorf("error auto closing shifts: %w", err)
	}
	defer rows.Close()

	var shifts []db.Shift
	for rows.Next() {
		var s db.Shift
		if err := scanShift(rows, &s); err != nil {
			return nil, fmt.Errorf("error scanning shift: %w", err)
		}
		shifts = append(shifts, s)
	}
	return shifts, rows.Err()
}

func (r *jobRepository) RecomputeAllRatings(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, recomputeLotRating)
	if err != nil {
		return 0, fmt.Errorf("error recomputing ratings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		log.Warnf("Could not get rows affected: %v", err)
		return 0, nil
	}
	return n, nil
}
