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

type PaymentFilter struct {
	LotID  int
	From   *time.Time
	To     *time.Time
	Method string
	Status string
}

type PaymentRepository interface {
	Create(ctx context.Context, p *db.Payment) error
	Get(ctx context.Context, id int) (*db.Payment, error)
	List(ctx context.Context, f PaymentFilter) ([]db.Payment, error)
	SetStripeSession(ctx context.Context, id int, sessionID string) error
	// MarkPaidBySession is idempotent: a payment already paid is returned unchanged.
	MarkPaidBySession(ctx context.Context, sessionID, paymentIntentID string, at time.Time) (*db.Payment, error)
	MarkRefunded(ctx context.Context, id int) (*db.Payment, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*db.Payment, error)
	CashTotalForShift(ctx context.Context, shiftID int) (decimal.Decimal, error)
}

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(conn *sql.DB) PaymentRepository {
	return &paymentRepository{db: conn}
}

const paymentColumns = `id, lot_id, occupancy_id, subscription_id, shift_id, amount, method, status,
	stripe_session_id, stripe_payment_intent, paid_at, created_at`

func scanPayment(s scanner, p *db.Payment) error {
	var occ, sub, shift sql.NullInt64
	var paid sql.NullTime
	err := s.Scan(&p.ID, &p.LotID, &occ, &sub, &shift, &p.Amount, &p.Method, &p.Status,
		&p.StripeSessionID, &p.PaymentIntentID, &paid, &p.CreatedAt)
	if err != nil {
		return err
	}
	p.OccupancyID = intPtr(occ)
	p.SubscriptionID = intPtr(sub)
	p.ShiftID = intPtr(shift)
	p.PaidAt = timePtr(paid)
	return nil
}

// insertPayment marks non-online payments paid on insert.
func insertPayment(ctx context.Context, q queryRower, p *db.Payment) error {
	if p.Status == "" {
		p.Status = db.PaymentPaid
		if p.Method == db.MethodOnline {
			p.Status = db.PaymentPending
		}
	}
	if p.Status == db.PaymentPaid && p.PaidAt == nil {
		now := time.Now()
		p.PaidAt = &now
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO payments (lot_id, occupancy_id, subscription_id, shift_id, amount, method, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		p.LotID, nullableInt(p.OccupancyID), nullableInt(p.SubscriptionID), nullableInt(p.ShiftID),
		p.Amount.String(), p.Method, p.Status, nullableTime(p.PaidAt),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return writeErr(err, "payments.create", "duplicate payment")
	}
	return nil
}

func (r *paymentRepository) Create(ctx context.Context, p *db.Payment) error {
	return insertPayment(ctx, r.db, p)
}

func (r *paymentRepository) Get(ctx context.Context, id int) (*db.Payment, error) {
	var p db.Payment
	err := scanPayment(r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", id), &p)
	if err != nil {
		return nil, notFound(err, "payments.get", fmt.Sprintf("payment %d", id))
	}
	return &p, nil
}

func (r *paymentRepository) List(ctx context.Context, f PaymentFilter) ([]db.Payment, error) {
	query := "SELECT " + paymentColumns + " FROM payments WHERE lot_id = $1"
	args := []any{f.LotID}
	idx := 2

	if f.From != nil {
		query += " AND created_at >= $" + strconv.Itoa(idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		query += " AND created_at < $" + strconv.Itoa(idx)
		args = append(args, *f.To)
		idx++
	}
	if f.Method != "" {
		query += " AND method = $" + strconv.Itoa(idx)
		args = append(args, f.Method)
		idx++
	}
	if f.Status != "" {
		query += " AND status = $" + strconv.Itoa(idx)
		args = append(args, f.Status)
		idx++
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("payments.list: %w", err)
	}
	defer rows.Close()

	var payments []db.Payment
	for rows.Next() {
		var p db.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, fmt.Errorf("payments.list scan: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *paymentRepository) SetStripeSession(ctx context.Context, id int, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE payments SET stripe_session_id = $2 WHERE id = $1`, id, sessionID)
	if err != nil {
		return fmt.Errorf("payments.set_stripe_session %d: %w", id, err)
	}
	return expectOne(res, "payments.set_stripe_session", fmt.Sprintf("payment %d", id))
}

func (r *paymentRepository) MarkPaidBySession(ctx context.Context, sessionID, paymentIntentID string, at time.Time) (*db.Payment, error) {
	var p db.Payment
	err := scanPayment(r.db.QueryRowContext(ctx, `
		UPDATE payments SET status = 'paid', paid_at = $3, stripe_payment_intent = $2
		WHERE stripe_session_id = $1 AND status = 'pending'
		RETURNING `+paymentColumns, sessionID, paymentIntentID, at), &p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payments.mark_paid: %w", err)
	}
	err = scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE stripe_session_id = $1", sessionID), &p)
	if err != nil {
		return nil, notFound(err, "payments.mark_paid", "payment for session "+sessionID)
	}
	return &p, nil
}

func (r *paymentRepository) MarkRefunded(ctx context.Context, id int) (*db.Payment, error) {
	var p db.Payment
	err := scanPayment(r.db.QueryRowContext(ctx, `
		UPDATE payments SET status = 'refunded'
		WHERE id = $1 AND status = 'paid'
		RETURNING `+paymentColumns, id), &p)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payments.mark_refunded: %w", err)
		}
		cur, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.Status == db.PaymentRefunded {
			return cur, nil
		}
		return nil, apperrors.Conflict("payments.mark_refunded", "only paid payments can be refunded")
	}
	return &p, nil
}

func (r *paymentRepository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*db.Payment, error) {
	var p db.Payment
	err := scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE stripe_payment_intent = $1", paymentIntentID), &p)
	if err != nil {
		return nil, notFound(err, "payments.get_by_payment_intent", "payment for intent "+paymentIntentID)
	}
	return &p, nil
}

func (r *paymentRepository) CashTotalForShift(ctx context.Context, shiftID int) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE shift_id = $1 AND method = 'cash' AND status = 'paid'`, shiftID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("payments.cash_total: %w", err)
	}
	return total, nil
}
