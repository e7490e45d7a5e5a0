package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/db"
	apperrors "playas/internal/errors"
)

type RateRepository interface {
	Create(ctx context.Context, rate *db.Rate) error
	List(ctx context.Context, lotID int, at *time.Time) ([]db.Rate, error)
	Current(ctx context.Context, lotID int, service, vehicleClass string, at time.Time) (*db.Rate, error)
	// PricesAt returns the price per service for one vehicle class.
	PricesAt(ctx context.Context, lotID int, vehicleClass string, at time.Time) (map[string]decimal.Decimal, error)
}

type rateRepository struct {
	db *sql.DB
}

func NewRateRepository(conn *sql.DB) RateRepository {
	return &rateRepository{db: conn}
}

const rateColumns = `id, lot_id, service, vehicle_class, price, valid_from, valid_to`

func scanRate(s scanner, r *db.Rate) error {
	var to sql.NullTime
	if err := s.Scan(&r.ID, &r.LotID, &r.Service, &r.VehicleClass, &r.Price, &r.ValidFrom, &to); err != nil {
		return err
	}
	r.ValidTo = timePtr(to)
	return nil
}

// Create closes the open-ended rate for the same lot, service and class at the
// new rate's valid_from so that at most one rate is valid at any instant.
func (r *rateRepository) Create(ctx context.Context, rate *db.Rate) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		// serializes writers of one lot, service and class until commit
		key := fmt.Sprintf("rate:%d:%s:%s", rate.LotID, rate.Service, rate.VehicleClass)
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("rates.create lock: %w", err)
		}

		var later int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM rates
			WHERE lot_id = $1 AND service = $2 AND vehicle_class = $3 AND valid_from >= $4`,
			rate.LotID, rate.Service, rate.VehicleClass, rate.ValidFrom).Scan(&later)
		if err != nil {
			return fmt.Errorf("rates.create check: %w", err)
		}
		if later > 0 {
			return apperrors.Conflict("rates.create", "a rate already starts at or after valid_from")
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE rates SET valid_to = $4
			WHERE lot_id = $1 AND service = $2 AND vehicle_class = $3
			  AND (valid_to IS NULL OR valid_to > $4)`,
			rate.LotID, rate.Service, rate.VehicleClass, rate.ValidFrom)
		if err != nil {
			return fmt.Errorf("rates.create close previous: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO rates (lot_id, service, vehicle_class, price, valid_from, valid_to)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			rate.LotID, rate.Service, rate.VehicleClass, rate.Price.String(), rate.ValidFrom, nullableTime(rate.ValidTo),
		).Scan(&rate.ID)
		if err != nil {
			return writeErr(err, "rates.create", "duplicate rate")
		}
		return nil
	})
}

func (r *rateRepository) List(ctx context.Context, lotID int, at *time.Time) ([]db.Rate, error) {
	query := "SELECT " + rateColumns + " FROM rates WHERE lot_id = $1"
	args := []any{lotID}
	if at != nil {
		query += " AND valid_from <= $2 AND (valid_to IS NULL OR valid_to > $2)"
		args = append(args, *at)
	}
	query += " ORDER BY service, vehicle_class, valid_from"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("rates.list: %w", err)
	}
	defer rows.Close()

	var rates []db.Rate
	for rows.Next() {
		var rate db.Rate
		if err := scanRate(rows, &rate); err != nil {
			return nil, fmt.Errorf("rates.list scan: %w", err)
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func (r *rateRepository) Current(ctx context.Context, lotID int, service, vehicleClass string, at time.Time) (*db.Rate, error) {
	var rate db.Rate
	err := scanRate(r.db.QueryRowContext(ctx, `
		SELECT `+rateColumns+` FROM rates
		WHERE lot_id = $1 AND service = $2 AND vehicle_class = $3
		  AND valid_from <= $4 AND (valid_to IS NULL OR valid_to > $4)
		ORDER BY valid_from DESC
		LIMIT 1`, lotID, service, vehicleClass, at), &rate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("rates.current", fmt.Sprintf("no %s rate for %s", service, vehicleClass))
		}
		return nil, fmt.Errorf("rates.current: %w", err)
	}
	return &rate, nil
}

func (r *rateRepository) PricesAt(ctx context.Context, lotID int, vehicleClass string, at time.Time) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT service, price FROM rates
		WHERE lot_id = $1 AND vehicle_class = $2
		  AND valid_from <= $3 AND (valid_to IS NULL OR valid_to > $3)`, lotID, vehicleClass, at)
	if err != nil {
		return nil, fmt.Errorf("rates.prices_at: %w", err)
	}
	defer rows.Close()

	prices := map[string]decimal.Decimal{}
	for rows.Next() {
		var service string
		var price decimal.Decimal
		if err := rows.Scan(&service, &price); err != nil {
			return nil, fmt.Errorf("rates.prices_at scan: %w", err)
		}
		prices[service] = price
	}
	return prices, rows.Err()
}
