package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"playas/internal/db"
)

// RatingAggregate is the lot's average after a change.
type RatingAggregate struct {
	LotID int
	Avg   decimal.Decimal
	Count int
}

type RatingRepository interface {
	// Upsert and Delete recompute the lot average inside the same transaction.
	Upsert(ctx context.Context, r *db.Rating) (RatingAggregate, error)
	Delete(ctx context.Context, driverID, lotID int) (RatingAggregate, error)
	Get(ctx context.Context, driverID, lotID int) (*db.Rating, error)
	List(ctx context.Context, lotID int) ([]db.Rating, error)
}

type ratingRepository struct {
	db *sql.DB
}

func NewRatingRepository(conn *sql.DB) RatingRepository {
	return &ratingRepository{db: conn}
}

const ratingColumns = `id, driver_id, lot_id, stars, comment, created_at, updated_at`

const recomputeLotRating = `
	UPDATE lots l SET
		rating_avg = COALESCE((SELECT ROUND(AVG(r.stars)::numeric, 2) FROM ratings r WHERE r.lot_id = l.id), 0),
		rating_count = (SELECT COUNT(*) FROM ratings r WHERE r.lot_id = l.id)`

func scanRating(s scanner, r *db.Rating) error {
	return s.Scan(&r.ID, &r.DriverID, &r.LotID, &r.Stars, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
}

func recomputeRating(ctx context.Context, q queryRower, lotID int) (RatingAggregate, error) {
	agg := RatingAggregate{LotID: lotID}
	err := q.QueryRowContext(ctx, recomputeLotRating+" WHERE l.id = $1 RETURNING l.rating_avg, l.rating_count", lotID).
		Scan(&agg.Avg, &agg.Count)
	if err != nil {
		return agg, notFound(err, "ratings.recompute", fmt.Sprintf("lot %d", lotID))
	}
	return agg, nil
}

func (r *ratingRepository) Upsert(ctx context.Context, rt *db.Rating) (RatingAggregate, error) {
	var agg RatingAggregate
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := scanRating(tx.QueryRowContext(ctx, `
			INSERT INTO ratings (driver_id, lot_id, stars, comment)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (driver_id, lot_id)
			DO UPDATE SET stars = EXCLUDED.stars, comment = EXCLUDED.comment, updated_at = NOW()
			RETURNING `+ratingColumns, rt.DriverID, rt.LotID, rt.Stars, rt.Comment), rt)
		if err != nil {
			return writeErr(err, "ratings.upsert", "duplicate rating")
		}
		agg, err = recomputeRating(ctx, tx, rt.LotID)
		return err
	})
	return agg, err
}

func (r *ratingRepository) Delete(ctx context.Context, driverID, lotID int) (RatingAggregate, error) {
	var agg RatingAggregate
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM ratings WHERE driver_id = $1 AND lot_id = $2`, driverID, lotID)
		if err != nil {
			return fmt.Errorf("ratings.delete: %w", err)
		}
		if err := expectOne(res, "ratings.delete", "rating"); err != nil {
			return err
		}
		agg, err = recomputeRating(ctx, tx, lotID)
		return err
	})
	return agg, err
}

func (r *ratingRepository) Get(ctx context.Context, driverID, lotID int) (*db.Rating, error) {
	var rt db.Rating
	err := scanRating(r.db.QueryRowContext(ctx,
		"SELECT "+ratingColumns+" FROM ratings WHERE driver_id = $1 AND lot_id = $2", driverID, lotID), &rt)
	if err != nil {
		return nil, notFound(err, "ratings.get", "rating")
	}
	return &rt, nil
}

func (r *ratingRepository) List(ctx context.Context, lotID int) ([]db.Rating, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ratingColumns+" FROM ratings WHERE lot_id = $1 ORDER BY updated_at DESC", lotID)
	if err != nil {
		return nil, fmt.Errorf("ratings.list: %w", err)
	}
	defer rows.Close()

	var ratings []db.Rating
	for rows.Next() {
		var rt db.Rating
		if err := scanRating(rows, &rt); err != nil {
			return nil, fmt.Errorf("ratings.list scan: %w", err)
		}
		ratings = append(ratings, rt)
	}
	return ratings, rows.Err()
}
