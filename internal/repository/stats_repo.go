package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type SpaceCount struct {
	VehicleClass string
	State        string
	Reserved     bool
	Count        int
}

type DailyRevenue struct {
	Day    string
	Method string
	Count  int
	Total  decimal.Decimal
}

// StayWindow is an occupancy reduced to its interval.
type StayWindow struct {
	EnteredAt time.Time
	ExitedAt  *time.Time
}

type StatsRepository interface {
	SpaceCounts(ctx context.Context, lotID int) ([]SpaceCount, error)
	RevenueByMethod(ctx context.Context, lotID int, from, to time.Time) (map[string]decimal.Decimal, error)
	// DailyRevenue groups paid payments per local day and method.
	DailyRevenue(ctx context.Context, lotID int, from, to time.Time, tz string) ([]DailyRevenue, error)
	Stays(ctx context.Context, lotID int, from, to time.Time) ([]StayWindow, error)
}

type statsRepository struct {
	db *sql.DB
}

func NewStatsRepository(conn *sql.DB) StatsRepository {
	return &statsRepository{db: conn}
}

func (r *statsRepository) SpaceCounts(ctx context.Context, lotID int) ([]SpaceCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT vehicle_class, state, reserved, COUNT(*)
		FROM spaces WHERE lot_id = $1
		GROUP BY vehicle_class, state, reserved
		ORDER BY vehicle_class, state`, lotID)
	if err != nil {
		return nil, fmt.Errorf("stats.space_counts: %w", err)
	}
	defer rows.Close()

	var out []SpaceCount
	for rows.Next() {
		var c SpaceCount
		if err := rows.Scan(&c.VehicleClass, &c.State, &c.Reserved, &c.Count); err != nil {
			return nil, fmt.Errorf("stats.space_counts scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *statsRepository) RevenueByMethod(ctx context.Context, lotID int, from, to time.Time) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT method, COALESCE(SUM(amount), 0)
		FROM payments
		WHERE lot_id = $1 AND status = 'paid' AND paid_at >= $2 AND paid_at < $3
		GROUP BY method`, lotID, from, to)
	if err != nil {
		return nil, fmt.Errorf("stats.revenue_by_method: %w", err)
	}
	defer rows.Close()

	out := map[string]decimal.Decimal{}
	for rows.Next() {
		var method string
		var total decimal.Decimal
		if err := rows.Scan(&method, &total); err != nil {
			return nil, fmt.Errorf("stats.revenue_by_method scan: %w", err)
		}
		out[method] = total
	}
	return out, rows.Err()
}

func (r *statsRepository) DailyRevenue(ctx context.Context, lotID int, from, to time.Time, tz string) ([]DailyRevenue, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(paid_at AT TIME ZONE $4, 'YYYY-MM-DD') AS day, method, COUNT(*), COALESCE(SUM(amount), 0)
		FROM payments
		WHERE lot_id = $1 AND status = 'paid' AND paid_at >= $2 AND paid_at < $3
		GROUP BY day, method
		ORDER BY day, method`, lotID, from, to, tz)
	if err != nil {
		return nil, fmt.Errorf("stats.daily_revenue: %w", err)
	}
	defer rows.Close()

	var out []DailyRevenue
	for rows.Next() {
		var d DailyRevenue
		if err := rows.Scan(&d.Day, &d.Method, &d.Count, &d.Total); err != nil {
			return nil, fmt.Errorf("stats.daily_revenue scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *statsRepository) Stays(ctx context.Context, lotID int, from, to time.Time) ([]StayWindow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entered_at, exited_at FROM occupancies
		WHERE lot_id = $1 AND entered_at < $3 AND (exited_at IS NULL OR exited_at > $2)
		ORDER BY entered_at`, lotID, from, to)
	if err != nil {
		return nil, fmt.Errorf("stats.stays: %w", err)
	}
	defer rows.Close()

	var out []StayWindow
	for rows.Next() {
		var s StayWindow
		var exited sql.NullTime
		if err := rows.Scan(&s.EnteredAt, &exited); err != nil {
			return nil, fmt.Errorf("stats.stays scan: %w", err)
		}
		s.ExitedAt = timePtr(exited)
		out = append(out, s)
	}
	return out, rows.Err()
}
