package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/db"
	apperrors "playas/internal/errors"
)

type scanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableDecimal(p *decimal.Decimal) any {
	if p == nil {
		return nil
	}
	return p.String()
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// notFound maps sql.ErrNoRows to a not found error and wraps anything else.
func notFound(err error, op, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(op, what+" not found")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// writeErr maps constraint violations to domain errors.
func writeErr(err error, op, conflictMsg string) error {
	switch {
	case db.IsUniqueViolation(err):
		return apperrors.Conflict(op, conflictMsg)
	case db.IsForeignKeyViolation(err):
		return apperrors.Invalid(op, "referenced record does not exist")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectOne(res sql.Result, op, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return apperrors.NotFound(op, what+" not found")
	}
	return nil
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
