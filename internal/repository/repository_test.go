package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"playas/internal/db"
	apperrors "playas/internal/errors"
)

func TestLotListBuildsFilters(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	owner := 4
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND l.name ILIKE $1 AND l.active AND l.owner_id = $2 ORDER BY l.name")).
		WithArgs("%norte%", 4).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	lots, err := NewLotRepository(conn).List(context.Background(), LotFilter{Query: "norte", ActiveOnly: true, OwnerID: &owner})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lots) != 0 {
		t.Fatalf("expected no lots, got %d", len(lots))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindFreeReturnsNilWhenFull(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	mock.ExpectQuery("FROM spaces").
		WithArgs(1, db.ClassCar).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s, err := NewSpaceRepository(conn).FindFree(context.Background(), 1, db.ClassCar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatalf("expected no space, got %+v", s)
	}
}

func TestSpaceDeleteWithHistoryConflicts(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	mock.ExpectExec("DELETE FROM spaces").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM spaces WHERE id").WithArgs(3).WillReturnRows(
		sqlmock.NewRows([]string{"id", "lot_id", "code", "vehicle_class", "covered", "reserved", "state", "created_at"}).
			AddRow(3, 1, "A3", "car", false, false, "free", time.Now()))

	err = NewSpaceRepository(conn).Delete(context.Background(), 3)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOccupancyOpenSpaceTaken(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE spaces SET state = 'occupied'").
		WithArgs(5, 1, false).
		WillReturnRows(sqlmock.NewRows([]string{"code"}))
	mock.ExpectRollback()

	o := &db.Occupancy{Ticket: "AB12CD34", LotID: 1, SpaceID: 5, VehicleID: 9, EnteredAt: time.Now(), OpenedBy: 2}
	err = NewOccupancyRepository(conn).Open(context.Background(), o, false)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestOccupancyOpenVehicleInside(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE spaces SET state = 'occupied'").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("A5"))
	mock.ExpectQuery("INSERT INTO occupancies").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	o := &db.Occupancy{Ticket: "AB12CD34", LotID: 1, SpaceID: 5, VehicleID: 9, EnteredAt: time.Now(), OpenedBy: 2}
	err = NewOccupancyRepository(conn).Open(context.Background(), o, false)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if o.SpaceCode != "A5" {
		t.Fatalf("space code not read back: %q", o.SpaceCode)
	}
}

func TestRatingUpsertRecomputesAverage(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ratings").
		WithArgs(3, 7, 5, "great").
		WillReturnRows(sqlmock.NewRows([]string{"id", "driver_id", "lot_id", "stars", "comment", "created_at", "updated_at"}).
			AddRow(11, 3, 7, 5, "great", now, now))
	mock.ExpectQuery("UPDATE lots l SET").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"rating_avg", "rating_count"}).AddRow("4.50", 2))
	mock.ExpectCommit()

	agg, err := NewRatingRepository(conn).Upsert(context.Background(), &db.Rating{DriverID: 3, LotID: 7, Stars: 5, Comment: "great"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.Avg.String() != "4.5" || agg.Count != 2 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkPaidBySessionIsIdempotent(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	cols := []string{"id", "lot_id", "occupancy_id", "subscription_id", "shift_id", "amount", "method", "status",
		"stripe_session_id", "stripe_payment_intent", "paid_at", "created_at"}
	now := time.Now()
	mock.ExpectQuery("UPDATE payments SET status = 'paid'").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery("FROM payments WHERE stripe_session_id").
		WithArgs("cs_1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(9, 1, 4, nil, nil, "1500.00", "online", "paid", "cs_1", "pi_1", now, now))

	p, err := NewPaymentRepository(conn).MarkPaidBySession(context.Background(), "cs_1", "pi_1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != db.PaymentPaid || p.OccupancyID == nil || *p.OccupancyID != 4 || p.SubscriptionID != nil {
		t.Fatalf("unexpected payment %+v", p)
	}
}

func TestClaimVehicleOwnedConflicts(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	driver := 4
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $5 AND driver_id IS NULL")).
		WithArgs(4, "Fiat", "Uno", "red", 9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	v := &db.Vehicle{ID: 9, Plate: "AB123CD", Brand: "Fiat", Model: "Uno", Color: "red", DriverID: &driver}
	err = NewDriverRepository(conn).ClaimVehicle(context.Background(), v)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSubscriptionExtendChecksOverlapUnderLock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ends := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	renewed := ends.AddDate(0, 1, 0)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT space_id, ends_at FROM subscriptions").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"space_id", "ends_at"}).AddRow(3, ends))
	mock.ExpectQuery(regexp.QuoteMeta("FROM spaces WHERE id = $1 FOR UPDATE")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE space_id = $1 AND id <> $2")).
		WithArgs(3, 5, ends, renewed).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err = NewSubscriptionRepository(conn).Extend(context.Background(), 5, renewed, nil)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSubscriptionCreateLocksSpace(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM spaces WHERE id = $1 FOR UPDATE")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(3, 0, from, from.AddDate(0, 1, 0)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	s := &db.Subscription{DriverID: 1, LotID: 1, SpaceID: 3, StartsAt: from, EndsAt: from.AddDate(0, 1, 0)}
	err = NewSubscriptionRepository(conn).Create(context.Background(), s, nil)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRateCreateTakesAdvisoryLock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("rate:1:hour:car").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(1, "hour", "car", from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	rate := &db.Rate{LotID: 1, Service: "hour", VehicleClass: "car", Price: decimal.RequireFromString("100"), ValidFrom: from}
	err = NewRateRepository(conn).Create(context.Background(), rate)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPrefixed(t *testing.T) {
	got := prefixed("s.", "id, lot_id,\n\tstate")
	if got != "s.id, s.lot_id, s.state" {
		t.Fatalf("got %q", got)
	}
}
