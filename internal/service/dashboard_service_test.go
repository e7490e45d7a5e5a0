package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/db"
	"playas/internal/repository"
)

func TestDashboardSummarizesAndCaches(t *testing.T) {
	e := newParkingEnv(t)
	ctx := context.Background()
	if _, err := e.svc.CheckIn(ctx, admin, 1, CheckInInput{Plate: "AB123CD", VehicleClass: "car"}); err != nil {
		t.Fatal(err)
	}
	e.now = e.now.Add(70 * time.Minute)

	stats := &fakeStats{
		counts: []repository.SpaceCount{
			{VehicleClass: db.ClassCar, State: db.SpaceOccupied, Count: 1},
			{VehicleClass: db.ClassCar, State: db.SpaceFree, Reserved: true, Count: 1},
			{VehicleClass: db.ClassCar, State: db.SpaceFree, Count: 6},
			{VehicleClass: db.ClassMotorcycle, State: db.SpaceFree, Count: 1},
			{VehicleClass: db.ClassMotorcycle, State: db.SpaceOutOfService, Count: 1},
		},
		revenue: map[string]decimal.Decimal{db.MethodCash: dec("300"), db.MethodCard: dec("150.50")},
	}
	svc := NewDashboardService(stats, e.shifts, e.svc, NewAccess(e.lots, e.shifts), e.cache, time.Minute, time.UTC)
	svc.now = func() time.Time { return e.now }

	d, err := svc.Lot(ctx, attendant, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := SpaceSummary{Total: 10, Free: 7, Occupied: 1, Reserved: 1, OutOfService: 1, OccupancyPct: 11.1}
	if d.Spaces != want {
		t.Errorf("spaces = %+v, want %+v", d.Spaces, want)
	}
	if len(d.ByClass) != 2 || d.ByClass[0].VehicleClass != db.ClassCar || d.ByClass[0].Total != 8 {
		t.Errorf("by class = %+v", d.ByClass)
	}
	if len(d.Active) != 1 || d.Active[0].ElapsedMinutes != 70 {
		t.Fatalf("active = %+v", d.Active)
	}
	// one hour after tolerance
	if d.Active[0].Amount == nil || !d.Active[0].Amount.Equal(dec("100")) {
		t.Errorf("running amount = %v, want 100", d.Active[0].Amount)
	}
	if !d.RevenueTotal.Equal(dec("450.50")) {
		t.Errorf("revenue = %s", d.RevenueTotal)
	}
	if len(d.OpenShifts) != 1 {
		t.Errorf("open shifts = %+v", d.OpenShifts)
	}

	stats.counts = nil
	cached, err := svc.Lot(ctx, attendant, 1)
	if err != nil {
		t.Fatal(err)
	}
	if cached.Spaces.Total != 10 {
		t.Errorf("second read was not served from cache: %+v", cached.Spaces)
	}

	invalidateDashboard(ctx, e.cache, 1)
	fresh, _ := svc.Lot(ctx, attendant, 1)
	if fresh.Spaces.Total != 0 {
		t.Errorf("invalidated read = %+v", fresh.Spaces)
	}
}

func TestDashboardOverview(t *testing.T) {
	e := newParkingEnv(t)
	stats := &fakeStats{counts: []repository.SpaceCount{{VehicleClass: db.ClassCar, State: db.SpaceFree, Count: 4}}}
	svc := NewDashboardService(stats, e.shifts, e.svc, NewAccess(e.lots, e.shifts), nil, 0, nil)

	list, err := svc.Overview(context.Background(), attendant)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].LotName != "Centro" || list[0].Spaces.Free != 4 {
		t.Errorf("overview = %+v", list)
	}
}
