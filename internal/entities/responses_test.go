package entities

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/db"
)

func TestFromLotFormatsSchedule(t *testing.T) {
	lot := &db.Lot{
		ID:   4,
		Name: "Centro",
		Schedule: []db.ScheduleEntry{
			{Weekday: time.Monday, Opens: 7 * 60, Closes: 22*60 + 30},
			{Weekday: time.Saturday, Opens: 22 * 60, Closes: 2 * 60},
		},
	}
	r := FromLot(lot)
	if len(r.Schedule) != 2 {
		t.Fatalf("schedule entries = %d, want 2", len(r.Schedule))
	}
	if r.Schedule[0].Opens != "07:00" || r.Schedule[0].Closes != "22:30" || r.Schedule[0].Day != "Monday" {
		t.Errorf("first entry = %+v", r.Schedule[0])
	}
	if r.Schedule[1].Weekday != 6 || r.Schedule[1].Closes != "02:00" {
		t.Errorf("second entry = %+v", r.Schedule[1])
	}
	if r.PaymentMethods == nil {
		t.Error("payment methods should encode as an empty list")
	}
}

func TestOccupancyResponseJSON(t *testing.T) {
	amount := decimal.RequireFromString("550")
	o := &db.Occupancy{
		ID:        9,
		Ticket:    "AB12CD34",
		Plate:     "AB123CD",
		EnteredAt: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		Amount:    &amount,
	}
	b, err := json.Marshal(FromOccupancy(o))
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"ticket":"AB12CD34"`, `"amount":"550"`, `"extras":[]`} {
		if !strings.Contains(s, want) {
			t.Errorf("json %s missing %s", s, want)
		}
	}
	if strings.Contains(s, "exited_at") {
		t.Errorf("json %s should omit exited_at while inside", s)
	}
}

func TestFromShiftCarriesDifference(t *testing.T) {
	diff := decimal.RequireFromString("-20")
	r := FromShift(&db.Shift{ID: 1, OpeningCash: decimal.NewFromInt(100)}, &diff)
	if r.Difference == nil || !r.Difference.Equal(diff) {
		t.Errorf("difference = %v, want -20", r.Difference)
	}
}
