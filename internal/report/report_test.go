package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/repository"
)

func TestRevenueFoldsMethods(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []repository.DailyRevenue{
		{Day: "2024-05-02", Method: "cash", Count: 2, Total: decimal.NewFromInt(3000)},
		{Day: "2024-05-01", Method: "card", Count: 1, Total: decimal.NewFromInt(500)},
		{Day: "2024-05-01", Method: "cash", Count: 3, Total: decimal.NewFromInt(1500)},
	}
	d := Revenue("Centro", from, from.AddDate(0, 0, 7), rows)

	if len(d.Days) != 2 || d.Days[0].Day != "2024-05-01" {
		t.Fatalf("days not ordered: %+v", d.Days)
	}
	if d.Days[0].Count != 4 || !d.Days[0].Total.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected first day %+v", d.Days[0])
	}
	if d.Count != 6 || !d.Total.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected totals %d %s", d.Count, d.Total)
	}
	if len(d.Methods) != 2 || d.Methods[0] != "card" {
		t.Fatalf("unexpected methods %v", d.Methods)
	}
}

func TestOccupancyHourlyAverage(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)
	at := func(day, h, m int) time.Time { return from.AddDate(0, 0, day).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }
	exit1 := at(0, 11, 0)
	exit2 := at(1, 10, 30)
	stays := []repository.StayWindow{
		{EnteredAt: at(0, 9, 0), ExitedAt: &exit1},
		{EnteredAt: at(1, 9, 30), ExitedAt: &exit2},
		{EnteredAt: at(1, 23, 0)},
	}
	d := Occupancy("Centro", from, to, time.UTC, 10, stays)

	if d.HourlyAvg[9] != 1 {
		t.Fatalf("hour 9: got %v, want 1", d.HourlyAvg[9])
	}
	if d.HourlyAvg[10] != 1 {
		t.Fatalf("hour 10: got %v, want 1", d.HourlyAvg[10])
	}
	if d.HourlyAvg[23] != 0.5 {
		t.Fatalf("hour 23: got %v, want 0.5", d.HourlyAvg[23])
	}
	if d.HourlyAvg[3] != 0 {
		t.Fatalf("hour 3: got %v, want 0", d.HourlyAvg[3])
	}
	if d.Entries != 3 {
		t.Fatalf("entries: got %d", d.Entries)
	}
	if d.AvgStay != 90*time.Minute {
		t.Fatalf("avg stay: got %v", d.AvgStay)
	}
}

func TestPDFsRender(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rev := Revenue("Playa Güemes", from, from.AddDate(0, 0, 1), []repository.DailyRevenue{
		{Day: "2024-05-01", Method: "cash", Count: 1, Total: decimal.NewFromInt(1000)},
	})
	var buf bytes.Buffer
	if err := RevenuePDF(&buf, rev); err != nil {
		t.Fatalf("revenue pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("not a pdf")
	}

	buf.Reset()
	if err := OccupancyPDF(&buf, OccupancyData{LotName: "Vacía", From: from, To: from.AddDate(0, 0, 1)}); err != nil {
		t.Fatalf("occupancy pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("not a pdf")
	}
}

func TestOccupancyMatchesPerStayCount(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 3)
	var stays []repository.StayWindow
	for i := 0; i < 40; i++ {
		in := from.Add(time.Duration(i*97) * time.Minute)
		s := repository.StayWindow{EnteredAt: in}
		if i%5 != 0 {
			out := in.Add(time.Duration(30+i*13) * time.Minute)
			s.ExitedAt = &out
		}
		stays = append(stays, s)
	}

	var want [24]float64
	var slots [24]int
	for slot := from; slot.Before(to); slot = slot.Add(time.Hour) {
		h := slot.Hour()
		slots[h]++
		for _, s := range stays {
			exit := to
			if s.ExitedAt != nil {
				exit = *s.ExitedAt
			}
			if s.EnteredAt.Before(slot.Add(time.Hour)) && exit.After(slot) {
				want[h]++
			}
		}
	}
	d := Occupancy("Centro", from, to, time.UTC, 10, stays)
	for h := range want {
		if w := want[h] / float64(slots[h]); d.HourlyAvg[h] != w {
			t.Errorf("hour %d: got %v, want %v", h, d.HourlyAvg[h], w)
		}
	}
}
