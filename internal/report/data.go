package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/repository"
)

type DayRow struct {
	Day      string
	Count    int
	ByMethod map[string]decimal.Decimal
	Total    decimal.Decimal
}

type RevenueData struct {
	LotName string
	From    time.Time
	To      time.Time
	Methods []string
	Days    []DayRow
	Count   int
	Total   decimal.Decimal
}

// Revenue folds per-day, per-method rows into one row per day.
func Revenue(lotName string, from, to time.Time, rows []repository.DailyRevenue) RevenueData {
	d := RevenueData{LotName: lotName, From: from, To: to}
	byDay := map[string]*DayRow{}
	methods := map[string]bool{}
	var order []string

	for _, r := range rows {
		row, ok := byDay[r.Day]
		if !ok {
			row = &DayRow{Day: r.Day, ByMethod: map[string]decimal.Decimal{}}
			byDay[r.Day] = row
			order = append(order, r.Day)
		}
		row.Count += r.Count
		row.ByMethod[r.Method] = row.ByMethod[r.Method].Add(r.Total)
		row.Total = row.Total.Add(r.Total)
		methods[r.Method] = true

		d.Count += r.Count
		d.Total = d.Total.Add(r.Total)
	}

	sort.Strings(order)
	for _, day := range order {
		d.Days = append(d.Days, *byDay[day])
	}
	for m := range methods {
		d.Methods = append(d.Methods, m)
	}
	sort.Strings(d.Methods)
	return d
}

type OccupancyData struct {
	LotName string
	From    time.Time
	To      time.Time
	// HourlyAvg is the mean number of vehicles present per hour of day.
	HourlyAvg [24]float64
	Entries   int
	AvgStay   time.Duration
	Capacity  int
}

// Occupancy samples every hour between from and to in loc. Stays still open count until to.
func Occupancy(lotName string, from, to time.Time, loc *time.Location, capacity int, stays []repository.StayWindow) OccupancyData {
	d := OccupancyData{LotName: lotName, From: from, To: to, Capacity: capacity}
	if loc == nil {
		loc = time.UTC
	}

	// a stay counts in an hour it overlaps: entered before the hour ends and
	// not gone by the time it starts
	entered := make([]time.Time, 0, len(stays))
	exited := make([]time.Time, 0, len(stays))
	for _, s := range stays {
		exit := to
		if s.ExitedAt != nil {
			exit = *s.ExitedAt
		}
		if exit.Before(s.EnteredAt) {
			exit = s.EnteredAt
		}
		entered = append(entered, s.EnteredAt)
		exited = append(exited, exit)
	}
	sort.Slice(entered, func(i, j int) bool { return entered[i].Before(entered[j]) })
	sort.Slice(exited, func(i, j int) bool { return exited[i].Before(exited[j]) })

	var sums [24]float64
	var slots [24]int
	in, out := 0, 0
	for slot := from.Truncate(time.Hour); slot.Before(to); slot = slot.Add(time.Hour) {
		end := slot.Add(time.Hour)
		for in < len(entered) && entered[in].Before(end) {
			in++
		}
		for out < len(exited) && !exited[out].After(slot) {
			out++
		}
		h := slot.In(loc).Hour()
		slots[h]++
		sums[h] += float64(in - out)
	}
	for h := range sums {
		if slots[h] > 0 {
			d.HourlyAvg[h] = sums[h] / float64(slots[h])
		}
	}

	var total time.Duration
	var closed int
	for _, s := range stays {
		if s.EnteredAt.Before(from) {
			continue
		}
		d.Entries++
		if s.ExitedAt != nil {
			total += s.ExitedAt.Sub(s.EnteredAt)
			closed++
		}
	}
	if closed > 0 {
		d.AvgStay = (total / time.Duration(closed)).Round(time.Minute)
	}
	return d
}
