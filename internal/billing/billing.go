// Package billing prices parking stays from the rates valid for a vehicle class.
package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/db"
)

var ErrNoRate = errors.New("no parking rate configured")

type unit struct {
	service string
	length  time.Duration
	// durations below limit are billed in this unit
	limit   time.Duration
}

var units = []unit{
	{db.ServiceHour, time.Hour, 24 * time.Hour},
	{db.ServiceDay, 24 * time.Hour, 7 * 24 * time.Hour},
	{db.ServiceWeek, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
	{db.ServiceMonth, 30 * 24 * time.Hour, 0},
}

// Prices maps a service (hour, day, week, month) to its unit price.
type Prices map[string]decimal.Decimal

type Quote struct {
	Billable        time.Duration   `json:"-"`
	BillableMinutes int             `json:"billable_minutes"`
	Unit            string          `json:"unit,omitempty"`
	Count           int             `json:"count"`
	Parking         decimal.Decimal `json:"parking"`
	Extras          decimal.Decimal `json:"extras"`
	Total           decimal.Decimal `json:"total"`
	Covered         bool            `json:"covered_by_subscription"`
}

type Stay struct {
	EnteredAt        time.Time
	ExitedAt         time.Time
	ToleranceMinutes int
	Covered          bool
	Extras           []decimal.Decimal
}

// Compute prices a stay. The unit is picked from the billable duration and the
// count rounds up; when a cheaper total exists in a larger unit that one wins.
func Compute(stay Stay, prices Prices) (Quote, error) {
	q := Quote{Covered: stay.Covered, Parking: decimal.Zero, Extras: decimal.Zero}
	for _, e := range stay.Extras {
		q.Extras = q.Extras.Add(e)
	}

	billable := stay.ExitedAt.Sub(stay.EnteredAt) - time.Duration(stay.ToleranceMinutes)*time.Minute
	if billable < 0 {
		billable = 0
	}
	q.Billable = billable
	q.BillableMinutes = int(billable / time.Minute)

	if stay.Covered || billable == 0 {
		q.Total = q.Extras
		return q, nil
	}

	idx := bestUnit(billable)
	for idx >= 0 {
		if _, ok := prices[units[idx].service]; ok {
			break
		}
		idx--
	}
	if idx < 0 {
		idx = firstPriced(prices)
		if idx < 0 {
			return q, ErrNoRate
		}
	}

	q.Unit, q.Count, q.Parking = priceIn(units[idx], billable, prices)
	for _, larger := range units[idx+1:] {
		if _, ok := prices[larger.service]; !ok {
			continue
		}
		u, c, p := priceIn(larger, billable, prices)
		if p.LessThan(q.Parking) {
			q.Unit, q.Count, q.Parking = u, c, p
		}
	}
	q.Total = q.Parking.Add(q.Extras)
	return q, nil
}

// UnitAndCount returns the natural billing unit for d and how many of them, rounded up.
func UnitAndCount(d time.Duration) (string, int) {
	u := units[bestUnit(d)]
	return u.service, CeilUnits(d, u.length)
}

// CeilUnits divides d by length rounding up, never below one.
func CeilUnits(d, length time.Duration) int {
	count := int(d / length)
	if d%length != 0 {
		count++
	}
	if count == 0 {
		count = 1
	}
	return count
}

func bestUnit(d time.Duration) int {
	for i, u := range units {
		if u.limit == 0 || d < u.limit {
			return i
		}
	}
	return len(units) - 1
}

func firstPriced(prices Prices) int {
	for i, u := range units {
		if _, ok := prices[u.service]; ok {
			return i
		}
	}
	return -1
}

func priceIn(u unit, d time.Duration, prices Prices) (string, int, decimal.Decimal) {
	count := CeilUnits(d, u.length)
	return u.service, count, prices[u.service].Mul(decimal.NewFromInt(int64(count)))
}

// IsParkingService reports whether service is one of the time units.
func IsParkingService(service string) bool {
	for _, u := range units {
		if u.service == service {
			return true
		}
	}
	return false
}
