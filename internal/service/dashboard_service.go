package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/cache"
	"playas/internal/db"
	"playas/internal/metrics"
	"playas/internal/repository"
)

func dashboardKey(lotID int) string {
	return fmt.Sprintf("dashboard:lot:%d", lotID)
}

// invalidateDashboard drops the cached dashboard; a failure only delays freshness until the TTL.
func invalidateDashboard(ctx context.Context, c cache.Cache, lotID int) {
	if c == nil {
		return
	}
	if err := c.Delete(ctx, dashboardKey(lotID)); err != nil {
		log.WithError(err).WithField("lot_id", lotID).Warn("Failed to invalidate dashboard cache")
	}
}

type SpaceSummary struct {
	VehicleClass string  `json:"vehicle_class,omitempty"`
	Total        int     `json:"total"`
	Free         int     `json:"free"`
	Occupied     int     `json:"occupied"`
	Reserved     int     `json:"reserved"`
	OutOfService int     `json:"out_of_service"`
	OccupancyPct float64 `json:"occupancy_pct"`
}

func (s *SpaceSummary) add(c repository.SpaceCount) {
	s.Total += c.Count
	switch {
	case c.State == db.SpaceOccupied:
		s.Occupied += c.Count
	case c.State == db.SpaceOutOfService:
		s.OutOfService += c.Count
	case c.Reserved:
		s.Reserved += c.Count
	default:
		s.Free += c.Count
	}
}

func (s *SpaceSummary) finish() {
	usable := s.Total - s.OutOfService
	if usable > 0 {
		s.OccupancyPct = math.Round(float64(s.Occupied)*1000/float64(usable)) / 10
	}
}

type DashboardStay struct {
	OccupancyID    int              `json:"occupancy_id"`
	Ticket         string           `json:"ticket"`
	Plate          string           `json:"plate"`
	VehicleClass   string           `json:"vehicle_class"`
	SpaceCode      string           `json:"space_code"`
	EnteredAt      time.Time        `json:"entered_at"`
	ElapsedMinutes int              `json:"elapsed_minutes"`
	Subscriber     bool             `json:"subscriber"`
	Amount         *decimal.Decimal `json:"amount"`
}

type DashboardShift struct {
	ID          int             `json:"id"`
	AttendantID int             `json:"attendant_id"`
	OpenedAt    time.Time       `json:"opened_at"`
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

type Dashboard struct {
	LotID        int                        `json:"lot_id"`
	LotName      string                     `json:"lot_name"`
	GeneratedAt  time.Time                  `json:"generated_at"`
	Spaces       SpaceSummary               `json:"spaces"`
	ByClass      []SpaceSummary             `json:"by_class"`
	Active       []DashboardStay            `json:"active"`
	RevenueToday map[string]decimal.Decimal `json:"revenue_today"`
	RevenueTotal decimal.Decimal            `json:"revenue_today_total"`
	OpenShifts   []DashboardShift           `json:"open_shifts"`
	RatingAvg    decimal.Decimal            `json:"rating_avg"`
	RatingCount  int                        `json:"rating_count"`
}

// LotOverview is one line of the multi-lot overview.
type LotOverview struct {
	LotID        int             `json:"lot_id"`
	LotName      string          `json:"lot_name"`
	Active       bool            `json:"active"`
	Spaces       SpaceSummary    `json:"spaces"`
	RevenueTotal decimal.Decimal `json:"revenue_today_total"`
	RatingAvg    decimal.Decimal `json:"rating_avg"`
}

type DashboardService struct {
	stats       repository.StatsRepository
	shifts      repository.ShiftRepository
	occupancies *OccupancyService
	access      *Access
	cache       cache.Cache
	ttl         time.Duration
	loc         *time.Location
	now         func() time.Time
}

func NewDashboardService(stats repository.StatsRepository, shifts repository.ShiftRepository, occupancies *OccupancyService,
	access *Access, c cache.Cache, ttl time.Duration, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{
		stats:       stats,
		shifts:      shifts,
		occupancies: occupancies,
		access:      access,
		cache:       c,
		ttl:         ttl,
		loc:         loc,
		now:         time.Now,
	}
}

func (s *DashboardService) Lot(ctx context.Context, p auth.Principal, lotID int) (*Dashboard, error) {
	lot, err := s.access.View(ctx, p, lotID)
	if err != nil {
		return nil, err
	}
	return s.cached(ctx, lot)
}

func (s *DashboardService) Overview(ctx context.Context, p auth.Principal) ([]LotOverview, error) {
	lots, err := s.access.VisibleLots(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]LotOverview, 0, len(lots))
	for i := range lots {
		d, err := s.cached(ctx, &lots[i])
		if err != nil {
			return nil, err
		}
		out = append(out, LotOverview{
			LotID:        d.LotID,
			LotName:      d.LotName,
			Active:       lots[i].Active,
			Spaces:       d.Spaces,
			RevenueTotal: d.RevenueTotal,
			RatingAvg:    d.RatingAvg,
		})
	}
	return out, nil
}

func (s *DashboardService) cached(ctx context.Context, lot *db.Lot) (*Dashboard, error) {
	key := dashboardKey(lot.ID)
	var d Dashboard
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, key, &d)
		if err != nil {
			log.WithError(err).WithField("lot_id", lot.ID).Warn("Dashboard cache read failed")
		} else if hit {
			return &d, nil
		}
	}
	fresh, err := s.compute(ctx, lot)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
			log.WithError(err).WithField("lot_id", lot.ID).Warn("Dashboard cache write failed")
		}
	}
	return fresh, nil
}

func (s *DashboardService) compute(ctx context.Context, lot *db.Lot) (*Dashboard, error) {
	now := s.now()
	d := &Dashboard{
		LotID:       lot.ID,
		LotName:     lot.Name,
		GeneratedAt: now,
		RatingAvg:   lot.RatingAvg,
		RatingCount: lot.RatingCount,
	}

	counts, err := s.stats.SpaceCounts(ctx, lot.ID)
	if err != nil {
		return nil, err
	}
	byClass := map[string]*SpaceSummary{}
	for _, c := range counts {
		d.Spaces.add(c)
		cs, ok := byClass[c.VehicleClass]
		if !ok {
			cs = &SpaceSummary{VehicleClass: c.VehicleClass}
			byClass[c.VehicleClass] = cs
		}
		cs.add(c)
	}
	d.Spaces.finish()
	for _, cs := range byClass {
		cs.finish()
		d.ByClass = append(d.ByClass, *cs)
	}
	sort.Slice(d.ByClass, func(i, j int) bool { return d.ByClass[i].VehicleClass < d.ByClass[j].VehicleClass })
	s.observe(lot.ID, d.Spaces)

	stays, err := s.occupancies.activeStays(ctx, lot)
	if err != nil {
		return nil, err
	}
	d.Active = make([]DashboardStay, 0, len(stays))
	for _, st := range stays {
		v := DashboardStay{
			OccupancyID:    st.Occupancy.ID,
			Ticket:         st.Occupancy.Ticket,
			Plate:          st.Occupancy.Plate,
			VehicleClass:   st.Occupancy.VehicleClass,
			SpaceCode:      st.Occupancy.SpaceCode,
			EnteredAt:      st.Occupancy.EnteredAt,
			ElapsedMinutes: st.ElapsedMinutes,
			Subscriber:     st.Occupancy.SubscriptionID != nil,
		}
		if st.Quote != nil {
			total := st.Quote.Total
			v.Amount = &total
		}
		d.Active = append(d.Active, v)
	}

	local := now.In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	d.RevenueToday, err = s.stats.RevenueByMethod(ctx, lot.ID, midnight, now)
	if err != nil {
		return nil, err
	}
	d.RevenueTotal = decimal.Zero
	for _, v := range d.RevenueToday {
		d.RevenueTotal = d.RevenueTotal.Add(v)
	}

	shifts, err := s.shifts.List(ctx, repository.ShiftFilter{LotID: &lot.ID, OpenOnly: true})
	if err != nil {
		return nil, err
	}
	d.OpenShifts = make([]DashboardShift, 0, len(shifts))
	for _, sh := range shifts {
		d.OpenShifts = append(d.OpenShifts, DashboardShift{
			ID:          sh.ID,
			AttendantID: sh.AttendantID,
			OpenedAt:    sh.OpenedAt,
			OpeningCash: sh.OpeningCash,
		})
	}
	return d, nil
}

func (s *DashboardService) observe(lotID int, sum SpaceSummary) {
	lot := metrics.Lot(lotID)
	metrics.Spaces.WithLabelValues(lot, db.SpaceFree).Set(float64(sum.Free))
	metrics.Spaces.WithLabelValues(lot, db.SpaceOccupied).Set(float64(sum.Occupied))
	metrics.Spaces.WithLabelValues(lot, "reserved").Set(float64(sum.Reserved))
	metrics.Spaces.WithLabelValues(lot, db.SpaceOutOfService).Set(float64(sum.OutOfService))
}
