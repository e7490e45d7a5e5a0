package service

import (
	"context"
	"io"
	"time"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/report"
	"playas/internal/repository"
)

const maxReportDays = 366

type ReportService struct {
	stats  repository.StatsRepository
	access *Access
	loc    *time.Location
	now    func() time.Time
}

func NewReportService(stats repository.StatsRepository, access *Access, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{stats: stats, access: access, loc: loc, now: time.Now}
}

// period defaults to the last 30 days ending today, in local days. The end
// never passes the current time so open stays are not counted in the future.
func (s *ReportService) period(from, to *time.Time) (time.Time, time.Time, error) {
	now := s.now()
	local := now.In(s.loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -30)
	if from != nil {
		start = *from
	}
	if end.After(now) {
		end = now
	}
	if !start.Before(end) {
		return start, end, apperrors.Invalid("reports.period", "from must be before to")
	}
	if end.Sub(start) > maxReportDays*24*time.Hour {
		return start, end, apperrors.Invalid("reports.period", "period is longer than a year")
	}
	return start, end, nil
}

func (s *ReportService) Revenue(ctx context.Context, p auth.Principal, lotID int, from, to *time.Time, w io.Writer) error {
	lot, err := s.access.Manage(ctx, p, lotID)
	if err != nil {
		return err
	}
	start, end, err := s.period(from, to)
	if err != nil {
		return err
	}
	rows, err := s.stats.DailyRevenue(ctx, lotID, start, end, s.loc.String())
	if err != nil {
		return err
	}
	return report.RevenuePDF(w, report.Revenue(lot.Name, start, end, rows))
}

func (s *ReportService) Occupancy(ctx context.Context, p auth.Principal, lotID int, from, to *time.Time, w io.Writer) error {
	lot, err := s.access.Manage(ctx, p, lotID)
	if err != nil {
		return err
	}
	start, end, err := s.period(from, to)
	if err != nil {
		return err
	}
	counts, err := s.stats.SpaceCounts(ctx, lotID)
	if err != nil {
		return err
	}
	capacity := 0
	for _, c := range counts {
		if c.State != db.SpaceOutOfService {
			capacity += c.Count
		}
	}
	stays, err := s.stats.Stays(ctx, lotID, start, end)
	if err != nil {
		return err
	}
	return report.OccupancyPDF(w, report.Occupancy(lot.Name, start, end, s.loc, capacity, stays))
}
