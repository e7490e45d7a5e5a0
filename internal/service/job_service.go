package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"playas/internal/cache"
	"playas/internal/events"
	"playas/internal/repository"
)

type JobService struct {
	repo      repository.JobRepository
	drivers   repository.DriverRepository
	lots      repository.LotRepository
	spaces    repository.SpaceRepository
	publisher events.Publisher
	cache     cache.Cache
	warnDays  int
	maxShift  time.Duration
	now       func() time.Time
}

type JobDeps struct {
	Jobs          repository.JobRepository
	Drivers       repository.DriverRepository
	Lots          repository.LotRepository
	Spaces        repository.SpaceRepository
	Publisher     events.Publisher
	Cache         cache.Cache
	WarnDays      int
	ShiftMaxHours int
}

func NewJobService(d JobDeps) *JobService {
	return &JobService{
		repo:      d.Jobs,
		drivers:   d.Drivers,
		lots:      d.Lots,
		spaces:    d.Spaces,
		publisher: d.Publisher,
		cache:     d.Cache,
		warnDays:  d.WarnDays,
		maxShift:  time.Duration(d.ShiftMaxHours) * time.Hour,
		now:       time.Now,
	}
}

// ExpireSubscriptions ends subscriptions past their end date and tells their drivers.
func (s *JobService) ExpireSubscriptions(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireSubscriptions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cron job: failed to expire subscriptions: %w", err)
	}
	lotNames := map[int]string{}
	for _, sub := range expired {
		e := events.New(events.SubscriptionExpired, sub.LotID)
		e.SubscriptionID = sub.ID
		e.EndsAt = events.FormatTime(sub.EndsAt)
		if name, ok := lotNames[sub.LotID]; ok {
			e.LotName = name
		} else if lot, err := s.lots.Get(ctx, sub.LotID); err == nil {
			lotNames[sub.LotID] = lot.Name
			e.LotName = lot.Name
			invalidateDashboard(ctx, s.cache, sub.LotID)
		}
		if sp, err := s.spaces.Get(ctx, sub.SpaceID); err == nil {
			e.SpaceCode = sp.Code
		}
		if d, err := s.drivers.GetDriver(ctx, sub.DriverID); err == nil {
			e.DriverName, e.Email, e.Phone = d.FullName, d.Email, d.Phone
		} else {
			log.WithError(err).WithField("subscription_id", sub.ID).Warn("Expired subscription without driver contact")
		}
		events.Emit(ctx, s.publisher, e)
	}
	if len(expired) > 0 {
		log.WithField("count", len(expired)).Info("Cron Job: Subscriptions expired")
	}
	return len(expired), nil
}

// WarnExpiring publishes one reminder per subscription ending within the warning window.
func (s *JobService) WarnExpiring(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.SubscriptionsToWarn(ctx, now, now.AddDate(0, 0, s.warnDays))
	if err != nil {
		return 0, fmt.Errorf("cron job: failed to load expiring subscriptions: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}
	ids := make([]int, 0, len(due))
	for _, sub := range due {
		e := events.New(events.SubscriptionExpiring, sub.LotID)
		e.LotName = sub.LotName
		e.SubscriptionID = sub.SubscriptionID
		e.SpaceCode = sub.SpaceCode
		e.EndsAt = events.FormatTime(sub.EndsAt)
		e.DriverName, e.Email, e.Phone = sub.DriverName, sub.Email, sub.Phone
		events.Emit(ctx, s.publisher, e)
		ids = append(ids, sub.SubscriptionID)
	}
	if err := s.repo.MarkWarned(ctx, ids, now); err != nil {
		return 0, fmt.Errorf("cron job: failed to mark subscriptions warned: %w", err)
	}
	log.WithField("count", len(ids)).Info("Cron Job: Expiry reminders queued")
	return len(ids), nil
}

// AutoCloseShifts closes shifts open longer than the maximum, declaring the expected cash.
func (s *JobService) AutoCloseShifts(ctx context.Context) (int, error) {
	if s.maxShift <= 0 {
		return 0, nil
	}
	now := s.now()
	closed, err := s.repo.AutoCloseStaleShifts(ctx, now.Add(-s.maxShift), now)
	if err != nil {
		return 0, fmt.Errorf("cron job: failed to close stale shifts: %w", err)
	}
	for _, sh := range closed {
		log.WithFields(log.Fields{
			"shift_id":     sh.ID,
			"lot_id":       sh.LotID,
			"attendant_id": sh.AttendantID,
			"opened_at":    sh.OpenedAt,
		}).Warn("Cron Job: Shift auto-closed")
		invalidateDashboard(ctx, s.cache, sh.LotID)
	}
	return len(closed), nil
}

func (s *JobService) RecomputeRatings(ctx context.Context) (int64, error) {
	n, err := s.repo.RecomputeAllRatings(ctx)
	if err != nil {
		return 0, fmt.Errorf("cron job: failed to recompute ratings: %w", err)
	}
	log.WithField("lots", n).Info("Cron Job: Ratings recomputed")
	return n, nil
}
