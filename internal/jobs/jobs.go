package jobs

import (
	"context"
	"errors"

	"playas/internal/service"
)

type Specs struct {
	Ratings       string
	Subscriptions string
	Shifts        string
}

// Register wires the maintenance jobs of the service layer.
func Register(s *Scheduler, svc *service.JobService, specs Specs) error {
	return errors.Join(
		s.Add(Ratings, specs.Ratings, func(ctx context.Context) error {
			_, err := svc.RecomputeRatings(ctx)
			return err
		}),
		s.Add(Subscriptions, specs.Subscriptions, func(ctx context.Context) error {
			_, expErr := svc.ExpireSubscriptions(ctx)
			_, warnErr := svc.WarnExpiring(ctx)
			return errors.Join(expErr, warnErr)
		}),
		s.Add(Shifts, specs.Shifts, func(ctx context.Context) error {
			_, err := svc.AutoCloseShifts(ctx)
			return err
		}),
	)
}
