package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"playas/internal/api"
	"playas/internal/jobs"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var withJobs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, s)
			if err != nil {
				return err
			}
			defer a.Close()

			if withJobs {
				sched, err := newScheduler(a)
				if err != nil {
					return err
				}
				sched.Start()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
					defer cancel()
					sched.Stop(stopCtx)
				}()
			}

			srv := &http.Server{
				Addr:              ":" + s.Port,
				Handler:           newRouter(a),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				log.Infof("Server running on port %s", s.Port)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Info("Shutting down")
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&withJobs, "with-jobs", false, "also run the scheduled jobs in this process")
	return cmd
}

func newRouter(a *app) http.Handler {
	s, loc := a.services, a.settings.Timezone
	h := api.Handlers{
		Auth:          api.NewAuthHandler(s.auth),
		Lots:          api.NewLotHandler(s.lots, s.rates, loc),
		Spaces:        api.NewSpaceHandler(s.spaces),
		Drivers:       api.NewDriverHandler(s.drivers),
		Occupancies:   api.NewOccupancyHandler(s.occupancies, loc),
		Payments:      api.NewPaymentHandler(s.payments, loc),
		Subscriptions: api.NewSubscriptionHandler(s.subscriptions),
		Shifts:        api.NewShiftHandler(s.shifts, loc),
		Ratings:       api.NewRatingHandler(s.ratings),
		Dashboard:     api.NewDashboardHandler(s.dashboard, s.reports, loc),
	}
	return api.NewRouter(h, api.RouterOptions{
		Issuer:      a.issuer,
		PromPath:    a.settings.PromPath,
		CORSOrigins: a.settings.CORSOrigins,
		Health:      func(r *http.Request) error { return a.ping(r.Context()) },
	})
}

func newScheduler(a *app) (*jobs.Scheduler, error) {
	sched := jobs.NewScheduler(a.locker, a.settings.Timezone)
	err := jobs.Register(sched, a.services.jobs, jobs.Specs{
		Ratings:       a.settings.JobRatingsSpec,
		Subscriptions: a.settings.JobSubscriptionsSpec,
		Shifts:        a.settings.JobShiftsSpec,
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}
