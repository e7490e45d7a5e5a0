// Package jobs runs the periodic maintenance tasks. Every run takes a
// cluster-wide lock so that only one instance executes a job at a time.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"playas/internal/cache"
	"playas/internal/metrics"
)

const (
	Ratings       = "ratings"
	Subscriptions = "subscriptions"
	Shifts        = "shifts"
)

type Func func(ctx context.Context) error

type job struct {
	spec string
	run  Func
}

type Scheduler struct {
	cron    *cron.Cron
	locker  cache.Locker
	lockTTL time.Duration
	jobs    map[string]job
}

func NewScheduler(locker cache.Locker, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log.StandardLogger()))),
		),
		locker:  locker,
		lockTTL: 10 * time.Minute,
		jobs:    map[string]job{},
	}
}

// Add registers fn under name. An empty spec registers the job for manual runs only.
func (s *Scheduler) Add(name, spec string, fn Func) error {
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s registered twice", name)
	}
	if spec != "" {
		_, err := s.cron.AddFunc(spec, func() {
			if err := s.Run(context.Background(), name); err != nil && !errors.Is(err, cache.ErrNotObtained) {
				log.WithError(err).WithField("job", name).Error("Cron Job failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}
	}
	s.jobs[name] = job{spec: spec, run: fn}
	return nil
}

func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes one job now, under its lock. It returns cache.ErrNotObtained
// when another instance holds the lock.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	logger := log.WithField("job", name)

	lock, err := s.locker.Obtain(ctx, "job:"+name, s.lockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrNotObtained) {
			logger.Debug("Cron Job skipped, running elsewhere")
		}
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.WithError(err).Warn("Failed to release job lock")
		}
	}()

	start := time.Now()
	err = j.run(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.JobDuration.WithLabelValues(name, result).Observe(time.Since(start).Seconds())
	logger.WithField("duration", time.Since(start).String()).Debug("Cron Job finished")
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
