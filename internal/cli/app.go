package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/cache"
	"playas/internal/config"
	"playas/internal/db"
	"playas/internal/events"
	"playas/internal/payments"
	"playas/internal/repository"
	"playas/internal/service"
)

// app holds the shared connections and the service layer built on them.
type app struct {
	settings  *config.Settings
	conn      *sql.DB
	rds       *redis.Client
	queue     *events.RMQueue
	cache     cache.Cache
	locker    cache.Locker
	publisher events.Publisher
	gateway   payments.Gateway
	issuer    *auth.Issuer

	repos    repos
	services services
}

type repos struct {
	users         repository.UserRepository
	lots          repository.LotRepository
	spaces        repository.SpaceRepository
	drivers       repository.DriverRepository
	rates         repository.RateRepository
	occupancies   repository.OccupancyRepository
	payments      repository.PaymentRepository
	subscriptions repository.SubscriptionRepository
	shifts        repository.ShiftRepository
	ratings       repository.RatingRepository
	stats         repository.StatsRepository
	jobs          repository.JobRepository
}

type services struct {
	access        *service.Access
	auth          *service.AuthService
	lots          *service.LotService
	spaces        *service.SpaceService
	drivers       *service.DriverService
	rates         *service.RateService
	occupancies   *service.OccupancyService
	payments      *service.PaymentService
	subscriptions *service.SubscriptionService
	shifts        *service.ShiftService
	ratings       *service.RatingService
	dashboard     *service.DashboardService
	reports       *service.ReportService
	jobs          *service.JobService
}

func newApp(ctx context.Context, s *config.Settings) (*app, error) {
	conn, err := db.Open(s.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &app{settings: s, conn: conn, issuer: auth.NewIssuer(s.JWTSecret, 0)}

	if s.RedisURL != "" {
		opt, err := redis.ParseURL(s.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		a.rds = redis.NewClient(opt)
		a.cache = cache.NewRedisCache(a.rds)
		a.locker = cache.NewRedisLocker(a.rds)
	} else {
		log.Warn("REDIS_URL not set, using in-process cache and locks")
		a.cache = cache.NewMemoryCache()
		a.locker = cache.NewLocalLocker()
	}

	if s.RMQURL != "" {
		a.queue, err = events.NewRMQueue(s.RMQURL, s.EventsQueueName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to RMQ: %w", err)
		}
		a.publisher = events.NewQueuePublisher(a.queue)
	} else {
		log.Warn("RMQ_URL not set, events will only be logged")
		a.publisher = events.LogPublisher{}
	}

	if s.StripeSecretKey != "" {
		a.gateway = payments.NewStripeGateway(s.StripeSecretKey, s.StripeWebhookSecret, s.Currency, s.StripeSuccessURL, s.StripeCancelURL)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, online payments disabled")
		a.gateway = payments.Disabled{}
	}

	a.repos = repos{
		users:         repository.NewUserRepository(conn),
		lots:          repository.NewLotRepository(conn),
		spaces:        repository.NewSpaceRepository(conn),
		drivers:       repository.NewDriverRepository(conn),
		rates:         repository.NewRateRepository(conn),
		occupancies:   repository.NewOccupancyRepository(conn),
		payments:      repository.NewPaymentRepository(conn),
		subscriptions: repository.NewSubscriptionRepository(conn),
		shifts:        repository.NewShiftRepository(conn),
		ratings:       repository.NewRatingRepository(conn),
		stats:         repository.NewStatsRepository(conn),
		jobs:          repository.NewJobRepository(conn),
	}
	a.services = a.buildServices()
	return a, nil
}

func (a *app) buildServices() services {
	r := a.repos
	s := a.settings
	access := service.NewAccess(r.lots, r.shifts)
	occupancies := service.NewOccupancyService(service.OccupancyDeps{
		Occupancies:   r.occupancies,
		Spaces:        r.spaces,
		Drivers:       r.drivers,
		Subscriptions: r.subscriptions,
		Rates:         r.rates,
		Payments:      r.payments,
		Access:        access,
		Locker:        a.locker,
		Cache:         a.cache,
		Publisher:     a.publisher,
		Gateway:       a.gateway,
		Location:      s.Timezone,
	})
	return services{
		access:        access,
		auth:          service.NewAuthService(r.users, a.issuer),
		lots:          service.NewLotService(r.lots, r.users, access),
		spaces:        service.NewSpaceService(r.spaces, access, a.cache),
		drivers:       service.NewDriverService(r.drivers, r.occupancies),
		rates:         service.NewRateService(r.rates, access),
		occupancies:   occupancies,
		payments:      service.NewPaymentService(r.payments, access, a.gateway, a.cache),
		subscriptions: service.NewSubscriptionService(r.subscriptions, r.spaces, r.drivers, r.rates, access, a.cache),
		shifts:        service.NewShiftService(r.shifts, r.payments, access),
		ratings:       service.NewRatingService(r.ratings, r.drivers, r.lots, a.publisher),
		dashboard:     service.NewDashboardService(r.stats, r.shifts, occupancies, access, a.cache, s.DashboardCacheTTL, s.Timezone),
		reports:       service.NewReportService(r.stats, access, s.Timezone),
		jobs: service.NewJobService(service.JobDeps{
			Jobs:          r.jobs,
			Drivers:       r.drivers,
			Lots:          r.lots,
			Spaces:        r.spaces,
			Publisher:     a.publisher,
			Cache:         a.cache,
			WarnDays:      s.SubscriptionWarnDays,
			ShiftMaxHours: s.ShiftMaxHours,
		}),
	}
}

// ping backs /healthz.
func (a *app) ping(ctx context.Context) error {
	if err := a.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.rds != nil {
		if err := a.rds.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *app) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.rds != nil {
		a.rds.Close()
	}
	if a.conn != nil {
		a.conn.Close()
	}
}
