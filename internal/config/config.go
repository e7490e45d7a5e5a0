package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Settings struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	LogLevel    string
	Timezone    *time.Location
	CORSOrigins []string
	Currency    string

	RedisURL          string
	DashboardCacheTTL time.Duration

	RMQURL          string
	EventsQueueName string

	PromPath string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	JobRatingsSpec       string
	JobSubscriptionsSpec string
	JobShiftsSpec        string
	SubscriptionWarnDays int
	ShiftMaxHours        int
}

var required = []string{"DATABASE_URL", "JWT_SECRET"}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TIMEZONE", "America/Argentina/Buenos_Aires")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("CURRENCY", "ars")
	v.SetDefault("DASHBOARD_CACHE_TTL", "15s")
	v.SetDefault("EVENTS_QUEUE_NAME", "parking_events")
	v.SetDefault("PROM_PATH", "/metrics")
	v.SetDefault("SENDGRID_FROM_NAME", "Playas")
	v.SetDefault("STRIPE_SUCCESS_URL", "http://localhost:3000/payments/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("STRIPE_CANCEL_URL", "http://localhost:3000/payments/cancel?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("JOB_RATINGS_SPEC", "0 3 * * *")
	v.SetDefault("JOB_SUBSCRIPTIONS_SPEC", "*/15 * * * *")
	v.SetDefault("JOB_SHIFTS_SPEC", "0 * * * *")
	v.SetDefault("SUBSCRIPTION_WARN_DAYS", 3)
	v.SetDefault("SHIFT_MAX_HOURS", 14)
}

// Load reads .env (if present) and the process environment.
func Load() (*Settings, error) {
	_ = godotenv.Load()
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return FromViper(v)
}

// FromViper builds Settings from an already populated viper instance.
func FromViper(v *viper.Viper) (*Settings, error) {
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			return nil, fmt.Errorf("environment variable must be set: %s", key)
		}
	}

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", v.GetString("TIMEZONE"), err)
	}

	s := &Settings{
		DatabaseURL:          v.GetString("DATABASE_URL"),
		Port:                 v.GetString("PORT"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		Timezone:             loc,
		CORSOrigins:          splitList(v.GetString("CORS_ORIGINS")),
		Currency:             strings.ToLower(v.GetString("CURRENCY")),
		RedisURL:             v.GetString("REDIS_URL"),
		DashboardCacheTTL:    v.GetDuration("DASHBOARD_CACHE_TTL"),
		RMQURL:               v.GetString("RMQ_URL"),
		EventsQueueName:      v.GetString("EVENTS_QUEUE_NAME"),
		PromPath:             v.GetString("PROM_PATH"),
		StripeSecretKey:      v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  v.GetString("STRIPE_WEBHOOK_SECRET"),
		StripeSuccessURL:     v.GetString("STRIPE_SUCCESS_URL"),
		StripeCancelURL:      v.GetString("STRIPE_CANCEL_URL"),
		SendGridAPIKey:       v.GetString("SENDGRID_API_KEY"),
		SendGridFromEmail:    v.GetString("SENDGRID_FROM_EMAIL"),
		SendGridFromName:     v.GetString("SENDGRID_FROM_NAME"),
		TwilioAccountSID:     v.GetString("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      v.GetString("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:     v.GetString("TWILIO_FROM_NUMBER"),
		JobRatingsSpec:       v.GetString("JOB_RATINGS_SPEC"),
		JobSubscriptionsSpec: v.GetString("JOB_SUBSCRIPTIONS_SPEC"),
		JobShiftsSpec:        v.GetString("JOB_SHIFTS_SPEC"),
		SubscriptionWarnDays: v.GetInt("SUBSCRIPTION_WARN_DAYS"),
		ShiftMaxHours:        v.GetInt("SHIFT_MAX_HOURS"),
	}
	if s.DashboardCacheTTL <= 0 {
		s.DashboardCacheTTL = 15 * time.Second
	}
	return s, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
