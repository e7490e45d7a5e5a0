package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/db"
	"playas/internal/metrics"
)

type Handlers struct {
	Auth          *AuthHandler
	Lots          *LotHandler
	Spaces        *SpaceHandler
	Drivers       *DriverHandler
	Occupancies   *OccupancyHandler
	Payments      *PaymentHandler
	Subscriptions *SubscriptionHandler
	Shifts        *ShiftHandler
	Ratings       *RatingHandler
	Dashboard     *DashboardHandler
}

type RouterOptions struct {
	Issuer      *auth.Issuer
	PromPath    string
	CORSOrigins []string
	Health      func(r *http.Request) error
}

// roles guards one route at a time; role middleware on empty-prefix subrouters does not compose in mux.
func roles(allowed ...string) func(http.HandlerFunc) http.Handler {
	mw := auth.RequireRole(allowed...)
	return func(f http.HandlerFunc) http.Handler { return mw(f) }
}

func NewRouter(h Handlers, opts RouterOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(req); err != nil {
				log.WithError(err).Warn("Health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	if opts.PromPath != "" {
		r.Handle(opts.PromPath, promhttp.Handler()).Methods("GET")
	}

	// Public endpoints
	r.HandleFunc("/api/auth/login", h.Auth.Login).Methods("POST")
	r.HandleFunc("/api/auth/register", h.Auth.Register).Methods("POST")
	r.HandleFunc("/api/lots", h.Lots.ListPublic).Methods("GET")
	r.HandleFunc("/api/lots/{id:[0-9]+}", h.Lots.Get).Methods("GET")
	r.HandleFunc("/api/lots/{id:[0-9]+}/rates", h.Lots.ListRates).Methods("GET")
	r.HandleFunc("/api/lots/{id:[0-9]+}/ratings", h.Ratings.List).Methods("GET")
	r.HandleFunc("/api/webhooks/stripe", h.Payments.StripeWebhook).Methods("POST")

	requireAuth := auth.RequireAuth(opts.Issuer)
	staff := roles(db.RoleAdmin, db.RoleOwner, db.RoleAttendant)
	managers := roles(db.RoleAdmin, db.RoleOwner)

	pages := r.PathPrefix("/lots").Subrouter()
	pages.Use(requireAuth, auth.RequireRole(db.RoleAdmin, db.RoleOwner, db.RoleAttendant))
	pages.HandleFunc("/{id:[0-9]+}/dashboard", h.Dashboard.Page).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requireAuth)
	api.HandleFunc("/me", h.Auth.Me).Methods("GET")
	api.HandleFunc("/me/driver", h.Drivers.Self).Methods("GET")
	api.HandleFunc("/me/subscriptions", h.Subscriptions.Mine).Methods("GET")
	api.HandleFunc("/me/shift", h.Shifts.Current).Methods("GET")
	api.HandleFunc("/users", h.Auth.ListUsers).Methods("GET")
	api.HandleFunc("/users", h.Auth.CreateStaff).Methods("POST")

	api.HandleFunc("/lots/{id:[0-9]+}/rating", h.Ratings.Mine).Methods("GET")
	api.HandleFunc("/lots/{id:[0-9]+}/rating", h.Ratings.Rate).Methods("PUT")
	api.HandleFunc("/lots/{id:[0-9]+}/rating", h.Ratings.Remove).Methods("DELETE")
	api.HandleFunc("/drivers/{driver:[0-9]+}", h.Drivers.Get).Methods("GET")
	api.HandleFunc("/drivers/{driver:[0-9]+}", h.Drivers.Update).Methods("PUT")
	api.HandleFunc("/drivers/{driver:[0-9]+}/vehicles", h.Drivers.ListVehicles).Methods("GET")
	api.HandleFunc("/drivers/{driver:[0-9]+}/vehicles", h.Drivers.AddVehicle).Methods("POST")
	api.HandleFunc("/vehicles/{vehicle:[0-9]+}", h.Drivers.RemoveVehicle).Methods("DELETE")
	api.HandleFunc("/subscriptions/{subscription:[0-9]+}", h.Subscriptions.Get).Methods("GET")

	api.Handle("/mine/lots", staff(h.Lots.ListMine)).Methods("GET")
	api.Handle("/dashboard", staff(h.Dashboard.Overview)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/dashboard", staff(h.Dashboard.Lot)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/spaces", staff(h.Spaces.List)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/occupancies", staff(h.Occupancies.CheckIn)).Methods("POST")
	api.Handle("/lots/{id:[0-9]+}/occupancies/active", staff(h.Occupancies.Active)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/occupancies", staff(h.Occupancies.History)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/payments", staff(h.Payments.List)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/subscriptions", staff(h.Subscriptions.List)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/subscriptions", staff(h.Subscriptions.Create)).Methods("POST")
	api.Handle("/lots/{id:[0-9]+}/shifts", staff(h.Shifts.Open)).Methods("POST")
	api.Handle("/checkout", staff(h.Occupancies.CheckOut)).Methods("POST")
	api.Handle("/occupancies/{occupancy:[0-9]+}", staff(h.Occupancies.Get)).Methods("GET")
	api.Handle("/occupancies/{occupancy:[0-9]+}/extras", staff(h.Occupancies.AddExtra)).Methods("POST")
	api.Handle("/occupancies/{occupancy:[0-9]+}/quote", staff(h.Occupancies.Quote)).Methods("GET")
	api.Handle("/payments/{payment:[0-9]+}", staff(h.Payments.Get)).Methods("GET")
	api.Handle("/payments/{payment:[0-9]+}/checkout", staff(h.Payments.RetryCheckout)).Methods("POST")
	api.Handle("/subscriptions/{subscription:[0-9]+}/renew", staff(h.Subscriptions.Renew)).Methods("POST")
	api.Handle("/shifts/{shift:[0-9]+}/close", staff(h.Shifts.Close)).Methods("POST")
	api.Handle("/drivers", staff(h.Drivers.List)).Methods("GET")
	api.Handle("/drivers", staff(h.Drivers.Create)).Methods("POST")
	api.Handle("/vehicles", staff(h.Drivers.FindVehicle)).Methods("GET")

	api.Handle("/lots", managers(h.Lots.Create)).Methods("POST")
	api.Handle("/lots/{id:[0-9]+}", managers(h.Lots.Update)).Methods("PUT")
	api.Handle("/lots/{id:[0-9]+}/active", managers(h.Lots.SetActive)).Methods("PUT")
	api.Handle("/lots/{id:[0-9]+}/schedule", managers(h.Lots.SetSchedule)).Methods("PUT")
	api.Handle("/lots/{id:[0-9]+}/payment-methods", managers(h.Lots.SetPaymentMethods)).Methods("PUT")
	api.Handle("/lots/{id:[0-9]+}/staff", managers(h.Lots.ListStaff)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/staff", managers(h.Lots.AssignStaff)).Methods("POST")
	api.Handle("/lots/{id:[0-9]+}/staff/{user:[0-9]+}", managers(h.Lots.RemoveStaff)).Methods("DELETE")
	api.Handle("/lots/{id:[0-9]+}/spaces", managers(h.Spaces.Create)).Methods("POST")
	api.Handle("/lots/{id:[0-9]+}/spaces/bulk", managers(h.Spaces.BulkCreate)).Methods("POST")
	api.Handle("/lots/{id:[0-9]+}/rates", managers(h.Lots.CreateRate)).Methods("POST")
	api.Handle("/lots/{id:[0-9]+}/shifts", staff(h.Shifts.List)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/reports/revenue.pdf", managers(h.Dashboard.RevenueReport)).Methods("GET")
	api.Handle("/lots/{id:[0-9]+}/reports/occupancy.pdf", managers(h.Dashboard.OccupancyReport)).Methods("GET")
	api.Handle("/spaces/{space:[0-9]+}", managers(h.Spaces.Update)).Methods("PUT")
	api.Handle("/spaces/{space:[0-9]+}", managers(h.Spaces.Delete)).Methods("DELETE")
	api.Handle("/spaces/{space:[0-9]+}/out-of-service", managers(h.Spaces.SetOutOfService)).Methods("PUT")
	api.Handle("/payments/{payment:[0-9]+}/refund", managers(h.Payments.Refund)).Methods("POST")
	api.Handle("/subscriptions/{subscription:[0-9]+}/cancel", managers(h.Subscriptions.Cancel)).Methods("POST")

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(log.StandardLogger()), handlers.PrintRecoveryStack(true))
	return handlers.CustomLoggingHandler(log.StandardLogger().Writer(), recovery(cors(r)), accessLog)
}
