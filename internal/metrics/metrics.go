package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playas_http_request_duration_seconds",
		Help:    "Time spent serving HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playas_check_ins_total",
		Help: "Vehicles checked in",
	}, []string{"lot"})

	CheckOuts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playas_check_outs_total",
		Help: "Vehicles checked out",
	}, []string{"lot", "method"})

	Spaces = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parking_spaces",
		Help: "Spaces per lot and state as of the last dashboard computation",
	}, []string{"lot", "state"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playas_job_duration_seconds",
		Help:    "Time scheduled jobs take to run",
		Buckets: prometheus.DefBuckets,
	}, []string{"job", "result"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playas_events_processed_total",
		Help: "Queue events consumed by the worker",
	}, []string{"type", "result"})
)

func Lot(id int) string {
	return strconv.Itoa(id)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware observes request latency labelled by route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		RequestLatency.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
