package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Usage metrics
	UsageIncrementsTotal *prometheus.CounterVec
	LimitDecisionsTotal  *prometheus.CounterVec
	WebhooksTotal        *prometheus.CounterVec
	ShopsByPlan          *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricebulk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricebulk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricebulk_store_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "backend"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricebulk_store_errors_total",
				Help: "Total number of store errors",
			},
			[]string{"operation", "backend"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricebulk_cache_hits_total",
				Help: "Total number of subscription cache hits",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricebulk_cache_misses_total",
				Help: "Total number of subscription cache misses",
			},
			[]string{"tier"},
		),

		UsageIncrementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricebulk_usage_increments_total",
				Help: "Total number of updates recorded against usage counters",
			},
			[]string{"type"},
		),
		LimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricebulk_limit_decisions_total",
				Help: "Total number of limit checks by plan and outcome",
			},
			[]string{"plan", "outcome"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricebulk_privacy_webhooks_total",
				Help: "Total number of privacy webhooks received",
			},
			[]string{"topic", "status"},
		),
		ShopsByPlan: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricebulk_shops_by_plan",
				Help: "Number of shops per subscription plan",
			},
			[]string{"plan"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreOperationDuration,
		m.StoreErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.UsageIncrementsTotal,
		m.LimitDecisionsTotal,
		m.WebhooksTotal,
		m.ShopsByPlan,
	)

	return m
}

// RecordUsageIncrement records counter deltas. Zero deltas are skipped.
func (m *Metrics) RecordUsageIncrement(priceDelta, compareAtDelta int64) {
	if m == nil {
		return
	}
	if priceDelta > 0 {
		m.UsageIncrementsTotal.WithLabelValues("price").Add(float64(priceDelta))
	}
	if compareAtDelta > 0 {
		m.UsageIncrementsTotal.WithLabelValues("compareAt").Add(float64(compareAtDelta))
	}
}

// RecordLimitDecision records the outcome of a limit check. An empty outcome means allowed.
func (m *Metrics) RecordLimitDecision(plan, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "allowed"
	}
	m.LimitDecisionsTotal.WithLabelValues(plan, outcome).Inc()
}

// RecordWebhook records a privacy webhook delivery
func (m *Metrics) RecordWebhook(topic, status string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(topic, status).Inc()
}

// RecordStoreOperation records a store call duration and whether it failed
func (m *Metrics) RecordStoreOperation(operation, backend string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StoreOperationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(operation, backend).Inc()
	}
}

// RecordCacheLookup records a subscription cache hit or miss for a tier ("local" or "redis")
func (m *Metrics) RecordCacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(tier).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

// SetShopsByPlan replaces the shops-by-plan gauge values
func (m *Metrics) SetShopsByPlan(counts map[string]int) {
	if m == nil {
		return
	}
	m.ShopsByPlan.Reset()
	for plan, n := range counts {
		m.ShopsByPlan.WithLabelValues(plan).Set(float64(n))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
