package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	m.RecordUsageIncrement(1, 1)
	m.RecordLimitDecision("Free", "")
	m.RecordWebhook("shop/redact", "ok")
	m.RecordStoreOperation("get", "memory", time.Now(), errors.New("boom"))
	m.RecordCacheLookup("local", true)
	m.SetShopsByPlan(map[string]int{"Free": 1})
}

func TestMetricsRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordUsageIncrement(3, 0)
	m.RecordUsageIncrement(2, 5)
	if got := testutil.ToFloat64(m.UsageIncrementsTotal.WithLabelValues("price")); got != 5 {
		t.Errorf("Expected 5 price increments, got %v", got)
	}
	if got := testutil.ToFloat64(m.UsageIncrementsTotal.WithLabelValues("compareAt")); got != 5 {
		t.Errorf("Expected 5 compareAt increments, got %v", got)
	}

	m.RecordLimitDecision("Starter", "")
	m.RecordLimitDecision("Starter", "price")
	if got := testutil.ToFloat64(m.LimitDecisionsTotal.WithLabelValues("Starter", "allowed")); got != 1 {
		t.Errorf("Expected 1 allowed decision, got %v", got)
	}

	m.RecordStoreOperation("increment_usage", "sqlite", time.Now(), nil)
	m.RecordStoreOperation("increment_usage", "sqlite", time.Now(), errors.New("locked"))
	if got := testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("increment_usage", "sqlite")); got != 1 {
		t.Errorf("Expected 1 store error, got %v", got)
	}

	m.RecordCacheLookup("redis", false)
	if got := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("redis")); got != 1 {
		t.Errorf("Expected 1 redis miss, got %v", got)
	}

	m.SetShopsByPlan(map[string]int{"Free": 4, "Growth": 1})
	m.SetShopsByPlan(map[string]int{"Free": 2})
	if got := testutil.ToFloat64(m.ShopsByPlan.WithLabelValues("Free")); got != 2 {
		t.Errorf("Expected gauge to be replaced, got %v", got)
	}
	if n := testutil.CollectAndCount(m.ShopsByPlan); n != 1 {
		t.Errorf("Expected stale plans to be reset, got %d series", n)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/v1/usage/{kind}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	RegisterMetricsEndpoint(router, registry)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/usage/current", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/usage/history", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/usage/{kind}", "409")); got != 2 {
		t.Errorf("Expected 2 requests labelled by route template, got %v", got)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "pricebulk_http_requests_total") {
		t.Error("Expected request counter in /metrics output")
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	HTTPMetricsMiddleware(nil)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !called {
		t.Error("Expected the wrapped handler to run")
	}
}
