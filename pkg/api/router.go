package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pricebulk/pricebulk/pkg/httputil"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouteRegistrar is implemented by handler groups mounted on the root router
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

// RouterConfig holds the handler groups and ambient dependencies of the API router
type RouterConfig struct {
	Usage   *UsageHandlers
	Privacy RouteRegistrar
	Logger  *logrus.Logger
	Metrics *observability.Metrics
}

// NewRouter builds the API router. Usage routes are mounted under /api/v1 behind
// ShopMiddleware; the privacy webhook is mounted on the root.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()

	router.Use(httputil.RequestIDMiddleware(cfg.Logger))
	router.Use(httputil.RecoveryMiddleware)
	router.Use(httputil.LoggingMiddleware)
	router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})

	if cfg.Usage != nil {
		v1 := router.PathPrefix("/api/v1").Subrouter()
		v1.Use(ShopMiddleware)
		cfg.Usage.RegisterRoutes(v1)
	}

	if cfg.Privacy != nil {
		cfg.Privacy.RegisterRoutes(router)
	}

	return otelhttp.NewHandler(router, "pricebulk-api",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.Method
		}),
	)
}
