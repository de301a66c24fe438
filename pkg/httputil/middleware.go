package httputil

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/pricebulk/pricebulk/pkg/contextkeys"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDHeader carries the request ID in both directions
	RequestIDHeader = "X-Request-ID"
	// ShopDomainHeader carries the authenticated shop domain set by the embedding host
	ShopDomainHeader = "X-Shopify-Shop-Domain"
)

// RequestIDMiddleware assigns each request an ID (reusing a valid incoming X-Request-ID),
// echoes it in the response, and stores it with a request logger in the context.
func RequestIDMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, requestID)

			ctx := contextkeys.WithRequestID(r.Context(), requestID)
			ctx = contextkeys.WithLogger(ctx, logger.WithField("request_id", requestID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs each request with its status and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		entry := observability.FromContext(r.Context()).WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if rw.statusCode >= http.StatusInternalServerError {
			entry.Warn("Request failed")
		} else {
			entry.Debug("Request completed")
		}
	})
}

// RecoveryMiddleware recovers from handler panics and returns a 500 error
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				observability.FromContext(r.Context()).WithFields(logrus.Fields{
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("PANIC recovered in HTTP handler")
				WriteInternalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
