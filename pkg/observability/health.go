package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

// Pinger is implemented by anything whose reachability can be probed, such as usage.Store
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	store   Pinger
	redis   *redis.Client
	version string
}

// NewHealthChecker creates a new health checker. The redis client may be nil.
func NewHealthChecker(store Pinger, redis *redis.Client, version string) *HealthChecker {
	return &HealthChecker{
		store:   store,
		redis:   redis,
		version: version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness returns a readiness probe (checks all dependencies)
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")

	// 503 only when the store is down; a lost cache is degraded
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(status)
}

// Check performs a health check of the store and the optional redis cache
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.store != nil {
		storeStatus := probe(ctx, h.store.Ping)
		status.Dependencies["store"] = storeStatus
		if storeStatus.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
	}

	if h.redis != nil {
		redisStatus := probe(ctx, func(ctx context.Context) error {
			return h.redis.Ping(ctx).Err()
		})
		status.Dependencies["redis"] = redisStatus
		if redisStatus.Status == StatusUnhealthy && status.Status != StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}

	return status
}

func probe(ctx context.Context, ping func(context.Context) error) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: start.UTC(),
	}

	err := ping(ctx)
	status.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}

	return status
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
