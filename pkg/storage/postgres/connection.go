package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ConnectionManager manages PostgreSQL primary and read replica connections
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // Atomic counter for round-robin selection
	mu       sync.RWMutex
	config   ConnectionConfig
	logger   *logrus.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

func (c ConnectionConfig) withDefaults() ConnectionConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = 25
	}
	if c.MinConns <= 0 {
		c.MinConns = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 5 * time.Minute
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 5 * time.Minute
	}
	return c
}

// NewConnectionManager connects to the primary and any configured replicas.
// Replicas that cannot be reached are skipped.
func NewConnectionManager(config ConnectionConfig, logger *logrus.Logger) (*ConnectionManager, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	cm := &ConnectionManager{
		config: config,
		logger: logger,
	}

	primary, err := cm.open(config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}
	cm.primary = primary

	for i, replicaURL := range config.ReplicaURLs {
		replica, err := cm.open(replicaURL, replicaPoolSize(config.MaxConns))
		if err != nil {
			logger.WithError(err).Warnf("Skipping replica %d", i)
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("Connection manager initialized")
	return cm, nil
}

func replicaPoolSize(maxConns int) int {
	if n := maxConns / 2; n >= 2 {
		return n
	}
	return 2
}

func (cm *ConnectionManager) open(url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cm.config.MinConns)
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cm.config.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return db, nil
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}

	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck checks the primary. Replicas only fail the check when all of them are down.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}

	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}

	return nil
}

// RemoveUnhealthyReplicas closes and drops replicas that fail a ping
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(cm.replicas))
	removed := 0

	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
		} else {
			healthy = append(healthy, replica)
		}
	}

	cm.replicas = healthy
	return removed
}

// StartHealthCheckRoutine prunes unhealthy replicas every interval until ctx is done
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer observability.RecoverPanic(cm.logger, "replica health check")

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				removed := cm.RemoveUnhealthyReplicas(checkCtx)
				cancel()

				if removed > 0 {
					cm.logger.Warnf("Removed %d unhealthy replicas", removed)
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error

	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %v", errs)
	}

	return nil
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	urls := strings.Split(replicaURLsStr, ",")
	result := make([]string, 0, len(urls))

	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
