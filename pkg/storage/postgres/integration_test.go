//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pricebulk/pricebulk/pkg/usage"
	"github.com/pricebulk/pricebulk/pkg/usage/usagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer starts PostgreSQL and returns its connection string. The
// container is terminated when the test ends.
func setupPostgresContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("pricebulk_test"),
		tcpostgres.WithUsername("pricebulk"),
		tcpostgres.WithPassword("pricebulk_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		// fresh context: the test context may already be cancelled
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestIntegration_StoreContract(t *testing.T) {
	connStr := setupPostgresContainer(t)

	usagetest.RunStoreSuite(t, func(t *testing.T) usage.Store {
		db, err := sql.Open("postgres", connStr)
		require.NoError(t, err)

		ctx := context.Background()
		require.NoError(t, EnsureSchema(ctx, db))
		_, err = db.ExecContext(ctx, "TRUNCATE subscription_info, usage_tracking")
		require.NoError(t, err)

		return NewStore(db)
	})
}

func TestIntegration_ConnectionManager(t *testing.T) {
	connStr := setupPostgresContainer(t)

	cm, err := NewConnectionManager(ConnectionConfig{
		PrimaryURL: connStr,
		// the primary doubles as a replica; an unreachable one is skipped
		ReplicaURLs: []string{connStr, "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"},
		MaxConns:    4,
		Timeout:     5 * time.Second,
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cm.HealthCheck(ctx))
	require.NoError(t, EnsureSchema(ctx, cm.Primary()))
	// idempotent
	require.NoError(t, EnsureSchema(ctx, cm.Primary()))

	store := Open(cm)
	defer store.Close()

	ledger := usage.New(store)
	_, err = ledger.GetOrCreateSubscriptionInfo(ctx, "s1.myshopify.com", nil)
	require.NoError(t, err)
	_, err = ledger.IncrementUsage(ctx, "s1.myshopify.com", 3, 1)
	require.NoError(t, err)

	history, err := ledger.UsageHistory(ctx, "s1.myshopify.com", 12)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(3), history[0].PriceUpdates)
}
