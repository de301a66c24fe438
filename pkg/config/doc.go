// Package config provides application configuration management.
//
// # Overview
//
// Configuration is layered: built-in defaults, then an optional YAML file named by
// PRICEBULK_CONFIG_FILE, then a .env file, then the process environment. Later
// layers win. Validate runs after all layers are applied.
//
// # Configuration Structure
//
// Server settings:
//
//	PRICEBULK_HOST="0.0.0.0"
//	PRICEBULK_PORT="8080"
//	PRICEBULK_HEALTH_PORT="9090"
//	PRICEBULK_READ_TIMEOUT="15s"
//	PRICEBULK_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	PRICEBULK_STORAGE_TYPE="postgres"  # memory, sqlite, postgres
//	PRICEBULK_SQLITE_PATH="/var/lib/pricebulk/usage.db"
//	PRICEBULK_POSTGRES_URL="postgres://localhost/pricebulk?sslmode=disable"
//	PRICEBULK_POSTGRES_REPLICA_URLS="postgres://replica1/pricebulk,postgres://replica2/pricebulk"
//
// Cache settings:
//
//	PRICEBULK_CACHE_ENABLED="true"
//	PRICEBULK_REDIS_URL="redis://localhost:6379/0"
//	PRICEBULK_CACHE_LOCAL_TTL="30s"
//
// Observability settings:
//
//	PRICEBULK_LOG_LEVEL="info"
//	PRICEBULK_LOG_FORMAT="json"
//	PRICEBULK_METRICS_REFRESH_SCHEDULE="@every 5m"
//	PRICEBULK_OTEL_ENABLED="true"
//	PRICEBULK_OTEL_ENDPOINT="otel-collector:4317"
//
// The same keys can be given in YAML:
//
//	server:
//	  port: "8080"
//	storage:
//	  type: sqlite
//	  sqlite_path: /var/lib/pricebulk/usage.db
//	cache:
//	  local_ttl: 10s
package config
