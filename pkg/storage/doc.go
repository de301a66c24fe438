// Package storage opens the usage store selected by configuration.
//
// # Backends
//
// Three implementations of usage.Store live in subpackages:
//
//   - memory: mutex-guarded maps. Development and tests; nothing survives a restart.
//   - sqlite: an embedded database file (github.com/mattn/go-sqlite3). Single-node deployments.
//   - postgres: PostgreSQL through lib/pq with optional read replicas for history queries.
//
// Any of them can be wrapped by the cache subpackage, which serves subscription
// lookups from an in-process LRU and, when a redis URL is configured, a shared redis
// tier. Usage counters always go to the backend.
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	backend, err := storage.Open(ctx, cfg.Storage, cfg.Cache, logger, metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer backend.Close()
//
//	ledger := usage.New(backend.Store, usage.WithLogger(logger))
//
// For PostgreSQL the schema is created on open when missing, and a background routine
// prunes unreachable replicas until the backend is closed.
package storage
