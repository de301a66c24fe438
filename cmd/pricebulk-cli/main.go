package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pricebulk/pricebulk/pkg/cli"
	"github.com/pricebulk/pricebulk/pkg/config"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/pricebulk/pricebulk/pkg/storage"
	"github.com/pricebulk/pricebulk/pkg/usage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create root command
	rootCmd := cli.NewRootCommand(openLedger, os.Stdout)

	// Execute command
	if err := rootCmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openLedger opens the store the server is configured with. With a redis cache
// configured, redactions also evict the shared cache entries.
func openLedger(ctx context.Context) (cli.Ledger, func() error, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	if err := usage.ValidateTiers(usage.Tiers); err != nil {
		return nil, nil, fmt.Errorf("invalid plan tiers: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stderr)

	backend, err := storage.Open(ctx, cfg.Storage, cfg.Cache, logger, nil)
	if err != nil {
		return nil, nil, err
	}

	return usage.New(backend.Store, usage.WithLogger(logger)), backend.Close, nil
}
