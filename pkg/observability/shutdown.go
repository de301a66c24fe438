package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager runs registered cleanup functions in reverse registration order
type ShutdownManager struct {
	logger          *logrus.Logger
	shutdownFuncs   []namedShutdownFunc
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

type namedShutdownFunc struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *logrus.Logger, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		shutdownTimeout: timeout,
	}
}

// RegisterShutdownFunc registers a function to call during shutdown
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, namedShutdownFunc{name: name, fn: fn})
}

// Shutdown runs every registered function, last registered first. All functions run
// even if earlier ones fail; the first error is returned.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
	defer cancel()

	sm.mu.Lock()
	funcs := make([]namedShutdownFunc, len(sm.shutdownFuncs))
	copy(funcs, sm.shutdownFuncs)
	sm.mu.Unlock()

	var firstErr error
	failed := 0
	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		sm.logger.Infof("Shutting down %s", f.name)
		if err := f.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown of %s failed", f.name)
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", f.name, err)
			}
		}
	}

	if firstErr != nil {
		return fmt.Errorf("shutdown completed with %d errors: %w", failed, firstErr)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
