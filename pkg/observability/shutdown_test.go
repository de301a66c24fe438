package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	logger := NewLogger("info", "text", &bytes.Buffer{})

	if sm := NewShutdownManager(logger, 0); sm.shutdownTimeout != 30*time.Second {
		t.Errorf("Expected default timeout of 30s, got %v", sm.shutdownTimeout)
	}
	if sm := NewShutdownManager(logger, 5*time.Second); sm.shutdownTimeout != 5*time.Second {
		t.Errorf("Expected timeout of 5s, got %v", sm.shutdownTimeout)
	}
}

func TestShutdownManager_ReverseOrder(t *testing.T) {
	var buf bytes.Buffer
	sm := NewShutdownManager(NewLogger("info", "text", &buf), time.Second)

	var order []string
	for _, name := range []string{"store", "cache", "http"} {
		name := name
		sm.RegisterShutdownFunc(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := strings.Join(order, ","); got != "http,cache,store" {
		t.Errorf("Expected reverse registration order, got %s", got)
	}
	if !strings.Contains(buf.String(), "Graceful shutdown complete") {
		t.Error("Expected completion log line")
	}
}

func TestShutdownManager_ContinuesAfterErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger("info", "text", &bytes.Buffer{}), time.Second)

	ran := 0
	sm.RegisterShutdownFunc("store", func(ctx context.Context) error {
		ran++
		return errors.New("close failed")
	})
	sm.RegisterShutdownFunc("tracer", func(ctx context.Context) error {
		ran++
		return errors.New("flush failed")
	})

	err := sm.Shutdown(context.Background())
	if err == nil {
		t.Fatal("Expected an error")
	}
	if ran != 2 {
		t.Errorf("Expected both functions to run, ran %d", ran)
	}
	// the first failure in run order is the last registered
	if !strings.Contains(err.Error(), "tracer: flush failed") {
		t.Errorf("Expected first error to be reported, got %v", err)
	}
	if !strings.Contains(err.Error(), "2 errors") {
		t.Errorf("Expected error count, got %v", err)
	}
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger("info", "text", &bytes.Buffer{}), 10*time.Millisecond)
	sm.RegisterShutdownFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := sm.Shutdown(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
