package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with structured logging
//
// Usage in defer statements:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "metrics refresh")
//	    refresh()
//	}()
//
// The panic is NOT re-raised.
func RecoverPanic(logger logrus.FieldLogger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

// MustRecover converts a recovered panic value into an error. It returns nil when r is nil.
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}

func logPanic(logger logrus.FieldLogger, context string, r interface{}) {
	logger.WithFields(logrus.Fields{
		"panic":   r,
		"stack":   string(debug.Stack()),
		"context": context,
	}).Error("PANIC recovered")
}
