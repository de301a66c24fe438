package observability

import (
	"context"
	"io"
	"os"

	"github.com/pricebulk/pricebulk/pkg/contextkeys"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger creates a logrus logger. Format is "json" or "text"; unknown levels fall
// back to info.
func NewLogger(level, format string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(output)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}

// GetLogger retrieves the request logger from context
func GetLogger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(contextkeys.LoggerKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// FromContext returns the context logger with request ID, shop and trace fields
func FromContext(ctx context.Context) *logrus.Entry {
	entry := GetLogger(ctx)

	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}

	if shop := contextkeys.GetShop(ctx); shop != "" {
		entry = entry.WithField("shop", shop)
	}

	return WithTraceContext(ctx, entry)
}

// WithTraceContext adds trace and span IDs when a span is recording
func WithTraceContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return entry
	}

	spanCtx := span.SpanContext()
	return entry.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
