// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so the producer and
// consumers of a value agree on its key and type.
//
// USAGE PATTERN:
//
//	import "github.com/pricebulk/pricebulk/pkg/contextkeys"
//	ctx = contextkeys.WithShop(ctx, shop)
//	shop := contextkeys.GetShop(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ShopKey contains the authenticated shop domain
	// Set by: api.ShopMiddleware (pkg/api/middleware.go)
	// Required by: all /api/v1 handlers
	// Type: string
	ShopKey Key = "shop"

	// RequestIDKey contains request ID string (UUID)
	// Set by: api.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *logrus.Entry
	// Set by: api.RequestIDMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *logrus.Entry
	LoggerKey Key = "logger"
)

// WithShop adds the shop domain to the context
func WithShop(ctx context.Context, shop string) context.Context {
	return context.WithValue(ctx, ShopKey, shop)
}

// GetShop retrieves the shop domain from context
func GetShop(ctx context.Context) string {
	if shop, ok := ctx.Value(ShopKey).(string); ok {
		return shop
	}
	return ""
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
