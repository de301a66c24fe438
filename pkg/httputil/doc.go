// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, request parsing, and request-scoped logging middleware.
//
// Responses:
//
//	httputil.WriteSuccess(w, stats)
//	httputil.WriteBadRequest(w, "price must not be negative")
//
// Requests:
//
//	var req checkRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
package httputil
