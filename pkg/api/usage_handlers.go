package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pricebulk/pricebulk/pkg/contextkeys"
	"github.com/pricebulk/pricebulk/pkg/httputil"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/pricebulk/pricebulk/pkg/usage"
	"github.com/sirupsen/logrus"
)

// DefaultHistoryLimit is the number of periods returned when no limit is given
const DefaultHistoryLimit = 12

// MaxHistoryLimit caps the limit query parameter of the history endpoint
const MaxHistoryLimit = 120

// UsageHandlers serves the usage endpoints of a single shop
type UsageHandlers struct {
	ledger Ledger
	logger *logrus.Logger
}

// NewUsageHandlers creates a new UsageHandlers instance
func NewUsageHandlers(ledger Ledger, logger *logrus.Logger) *UsageHandlers {
	return &UsageHandlers{
		ledger: ledger,
		logger: logger,
	}
}

// RegisterRoutes registers usage routes. The router is expected to run ShopMiddleware.
func (h *UsageHandlers) RegisterRoutes(r *mux.Router) {
	// Subscription
	r.HandleFunc("/subscription", h.recordSubscription).Methods("POST")

	// Usage
	r.HandleFunc("/usage", h.getUsageStats).Methods("GET")
	r.HandleFunc("/usage/current", h.getCurrentUsage).Methods("GET")
	r.HandleFunc("/usage/history", h.getUsageHistory).Methods("GET")
	r.HandleFunc("/usage/check", h.checkUsage).Methods("POST")
	r.HandleFunc("/usage/increment", h.incrementUsage).Methods("POST")
	r.HandleFunc("/usage/reserve", h.reserveUsage).Methods("POST")

	// Catalogue
	r.HandleFunc("/plans", h.listPlans).Methods("GET")
}

// recordSubscription handles POST /api/v1/subscription
func (h *UsageHandlers) recordSubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	info, err := h.ledger.GetOrCreateSubscriptionInfo(r.Context(), contextkeys.GetShop(r.Context()), req.subscription())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, info)
}

// getUsageStats handles GET /api/v1/usage?plan=...
func (h *UsageHandlers) getUsageStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := contextkeys.GetShop(ctx)

	plan := r.URL.Query().Get("plan")
	if plan == "" {
		info, err := h.ledger.SubscriptionInfo(ctx, shop)
		if err != nil {
			h.writeLedgerError(w, r, err)
			return
		}
		plan = info.PlanName
	}

	stats, err := h.ledger.UsageStats(ctx, shop, plan)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, stats)
}

// getCurrentUsage handles GET /api/v1/usage/current
func (h *UsageHandlers) getCurrentUsage(w http.ResponseWriter, r *http.Request) {
	current, err := h.ledger.CurrentUsage(r.Context(), contextkeys.GetShop(r.Context()))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, current)
}

// getUsageHistory handles GET /api/v1/usage/history?limit=...
func (h *UsageHandlers) getUsageHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", DefaultHistoryLimit)
	if !ok {
		return
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		httputil.WriteBadRequest(w, "limit must be between 1 and 120")
		return
	}

	records, err := h.ledger.UsageHistory(r.Context(), contextkeys.GetShop(r.Context()), limit)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if records == nil {
		records = []*usage.UsageRecord{}
	}

	httputil.WriteSuccess(w, HistoryResponse{Records: records})
}

// checkUsage handles POST /api/v1/usage/check. A refused check is still a 200.
func (h *UsageHandlers) checkUsage(w http.ResponseWriter, r *http.Request) {
	req, ok := parseUsageRequest(w, r)
	if !ok {
		return
	}

	check, err := h.ledger.CheckUsageLimit(r.Context(), contextkeys.GetShop(r.Context()), req.Plan, req.PriceUpdates, req.CompareAtUpdates)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, check)
}

// incrementUsage handles POST /api/v1/usage/increment
func (h *UsageHandlers) incrementUsage(w http.ResponseWriter, r *http.Request) {
	req, ok := parseUsageRequest(w, r)
	if !ok {
		return
	}

	record, err := h.ledger.IncrementUsage(r.Context(), contextkeys.GetShop(r.Context()), req.PriceUpdates, req.CompareAtUpdates)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, record)
}

// reserveUsage handles POST /api/v1/usage/reserve
func (h *UsageHandlers) reserveUsage(w http.ResponseWriter, r *http.Request) {
	req, ok := parseUsageRequest(w, r)
	if !ok {
		return
	}

	check, err := h.ledger.ReserveUsage(r.Context(), contextkeys.GetShop(r.Context()), req.Plan, req.PriceUpdates, req.CompareAtUpdates)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	status := http.StatusOK
	if !check.Allowed {
		status = http.StatusPaymentRequired
	}
	httputil.WriteJSON(w, status, check)
}

// listPlans handles GET /api/v1/plans
func (h *UsageHandlers) listPlans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, PlansResponse{Plans: usage.Tiers})
}

func parseUsageRequest(w http.ResponseWriter, r *http.Request) (*UsageRequest, bool) {
	var req UsageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return nil, false
	}
	if err := usage.ValidateDeltas(req.PriceUpdates, req.CompareAtUpdates); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return nil, false
	}
	return &req, true
}

// writeLedgerError maps ledger errors to HTTP responses
func (h *UsageHandlers) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case usage.IsConfigurationError(err):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, usage.ErrInvalidDelta), errors.Is(err, usage.ErrInvalidShop):
		httputil.WriteBadRequest(w, err.Error())
	default:
		h.requestLogger(r).WithError(err).Error("Usage request failed")
		httputil.WriteInternalError(w)
	}
}

// requestLogger prefers the request-scoped logger installed by RequestIDMiddleware
func (h *UsageHandlers) requestLogger(r *http.Request) *logrus.Entry {
	ctx := r.Context()
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*logrus.Entry); ok {
		return observability.FromContext(ctx)
	}
	return observability.WithTraceContext(ctx, h.logger.WithField("shop", contextkeys.GetShop(ctx)))
}
