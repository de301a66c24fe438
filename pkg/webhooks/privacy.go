package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pricebulk/pricebulk/pkg/httputil"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/sirupsen/logrus"
)

// TopicHeader names the webhook topic
const TopicHeader = "X-Shopify-Topic"

// Topic is a privacy webhook topic in its canonical slash form
type Topic string

const (
	TopicCustomersDataRequest Topic = "customers/data_request"
	TopicCustomersRedact      Topic = "customers/redact"
	TopicShopRedact           Topic = "shop/redact"
)

// ParseTopic normalizes a topic header value. Both the slash form and the
// upper-snake form are accepted; anything else is returned lowercased as is.
func ParseTopic(raw string) Topic {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "customers/data_request", "customers_data_request":
		return TopicCustomersDataRequest
	case "customers/redact", "customers_redact":
		return TopicCustomersRedact
	case "shop/redact", "shop_redact":
		return TopicShopRedact
	default:
		return Topic(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// Redactor deletes all data kept for a shop
type Redactor interface {
	RedactShop(ctx context.Context, shop string) error
}

// PrivacyHandler serves POST /webhooks/privacy
type PrivacyHandler struct {
	redactor Redactor
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

// NewPrivacyHandler creates a new privacy webhook handler. metrics may be nil.
func NewPrivacyHandler(redactor Redactor, logger *logrus.Logger, metrics *observability.Metrics) *PrivacyHandler {
	return &PrivacyHandler{
		redactor: redactor,
		logger:   logger,
		metrics:  metrics,
	}
}

// RegisterRoutes registers the privacy webhook route
func (h *PrivacyHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks/privacy", h.handle).Methods("POST")
}

type privacyPayload struct {
	ShopDomain string `json:"shop_domain"`
}

func (h *PrivacyHandler) handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topic := ParseTopic(r.Header.Get(TopicHeader))
	shop := h.shopOf(r)

	entry := observability.WithTraceContext(ctx, h.logger.WithFields(logrus.Fields{
		"topic": topic,
		"shop":  shop,
	}))
	entry.Info("Received privacy webhook")

	label, status := string(topic), "ok"
	switch topic {
	case TopicCustomersDataRequest, TopicCustomersRedact:
		entry.Info("No customer data stored, nothing to do")
	case TopicShopRedact:
		if err := h.redactor.RedactShop(ctx, shop); err != nil {
			entry.WithError(err).Error("Failed to delete shop data")
			status = "error"
		} else {
			entry.Info("Deleted shop data")
		}
	default:
		entry.Warn("Unhandled webhook topic")
		label, status = "other", "ignored"
	}

	h.metrics.RecordWebhook(label, status)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// shopOf reads the shop from the header, falling back to shop_domain in the payload
func (h *PrivacyHandler) shopOf(r *http.Request) string {
	if shop := strings.TrimSpace(r.Header.Get(httputil.ShopDomainHeader)); shop != "" {
		return strings.ToLower(shop)
	}

	var payload privacyPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, httputil.MaxBodyBytes)).Decode(&payload); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.ShopDomain))
}
