package api

import (
	"net/http"
	"strings"

	"github.com/pricebulk/pricebulk/pkg/contextkeys"
	"github.com/pricebulk/pricebulk/pkg/httputil"
)

// ShopMiddleware stores the shop domain from the X-Shopify-Shop-Domain header in the
// request context and rejects requests without one.
func ShopMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop := strings.ToLower(strings.TrimSpace(r.Header.Get(httputil.ShopDomainHeader)))
		if shop == "" {
			httputil.WriteUnauthorized(w, "missing shop domain")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithShop(r.Context(), shop)))
	})
}
