// Package api provides the admin HTTP surface of the usage metering service.
//
// # Overview
//
// Every route under /api/v1 acts on the shop named by the X-Shopify-Shop-Domain
// header. The embedding host validates the merchant session and sets the header;
// ShopMiddleware rejects requests without it.
//
// # Routes
//
//	POST /api/v1/subscription          record or refresh the shop's subscription
//	GET  /api/v1/usage?plan=           usage stats for the active billing period
//	GET  /api/v1/usage/current         raw usage record of the active period
//	GET  /api/v1/usage/history?limit=  past usage records, newest first
//	POST /api/v1/usage/check           evaluate a batch against the plan limits
//	POST /api/v1/usage/increment       record completed updates
//	POST /api/v1/usage/reserve         check and record a batch atomically
//	GET  /api/v1/plans                 plan catalogue
//
// # Errors
//
// Ledger errors map to status codes in writeLedgerError: a shop without subscription
// info is 409, invalid input is 400, anything else is 500 with the cause logged.
// A refused reservation is 402 with the LimitCheck as body.
//
// # Usage Example
//
//	handlers := api.NewUsageHandlers(ledger, logger)
//	router := api.NewRouter(api.RouterConfig{
//		Usage:   handlers,
//		Privacy: webhooks.NewPrivacyHandler(ledger, logger, metrics),
//		Logger:  logger,
//		Metrics: metrics,
//	})
//	http.ListenAndServe(":8080", router)
package api
