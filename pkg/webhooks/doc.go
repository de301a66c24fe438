// Package webhooks handles the platform's mandatory privacy webhooks.
//
// # Topics
//
//	customers/data_request  acknowledged; no customer data is stored
//	customers/redact        acknowledged; no customer data is stored
//	shop/redact             deletes every subscription and usage row of the shop
//
// The upper-snake forms (CUSTOMERS_DATA_REQUEST, CUSTOMERS_REDACT, SHOP_REDACT) are
// accepted too.
//
// The handler always answers 200 with body "OK" so the platform does not retry.
// Deletion failures are logged and counted in pricebulk_webhooks_total with
// status "error". HMAC verification happens in the host in front of this service.
package webhooks
