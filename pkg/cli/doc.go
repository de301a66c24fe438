// Package cli implements pricebulk-cli, the operator tool for inspecting and
// maintaining the usage ledger directly against the configured store.
//
// # Commands
//
// stats: usage and remaining allowance for the shop's current billing period
//
//	pricebulk-cli stats --shop example.myshopify.com
//	pricebulk-cli stats --shop example.myshopify.com --plan Starter
//
// history: per-period counters, newest first
//
//	pricebulk-cli history --shop example.myshopify.com --limit 6
//
// redact: delete every record of a shop, as the shop/redact privacy webhook does
//
//	pricebulk-cli redact --shop example.myshopify.com --yes
//
// period: resolve the billing period of an anchor day without touching the store
//
//	pricebulk-cli period --anchor 31 --at 2024-02-15
//
// Store selection follows the server configuration (PRICEBULK_STORAGE_TYPE and friends,
// see pkg/config).
package cli
