// Package inventory fetches the authoritative device list from the cloud
// API and drives periodic reconciliation of the device registry.
//
// The Client performs the HTTP fetch; the Poller schedules
// fetch-then-reconcile cycles. Fetches always run outside the registry
// lock so a slow cloud API never stalls event ingestion. A failed fetch
// marks the registry untrusted and leaves its entries untouched.
package inventory
