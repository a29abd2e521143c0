// Package history is the client for the paginated historical message read.
//
// It is deliberately independent of the relay connection: the feed pager
// fetches pages through it whether or not the persistent channel is up, and
// degraded-mode polling is just a repeated newest-page read.
package history
