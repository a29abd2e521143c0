// Package connection maintains one persistent websocket connection to the
// relay per client session.
//
// The Manager owns the connection lifecycle: it dials, watches liveness via
// ping/pong, reconnects with exponential backoff, and replays the consumer's
// room joins on every reconnect (the relay holds no durable subscription
// state). Dependents observe only a coarse connected/disconnected signal plus
// a persistent-failure notification once the retry budget is exhausted; the
// manager knows nothing about rooms' feeds.
//
// Events observed on one connection instance are delivered in the order the
// relay sent them. No ordering is guaranteed across reconnects; consumers
// must treat post-reconnect state as requiring a gap check.
package connection
