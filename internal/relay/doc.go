// Package relay implements the broadcast hub that fans message mutation
// events out to connected clients.
//
// The hub is stateless with respect to message content: it holds only live
// session membership and one monotonically increasing sequence counter per
// room. A session that is disconnected at publish time does not receive the
// event and recovers through a historical re-fetch after reconnecting; the
// hub keeps no event log.
//
// Delivery is fire-and-forget per session. A slow session never blocks the
// publisher: each session has a bounded outbound queue and is dropped when
// the queue overflows or its liveness window expires.
package relay
