// Package feed merges three asynchronous sources into one ordered,
// duplicate-free view of a room's messages: cursor-paginated history reads,
// live relay events, and periodic re-fetch while the persistent channel is
// down.
//
// All FeedState mutation is serialized under one mutex; live apply never
// performs I/O, so it is always safe to run inline from the event bus. A
// sequence gap is never reconciled partially: the relay keeps no event log,
// so the only correct recovery is a fresh read of the newest page.
package feed
