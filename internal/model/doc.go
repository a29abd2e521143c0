// Package model defines shared data types used across the feed sync subsystem.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: uuid.UUID for messages and sessions, string for channels/conversations
//   - Room keys: canonical "kind:id" string form on the wire and as map keys
package model
