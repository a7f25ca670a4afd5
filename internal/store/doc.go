// Package store provides SQLite-backed archival of finished captures.
//
// Each archived capture keeps:
//   - the plan that produced it, as a msgpack snapshot plus its PlanHash
//   - the captured bytes, zstd compressed, with a digest of the raw bytes
//   - the mem mode medium header, when there is one
//   - one row per channel locating its samples inside the data
//
// # Ordering
//
// Captures are ordered by seq, assigned on write as one past the current
// maximum. Timestamps are never used for ordering. Capture IDs are UUIDv7
// by default so they also sort by creation time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting a capture removes its channels
package store
