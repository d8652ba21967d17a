// Package storage persists config entries and an append-only audit trail.
//
// Drivers:
//   - "memory": process-local, used when storage is disabled
//   - "file": entries snapshot (JSON) + audit log (JSON Lines)
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
package storage
