// Package storage keeps the poll journal: an append-only history of every
// verdict and a summary row per run.
//
// The journal is written, never read back by the watcher. Drivers:
//   - "file": JSON Lines files next to the configured path
//   - "sqlite": a SQLite database (modernc.org/sqlite, pure Go)
//   - "" or "none": journaling disabled
package storage
