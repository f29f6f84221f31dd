// Package store provides SQLite-backed cursors for feature reads.
//
// A Store implements reader.Provider: every meta or value query is compiled
// with querysql and executed as its own statement, and the open *sql.Rows is
// exposed as a reader.Cursor. Rows stay open until the cursor is closed, so
// a read holds one connection per container while it streams.
//
// # Database Configuration
//
// Pragmas are passed in the DSN so every pooled connection gets them:
//   - WAL mode: concurrent readers while fixtures are written
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Column values are scanned as-is; sort key columns are converted to
// ir.Value (integer, text, time or null).
package store
