// Package database provides SQLite-based storage for analysis runs.
//
// RunDB keeps every analysis result so that a curve can be re-analysed
// and compared against earlier runs:
//   - runs holds one row per analysis with the complete result as JSON
//   - peaks holds one row per extracted peak for q-range queries
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// database is a single file, the driver is CGO-free, and WAL mode gives
// good read performance while the CLI writes results.
package database
