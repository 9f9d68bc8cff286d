// Package database provides an SQLite archive of fetch and crawl runs.
//
// This package implements the ResultDB, which stores:
//   - One row per run (batch fetch or crawl) with its summary counts
//   - One row per fetched URL with status, outcome and handler output
//
// The archive is write-mostly: the CLI appends each finished run when
// --db is given, and ListRuns/ListResults read it back for inspection.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because the archive is a single local file and the CGO-free
// driver keeps cross-compilation trivial.
package database
