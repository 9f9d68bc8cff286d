// Package model defines the records shared across stealthfetch.
//
// This package contains the following main types:
//   - Response: A delivered, decoded HTTP response
//   - Result: The per-URL record produced by batch fetches and crawls
//   - ResultSet: One run's results plus run metadata
//   - Summary: Aggregate counts over a ResultSet
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The session, handler, crawler, orchestrator, report and
// database packages all use these types.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
