// Package proxypool maintains a rotating set of egress proxies with health
// tracking.
//
// Entries are loaded from newline-delimited text where each line is either
// "scheme://[user:pass@]host:port" or a bare "host:port" (protocol defaults to
// http). Malformed lines are logged and skipped; they never abort loading.
//
// Health is a simple failure counter per entry. An entry whose counter reaches
// the pool's maximum is retired: it stays in the pool but is excluded from
// selection until a success resets its counter. There is no background
// eviction; the usable subset is recomputed on every Next call.
//
// Design decision: Next reports pool exhaustion as (nil, false) rather than an
// error. Running out of proxies is an expected condition and callers proceed
// with a direct connection.
package proxypool
