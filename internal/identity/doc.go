// Package identity generates coherent simulated client fingerprints.
//
// A Profile bundles everything a remote server can use to tell one client
// from another at the HTTP layer: the User-Agent, the navigator platform,
// locale, screen metrics, the Accept-* header set, the optional client-hint
// block, and the TLS ClientHello family that matches the browser.
//
// Design decision: All fields of a Profile are derived from a single choice
// of browser family and user-agent string, never drawn independently, because
// anti-bot systems correlate these signals and a single mismatch (a Windows
// User-Agent paired with a macOS client hint, for example) is a stronger
// automation indicator than a stale but coherent fingerprint.
//
// # Randomness
//
// The Generator takes an injected *rand.Rand so that tests (and users who
// want reproducible runs) can seed it:
//
//	gen, err := identity.NewGenerator(identity.WithRand(rand.New(rand.NewPCG(1, 2))))
//	profile := gen.Generate()
//
// # Catalog
//
// The literal user-agent strings and resolution pools are static data held in
// a Catalog. DefaultCatalog returns a built-in table; callers may inject their
// own with WithCatalog.
package identity
