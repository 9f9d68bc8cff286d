// Package session implements the request lifecycle of a stealth fetch.
//
// A Session binds one active identity.Profile to the shared proxy pool and
// host pacer and runs every request through the same steps:
//
//  1. rotate the profile every N delivered requests, or on demand
//  2. wait for the host pacer (and the optional global rate limiter)
//  3. merge profile headers, Referer/Origin, the site overlay and caller headers
//  4. pick a proxy from the pool, if any is usable
//  5. dispatch with the retry policy
//  6. update proxy health and classify the response as blocked or not
//  7. on a block, sleep a random delay and rotate the profile
//
// A blocked response is still returned to the caller with Response.Blocked
// set. Whether to try again is the caller's decision.
//
// # Concurrency
//
// A Session is owned by one goroutine. The pool, pacer and transport it holds
// are shared and safe for concurrent use; the session's own profile, cookie
// jar and request counter are not meant to be shared across workers. Use a
// Factory to give every worker its own Session.
//
// # Usage
//
//	gen, _ := identity.NewGenerator()
//	s, err := session.New(gen, transport.NewHTTPTransport(),
//	    session.WithPool(pool),
//	    session.WithPacer(hostPacer),
//	)
//	resp, err := s.Get(ctx, "https://example.com/")
package session
