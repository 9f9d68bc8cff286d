// Package tor provides Tor and SOCKS5 egress support for stealthfetch.
//
// It has two parts:
//   - EmbeddedTor starts a private Tor daemon through the tornago library
//     and exposes its SOCKS port as a proxy pool entry, so Tor becomes one
//     more egress hop rotated by the pool.
//   - CheckSOCKS5 and CheckPool verify that SOCKS5 entries actually speak
//     the protocol and accept their credentials before a run depends on them.
//
// Design decision: Requests never go through a Tor-specific HTTP client.
// The embedded daemon is just a socks5 entry, so pacing, retries, identity
// rotation and the uTLS fingerprint apply to Tor traffic exactly as they do
// to any other proxy.
package tor
