// Package main provides the entry point for the stealthfetch CLI.
//
// stealthfetch fetches web pages while presenting coherent, rotating client
// identities. It paces requests per host, rotates proxies, retries transient
// failures and reports the outcome of every URL.
//
// Usage:
//
//	stealthfetch fetch <url>...
//	stealthfetch fetch --list <file>
//	stealthfetch crawl <seed-url>
//
// See --help for all available options.
package main

// main is the entry point for stealthfetch.
func main() {
	Execute()
}
