// Package server hosts the Zaku connection driver: one goroutine-per-
// connection handler dispatching ADD/TAKE/MARK_DONE/MARK_RESET/PUBLISH/
// SUBSCRIBE/UNSUBSCRIBE/PING envelopes to the queue engine and pub/sub
// registry, plus the AUTH handshake and health/readiness HTTP endpoints.
package server
