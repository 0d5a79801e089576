// Package client is the synchronous Go facade over a Zaku server
// connection: queue operations, pub/sub subscription helpers, the
// RPC-over-queue pattern, and a context-scoped claim wrapper that
// guarantees exactly one of MARK_DONE/MARK_RESET fires on every exit
// path.
package client
