// Package queue implements Zaku's per-named-queue state machine over the
// backing store: enqueue, claim, mark-done, mark-reset, reap expired
// claims, and remove/clear an entire queue. Every operation here maps
// directly onto the store.Store narrow interface, so the engine itself
// never imports go-redis.
package queue
