// Package reaper runs the per-process background sweep over every known
// queue's claim set, reverting entries whose TTL has elapsed back to
// pending. It is a thin ticking driver over internal/queue.Engine's
// QueueNames/ReapExpired, which already implement the conditional reap
// itself.
package reaper
