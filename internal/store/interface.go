package store

import "context"

// Store is the backing-store contract for Zaku: JSON-document
// get/set/delete, ordered-list operations, a string-keyed map per key
// (used for claim sets and metadata maps), set membership (used for the
// root queue-name index), key-prefix iteration, and pub/sub by channel
// name. Any store offering these primitives (a key-value store with
// JSON support and native pub/sub) can back Zaku; Redis is the only
// concrete implementation here.
type Store interface {
	// Doc is a single JSON document addressed by key.
	SetDoc(ctx context.Context, key string, value []byte) error
	GetDoc(ctx context.Context, key string) (value []byte, found bool, err error)
	DeleteDoc(ctx context.Context, key string) error

	// Ordered list operations back the per-queue pending list.
	PushHead(ctx context.Context, key, value string) error
	PushTail(ctx context.Context, key, value string) error
	PopHead(ctx context.Context, key string) (value string, found bool, err error)
	ListLen(ctx context.Context, key string) (int64, error)
	ListRemove(ctx context.Context, key, value string) error
	DeleteKey(ctx context.Context, key string) error

	// Map operations back the per-queue claim set and metadata map,
	// keyed by task id within one Redis hash per queue.
	MapSet(ctx context.Context, key, field string, value []byte) error
	MapGet(ctx context.Context, key, field string) (value []byte, found bool, err error)
	MapDelete(ctx context.Context, key, field string) error
	MapGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// Set operations back the root {prefix}:queues index.
	SetAdd(ctx context.Context, key, member string) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	// ScanPrefix lists keys sharing prefix (used for diagnostics and
	// administrative sweeps; not on any hot path).
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// Publish broadcasts payload to channel and returns the number of
	// subscribers the backing store delivered it to.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	// Subscribe opens a subscription to channel; messages arrive on the
	// returned Subscription until it is closed.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// TakeHead atomically pops the head of pendingKey and, if an item
	// was popped, writes a claim field for it in claimsKey within the
	// same backing-store round trip, the single atomic primitive the
	// queue engine's claim protocol relies on. A CAS-loop fallback is
	// unnecessary when the store can do this directly, as Redis can via
	// a server-side script.
	TakeHead(ctx context.Context, pendingKey, claimsKey string, claimValue []byte) (taskID string, found bool, err error)

	// ReapClaim conditionally removes field from claimsKey and pushes it
	// onto the tail of pendingKey, but only if the claim entry currently
	// stored there still reports a deadline <= nowMs, guarding against
	// a race with a concurrent MARK_DONE. Returns whether a reap
	// actually happened.
	ReapClaim(ctx context.Context, claimsKey, field, pendingKey string, nowMs int64) (reaped bool, err error)

	Close() error
}

// Subscription is a live channel subscription; Messages delivers payloads
// until Close is called or the underlying connection drops.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
