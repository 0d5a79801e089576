package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/internal/store"
	"github.com/geyang/zaku/pkg/id"
	"github.com/geyang/zaku/pkg/log"
)

// DefaultTTLSeconds is used when TAKE omits an explicit ttl override.
const DefaultTTLSeconds = 60.0

// BlobStore is the narrow interface the engine needs from the optional
// bulk-payload store; store.BlobStore satisfies it.
type BlobStore interface {
	Put(ctx context.Context, key string, payload []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Engine implements the queue state machine described by the data model:
// created -> claimed -> done/reset, with TTL-driven reclaim performed
// separately by the reaper package.
type Engine struct {
	store    store.Store
	prefix   string
	queueLen int
	log      log.Logger
	nowMs    func() int64

	blobStore     BlobStore
	blobThreshold int
}

// New builds an Engine backed by s, namespacing keys under prefix and
// capping each queue's pending list at queueLen entries.
func New(s store.Store, prefix string, queueLen int, logger log.Logger) *Engine {
	if queueLen <= 0 {
		queueLen = 10000
	}
	return &Engine{
		store:    s,
		prefix:   prefix,
		queueLen: queueLen,
		log:      logger,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}
}

// WithBlobStore enables the optional bulk-payload path: payloads whose
// encoded JSON exceeds thresholdBytes are written to blobs instead of
// inline metadata. A nil blobStore (the default) keeps every payload
// inline regardless of size.
func (e *Engine) WithBlobStore(blobStore BlobStore, thresholdBytes int) *Engine {
	e.blobStore = blobStore
	e.blobThreshold = thresholdBytes
	return e
}

// TakeResult is the outcome of a TAKE: either a claimed task or, when the
// queue had nothing pending, a null result (not an error).
type TakeResult struct {
	Found   bool
	TaskID  string
	Payload codec.Value
}

// InitQueue idempotently registers queue in the root queue-name index.
func (e *Engine) InitQueue(ctx context.Context, queue string) error {
	return e.store.SetAdd(ctx, queuesKey(e.prefix), queue)
}

// RemoveQueue deletes a queue's pending list, claims, metadata, and its
// entry in the root index. Atomic from the server's point of view,
// best-effort across the several backing-store calls it takes.
func (e *Engine) RemoveQueue(ctx context.Context, queue string) error {
	if err := e.store.DeleteKey(ctx, pendingKey(e.prefix, queue)); err != nil {
		return wrapStoreErr(err)
	}
	if err := e.store.DeleteKey(ctx, claimsKey(e.prefix, queue)); err != nil {
		return wrapStoreErr(err)
	}
	if err := e.store.DeleteKey(ctx, metaKey(e.prefix, queue)); err != nil {
		return wrapStoreErr(err)
	}
	return e.store.SetRemove(ctx, queuesKey(e.prefix), queue)
}

// ClearQueue empties a queue's pending list, claims, and metadata, but
// keeps its registration in the root index.
func (e *Engine) ClearQueue(ctx context.Context, queue string) error {
	if err := e.store.DeleteKey(ctx, pendingKey(e.prefix, queue)); err != nil {
		return wrapStoreErr(err)
	}
	if err := e.store.DeleteKey(ctx, claimsKey(e.prefix, queue)); err != nil {
		return wrapStoreErr(err)
	}
	return wrapStoreErr(e.store.DeleteKey(ctx, metaKey(e.prefix, queue)))
}

// Add appends a new task to queue's pending list. When taskID is empty the
// server mints a UUIDv4; a caller-supplied id that already exists in meta
// fails with CONFLICT.
func (e *Engine) Add(ctx context.Context, queue string, payload codec.Value, taskID string) (string, error) {
	mKey := metaKey(e.prefix, queue)

	n, err := e.store.ListLen(ctx, pendingKey(e.prefix, queue))
	if err != nil {
		return "", wrapStoreErr(err)
	}
	if int(n) >= e.queueLen {
		return "", protocol.NewError(protocol.ErrInvalidArgument, fmt.Sprintf("queue %q is at capacity (%d)", queue, e.queueLen))
	}

	if taskID == "" {
		taskID = id.New()
	} else if _, found, err := e.store.MapGet(ctx, mKey, taskID); err != nil {
		return "", wrapStoreErr(err)
	} else if found {
		return "", protocol.NewError(protocol.ErrConflict, fmt.Sprintf("task_id %q already exists in queue %q", taskID, queue))
	}

	payloadJSON, err := codec.EncodeJSON(payload)
	if err != nil {
		return "", protocol.WrapError(protocol.ErrInvalidArgument, "encode payload", err)
	}

	rec := &Record{
		ID:          taskID,
		Status:      StatusPending,
		CreatedAtMs: e.nowMs(),
		TTLSeconds:  DefaultTTLSeconds,
		PayloadJSON: payloadJSON,
	}
	if e.blobStore != nil && e.blobThreshold > 0 && len(payloadJSON) > e.blobThreshold {
		blobKey := fmt.Sprintf("%s/%s/%s", e.prefix, queue, taskID)
		if _, err := e.blobStore.Put(ctx, blobKey, payloadJSON); err != nil {
			e.log.Warn("bulk payload store put failed, keeping payload inline", log.Str("queue", queue), log.Str("task_id", taskID), log.Err(err))
		} else {
			rec.BlobKey = blobKey
			rec.PayloadJSON = nil
		}
	}
	recBytes, err := marshalRecord(rec)
	if err != nil {
		return "", err
	}

	if err := e.store.MapSet(ctx, mKey, taskID, recBytes); err != nil {
		return "", wrapStoreErr(err)
	}
	if err := e.store.PushTail(ctx, pendingKey(e.prefix, queue), taskID); err != nil {
		return "", wrapStoreErr(err)
	}
	if err := e.store.SetAdd(ctx, queuesKey(e.prefix), queue); err != nil {
		return "", wrapStoreErr(err)
	}
	return taskID, nil
}

// Take pops the oldest pending task, moves it into the claim set with a
// deadline of now+ttlSeconds (DefaultTTLSeconds when ttlSeconds is nil),
// and returns it. An empty queue yields a not-found TakeResult, not an
// error.
func (e *Engine) Take(ctx context.Context, queue string, ttlSeconds *float64) (TakeResult, error) {
	ttl := DefaultTTLSeconds
	if ttlSeconds != nil {
		ttl = *ttlSeconds
	}
	deadline := e.nowMs() + int64(ttl*1000)

	taskID, found, err := e.store.TakeHead(ctx, pendingKey(e.prefix, queue), claimsKey(e.prefix, queue), marshalClaim(deadline))
	if err != nil {
		return TakeResult{}, wrapStoreErr(err)
	}
	if !found {
		return TakeResult{}, nil
	}

	mKey := metaKey(e.prefix, queue)
	recBytes, found, err := e.store.MapGet(ctx, mKey, taskID)
	if err != nil {
		return TakeResult{}, wrapStoreErr(err)
	}
	if !found {
		e.log.Warn("claimed task has no metadata record", log.Str("queue", queue), log.Str("task_id", taskID))
		return TakeResult{}, protocol.NewError(protocol.ErrInternal, "claimed task missing metadata")
	}
	rec, err := unmarshalRecord(recBytes)
	if err != nil {
		return TakeResult{}, protocol.WrapError(protocol.ErrInternal, "corrupt task record", err)
	}

	now := e.nowMs()
	rec.Status = StatusClaimed
	rec.ClaimedAtMs = &now
	rec.TTLSeconds = ttl
	updated, err := marshalRecord(rec)
	if err != nil {
		return TakeResult{}, err
	}
	if err := e.store.MapSet(ctx, mKey, taskID, updated); err != nil {
		return TakeResult{}, wrapStoreErr(err)
	}

	payload, err := e.resolvePayload(ctx, rec)
	if err != nil {
		return TakeResult{}, protocol.WrapError(protocol.ErrInternal, "decode payload", err)
	}
	return TakeResult{Found: true, TaskID: taskID, Payload: payload}, nil
}

// resolvePayload decodes rec's payload, fetching it from the bulk store
// first when it was offloaded there (BlobKey set).
func (e *Engine) resolvePayload(ctx context.Context, rec *Record) (codec.Value, error) {
	if rec.BlobKey == "" {
		return rec.Payload()
	}
	if e.blobStore == nil {
		return nil, fmt.Errorf("queue: record references blob %q but no blob store is configured", rec.BlobKey)
	}
	raw, err := e.blobStore.Get(ctx, rec.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("queue: fetch blob %q: %w", rec.BlobKey, err)
	}
	return codec.DecodeJSON(raw)
}

// deleteBlob fires off a best-effort delete of rec's offloaded payload,
// if any. Metadata deletion is never blocked on it.
func (e *Engine) deleteBlob(ctx context.Context, rec *Record) {
	if rec == nil || rec.BlobKey == "" || e.blobStore == nil {
		return
	}
	if err := e.blobStore.Delete(ctx, rec.BlobKey); err != nil {
		e.log.Warn("bulk payload store delete failed, leaving dangling blob", log.Str("blob_key", rec.BlobKey), log.Err(err))
	}
}

// MarkDone completes a task: its claim and metadata are removed. A task
// id absent from the claim set is treated as already-done, tolerating
// at-least-once delivery of completion signals.
func (e *Engine) MarkDone(ctx context.Context, queue, taskID string) error {
	if err := e.store.MapDelete(ctx, claimsKey(e.prefix, queue), taskID); err != nil {
		return wrapStoreErr(err)
	}
	mKey := metaKey(e.prefix, queue)
	if recBytes, found, err := e.store.MapGet(ctx, mKey, taskID); err == nil && found {
		if rec, err := unmarshalRecord(recBytes); err == nil {
			e.deleteBlob(ctx, rec)
		}
	}
	return wrapStoreErr(e.store.MapDelete(ctx, mKey, taskID))
}

// MarkReset reverts a claimed task to pending, re-inserted at the pending
// list's tail: failed work is assumed currently-poisonous, so other
// pending work should progress first. A task id not currently claimed is
// a no-op success.
func (e *Engine) MarkReset(ctx context.Context, queue, taskID string) error {
	cKey := claimsKey(e.prefix, queue)
	_, found, err := e.store.MapGet(ctx, cKey, taskID)
	if err != nil {
		return wrapStoreErr(err)
	}
	if !found {
		return nil
	}

	mKey := metaKey(e.prefix, queue)
	recBytes, found, err := e.store.MapGet(ctx, mKey, taskID)
	if err == nil && found {
		if rec, err := unmarshalRecord(recBytes); err == nil {
			rec.Status = StatusPending
			rec.ClaimedAtMs = nil
			if updated, err := marshalRecord(rec); err == nil {
				_ = e.store.MapSet(ctx, mKey, taskID, updated)
			}
		}
	}

	if err := e.store.MapDelete(ctx, cKey, taskID); err != nil {
		return wrapStoreErr(err)
	}
	return wrapStoreErr(e.store.PushTail(ctx, pendingKey(e.prefix, queue), taskID))
}

// QueueNames returns every queue name currently registered in the root
// index, used by the reaper to know what to sweep.
func (e *Engine) QueueNames(ctx context.Context) ([]string, error) {
	names, err := e.store.SetMembers(ctx, queuesKey(e.prefix))
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return names, nil
}

// ReapExpired scans queue's claim set and reverts any entry whose
// deadline has elapsed, appending it to the pending tail. Returns the
// number of claims reaped.
func (e *Engine) ReapExpired(ctx context.Context, queue string) (int, error) {
	cKey := claimsKey(e.prefix, queue)
	entries, err := e.store.MapGetAll(ctx, cKey)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	now := e.nowMs()
	reapedCount := 0
	for taskID, raw := range entries {
		var entry claimEntry
		if err := jsonUnmarshalClaim(raw, &entry); err != nil {
			e.log.Warn("corrupt claim entry during reap", log.Str("queue", queue), log.Str("task_id", taskID), log.Err(err))
			continue
		}
		if entry.DeadlineMs > now {
			continue
		}
		reaped, err := e.store.ReapClaim(ctx, cKey, taskID, pendingKey(e.prefix, queue), now)
		if err != nil {
			e.log.Warn("reap failed", log.Str("queue", queue), log.Str("task_id", taskID), log.Err(err))
			continue
		}
		if !reaped {
			continue
		}
		e.revertToPending(ctx, queue, taskID)
		reapedCount++
	}
	return reapedCount, nil
}

func (e *Engine) revertToPending(ctx context.Context, queue, taskID string) {
	mKey := metaKey(e.prefix, queue)
	recBytes, found, err := e.store.MapGet(ctx, mKey, taskID)
	if err != nil || !found {
		return
	}
	rec, err := unmarshalRecord(recBytes)
	if err != nil {
		return
	}
	rec.Status = StatusPending
	rec.ClaimedAtMs = nil
	if updated, err := marshalRecord(rec); err == nil {
		_ = e.store.MapSet(ctx, mKey, taskID, updated)
	}
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := protocol.AsError(err); ok {
		return err
	}
	return protocol.WrapError(protocol.ErrBackingStoreUnavailable, "backing store operation failed", err)
}
