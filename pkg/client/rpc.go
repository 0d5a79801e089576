package client

import (
	"context"
	"time"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/pkg/id"
)

// requestIDField is the payload key carrying the RPC correlation id. The
// fabric never couples task and topic itself; correlation is purely by
// this payload convention.
const requestIDField = "_request_id"

// Call performs a single-result RPC-over-queue round trip: subscribe to a
// fresh topic, add a task to queue carrying payload plus the generated
// request id, wait for the worker's single PUBLISH, and unsubscribe.
func (c *Client) Call(ctx context.Context, queue string, payload codec.Value, timeout time.Duration) (codec.Value, error) {
	requestID := id.New()
	requestPayload := withRequestID(payload, requestID)

	sub, err := c.subscribe(ctx, requestID, "", timeout)
	if err != nil {
		return nil, err
	}
	defer sub.Close(context.Background())

	if _, err := c.Add(ctx, queue, requestPayload, ""); err != nil {
		return nil, err
	}

	select {
	case env, ok := <-sub.ch:
		if !ok {
			return nil, context.Canceled
		}
		return env.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallStream performs a streaming RPC-over-queue round trip: the worker
// may PUBLISH to the request topic more than once. The returned channel
// yields each result until the idle timeout elapses or cancel is called.
func (c *Client) CallStream(ctx context.Context, queue string, payload codec.Value, idleTimeout time.Duration) (<-chan codec.Value, func(), error) {
	requestID := id.New()
	requestPayload := withRequestID(payload, requestID)

	out, cancel, err := c.SubscribeStream(ctx, requestID, "", idleTimeout)
	if err != nil {
		return nil, nil, err
	}
	if _, err := c.Add(ctx, queue, requestPayload, ""); err != nil {
		cancel()
		return nil, nil, err
	}
	return out, cancel, nil
}

// withRequestID returns payload with _request_id set, building a fresh
// map when payload is absent or not itself a map (the convention only
// requires the field to be reachable by the worker, not that the whole
// payload be restructured).
func withRequestID(payload codec.Value, requestID string) codec.Value {
	b := codec.Map()
	if mv, ok := codec.AsMap(payload); ok {
		for _, k := range mv.Keys() {
			v, _ := mv.Get(k)
			b.Set(k, v)
		}
	} else if payload != nil && payload.Kind() != codec.KindNull {
		b.Set("payload", payload)
	}
	b.Set(requestIDField, codec.String(requestID))
	return b.Build()
}
