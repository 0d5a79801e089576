package client

import (
	"context"
	"fmt"
	"time"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/pkg/id"
)

// eventBuffer bounds how many undelivered EVENTs a subscription channel
// holds before the client itself starts dropping them, mirroring the
// server-side registry's at-most-once backpressure policy.
const eventBuffer = 64

// Publish broadcasts payload to every current subscriber of topic,
// returning how many subscribers the server handed the event to (not
// proof that they received it).
func (c *Client) Publish(ctx context.Context, topic string, payload codec.Value) (int64, error) {
	env, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpPublish, Topic: topic, Payload: payload})
	if err != nil {
		return 0, err
	}
	n, _ := codec.AsInt(env.Payload)
	return n, nil
}

// Subscription is an open SUBSCRIBE registered on the server; its
// channel receives every delivered EVENT until Close is called, the
// subscription's timeout elapses (signaled by a terminal EVENT with no
// payload), or the connection drops (signaled by a closed channel).
type Subscription struct {
	client *Client
	rid    string
	ch     chan *protocol.Envelope
}

// subscribe issues SUBSCRIBE and registers the local event channel before
// the server can deliver anything, avoiding the race between ACK and the
// first EVENT.
func (c *Client) subscribe(ctx context.Context, topic, filter string, timeout time.Duration) (*Subscription, error) {
	rid := id.New()
	ch := make(chan *protocol.Envelope, eventBuffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: connection closed")
	}
	c.subs[rid] = ch
	c.mu.Unlock()

	env := &protocol.Envelope{Op: protocol.OpSubscribe, RID: rid, Topic: topic, Filter: filter}
	if timeout > 0 {
		seconds := timeout.Seconds()
		env.TTL = &seconds
	}
	if _, err := c.call(ctx, env); err != nil {
		c.mu.Lock()
		delete(c.subs, rid)
		c.mu.Unlock()
		return nil, err
	}
	return &Subscription{client: c, rid: rid, ch: ch}, nil
}

// Close unsubscribes and stops delivering events to this Subscription.
func (s *Subscription) Close(ctx context.Context) error {
	s.client.mu.Lock()
	delete(s.client.subs, s.rid)
	s.client.mu.Unlock()
	_, err := s.client.call(ctx, &protocol.Envelope{Op: protocol.OpUnsubscribe, RID: s.rid})
	return err
}

// SubscribeOne issues a one-shot SUBSCRIBE with timeout, waits for the
// first matching EVENT, and unsubscribes.
func (c *Client) SubscribeOne(ctx context.Context, topic, filter string, timeout time.Duration) (codec.Value, error) {
	sub, err := c.subscribe(ctx, topic, filter, timeout)
	if err != nil {
		return nil, err
	}
	defer sub.Close(context.Background())

	select {
	case env, ok := <-sub.ch:
		if !ok {
			return nil, fmt.Errorf("client: connection closed")
		}
		return env.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubscribeStream issues a streaming SUBSCRIBE: the returned channel
// yields every EVENT payload until cancel is called, the per-event idle
// timeout elapses (the server sends a terminal empty EVENT), or ctx is
// done.
func (c *Client) SubscribeStream(ctx context.Context, topic, filter string, idleTimeout time.Duration) (<-chan codec.Value, func(), error) {
	sub, err := c.subscribe(ctx, topic, filter, idleTimeout)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan codec.Value, eventBuffer)
	done := make(chan struct{})
	cancel := func() {
		select {
		case <-done:
		default:
			close(done)
		}
		_ = sub.Close(context.Background())
	}

	go func() {
		defer close(out)
		for {
			select {
			case env, ok := <-sub.ch:
				if !ok {
					return
				}
				if env.Payload == nil || env.Payload.Kind() == codec.KindNull {
					// Terminal empty EVENT: the server's timeout fired.
					return
				}
				select {
				case out <- env.Payload:
				case <-done:
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return out, cancel, nil
}
