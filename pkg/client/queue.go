package client

import (
	"context"
	"fmt"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
)

// InitQueue idempotently registers queue on the server.
func (c *Client) InitQueue(ctx context.Context, queue string) error {
	_, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpInitQueue, Queue: queue})
	return err
}

// RemoveQueue deletes queue and everything in it.
func (c *Client) RemoveQueue(ctx context.Context, queue string) error {
	_, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpRemoveQueue, Queue: queue})
	return err
}

// ClearQueue empties queue's pending tasks and claims but keeps its
// registration.
func (c *Client) ClearQueue(ctx context.Context, queue string) error {
	_, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpClearQueue, Queue: queue})
	return err
}

// Add appends a new task carrying payload to queue. An empty taskID lets
// the server mint one; the assigned id is returned either way.
func (c *Client) Add(ctx context.Context, queue string, payload codec.Value, taskID string) (string, error) {
	env, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpAdd, Queue: queue, TaskID: taskID, Payload: payload})
	if err != nil {
		return "", err
	}
	mv, ok := codec.AsMap(env.Payload)
	if !ok {
		return "", fmt.Errorf("client: malformed ADD ack")
	}
	idVal, _ := mv.Get("task_id")
	id, _ := codec.AsString(idVal)
	return id, nil
}

// TakeResult is a claimed (or absent) task returned by Take.
type TakeResult struct {
	Found   bool
	TaskID  string
	Payload codec.Value
}

// Take claims the oldest pending task in queue, if any. ttlSeconds <= 0
// uses the server's default TTL.
func (c *Client) Take(ctx context.Context, queue string, ttlSeconds float64) (*TakeResult, error) {
	env, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpTake, Queue: queue, TTL: ttlPtr(ttlSeconds)})
	if err != nil {
		return nil, err
	}
	if env.Payload == nil || env.Payload.Kind() == codec.KindNull {
		return &TakeResult{Found: false}, nil
	}
	mv, ok := codec.AsMap(env.Payload)
	if !ok {
		return nil, fmt.Errorf("client: malformed TAKE ack")
	}
	idVal, _ := mv.Get("task_id")
	taskID, _ := codec.AsString(idVal)
	payload, _ := mv.Get("payload")
	return &TakeResult{Found: true, TaskID: taskID, Payload: payload}, nil
}

// MarkDone reports a claimed task's successful completion.
func (c *Client) MarkDone(ctx context.Context, queue, taskID string) error {
	_, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpMarkDone, Queue: queue, TaskID: taskID})
	return err
}

// MarkReset releases a claimed task back to pending.
func (c *Client) MarkReset(ctx context.Context, queue, taskID string) error {
	_, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpMarkReset, Queue: queue, TaskID: taskID})
	return err
}

// Claim is a scoped acquisition of one claimed task, guaranteeing exactly
// one of MarkDone/MarkReset fires regardless of how the caller's work
// function exits.
type Claim struct {
	client  *Client
	queue   string
	TaskID  string
	Payload codec.Value
}

// WithClaim takes one task from queue and runs fn with it. fn returning
// nil marks the task done; fn returning an error (or panicking) resets
// it back to pending and the panic/error propagates. Returns (false, nil)
// when the queue had nothing pending; fn is not called.
func WithClaim(ctx context.Context, c *Client, queue string, ttlSeconds float64, fn func(claim *Claim) error) (bool, error) {
	res, err := c.Take(ctx, queue, ttlSeconds)
	if err != nil {
		return false, err
	}
	if !res.Found {
		return false, nil
	}
	claim := &Claim{client: c, queue: queue, TaskID: res.TaskID, Payload: res.Payload}

	done := false
	defer func() {
		if done {
			return
		}
		if r := recover(); r != nil {
			_ = c.MarkReset(ctx, queue, claim.TaskID)
			panic(r)
		}
	}()

	if err := fn(claim); err != nil {
		_ = c.MarkReset(ctx, queue, claim.TaskID)
		done = true
		return true, err
	}
	done = true
	return true, c.MarkDone(ctx, queue, claim.TaskID)
}
