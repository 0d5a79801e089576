package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/internal/store"
	"github.com/geyang/zaku/pkg/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStore(client)
	return New(s, "zaku-test", 10000, log.NewNop()), mr
}

func TestEmptyTakeReturnsNullNotError(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.InitQueue(ctx, "q1"))

	res, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestFIFOSingleClaimant(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	x, err := e.Add(ctx, "q1", codec.Map().Set("a", codec.Int(1)).Build(), "")
	require.NoError(t, err)
	y, err := e.Add(ctx, "q1", codec.Map().Set("a", codec.Int(2)).Build(), "")
	require.NoError(t, err)

	r1, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.True(t, r1.Found)
	require.Equal(t, x, r1.TaskID)

	r2, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.True(t, r2.Found)
	require.Equal(t, y, r2.TaskID)

	r3, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.False(t, r3.Found)
}

func TestMarkResetRequeuesAtTail(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Add(ctx, "q1", codec.Null, "")
	require.NoError(t, err)
	b, err := e.Add(ctx, "q1", codec.Null, "")
	require.NoError(t, err)

	takenA, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.Equal(t, a, takenA.TaskID)

	require.NoError(t, e.MarkReset(ctx, "q1", a))

	// Pending should now be [b, a].
	rb, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.Equal(t, b, rb.TaskID)

	ra, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.Equal(t, a, ra.TaskID)
}

func TestMarkResetIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Add(ctx, "q1", codec.Null, "")
	require.NoError(t, err)
	_, err = e.Take(ctx, "q1", nil)
	require.NoError(t, err)

	require.NoError(t, e.MarkReset(ctx, "q1", a))
	require.NoError(t, e.MarkReset(ctx, "q1", a))

	// The double reset must leave exactly one pending copy of a.
	r1, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.True(t, r1.Found)
	require.Equal(t, a, r1.TaskID)

	r2, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.False(t, r2.Found)
}

func TestMarkDoneIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Add(ctx, "q1", codec.Null, "")
	require.NoError(t, err)
	_, err = e.Take(ctx, "q1", nil)
	require.NoError(t, err)

	require.NoError(t, e.MarkDone(ctx, "q1", a))
	require.NoError(t, e.MarkDone(ctx, "q1", a))
}

func TestExplicitIDCollisionFails(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Add(ctx, "q1", codec.Null, "task-5")
	require.NoError(t, err)

	_, err = e.Add(ctx, "q1", codec.Null, "task-5")
	require.Error(t, err)
	pe, ok := protocol.AsError(err)
	require.True(t, ok)
	require.Equal(t, protocol.ErrConflict, pe.Code)
}

func TestQueueLenCap(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStore(client)
	e := New(s, "zaku-test", 1, log.NewNop())
	ctx := context.Background()

	_, err = e.Add(ctx, "q1", codec.Null, "")
	require.NoError(t, err)

	_, err = e.Add(ctx, "q1", codec.Null, "")
	require.Error(t, err)
	pe, ok := protocol.AsError(err)
	require.True(t, ok)
	require.Equal(t, protocol.ErrInvalidArgument, pe.Code)
}

func TestReapExpiredRequeuesAfterTTL(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	x, err := e.Add(ctx, "q1", codec.Null, "")
	require.NoError(t, err)

	ttl := 0.5
	r, err := e.Take(ctx, "q1", &ttl)
	require.NoError(t, err)
	require.Equal(t, x, r.TaskID)

	// Advance the engine's clock past the claim deadline instead of sleeping.
	e.nowMs = func() int64 { return time.Now().UnixMilli() + 1000 }

	n, err := e.ReapExpired(ctx, "q1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	r2, err := e.Take(ctx, "q1", nil)
	require.NoError(t, err)
	require.True(t, r2.Found)
	require.Equal(t, x, r2.TaskID)
}
