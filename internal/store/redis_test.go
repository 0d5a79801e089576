package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client)
}

func TestDocRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetDoc(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.SetDoc(ctx, "k1", []byte("hello")))
	v, found, err := s.GetDoc(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", string(v))

	require.NoError(t, s.DeleteDoc(ctx, "k1"))
	_, found, err = s.GetDoc(ctx, "k1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestListOps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PushTail(ctx, "q", "a"))
	require.NoError(t, s.PushTail(ctx, "q", "b"))
	n, err := s.ListLen(ctx, "q")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	v, found, err := s.PopHead(ctx, "q")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a", v)

	_, found, err = s.PopHead(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMapOps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MapSet(ctx, "claims", "t1", []byte(`{"deadline":1}`)))
	v, found, err := s.MapGet(ctx, "claims", "t1")
	require.NoError(t, err)
	require.True(t, found)
	require.Contains(t, string(v), "deadline")

	all, err := s.MapGetAll(ctx, "claims")
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.MapDelete(ctx, "claims", "t1"))
	_, found, err = s.MapGet(ctx, "claims", "t1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestTakeHeadAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PushTail(ctx, "pending", "t1"))
	require.NoError(t, s.PushTail(ctx, "pending", "t2"))

	id, found, err := s.TakeHead(ctx, "pending", "claims", []byte(`{"deadline":999}`))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "t1", id)

	claim, found, err := s.MapGet(ctx, "claims", id)
	require.NoError(t, err)
	require.True(t, found)
	require.Contains(t, string(claim), "999")

	n, err := s.ListLen(ctx, "pending")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestTakeHeadOnEmptyPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.TakeHead(ctx, "pending", "claims", []byte(`{}`))
	require.NoError(t, err)
	require.False(t, found)
}

func TestReapClaimRevertsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MapSet(ctx, "claims", "t1", []byte(`{"deadline":100}`)))

	reaped, err := s.ReapClaim(ctx, "claims", "t1", "pending", 200)
	require.NoError(t, err)
	require.True(t, reaped)

	_, found, err := s.MapGet(ctx, "claims", "t1")
	require.NoError(t, err)
	require.False(t, found)

	v, found, err := s.PopHead(ctx, "pending")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "t1", v)
}

func TestReapClaimSkipsUnexpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MapSet(ctx, "claims", "t1", []byte(`{"deadline":999999}`)))

	reaped, err := s.ReapClaim(ctx, "claims", "t1", "pending", 200)
	require.NoError(t, err)
	require.False(t, reaped)

	_, found, err := s.MapGet(ctx, "claims", "t1")
	require.NoError(t, err)
	require.True(t, found)
}

func TestPublishSubscribe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "topic:x")
	require.NoError(t, err)
	defer sub.Close()

	n, err := s.Publish(ctx, "topic:x", []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	select {
	case msg := <-sub.Messages():
		require.Equal(t, "hi", string(msg))
	case <-timeoutCh():
		t.Fatal("timed out waiting for published message")
	}
}
