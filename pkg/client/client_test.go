package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/config"
	"github.com/geyang/zaku/internal/pubsub"
	"github.com/geyang/zaku/internal/queue"
	"github.com/geyang/zaku/internal/server"
	"github.com/geyang/zaku/internal/store"
	"github.com/geyang/zaku/pkg/log"
)

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStore(redisClient)
	engine := queue.New(s, "zaku-client-test", 10000, log.NewNop())
	registry := pubsub.NewRegistry(log.NewNop())
	srv := server.New(cfg, engine, registry, log.NewNop())

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	ts := httptest.NewServer(mux)
	return ts, func() { ts.Close(); mr.Close() }
}

func dialClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, err := Dial(context.Background(), url, Options{Logger: log.NewNop()})
	require.NoError(t, err)
	return c
}

func TestClientAddTakeMarkDoneRoundTrip(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	c := dialClient(t, ts)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.InitQueue(ctx, "q1"))

	taskID, err := c.Add(ctx, "q1", codec.Map().Set("a", codec.Int(1)).Build(), "")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	res, err := c.Take(ctx, "q1", 0)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, taskID, res.TaskID)

	require.NoError(t, c.MarkDone(ctx, "q1", res.TaskID))

	empty, err := c.Take(ctx, "q1", 0)
	require.NoError(t, err)
	require.False(t, empty.Found)
}

func TestClientWithClaimMarksDoneOnSuccess(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	c := dialClient(t, ts)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.InitQueue(ctx, "q1"))
	_, err := c.Add(ctx, "q1", codec.Map().Build(), "")
	require.NoError(t, err)

	found, err := WithClaim(ctx, c, "q1", 0, func(claim *Claim) error {
		return nil
	})
	require.NoError(t, err)
	require.True(t, found)

	res, err := c.Take(ctx, "q1", 0)
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestClientWithClaimResetsOnError(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	c := dialClient(t, ts)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.InitQueue(ctx, "q1"))
	taskID, err := c.Add(ctx, "q1", codec.Map().Build(), "")
	require.NoError(t, err)

	found, err := WithClaim(ctx, c, "q1", 0, func(claim *Claim) error {
		return assert.AnError
	})
	require.Error(t, err)
	require.True(t, found)

	res, err := c.Take(ctx, "q1", 0)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, taskID, res.TaskID)
}

func TestClientSubscribeOneReceivesPublish(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	subscriber := dialClient(t, ts)
	defer subscriber.Close()
	publisher := dialClient(t, ts)
	defer publisher.Close()

	ctx := context.Background()
	result := make(chan codec.Value, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := subscriber.SubscribeOne(ctx, "topic-a", "", 2*time.Second)
		if err != nil {
			errCh <- err
			return
		}
		result <- v
	}()

	require.Eventually(t, func() bool {
		n, err := publisher.Publish(ctx, "topic-a", codec.Map().Set("ok", codec.Bool(true)).Build())
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	select {
	case v := <-result:
		mv, ok := codec.AsMap(v)
		require.True(t, ok)
		okVal, _ := mv.Get("ok")
		b, _ := codec.AsBool(okVal)
		require.True(t, b)
	case err := <-errCh:
		t.Fatalf("subscribe failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestClientCallRoundTrip(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	caller := dialClient(t, ts)
	defer caller.Close()
	worker := dialClient(t, ts)
	defer worker.Close()

	ctx := context.Background()
	require.NoError(t, worker.InitQueue(ctx, "q_rpc"))

	resultCh := make(chan codec.Value, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := caller.Call(ctx, "q_rpc", codec.Map().Set("x", codec.Int(7)).Build(), 2*time.Second)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	var res *TakeResult
	require.Eventually(t, func() bool {
		r, err := worker.Take(ctx, "q_rpc", 0)
		if err != nil || !r.Found {
			return false
		}
		res = r
		return true
	}, 2*time.Second, 10*time.Millisecond)

	mv, ok := codec.AsMap(res.Payload)
	require.True(t, ok)
	ridVal, ok := mv.Get(requestIDField)
	require.True(t, ok)
	rid, _ := codec.AsString(ridVal)

	_, err := worker.Publish(ctx, rid, codec.Map().Set("result", codec.String("ok")).Build())
	require.NoError(t, err)
	require.NoError(t, worker.MarkDone(ctx, "q_rpc", res.TaskID))

	select {
	case v := <-resultCh:
		rv, ok := codec.AsMap(v)
		require.True(t, ok)
		resultVal, _ := rv.Get("result")
		s, _ := codec.AsString(resultVal)
		require.Equal(t, "ok", s)
	case err := <-errCh:
		t.Fatalf("call failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for rpc result")
	}
}
