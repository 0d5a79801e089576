package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/config"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/internal/pubsub"
	"github.com/geyang/zaku/internal/queue"
	"github.com/geyang/zaku/internal/store"
	"github.com/geyang/zaku/internal/transport"
	"github.com/geyang/zaku/pkg/id"
	"github.com/geyang/zaku/pkg/log"
)

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStore(client)
	engine := queue.New(s, "zaku-srv-test", 10000, log.NewNop())
	registry := pubsub.NewRegistry(log.NewNop())
	srv := New(cfg, engine, registry, log.NewNop())

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	ts := httptest.NewServer(mux)
	return ts, func() { ts.Close(); mr.Close() }
}

func dial(t *testing.T, ts *httptest.Server) *transport.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, err := transport.DialContext(context.Background(), url, nil)
	require.NoError(t, err)
	return conn
}

func request(t *testing.T, conn *transport.Conn, env *protocol.Envelope) *protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.WriteEnvelope(env))
	reply, err := conn.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, env.RID, reply.RID)
	return reply
}

func TestServerEmptyTakeReturnsNullAck(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	conn := dial(t, ts)
	defer conn.Close()

	reply := request(t, conn, &protocol.Envelope{Op: protocol.OpInitQueue, RID: id.New(), Queue: "q1"})
	require.Equal(t, protocol.OpAck, reply.Op)

	reply = request(t, conn, &protocol.Envelope{Op: protocol.OpTake, RID: id.New(), Queue: "q1"})
	require.Equal(t, protocol.OpAck, reply.Op)
	require.Equal(t, codec.KindNull, reply.Payload.Kind())
}

func TestServerFIFOSingleClaimant(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	conn := dial(t, ts)
	defer conn.Close()

	addReply := request(t, conn, &protocol.Envelope{
		Op: protocol.OpAdd, RID: id.New(), Queue: "q1",
		Payload: codec.Map().Set("a", codec.Int(1)).Build(),
	})
	mv, ok := codec.AsMap(addReply.Payload)
	require.True(t, ok)
	taskIDVal, _ := mv.Get("task_id")
	taskID, _ := codec.AsString(taskIDVal)
	require.NotEmpty(t, taskID)

	takeReply := request(t, conn, &protocol.Envelope{Op: protocol.OpTake, RID: id.New(), Queue: "q1"})
	tv, ok := codec.AsMap(takeReply.Payload)
	require.True(t, ok)
	gotID, _ := tv.Get("task_id")
	gotIDStr, _ := codec.AsString(gotID)
	require.Equal(t, taskID, gotIDStr)
}

func TestServerAuthRequiredRejectsUnauthenticated(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.User = "alice"
	cfg.Auth.Key = "secret"
	ts, cleanup := newTestServer(t, cfg)
	defer cleanup()
	conn := dial(t, ts)
	defer conn.Close()

	reply := request(t, conn, &protocol.Envelope{Op: protocol.OpInitQueue, RID: id.New(), Queue: "q1"})
	require.Equal(t, protocol.OpErr, reply.Op)
	require.Equal(t, protocol.ErrUnauthenticated, reply.Err.Code)
}

func TestServerAuthSucceedsThenOperationsWork(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.User = "alice"
	cfg.Auth.Key = "secret"
	ts, cleanup := newTestServer(t, cfg)
	defer cleanup()
	conn := dial(t, ts)
	defer conn.Close()

	authReply := request(t, conn, &protocol.Envelope{
		Op: protocol.OpAuth, RID: id.New(),
		Payload: codec.Map().Set("user", codec.String("alice")).Set("key", codec.String("secret")).Build(),
	})
	require.Equal(t, protocol.OpAck, authReply.Op)

	reply := request(t, conn, &protocol.Envelope{Op: protocol.OpInitQueue, RID: id.New(), Queue: "q1"})
	require.Equal(t, protocol.OpAck, reply.Op)
}

func TestServerRPCOverQueueRoundTrip(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	clientConn := dial(t, ts)
	defer clientConn.Close()
	workerConn := dial(t, ts)
	defer workerConn.Close()

	subRID := "r1"
	subReply := request(t, clientConn, &protocol.Envelope{Op: protocol.OpSubscribe, RID: subRID, Topic: "r1", TTL: floatPtr(5)})
	require.Equal(t, protocol.OpAck, subReply.Op)

	request(t, workerConn, &protocol.Envelope{Op: protocol.OpInitQueue, RID: id.New(), Queue: "q_rpc"})
	request(t, workerConn, &protocol.Envelope{
		Op: protocol.OpAdd, RID: id.New(), Queue: "q_rpc",
		Payload: codec.Map().Set("_request_id", codec.String("r1")).Set("x", codec.Int(7)).Build(),
	})

	takeReply := request(t, workerConn, &protocol.Envelope{Op: protocol.OpTake, RID: id.New(), Queue: "q_rpc"})
	tv, _ := codec.AsMap(takeReply.Payload)
	taskIDVal, _ := tv.Get("task_id")
	taskID, _ := codec.AsString(taskIDVal)

	pubReply := request(t, workerConn, &protocol.Envelope{
		Op: protocol.OpPublish, RID: id.New(), Topic: "r1",
		Payload: codec.Map().Set("result", codec.String("ok")).Set("x", codec.Int(7)).Build(),
	})
	require.Equal(t, protocol.OpAck, pubReply.Op)
	n, _ := codec.AsInt(pubReply.Payload)
	require.Equal(t, int64(1), n)

	request(t, workerConn, &protocol.Envelope{Op: protocol.OpMarkDone, RID: id.New(), Queue: "q_rpc", TaskID: taskID})

	event, err := clientConn.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, protocol.OpEvent, event.Op)
	require.Equal(t, subRID, event.RID)
	ev, _ := codec.AsMap(event.Payload)
	resultVal, _ := ev.Get("result")
	result, _ := codec.AsString(resultVal)
	require.Equal(t, "ok", result)

	request(t, clientConn, &protocol.Envelope{Op: protocol.OpUnsubscribe, RID: subRID})
}

func TestServerSubscribeTimeoutSendsTerminalEvent(t *testing.T) {
	ts, cleanup := newTestServer(t, config.Default())
	defer cleanup()
	conn := dial(t, ts)
	defer conn.Close()

	reply := request(t, conn, &protocol.Envelope{Op: protocol.OpSubscribe, RID: "r1", Topic: "t1", TTL: floatPtr(0.05)})
	require.Equal(t, protocol.OpAck, reply.Op)

	event, err := conn.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, protocol.OpEvent, event.Op)
	require.Nil(t, event.Payload)
}

func floatPtr(f float64) *float64 { return &f }
