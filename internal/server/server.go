package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/geyang/zaku/internal/config"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/internal/pubsub"
	"github.com/geyang/zaku/internal/queue"
	"github.com/geyang/zaku/internal/transport"
	"github.com/geyang/zaku/pkg/id"
	"github.com/geyang/zaku/pkg/log"
)

// Server wires the queue engine and pub/sub registry behind a
// WebSocket-upgraded connection handler: one driver goroutine per
// connection, multiplexing queue operations and topic broadcasts onto a
// single persistent stream per client.
type Server struct {
	cfg      config.Config
	engine   *queue.Engine
	registry *pubsub.Registry
	log      log.Logger
}

// New builds a Server over an already-constructed queue Engine and
// pub/sub Registry. Both are passed in explicitly; there are no hidden
// module-level singletons.
func New(cfg config.Config, engine *queue.Engine, registry *pubsub.Registry, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Server{cfg: cfg, engine: engine, registry: registry, log: logger}
}

func (s *Server) authEnabled() bool { return s.cfg.Auth.Enabled() }

// checkCredentials compares user/key against the configured shared secret
// in constant time. When the server has no configured credentials, every
// AUTH attempt succeeds (auth disabled).
func (s *Server) checkCredentials(user, key string) bool {
	if !s.authEnabled() {
		return true
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Auth.User)) == 1
	keyOK := subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Auth.Key)) == 1
	return userOK && keyOK
}

// ServeHTTP upgrades the request to a WebSocket connection and runs its
// read/write pumps until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := transport.Upgrade(w, r)
	if err != nil {
		s.log.Warn("websocket upgrade failed", log.Err(err))
		return
	}
	s.serveConn(r.Context(), wsConn)
}

func (s *Server) serveConn(ctx context.Context, wsConn *transport.Conn) {
	c := newConnection(id.New(), wsConn, s.log.With(log.Component("connection")))
	defer s.onDisconnect(c)

	go c.writePump()

	for {
		env, err := wsConn.ReadEnvelope()
		if err != nil {
			c.close()
			return
		}
		reply := s.dispatch(ctx, c, env)
		if reply == nil {
			continue
		}
		if err := c.sendBlocking(reply); err != nil {
			c.close()
			return
		}
		if reply.Op == protocol.OpErr && shouldCloseOnError(reply.Err.Code) {
			c.close()
			return
		}
	}
}

// shouldCloseOnError reports whether an ERR frame's code is a
// connection-level failure, which closes the connection after the final
// ERR is sent, rather than a per-op failure that leaves it open.
func shouldCloseOnError(code protocol.ErrorCode) bool {
	return code == protocol.ErrUnauthenticated
}

// onDisconnect cancels every subscription this connection owned and
// issues a best-effort MARK_RESET for every task id it had claimed. The
// reset may race the reaper harmlessly.
func (s *Server) onDisconnect(c *connection) {
	s.registry.CloseConnection(c)
	c.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, k := range c.claimsSnapshot() {
		if err := s.engine.MarkReset(ctx, k.queue, k.taskID); err != nil {
			s.log.Warn("best-effort reset on disconnect failed",
				log.Str("queue", k.queue), log.Str("task_id", k.taskID), log.Err(err))
		}
	}
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
