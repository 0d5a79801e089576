package server

import (
	"sync"
	"time"

	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/internal/pubsub"
	"github.com/geyang/zaku/internal/transport"
	"github.com/geyang/zaku/pkg/log"
)

// outboundBufferSize bounds a connection's pending-write queue. A
// subscriber whose consumer can't keep up fills this buffer; once full,
// Send reports pubsub.ErrSlow and the event is dropped (at-most-once
// delivery under backpressure).
const outboundBufferSize = 256

// connection is one live client session: the transport.Conn plus its
// per-connection state, the active subscriptions (tracked by the registry,
// keyed by this connection) and the task ids it currently holds claimed,
// used for best-effort reset on disconnect.
type connection struct {
	id   string
	conn *transport.Conn
	log  log.Logger

	outbound  chan *protocol.Envelope
	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	claimed map[claimKey]struct{}
	authed  bool
}

type claimKey struct {
	queue, taskID string
}

func newConnection(id string, conn *transport.Conn, logger log.Logger) *connection {
	return &connection{
		id:       id,
		conn:     conn,
		log:      logger,
		outbound: make(chan *protocol.Envelope, outboundBufferSize),
		done:     make(chan struct{}),
		claimed:  make(map[claimKey]struct{}),
	}
}

// Send implements pubsub.Sender: it enqueues env without blocking,
// reporting pubsub.ErrSlow when the outbound buffer is full.
func (c *connection) Send(env *protocol.Envelope) error {
	select {
	case c.outbound <- env:
		return nil
	default:
		return pubsub.ErrSlow
	}
}

// sendBlocking is used for direct request/response replies (ACK/ERR),
// which must not be dropped the way best-effort EVENT delivery can be.
// It still respects connection shutdown.
func (c *connection) sendBlocking(env *protocol.Envelope) error {
	select {
	case c.outbound <- env:
		return nil
	case <-c.done:
		return errConnectionClosed
	}
}

func (c *connection) trackClaim(queue, taskID string) {
	c.mu.Lock()
	c.claimed[claimKey{queue, taskID}] = struct{}{}
	c.mu.Unlock()
}

func (c *connection) untrackClaim(queue, taskID string) {
	c.mu.Lock()
	delete(c.claimed, claimKey{queue, taskID})
	c.mu.Unlock()
}

// claimsSnapshot returns this connection's currently claimed
// (queue, task id) pairs, used to issue best-effort MARK_RESETs on close.
func (c *connection) claimsSnapshot() []claimKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]claimKey, 0, len(c.claimed))
	for k := range c.claimed {
		out = append(out, k)
	}
	return out
}

// close shuts down the connection's write pump exactly once.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump drains the outbound queue onto the wire, serializing writes as
// gorilla/websocket requires, and pings on an idle timer to keep the
// connection alive through intermediaries.
func (c *connection) writePump() {
	ticker := time.NewTicker(transport.PingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case env := <-c.outbound:
			if err := c.conn.WriteEnvelope(env); err != nil {
				c.log.Warn("write envelope failed", log.Str("conn", c.id), log.Err(err))
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				c.close()
				return
			}
		}
	}
}

type connClosedErr struct{}

func (connClosedErr) Error() string { return "server: connection closed" }

var errConnectionClosed = connClosedErr{}
