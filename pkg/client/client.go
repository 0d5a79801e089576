package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/internal/transport"
	"github.com/geyang/zaku/pkg/id"
	"github.com/geyang/zaku/pkg/log"
)

// defaultCallTimeout bounds how long a request waits for its ACK/ERR when
// the caller's context carries no deadline.
const defaultCallTimeout = 30 * time.Second

// Options configures Dial.
type Options struct {
	// User/Key are sent as an AUTH frame immediately after connecting.
	// Both empty skips the handshake, matching a server with auth disabled.
	User string
	Key  string

	Logger log.Logger
}

// Client is one persistent connection to a Zaku server, multiplexing
// queue operations and pub/sub events: a single reader goroutine
// demultiplexes every inbound envelope by rid, handing ACK/ERR replies to
// the waiting caller and EVENT frames to the matching subscription
// channel.
type Client struct {
	conn *transport.Conn
	log  log.Logger

	mu       sync.Mutex
	pending  map[string]chan *protocol.Envelope
	subs     map[string]chan *protocol.Envelope
	closed   bool
	closeCh  chan struct{}
	closeErr error
}

// Dial connects to a Zaku server at url ("ws://host:port" or
// "wss://..."), performs the AUTH handshake when opts names credentials,
// and starts the read loop.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, err := transport.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	c := &Client{
		conn:    conn,
		log:     logger.With(log.Component("client")),
		pending: make(map[string]chan *protocol.Envelope),
		subs:    make(map[string]chan *protocol.Envelope),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()

	if opts.User != "" || opts.Key != "" {
		payload := codec.Map().Set("user", codec.String(opts.User)).Set("key", codec.String(opts.Key)).Build()
		if _, err := c.call(ctx, &protocol.Envelope{Op: protocol.OpAuth, Payload: payload}); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("client: auth: %w", err)
		}
	}
	return c, nil
}

// Close shuts down the connection and fails every outstanding call.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		env, err := c.conn.ReadEnvelope()
		if err != nil {
			c.shutdown(err)
			return
		}
		switch env.Op {
		case protocol.OpAck, protocol.OpErr:
			c.deliverReply(env)
		case protocol.OpEvent:
			c.deliverEvent(env)
		default:
			c.log.Warn("client: unexpected server-initiated op", log.Str("op", string(env.Op)))
		}
	}
}

func (c *Client) deliverReply(env *protocol.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.RID]
	if ok {
		delete(c.pending, env.RID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	ch <- env
}

func (c *Client) deliverEvent(env *protocol.Envelope) {
	c.mu.Lock()
	ch, ok := c.subs[env.RID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- env:
	default:
		c.log.Warn("client: dropped event, subscriber channel full", log.Str("rid", env.RID))
	}
}

// shutdown fails every pending call and open subscription once the
// connection drops, so no caller blocks forever on a dead socket.
func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	pending := c.pending
	subs := c.subs
	c.pending = nil
	c.subs = nil
	close(c.closeCh)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	for _, ch := range subs {
		close(ch)
	}
}

// call sends env and blocks for its matching ACK/ERR, honoring ctx's
// deadline and falling back to defaultCallTimeout when ctx has none.
func (c *Client) call(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	if env.RID == "" {
		env.RID = id.New()
	}
	reply := make(chan *protocol.Envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: connection closed")
	}
	c.pending[env.RID] = reply
	c.mu.Unlock()

	if err := c.conn.WriteEnvelope(env); err != nil {
		c.mu.Lock()
		delete(c.pending, env.RID)
		c.mu.Unlock()
		return nil, fmt.Errorf("client: write: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	select {
	case r, ok := <-reply:
		if !ok {
			return nil, fmt.Errorf("client: connection closed: %w", c.closeErr)
		}
		if r.Op == protocol.OpErr {
			return nil, envelopeError(r)
		}
		return r, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, env.RID)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, fmt.Errorf("client: connection closed: %w", c.closeErr)
	}
}

func envelopeError(env *protocol.Envelope) error {
	if env.Err == nil {
		return protocol.NewError(protocol.ErrInternal, "server returned ERR with no detail")
	}
	return protocol.NewError(env.Err.Code, env.Err.Message)
}

func ttlPtr(seconds float64) *float64 {
	if seconds <= 0 {
		return nil
	}
	return &seconds
}
