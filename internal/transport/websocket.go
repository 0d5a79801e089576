package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
)

// maxMessageBytes bounds a single envelope's wire size, mirroring
// protocol.maxFrameBytes for the raw-stream transport.
const maxMessageBytes = 64 << 20

// pingPeriod and pongWait keep idle connections alive through
// intermediaries (load balancers, proxies) that kill silent TCP streams.
// pongWait must exceed pingPeriod or healthy connections time out.
const (
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients are workers and producers, not browsers; there is no
	// cookie-based session for origin checks to protect.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Conn is one WebSocket connection carrying envelopes. gorilla/websocket
// forbids concurrent writers, so WriteEnvelope and Ping serialize every
// write under writeMu; ReadEnvelope must only be called from one
// goroutine at a time.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

// Upgrade promotes an HTTP request to a WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &Conn{ws: ws}, nil
}

// ReadEnvelope blocks for the next client-sent envelope.
func (c *Conn) ReadEnvelope() (*protocol.Envelope, error) {
	_, body, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	v, _, err := codec.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("transport: decode message: %w", err)
	}
	return protocol.FromValue(v)
}

// WriteEnvelope sends env as one binary WebSocket message.
func (c *Conn) WriteEnvelope(env *protocol.Envelope) error {
	body, err := codec.Encode(env.ToValue())
	if err != nil {
		return fmt.Errorf("transport: encode envelope: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.BinaryMessage, body)
}

// Ping sends a protocol-level WebSocket ping, used by the connection's
// write pump on pingPeriod to keep the stream alive.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// Close closes the underlying WebSocket connection.
func (c *Conn) Close() error { return c.ws.Close() }

// DialContext opens a client-side WebSocket connection to url
// ("ws://host:port/ws" or "wss://..."), used by pkg/client.
func DialContext(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	ws.SetReadLimit(maxMessageBytes)
	return &Conn{ws: ws}, nil
}

// PingPeriod exposes pingPeriod for the server's write pump.
func PingPeriod() time.Duration { return pingPeriod }
