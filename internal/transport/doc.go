// Package transport implements the persistent bidirectional message
// stream as a gorilla/websocket connection: each WebSocket binary message
// carries exactly one codec-encoded envelope. WebSocket's own message
// framing supplies the frame boundary; no additional length prefix is
// layered on top (contrast internal/protocol's WriteFrame/ReadFrame,
// which frame a raw byte stream for contexts that don't already have
// WebSocket's message boundaries).
package transport
