// Package protocol defines Zaku's wire envelope and framing: the set of
// recognized operations, the envelope fields that carry a request or a
// server-initiated event, and the length-delimited frame format that
// carries a codec-encoded envelope over a persistent connection.
package protocol
