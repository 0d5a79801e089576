package queue

import (
	"encoding/json"
	"fmt"

	"github.com/geyang/zaku/internal/codec"
)

// Status is a task's position in the per-queue state machine.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusClaimed Status = "CLAIMED"
)

// Record is a task's stored record: identity, lifecycle timestamps, and
// its payload. Stored as one hash field in the queue's meta map, keyed by
// task id; it is not split across meta/claims, so a task's payload lives
// in exactly one place regardless of lifecycle state. When the payload
// exceeds the engine's bulk-payload threshold, PayloadJSON is empty and
// BlobKey instead names the object in the optional bulk store; the
// metadata here stays authoritative either way.
type Record struct {
	ID          string  `json:"id"`
	Status      Status  `json:"status"`
	CreatedAtMs int64   `json:"created_at_ms"`
	ClaimedAtMs *int64  `json:"claimed_at_ms,omitempty"`
	TTLSeconds  float64 `json:"ttl_seconds"`
	PayloadJSON []byte  `json:"payload,omitempty"`
	BlobKey     string  `json:"blob_key,omitempty"`
}

// Payload decodes the record's inline stored payload back into a codec
// Value. Records whose payload was offloaded to the bulk store (BlobKey
// set) must be resolved by the caller via Engine.resolvePayload instead.
func (r *Record) Payload() (codec.Value, error) {
	if len(r.PayloadJSON) == 0 {
		return codec.Null, nil
	}
	return codec.DecodeJSON(r.PayloadJSON)
}

// marshalRecord encodes a Record for storage in the meta hash.
func marshalRecord(r *Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal record: %w", err)
	}
	return b, nil
}

func unmarshalRecord(b []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("queue: unmarshal record: %w", err)
	}
	return &r, nil
}

// claimEntry is the small JSON body written to the claims hash: just the
// absolute claim deadline, since the record (including payload) already
// lives in meta.
type claimEntry struct {
	DeadlineMs int64 `json:"deadline"`
}

func marshalClaim(deadlineMs int64) []byte {
	b, _ := json.Marshal(claimEntry{DeadlineMs: deadlineMs})
	return b
}

func jsonUnmarshalClaim(raw []byte, out *claimEntry) error {
	return json.Unmarshal(raw, out)
}
