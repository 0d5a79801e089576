package protocol

import (
	"bytes"
	"testing"

	"github.com/geyang/zaku/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	ttl := 30.0
	env := &Envelope{
		Op:      OpAdd,
		RID:     "r-1",
		Queue:   "embeddings",
		TTL:     &ttl,
		Payload: codec.Map().Set("x", codec.Int(7)).Build(),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, env))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, OpAdd, got.Op)
	require.Equal(t, "r-1", got.RID)
	require.Equal(t, "embeddings", got.Queue)
	require.NotNil(t, got.TTL)
	require.Equal(t, 30.0, *got.TTL)
}

func TestErrEnvelopeRoundTrip(t *testing.T) {
	env := NewErrEnvelope("r-2", NewError(ErrConflict, "task_id already exists"))

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, env))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, OpErr, got.Op)
	require.NotNil(t, got.Err)
	require.Equal(t, ErrConflict, got.Err.Code)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	buf := []byte{0xff, 0xff, 0xff, 0xff}
	_, err := ReadFrame(bytes.NewReader(buf))
	require.Error(t, err)
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, &Envelope{Op: OpPing, RID: "p1"}))
	require.NoError(t, WriteFrame(&buf, &Envelope{Op: OpPing, RID: "p2"}))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, "p1", first.RID)

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, "p2", second.RID)
}
