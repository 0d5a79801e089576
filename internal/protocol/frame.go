package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/geyang/zaku/internal/codec"
)

// maxFrameBytes guards against a corrupt or hostile length prefix causing
// an unbounded allocation.
const maxFrameBytes = 64 << 20

// WriteFrame writes env to w as a 4-byte big-endian length prefix
// followed by its codec-encoded bytes.
func WriteFrame(w io.Writer, env *Envelope) error {
	body, err := codec.Encode(env.ToValue())
	if err != nil {
		return fmt.Errorf("protocol: encode envelope: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-delimited frame from r and parses its
// envelope.
func ReadFrame(r io.Reader) (*Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, NewError(ErrInvalidArgument, fmt.Sprintf("frame too large: %d bytes", n))
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	v, _, err := codec.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode frame: %w", err)
	}
	return FromValue(v)
}
