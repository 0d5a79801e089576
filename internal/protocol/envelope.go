package protocol

import "github.com/geyang/zaku/internal/codec"

// Envelope is the outer frame carrying an operation, its correlation id,
// and whatever operands that operation needs, across the transport.
type Envelope struct {
	Op      Op
	RID     string
	Queue   string
	TaskID  string
	Topic   string
	TTL     *float64
	Filter  string
	Payload codec.Value
	Err     *ErrInfo
}

// ErrInfo is the {code, message} pair carried on an ERR frame.
type ErrInfo struct {
	Code    ErrorCode
	Message string
}

// ToValue renders the envelope as a codec map, the representation actually
// framed on the wire.
func (e *Envelope) ToValue() codec.Value {
	b := codec.Map().Set("op", codec.String(string(e.Op)))
	if e.RID != "" {
		b.Set("rid", codec.String(e.RID))
	}
	if e.Queue != "" {
		b.Set("queue", codec.String(e.Queue))
	}
	if e.TaskID != "" {
		b.Set("task_id", codec.String(e.TaskID))
	}
	if e.Topic != "" {
		b.Set("topic", codec.String(e.Topic))
	}
	if e.TTL != nil {
		b.Set("ttl", codec.Float(*e.TTL))
	}
	if e.Filter != "" {
		b.Set("filter", codec.String(e.Filter))
	}
	if e.Payload != nil {
		b.Set("payload", e.Payload)
	}
	if e.Err != nil {
		errVal := codec.Map().
			Set("code", codec.String(string(e.Err.Code))).
			Set("message", codec.String(e.Err.Message)).
			Build()
		b.Set("error", errVal)
	}
	return b.Build()
}

// FromValue parses an envelope back out of its codec map representation.
func FromValue(v codec.Value) (*Envelope, error) {
	mv, ok := codec.AsMap(v)
	if !ok {
		return nil, NewError(ErrInvalidArgument, "envelope is not a map")
	}
	e := &Envelope{}
	if opVal, ok := mv.Get("op"); ok {
		s, _ := codec.AsString(opVal)
		e.Op = Op(s)
	} else {
		return nil, NewError(ErrInvalidArgument, "envelope missing op")
	}
	if v, ok := mv.Get("rid"); ok {
		e.RID, _ = codec.AsString(v)
	}
	if v, ok := mv.Get("queue"); ok {
		e.Queue, _ = codec.AsString(v)
	}
	if v, ok := mv.Get("task_id"); ok {
		e.TaskID, _ = codec.AsString(v)
	}
	if v, ok := mv.Get("topic"); ok {
		e.Topic, _ = codec.AsString(v)
	}
	if v, ok := mv.Get("filter"); ok {
		e.Filter, _ = codec.AsString(v)
	}
	if v, ok := mv.Get("ttl"); ok {
		f, _ := codec.AsFloat(v)
		e.TTL = &f
	}
	if v, ok := mv.Get("payload"); ok {
		e.Payload = v
	}
	if v, ok := mv.Get("error"); ok {
		if em, ok := codec.AsMap(v); ok {
			info := &ErrInfo{}
			if c, ok := em.Get("code"); ok {
				s, _ := codec.AsString(c)
				info.Code = ErrorCode(s)
			}
			if m, ok := em.Get("message"); ok {
				info.Message, _ = codec.AsString(m)
			}
			e.Err = info
		}
	}
	return e, nil
}

// NewErrEnvelope builds a server-initiated ERR envelope keyed to rid.
func NewErrEnvelope(rid string, err *Error) *Envelope {
	return &Envelope{
		Op:  OpErr,
		RID: rid,
		Err: &ErrInfo{Code: err.Code, Message: err.Message},
	}
}

// NewAckEnvelope builds a server-initiated ACK envelope carrying payload,
// keyed to rid.
func NewAckEnvelope(rid string, payload codec.Value) *Envelope {
	return &Envelope{Op: OpAck, RID: rid, Payload: payload}
}

// NewEventEnvelope builds a server-initiated EVENT envelope delivering a
// pub/sub message on topic to the subscription keyed by rid.
func NewEventEnvelope(rid, topic string, payload codec.Value) *Envelope {
	return &Envelope{Op: OpEvent, RID: rid, Topic: topic, Payload: payload}
}
