package server

import (
	"context"
	"errors"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/internal/pubsub"
)

// dispatch routes one client envelope to its handler and always produces
// exactly one reply envelope (ACK or ERR) keyed to env.RID. A per-op
// failure never affects other in-flight requests on the same connection.
func (s *Server) dispatch(ctx context.Context, c *connection, env *protocol.Envelope) *protocol.Envelope {
	if s.authEnabled() && !c.authed && env.Op != protocol.OpAuth {
		return protocol.NewErrEnvelope(env.RID, protocol.NewError(protocol.ErrUnauthenticated, "AUTH required before other operations"))
	}

	switch env.Op {
	case protocol.OpAuth:
		return s.handleAuth(c, env)
	case protocol.OpInitQueue:
		if err := s.engine.InitQueue(ctx, env.Queue); err != nil {
			return errEnvelope(env.RID, err)
		}
		return protocol.NewAckEnvelope(env.RID, nil)
	case protocol.OpRemoveQueue:
		if err := s.engine.RemoveQueue(ctx, env.Queue); err != nil {
			return errEnvelope(env.RID, err)
		}
		return protocol.NewAckEnvelope(env.RID, nil)
	case protocol.OpClearQueue:
		if err := s.engine.ClearQueue(ctx, env.Queue); err != nil {
			return errEnvelope(env.RID, err)
		}
		return protocol.NewAckEnvelope(env.RID, nil)
	case protocol.OpAdd:
		taskID, err := s.engine.Add(ctx, env.Queue, env.Payload, env.TaskID)
		if err != nil {
			return errEnvelope(env.RID, err)
		}
		return protocol.NewAckEnvelope(env.RID, codec.Map().Set("task_id", codec.String(taskID)).Build())
	case protocol.OpTake:
		res, err := s.engine.Take(ctx, env.Queue, env.TTL)
		if err != nil {
			return errEnvelope(env.RID, err)
		}
		if !res.Found {
			return protocol.NewAckEnvelope(env.RID, codec.Null)
		}
		c.trackClaim(env.Queue, res.TaskID)
		payload := codec.Map().
			Set("task_id", codec.String(res.TaskID)).
			Set("payload", res.Payload).
			Build()
		return protocol.NewAckEnvelope(env.RID, payload)
	case protocol.OpMarkDone:
		if err := s.engine.MarkDone(ctx, env.Queue, env.TaskID); err != nil {
			return errEnvelope(env.RID, err)
		}
		c.untrackClaim(env.Queue, env.TaskID)
		return protocol.NewAckEnvelope(env.RID, nil)
	case protocol.OpMarkReset:
		if err := s.engine.MarkReset(ctx, env.Queue, env.TaskID); err != nil {
			return errEnvelope(env.RID, err)
		}
		c.untrackClaim(env.Queue, env.TaskID)
		return protocol.NewAckEnvelope(env.RID, nil)
	case protocol.OpPublish:
		n := s.registry.Publish(env.Topic, env.Payload)
		return protocol.NewAckEnvelope(env.RID, codec.Int(int64(n)))
	case protocol.OpSubscribe:
		return s.handleSubscribe(c, env)
	case protocol.OpUnsubscribe:
		s.registry.Unsubscribe(c, env.RID)
		return protocol.NewAckEnvelope(env.RID, nil)
	case protocol.OpPing:
		return protocol.NewAckEnvelope(env.RID, nil)
	default:
		return protocol.NewErrEnvelope(env.RID, protocol.NewError(protocol.ErrInvalidArgument, "unrecognized op "+string(env.Op)))
	}
}

func (s *Server) handleSubscribe(c *connection, env *protocol.Envelope) *protocol.Envelope {
	if s.registry.HasSubscription(c, env.RID) {
		return protocol.NewErrEnvelope(env.RID, protocol.NewError(protocol.ErrInvalidArgument, "duplicate subscription rid"))
	}
	var filter *pubsub.Filter
	if env.Filter != "" {
		f, err := pubsub.NewFilter(env.Filter)
		if err != nil {
			return protocol.NewErrEnvelope(env.RID, protocol.NewError(protocol.ErrInvalidArgument, "invalid filter: "+err.Error()))
		}
		filter = f
	}
	var timeout float64
	if env.TTL != nil {
		timeout = *env.TTL
	}
	s.registry.Subscribe(env.Topic, env.RID, c, secondsToDuration(timeout), filter)
	return protocol.NewAckEnvelope(env.RID, nil)
}

func (s *Server) handleAuth(c *connection, env *protocol.Envelope) *protocol.Envelope {
	user, key := "", ""
	if mv, ok := codec.AsMap(env.Payload); ok {
		if v, ok := mv.Get("user"); ok {
			user, _ = codec.AsString(v)
		}
		if v, ok := mv.Get("key"); ok {
			key, _ = codec.AsString(v)
		}
	}
	if !s.checkCredentials(user, key) {
		return protocol.NewErrEnvelope(env.RID, protocol.NewError(protocol.ErrUnauthenticated, "invalid credentials"))
	}
	c.authed = true
	return protocol.NewAckEnvelope(env.RID, nil)
}

func errEnvelope(rid string, err error) *protocol.Envelope {
	var pe *protocol.Error
	if !errors.As(err, &pe) {
		pe = protocol.WrapError(protocol.ErrInternal, "unexpected error", err)
	}
	return protocol.NewErrEnvelope(rid, pe)
}
