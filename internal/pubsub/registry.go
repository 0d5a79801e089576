package pubsub

import (
	"sync"
	"time"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/pkg/log"
)

// Sender is the connection-facing half of a subscription: something that
// can have an EVENT envelope handed to it. Implementations (internal/server's
// connection type) must be non-blocking; ErrSlow signals a full outbound
// buffer, which the registry treats as a dropped delivery, not a retry.
type Sender interface {
	Send(env *protocol.Envelope) error
}

// ErrSlow is returned by a Sender whose outbound buffer is full. Publish
// logs this as a warning and moves on; delivery is at-most-once under
// backpressure.
var ErrSlow = errSlow{}

type errSlow struct{}

func (errSlow) Error() string { return "pubsub: subscriber outbound buffer full" }

// subscription is one (connection, rid) pair's interest in a topic.
type subscription struct {
	rid    string
	topic  string
	sender Sender
	filter *Filter

	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	closed  bool
}

// Registry is the process-wide, topic-indexed subscriber table. One
// Registry is constructed per server and threaded explicitly rather than
// held as a package-level singleton; all mutation happens under its own
// lock.
type Registry struct {
	mu       sync.Mutex
	topics   map[string]map[*subscription]struct{}
	bySender map[Sender]map[string]*subscription
	log      log.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		topics:   make(map[string]map[*subscription]struct{}),
		bySender: make(map[Sender]map[string]*subscription),
		log:      logger,
	}
}

// HasSubscription reports whether sender already owns an open subscription
// keyed by rid, used by the server to reject a duplicate SUBSCRIBE rid
// with INVALID_ARGUMENT.
func (r *Registry) HasSubscription(sender Sender, rid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bySender[sender][rid]
	return ok
}

// Subscribe registers sender's interest in topic under rid. timeout <= 0
// means no idle deadline (a streaming subscription that never auto-expires
// until the caller unsubscribes or the connection closes). filter may be
// nil to match every publish.
func (r *Registry) Subscribe(topic, rid string, sender Sender, timeout time.Duration, filter *Filter) {
	sub := &subscription{rid: rid, topic: topic, sender: sender, filter: filter, timeout: timeout}

	r.mu.Lock()
	if r.topics[topic] == nil {
		r.topics[topic] = make(map[*subscription]struct{})
	}
	r.topics[topic][sub] = struct{}{}
	if r.bySender[sender] == nil {
		r.bySender[sender] = make(map[string]*subscription)
	}
	r.bySender[sender][rid] = sub
	r.mu.Unlock()

	r.armTimeout(sub)
}

func (r *Registry) armTimeout(sub *subscription) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed || sub.timeout <= 0 {
		return
	}
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.timer = time.AfterFunc(sub.timeout, func() {
		r.expire(sub)
	})
}

// expire fires when a subscription's idle timeout elapses: the server
// sends a terminal empty EVENT and removes the subscription.
func (r *Registry) expire(sub *subscription) {
	if !r.remove(sub) {
		return
	}
	_ = sub.sender.Send(protocol.NewEventEnvelope(sub.rid, sub.topic, nil))
}

// Unsubscribe cancels sender's subscription keyed by rid, if any. Reports
// whether a subscription was actually removed.
func (r *Registry) Unsubscribe(sender Sender, rid string) bool {
	r.mu.Lock()
	sub, ok := r.bySender[sender][rid]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.remove(sub)
}

// CloseConnection cancels every subscription owned by sender, used when a
// connection closes.
func (r *Registry) CloseConnection(sender Sender) {
	r.mu.Lock()
	subs := r.bySender[sender]
	delete(r.bySender, sender)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		sub.closed = true
		if sub.timer != nil {
			sub.timer.Stop()
		}
		sub.mu.Unlock()
		r.removeFromTopic(sub)
	}
}

func (r *Registry) remove(sub *subscription) bool {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return false
	}
	sub.closed = true
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.mu.Unlock()

	r.mu.Lock()
	if set := r.bySender[sub.sender]; set != nil {
		delete(set, sub.rid)
		if len(set) == 0 {
			delete(r.bySender, sub.sender)
		}
	}
	r.mu.Unlock()

	r.removeFromTopic(sub)
	return true
}

func (r *Registry) removeFromTopic(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.topics[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.topics, sub.topic)
		}
	}
}

// Publish enumerates topic's current subscribers, evaluates each one's
// filter, and hands matching ones an EVENT envelope. Delivery is
// non-blocking: a Sender reporting ErrSlow is logged and skipped.
// Returns the number of subscribers the fabric successfully handed the
// event to: delivery to the fabric, not proof of receipt.
func (r *Registry) Publish(topic string, payload codec.Value) int {
	r.mu.Lock()
	set := r.topics[topic]
	subs := make([]*subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		if !sub.filter.Match(topic, payload) {
			continue
		}
		if err := sub.sender.Send(protocol.NewEventEnvelope(sub.rid, topic, payload)); err != nil {
			r.log.Warn("dropped pubsub event on full outbound buffer",
				log.Str("topic", topic), log.Str("rid", sub.rid))
			continue
		}
		delivered++
		r.armTimeout(sub)
	}
	return delivered
}

// TopicCount reports the number of distinct topics currently holding at
// least one subscriber, used by health/diagnostics.
func (r *Registry) TopicCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}
