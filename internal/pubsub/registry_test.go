package pubsub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/protocol"
	"github.com/geyang/zaku/pkg/log"
)

type fakeSender struct {
	mu     sync.Mutex
	events []*protocol.Envelope
	full   bool
}

func (f *fakeSender) Send(env *protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return ErrSlow
	}
	f.events = append(f.events, env)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	r := NewRegistry(log.NewNop())
	s := &fakeSender{}
	r.Subscribe("topic1", "rid1", s, 0, nil)

	n := r.Publish("topic1", codec.String("hello"))
	require.Equal(t, 1, n)
	require.Equal(t, 1, s.count())
}

func TestSubscribeAfterPublishMisses(t *testing.T) {
	r := NewRegistry(log.NewNop())
	s := &fakeSender{}

	n := r.Publish("topic1", codec.String("before"))
	require.Equal(t, 0, n)

	r.Subscribe("topic1", "rid1", s, 0, nil)
	require.Equal(t, 0, s.count())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry(log.NewNop())
	s := &fakeSender{}
	r.Subscribe("topic1", "rid1", s, 0, nil)
	require.True(t, r.Unsubscribe(s, "rid1"))
	require.False(t, r.Unsubscribe(s, "rid1"))

	n := r.Publish("topic1", codec.String("x"))
	require.Equal(t, 0, n)
}

func TestCloseConnectionCancelsAllSubscriptions(t *testing.T) {
	r := NewRegistry(log.NewNop())
	s := &fakeSender{}
	r.Subscribe("a", "rid1", s, 0, nil)
	r.Subscribe("b", "rid2", s, 0, nil)

	r.CloseConnection(s)

	require.Equal(t, 0, r.Publish("a", codec.Null))
	require.Equal(t, 0, r.Publish("b", codec.Null))
}

func TestFullBufferDropsEventWithoutError(t *testing.T) {
	r := NewRegistry(log.NewNop())
	s := &fakeSender{full: true}
	r.Subscribe("topic1", "rid1", s, 0, nil)

	n := r.Publish("topic1", codec.Null)
	require.Equal(t, 0, n)
}

func TestTimeoutSendsTerminalEmptyEvent(t *testing.T) {
	r := NewRegistry(log.NewNop())
	s := &fakeSender{}
	r.Subscribe("topic1", "rid1", s, 20*time.Millisecond, nil)

	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
	env := s.events[0]
	require.Equal(t, protocol.OpEvent, env.Op)
	require.Nil(t, env.Payload)

	require.False(t, r.HasSubscription(s, "rid1"))
}

func TestFilterRestrictsDelivery(t *testing.T) {
	r := NewRegistry(log.NewNop())
	s := &fakeSender{}
	f, err := NewFilter(`payload.x == 7`)
	require.NoError(t, err)
	r.Subscribe("topic1", "rid1", s, 0, f)

	n := r.Publish("topic1", codec.Map().Set("x", codec.Int(5)).Build())
	require.Equal(t, 0, n)

	n = r.Publish("topic1", codec.Map().Set("x", codec.Int(7)).Build())
	require.Equal(t, 1, n)
}

func TestDuplicateSubscribeRidDetected(t *testing.T) {
	r := NewRegistry(log.NewNop())
	s := &fakeSender{}
	require.False(t, r.HasSubscription(s, "rid1"))
	r.Subscribe("topic1", "rid1", s, 0, nil)
	require.True(t, r.HasSubscription(s, "rid1"))
}
