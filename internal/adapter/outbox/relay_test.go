package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	events   []Event
	sent     []int64
	failed   map[int64]string
	released []int64
}

func (s *fakeStore) LockBatch(_ context.Context, limit int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) < limit {
		limit = len(s.events)
	}
	batch := s.events[:limit]
	s.events = s.events[limit:]
	return batch, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = msg
	return nil
}

func (s *fakeStore) Release(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, ids...)
	return nil
}

type fakeProducer struct {
	msgs   []kafka.Message
	failOn string
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if p.failOn != "" && string(m.Key) == p.failOn {
			return errors.New("broker unavailable")
		}
		p.msgs = append(p.msgs, m)
	}
	return nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelayFlush(t *testing.T) {
	store := &fakeStore{events: []Event{
		{ID: 1, EventID: "e-1", AggregateID: "10", Type: "order.finalized", Payload: []byte(`{"order_id":10}`),
			Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		{ID: 2, EventID: "e-2", AggregateID: "11", Type: "order.status_changed", Payload: []byte(`{}`)},
		{ID: 3, EventID: "e-3", AggregateID: "12", Type: "order.finalized", Payload: []byte(`{}`)},
	}}
	prod := &fakeProducer{failOn: "11"}
	relay := NewRelay(quietLogger(), store, NewDispatcher(quietLogger(), prod), time.Second, 10)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Contains(t, store.failed[2], "broker unavailable")

	require.Len(t, prod.msgs, 2)
	first := prod.msgs[0]
	assert.Equal(t, "10", string(first.Key))
	assert.Equal(t, "order.finalized", header(first, "event_type"))
	assert.Equal(t, "e-1", header(first, "event_id"))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header(first, TraceparentHeader))
	assert.Empty(t, header(prod.msgs[1], TraceparentHeader))
}

func TestRelayFlushHoldsLaterEventsOfFailedOrder(t *testing.T) {
	store := &fakeStore{events: []Event{
		{ID: 1, EventID: "e-1", AggregateID: "20", Type: "order.finalized", Payload: []byte(`{}`)},
		{ID: 2, EventID: "e-2", AggregateID: "21", Type: "order.finalized", Payload: []byte(`{}`)},
		{ID: 3, EventID: "e-3", AggregateID: "20", Type: "order.status_changed", Payload: []byte(`{}`)},
		{ID: 4, EventID: "e-4", AggregateID: "20", Type: "order.status_changed", Payload: []byte(`{}`)},
	}}
	prod := &fakeProducer{failOn: "20"}
	relay := NewRelay(quietLogger(), store, NewDispatcher(quietLogger(), prod), time.Second, 10)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{2}, store.sent)
	assert.Contains(t, store.failed, int64(1))
	assert.NotContains(t, store.failed, int64(3))
	assert.Equal(t, []int64{3, 4}, store.released)

	require.Len(t, prod.msgs, 1)
	assert.Equal(t, "21", string(prod.msgs[0].Key))
}

func TestRelayFlushRespectsBatchSize(t *testing.T) {
	store := &fakeStore{}
	for i := int64(1); i <= 5; i++ {
		store.events = append(store.events, Event{ID: i, AggregateID: "1"})
	}
	relay := NewRelay(quietLogger(), store, NewDispatcher(quietLogger(), &fakeProducer{}), time.Second, 2)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.sent, 4)
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{events: []Event{{ID: 1, AggregateID: "1"}}}
	relay := NewRelay(quietLogger(), store, NewDispatcher(quietLogger(), &fakeProducer{}), 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
