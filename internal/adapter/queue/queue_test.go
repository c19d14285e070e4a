package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

type ackRecord struct {
	acked   bool
	nacked  bool
	requeue bool
}

type fakeAck struct {
	mu   sync.Mutex
	recs map[uint64]*ackRecord
}

func (a *fakeAck) rec(tag uint64) *ackRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recs == nil {
		a.recs = map[uint64]*ackRecord{}
	}
	if a.recs[tag] == nil {
		a.recs[tag] = &ackRecord{}
	}
	return a.recs[tag]
}

func (a *fakeAck) Ack(tag uint64, _ bool) error {
	r := a.rec(tag)
	a.mu.Lock()
	r.acked = true
	a.mu.Unlock()
	return nil
}

func (a *fakeAck) Nack(tag uint64, _ bool, requeue bool) error {
	r := a.rec(tag)
	a.mu.Lock()
	r.nacked, r.requeue = true, requeue
	a.mu.Unlock()
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func (a *fakeAck) get(tag uint64) ackRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.recs[tag]; ok {
		return *r
	}
	return ackRecord{}
}

type fakeChannel struct {
	msgs chan amqp.Delivery
}

func (c *fakeChannel) Qos(int, int, bool) error { return nil }
func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.msgs, nil
}

type fakeSender struct {
	mu      sync.Mutex
	to      []string
	subject []string
	err     error
}

func (s *fakeSender) Send(_ context.Context, to, subject, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.to = append(s.to, to)
	s.subject = append(s.subject, subject)
	return nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func delivery(ack amqp.Acknowledger, tag uint64, body any) amqp.Delivery {
	b, _ := json.Marshal(body)
	if s, ok := body.(string); ok {
		b = []byte(s)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: b, RoutingKey: "notify.test"}
}

func TestRouterAckNackAndPoison(t *testing.T) {
	sender := &fakeSender{}
	h := NewNotificationHandler(sender, quietLogger())
	ch := &fakeChannel{msgs: make(chan amqp.Delivery, 4)}
	ack := &fakeAck{}

	r := NewRouter(ch, quietLogger(), WithTimeout(time.Second))
	r.Register("q", JSONHandler[usecase.Notification]{HandleFunc: h.HandleNotification})

	ch.msgs <- delivery(ack, 1, usecase.Notification{Kind: usecase.NotifyOrderReceipt, To: "ana@example.com", Name: "Ana",
		Data: map[string]string{"order_id": "10", "total": "25.50"}})
	ch.msgs <- delivery(ack, 2, "{not json")
	ch.msgs <- delivery(ack, 3, usecase.Notification{Kind: "sms", To: "ana@example.com"})
	close(ch.msgs)

	require.NoError(t, r.Run(context.Background()))

	assert.True(t, ack.get(1).acked)
	assert.True(t, ack.get(2).nacked)
	assert.False(t, ack.get(2).requeue, "undecodable body must not be requeued")
	assert.True(t, ack.get(3).nacked)
	assert.False(t, ack.get(3).requeue)

	require.Len(t, sender.to, 1)
	assert.Equal(t, "Order #10 confirmed", sender.subject[0])
}

func TestRouterRequeuesTransientFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("ses throttled")}
	h := NewNotificationHandler(sender, quietLogger())
	ch := &fakeChannel{msgs: make(chan amqp.Delivery, 1)}
	ack := &fakeAck{}

	r := NewRouter(ch, quietLogger())
	r.Register("q", JSONHandler[usecase.Notification]{HandleFunc: h.HandleNotification})
	ch.msgs <- delivery(ack, 1, usecase.Notification{Kind: usecase.NotifyPasswordReset, To: "ana@example.com",
		Data: map[string]string{"code": "123456"}})
	close(ch.msgs)

	require.NoError(t, r.Run(context.Background()))
	assert.True(t, ack.get(1).nacked)
	assert.True(t, ack.get(1).requeue)
}

func TestRouterStopsOnCancel(t *testing.T) {
	ch := &fakeChannel{msgs: make(chan amqp.Delivery)}
	r := NewRouter(ch, quietLogger())
	r.Register("q", JSONHandler[usecase.Notification]{HandleFunc: func(context.Context, usecase.Notification) error { return nil }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return nil
}

func TestRabbitNotifierPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := &RabbitNotifier{pub: pub, exchange: "taberna.notifications"}

	err := n.Notify(context.Background(), usecase.Notification{Kind: usecase.NotifyPasswordReset, To: "ana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "taberna.notifications", pub.exchange)
	assert.Equal(t, "notify.password_reset", pub.key)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)

	var got usecase.Notification
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	assert.Equal(t, "ana@example.com", got.To)
}

func TestRenderPasswordReset(t *testing.T) {
	subject, text, html, err := Render(usecase.Notification{
		Kind: usecase.NotifyPasswordReset, Name: "Ana",
		Data: map[string]string{"code": "481516", "expires_at": "2026-01-01T10:15:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Your password recovery code", subject)
	assert.Contains(t, text, "481516")
	assert.Contains(t, html, "481516")
}

func TestRenderEscapesHTML(t *testing.T) {
	_, text, html, err := Render(usecase.Notification{
		Kind: usecase.NotifyOrderReceipt, Name: "<b>Ana</b>",
		Data: map[string]string{"order_id": "7", "total": "25.50", "method": "pix"},
	})
	require.NoError(t, err)
	assert.Contains(t, text, "<b>Ana</b>")
	assert.Contains(t, html, "&lt;b&gt;Ana&lt;/b&gt;")
	assert.NotContains(t, html, "<b>Ana")

	_, _, _, err = Render(usecase.Notification{Kind: "sms"})
	assert.ErrorIs(t, err, ErrPoison)
}
