package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
	"github.com/hsmazur/Taberna3/internal/usecase/usecasetest"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	marked []int64
}

func (s *fakeSession) Context() context.Context { return context.Background() }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func claimOf(values ...[]byte) *fakeClaim {
	c := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, len(values))}
	for i, v := range values {
		c.msgs <- &sarama.ConsumerMessage{Offset: int64(i), Value: v}
	}
	close(c.msgs)
	return c
}

func cmd(t *testing.T, orderID int64, status string) []byte {
	t.Helper()
	b, err := json.Marshal(usecase.OrderStatusCommandMsg{OrderID: orderID, Status: status, Reason: "back office"})
	require.NoError(t, err)
	return b
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStatusCommandsApplyAndSkip(t *testing.T) {
	mem := usecasetest.NewMemory()
	buyer := mem.AddUser("Ana", "ana@example.com")
	p := mem.AddProduct("Pastel", "10.00")
	approved := mem.AddApprovedOrder(buyer, p)

	h := NewStatusCommandHandler(usecase.NewOrders(mem), quietLogger())
	c := NewConsumer(nil, nil, h.Handle, quietLogger())
	sess := &fakeSession{}

	err := c.claimHandler().ConsumeClaim(sess, claimOf(
		[]byte("{garbage"),
		cmd(t, approved, "Refunded"),
		cmd(t, approved, "Approved"), // Refunded is terminal
		cmd(t, 9999, "Cancelled"),
		cmd(t, approved, "Shipped"),
	))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, sess.marked)
	o, ok := mem.Order(approved)
	require.True(t, ok)
	assert.Equal(t, domain.StatusRefunded, o.Status)
}

func TestConsumeClaimStopsOnTransientFailure(t *testing.T) {
	calls := 0
	h := &cgHandler{
		handle: func(context.Context, usecase.OrderStatusCommandMsg) error {
			calls++
			return &usecase.StorageError{Op: "lock order", Err: errors.New("connection reset")}
		},
		log:     quietLogger(),
		retries: 2,
		backoff: time.Millisecond,
	}
	sess := &fakeSession{}

	err := h.ConsumeClaim(sess, claimOf(cmd(t, 1, "Cancelled"), cmd(t, 2, "Cancelled")))
	require.Error(t, err)
	assert.True(t, usecase.IsStorage(err))
	assert.Equal(t, 3, calls)
	assert.Empty(t, sess.marked)
}

func TestConsumeClaimRetrySucceeds(t *testing.T) {
	calls := 0
	h := &cgHandler{
		handle: func(context.Context, usecase.OrderStatusCommandMsg) error {
			calls++
			if calls == 1 {
				return errors.New("deadlock found")
			}
			return nil
		},
		log:     quietLogger(),
		retries: 3,
		backoff: time.Millisecond,
	}
	sess := &fakeSession{}

	require.NoError(t, h.ConsumeClaim(sess, claimOf(cmd(t, 1, "Cancelled"))))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int64{0}, sess.marked)
}
