package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

// HandlerFunc processes a decoded status command. A returned error is
// treated as transient and the message is retried.
type HandlerFunc func(ctx context.Context, msg usecase.OrderStatusCommandMsg) error

// Consumer consumes a topic with a single handler.
type Consumer struct {
	Group   sarama.ConsumerGroup
	Topics  []string
	Handle  HandlerFunc
	Logger  *slog.Logger
	Retries int
	Backoff time.Duration
}

func NewConsumer(group sarama.ConsumerGroup, topics []string, h HandlerFunc, log *slog.Logger) *Consumer {
	return &Consumer{
		Group:   group,
		Topics:  topics,
		Handle:  h,
		Logger:  log,
		Retries: 3,
		Backoff: 200 * time.Millisecond,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	go func() {
		for err := range c.Group.Errors() {
			c.Logger.Error("kafka group error", "err", err)
		}
	}()

	handler := c.claimHandler()
	for {
		if err := c.Group.Consume(ctx, c.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.Logger.Error("kafka consume error", "err", err)
		}
		// Consume returns on rebalance or cancellation.
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) claimHandler() *cgHandler {
	return &cgHandler{handle: c.Handle, log: c.Logger, retries: c.Retries, backoff: c.Backoff}
}

type cgHandler struct {
	handle  HandlerFunc
	log     *slog.Logger
	retries int
	backoff time.Duration
}

func (h *cgHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *cgHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *cgHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var cmd usecase.OrderStatusCommandMsg
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			h.log.Warn("kafka decode error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
			// mark to avoid reprocessing poison
			sess.MarkMessage(msg, "decode-error")
			continue
		}
		if err := h.handleWithRetry(sess.Context(), cmd); err != nil {
			h.log.Error("kafka handler error",
				"err", err,
				"key", string(msg.Key),
				"offset", msg.Offset,
			)
			// leave the offset unmarked; the claim restarts from it after the next rebalance
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

func (h *cgHandler) handleWithRetry(ctx context.Context, cmd usecase.OrderStatusCommandMsg) error {
	var err error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if err = h.handle(ctx, cmd); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.backoff * time.Duration(attempt+1)):
		}
	}
	return err
}
