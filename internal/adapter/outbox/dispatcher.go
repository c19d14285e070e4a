package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const TraceparentHeader = "traceparent"

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	log      *slog.Logger
	producer Producer
}

func NewDispatcher(log *slog.Logger, producer Producer) *Dispatcher {
	return &Dispatcher{log: log, producer: producer}
}

func message(ev Event) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(ev.Type)},
		{Key: "event_id", Value: []byte(ev.EventID)},
	}
	if ev.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: TraceparentHeader, Value: []byte(ev.Traceparent)})
	}
	return kafka.Message{
		Key:     []byte(ev.AggregateID),
		Value:   ev.Payload,
		Headers: headers,
		Time:    time.Now().UTC(),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if err := d.producer.WriteMessages(ctx, message(ev)); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", ev.EventID, "type", ev.Type, "err", err)
		return err
	}
	d.log.Debug("outbox dispatched", "event_id", ev.EventID, "type", ev.Type, "order_id", ev.AggregateID)
	return nil
}
