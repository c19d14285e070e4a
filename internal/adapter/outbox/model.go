package outbox

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Event struct {
	ID          int64
	EventID     string
	AggregateID string
	Type        string
	Payload     []byte
	Traceparent string
	RetryCount  int
	CreatedAt   time.Time
}

type Store interface {
	LockBatch(ctx context.Context, limit int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	// Release hands claimed events back as pending without counting a retry.
	Release(ctx context.Context, ids []int64) error
}

// NewWriter builds the kafka-go writer for the events topic. Messages are
// keyed by order id, so the hash balancer keeps one order's events in order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}
