package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

const notifyBinding = "notify.#"

// Publisher is the publishing half of *amqp.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitNotifier implements usecase.Notifier by publishing e-mail commands
// to a topic exchange. The worker consumes them from the bound queue.
type RabbitNotifier struct {
	pub      Publisher
	exchange string
}

// NewRabbitNotifier sets up the exchange, queue, and binding once at startup.
func NewRabbitNotifier(ch *amqp.Channel, exchange, queue string) (*RabbitNotifier, error) {
	if err := Declare(ch, exchange, queue); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return &RabbitNotifier{pub: ch, exchange: exchange}, nil
}

// Declare creates the durable topic exchange and the notifications queue bound to notify.#.
func Declare(ch *amqp.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, notifyBinding, exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	return nil
}

func RoutingKey(kind string) string { return "notify." + kind }

func (p *RabbitNotifier) Notify(ctx context.Context, n usecase.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         n.Kind,
		Timestamp:    n.Issue,
		Body:         body,
	}
	if err := p.pub.PublishWithContext(ctx, p.exchange, RoutingKey(n.Kind), false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

var _ usecase.Notifier = (*RabbitNotifier)(nil)
