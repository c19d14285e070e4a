package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the router consumes from.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Router manages multiple consumers (one per registered queue) on a single AMQP channel.
type Router struct {
	ch            Channel
	log           *slog.Logger
	prefetch      int
	callTimeout   time.Duration
	requeueOnErr  bool
	registrations []registration
}

type registration struct {
	queueName   string
	handler     Handler
	consumerTag string
}

type RouterOption func(*Router)

func WithPrefetch(n int) RouterOption          { return func(r *Router) { r.prefetch = n } }
func WithTimeout(d time.Duration) RouterOption { return func(r *Router) { r.callTimeout = d } }
func WithRequeue(b bool) RouterOption          { return func(r *Router) { r.requeueOnErr = b } }

// NewRouter constructs a Router. Defaults: prefetch=50, timeout=10s, requeueOnErr=true.
func NewRouter(ch Channel, log *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		ch:           ch,
		log:          log,
		prefetch:     50,
		callTimeout:  10 * time.Second,
		requeueOnErr: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register associates a queue with a handler. Call multiple times for multiple queues.
func (r *Router) Register(queueName string, h Handler) {
	r.registrations = append(r.registrations, registration{
		queueName:   queueName,
		handler:     h,
		consumerTag: "c_" + queueName,
	})
}

// Run consumes every registered queue until ctx is done or all delivery
// channels close. QoS (prefetch) is per channel and applies to all consumers.
func (r *Router) Run(ctx context.Context) error {
	if err := r.ch.Qos(r.prefetch, 0, false); err != nil {
		return err
	}

	done := make(chan struct{}, len(r.registrations))
	for _, reg := range r.registrations {
		deliveries, err := r.ch.Consume(
			reg.queueName,
			reg.consumerTag,
			false, // manual ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return err
		}

		go func(reg registration, msgs <-chan amqp.Delivery) {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						r.log.Warn("rmq consumer stopped", "queue", reg.queueName, "tag", reg.consumerTag)
						return
					}
					r.dispatch(ctx, reg, d)
				}
			}
		}(reg, deliveries)
	}

	for range r.registrations {
		<-done
	}
	return nil
}

func (r *Router) dispatch(ctx context.Context, reg registration, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err := reg.handler.Handle(hctx, d)
	cancel()

	if err == nil {
		_ = d.Ack(false)
		return
	}
	requeue := r.requeueOnErr && !errors.Is(err, ErrPoison)
	r.log.Error("rmq handler error",
		"queue", reg.queueName,
		"tag", reg.consumerTag,
		"rk", d.RoutingKey,
		"requeue", requeue,
		"err", err,
	)
	_ = d.Nack(false, requeue)
}
