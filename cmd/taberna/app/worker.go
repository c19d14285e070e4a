package app

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hsmazur/Taberna3/configs"
	"github.com/hsmazur/Taberna3/internal/adapter/kafka"
	"github.com/hsmazur/Taberna3/internal/adapter/outbox"
	"github.com/hsmazur/Taberna3/internal/adapter/queue"
	"github.com/hsmazur/Taberna3/internal/adapter/repo"
	"github.com/hsmazur/Taberna3/internal/bootstrap"
	"github.com/hsmazur/Taberna3/internal/logging"
	"github.com/hsmazur/Taberna3/internal/notifier"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

func emailSender(ctx context.Context, cfg configs.Config) (queue.EmailSender, error) {
	if cfg.Email.Sender == "" {
		logging.New("worker").Warn("email.sender empty, e-mails are only logged")
		return notifier.NewLogSender(logging.New("email")), nil
	}
	return notifier.NewSESSender(ctx, notifier.SESConfig{
		Region:          cfg.Email.Region,
		Sender:          cfg.Email.Sender,
		AccessKeyID:     cfg.Email.AccessKeyID,
		SecretAccessKey: cfg.Email.SecretAccessKey,
	})
}

// Work runs the notification consumer, the order status consumer and the
// outbox relay until ctx is cancelled or one of them fails.
func Work(ctx context.Context, cfg configs.Config) error {
	log := logging.New("worker")

	in, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer in.Close()
	if in.Rabbit == nil {
		return errors.New("rabbitmq.url required for worker")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers required for worker")
	}

	// rabbit: e-mail notifications
	if err := queue.Declare(in.Rabbit.Channel, cfg.Rabbit.Exchange, cfg.Rabbit.Queue); err != nil {
		return err
	}
	sender, err := emailSender(ctx, cfg)
	if err != nil {
		return err
	}
	nh := queue.NewNotificationHandler(sender, logging.New("notifications"))
	var opts []queue.RouterOption
	if cfg.Rabbit.Prefetch > 0 {
		opts = append(opts, queue.WithPrefetch(cfg.Rabbit.Prefetch))
	}
	router := queue.NewRouter(in.Rabbit.Channel, logging.New("queue"), opts...)
	router.Register(cfg.Rabbit.Queue, queue.JSONHandler[usecase.Notification]{HandleFunc: nh.HandleNotification})

	// kafka: back-office status commands
	group, err := kafka.NewGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID)
	if err != nil {
		return errors.Wrap(err, "kafka group")
	}
	defer func() { _ = group.Close() }()
	orders := usecase.NewOrders(repo.NewMySQLUnitOfWork(in.DB))
	sh := kafka.NewStatusCommandHandler(orders, logging.New("status-commands"))
	consumer := kafka.NewConsumer(group, []string{cfg.Kafka.StatusTopic}, sh.Handle, logging.New("kafka"))

	// outbox relay: order events
	writer := outbox.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer func() { _ = writer.Close() }()
	relayLog := logging.New("outbox")
	relay := outbox.NewRelay(relayLog, repo.NewMySQLOutboxRepo(in.DB), outbox.NewDispatcher(relayLog, writer),
		cfg.Outbox.Interval, cfg.Outbox.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return router.Run(gctx) })
	g.Go(func() error { return consumer.Start(gctx) })
	g.Go(func() error { return relay.Run(gctx) })

	log.Info("worker started", "queue", cfg.Rabbit.Queue, "status_topic", cfg.Kafka.StatusTopic, "events_topic", cfg.Kafka.EventsTopic)
	err = g.Wait()
	log.Info("worker stopped", "err", err)
	return err
}
