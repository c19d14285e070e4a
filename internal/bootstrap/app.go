package bootstrap

import (
	"context"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/hsmazur/Taberna3/configs"
	"github.com/hsmazur/Taberna3/internal/logging"
)

// OpenMySQL opens the pool and pings it.
func OpenMySQL(ctx context.Context, cfg configs.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	lifetime := cfg.MySQL.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)
	if cfg.MySQL.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	}
	if cfg.MySQL.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	}

	// init context
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	return db, nil
}

func OpenRedis(ctx context.Context, cfg configs.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

// Rabbit is one AMQP connection with the single channel the process uses.
type Rabbit struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

func OpenRabbit(cfg configs.Config) (*Rabbit, error) {
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	return &Rabbit{Conn: conn, Channel: ch}, nil
}

func (r *Rabbit) Close() {
	_ = r.Channel.Close()
	_ = r.Conn.Close()
}

// Infra holds the connections shared by the serve and worker commands.
// Redis and Rabbit are nil when not configured.
type Infra struct {
	DB     *sqlx.DB
	Redis  *redis.Client
	Rabbit *Rabbit
}

func (in *Infra) Close() {
	if in.Rabbit != nil {
		in.Rabbit.Close()
	}
	if in.Redis != nil {
		_ = in.Redis.Close()
	}
	if in.DB != nil {
		_ = in.DB.Close()
	}
}

// Open connects to MySQL and, when configured, Redis and RabbitMQ.
func Open(ctx context.Context, cfg configs.Config) (*Infra, error) {
	log := logging.New("bootstrap")
	in := &Infra{}

	db, err := OpenMySQL(ctx, cfg)
	if err != nil {
		return nil, err
	}
	in.DB = db
	log.Info("mysql connected", "max_open", cfg.MySQL.MaxOpenConns)

	if cfg.Redis.Addr != "" {
		rdb, err := OpenRedis(ctx, cfg)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.Redis = rdb
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	if cfg.Rabbit.URL != "" {
		rb, err := OpenRabbit(cfg)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.Rabbit = rb
		log.Info("rabbitmq connected")
	}
	return in, nil
}
