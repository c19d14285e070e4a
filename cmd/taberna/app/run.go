package app

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/hsmazur/Taberna3/configs"
	"github.com/hsmazur/Taberna3/internal/adapter/cache"
	httpapi "github.com/hsmazur/Taberna3/internal/adapter/http"
	"github.com/hsmazur/Taberna3/internal/adapter/http/middleware"
	"github.com/hsmazur/Taberna3/internal/adapter/queue"
	"github.com/hsmazur/Taberna3/internal/adapter/repo"
	"github.com/hsmazur/Taberna3/internal/bootstrap"
	"github.com/hsmazur/Taberna3/internal/logging"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

func init() {
	// traceparent is carried from requests into outbox rows
	otel.SetTextMapPropagator(propagation.TraceContext{})
}

// NewHandler composes the HTTP application on top of opened infrastructure.
func NewHandler(cfg configs.Config, in *bootstrap.Infra) (http.Handler, error) {
	if in.Redis == nil {
		return nil, errors.New("redis.addr required for serve")
	}

	users := repo.NewMySQLUserRepo(in.DB)
	clients := repo.NewMySQLClientRepo(in.DB)
	employees := repo.NewMySQLEmployeeRepo(in.DB)
	products := repo.NewMySQLProductRepo(in.DB)
	uow := repo.NewMySQLUnitOfWork(in.DB)

	var notify usecase.Notifier
	if in.Rabbit != nil {
		n, err := queue.NewRabbitNotifier(in.Rabbit.Channel, cfg.Rabbit.Exchange, cfg.Rabbit.Queue)
		if err != nil {
			return nil, err
		}
		notify = n
	} else {
		logging.New("app").Warn("rabbitmq not configured, e-mails disabled")
	}

	accounts := usecase.NewAccounts(users, clients, employees)
	orders := usecase.NewOrders(uow)
	checkout := usecase.NewCheckout(uow, users, notify, cfg.Checkout.PaymentMethods)
	idem := cache.NewRedisIdempotencyStore(in.Redis, cfg.Idempotency.TTL)
	recovery := usecase.NewRecovery(users, cache.NewRedisRecoveryStore(in.Redis), notify, usecase.RecoveryConfig{
		TTL:         cfg.Recovery.TTL,
		MaxAttempts: cfg.Recovery.MaxAttempts,
		CodeLength:  cfg.Recovery.CodeLength,
		ExposeCode:  cfg.Recovery.ExposeCode && cfg.Development(),
	})

	authz := middleware.NewAuthz(middleware.AuthzConfig{
		Secret:   cfg.Security.JWTSecret,
		Issuer:   cfg.Security.Issuer,
		Audience: cfg.Security.Audience,
		TTL:      cfg.Security.TTL,
	})
	h := httpapi.Handlers{
		Cart:     httpapi.NewCartHandler(usecase.NewCart(uow), usecase.NewIdempotentCheckout(checkout, orders, idem)),
		Orders:   httpapi.NewOrderHandler(orders),
		Products: httpapi.NewProductHandler(usecase.NewCatalog(products)),
		Accounts: httpapi.NewAccountHandler(accounts, authz),
		Ratings:  httpapi.NewRatingHandler(usecase.NewRatings(repo.NewMySQLRatingRepo(in.DB), products)),
		Recovery: httpapi.NewRecoveryHandler(recovery),
	}
	secret := cfg.Security.SessionSecret
	if secret == "" {
		secret = cfg.Security.JWTSecret
	}
	return httpapi.NewRouter(httpapi.RouterConfig{
		SessionSecret:  secret,
		SecureCookie:   cfg.Security.SecureCookie,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, h, authz, accounts, in.DB), nil
}

// Serve runs the HTTP server until ctx is cancelled, then drains it.
func Serve(ctx context.Context, cfg configs.Config) error {
	log := logging.New("app")

	in, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer in.Close()

	handler, err := NewHandler(cfg, in)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("taberna: listening", "addr", cfg.App.HTTPAddr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Info("taberna: shutting down")
	return srv.Shutdown(shutCtx)
}
