package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tienda-be/internal/address"
	"tienda-be/internal/api"
	"tienda-be/internal/cart"
	"tienda-be/internal/checkout"
	"tienda-be/internal/config"
	"tienda-be/internal/db"
	"tienda-be/internal/events"
	"tienda-be/internal/idempotency"
	"tienda-be/internal/inventory"
	"tienda-be/internal/logger"
	"tienda-be/internal/middleware"
	"tienda-be/internal/order"
	"tienda-be/internal/payment"
	"tienda-be/internal/payment/webhook"
	"tienda-be/internal/product"
	"tienda-be/internal/shipping"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger.Init(os.Getenv("APP_ENV"))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	log := logger.L()

	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	database, err := db.NewDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	registry := newRegistry(cfg)

	productRepo := product.NewRepository(database)
	cartSvc := cart.NewService(cart.NewRepository(database), cart.NewGuestStore(rdb, cfg.GuestCartTTL), productRepo)
	verifier := inventory.NewVerifier(productRepo)
	addressSvc := address.NewService(address.NewRepository(database))

	builder := order.NewBuilder(cfg, shipping.NewRateTable(cfg))
	guard := idempotency.NewGuard(rdb, cfg.IdempotencyTTL)
	orderSvc := order.NewService(order.NewRepository(database), builder, guard, cfg.KafkaTopicOrderPaid)

	paymentRepo := payment.NewRepository(database)
	reconciler := webhook.NewReconciler(orderSvc, paymentRepo)
	webhookHandler := webhook.NewWebhookHandler(registry, paymentRepo, reconciler)
	checkoutSvc := checkout.NewService(cartSvc, verifier, addressSvc, orderSvc, paymentRepo, registry)

	limiter := middleware.NewLimiter()
	h := api.NewHandler(cartSvc, checkoutSvc, orderSvc, webhookHandler, map[string]api.Pinger{
		"postgres": database,
		"redis":    api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	})

	srv := &http.Server{
		Addr: ":" + cfg.AppPort,
		Handler: api.NewRouter(h, api.RouterConfig{
			JWTSecret:      []byte(cfg.JWTSecret),
			CORSOrigin:     cfg.CORSOrigin,
			RequestTimeout: cfg.RequestTimeout,
			Limiter:        limiter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppEnv),
			zap.Any("providers", registry.Providers()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return limiter.Run(ctx) })

	job := checkout.NewReconcileJob(orderSvc, registry, reconciler, cfg.ReconcileInterval, cfg.ReconcileStaleAfter)
	g.Go(func() error { return job.Run(ctx) })

	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()
		relay := events.NewRelay(database, writer, cfg.OutboxInterval)
		g.Go(func() error { return relay.Run(ctx) })
	} else {
		log.Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	return g.Wait()
}

// newRegistry registers every provider that has credentials.
func newRegistry(cfg *config.Config) *payment.Registry {
	var gateways []payment.Gateway
	if cfg.MercadoPagoEnabled() {
		gateways = append(gateways, payment.NewMercadoPagoGateway(payment.MercadoPagoConfig{
			AccessToken:     cfg.MercadoPagoAccessToken,
			PublicKey:       cfg.MercadoPagoPublicKey,
			WebhookSecret:   cfg.MercadoPagoWebhookSecret,
			NotificationURL: cfg.NotificationURL,
			SuccessURL:      cfg.SuccessURL,
			FailureURL:      cfg.FailureURL,
			PendingURL:      cfg.PendingURL,
			Timeout:         cfg.GatewayTimeout,
		}))
	}
	if cfg.WompiEnabled() {
		gateways = append(gateways, payment.NewWompiGateway(payment.WompiConfig{
			PublicKey:       cfg.WompiPublicKey,
			PrivateKey:      cfg.WompiPrivateKey,
			IntegritySecret: cfg.WompiIntegritySecret,
			EventsSecret:    cfg.WompiEventsSecret,
			RedirectURL:     cfg.SuccessURL,
			Sandbox:         cfg.WompiSandbox,
			Timeout:         cfg.GatewayTimeout,
		}))
	}
	return payment.NewRegistry(payment.Provider(cfg.DefaultProvider), gateways...)
}
