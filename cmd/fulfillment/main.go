package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tienda-be/internal/config"
	"tienda-be/internal/db"
	"tienda-be/internal/events"
	"tienda-be/internal/fulfillment"
	"tienda-be/internal/logger"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// fulfillment consumes order events and reserves stock for paid orders.
func main() {
	logger.Init(os.Getenv("APP_ENV"))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Fatal("fulfillment worker exited", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required for the fulfillment worker")
	}

	database, err := db.NewDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	svc := fulfillment.NewService(fulfillment.NewRepository(database))
	reader := events.NewReader(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopicOrderPaid)

	logger.L().Info("fulfillment worker started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopicOrderPaid),
		zap.String("group", cfg.KafkaGroupID),
	)
	return events.NewConsumer(reader).Run(ctx, svc.Handle)
}
