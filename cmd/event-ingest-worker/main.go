package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/eventsync"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
)

// event-ingest-worker consumes SP-API ingest messages from RabbitMQ and writes them
// through the event store write gate.
//
//   RABBITMQ_URL=amqp://... RABBITMQ_INGEST_QUEUE=seller_analytics.ingest go run ./cmd/event-ingest-worker
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("database: %v", err)
	}
	db := config.GetDB()
	if err := models.MigrateTable(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	logger := config.GetLogger()

	consumer, err := eventsync.NewConsumer(config.RabbitMQConfigFromEnv(), logger)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer consumer.Close()

	writer := eventsync.NewWriter(db, logger)
	if err := consumer.Consume(ctx, writer); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("ingest worker stopped")
		os.Exit(1)
	}
	logger.Info("ingest worker stopped")
}
