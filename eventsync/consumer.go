package eventsync

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/workflow"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	logger  *logrus.Logger
}

func NewConsumer(cfg config.RabbitMQConfig, logger *logrus.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("RABBITMQ_URL not set")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Qos(cfg.PrefetchCount, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
		logger:  logger,
	}, nil
}

func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// Consume feeds deliveries of the ingest queue to w until ctx is done or the channel
// closes. Malformed messages are dropped; other failures are requeued.
func (c *Consumer) Consume(ctx context.Context, w *Writer) error {
	queueName := c.config.IngestQueue
	_, err := c.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := c.channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.logger.WithField("queue", queueName).Info("consuming ingest queue")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("ingest channel closed")
			}
			c.deliver(ctx, w, msg)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, w *Writer, msg amqp.Delivery) {
	_, err := w.Handle(ctx, msg.Body)
	switch {
	case err == nil:
		msg.Ack(false)
	case errors.Is(err, ErrMalformedMessage):
		config.LogError(c.logger, "consumer.go", "Consume", "drop malformed", msg.MessageId, err)
		msg.Nack(false, false)
	case errors.Is(err, workflow.ErrIdempotencyExhausted):
		config.LogError(c.logger, "consumer.go", "Consume", "drop after max attempts", msg.MessageId, err)
		msg.Nack(false, false)
	default:
		config.LogError(c.logger, "consumer.go", "Consume", "requeue", msg.MessageId, err)
		msg.Nack(false, true)
	}
}
