// Package ingest consumes transfer ingestion events and invalidates cached entity aggregates.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// NewClient connects a sarama client for consumer groups.
func NewClient(brokers []string, clientID string) (sarama.Client, error) {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Consumer runs the invalidation handler inside a consumer group.
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	handler       *Handler
	topic         string
	logger        zerolog.Logger
}

// NewConsumer joins group on an existing client.
func NewConsumer(client sarama.Client, topic, group string, handler *Handler, logger zerolog.Logger) (*Consumer, error) {
	cons, err := sarama.NewConsumerGroupFromClient(group, client)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Consumer{
		consumerGroup: cons,
		handler:       handler,
		topic:         topic,
		logger:        logger.With().Str("component", "ingest_consumer").Logger(),
	}, nil
}

// Run consumes until ctx is cancelled or the group fails.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 1)

	go func() {
		for {
			if err := c.consumerGroup.Consume(ctx, []string{c.topic}, c.handler); err != nil {
				errs <- err
				return
			}

			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
		}
	}()

	c.logger.Info().Str("topic", c.topic).Msg("transfer event consumer started")

	select {
	case err := <-errs:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("consumer error: %w", err)
	case err := <-c.consumerGroup.Errors():
		return fmt.Errorf("consumer group error: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}
