// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer publishes import completion events as
// JSON; the consumer feeds import requests to a MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robso86/jsonschema-mapper/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is a callback invoked for each Kafka message. A returned
// error leaves the message uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

const (
	minFetchBackoff = 100 * time.Millisecond
	maxFetchBackoff = 10 * time.Second
)

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader    *kafka.Reader
	logger    *slog.Logger
	handler   MessageHandler
	handled   atomic.Int64
	failed    atomic.Int64
	committed atomic.Int64
}

type ConsumerStats struct {
	Handled   int64 `json:"handled"`
	Failed    int64 `json:"failed"`
	Committed int64 `json:"committed"`
	Lag       int64 `json:"lag"`
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start runs the consume loop until ctx is cancelled. Fetch errors back off
// exponentially; a message whose handler fails is logged and left
// uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	backoff := minFetchBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(backoff*2, maxFetchBackoff)
			continue
		}
		backoff = minFetchBackoff
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(msg.Key))
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		c.failed.Add(1)
		log.Error("failed to process message", "error", err)
		return
	}
	c.handled.Add(1)
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("failed to commit message", "error", err)
		return
	}
	c.committed.Add(1)
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:   c.handled.Load(),
		Failed:    c.failed.Load(),
		Committed: c.committed.Load(),
		Lag:       c.reader.Stats().Lag,
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
