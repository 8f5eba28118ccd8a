package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is called once per message. A returned error is logged and
// the message is not committed.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer tails cfg.Topic. With cfg.Group set it joins that consumer group
// and commits after each handled message; without one it reads partition 0
// from the chosen offset and commits nothing.
type Consumer struct {
	reader  *kafka.Reader
	grouped bool
	handler MessageHandler
	logger  *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, fromStart bool, handler MessageHandler) *Consumer {
	offset := kafka.LastOffset
	if fromStart {
		offset = kafka.FirstOffset
	}
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.Group,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: offset,
	}
	return &Consumer{
		reader:  kafka.NewReader(rc),
		grouped: cfg.Group != "",
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", cfg.Topic, "group", cfg.Group),
	}
}

// Run consumes until ctx is done, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetching message: %w", err)
		}
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to handle message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		if !c.grouped {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("failed to commit message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
