package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/config"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
)

type Consumer struct {
	reader *kafka.Reader
	retry  time.Duration
}

type MessageHandler func(ctx context.Context, msg models.BusMessage) error

func NewConsumer(topic string, groupID string) *Consumer {
	cfg := config.Load()
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})

	return &Consumer{reader: reader, retry: 2 * time.Second}
}

// Consume blocks until ctx is cancelled. Undecodable messages are committed
// and skipped; messages the handler rejects are left uncommitted so they are
// redelivered after a rebalance or restart.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logger.Log.WithError(err).Error("Failed to fetch message")
			if !sleep(ctx, c.retry) {
				return ctx.Err()
			}
			continue
		}

		var msg models.BusMessage
		if err := json.Unmarshal(message.Value, &msg); err != nil {
			logger.Log.WithError(err).WithField("offset", message.Offset).Error("Failed to unmarshal bus message")
			c.commit(ctx, message)
			continue
		}
		if msg.Type == "" {
			msg.Type = header(message, "event-type")
		}

		if err := handler(ctx, msg); err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"message_id": msg.ID,
				"type":       msg.Type,
				"offset":     message.Offset,
			}).Error("Failed to process message")
			continue
		}

		c.commit(ctx, message)
	}
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		logger.Log.WithError(err).Error("Failed to commit message")
	}
}

func header(message kafka.Message, key string) string {
	for _, h := range message.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
