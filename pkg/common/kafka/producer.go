package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/config"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
)

// Publisher is the subset of Producer used by services that emit bus messages.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(topic string) *Producer {
	cfg := config.Load()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

// NewMessage wraps data in a bus envelope.
func NewMessage(eventType, source string, data map[string]interface{}) models.BusMessage {
	return models.BusMessage{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func (p *Producer) PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	return p.Publish(ctx, NewMessage(eventType, source, data))
}

func (p *Producer) Publish(ctx context.Context, msg models.BusMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal bus message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(msg.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(msg.Type)},
			{Key: "source", Value: []byte(msg.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"type":       msg.Type,
		}).Error("Failed to publish message")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"message_id": msg.ID,
		"type":       msg.Type,
		"topic":      p.writer.Topic,
	}).Debug("Message published")

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
