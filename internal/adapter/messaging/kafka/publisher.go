package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pix-gateway/config"
	"pix-gateway/internal/core/domain"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter builds a writer for the configured brokers and topic.
func NewWriter(cfg config.KafkaConfig) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Publisher implements ports.Notifier on top of a Kafka topic.
// Messages are keyed by merchant so one merchant's events stay ordered.
type Publisher struct {
	writer MessageWriter
	log    zerolog.Logger
}

func NewPublisher(w MessageWriter, log zerolog.Logger) *Publisher {
	return &Publisher{writer: w, log: log}
}

func (p *Publisher) Notify(ctx context.Context, n *domain.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(n.MerchantID.String()),
		Value: value,
		Time:  n.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(n.Type)},
			{Key: "resource_type", Value: []byte(n.ResourceType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", n.Type, err)
	}

	p.log.Debug().
		Str("type", string(n.Type)).
		Str("resource_id", n.ResourceID.String()).
		Msg("notification published")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
