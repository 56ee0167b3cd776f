// Package eventlog appends keyed JSON events to a Kafka topic.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Writer is the produce side of a kgo.Client.
type Writer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Producer struct {
	client  Writer
	topic   string
	timeout time.Duration
	logger  *slog.Logger
	closeFn func()
}

type Config struct {
	Brokers []string
	Topic   string
	// Timeout bounds each produce call. Defaults to 5s.
	Timeout time.Duration
}

// NewKafkaProducer connects to the brokers and pings them once.
func NewKafkaProducer(ctx context.Context, cfg Config, logger *slog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach kafka brokers: %w", err)
	}

	p := NewProducer(client, cfg.Topic, cfg.Timeout, logger)
	p.closeFn = client.Close
	return p, nil
}

// NewProducer wraps an existing writer.
func NewProducer(client Writer, topic string, timeout time.Duration, logger *slog.Logger) *Producer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		client:  client,
		topic:   topic,
		timeout: timeout,
		logger:  logger.With("component", "eventlog", "topic", topic),
	}
}

// Append writes value as JSON under key. Records with the same key keep their order.
func (p *Producer) Append(ctx context.Context, key, eventType string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce %s event: %w", eventType, err)
	}
	return nil
}

func (p *Producer) Close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}
