// Package redpanda publishes attempt lifecycle events to Redpanda/Kafka.
//
// Events are keyed by attempt ID so every transition of one attempt lands on
// the same partition in order. Publishing is best-effort from the caller's
// point of view; the tracker logs and moves on when it fails.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// DefaultTopic is the topic attempt events go to when none is configured.
const DefaultTopic = "interview-attempts"

// Producer wraps a Kafka client and implements domain.EventPublisher.
type Producer struct {
	client *kgo.Client
	topic  string
}

var _ domain.EventPublisher = (*Producer)(nil)

// NewProducer constructs a Producer and ensures the topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	spec := DefaultTopicSpec(topic)
	topic = spec.Name
	slog.Info("connecting attempt event producer", slog.Any("brokers", brokers), slog.String("topic", topic))

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.DialTimeout(10*time.Second),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	if err := ensureTopic(ctx, client, spec); err != nil {
		// auto-create may still be enabled on the broker
		slog.Warn("attempt events topic not ensured", slog.String("topic", topic), slog.Any("error", err))
	}
	return &Producer{client: client, topic: topic}, nil
}

// Publish writes one event and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx domain.Context, ev domain.AttemptEvent) error {
	rec, err := newRecord(p.topic, ev)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		slog.Error("failed to produce attempt event",
			slog.String("attempt_id", ev.AttemptID),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err))
		return fmt.Errorf("op=redpanda.publish: %w", err)
	}
	slog.Debug("attempt event produced",
		slog.String("attempt_id", ev.AttemptID),
		slog.String("type", string(ev.Type)))
	return nil
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() error {
	if p.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}

func newRecord(topic string, ev domain.AttemptEvent) (*kgo.Record, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.marshal: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.AttemptID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "attempt_id", Value: []byte(ev.AttemptID)},
			{Key: "user_id", Value: []byte(ev.UserID)},
		},
	}, nil
}

// NoopPublisher drops events. Used when no brokers are configured.
type NoopPublisher struct{}

// Publish implements domain.EventPublisher.
func (NoopPublisher) Publish(domain.Context, domain.AttemptEvent) error { return nil }
