package process

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"acclaim/internal/platform/config"
)

// KafkaBridge publishes correlated process events to a Kafka topic the
// engine's connector consumes. Produces are asynchronous: the record is
// handed to the client and the delivery callback only logs failures, which
// matches the fire-and-forget contract of the bridge.
type KafkaBridge struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// envelope is the wire format for one process event. The correlation id is
// both the record key (for per-instance ordering) and an envelope field.
type envelope struct {
	CorrelationID string         `json:"correlation_id"`
	Event         string         `json:"event"`
	Variables     map[string]any `json:"variables,omitempty"`
	EmittedAt     time.Time      `json:"emitted_at"`
}

// NewKafkaBridge connects to the brokers and ensures the topic exists.
func NewKafkaBridge(cfg config.KafkaConfig, logger *slog.Logger) (*KafkaBridge, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ensureTopic(ctx, client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}

	return &KafkaBridge{client: client, topic: cfg.Topic, logger: logger}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	topics, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}
	if topics.Has(topic) {
		return nil
	}
	if _, err := adm.CreateTopic(ctx, -1, -1, nil, topic); err != nil {
		return fmt.Errorf("create kafka topic %s: %w", topic, err)
	}
	return nil
}

// StartInstance publishes an instance-start event. The correlation id is the
// request id: the engine keys its instances off it, and it lets retried
// starts collapse into one instance on the consuming side.
func (b *KafkaBridge) StartInstance(ctx context.Context, start StartRequest) (string, error) {
	correlationID := start.RequestID.String()
	err := b.produce(ctx, correlationID, "instance_started", map[string]any{
		"requester_id":  start.RequesterID.String(),
		"competency_id": start.CompetencyID.String(),
	})
	if err != nil {
		return "", err
	}
	return correlationID, nil
}

// Notify publishes a named event for an existing instance.
func (b *KafkaBridge) Notify(ctx context.Context, correlationID, event string, variables map[string]any) error {
	return b.produce(ctx, correlationID, event, variables)
}

func (b *KafkaBridge) produce(ctx context.Context, correlationID, event string, variables map[string]any) error {
	payload, err := json.Marshal(envelope{
		CorrelationID: correlationID,
		Event:         event,
		Variables:     variables,
		EmittedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal process event: %w", err)
	}
	record := &kgo.Record{
		Topic: b.topic,
		Key:   []byte(correlationID),
		Value: payload,
	}
	b.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			b.logger.Warn("process event delivery failed",
				"correlation_id", correlationID,
				"event", event,
				"error", err.Error(),
			)
		}
	})
	return nil
}

// Close flushes pending produces and closes the client.
func (b *KafkaBridge) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Flush(ctx); err != nil {
		b.logger.Warn("kafka flush on close failed", "error", err.Error())
	}
	b.client.Close()
	return nil
}
