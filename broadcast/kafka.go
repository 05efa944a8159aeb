package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces events to Kafka topics named prefix+topic, keyed by
// case id so events for one case stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	prefix string
	logger *slog.Logger
}

// NewKafkaPublisher connects a producer to brokers.
func NewKafkaPublisher(brokers []string, prefix string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("broadcast: kafka brokers required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("broadcast: kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, prefix: prefix, logger: logger}, nil
}

// Publish buffers the record and returns; delivery failures are only logged.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("broadcast: marshal event: %w", err)
	}

	rec := &kgo.Record{
		Topic: p.prefix + topic,
		Key:   []byte(ev.CaseID),
		Value: data,
	}
	// The request context ends before the broker acknowledges.
	p.client.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("broadcast: kafka produce failed", "topic", r.Topic, "case_id", ev.CaseID, "error", err)
		}
	})
	return nil
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close(ctx context.Context) {
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("broadcast: kafka flush", "error", err)
	}
	p.client.Close()
}
