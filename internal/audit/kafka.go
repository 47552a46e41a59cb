package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"duffel/pkg/event"
)

// DefaultTopic is the Kafka topic change events are exported to.
const DefaultTopic = "duffel.changes"

const flushTimeout = 10 * time.Second

// KafkaPublisher exports journal entries to Kafka for downstream consumers.
// Records are keyed by list ID so a list's changes stay ordered within a
// partition. Produces are asynchronous; a failed produce is logged, not
// retried, because the durable journal is the Postgres store.
type KafkaPublisher struct {
	log    *slog.Logger
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(ctx context.Context, log *slog.Logger, brokers []string, topic string) (*KafkaPublisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("duffel"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaPublisher{log: log, client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, -1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %q: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %q: %w", topic, resp.Err)
	}
	return nil
}

func (p *KafkaPublisher) Emit(ctx context.Context, ev event.ChangeEvent) error {
	entry, err := EntryOf(ev)
	if err != nil {
		return err
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode kafka record: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.ListID.String()),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.log.Error("kafka produce failed",
				"error", err,
				"topic", p.topic,
				"list_id", entry.ListID,
				"seq", entry.Seq)
		}
	})
	return nil
}

// Close flushes outstanding produces and releases the client.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.log.Error("kafka flush failed", "error", err)
	}
	p.client.Close()
}
