// Package events publishes domain events to Kafka so downstream systems
// (haemovigilance reporting, ward notification, analytics) can react to
// inventory changes. Publishing is fire-and-forget: a broker outage never
// blocks or fails a clinical operation.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Event types emitted by the blood bank.
const (
	TypeUnitRegistered    = "unit.registered"
	TypeUnitStatusChanged = "unit.status_changed"
	TypeUnitQuarantined   = "unit.quarantined"
	TypeUnitDiscarded     = "unit.discarded"
	TypeUnitExpired       = "unit.expired"
	TypeUnitIssued        = "unit.issued"
	TypeReactionReported  = "reaction.reported"
	TypeLookbackOpened    = "lookback.opened"
	TypeBreachDetected    = "breach.detected"
	TypeTransferDispatch  = "transfer.dispatched"
	TypeTransferReceived  = "transfer.received"
)

// Event is the envelope written to the event topic.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	BranchID   string                 `json:"branch_id"`
	EntityID   string                 `json:"entity_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close()
}

// KafkaPublisher publishes events to a Kafka topic using franz-go.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger zerolog.Logger
}

// NewKafkaPublisher connects to the given brokers. The returned publisher
// produces asynchronously; delivery failures are logged and dropped.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		p.logger.Error().Err(err).Str("type", e.Type).Msg("failed to marshal event")
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		// Key by entity so all events for a unit land on one partition,
		// preserving per-unit ordering for consumers.
		Key:   []byte(e.EntityID),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error().Err(err).
				Str("type", e.Type).
				Str("entity_id", e.EntityID).
				Msg("failed to publish event")
		}
	})
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// NopPublisher discards all events. Used when KAFKA_BROKERS is not set.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
func (NopPublisher) Close()                         {}
