package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/config"
)

const (
	schemaVersion = "1.0"
	auditTopic    = "audit"
)

// AuditPublisher publishes committed audit events to Kafka, keyed by actor.
type AuditPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewAuditPublisher constructs a Kafka-backed audit publisher.
func NewAuditPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *AuditPublisher {
	return &AuditPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type auditEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	ActorID   string           `json:"actor_id"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Message   string           `json:"message"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// PublishAudit enqueues event on the audit topic.
func (p *AuditPublisher) PublishAudit(ctx context.Context, event domain.AuditEvent) error {
	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	ts := event.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	payload, err := json.Marshal(auditEnvelope{
		EventID:   event.ID,
		EventType: event.Type,
		ActorID:   event.ActorID.String(),
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Message:   event.Message,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal audit envelope: %w", err)
	}

	return p.producer.Send(ctx, &sarama.ProducerMessage{
		Topic: p.producer.TopicName(auditTopic),
		Key:   sarama.StringEncoder(event.ActorID.String()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	})
}

var _ port.AuditPublisher = (*AuditPublisher)(nil)
