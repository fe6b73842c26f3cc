package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestProducer(t *testing.T, async sarama.AsyncProducer, prefix string) *Producer {
	t.Helper()
	return &Producer{
		producer: async,
		logger:   zaptest.NewLogger(t),
		cfg:      config.KafkaSettings{TopicPrefix: prefix},
		errChan:  make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func TestPublishAudit(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := NewAuditPublisher(newTestProducer(t, asyncProducer, "identity"), config.AppSettings{
		Name: "identity-server",
		Env:  "test",
	}, zaptest.NewLogger(t))

	actor := uuid.MustParse("4f1c0a6e-2b7d-4a4e-9f43-6c1c7d2b9e10")
	at := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.AuditEvent{
		ID:      "01JBGZ8Z6Q9M7S2W5Q2N0X4K3D",
		ActorID: actor,
		Time:    at,
		Type:    domain.AuditUserBanned,
		Message: "banned user ada",
	}

	if err := publisher.PublishAudit(context.Background(), event); err != nil {
		t.Fatalf("PublishAudit returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "identity.audit" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			t.Fatalf("Key.Encode returned error: %v", err)
		}
		if string(key) != actor.String() {
			t.Fatalf("unexpected key: %s", key)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		if envelope["event_type"] != domain.AuditUserBanned {
			t.Fatalf("unexpected event_type: %v", envelope["event_type"])
		}
		if envelope["event_id"] != event.ID {
			t.Fatalf("unexpected event_id: %v", envelope["event_id"])
		}
		if envelope["timestamp"] != at.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %v", envelope["timestamp"])
		}
		if envelope["message"] != event.Message {
			t.Fatalf("unexpected message: %v", envelope["message"])
		}
		metadata, ok := envelope["metadata"].(map[string]any)
		if !ok || metadata["service"] != "identity-server" || metadata["environment"] != "test" {
			t.Fatalf("unexpected metadata: %v", envelope["metadata"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishAuditHonoursContext(t *testing.T) {
	asyncProducer := &fakeAsyncProducer{input: make(chan *sarama.ProducerMessage)}
	publisher := NewAuditPublisher(newTestProducer(t, asyncProducer, ""), config.AppSettings{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publisher.PublishAudit(ctx, domain.AuditEvent{Type: domain.AuditUserCreated}); err == nil {
		t.Fatal("expected cancelled context to abort publishing")
	}
}

func TestTopicName(t *testing.T) {
	p := newTestProducer(t, newFakeAsyncProducer(), "identity")
	if got := p.TopicName("audit"); got != "identity.audit" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := p.TopicName("identity.audit"); got != "identity.audit" {
		t.Fatalf("prefix applied twice: %s", got)
	}
}

func TestStubPublisherAcceptsEvents(t *testing.T) {
	if err := NewStubPublisher(zaptest.NewLogger(t)).PublishAudit(context.Background(), domain.AuditEvent{Type: domain.AuditUserCreated}); err != nil {
		t.Fatalf("PublishAudit returned error: %v", err)
	}
}
