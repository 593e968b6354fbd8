package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
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

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()

	asyncProducer := newFakeAsyncProducer()
	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "compliance",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "compliance-core",
		Env:  "test",
	}, zaptest.NewLogger(t))

	return publisher, asyncProducer
}

func readEnvelope(t *testing.T, msg *sarama.ProducerMessage) map[string]any {
	t.Helper()

	raw, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("encode value: %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return envelope
}

func TestPublishSecurityAlert(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	triggeredAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	alert := domain.SecurityAlert{
		ID:          "alert-1",
		Type:        domain.AlertExcessiveFailures,
		Severity:    domain.SeverityError,
		Message:     "5 failed logins for a***@example.com",
		Details:     map[string]any{"count": 5},
		TriggeredAt: triggeredAt,
	}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	if err := publisher.PublishSecurityAlert(ctx, alert); err != nil {
		t.Fatalf("PublishSecurityAlert returned error: %v", err)
	}

	var msg *sarama.ProducerMessage
	select {
	case msg = <-asyncProducer.input:
	default:
		t.Fatal("expected message to be enqueued")
	}

	if msg.Topic != "compliance.security.alert" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	if msg.Key != nil {
		t.Fatalf("expected alerts to be unkeyed, got %v", msg.Key)
	}

	envelope := readEnvelope(t, msg)
	if envelope["event_id"] != "alert-1" {
		t.Fatalf("unexpected event_id: %v", envelope["event_id"])
	}
	if envelope["version"] != schemaVersion {
		t.Fatalf("unexpected version: %v", envelope["version"])
	}
	if envelope["timestamp"] != triggeredAt.Format(time.RFC3339) {
		t.Fatalf("unexpected timestamp: %v", envelope["timestamp"])
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata missing: %#v", envelope)
	}
	if metadata["service"] != "compliance-core" || metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata: %#v", metadata)
	}
	if metadata["trace_id"] != traceID.String() {
		t.Fatalf("unexpected trace_id: %v", metadata["trace_id"])
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing: %#v", envelope)
	}
	if payload["severity"] != string(domain.SeverityError) {
		t.Fatalf("unexpected severity: %v", payload["severity"])
	}
}

func TestPublishSessionRevokedKeysByUser(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	event := domain.SessionRevokedEvent{
		SessionID: "session-456",
		UserID:    "user-789",
		RevokedAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Reason:    "logout",
	}

	if err := publisher.PublishSessionRevoked(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionRevoked returned error: %v", err)
	}

	msg := <-asyncProducer.input
	if msg.Topic != "compliance.session.revoked" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}

	key, err := msg.Key.Encode()
	if err != nil {
		t.Fatalf("encode key: %v", err)
	}
	if string(key) != "user-789" {
		t.Fatalf("unexpected key: %s", key)
	}

	envelope := readEnvelope(t, msg)
	if envelope["event_id"] == "" {
		t.Fatal("expected generated event id")
	}
	if _, ok := envelope["metadata"].(map[string]any)["trace_id"]; ok {
		t.Fatal("trace_id should be omitted without a span")
	}

	payload := envelope["payload"].(map[string]any)
	if payload["reason"] != "logout" || payload["session_id"] != "session-456" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestPublishRespectsCancelledContext(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	// Fill the buffered input so the next send blocks.
	asyncProducer.input <- &sarama.ProducerMessage{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	completedAt := time.Now().UTC()
	err := publisher.PublishRetentionJob(ctx, domain.RetentionJob{
		ID:          "job-1",
		DataType:    "user_sessions",
		Status:      domain.RetentionJobCompleted,
		CompletedAt: &completedAt,
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicNameKeepsExistingPrefix(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "compliance"}}

	if got := producer.TopicName("compliance.audit.event"); got != "compliance.audit.event" {
		t.Fatalf("unexpected topic: %s", got)
	}
	if got := producer.TopicName(TopicAuditEvent); got != "compliance.audit.event" {
		t.Fatalf("unexpected topic: %s", got)
	}
}
