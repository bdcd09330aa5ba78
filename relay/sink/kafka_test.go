package sink

import (
	"testing"
	"time"

	"github.com/maxpert/herald/relay"
	"github.com/segmentio/kafka-go"
)

func TestDefaultKafkaConfig(t *testing.T) {
	brokers := []string{"localhost:9092", "localhost:9093"}
	config := DefaultKafkaConfig(brokers)

	if len(config.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %d", len(config.Brokers))
	}

	if config.BatchSize != DefaultKafkaBatchSize {
		t.Errorf("expected batch size %d, got %d", DefaultKafkaBatchSize, config.BatchSize)
	}

	if config.BatchBytes != DefaultKafkaBatchBytes {
		t.Errorf("expected batch bytes %d, got %d", DefaultKafkaBatchBytes, config.BatchBytes)
	}

	if config.RequiredAcks != kafka.RequireAll {
		t.Errorf("expected RequireAll acks, got %v", config.RequiredAcks)
	}

	if !config.AutoCreateTopics {
		t.Error("expected topic auto creation by default")
	}
}

func TestNewKafkaSink(t *testing.T) {
	sink, err := NewKafkaSink(KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		BatchSize:    50,
		BatchBytes:   2048,
		RequiredAcks: kafka.RequireOne,
	})
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	defer sink.Close()

	if sink.writer.BatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", sink.writer.BatchSize)
	}

	if sink.writer.BatchBytes != 2048 {
		t.Errorf("expected batch bytes 2048, got %d", sink.writer.BatchBytes)
	}

	if sink.writer.RequiredAcks != kafka.RequireOne {
		t.Errorf("expected RequireOne acks, got %v", sink.writer.RequiredAcks)
	}

	if sink.writer.Async {
		t.Error("expected synchronous writes")
	}

	if _, ok := sink.writer.Balancer.(*kafka.Hash); !ok {
		t.Errorf("expected hash balancer, got %T", sink.writer.Balancer)
	}
}

func TestNewKafkaSink_ZeroBatchDefaults(t *testing.T) {
	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	defer sink.Close()

	if sink.writer.BatchSize != DefaultKafkaBatchSize {
		t.Errorf("expected batch size %d, got %d", DefaultKafkaBatchSize, sink.writer.BatchSize)
	}
}

func TestNewKafkaSinkEmptyBrokers(t *testing.T) {
	if _, err := NewKafkaSink(KafkaConfig{}); err == nil {
		t.Error("expected error for empty brokers, got nil")
	}
}

func TestKafkaSink_Close(t *testing.T) {
	sink, err := NewKafkaSink(DefaultKafkaConfig([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("unexpected error closing sink: %v", err)
	}

	var empty KafkaSink
	if err := empty.Close(); err != nil {
		t.Errorf("unexpected error closing empty sink: %v", err)
	}
}

func TestEnvelopeMessage(t *testing.T) {
	env := relay.Envelope{
		Seq:       9,
		Subject:   "orders",
		SubjectID: 4,
		Code:      0x10000002,
		Group:     1,
		Bits:      0x2,
		Timestamp: 1234,
		Instance:  "node-a",
	}
	msg := envelopeMessage("herald.orders.g1", env, []byte("v"))

	if msg.Topic != "herald.orders.g1" || string(msg.Key) != "orders" || string(msg.Value) != "v" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !msg.Time.Equal(time.Unix(0, 1234)) {
		t.Errorf("expected notify time as record time, got %v", msg.Time)
	}

	got := map[string]string{}
	for _, h := range msg.Headers {
		got[h.Key] = string(h.Value)
	}
	want := map[string]string{
		relay.HeaderSubject:   "orders",
		relay.HeaderSubjectID: "4",
		relay.HeaderCode:      "0x10000002",
		relay.HeaderGroup:     "1",
		relay.HeaderBits:      "0x2",
		relay.HeaderSeq:       "9",
		relay.HeaderInstance:  "node-a",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d headers, got %d", len(want), len(got))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("header %s: expected %q, got %q", k, v, got[k])
		}
	}

	env.Timestamp = 0
	if msg := envelopeMessage("t", env, nil); !msg.Time.IsZero() {
		t.Errorf("expected zero time without a timestamp, got %v", msg.Time)
	}
}
