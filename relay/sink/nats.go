package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maxpert/herald/cfg"
	"github.com/maxpert/herald/relay"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	natsPublishTimeout = 5 * time.Second
	natsStreamMaxAge   = 24 * time.Hour
)

func init() {
	relay.RegisterSink("nats", func(config cfg.SinkConfiguration) (relay.Sink, error) {
		if config.NatsURL == "" {
			return nil, fmt.Errorf("nats sink requires nats_url")
		}
		return NewNatsSink(config.NatsURL)
	})
}

// NatsSink publishes envelopes to NATS JetStream
type NatsSink struct {
	nc *nats.Conn
	js jetstream.JetStream

	streamsMu sync.Mutex
	streams   map[string]struct{}
}

// NewNatsSink connects to url and creates a JetStream context
func NewNatsSink(url string) (*NatsSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("herald-relay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NatsSink{nc: nc, js: js, streams: make(map[string]struct{})}, nil
}

// Publish sends value to the JetStream subject topic, creating its stream
// on first use. The key travels as a header.
func (n *NatsSink) Publish(topic, key string, value []byte) error {
	return n.publish(topic, nats.Header{"key": []string{key}}, value)
}

// PublishEnvelope is Publish with the envelope's routing headers attached.
// The sequence doubles as the JetStream dedup id so redelivered envelopes
// collapse inside the stream's duplicate window.
func (n *NatsSink) PublishEnvelope(topic string, env relay.Envelope, value []byte) error {
	return n.publish(topic, envelopeHeader(env), value)
}

func (n *NatsSink) publish(topic string, header nats.Header, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), natsPublishTimeout)
	defer cancel()

	if err := n.ensureStream(ctx, topic); err != nil {
		return err
	}

	msg := &nats.Msg{Subject: topic, Data: value, Header: header}
	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func envelopeHeader(env relay.Envelope) nats.Header {
	h := nats.Header{}
	h.Set("key", env.Subject)
	for _, kv := range env.Headers() {
		h.Set(kv.Key, kv.Value)
	}
	if env.Seq != 0 {
		h.Set(nats.MsgIdHdr, env.Instance+"-"+strconv.FormatUint(env.Seq, 10))
	}
	return h
}

func (n *NatsSink) ensureStream(ctx context.Context, topic string) error {
	name := streamName(topic)

	n.streamsMu.Lock()
	_, known := n.streams[name]
	n.streamsMu.Unlock()
	if known {
		return nil
	}

	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{topic},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    natsStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}

	n.streamsMu.Lock()
	n.streams[name] = struct{}{}
	n.streamsMu.Unlock()
	return nil
}

// Close drains nothing; pending publishes are synchronous.
func (n *NatsSink) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// streamName converts a topic to a valid JetStream stream name
func streamName(topic string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, topic)
}
