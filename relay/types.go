package relay

import "strconv"

// Envelope is one relayed event.
type Envelope struct {
	Seq        uint64 `msgpack:"seq"`  // Monotonic outbox sequence
	Subject    string `msgpack:"subj"` // Subject name
	SubjectID  uint64 `msgpack:"sid"`  // Subject identity
	Code       uint32 `msgpack:"code"` // Full event code
	Group      int    `msgpack:"grp"`  // Group id of Code
	Bits       uint32 `msgpack:"bits"` // Event bits of Code
	Payload    []byte `msgpack:"data"` // msgpack payload
	Compressed bool   `msgpack:"z"`    // Payload is zstd compressed
	Timestamp  int64  `msgpack:"ts"`   // Unix nanoseconds at notify time
	Instance   string `msgpack:"inst"` // Originating instance
}

// Sink is a destination for relayed envelopes (e.g. NATS, Kafka).
type Sink interface {
	// Publish sends a formatted envelope to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// EnvelopeSink is a Sink that also carries envelope metadata beside the
// formatted value, so consumers can route on code or group without decoding.
// Workers prefer PublishEnvelope when a sink implements it.
type EnvelopeSink interface {
	Sink
	PublishEnvelope(topic string, env Envelope, value []byte) error
}

// Header names attached by EnvelopeSink implementations.
const (
	HeaderSubject   = "herald-subject"
	HeaderSubjectID = "herald-subject-id"
	HeaderCode      = "herald-code"
	HeaderGroup     = "herald-group"
	HeaderBits      = "herald-bits"
	HeaderSeq       = "herald-seq"
	HeaderInstance  = "herald-instance"
)

// Header is one metadata pair.
type Header struct {
	Key   string
	Value string
}

// Headers returns the envelope metadata in a fixed order. Codes and bits are
// rendered as hex, the rest as decimal. An empty instance is omitted.
func (e Envelope) Headers() []Header {
	h := []Header{
		{HeaderSubject, e.Subject},
		{HeaderSubjectID, strconv.FormatUint(e.SubjectID, 10)},
		{HeaderCode, "0x" + strconv.FormatUint(uint64(e.Code), 16)},
		{HeaderGroup, strconv.Itoa(e.Group)},
		{HeaderBits, "0x" + strconv.FormatUint(uint64(e.Bits), 16)},
		{HeaderSeq, strconv.FormatUint(e.Seq, 10)},
	}
	if e.Instance != "" {
		h = append(h, Header{HeaderInstance, e.Instance})
	}
	return h
}

// Transformer converts envelopes to a sink wire format.
type Transformer interface {
	Transform(env Envelope) ([]byte, error)
}

// Filter decides whether a subject's envelopes are published.
type Filter interface {
	Match(subject string) bool
}
