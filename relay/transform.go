package relay

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/maxpert/herald/cfg"
	"github.com/maxpert/herald/encoding"
)

// TransformerFactory builds a Transformer for a format name.
type TransformerFactory func() Transformer

var (
	transformerFactories = map[string]TransformerFactory{
		cfg.FormatMsgpack: func() Transformer { return MsgpackTransformer{} },
		cfg.FormatJSON:    func() Transformer { return JSONTransformer{} },
	}
	transformerMu sync.RWMutex
)

// RegisterTransformer registers a transformer factory for a format
func RegisterTransformer(format string, factory TransformerFactory) {
	transformerMu.Lock()
	defer transformerMu.Unlock()
	transformerFactories[format] = factory
}

func createTransformer(format string) (Transformer, error) {
	if format == "" {
		format = cfg.FormatMsgpack
	}

	transformerMu.RLock()
	factory, ok := transformerFactories[format]
	transformerMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown format: %s", format)
	}
	return factory(), nil
}

// MsgpackTransformer publishes the envelope as is. Consumers decode the
// payload with encoding.DecodePayload.
type MsgpackTransformer struct{}

func (MsgpackTransformer) Transform(env Envelope) ([]byte, error) {
	return encoding.Marshal(&env)
}

// JSONTransformer publishes a self-describing JSON document with the
// payload decoded.
type JSONTransformer struct{}

type jsonEnvelope struct {
	Seq       uint64 `json:"seq"`
	Subject   string `json:"subject"`
	SubjectID uint64 `json:"subject_id"`
	Code      uint32 `json:"code"`
	Group     int    `json:"group"`
	Bits      uint32 `json:"bits"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"ts_ns"`
	Instance  string `json:"instance,omitempty"`
}

func (JSONTransformer) Transform(env Envelope) ([]byte, error) {
	var payload any
	if len(env.Payload) > 0 {
		if err := encoding.DecodePayload(env.Payload, env.Compressed, &payload); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(jsonEnvelope{
		Seq:       env.Seq,
		Subject:   env.Subject,
		SubjectID: env.SubjectID,
		Code:      env.Code,
		Group:     env.Group,
		Bits:      env.Bits,
		Payload:   payload,
		Timestamp: env.Timestamp,
		Instance:  env.Instance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json envelope: %w", err)
	}
	return data, nil
}
