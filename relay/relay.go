package relay

import (
	"time"

	"github.com/maxpert/herald/encoding"
	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/observe"
	"github.com/maxpert/herald/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Relay is a subscriber that writes every event it receives to an outbox.
type Relay struct {
	observe.Identity
	outbox    *Outbox
	filter    Filter
	threshold int
	instance  string
	logger    zerolog.Logger
	now       func() time.Time
}

// RelayConfig configures a Relay.
type RelayConfig struct {
	Outbox            *Outbox
	Subjects          []string // Glob patterns of subjects Watch accepts, empty accepts all
	CompressThreshold int      // Payload bytes above which zstd is used, 0 disables
	Instance          string
}

// NewRelay creates a relay writing to config.Outbox.
func NewRelay(config RelayConfig) (*Relay, error) {
	filter, err := NewGlobFilter(config.Subjects)
	if err != nil {
		return nil, err
	}
	return &Relay{
		outbox:    config.Outbox,
		filter:    filter,
		threshold: config.CompressThreshold,
		instance:  config.Instance,
		logger:    log.Logger,
		now:       time.Now,
	}, nil
}

// Watch attaches the relay to s with mask m when the subject name matches
// the relay patterns. It reports whether the relay was attached.
func (r *Relay) Watch(s *observe.Subject, m mask.Code) bool {
	if !r.filter.Match(s.Name()) {
		return false
	}
	s.Attach(r, m)
	r.logger.Debug().Str("subject", s.Name()).Msg("Relay watching subject")
	return true
}

// Update implements observe.Subscriber. Failures are logged and counted;
// the broadcast is never interrupted.
func (r *Relay) Update(t mask.Code, s *observe.Subject, payload any) {
	if !r.filter.Match(s.Name()) {
		return
	}

	data, compressed, err := encoding.EncodePayload(payload, r.threshold)
	if err != nil {
		telemetry.RelayEnvelopesTotal.With("encode_failed").Inc()
		r.logger.Warn().
			Err(err).
			Str("subject", s.Name()).
			Uint32("code", uint32(t)).
			Msg("Failed to encode payload, event not relayed")
		return
	}

	group, bits := s.Layout().Split(t)
	env := []Envelope{{
		Subject:    s.Name(),
		SubjectID:  s.ID(),
		Code:       uint32(t),
		Group:      group,
		Bits:       uint32(bits),
		Payload:    data,
		Compressed: compressed,
		Timestamp:  r.now().UnixNano(),
		Instance:   r.instance,
	}}

	if err := r.outbox.Append(env); err != nil {
		telemetry.RelayEnvelopesTotal.With("append_failed").Inc()
		r.logger.Warn().
			Err(err).
			Str("subject", s.Name()).
			Uint32("code", uint32(t)).
			Msg("Failed to append envelope to outbox")
		return
	}
	telemetry.RelayEnvelopesTotal.With("appended").Inc()
}
