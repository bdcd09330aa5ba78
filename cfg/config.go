package cfg

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"github.com/maxpert/herald/mask"
	"github.com/rs/zerolog/log"
)

// Relay payload formats
const (
	FormatMsgpack = "msgpack"
	FormatJSON    = "json"
)

// CoreConfiguration sets the event code layout and node pooling.
type CoreConfiguration struct {
	BitsPerGroup uint `toml:"bits_per_group"` // Event bits per group, the rest of the code is the group id
	Groups       int  `toml:"groups"`         // Number of groups addressable by subscribers
	PoolCapacity int  `toml:"pool_capacity"`  // Released nodes kept per subject
}

// Layout builds the mask layout described by the core section.
func (c CoreConfiguration) Layout() (mask.Layout, error) {
	return mask.NewLayout(c.BitsPerGroup, c.Groups)
}

// SubjectConfiguration declares a subject created at startup.
type SubjectConfiguration struct {
	Name    string `toml:"name"`
	Reserve int    `toml:"reserve"` // Nodes preallocated for this subject
	Mute    uint32 `toml:"mute"`    // Initial mute mask
}

// SinkConfiguration describes one relay destination.
type SinkConfiguration struct {
	Name            string   `toml:"name"`
	Type            string   `toml:"type"`   // "nats", "kafka" or "mock"
	Format          string   `toml:"format"` // "msgpack" or "json"
	TopicPrefix     string   `toml:"topic_prefix"`
	FilterSubjects  []string `toml:"filter_subjects"` // Glob patterns over subject names, empty matches all
	NatsURL         string   `toml:"nats_url"`
	Brokers         []string `toml:"brokers"`
	BatchSize       int      `toml:"batch_size"`
	PollIntervalMS  int      `toml:"poll_interval_ms"`
	RetryInitialMS  int      `toml:"retry_initial_ms"`
	RetryMaxMS      int      `toml:"retry_max_ms"`
	RetryMultiplier float64  `toml:"retry_multiplier"`
}

// RelayConfiguration forwards selected subjects to external sinks.
type RelayConfiguration struct {
	Enabled           bool                `toml:"enabled"`
	Subjects          []string            `toml:"subjects"`           // Glob patterns of subjects the relay attaches to
	CompressThreshold int                 `toml:"compress_threshold"` // Payload bytes above which zstd is used, 0 disables
	CompressionLevel  int                 `toml:"compression_level"`  // 1 (fastest) to 4 (best)
	Sinks             []SinkConfiguration `toml:"sinks"`
}

// AdminConfiguration controls the debug HTTP server.
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
	Secret  string `toml:"secret"` // Required as X-Herald-Secret or bearer token when set
}

// HeartbeatConfiguration controls the periodic system event.
type HeartbeatConfiguration struct {
	Enabled    bool   `toml:"enabled"`
	Subject    string `toml:"subject"`
	IntervalMS int    `toml:"interval_ms"`
}

// LoggingConfiguration controls log output.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration controls metrics collection. Metrics are served
// by the admin server under /metrics.
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the daemon configuration.
type Configuration struct {
	Instance  string `toml:"instance"`
	DataDir   string `toml:"data_dir"`
	LoopQueue int    `toml:"loop_queue"`

	Core       CoreConfiguration       `toml:"core"`
	Subjects   []SubjectConfiguration  `toml:"subjects"`
	Relay      RelayConfiguration      `toml:"relay"`
	Admin      AdminConfiguration      `toml:"admin"`
	Heartbeat  HeartbeatConfiguration  `toml:"heartbeat"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
	VerboseFlag    = flag.Bool("verbose", false, "Enable debug logging (overrides config)")
)

// Default configuration
var Config = Default()

// Default returns a configuration populated with defaults.
func Default() *Configuration {
	return &Configuration{
		Instance:  "",
		DataDir:   "./herald-data",
		LoopQueue: 1024,

		Core: CoreConfiguration{
			BitsPerGroup: 24,
			Groups:       8,
			PoolCapacity: 16,
		},

		Subjects: []SubjectConfiguration{
			{Name: "system", Reserve: 4},
		},

		Relay: RelayConfiguration{
			Enabled:           false,
			Subjects:          []string{"*"},
			CompressThreshold: 1024,
			CompressionLevel:  2,
		},

		Admin: AdminConfiguration{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8090,
		},

		Heartbeat: HeartbeatConfiguration{
			Enabled:    true,
			Subject:    "system",
			IntervalMS: 5000,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	if Config.Instance == "" {
		hostname, err := os.Hostname()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to get hostname, using localhost")
			hostname = "localhost"
		}
		Config.Instance = hostname
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// Validate checks configuration for errors
func Validate() error {
	if _, err := Config.Core.Layout(); err != nil {
		return fmt.Errorf("core: %w", err)
	}
	if Config.Core.PoolCapacity < 0 {
		return fmt.Errorf("pool_capacity must be >= 0")
	}
	if Config.LoopQueue < 1 {
		return fmt.Errorf("loop_queue must be >= 1")
	}

	seen := make(map[string]bool, len(Config.Subjects))
	for _, s := range Config.Subjects {
		if s.Name == "" {
			return fmt.Errorf("subject name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate subject %q", s.Name)
		}
		seen[s.Name] = true
		if s.Reserve < 0 {
			return fmt.Errorf("subject %q: reserve must be >= 0", s.Name)
		}
	}

	if Config.Heartbeat.Enabled {
		if Config.Heartbeat.IntervalMS < 1 {
			return fmt.Errorf("heartbeat interval must be >= 1ms")
		}
		if !seen[Config.Heartbeat.Subject] {
			return fmt.Errorf("heartbeat subject %q is not declared in [[subjects]]", Config.Heartbeat.Subject)
		}
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s", Config.Logging.Format)
	}

	if Config.Relay.Enabled {
		if err := validateRelay(&Config.Relay); err != nil {
			return err
		}
	}

	return nil
}

func validateRelay(r *RelayConfiguration) error {
	for _, pattern := range r.Subjects {
		if _, err := glob.Compile(pattern, '.'); err != nil {
			return fmt.Errorf("invalid relay subject pattern %q: %w", pattern, err)
		}
	}
	if r.CompressThreshold < 0 {
		return fmt.Errorf("relay compress_threshold must be >= 0")
	}
	if r.CompressionLevel < 1 || r.CompressionLevel > 4 {
		return fmt.Errorf("relay compression_level must be between 1 and 4")
	}
	if len(r.Sinks) == 0 {
		return fmt.Errorf("relay is enabled but has no sinks")
	}

	names := make(map[string]bool, len(r.Sinks))
	for _, s := range r.Sinks {
		if s.Name == "" {
			return fmt.Errorf("relay sink name is required")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate relay sink %q", s.Name)
		}
		names[s.Name] = true

		switch s.Format {
		case "", FormatMsgpack, FormatJSON:
		default:
			return fmt.Errorf("sink %q: unknown format %q", s.Name, s.Format)
		}
		switch s.Type {
		case "nats":
			if s.NatsURL == "" {
				return fmt.Errorf("sink %q: nats_url is required", s.Name)
			}
		case "kafka":
			if len(s.Brokers) == 0 {
				return fmt.Errorf("sink %q: brokers are required", s.Name)
			}
		case "mock":
		default:
			return fmt.Errorf("sink %q: unknown type %q", s.Name, s.Type)
		}
	}
	return nil
}

// OutboxPath returns the directory of the relay outbox.
func OutboxPath() string {
	return filepath.Join(Config.DataDir, "outbox")
}
