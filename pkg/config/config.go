// Package config loads and validates the daemon's YAML configuration,
// grounded on n-backup's internal/config (one struct per section,
// yaml tags, Load-then-validate, in-place defaulting) but shaped to
// spec.md §6's {net, streams, samples, sinks, sensors, logging} tree
// instead of n-backup's server/agent split.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sn2d/ingestd/pkg/logger"
	"github.com/sn2d/ingestd/pkg/sn2derr"
)

// Config is the root of the daemon's configuration tree.
type Config struct {
	Net     NetConfig     `yaml:"net"`
	Streams StreamsConfig `yaml:"streams"`
	Samples SamplesConfig `yaml:"samples"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Sensors SensorsConfig `yaml:"sensors"`
	Logging LoggingConfig `yaml:"logging"`
}

// NetConfig configures the telemetry and control UDP sockets.
type NetConfig struct {
	LocalAddress string       `yaml:"local_address"`
	Detect       DetectConfig `yaml:"detect"`
	ControlCfg   ControlCfg   `yaml:"config"`
}

// DetectConfig configures the control socket and the periodic SETUP
// reconfiguration loop: the node's address, the local bind address
// and port, the loop interval and each request's timeout.
type DetectConfig struct {
	RemoteAddress string        `yaml:"remote_address"`
	LocalAddress  string        `yaml:"local_address"`
	LocalPort     int           `yaml:"local_port"`
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ControlCfg configures the SETUP reconfiguration value pushed to a
// node once detected.
type ControlCfg struct {
	SNTPServer string `yaml:"sntp_server"`
}

// StreamsConfig configures StreamBuffer storage.
type StreamsConfig struct {
	DataDir     string       `yaml:"datadir"`
	BatchSize   int          `yaml:"batch_size"`
	QueueLength int          `yaml:"queue_length"`
	Ranges      []RangeEntry `yaml:"ranges"`
}

// RangeEntry pairs a (part, subpart) selector with a range string.
// Validate rejects a selector that appears twice; nothing else reads
// Ranges, so no stream's accepted sequence range is restricted by them.
type RangeEntry struct {
	Part    string `yaml:"part"`
	Subpart string `yaml:"subpart"`
	Range   string `yaml:"range"`
}

// SamplesConfig configures sample-level rewriting and the sink fan-out
// queue.
type SamplesConfig struct {
	Rewrite     []RewriteRule `yaml:"rewrite"`
	Batch       BatchConfig   `yaml:"batch"`
	QueueLength int           `yaml:"queue_length"`
}

// BatchConfig configures batch-level rewriting.
type BatchConfig struct {
	Rewrite []RewriteRule `yaml:"rewrite"`
}

// RewriteRule names a pkg/rewrite expression rule, applied in order.
type RewriteRule struct {
	Path       string `yaml:"path"`
	Expression string `yaml:"expression"`
}

// SinkConfig configures one configured Sink. Via/other fields are
// protocol-specific: channel sinks ignore Via, pubsub sinks use it as
// the broker address, s3 sinks use it as the bucket.
type SinkConfig struct {
	Protocol string            `yaml:"protocol"`
	Via      string            `yaml:"via"`
	Options  map[string]string `yaml:"options"`
}

// SensorsConfig names the on-device sensor module in effect. The
// daemon does not read it; decoding is format-driven, not
// module-driven.
type SensorsConfig struct {
	ModuleName string `yaml:"module_name"`
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Level            string   `yaml:"level"`
	Format           string   `yaml:"format"`
	OutputFile       string   `yaml:"output_file"`
	VerboseStatus    bool     `yaml:"verbose_status"`
	DebugCategories  []string `yaml:"debug_categories"`
}

const (
	defaultBatchSize    = 1024
	defaultQueueLength  = 16
	defaultDetectPort   = 7284
	defaultDetectInterv = 60 * time.Second
	defaultDetectTime   = 5 * time.Second
)

// Load reads, parses and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &sn2derr.ConfigError{Field: "path", Reason: err.Error()}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &sn2derr.ConfigError{Field: "yaml", Reason: err.Error()}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Streams.BatchSize == 0 {
		c.Streams.BatchSize = defaultBatchSize
	}
	if c.Streams.QueueLength == 0 {
		c.Streams.QueueLength = defaultQueueLength
	}
	if c.Samples.QueueLength == 0 {
		c.Samples.QueueLength = defaultQueueLength
	}
	if c.Net.Detect.LocalPort == 0 {
		c.Net.Detect.LocalPort = defaultDetectPort
	}
	if c.Net.Detect.Interval == 0 {
		c.Net.Detect.Interval = defaultDetectInterv
	}
	if c.Net.Detect.Timeout == 0 {
		c.Net.Detect.Timeout = defaultDetectTime
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

var validSinkProtocols = map[string]bool{
	"channel": true,
	"pubsub":  true,
	"s3":      true,
}

// Validate checks the loaded tree for the first invalid field and
// returns a *sn2derr.ConfigError describing it; startup is the only
// place a ConfigError is allowed to propagate to process exit.
func (c *Config) Validate() error {
	if c.Streams.DataDir == "" {
		return &sn2derr.ConfigError{Field: "streams.datadir", Reason: "must not be empty"}
	}
	if c.Streams.BatchSize <= 0 {
		return &sn2derr.ConfigError{Field: "streams.batch_size", Reason: "must be > 0"}
	}
	if c.Streams.QueueLength <= 0 {
		return &sn2derr.ConfigError{Field: "streams.queue_length", Reason: "must be > 0"}
	}

	if len(c.Sinks) == 0 {
		return &sn2derr.ConfigError{Field: "sinks", Reason: "at least one sink must be configured"}
	}
	for i, s := range c.Sinks {
		proto := strings.ToLower(strings.TrimSpace(s.Protocol))
		if !validSinkProtocols[proto] {
			return &sn2derr.ConfigError{
				Field:  fmt.Sprintf("sinks[%d].protocol", i),
				Reason: fmt.Sprintf("must be one of channel, pubsub, s3; got %q", s.Protocol),
			}
		}
		if proto == "pubsub" && s.Via == "" {
			return &sn2derr.ConfigError{Field: fmt.Sprintf("sinks[%d].via", i), Reason: "required for pubsub sinks"}
		}
		if proto == "s3" && s.Via == "" {
			return &sn2derr.ConfigError{Field: fmt.Sprintf("sinks[%d].via", i), Reason: "required for s3 sinks (bucket name)"}
		}
	}

	for i, r := range c.Samples.Rewrite {
		if r.Expression == "" {
			return &sn2derr.ConfigError{Field: fmt.Sprintf("samples.rewrite[%d].expression", i), Reason: "must not be empty"}
		}
	}
	for i, r := range c.Samples.Batch.Rewrite {
		if r.Expression == "" {
			return &sn2derr.ConfigError{Field: fmt.Sprintf("samples.batch.rewrite[%d].expression", i), Reason: "must not be empty"}
		}
	}

	seen := make(map[string]bool)
	for i, r := range c.Streams.Ranges {
		key := r.Part + "/" + r.Subpart
		if seen[key] {
			return &sn2derr.ConfigError{Field: fmt.Sprintf("streams.ranges[%d]", i), Reason: fmt.Sprintf("duplicate range for %s", key)}
		}
		seen[key] = true
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return &sn2derr.ConfigError{Field: "logging.level", Reason: err.Error()}
	}
	if _, err := logger.ParseFormat(c.Logging.Format); err != nil {
		return &sn2derr.ConfigError{Field: "logging.format", Reason: err.Error()}
	}

	return nil
}
