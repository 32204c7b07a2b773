// Package config loads the service's YAML configuration into a typed
// Config, applies defaults, and validates it collecting every problem
// at once, rather than failing on the first one found.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Command  CommandConfig  `yaml:"command"`
	Writer   WriterConfig   `yaml:"writer"`
	Log      LogConfig      `yaml:"log"`
	Executor ExecutorConfig `yaml:"executor"`

	path string
}

// BrokerConfig configures the Kafka-style broker connection and the
// per-partition polling tunables (Kafka error timeout, topic write
// duration).
type BrokerConfig struct {
	Bootstrap          string        `yaml:"bootstrap"`
	ConsumerGroupPrefix string       `yaml:"consumer_group_prefix"`
	KafkaErrorTimeout   int           `yaml:"kafka_error_timeout"`
	TopicWriteDuration  time.Duration `yaml:"topic_write_duration"`
}

// CommandConfig configures the command-channel topic and this
// process's service identity.
type CommandConfig struct {
	Topic         string `yaml:"topic"`
	ServiceID     string `yaml:"service_id"`
	ResponseTopic string `yaml:"response_topic"`
}

// WriterConfig carries the defaults writer modules fall back to when
// a stream's nexus_structure node omits them.
type WriterConfig struct {
	DefaultChunkSize             uint64 `yaml:"default_chunk_size"`
	DefaultArraySize             uint64 `yaml:"default_array_size"`
	DefaultStringLength          int    `yaml:"default_string_length"`
	AbortOnUninitialisedStream   bool   `yaml:"abort_on_uninitialised_stream"`
}

// LogConfig configures the dual-sink logger.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// ExecutorConfig configures the Partition poll-loop scheduler.
// The run subcommand starts a worker pool of PoolSize goroutines;
// PoolSize <= 0 gives a pool of one worker.
type ExecutorConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// ValidationError collects every configuration problem found, rather
// than failing on the first one.
type ValidationError struct {
	Path   string
	Errors []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid configuration")
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	for _, err := range e.Errors {
		b.WriteString("\n - ")
		b.WriteString(err)
	}
	return b.String()
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}

	cfg.path = absPath
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in every field left unset by the YAML document.
func (c *Config) ApplyDefaults() {
	if c.Broker.ConsumerGroupPrefix == "" {
		c.Broker.ConsumerGroupPrefix = "nxwriter"
	}
	if c.Broker.KafkaErrorTimeout <= 0 {
		c.Broker.KafkaErrorTimeout = 10
	}
	if c.Broker.TopicWriteDuration <= 0 {
		c.Broker.TopicWriteDuration = 2 * time.Second
	}
	if c.Command.Topic == "" {
		c.Command.Topic = "nxwriter-commands"
	}
	if c.Command.ResponseTopic == "" {
		c.Command.ResponseTopic = "nxwriter-responses"
	}
	if c.Writer.DefaultChunkSize == 0 {
		c.Writer.DefaultChunkSize = 1024
	}
	if c.Writer.DefaultStringLength == 0 {
		c.Writer.DefaultStringLength = 128
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
}

// Validate checks the configuration is usable, collecting every
// problem into one ValidationError rather than stopping early.
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Bootstrap == "" {
		errs = append(errs, "broker.bootstrap is required")
	}
	if c.Broker.KafkaErrorTimeout <= 0 {
		errs = append(errs, "broker.kafka_error_timeout must be > 0")
	}
	if c.Command.Topic == "" {
		errs = append(errs, "command.topic is required")
	}
	if c.Command.ServiceID == "" {
		errs = append(errs, "command.service_id is required")
	}
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of DEBUG/INFO/WARN/ERROR", c.Log.Level))
	}
	if c.Executor.PoolSize < 0 {
		errs = append(errs, "executor.pool_size must be >= 0")
	}

	if len(errs) > 0 {
		return &ValidationError{Path: c.path, Errors: errs}
	}
	return nil
}

// Path returns the absolute path this Config was loaded from.
func (c *Config) Path() string { return c.path }

// Summary returns a concise one-line overview, useful in startup logs.
func (c *Config) Summary() string {
	return fmt.Sprintf("broker=%s service_id=%s command_topic=%s executor_pool=%d log_level=%s",
		c.Broker.Bootstrap, c.Command.ServiceID, c.Command.Topic, c.Executor.PoolSize, c.Log.Level)
}
