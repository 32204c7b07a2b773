package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nxwriter.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
broker:
  bootstrap: "kafka:9092"
command:
  service_id: "nxwriter-1"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Broker.ConsumerGroupPrefix != "nxwriter" {
		t.Errorf("ConsumerGroupPrefix = %q, want nxwriter", cfg.Broker.ConsumerGroupPrefix)
	}
	if cfg.Broker.KafkaErrorTimeout != 10 {
		t.Errorf("KafkaErrorTimeout = %d, want 10", cfg.Broker.KafkaErrorTimeout)
	}
	if cfg.Command.Topic != "nxwriter-commands" {
		t.Errorf("Command.Topic = %q, want nxwriter-commands", cfg.Command.Topic)
	}
	if cfg.Command.ResponseTopic != "nxwriter-responses" {
		t.Errorf("Command.ResponseTopic = %q, want nxwriter-responses", cfg.Command.ResponseTopic)
	}
	if cfg.Writer.DefaultChunkSize != 1024 {
		t.Errorf("DefaultChunkSize = %d, want 1024", cfg.Writer.DefaultChunkSize)
	}
	if cfg.Writer.DefaultStringLength != 128 {
		t.Errorf("DefaultStringLength = %d, want 128", cfg.Writer.DefaultStringLength)
	}
	if cfg.Log.Dir != "logs" || cfg.Log.Level != "INFO" {
		t.Errorf("Log = %+v, want dir=logs level=INFO", cfg.Log)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	path := writeConfig(t, `
broker:
  bootstrap: "kafka:9092"
  kafka_error_timeout: 5
command:
  service_id: "svc"
log:
  level: "DEBUG"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.KafkaErrorTimeout != 5 {
		t.Errorf("KafkaErrorTimeout = %d, want 5 (explicit value must not be overwritten)", cfg.Broker.KafkaErrorTimeout)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("Log.Level = %q, want DEBUG", cfg.Log.Level)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "broker: [this is not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := &Config{}
	cfg.Log.Level = "VERBOSE"
	cfg.Executor.PoolSize = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}

	wantSubstrings := []string{
		"broker.bootstrap is required",
		"broker.kafka_error_timeout must be > 0",
		"command.topic is required",
		"command.service_id is required",
		"VERBOSE",
		"executor.pool_size must be >= 0",
	}
	if len(verr.Errors) != len(wantSubstrings) {
		t.Fatalf("got %d errors, want %d: %v", len(verr.Errors), len(wantSubstrings), verr.Errors)
	}
	for i, want := range wantSubstrings {
		if !strings.Contains(verr.Errors[i], want) {
			t.Errorf("error %d = %q, want to contain %q", i, verr.Errors[i], want)
		}
	}
}

func TestValidateAcceptsApplyDefaultsOutput(t *testing.T) {
	cfg := &Config{}
	cfg.Broker.Bootstrap = "kafka:9092"
	cfg.Command.ServiceID = "svc"
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil after ApplyDefaults", err)
	}
}

func TestValidationErrorMessageIncludesPath(t *testing.T) {
	cfg := &Config{}
	cfg.path = "/etc/nxwriter.yaml"
	cfg.Log.Level = "INFO"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "/etc/nxwriter.yaml") {
		t.Errorf("error message %q does not mention the config path", err.Error())
	}
}

func TestSummary(t *testing.T) {
	cfg := &Config{}
	cfg.Broker.Bootstrap = "kafka:9092"
	cfg.Command.ServiceID = "svc"
	cfg.Command.Topic = "cmds"
	cfg.Executor.PoolSize = 4
	cfg.Log.Level = "WARN"

	s := cfg.Summary()
	for _, want := range []string{"kafka:9092", "svc", "cmds", "4", "WARN"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary() = %q, missing %q", s, want)
		}
	}
}
