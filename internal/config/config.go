// Package config provides configuration loading and validation for the purger.
// Supports YAML files with environment variable overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all configuration for a purge run.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Purge         PurgeConfig         `yaml:"purge"`
	Notify        NotifyConfig        `yaml:"notify"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path" env:"PURGER_DB_PATH"`
	BusyTimeoutMs int64  `yaml:"busyTimeoutMs" env:"PURGER_DB_BUSY_TIMEOUT_MS"`
}

// PurgeConfig holds the two independent batch limits.
type PurgeConfig struct {
	MaxAnalysesPerQuery  int `yaml:"maxAnalysesPerQuery" env:"PURGER_MAX_ANALYSES_PER_QUERY"`
	MaxResourcesPerQuery int `yaml:"maxResourcesPerQuery" env:"PURGER_MAX_RESOURCES_PER_QUERY"`
}

// NotifyConfig configures where missed disabled components are published.
// With no brokers they are only logged.
type NotifyConfig struct {
	KafkaBrokers []string `yaml:"kafkaBrokers" env:"PURGER_KAFKA_BROKERS"`
	Topic        string   `yaml:"topic" env:"PURGER_NOTIFY_TOPIC"`
	ClientID     string   `yaml:"clientId" env:"PURGER_KAFKA_CLIENT_ID"`
}

type ObservabilityConfig struct {
	LogLevel        string `yaml:"logLevel" env:"PURGER_LOG_LEVEL"`
	LogFormat       string `yaml:"logFormat" env:"PURGER_LOG_FORMAT"`
	MetricsTextfile string `yaml:"metricsTextfile" env:"PURGER_METRICS_TEXTFILE"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:          "purger.db",
			BusyTimeoutMs: 5000,
		},
		Purge: PurgeConfig{
			MaxAnalysesPerQuery:  1000,
			MaxResourcesPerQuery: 1000,
		},
		Notify: NotifyConfig{
			Topic:    "purge.disabled-components",
			ClientID: "purger",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load returns the defaults overlaid with environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFromPath reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path behaves like Load.
func LoadFromPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the purge cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.BusyTimeoutMs < 0 {
		errs = append(errs, errors.New("database.busyTimeoutMs must not be negative"))
	}
	if c.Purge.MaxAnalysesPerQuery <= 0 {
		errs = append(errs, fmt.Errorf("purge.maxAnalysesPerQuery must be positive, got %d", c.Purge.MaxAnalysesPerQuery))
	}
	if c.Purge.MaxResourcesPerQuery <= 0 {
		errs = append(errs, fmt.Errorf("purge.maxResourcesPerQuery must be positive, got %d", c.Purge.MaxResourcesPerQuery))
	}
	if len(c.Notify.KafkaBrokers) > 0 && c.Notify.Topic == "" {
		errs = append(errs, errors.New("notify.topic is required when kafka brokers are set"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields tagged with env from the environment. List
// fields take comma-separated values.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	return walkEnv(reflect.ValueOf(cfg).Elem(), lookup)
}

func walkEnv(v reflect.Value, lookup lookupFunc) error {
	t := v.Type()
	for i := range t.NumField() {
		field := v.Field(i)
		sf := t.Field(i)
		if sf.Type.Kind() == reflect.Struct {
			if err := walkEnv(field, lookup); err != nil {
				return err
			}
			continue
		}
		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := lookup(name)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		var items []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
