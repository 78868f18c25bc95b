// Package config centralises runtime configuration for the tracker service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coastwatch/aistracker/errs"
	"github.com/coastwatch/aistracker/internal/schema"
)

// Environment identifies the runtime environment where the tracker operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// IngestConfig tunes the report ingest pipeline.
type IngestConfig struct {
	Workers       int     `yaml:"workers"`
	Queue         int     `yaml:"queue"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`
	MaxApplyRetry int     `yaml:"max_apply_retry"`
}

// FilterConfig tunes the pre-ingest packet filters.
type FilterConfig struct {
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	AllowedKinds    []string      `yaml:"allowed_kinds"`
}

// StoreConfig tunes target snapshot retention.
type StoreConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// PendingConfig tunes the two-part static report reassembly cache.
type PendingConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// BusConfig sets target event bus buffer sizing.
type BusConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// TelemetryConfig configures OTLP metric export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	ServiceName  string `yaml:"service_name"`
}

// AppConfig is the unified tracker configuration combining all concerns.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Ingest      IngestConfig    `yaml:"ingest"`
	Filter      FilterConfig    `yaml:"filter"`
	Store       StoreConfig     `yaml:"store"`
	Pending     PendingConfig   `yaml:"pending"`
	Bus         BusConfig       `yaml:"bus"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the default tracker configuration.
func Default() AppConfig {
	return AppConfig{
		Environment: EnvProd,
		Ingest: IngestConfig{
			Workers:       8,
			Queue:         1024,
			RatePerSecond: 0,
			RateBurst:     0,
			MaxApplyRetry: 5,
		},
		Filter: FilterConfig{
			DuplicateWindow: 10 * time.Second,
			AllowedKinds:    nil,
		},
		Store: StoreConfig{
			TTL:           20 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Pending: PendingConfig{
			MaxAge:        6 * time.Minute,
			SweepInterval: time.Minute,
		},
		Bus: BusConfig{
			BufferSize: 1024,
		},
		Telemetry: TelemetryConfig{
			Enabled:      true,
			OTLPEndpoint: "http://localhost:4318",
			OTLPInsecure: false,
			ServiceName:  "aistracker",
		},
	}
}

// Load loads configuration with precedence: defaults, then YAML, then
// environment variables. A missing YAML file is not an error.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if err := cfg.loadYAML(path); err != nil && !os.IsNotExist(err) {
		return AppConfig{}, fmt.Errorf("load yaml config: %w", err)
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *AppConfig) loadYAML(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = os.Getenv("AISTRACKER_CONFIG")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = "config/tracker.yaml"
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(bytes, c); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func (c *AppConfig) loadEnv() {
	if v := strings.TrimSpace(os.Getenv("AISTRACKER_ENV")); v != "" {
		c.Environment = Environment(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("AISTRACKER_INGEST_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AISTRACKER_STORE_TTL")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			c.Store.TTL = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("AISTRACKER_TELEMETRY_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Enabled = b
		}
	}
}

// Validate checks the configuration tree for invalid combinations.
func (c *AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown environment %q", c.Environment)),
			errs.WithRemediation("set environment to dev, staging, or prod"))
	}
	if c.Ingest.Workers <= 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("ingest.workers must be >0"))
	}
	if c.Ingest.Queue < 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("ingest.queue must be >=0"))
	}
	if c.Ingest.RatePerSecond < 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("ingest.rate_per_second must be >=0"))
	}
	if c.Ingest.MaxApplyRetry < 1 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("ingest.max_apply_retry must be >=1"))
	}
	if c.Filter.DuplicateWindow < 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("filter.duplicate_window must be >=0"))
	}
	if _, err := c.AllowedKinds(); err != nil {
		return err
	}
	if c.Store.TTL < 0 || c.Store.SweepInterval < 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("store durations must be >=0"))
	}
	if c.Pending.MaxAge <= 0 || c.Pending.SweepInterval <= 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("pending durations must be >0"))
	}
	if c.Bus.BufferSize < 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("bus.buffer_size must be >=0"))
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.OTLPEndpoint) == "" {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("telemetry.otlp_endpoint required when telemetry is enabled"))
	}
	return nil
}

// AllowedKinds resolves the configured kind names to target kinds. An empty
// list means all kinds are allowed.
func (c *AppConfig) AllowedKinds() ([]schema.TargetKind, error) {
	if len(c.Filter.AllowedKinds) == 0 {
		return nil, nil
	}
	kinds := make([]schema.TargetKind, 0, len(c.Filter.AllowedKinds))
	for _, name := range c.Filter.AllowedKinds {
		kind, err := parseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func parseKind(name string) (schema.TargetKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "vessel_a", "class_a":
		return schema.KindVesselA, nil
	case "vessel_b", "class_b":
		return schema.KindVesselB, nil
	case "aton", "aid_to_navigation":
		return schema.KindAidToNavigation, nil
	case "base_station":
		return schema.KindBaseStation, nil
	case "sar":
		return schema.KindSAR, nil
	default:
		return schema.KindUnknown, errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown target kind %q", name)))
	}
}
