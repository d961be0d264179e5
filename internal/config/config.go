// Package config loads the Stratus service configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/example/stratus-lite/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STRATUS_"

// Strategy names accepted in the strategy field.
const (
	StrategyPool     = "pool"
	StrategyComposed = "composed"
)

// Trace exporter names accepted in the trace_exporter field.
const (
	TraceNone   = "none"
	TraceStdout = "stdout"
	TraceOTLP   = "otlp"
)

// Backend describes a remote backend reachable over gRPC.
type Backend struct {
	ID      string  `yaml:"id" validate:"required"`
	Address string  `yaml:"address" validate:"required,hostname_port"`
	Rate    float64 `yaml:"rate" validate:"gte=0"`
}

// Config holds the service configuration.
type Config struct {
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gt=0"`
	Retention       time.Duration `yaml:"retention" validate:"gte=0"`
	MaxWorkers      int           `yaml:"max_workers" validate:"gte=1"`
	MultipleOutputs bool          `yaml:"multiple_outputs"`
	Strategy        string        `yaml:"strategy" validate:"oneof=pool composed"`
	Database        string        `yaml:"database" validate:"required"`
	Listen          string        `yaml:"listen"`
	HTTPListen      string        `yaml:"http_listen"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	TraceExporter   string        `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint    string        `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	Backends        []Backend     `yaml:"backends" validate:"unique=ID,dive"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		PollInterval:  100 * time.Millisecond,
		Retention:     5 * time.Minute,
		MaxWorkers:    8,
		Strategy:      StrategyPool,
		Database:      "stratus.db",
		Listen:        ":50061",
		HTTPListen:    ":8080",
		LogLevel:      "info",
		TraceExporter: TraceNone,
		OTLPEndpoint:  "localhost:4317",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sPOLL_INTERVAL: %v", domain.ErrConfiguration, EnvPrefix, err)
		}
		c.PollInterval = d
	}
	if v, ok := lookup(EnvPrefix + "RETENTION"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sRETENTION: %v", domain.ErrConfiguration, EnvPrefix, err)
		}
		c.Retention = d
	}
	if v, ok := lookup(EnvPrefix + "MAX_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_WORKERS: %v", domain.ErrConfiguration, EnvPrefix, err)
		}
		c.MaxWorkers = n
	}
	if v, ok := lookup(EnvPrefix + "MULTIPLE_OUTPUTS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sMULTIPLE_OUTPUTS: %v", domain.ErrConfiguration, EnvPrefix, err)
		}
		c.MultipleOutputs = b
	}
	if v, ok := lookup(EnvPrefix + "STRATEGY"); ok {
		c.Strategy = v
	}
	if v, ok := lookup(EnvPrefix + "DATABASE"); ok {
		c.Database = v
	}
	if v, ok := lookup(EnvPrefix + "LISTEN"); ok {
		c.Listen = v
	}
	if v, ok := lookup(EnvPrefix + "HTTP_LISTEN"); ok {
		c.HTTPListen = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup(EnvPrefix + "TRACE_EXPORTER"); ok {
		c.TraceExporter = strings.ToLower(v)
	}
	if v, ok := lookup(EnvPrefix + "OTLP_ENDPOINT"); ok {
		c.OTLPEndpoint = v
	}
	return nil
}

// ParseBackend parses an "id=host:port" flag value.
func ParseBackend(s string) (Backend, error) {
	id, addr, ok := strings.Cut(s, "=")
	if !ok || id == "" || addr == "" {
		return Backend{}, fmt.Errorf("%w: backend %q must be id=host:port", domain.ErrInvalidArgument, s)
	}
	b := Backend{ID: id, Address: addr}
	if err := validate.Struct(b); err != nil {
		return Backend{}, fmt.Errorf("%w: backend %q: %v", domain.ErrInvalidArgument, s, err)
	}
	return b, nil
}
