// Package config loads simulation settings from YAML files and environment
// variables and converts them into a core.SimulationConfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/logging"
	"gopkg.in/yaml.v3"
)

// DefaultConcurrencyLimit caps concurrency_limit when the file omits it.
const DefaultConcurrencyLimit = 4

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// ErrMissingCredential is returned when a provider needs an API key that was
// not configured.
var ErrMissingCredential = errors.New("missing credential")

// Config contains all agentsim settings.
type Config struct {
	// Simulation holds the scheduling parameters.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Model selects the provider backing the agent under test.
	Model ModelConfig `json:"model" yaml:"model"`

	// Credentials holds provider API keys. Supports ${VAR} syntax.
	Credentials Credentials `json:"credentials" yaml:"credentials"`

	// Logging configures the structured logger.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Output configures where reports and event logs are written.
	Output OutputConfig `json:"output" yaml:"output"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// SimulationConfig mirrors core.SimulationConfig with an optional
// concurrency limit.
type SimulationConfig struct {
	NumSimulations    int            `json:"num_simulations" yaml:"num_simulations"`
	MaxTurns          int            `json:"max_turns" yaml:"max_turns"`
	ConcurrencyLimit  int            `json:"concurrency_limit,omitempty" yaml:"concurrency_limit,omitempty"`
	PersonaParameters map[string]any `json:"persona_parameters,omitempty" yaml:"persona_parameters,omitempty"`
	Context           string         `json:"context,omitempty" yaml:"context,omitempty"`
	Goal              string         `json:"goal,omitempty" yaml:"goal,omitempty"`

	// GracePeriod bounds how long in-flight runs may continue after
	// cancellation. Zero waits for all of them.
	GracePeriod time.Duration `json:"grace_period,omitempty" yaml:"grace_period,omitempty"`
}

// ModelConfig configures the model provider.
type ModelConfig struct {
	// Provider is "openai", "anthropic" or "mock".
	Provider    string   `json:"provider" yaml:"provider"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int64    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Credentials holds provider API keys.
type Credentials struct {
	OpenAIAPIKey    string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty" yaml:"anthropic_api_key,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is "debug", "info" (default), "warn" or "error".
	Level string `json:"level" yaml:"level"`
	// Format is "json" (default) or "text".
	Format    string `json:"format" yaml:"format"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

// OutputConfig configures report and event log destinations. Empty paths
// disable the corresponding file.
type OutputConfig struct {
	ReportPath     string `json:"report_path,omitempty" yaml:"report_path,omitempty"`
	TraceLogPath   string `json:"trace_log_path,omitempty" yaml:"trace_log_path,omitempty"`
	ToolEventsPath string `json:"tool_events_path,omitempty" yaml:"tool_events_path,omitempty"`
}

// TracingConfig configures OpenTelemetry export of trace and tool events.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// Endpoint is an OTLP gRPC collector address. Empty writes spans to stderr.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// Require returns the API key for provider or an error wrapping
// ErrMissingCredential. The mock provider needs no key.
func (c Credentials) Require(provider string) (string, error) {
	var key string
	switch provider {
	case ProviderOpenAI:
		key = c.OpenAIAPIKey
	case ProviderAnthropic:
		key = c.AnthropicAPIKey
	case ProviderMock:
		return "", nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	if key == "" {
		return "", fmt.Errorf("%w: %s api key", ErrMissingCredential, provider)
	}
	return key, nil
}

// Redacted returns a key with most characters masked.
func Redacted(key string) string {
	if key == "" {
		return ""
	}
	if len(key) < 12 {
		return "(set)"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// String implements fmt.Stringer to prevent accidental key logging.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{OpenAI:%s, Anthropic:%s}", Redacted(c.OpenAIAPIKey), Redacted(c.AnthropicAPIKey))
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			NumSimulations: 1,
			MaxTurns:       5,
		},
		Model: ModelConfig{
			Provider: ProviderMock,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "agentsim",
		},
	}
}

// Load reads configuration from path (if non-empty), applies environment
// overrides and validates the result.
// Order: defaults -> file -> environment variables
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileConfig
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file without
// environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Credentials.OpenAIAPIKey = expandEnvVars(cfg.Credentials.OpenAIAPIKey)
	cfg.Credentials.AnthropicAPIKey = expandEnvVars(cfg.Credentials.AnthropicAPIKey)

	return cfg, nil
}

// Validate checks that the configuration is usable. Simulation errors are
// reported as *core.ConfigError.
func (c *Config) Validate() error {
	if err := c.Simulation.ToCore().Validate(); err != nil {
		return err
	}
	if c.Simulation.GracePeriod < 0 {
		return &core.ConfigError{Field: "grace_period", Message: fmt.Sprintf("must be non-negative, got %v", c.Simulation.GracePeriod)}
	}

	validProviders := map[string]bool{ProviderOpenAI: true, ProviderAnthropic: true, ProviderMock: true}
	if !validProviders[c.Model.Provider] {
		return fmt.Errorf("invalid provider: %s (valid: openai, anthropic, mock)", c.Model.Provider)
	}

	if c.Logging.Level != "" {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			return err
		}
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// ToCore converts to core.SimulationConfig. An omitted concurrency limit
// becomes min(num_simulations, DefaultConcurrencyLimit).
func (s SimulationConfig) ToCore() core.SimulationConfig {
	limit := s.ConcurrencyLimit
	if limit == 0 {
		limit = min(s.NumSimulations, DefaultConcurrencyLimit)
	}
	return core.SimulationConfig{
		NumSimulations:    s.NumSimulations,
		MaxTurns:          s.MaxTurns,
		ConcurrencyLimit:  limit,
		PersonaParameters: s.PersonaParameters,
		Context:           s.Context,
		Goal:              s.Goal,
	}
}

// SimulationConfig returns the core configuration of a scheduling run.
func (c *Config) SimulationConfig() core.SimulationConfig {
	return c.Simulation.ToCore()
}

// Logger builds a SimLogger from the logging settings.
func (c *Config) Logger() (*logging.SimLogger, error) {
	cfg := logging.DefaultLoggerConfig()
	if c.Logging.Level != "" {
		level, err := logging.ParseLevel(c.Logging.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}
	if c.Logging.Format != "" {
		cfg.Format = c.Logging.Format
	}
	cfg.AddSource = c.Logging.AddSource
	return logging.NewLogger(cfg), nil
}

// APIKey returns the credential for the configured provider, failing fast
// with ErrMissingCredential.
func (c *Config) APIKey() (string, error) {
	return c.Credentials.Require(c.Model.Provider)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTSIM_NUM_SIMULATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.NumSimulations = n
		}
	}
	if v := os.Getenv("AGENTSIM_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.MaxTurns = n
		}
	}
	if v := os.Getenv("AGENTSIM_CONCURRENCY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.ConcurrencyLimit = n
		}
	}
	if v := os.Getenv("AGENTSIM_GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Simulation.GracePeriod = d
		}
	}

	if v := os.Getenv("AGENTSIM_MODEL_PROVIDER"); v != "" {
		cfg.Model.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTSIM_MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Credentials.AnthropicAPIKey = v
	}

	if v := os.Getenv("AGENTSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AGENTSIM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("AGENTSIM_REPORT_PATH"); v != "" {
		cfg.Output.ReportPath = v
	}

	if v := os.Getenv("AGENTSIM_TRACE_ENABLED"); v != "" {
		cfg.Tracing.Enabled = envBool(v)
	}
	if v := os.Getenv("AGENTSIM_TRACE_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = strings.TrimSpace(v)
	}
}

func envBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
