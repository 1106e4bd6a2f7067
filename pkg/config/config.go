// Package config loads and validates the YAML configuration file. Values may
// reference environment variables (${VAR:-default}, ${VAR}, $VAR), which are
// expanded before decoding; .env files are honored.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/striderhq/strider/pkg/databases"
	"github.com/striderhq/strider/pkg/embedders"
	"github.com/striderhq/strider/pkg/executor"
	"github.com/striderhq/strider/pkg/fusion"
	"github.com/striderhq/strider/pkg/llms"
	"github.com/striderhq/strider/pkg/observability"
	"github.com/striderhq/strider/pkg/runner"
	"github.com/striderhq/strider/pkg/sparse"
)

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func (c *LoggingConfig) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// VectorStoreConfig selects and configures the dense backend.
type VectorStoreConfig struct {
	// Type is "qdrant" or "chromem".
	Type    string                  `yaml:"type"`
	Qdrant  databases.QdrantConfig  `yaml:"qdrant"`
	Chromem databases.ChromemConfig `yaml:"chromem"`
}

func (c *VectorStoreConfig) setDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	c.Qdrant.SetDefaults()
}

func (c *VectorStoreConfig) validate() error {
	switch c.Type {
	case "qdrant", "chromem":
		return nil
	default:
		return fmt.Errorf("vector_store: unknown type %q (valid: qdrant, chromem)", c.Type)
	}
}

// RetryConfig is the YAML shape of the executor retry policy.
type RetryConfig struct {
	MaxRetries   int     `yaml:"max_retries"`
	BaseDelayMS  int     `yaml:"base_delay_ms"`
	MaxDelayMS   int     `yaml:"max_delay_ms"`
	JitterFactor float64 `yaml:"jitter_factor"`
}

// BreakerConfig is the YAML shape of the circuit breaker policy. Durations
// are seconds.
type BreakerConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"`
	Window           int     `yaml:"window"`
	Cooldown         int     `yaml:"cooldown"`
	CooldownFactor   float64 `yaml:"cooldown_factor"`
	MaxCooldown      int     `yaml:"max_cooldown"`
}

// ExecutorConfig is the YAML shape of the executor settings.
type ExecutorConfig struct {
	Concurrency int64            `yaml:"concurrency"`
	PerTool     map[string]int64 `yaml:"per_tool"`
	// DefaultTimeout is seconds per tool attempt.
	DefaultTimeout int           `yaml:"default_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// Build converts to the executor's native config with defaults applied.
func (c *ExecutorConfig) Build() *executor.Config {
	out := &executor.Config{
		Concurrency:    c.Concurrency,
		PerTool:        c.PerTool,
		DefaultTimeout: time.Duration(c.DefaultTimeout) * time.Second,
	}

	// An entirely absent section takes the full default policy; a partial
	// section overrides only what it names.
	retry := executor.DefaultRetryConfig()
	if c.Retry != (RetryConfig{}) {
		retry.MaxRetries = c.Retry.MaxRetries
		if c.Retry.BaseDelayMS > 0 {
			retry.BaseDelay = time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
		}
		if c.Retry.MaxDelayMS > 0 {
			retry.MaxDelay = time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
		}
		if c.Retry.JitterFactor > 0 {
			retry.JitterFactor = c.Retry.JitterFactor
		}
	}
	out.Retry = retry

	breaker := executor.DefaultBreakerConfig()
	if c.Breaker != (BreakerConfig{}) {
		if c.Breaker.FailureThreshold > 0 {
			breaker.FailureThreshold = c.Breaker.FailureThreshold
		}
		if c.Breaker.Window > 0 {
			breaker.Window = time.Duration(c.Breaker.Window) * time.Second
		}
		if c.Breaker.Cooldown > 0 {
			breaker.Cooldown = time.Duration(c.Breaker.Cooldown) * time.Second
		}
		if c.Breaker.CooldownFactor > 0 {
			breaker.CooldownFactor = c.Breaker.CooldownFactor
		}
		if c.Breaker.MaxCooldown > 0 {
			breaker.MaxCooldown = time.Duration(c.Breaker.MaxCooldown) * time.Second
		}
	}
	out.Breaker = breaker

	out.SetDefaults()
	return out
}

// RunnerConfig is the YAML shape of the step loop settings. Durations are
// seconds.
type RunnerConfig struct {
	Strategy             string `yaml:"strategy"`
	MaxSteps             int    `yaml:"max_steps"`
	StepTimeout          int    `yaml:"step_timeout"`
	CancelGrace          int    `yaml:"cancel_grace"`
	MaxObservationTokens int    `yaml:"max_observation_tokens"`
	TokenizerModel       string `yaml:"tokenizer_model"`
}

// Build converts to the runner's native config with defaults applied.
func (c *RunnerConfig) Build() *runner.Config {
	out := &runner.Config{
		Strategy:             c.Strategy,
		MaxSteps:             c.MaxSteps,
		StepTimeout:          time.Duration(c.StepTimeout) * time.Second,
		CancelGrace:          time.Duration(c.CancelGrace) * time.Second,
		MaxObservationTokens: c.MaxObservationTokens,
		TokenizerModel:       c.TokenizerModel,
	}
	out.SetDefaults()
	return out
}

// Config is the root configuration.
type Config struct {
	Logging     LoggingConfig        `yaml:"logging"`
	LLM         llms.Config          `yaml:"llm"`
	Embedder    embedders.Config     `yaml:"embedder"`
	VectorStore VectorStoreConfig    `yaml:"vector_store"`
	Sparse      sparse.Config        `yaml:"sparse"`
	Fusion      fusion.Config        `yaml:"fusion"`
	Executor    ExecutorConfig       `yaml:"executor"`
	Runner      RunnerConfig         `yaml:"runner"`
	Metrics     observability.Config `yaml:"metrics"`
}

// SetDefaults applies defaults across all sections.
func (c *Config) SetDefaults() {
	c.Logging.setDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.VectorStore.setDefaults()
	c.Sparse.SetDefaults()
	c.Fusion.SetDefaults()
}

// Validate checks all sections; called after SetDefaults.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Embedder.Validate(); err != nil {
		return err
	}
	if err := c.VectorStore.validate(); err != nil {
		return err
	}
	if err := c.Fusion.Validate(); err != nil {
		return err
	}
	if err := c.Executor.Build().Validate(); err != nil {
		return err
	}
	return c.Runner.Build().Validate()
}

// Load reads, expands, decodes, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes config from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
