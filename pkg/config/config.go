// Package config loads and holds the Agent Orchestration Core's
// configuration: provider selection and credentials, retry tuning, the
// TurnEngine's loop/timeout constants, and named profiles that bundle
// overrides of all of the above.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Provider names accepted by Config.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// RetryConfig tunes the TurnEngine's retry policy (spec §4.5).
type RetryConfig struct {
	Attempts     int    `mapstructure:"attempts" json:"attempts" yaml:"attempts"`
	InitialDelay int    `mapstructure:"initial_delay" json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     int    `mapstructure:"max_delay" json:"max_delay" yaml:"max_delay"`
	BackoffType  string `mapstructure:"backoff_type" json:"backoff_type" yaml:"backoff_type"`
}

// DefaultRetryConfig mirrors the teacher's defaults: three attempts,
// exponential backoff from 1s capped at 10s.
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 1000,
	MaxDelay:     10000,
	BackoffType:  "exponential",
}

// OpenAIConfig holds OpenAI (and OpenAI-compatible) provider settings.
type OpenAIConfig struct {
	BaseURL      string `mapstructure:"base_url" json:"base_url" yaml:"base_url"`
	APIKeyEnvVar string `mapstructure:"api_key_env_var" json:"api_key_env_var" yaml:"api_key_env_var"`
}

// GoogleConfig holds Gemini/Vertex settings.
type GoogleConfig struct {
	Backend  string `mapstructure:"backend" json:"backend" yaml:"backend"`
	APIKey   string `mapstructure:"api_key" json:"api_key" yaml:"api_key"`
	Project  string `mapstructure:"project" json:"project" yaml:"project"`
	Location string `mapstructure:"location" json:"location" yaml:"location"`
}

// ProfileConfig is a named bundle of overrides layered over the base
// Config, selected at runtime by Config.Profile.
type ProfileConfig map[string]interface{}

// Config is the orchestration core's top-level configuration.
type Config struct {
	Provider             string        `mapstructure:"provider" json:"provider" yaml:"provider"`
	Model                string        `mapstructure:"model" json:"model" yaml:"model"`
	MaxTokens            int           `mapstructure:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
	ThinkingBudgetTokens  int          `mapstructure:"thinking_budget_tokens" json:"thinking_budget_tokens" yaml:"thinking_budget_tokens"`
	ReasoningEffort      string        `mapstructure:"reasoning_effort" json:"reasoning_effort" yaml:"reasoning_effort"`
	CacheEvery           int           `mapstructure:"cache_every" json:"cache_every" yaml:"cache_every"`
	Retry                RetryConfig   `mapstructure:"retry" json:"retry" yaml:"retry"`

	// LoopCap bounds the TurnEngine's tool-loop iterations per turn (§4.5,
	// recommended default 16).
	LoopCap int `mapstructure:"loop_cap" json:"loop_cap" yaml:"loop_cap"`
	// ToolTimeout bounds a single tool invocation (§5, default 120s).
	ToolTimeout time.Duration `mapstructure:"tool_timeout" json:"tool_timeout" yaml:"tool_timeout"`
	// StreamTimeout is loaded with a default of 300s. No component reads
	// it, so provider streams are not bounded by it.
	StreamTimeout time.Duration `mapstructure:"stream_timeout" json:"stream_timeout" yaml:"stream_timeout"`

	// AlwaysAllowToolActions is the process-wide setting from §4.3 step 1
	// and §9 ("Global state"); the TurnEngine re-reads it at every
	// permission decision point rather than caching it.
	AlwaysAllowToolActions bool `mapstructure:"always_allow_tool_actions" json:"always_allow_tool_actions" yaml:"always_allow_tool_actions"`

	// ExclusionPaths is loaded from configuration. No component reads it,
	// so the built-in tools do not check paths against it.
	ExclusionPaths []string `mapstructure:"exclusion_paths" json:"exclusion_paths" yaml:"exclusion_paths"`

	Profile  string                   `mapstructure:"profile" json:"profile,omitempty" yaml:"profile,omitempty"`
	Profiles map[string]ProfileConfig `mapstructure:"profiles" json:"profiles,omitempty" yaml:"profiles,omitempty"`

	OpenAI *OpenAIConfig `mapstructure:"openai" json:"openai,omitempty" yaml:"openai,omitempty"`
	Google *GoogleConfig `mapstructure:"google" json:"google,omitempty" yaml:"google,omitempty"`

	// StoreType selects the PersistenceLayer backend: "sqlite" (default)
	// or "bbolt".
	StoreType string `mapstructure:"store_type" json:"store_type" yaml:"store_type"`
	// StorePath is the on-disk location of the conversation store.
	StorePath string `mapstructure:"store_path" json:"store_path" yaml:"store_path"`
}

// SetDefaults installs the package defaults into v, mirroring the teacher's
// InitConfig.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderAnthropic)
	v.SetDefault("model", "claude-sonnet-4-5")
	v.SetDefault("max_tokens", 8192)
	v.SetDefault("loop_cap", 16)
	v.SetDefault("tool_timeout", "120s")
	v.SetDefault("stream_timeout", "300s")
	v.SetDefault("always_allow_tool_actions", false)
	v.SetDefault("retry.attempts", DefaultRetryConfig.Attempts)
	v.SetDefault("retry.initial_delay", DefaultRetryConfig.InitialDelay)
	v.SetDefault("retry.max_delay", DefaultRetryConfig.MaxDelay)
	v.SetDefault("retry.backoff_type", DefaultRetryConfig.BackoffType)
	v.SetDefault("store_type", "sqlite")
}

// Load reads configuration from path (if non-empty) plus
// AGENTCORE_-prefixed environment variables, applying defaults for
// anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("AGENTCORE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "failed to read config file %s", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if cfg.Profile != "" {
		if profile, ok := cfg.Profiles[cfg.Profile]; ok {
			if err := mergeProfile(&cfg, profile); err != nil {
				return nil, errors.Wrapf(err, "failed to apply profile %q", cfg.Profile)
			}
		}
	}

	return &cfg, nil
}

// mergeProfile overlays profile's keys onto cfg by round-tripping through
// viper's mapstructure decoder, so a profile can override any leaf field.
func mergeProfile(cfg *Config, profile ProfileConfig) error {
	v := viper.New()
	if err := v.MergeConfigMap(profile); err != nil {
		return err
	}
	return v.Unmarshal(cfg)
}
