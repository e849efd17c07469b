// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Agents   AgentsConfig   `mapstructure:"agents" yaml:"agents"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMConfig selects the active provider and configures each provider client.
type LLMConfig struct {
	// Provider is the active backend: "gemini" (direct) or "gateway".
	Provider schemas.Provider `mapstructure:"provider" yaml:"provider"`
	Gemini   GeminiConfig     `mapstructure:"gemini" yaml:"gemini"`
	Gateway  GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
}

// GeminiConfig configures the direct Google Generative Language client.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model      string        `mapstructure:"model" yaml:"model"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// GatewayConfig configures the OpenAI-chat-compatible gateway client.
type GatewayConfig struct {
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// AgentsConfig carries per-role model selection and per-(role, method) system
// instruction overrides. Keys in Models are agent role names; keys in
// Instructions are "<role>.<method>".
type AgentsConfig struct {
	Models       map[string]string `mapstructure:"models" yaml:"models"`
	Instructions map[string]string `mapstructure:"instructions" yaml:"instructions"`
}

// PipelineConfig tunes the parallel segment analysis fan-out.
type PipelineConfig struct {
	MaxConcurrentSegments int `mapstructure:"max_concurrent_segments" yaml:"max_concurrent_segments"`
}

// ModelForRole resolves the configured model for an agent role, falling back
// to the active provider's default model when no role override exists.
func (c *Config) ModelForRole(role schemas.AgentRole) string {
	if m, ok := c.Agents.Models[string(role)]; ok && m != "" {
		return m
	}
	if c.LLM.Provider == schemas.ProviderGateway {
		return c.LLM.Gateway.Model
	}
	return c.LLM.Gemini.Model
}

// Instruction implements schemas.InstructionResolver.
func (c *Config) Instruction(role schemas.AgentRole, method schemas.AgentMethod) (string, bool) {
	key := fmt.Sprintf("%s.%s", role, method)
	instr, ok := c.Agents.Instructions[key]
	if !ok || instr == "" {
		return "", false
	}
	return instr, true
}

// Statically assert that Config satisfies the settings collaborator contract.
var _ schemas.InstructionResolver = (*Config)(nil)

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "loupe-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.provider", string(schemas.ProviderGemini))
	v.SetDefault("llm.gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.gemini.api_timeout", "120s")
	v.SetDefault("llm.gateway.base_url", "https://gateway.ai.cloudflare.com/v1")
	v.SetDefault("llm.gateway.model", "google/gemini-2.0-flash-001")
	v.SetDefault("llm.gateway.api_timeout", "120s")
	v.SetDefault("llm.gateway.requests_per_second", 2.0)

	// -- Pipeline --
	v.SetDefault("pipeline.max_concurrent_segments", 4)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for credentials; they never live in the file.
	v.BindEnv("llm.gemini.api_key", "LOUPE_GEMINI_API_KEY")
	v.BindEnv("llm.gateway.api_key", "LOUPE_GATEWAY_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case schemas.ProviderGemini, schemas.ProviderGateway:
	default:
		return fmt.Errorf("llm.provider must be one of [%s, %s], got %q",
			schemas.ProviderGemini, schemas.ProviderGateway, c.LLM.Provider)
	}
	if c.LLM.Gemini.APITimeout <= 0 {
		return fmt.Errorf("llm.gemini.api_timeout must be a positive duration")
	}
	if c.LLM.Gateway.APITimeout <= 0 {
		return fmt.Errorf("llm.gateway.api_timeout must be a positive duration")
	}
	if c.LLM.Gateway.RequestsPerSecond <= 0 {
		return fmt.Errorf("llm.gateway.requests_per_second must be positive")
	}
	if c.Pipeline.MaxConcurrentSegments <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_segments must be a positive integer")
	}
	return nil
}
