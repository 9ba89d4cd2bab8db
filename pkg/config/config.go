package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the eduprompt server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Recaptcha RecaptchaConfig `yaml:"recaptcha"`
	Logger    LoggerConfig    `yaml:"logger"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
			c.Port = port
		} else {
			c.Port = 3003
		}
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Address returns the host:port listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig configures the upstream OpenAI-compatible endpoint.
type LLMConfig struct {
	// BaseURL of the upstream API (e.g. "https://api.example.com/v1").
	BaseURL string `yaml:"base_url"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key"`

	// ModelBase is the upstream model identifier behind the "base" alias.
	ModelBase string `yaml:"model_base"`

	// ModelFlash is the upstream model identifier behind the "flash" alias.
	ModelFlash string `yaml:"model_flash"`

	// Timeout for upstream calls, in seconds.
	Timeout int `yaml:"timeout"`

	// MaxTokens limits response length when the caller does not specify one.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature for generation when the caller does not specify one.
	Temperature *float64 `yaml:"temperature"`

	// SystemPrompt used when the caller does not supply one.
	SystemPrompt string `yaml:"system_prompt"`
}

// DefaultSystemPrompt frames the assistant for the education domain.
const DefaultSystemPrompt = "Você é um assistente especializado em educação, focado em ajudar professores do ensino médio público do Piauí."

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("OPENAI_URL")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API")
	}
	if c.ModelBase == "" {
		c.ModelBase = os.Getenv("MODEL_BASE")
	}
	if c.ModelFlash == "" {
		c.ModelFlash = os.Getenv("MODEL_FLASH")
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required (or set OPENAI_URL)")
	}
	if c.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set OPENAI_API)")
	}
	if c.ModelBase == "" {
		return fmt.Errorf("llm.model_base is required (or set MODEL_BASE)")
	}
	if c.ModelFlash == "" {
		return fmt.Errorf("llm.model_flash is required (or set MODEL_FLASH)")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %d", c.Timeout)
	}
	return nil
}

// RateLimitConfig configures the per-device daily quota.
type RateLimitConfig struct {
	// DailyLimit is the number of admitted requests per key per window.
	DailyLimit int `yaml:"daily_limit"`

	// WindowHours is the rolling quota window length, in hours.
	WindowHours int `yaml:"window_hours"`

	// SweepIntervalMinutes is how often expired records are removed.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// SetDefaults applies default values.
func (c *RateLimitConfig) SetDefaults() {
	if c.DailyLimit == 0 {
		if limit, err := strconv.Atoi(os.Getenv("RATE_LIMIT_DAILY")); err == nil && limit > 0 {
			c.DailyLimit = limit
		} else {
			c.DailyLimit = 10
		}
	}
	if c.WindowHours == 0 {
		c.WindowHours = 24
	}
	if c.SweepIntervalMinutes == 0 {
		c.SweepIntervalMinutes = 60
	}
}

// Validate checks the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if c.DailyLimit <= 0 {
		return fmt.Errorf("rate_limit.daily_limit must be positive, got %d", c.DailyLimit)
	}
	if c.WindowHours <= 0 {
		return fmt.Errorf("rate_limit.window_hours must be positive, got %d", c.WindowHours)
	}
	if c.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("rate_limit.sweep_interval_minutes must be positive, got %d", c.SweepIntervalMinutes)
	}
	return nil
}

// RecaptchaConfig configures the human-verification gate.
type RecaptchaConfig struct {
	// Secret is the server-side verification secret. When empty the gate
	// runs in degraded pass-through mode.
	Secret string `yaml:"secret"`

	// SiteKey is the public site key exposed to the UI via /api/config.
	SiteKey string `yaml:"site_key"`

	// VerifyURL is the verification endpoint.
	VerifyURL string `yaml:"verify_url"`

	// ScoreThreshold is the minimum accepted trust score (inclusive).
	ScoreThreshold *float64 `yaml:"score_threshold"`

	// Timeout for verification calls, in seconds.
	Timeout int `yaml:"timeout"`
}

// SetDefaults applies default values.
func (c *RecaptchaConfig) SetDefaults() {
	if c.Secret == "" {
		c.Secret = os.Getenv("RECAPTCHA_SECRET")
	}
	if c.SiteKey == "" {
		c.SiteKey = os.Getenv("RECAPTCHA_HTML")
	}
	if c.VerifyURL == "" {
		c.VerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	}
	if c.ScoreThreshold == nil {
		threshold := 0.5
		c.ScoreThreshold = &threshold
	}
	if c.Timeout == 0 {
		c.Timeout = 10
	}
}

// Validate checks the recaptcha configuration.
func (c *RecaptchaConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("recaptcha.timeout must be positive, got %d", c.Timeout)
	}
	if c.ScoreThreshold != nil && (*c.ScoreThreshold < 0 || *c.ScoreThreshold > 1) {
		return fmt.Errorf("recaptcha.score_threshold must be between 0 and 1, got %f", *c.ScoreThreshold)
	}
	return nil
}

// LoggerConfig configures logging.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// SetDefaults applies default values.
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// SetDefaults applies defaults to all sections.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Recaptcha.SetDefaults()
	c.Logger.SetDefaults()
}

// Validate checks all sections.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.Recaptcha.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from an optional YAML file, expanding ${VAR} and
// ${VAR:-default} references against the environment. A .env file in the
// working directory is loaded first, if present. An empty path yields a
// config built from environment variables and defaults only.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
