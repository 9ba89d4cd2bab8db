package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearLLMEnv blanks the environment variables the defaults consult, so
// tests see deterministic values regardless of the host environment.
func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "OPENAI_URL", "OPENAI_API", "MODEL_BASE", "MODEL_FLASH",
		"RATE_LIMIT_DAILY", "RECAPTCHA_SECRET", "RECAPTCHA_HTML",
	} {
		t.Setenv(name, "")
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	clearLLMEnv(t)

	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3003, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:3003", cfg.Server.Address())

	assert.Equal(t, 60, cfg.LLM.Timeout)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.Equal(t, 0.7, *cfg.LLM.Temperature)
	assert.Equal(t, DefaultSystemPrompt, cfg.LLM.SystemPrompt)

	assert.Equal(t, 10, cfg.RateLimit.DailyLimit)
	assert.Equal(t, 24, cfg.RateLimit.WindowHours)
	assert.Equal(t, 60, cfg.RateLimit.SweepIntervalMinutes)

	assert.Empty(t, cfg.Recaptcha.Secret)
	assert.Equal(t, "https://www.google.com/recaptcha/api/siteverify", cfg.Recaptcha.VerifyURL)
	require.NotNil(t, cfg.Recaptcha.ScoreThreshold)
	assert.Equal(t, 0.5, *cfg.Recaptcha.ScoreThreshold)
	assert.Equal(t, 10, cfg.Recaptcha.Timeout)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "simple", cfg.Logger.Format)
}

func TestConfig_EnvOverridesDefaults(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("OPENAI_URL", "https://llm.example.com/v1")
	t.Setenv("OPENAI_API", "sk-test")
	t.Setenv("MODEL_BASE", "provider/base")
	t.Setenv("MODEL_FLASH", "provider/flash")
	t.Setenv("RATE_LIMIT_DAILY", "25")
	t.Setenv("RECAPTCHA_SECRET", "sec")
	t.Setenv("RECAPTCHA_HTML", "site-key")

	cfg := &Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://llm.example.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 25, cfg.RateLimit.DailyLimit)
	assert.Equal(t, "sec", cfg.Recaptcha.Secret)
	assert.Equal(t, "site-key", cfg.Recaptcha.SiteKey)
}

func TestConfig_ValidateRejectsMissingLLM(t *testing.T) {
	clearLLMEnv(t)

	cfg := &Config{}
	cfg.SetDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.base_url")
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	clearLLMEnv(t)

	threshold := 1.5
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad limit", func(c *Config) { c.RateLimit.DailyLimit = -1 }, "rate_limit.daily_limit"},
		{"bad threshold", func(c *Config) { c.Recaptcha.ScoreThreshold = &threshold }, "score_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.LLM.BaseURL = "https://llm.example.com"
			cfg.LLM.APIKey = "k"
			cfg.LLM.ModelBase = "b"
			cfg.LLM.ModelFlash = "f"
			cfg.SetDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FromFileWithExpansion(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("OPENAI_API", "sk-from-env")
	t.Setenv("MODEL_BASE", "provider/base")
	t.Setenv("MODEL_FLASH", "provider/flash")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: ${EDUPROMPT_TEST_PORT:-4004}
llm:
  base_url: "https://llm.example.com/v1"
  api_key: "${OPENAI_API}"
rate_limit:
  daily_limit: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4004, cfg.Server.Port)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, "provider/base", cfg.LLM.ModelBase)
	assert.Equal(t, 5, cfg.RateLimit.DailyLimit)
	assert.Equal(t, 24, cfg.RateLimit.WindowHours)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("EDUPROMPT_TEST_VALUE", "hello")
	t.Setenv("EDUPROMPT_TEST_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"${EDUPROMPT_TEST_VALUE}", "hello"},
		{"$EDUPROMPT_TEST_VALUE", "hello"},
		{"${EDUPROMPT_TEST_EMPTY:-fallback}", "fallback"},
		{"${EDUPROMPT_TEST_VALUE:-fallback}", "hello"},
		{"a=${EDUPROMPT_TEST_VALUE} b=${EDUPROMPT_TEST_EMPTY:-x}", "a=hello b=x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVars(tt.in), "input %q", tt.in)
	}
}
