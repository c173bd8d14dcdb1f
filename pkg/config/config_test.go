package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		_ = os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(k, old)
			}
		})
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t, "DB_PORT", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "LLM_ENABLED", "LLM_PROVIDER", "REDIS_URL")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, LLMProviderDisabled, cfg.LLMProvider)
	assert.False(t, cfg.LLMEnabled)
	assert.Equal(t, "", cfg.RedisURL)
	assert.Equal(t, 96, cfg.Ollama.NumPredict)
}

func TestValidateRejectsIdleExceedingOpen(t *testing.T) {
	cfg := &Config{DB: Database{MaxOpenConns: 5, MaxIdleConns: 10}, LLMProvider: LLMProviderDisabled}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestValidateRequiresGigachatKeyWhenRemoteEnabled(t *testing.T) {
	cfg := &Config{
		DB:          Database{MaxOpenConns: 5, MaxIdleConns: 1},
		LLMEnabled:  true,
		LLMProvider: LLMProviderRemote,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{DB: Database{MaxOpenConns: 5, MaxIdleConns: 1}, LLMProvider: "bogus"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
