// Package config loads and validates the resolver's environment-based configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider selects which chat transport the LLM augmentation layer uses.
type LLMProvider string

const (
	LLMProviderDisabled LLMProvider = "disabled"
	LLMProviderLocal    LLMProvider = "local"
	LLMProviderRemote   LLMProvider = "remote"
)

// Database holds connection and pool settings for PostgreSQL.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Ollama holds settings for the local LLM transport.
type Ollama struct {
	BaseURL    string
	Model      string
	NumPredict int
	NumCtx     int
	KeepAlive  string
}

// GigaChat holds settings for the remote OAuth-protected LLM transport.
type GigaChat struct {
	OAuthURL         string
	APIBaseURL       string
	BasicAuthKey     string
	Model            string
	Scope            string
	TokenCachePrefix string
	TimeoutSeconds   int
}

// OneC holds settings the (out-of-scope) ERP webhook-ingest collaborator would use.
type OneC struct {
	Enabled             bool
	BaseURL             string
	Username            string
	Password            string
	WebhookToken        string
	SyncIntervalMinutes int
}

// Config is the umbrella configuration object for the whole process.
type Config struct {
	DB Database

	RedisURL string

	LLMEnabled        bool
	LLMProvider       LLMProvider
	LLMTimeoutSeconds int

	Ollama   Ollama
	GigaChat GigaChat
	OneC     OneC

	AdminPhone   string
	AdminTgID    string
	ManagerPhone string

	HTTPPort string
}

// LoadFromEnv loads configuration from environment variables with
// production-ready defaults, validating the result before returning it.
func LoadFromEnv() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "25"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "10"))

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	llmTimeout, _ := strconv.Atoi(getEnvOrDefault("LLM_TIMEOUT_SECONDS", "30"))
	numPredict, _ := strconv.Atoi(getEnvOrDefault("OLLAMA_NUM_PREDICT", "96"))
	numCtx, _ := strconv.Atoi(getEnvOrDefault("OLLAMA_NUM_CTX", "1024"))
	gigachatTimeout, _ := strconv.Atoi(getEnvOrDefault("GIGACHAT_TIMEOUT_SECONDS", "20"))
	oneCSyncInterval, _ := strconv.Atoi(getEnvOrDefault("ONE_C_SYNC_INTERVAL_MINUTES", "10"))

	cfg := &Config{
		DB: Database{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            port,
			User:            getEnvOrDefault("DB_USER", "resolver"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            getEnvOrDefault("DB_NAME", "resolver"),
			SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: maxLifetime,
			ConnMaxIdleTime: maxIdleTime,
		},
		RedisURL:          os.Getenv("REDIS_URL"),
		LLMEnabled:        strings.EqualFold(getEnvOrDefault("LLM_ENABLED", "false"), "true"),
		LLMProvider:       LLMProvider(getEnvOrDefault("LLM_PROVIDER", string(LLMProviderDisabled))),
		LLMTimeoutSeconds: llmTimeout,
		Ollama: Ollama{
			BaseURL:    getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:      getEnvOrDefault("OLLAMA_MODEL", "llama3"),
			NumPredict: numPredict,
			NumCtx:     numCtx,
			KeepAlive:  getEnvOrDefault("OLLAMA_KEEP_ALIVE", "10m"),
		},
		GigaChat: GigaChat{
			OAuthURL:         os.Getenv("GIGACHAT_OAUTH_URL"),
			APIBaseURL:       getEnvOrDefault("GIGACHAT_API_BASE_URL", "https://gigachat.devices.sberbank.ru/api/v1"),
			BasicAuthKey:     os.Getenv("GIGACHAT_BASIC_AUTH_KEY"),
			Model:            getEnvOrDefault("GIGACHAT_MODEL", "GigaChat"),
			Scope:            getEnvOrDefault("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			TokenCachePrefix: getEnvOrDefault("GIGACHAT_TOKEN_CACHE_PREFIX", "gigachat:token"),
			TimeoutSeconds:   gigachatTimeout,
		},
		OneC: OneC{
			Enabled:             strings.EqualFold(getEnvOrDefault("ONE_C_ENABLED", "false"), "true"),
			BaseURL:             os.Getenv("ONE_C_BASE_URL"),
			Username:            os.Getenv("ONE_C_USERNAME"),
			Password:            os.Getenv("ONE_C_PASSWORD"),
			WebhookToken:        os.Getenv("ONE_C_WEBHOOK_TOKEN"),
			SyncIntervalMinutes: oneCSyncInterval,
		},
		AdminPhone:   os.Getenv("ADMIN_PHONE"),
		AdminTgID:    os.Getenv("ADMIN_TG_ID"),
		ManagerPhone: os.Getenv("MANAGER_PHONE"),
		HTTPPort:     getEnvOrDefault("HTTP_PORT", "8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.DB.MaxIdleConns > c.DB.MaxOpenConns {
		return fmt.Errorf("%w: DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)",
			ErrInvalidValue, c.DB.MaxIdleConns, c.DB.MaxOpenConns)
	}
	if c.DB.MaxOpenConns < 1 {
		return fmt.Errorf("%w: DB_MAX_OPEN_CONNS must be at least 1", ErrInvalidValue)
	}
	switch c.LLMProvider {
	case LLMProviderDisabled, LLMProviderLocal, LLMProviderRemote:
	default:
		return fmt.Errorf("%w: LLM_PROVIDER %q", ErrInvalidValue, c.LLMProvider)
	}
	if c.LLMEnabled && c.LLMProvider == LLMProviderRemote && c.GigaChat.BasicAuthKey == "" {
		return fmt.Errorf("%w: GIGACHAT_BASIC_AUTH_KEY is required when LLM_PROVIDER=remote", ErrMissingRequiredField)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
