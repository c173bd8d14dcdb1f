// Command resolver runs the wholesale order-resolution service: it wires
// configuration, the database, the optional Redis cache, every C1–C13
// domain package, and a minimal HTTP surface, then serves until the
// process is signaled to stop.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/wholesale-bot/resolver/pkg/alias"
	"github.com/wholesale-bot/resolver/pkg/api"
	"github.com/wholesale-bot/resolver/pkg/cache"
	"github.com/wholesale-bot/resolver/pkg/catalog"
	"github.com/wholesale-bot/resolver/pkg/config"
	"github.com/wholesale-bot/resolver/pkg/database"
	"github.com/wholesale-bot/resolver/pkg/dialog"
	"github.com/wholesale-bot/resolver/pkg/history"
	"github.com/wholesale-bot/resolver/pkg/llmaug"
	"github.com/wholesale-bot/resolver/pkg/llmaug/provider"
	"github.com/wholesale-bot/resolver/pkg/models"
	"github.com/wholesale-bot/resolver/pkg/pipeline"
	"github.com/wholesale-bot/resolver/pkg/synonym"
)

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to a .env file to load before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("no .env file loaded from %s, using existing environment: %v", *envFile, err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logrus.WithError(err).Warn("error closing database client")
		}
	}()
	logrus.Info("connected to postgres")

	var redisCache *cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err = cache.New(cfg.RedisURL)
		if err != nil {
			logrus.WithError(err).Warn("redis unavailable, continuing with direct DB reads")
			redisCache = nil
		} else {
			logrus.Info("connected to redis")
		}
	}

	db := dbClient.DB()

	orgRepo := models.NewOrgRepository(db)
	productRepo := models.NewProductRepository(db)
	aliasStore := alias.New(db)
	synonymTable := synonym.New(db, redisCache)
	historyStats := history.NewStats(db)
	catalogIndex := catalog.New(db)

	// llmaug.New accepts a nil provider and degrades every operation to its
	// identity/empty path, so LLM-disabled and LLM-enabled configurations
	// share the same wiring.
	llmSvc := llmaug.New(llmProviderFor(cfg, redisCache), db, redisCache)

	orchestrator := &pipeline.Orchestrator{
		DB: db, Orgs: orgRepo, Products: productRepo,
		Aliases: aliasStore, Synonyms: synonymTable, History: historyStats, Catalog: catalogIndex,
		LLM: llmSvc,
	}

	handler := &dialog.Handler{
		Pipeline:   orchestrator,
		LLM:        llmSvc,
		Store:      dialog.NewStore(dialog.DefaultTTL, redisCache),
		SearchLogs: models.NewSearchLogRepository(db),
	}

	server := api.NewServer(dbClient, handler)

	addr := ":" + cfg.HTTPPort
	if cfg.HTTPPort == "" {
		addr = ":8080"
	}
	logrus.WithField("addr", addr).Info("starting http server")

	if err := server.Run(ctx, addr); err != nil {
		log.Fatalf("http server stopped with error: %v", err)
	}
	logrus.Info("shutdown complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// llmProviderFor selects the chat transport named by cfg.LLMProvider. A nil
// return (disabled, or an unrecognized provider name) is valid — llmaug.New
// treats it as the "llm_disabled" degrade path.
func llmProviderFor(cfg *config.Config, redisCache *cache.Cache) provider.Provider {
	if !cfg.LLMEnabled {
		return nil
	}
	switch cfg.LLMProvider {
	case config.LLMProviderLocal:
		return provider.NewOllama(cfg.Ollama.BaseURL, cfg.Ollama.Model, time.Duration(cfg.LLMTimeoutSeconds)*time.Second)
	case config.LLMProviderRemote:
		return provider.NewGigaChat(
			cfg.GigaChat.OAuthURL, cfg.GigaChat.APIBaseURL, cfg.GigaChat.BasicAuthKey,
			cfg.GigaChat.Model, cfg.GigaChat.Scope, cfg.GigaChat.TokenCachePrefix,
			time.Duration(cfg.GigaChat.TimeoutSeconds)*time.Second, redisCache,
		)
	default:
		return nil
	}
}
