package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinova/triage-engine/internal/api/router"
	appconfig "github.com/clinova/triage-engine/internal/config"
	"github.com/clinova/triage-engine/internal/observability/metrics"
	"github.com/clinova/triage-engine/internal/triage"
	"github.com/clinova/triage-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting triage-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"store_backend", cfg.StoreBackend,
	)

	ctx := context.Background()

	store, err := buildStore(cfg)
	if err != nil {
		logger.Error("failed to initialize conversation store", "error", err)
		os.Exit(1)
	}

	llmClient, err := buildLLMClient(ctx, cfg, cfg.LLMProvider)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	if cfg.LLMFallbackProvider != "" && cfg.LLMFallbackProvider != cfg.LLMProvider {
		fallback, err := buildLLMClient(ctx, cfg, cfg.LLMFallbackProvider)
		if err != nil {
			logger.Warn("failed to initialize fallback LLM client", "error", err)
		} else {
			llmClient = triage.NewFallbackLLMClient(llmClient, fallback, logger)
		}
	}

	reasoner := triage.NewReasoner(llmClient, triage.ReasonerConfig{
		Model:       modelFor(cfg, cfg.LLMProvider),
		Temperature: float32(cfg.LLMTemperature),
		MaxTokens:   int32(cfg.LLMMaxTokens),
		Timeout:     cfg.LLMTimeout,
	}, logger)

	triageMetrics := metrics.NewTriageMetrics(nil)

	engineOpts := []triage.EngineOption{
		triage.WithMetrics(triageMetrics),
		triage.WithEngineConfig(triage.EngineConfig{
			ForceTriageTurns:  cfg.ForceTriageTurns,
			ClarifyAfterTurns: cfg.ClarifyAfterTurns,
		}),
	}
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open archive database", "error", err)
			os.Exit(1)
		}
		engineOpts = append(engineOpts, triage.WithArchive(triage.NewAssessmentArchive(db)))
	}

	engine := triage.NewEngine(
		store,
		triage.NewRedFlagDetector(logger),
		triage.NewRulesEngine(logger),
		reasoner,
		logger,
		engineOpts...,
	)

	r := router.New(&router.Config{
		Logger:         logger,
		TriageHandler:  triage.NewHandler(engine, logger),
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildStore(cfg *appconfig.Config) (triage.ConversationStore, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return triage.NewMemoryStore(), nil
	case "redis":
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		return triage.NewRedisStore(redis.NewClient(opts), nil), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func buildLLMClient(ctx context.Context, cfg *appconfig.Config, provider string) (triage.LLMClient, error) {
	switch provider {
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
			if cfg.AWSEndpointOverride != "" {
				o.BaseEndpoint = &cfg.AWSEndpointOverride
			}
		})
		return triage.NewBedrockLLMClient(client), nil
	case "gemini":
		return triage.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	case "openai":
		return triage.NewOpenAILLMClient(cfg.OpenAIAPIKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func modelFor(cfg *appconfig.Config, provider string) string {
	switch provider {
	case "bedrock":
		return cfg.BedrockModelID
	case "gemini":
		return cfg.GeminiModelID
	case "openai":
		return cfg.OpenAIModelID
	default:
		return ""
	}
}
