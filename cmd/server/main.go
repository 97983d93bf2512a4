package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Divas-Gupta30/datachat/internal/api"
	"github.com/Divas-Gupta30/datachat/internal/chat"
	"github.com/Divas-Gupta30/datachat/internal/config"
	"github.com/Divas-Gupta30/datachat/internal/graph"
	"github.com/Divas-Gupta30/datachat/internal/ingestion"
	"github.com/Divas-Gupta30/datachat/internal/llm"
	"github.com/Divas-Gupta30/datachat/internal/logging"
	"github.com/Divas-Gupta30/datachat/internal/metrics"
	"github.com/Divas-Gupta30/datachat/internal/processing"
	"github.com/Divas-Gupta30/datachat/internal/storage"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	migrate := pflag.Bool("migrate", false, "apply database migrations before serving")
	pflag.Parse()

	cfg := config.Load(*envFile)
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
		}); err != nil {
			log.Warn("sentry initialization failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()

	if *migrate || cfg.AutoMigrate {
		if err := storage.Migrate(ctx, cfg.DatabaseURL, log); err != nil {
			log.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	db, err := storage.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	engine, err := graph.NewEngine(cfg.WorkflowEngine)
	if err != nil {
		log.Error("invalid workflow engine", "error", err)
		os.Exit(1)
	}

	llms := llm.NewFactory(llm.FactoryConfig{
		DefaultProvider: cfg.LLMProvider,
		DefaultModel:    cfg.DefaultModel,
		GroqAPIKey:      cfg.GroqAPIKey,
		GroqBaseURL:     cfg.GroqBaseURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OllamaURL:       cfg.OllamaURL,
		Timeout:         cfg.LLMTimeout,
	})
	llms.Observe = metrics.ObserveLLM

	embedder := processing.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel)
	vectors := storage.NewVectorStore(db)

	opts := []chat.Option{
		chat.WithLogger(log),
		chat.WithMessageStore(db),
		chat.WithEngine(engine),
		chat.WithNodeObserver(metrics.ObserveNode),
		chat.WithDocuments(vectors, func(model string) processing.Embedder {
			return embedder.WithModel(model)
		}, ""),
	}

	var schemas api.SchemaInvalidator
	if cfg.RedisURL != "" {
		cache, err := storage.NewSchemaCache(ctx, cfg.RedisURL, db, cfg.SchemaCacheTTL, log)
		if err != nil {
			log.Warn("schema cache disabled", "error", err)
		} else {
			defer cache.Close()
			opts = append(opts, chat.WithSchemaFetcher(cache))
			schemas = cache
		}
	}

	handler := api.Handler(api.Config{
		Store:       db,
		Data:        db,
		Chat:        chat.NewService(llms, opts...),
		Indexer:     ingestion.NewIndexer(embedder, vectors, log),
		Schemas:     schemas,
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
		Sentry:      cfg.SentryDSN != "",
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("server starting", "port", cfg.Port, "engine", engine.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("server exited")
}
