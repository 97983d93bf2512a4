package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/Divas-Gupta30/datachat/internal/chat"
	"github.com/Divas-Gupta30/datachat/internal/config"
	"github.com/Divas-Gupta30/datachat/internal/graph"
	"github.com/Divas-Gupta30/datachat/internal/ingestion"
	"github.com/Divas-Gupta30/datachat/internal/llm"
	"github.com/Divas-Gupta30/datachat/internal/logging"
	"github.com/Divas-Gupta30/datachat/internal/processing"
	"github.com/Divas-Gupta30/datachat/internal/storage"
	"github.com/spf13/pflag"
)

const usage = `Usage: agent <command> [flags]

Commands:
  index    embed local or Google Drive documents into a collection
  ask      answer a question over database tables, printing the NDJSON stream
  docs     answer a question from an indexed collection
  migrate  apply database migrations`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	cfg := config.Load()
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "index":
		err = runIndex(ctx, cfg, log, os.Args[2:])
	case "ask":
		err = runAsk(ctx, cfg, log, os.Args[2:])
	case "docs":
		err = runDocs(ctx, cfg, log, os.Args[2:])
	case "migrate":
		err = storage.Migrate(ctx, cfg.DatabaseURL, log)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		log.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func runIndex(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("index", pflag.ExitOnError)
	path := fs.String("path", "./data", "folder to index")
	folder := fs.String("gdrive-folder", "", "Google Drive folder ID to index instead of --path")
	collection := fs.StringP("collection", "c", "documents", "collection to store chunks in")
	model := fs.String("embedding-model", cfg.EmbeddingModel, "Ollama embedding model")
	fs.Parse(args)

	db, err := storage.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	ix := ingestion.NewIndexer(processing.NewOllamaEmbedder(cfg.OllamaURL, *model), storage.NewVectorStore(db), log)

	var n int
	if *folder != "" {
		if cfg.GoogleCredentialsFile == "" {
			return fmt.Errorf("GOOGLE_CREDENTIALS_FILE is required for --gdrive-folder")
		}
		drive, err := ingestion.NewGoogleDrive(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			return err
		}
		log.Info("indexing drive folder", "folder", *folder, "collection", *collection)
		n, err = ix.IndexDrive(ctx, *collection, drive, *folder)
		if err != nil {
			return err
		}
	} else {
		log.Info("indexing folder", "path", *path, "collection", *collection)
		n, err = ix.IndexFolder(ctx, *collection, *path)
		if err != nil {
			return err
		}
	}
	log.Info("indexing complete", "chunks", n)
	return nil
}

func newService(cfg config.Config, log *slog.Logger, extra ...chat.Option) (*chat.Service, error) {
	engine, err := graph.NewEngine(cfg.WorkflowEngine)
	if err != nil {
		return nil, err
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
	opts := append([]chat.Option{chat.WithLogger(log), chat.WithEngine(engine)}, extra...)
	return chat.NewService(llms, opts...), nil
}

func runAsk(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("ask", pflag.ExitOnError)
	question := fs.StringP("question", "q", "", "question to answer")
	tables := fs.StringSliceP("tables", "t", nil, "tables the question is about")
	model := fs.StringP("model", "m", "", "provider:model to use, e.g. groq:gemma2-9b-it")
	fs.Parse(args)
	if strings.TrimSpace(*question) == "" {
		return fmt.Errorf("please provide -q \"your question\"")
	}

	db, err := storage.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := newService(cfg, log)
	if err != nil {
		return err
	}
	stream, err := svc.ExecuteWorkflow(ctx, chat.Request{
		Question: *question,
		Tables:   *tables,
		Model:    *model,
		DB:       db,
	})
	if err != nil {
		return err
	}
	for line := range stream {
		os.Stdout.Write(line)
	}
	return nil
}

func runDocs(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("docs", pflag.ExitOnError)
	question := fs.StringP("question", "q", "", "question to answer")
	collection := fs.StringP("collection", "c", "documents", "collection to search")
	model := fs.String("embedding-model", cfg.EmbeddingModel, "Ollama embedding model")
	fs.Parse(args)
	if strings.TrimSpace(*question) == "" {
		return fmt.Errorf("please provide -q \"your question\"")
	}

	db, err := storage.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	embedder := processing.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel)
	svc, err := newService(cfg, log, chat.WithDocuments(storage.NewVectorStore(db),
		func(m string) processing.Embedder { return embedder.WithModel(m) }, ""))
	if err != nil {
		return err
	}
	answer, err := svc.DocumentChat(ctx, *question, *model, *collection)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(answer)
}
