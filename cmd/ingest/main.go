package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/snowretail/docsearch/internal/ai"
	"github.com/snowretail/docsearch/internal/annotate"
	"github.com/snowretail/docsearch/internal/config"
	"github.com/snowretail/docsearch/internal/ingest"
	"github.com/snowretail/docsearch/internal/store"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("docsearch-ingest", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zlog.Logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	provider := strings.ToLower(cfg.Provider)
	var clientConfig *ai.ClientConfig
	switch provider {
	case "openai":
		clientConfig = &ai.ClientConfig{
			Provider:      ai.ProviderOpenAI,
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			EmbedModel:    cfg.EmbedModel,
			CompleteModel: cfg.CompleteModel,
			Dim:           cfg.Dim,
			ProjectID:     cfg.ProjectID,
		}
	case "vertexai", "google":
		clientConfig = &ai.ClientConfig{
			Provider:      ai.ProviderVertexAI,
			APIKey:        cfg.APIKey,
			EmbedModel:    cfg.EmbedModel,
			CompleteModel: cfg.CompleteModel,
			Dim:           cfg.Dim,
			ProjectID:     cfg.ProjectID,
			Location:      cfg.Location,
		}
	case "stub":
		clientConfig = &ai.ClientConfig{
			Provider: ai.ProviderStub,
			Dim:      cfg.Dim,
		}
	default:
		log.Fatalf("unsupported provider: %s", provider)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.VectorStore
	if strings.TrimSpace(cfg.Database) == "" {
		log.Fatal("a database URL is required for ingestion; the in-memory store does not outlive the process")
	}
	pg, err := store.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close()
	st = pg

	client, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatal(err)
	}
	if client.Dim() == 0 {
		log.Fatal("embedding dimension must be set")
	}

	if err := st.Init(ctx, client.Dim()); err != nil {
		log.Fatal(err)
	}

	docs, err := ingest.NewLoader(cfg.DocsRoot).Load()
	if err != nil {
		log.Fatalf("load documents from %s: %v", cfg.DocsRoot, err)
	}
	if len(docs) == 0 {
		log.Printf("no documents found under %s", cfg.DocsRoot)
		return
	}

	pipeline := annotate.New(client, cfg.Workers, cfg.RateLimit)
	ig := ingest.New(st, client, pipeline, cfg.ChunkSize, cfg.ChunkOverlap, cfg.Workers, annotate.Options{
		Translate:  true,
		Sentiment:  true,
		Words:      true,
		Categories: cfg.Categories,
		TargetLang: cfg.TargetLang,
	})

	if err := ig.Run(ctx, docs); err != nil {
		log.Fatal(err)
	}
}
