package cmd

import (
	"fmt"
	"path/filepath"

	"bookpile/internal/config"
	"bookpile/internal/dedup"
	"bookpile/internal/enrich"
	"bookpile/internal/extract"
	"bookpile/internal/index"
	"bookpile/internal/ingest"
	"bookpile/internal/logging"
	"bookpile/internal/search"
	"bookpile/internal/services"
	"bookpile/internal/sources"
	"bookpile/internal/storage"
	"bookpile/internal/vector"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookpile",
		Short: "Track and search book recommendations from discussion threads",
		Long: `Bookpile ingests discussion threads (Reddit or local JSON files),
extracts the books people recommend in them, deduplicates those into a
catalog with provenance back to each thread, and answers natural-language
queries against the collection.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// App holds the fully wired service graph. Every subcommand builds one,
// uses what it needs, and closes it.
type App struct {
	Config   *config.Config
	Store    storage.Store
	Index    vector.Index
	Embedder *services.EmbeddingService
	Adapter  sources.Adapter
	Pipeline *ingest.Pipeline
	Indexer  *index.Indexer
	Searcher *search.Orchestrator
}

func newApp() (*App, error) {
	cfg := config.Load()
	logging.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening catalog store: %w", err)
	}

	vectorIndex, err := vector.NewPgVectorIndex(cfg.DatabaseURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening vector index: %w", err)
	}

	embedder := services.NewEmbeddingService(cfg.OpenAIAPIKey)
	extractor := extract.NewOpenAIExtractor(cfg.OpenAIAPIKey, cfg.ExtractionModel)
	resolver := dedup.NewResolver(store)
	enricher := enrich.NewCoordinator(store, enrich.NewGoogleBooksClient(cfg.GoogleBooksAPIKey), cfg.EnrichRatePerSec)
	indexer := index.NewIndexer(store, vectorIndex, embedder)
	pipeline := ingest.NewPipeline(store, extractor, resolver, enricher, indexer, cfg.ExtractWorkers)

	return &App{
		Config:   cfg,
		Store:    store,
		Index:    vectorIndex,
		Embedder: embedder,
		Adapter:  sources.NewRedditAdapter(filepath.Join(cfg.DataDir, "cache")),
		Pipeline: pipeline,
		Indexer:  indexer,
		Searcher: search.NewOrchestrator(store, vectorIndex, embedder),
	}, nil
}

func (a *App) Close() {
	if err := a.Index.Close(); err != nil {
		fmt.Printf("warning: closing vector index: %v\n", err)
	}
	if err := a.Store.Close(); err != nil {
		fmt.Printf("warning: closing store: %v\n", err)
	}
}
