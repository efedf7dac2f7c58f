package main

import (
	"log"

	"threadlens/adapters/excel"
	"threadlens/adapters/llm"
	"threadlens/adapters/reddit"
	"threadlens/adapters/sqlite"
	"threadlens/adapters/websearch"
	"threadlens/internal/config"
	"threadlens/internal/pipeline"
	"threadlens/internal/scoring"
	"threadlens/internal/summary"
	"threadlens/ports"
	"threadlens/ui"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments configure via environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database at %s: %v", cfg.Storage.DBPath, err)
	}
	defer store.Close()

	exporter, err := excel.NewWriter(cfg.Storage.ExportDir)
	if err != nil {
		log.Fatalf("Failed to prepare export directory: %v", err)
	}

	provider := buildLLMProvider(cfg)
	content := reddit.NewClient(cfg.Reddit.ClientID, cfg.Reddit.ClientSecret, cfg.Reddit.UserAgent)
	searcher := websearch.NewDuckDuckGo(reddit.ParseThreadURL)

	engine := scoring.NewEngine(provider, cfg.Collection.ScoringBatchSize)
	summarizer := summary.NewSummarizer(provider)

	worker := pipeline.NewWorker(
		store,
		content,
		searcher,
		engine,
		exporter,
		pipeline.NewRegistry(),
		pipeline.Limits{
			MaxThreadsLimit:  cfg.Collection.MaxThreadsLimit,
			TotalCommentsCap: cfg.Collection.TotalCommentsCap,
			WebSearchResults: cfg.Collection.DefaultMaxThreads,
		},
		reddit.ParseThreadURL,
	)

	server := ui.NewServer(cfg, store, worker, summarizer, exporter)
	log.Printf("Starting threadlens on port %s (provider: %s, model: %s)",
		cfg.Server.Port, cfg.AI.Provider, cfg.AI.Model)
	if err := server.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func buildLLMProvider(cfg *config.Config) ports.LLMProvider {
	switch cfg.AI.Provider {
	case "anthropic":
		return llm.NewAnthropicClient(cfg.AI.AnthropicKey, cfg.AI.Model, cfg.AI.MaxTokens)
	default:
		return llm.NewOpenAIClient(cfg.AI.OpenAIKey, cfg.AI.Model, cfg.AI.Temperature, cfg.AI.MaxTokens)
	}
}
