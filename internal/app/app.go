package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yewanyuan/Cursor-Writing/internal/agent"
	"github.com/yewanyuan/Cursor-Writing/internal/assembler"
	"github.com/yewanyuan/Cursor-Writing/internal/cache"
	"github.com/yewanyuan/Cursor-Writing/internal/llm"
	"github.com/yewanyuan/Cursor-Writing/internal/llm/adapters"
	"github.com/yewanyuan/Cursor-Writing/internal/ontology"
	"github.com/yewanyuan/Cursor-Writing/internal/orch"
	"github.com/yewanyuan/Cursor-Writing/internal/stats"
	"github.com/yewanyuan/Cursor-Writing/internal/storage"
	"github.com/yewanyuan/Cursor-Writing/internal/token"
)

// App holds the wired application graph.
type App struct {
	Config       *Config
	Cache        *cache.StoreCache
	Cards        *storage.CachedCardStore
	Canon        *storage.CachedCanonStore
	Drafts       *storage.CachedDraftStore
	Ontology     *storage.OntologyStore
	Client       *llm.Client
	Orchestrator *orch.Orchestrator
	Stats        *stats.Service

	logger *slog.Logger
}

// New wires storage, cache, the LLM client, agents and the orchestrator
// from configuration. notifier may be nil.
func New(ctx context.Context, cfg *Config, notifier orch.Notifier) (*App, error) {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	storeCache := cache.NewStoreCache(cfg.CacheCapacity)
	base := storage.NewStore(cfg.DataDir)
	cards := storage.NewCachedCardStore(storage.NewCardStore(base), storeCache)
	canon := storage.NewCachedCanonStore(storage.NewCanonStore(base), storeCache)
	drafts := storage.NewCachedDraftStore(storage.NewDraftStore(base), storeCache)
	ontStore := storage.NewOntologyStore(base)

	budgeter := token.NewBudgeter(cfg.Budget, newEstimator(logger))

	client, err := newClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	builder := assembler.New(cards, canon, drafts, budgeter)

	archivist := agent.NewArchivist(client, builder, drafts)
	writer := agent.NewWriter(client, builder, drafts)
	reviewer := agent.NewReviewer(client, drafts)
	editor := agent.NewEditor(client, drafts)

	orchestrator := orch.New(orch.Config{
		Archivist: archivist,
		Writer:    writer,
		Reviewer:  reviewer,
		Editor:    editor,
		Finalizer: archivist,
		Drafts:    drafts,
		Canon:     canon,
		Ontology:  ontology.NewExtractor(client, ontStore),
		Notifier:  notifier,
	})

	return &App{
		Config:       cfg,
		Cache:        storeCache,
		Cards:        cards,
		Canon:        canon,
		Drafts:       drafts,
		Ontology:     ontStore,
		Client:       client,
		Orchestrator: orchestrator,
		Stats:        stats.NewService(drafts),
		logger:       logger,
	}, nil
}

// Close releases provider connections.
func (a *App) Close() error {
	if a.Client != nil {
		return a.Client.Close()
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// newEstimator prefers a tiktoken estimator and falls back to the
// heuristic one when the encoding cannot be loaded (offline hosts).
func newEstimator(logger *slog.Logger) token.Estimator {
	est, err := token.NewTiktokenEstimator("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken unavailable, using heuristic token estimates", "error", err)
		return token.HeuristicEstimator{}
	}
	return est
}

func newClient(ctx context.Context, cfg LLMConfig, logger *slog.Logger) (*llm.Client, error) {
	opts := []llm.ClientOption{
		llm.WithRetry(cfg.MaxRetries, time.Second),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, llm.WithRateLimit(cfg.RateLimit, int(cfg.RateLimit)+1))
	}
	if cfg.FallbackProvider != "" {
		opts = append(opts, llm.WithFallback(cfg.FallbackProvider))
	}

	client := llm.NewClient(opts...)

	// Register the default provider first so it becomes the primary.
	names := make([]string, 0, len(cfg.Providers))
	if _, ok := cfg.Providers[cfg.DefaultProvider]; ok {
		names = append(names, cfg.DefaultProvider)
	}
	for name := range cfg.Providers {
		if name != cfg.DefaultProvider {
			names = append(names, name)
		}
	}

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc.APIKey == "" {
			logger.Warn("provider has no API key, skipping", "provider", name)
			continue
		}
		provider, err := newProvider(ctx, pc)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
		}
		client.Register(name, provider)
		logger.Info("registered LLM provider", "provider", name, "model", pc.Model)
	}

	for role, ac := range cfg.Agents {
		client.ConfigureAgent(role, llm.AgentConfig{
			Provider:    ac.Provider,
			Temperature: ac.Temperature,
			MaxTokens:   ac.MaxTokens,
		})
	}
	return client, nil
}

func newProvider(ctx context.Context, pc ProviderConfig) (llm.Provider, error) {
	switch pc.Kind {
	case "openai":
		var opts []adapters.OpenAIOption
		if pc.BaseURL != "" {
			opts = append(opts, adapters.WithOpenAIBaseURL(pc.BaseURL))
		}
		return adapters.NewOpenAIAdapter(pc.APIKey, pc.Model, opts...)
	case "gemini":
		return adapters.NewGeminiAdapter(ctx, pc.APIKey, pc.Model)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}
