package cli

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/cache"
	"ragchat/internal/embedding/openai"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/generator"
	llmopenai "ragchat/internal/llm/openai"
	"ragchat/internal/loader"
	"ragchat/internal/prompt"
	"ragchat/internal/retriever"
	"ragchat/internal/service"
	"ragchat/internal/session"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/chromem"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
	"ragchat/internal/workflow"
)

// Factory assembles an App from configuration.
type Factory func(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error)

// App holds the components the commands share. Embedder and Chat are built on
// first use so commands that do not need a provider key can run without one;
// set them directly to override.
type App struct {
	Config     *config.AppConfig
	Logger     *zap.Logger
	Loader     domain.Loader
	Chunker    domain.Chunker
	Collection *vectorstore.QuotaCollection
	Embedder   embedding.Embedder
	Chat       domain.ChatModel

	mu      sync.Mutex
	closers []func() error
}

// Build is the default Factory: it picks each component by its configured type.
func Build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}
	app.Loader = loader.New(loader.Options{
		Web: loader.WebOptions{
			Selector:  cfg.Loader.Selector,
			Format:    cfg.Loader.Format,
			Timeout:   cfg.Timeouts.Loader(),
			UserAgent: cfg.Loader.UserAgent,
		},
		Logger: logger,
	})

	var err error
	if app.Chunker, err = buildChunker(cfg.Chunker); err != nil {
		return nil, err
	}

	var store vectorstore.Store
	switch cfg.Store.Type {
	case "memory":
		store = memory.NewStore()
	case "chromem":
		if cfg.Store.Chromem == nil || cfg.Store.Chromem.Path == "" {
			store = chromem.NewStore()
			break
		}
		if store, err = chromem.NewPersistentStore(cfg.Store.Chromem.Path, cfg.Store.Chromem.Compress); err != nil {
			return nil, err
		}
	case "qdrant":
		qc := qdrant.Config{URL: cfg.Store.Qdrant.URL, Timeout: cfg.Timeouts.Store()}
		if cfg.Store.Qdrant.APIKeyEnv != "" {
			qc.APIKey = os.Getenv(cfg.Store.Qdrant.APIKeyEnv)
		}
		store = qdrant.NewStore(qc)
	default:
		return nil, domain.Errorf(domain.ErrConfig, "cli", "unknown vector store %q", cfg.Store.Type)
	}

	coll, err := store.OpenCollection(ctx, cfg.Store.Collection, map[string]string{"embedder": cfg.Embedder.Type})
	if err != nil {
		return nil, err
	}
	if app.Collection, err = vectorstore.WithQuota(coll, cfg.Store.QuotaLimit); err != nil {
		return nil, err
	}
	logger.Debug("collection opened",
		zap.String("store", cfg.Store.Type),
		zap.String("collection", cfg.Store.Collection),
		zap.Int("quota", cfg.Store.QuotaLimit))
	return app, nil
}

func buildChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "recursive":
		opts := chunker.Options{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap, Separators: cfg.Separators}
		if len(opts.Separators) == 0 && cfg.CJK {
			opts.Separators = chunker.CJKSeparators
		}
		if cfg.Length == "tokens" {
			length, err := chunker.TokenLength(cfg.Encoding)
			if err != nil {
				return nil, err
			}
			opts.Length = length
		}
		return chunker.NewRecursiveSplitter(opts)
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences)
	default:
		return nil, domain.Errorf(domain.ErrConfig, "cli", "unknown chunker %q", cfg.Type)
	}
}

// EmbedderFor returns the configured embedder, wrapped in its cache. Embedders
// fitted to the corpus with Prepare are never cached.
func (a *App) EmbedderFor(ctx context.Context) (embedding.Embedder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Embedder != nil {
		return a.Embedder, nil
	}

	var emb embedding.Embedder
	switch a.Config.Embedder.Type {
	case "tfidf":
		emb = tfidf.NewEmbedder()
	case "openai":
		oc := a.Config.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:           oc.BaseURL,
			APIKeyEnv:         oc.APIKeyEnv,
			Model:             oc.Model,
			Timeout:           a.Config.Timeouts.Embedding(),
			BatchSize:         oc.BatchSize,
			RequestsPerSecond: oc.RequestsPerSecond,
			Logger:            a.Logger,
		})
		if err != nil {
			return nil, err
		}
		emb = client
	default:
		return nil, domain.Errorf(domain.ErrConfig, "cli", "unknown embedder %q", a.Config.Embedder.Type)
	}

	if _, fitted := emb.(embedding.Preparer); fitted && a.Config.Embedder.Cache != "none" {
		a.Logger.Warn("embedding cache ignored for corpus-fitted embedder", zap.String("embedder", emb.Name()))
		a.Embedder = emb
		return emb, nil
	}
	ttl := time.Duration(a.Config.Embedder.CacheTTLSecs) * time.Second
	switch a.Config.Embedder.Cache {
	case "memory":
		emb = cache.New(emb, cache.NewMemory(), a.Logger)
	case "redis":
		rc := a.Config.Redis
		backend, err := cache.NewRedis(ctx, cache.RedisOptions{Addr: rc.Addr, Password: rc.Password, DB: rc.DB, Prefix: rc.Prefix, TTL: ttl})
		if err != nil {
			return nil, domain.Wrap(domain.ErrConfig, "cli", err)
		}
		a.closers = append(a.closers, backend.Close)
		emb = cache.New(emb, backend, a.Logger)
	}
	a.Embedder = emb
	return emb, nil
}

// ChatModel returns the configured chat model.
func (a *App) ChatModel() (domain.ChatModel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Chat != nil {
		return a.Chat, nil
	}
	gc := a.Config.Generator
	chat, err := llmopenai.NewChat(llmopenai.Config{
		BaseURL:     gc.BaseURL,
		APIKeyEnv:   gc.APIKeyEnv,
		Model:       gc.Model,
		Temperature: gc.Temperature,
		MaxTokens:   gc.MaxTokens,
		Timeout:     a.Config.Timeouts.Generation(),
		Logger:      a.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.Chat = chat
	return chat, nil
}

// Ingestor wires the ingestion pipeline.
func (a *App) Ingestor(ctx context.Context) (*service.Ingestor, error) {
	emb, err := a.EmbedderFor(ctx)
	if err != nil {
		return nil, err
	}
	return service.NewIngestor(a.Loader, a.Chunker, emb, a.Collection, service.Options{Logger: a.Logger}), nil
}

// Retriever wires the two-phase retriever. A corpus-fitted embedder must have
// been prepared by an ingest in this process, or every query would miss.
func (a *App) Retriever(ctx context.Context) (*retriever.Retriever, error) {
	emb, err := a.EmbedderFor(ctx)
	if err != nil {
		return nil, err
	}
	if p, ok := emb.(embedding.Preparer); ok && !p.Prepared() {
		return nil, domain.Errorf(domain.ErrConfig, "cli",
			"embedder %s is fitted on ingested text and none was ingested in this run; use `ragchat chat <source>...`", emb.Name())
	}
	rc := a.Config.Retriever
	return retriever.New(emb, a.Collection, retriever.Options{
		K:               rc.K,
		KeywordK:        rc.KeywordK,
		DisableKeywords: rc.DisableKeywords,
		Logger:          a.Logger,
	})
}

// Graph wires retrieval and generation.
func (a *App) Graph(ctx context.Context) (*workflow.Graph, error) {
	r, err := a.Retriever(ctx)
	if err != nil {
		return nil, err
	}
	chat, err := a.ChatModel()
	if err != nil {
		return nil, err
	}
	gc := a.Config.Generator
	tpl := prompt.Default()
	if gc.SystemPrompt != "" || gc.UserPrompt != "" {
		system, user := gc.SystemPrompt, gc.UserPrompt
		if system == "" {
			system = prompt.DefaultSystem
		}
		if user == "" {
			user = prompt.DefaultUser
		}
		if tpl, err = prompt.New(system, user); err != nil {
			return nil, err
		}
	}
	gen := generator.New(chat, generator.Options{
		Template:     tpl,
		HistoryTurns: gc.HistoryTurns,
		NoAnswer:     gc.NoAnswer,
		Logger:       a.Logger,
	})
	return workflow.New(r, gen, a.Logger), nil
}

// Session wires an interactive session over the graph.
func (a *App) Session(ctx context.Context) (*session.Session, error) {
	graph, err := a.Graph(ctx)
	if err != nil {
		return nil, err
	}
	sc := a.Config.Session
	return session.New(graph, session.Options{
		HistorySize: sc.HistorySize,
		TypingDelay: time.Duration(sc.TypingDelayMS) * time.Millisecond,
		Logger:      a.Logger,
	}), nil
}

// Close releases connections opened by the app.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
