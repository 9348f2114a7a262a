// Package app wires configured components together for the ragtrack binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mike-a-ellis/ragtrack/internal/answer"
	"github.com/mike-a-ellis/ragtrack/internal/chunker"
	"github.com/mike-a-ellis/ragtrack/internal/config"
	"github.com/mike-a-ellis/ragtrack/internal/embedding"
	"github.com/mike-a-ellis/ragtrack/internal/extract"
	"github.com/mike-a-ellis/ragtrack/internal/generation"
	"github.com/mike-a-ellis/ragtrack/internal/indexer"
	"github.com/mike-a-ellis/ragtrack/internal/scrape"
	"github.com/mike-a-ellis/ragtrack/internal/search"
	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// ErrNoMirror is returned when a mirror operation is requested without Qdrant.
var ErrNoMirror = errors.New("qdrant mirror is not configured")

// App holds the components built from a Config.
// Store is always available after Open; the model-backed fields are set by Connect.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *storage.Store

	// Qdrant is nil unless the qdrant backend or mirroring is configured and reachable.
	Qdrant    *storage.QdrantStorage
	Embedder  *embedding.Embedder
	Generator *generation.Generator
	Engine    *answer.Engine
	Pipeline  *indexer.Pipeline
	Extractor *extract.Extractor
}

// Open loads the persisted store. A missing store file yields an empty store.
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := storage.Open(storage.NewFilePersister(cfg.Store.Path))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	logger.Debug("Store loaded", "path", cfg.Store.Path, "sources", store.Len(), "chunks", store.ChunkCount())

	return &App{Config: cfg, Logger: logger, Store: store}, nil
}

// Connect builds the model clients, retrieval index and ingestion pipeline.
// A Qdrant backend that cannot be reached is an error; an unreachable mirror is only logged.
func (a *App) Connect(ctx context.Context) error {
	cfg := a.Config
	if err := cfg.RequireOpenAI(); err != nil {
		return err
	}

	client, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create openai client: %w", err)
	}
	a.Embedder = embedding.NewEmbedder(client, cfg.OpenAI.EmbedModel, cfg.OpenAI.BatchSize)
	a.Generator = generation.NewGenerator(client.Client(), cfg.OpenAI.ChatModel)

	if cfg.UsesQdrant() {
		qs, err := storage.NewQdrantStorage(cfg.Qdrant.Host, cfg.Qdrant.Port)
		switch {
		case err == nil:
			a.Qdrant = qs
		case cfg.Search.Backend == config.BackendQdrant:
			return fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Qdrant.Host, cfg.Qdrant.Port, err)
		default:
			a.Logger.Warn("Qdrant mirror unavailable, continuing without it", "host", cfg.Qdrant.Host, "port", cfg.Qdrant.Port, "error", err)
		}
	}

	var index search.Index = search.NewMemory(a.Store)
	if cfg.Search.Backend == config.BackendQdrant {
		if dim := a.Store.Dimension(); dim > 0 {
			if err := a.Qdrant.EnsureCollection(ctx, dim); err != nil {
				return fmt.Errorf("ensure qdrant collection: %w", err)
			}
			if err := syncCollection(ctx, a.Qdrant, a.Store, a.Logger); err != nil {
				return err
			}
		}
		index = search.NewRemote(a.Store, a.Qdrant)
	}

	a.Engine = answer.NewEngine(answer.Config{
		Store:     a.Store,
		Embedder:  a.Embedder,
		Index:     index,
		Generator: a.Generator,
		TopK:      cfg.Search.TopK,
		Logger:    a.Logger,
	})

	fetcher, err := a.fetcher()
	if err != nil {
		return err
	}

	var mirror indexer.Mirror
	if a.Qdrant != nil {
		mirror = a.Qdrant
	}
	a.Pipeline = indexer.NewPipeline(
		fetcher,
		chunker.New(chunker.WithWindow(cfg.Chunking.Window), chunker.WithStride(cfg.Chunking.Stride)),
		a.Embedder,
		a.Store,
		mirror,
		a.Logger,
	)
	a.Extractor = extract.NewExtractor(a.Engine, a.Store, a.Logger)
	return nil
}

type collection interface {
	GetCollectionInfo(ctx context.Context) (*storage.CollectionInfo, error)
	Mirror(ctx context.Context, store *storage.Store) error
}

// syncCollection rebuilds the collection when its point count differs from the store's chunk count.
func syncCollection(ctx context.Context, c collection, store *storage.Store, logger *slog.Logger) error {
	info, err := c.GetCollectionInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrQdrantUnreachable, err)
	}
	chunks := uint64(store.ChunkCount())
	if info.PointsCount == chunks {
		return nil
	}

	logger.Warn("Qdrant collection out of sync, rebuilding", "points", info.PointsCount, "chunks", chunks)
	if err := c.Mirror(ctx, store); err != nil {
		return fmt.Errorf("%w: rebuild collection: %w", storage.ErrMirrorOutOfSync, err)
	}
	return nil
}

func (a *App) fetcher() (scrape.Fetcher, error) {
	gh, err := scrape.NewGitHubFetcher(a.Config.GitHub.Token)
	if err != nil {
		return nil, fmt.Errorf("create github fetcher: %w", err)
	}
	return scrape.NewRouter(gh, scrape.NewHTTPFetcher(a.Config.Timeout)), nil
}

// Close releases the Qdrant connection, if any.
func (a *App) Close() error {
	if a.Qdrant != nil {
		return a.Qdrant.Close()
	}
	return nil
}
