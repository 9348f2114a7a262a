package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mike-a-ellis/ragtrack/internal/scrape"
	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// AddResult describes one ingested source.
type AddResult struct {
	Handle   storage.SourceHandle
	URL      string
	Chunks   int
	Chars    int
	Duration time.Duration
}

// Chunker splits page text into overlapping windows.
type Chunker interface {
	Chunk(text string) []string
}

// Mirror is a secondary index kept in step with the store.
type Mirror interface {
	EnsureCollection(ctx context.Context, dimension int) error
	UpsertSource(ctx context.Context, handle storage.SourceHandle, src *storage.Source, vectors [][]float32) error
	Mirror(ctx context.Context, store *storage.Store) error
}

// Pipeline orchestrates fetching, chunking, embedding and storing a source.
type Pipeline struct {
	fetcher  scrape.Fetcher
	chunker  Chunker
	embedder storage.Embedder
	store    *storage.Store
	mirror   Mirror
	logger   *slog.Logger
}

// NewPipeline creates a pipeline. mirror may be nil.
func NewPipeline(
	fetcher scrape.Fetcher,
	chunker Chunker,
	embedder storage.Embedder,
	store *storage.Store,
	mirror Mirror,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetcher:  fetcher,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		mirror:   mirror,
		logger:   logger,
	}
}

// AddSource fetches url, chunks and embeds it, and appends it to the store.
// Fetch and embedding failures are returned wrapped; the store is unchanged on error.
func (p *Pipeline) AddSource(ctx context.Context, url string) (*AddResult, error) {
	start := time.Now()

	page, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	p.logger.Debug("Fetched source", "url", url, "content_type", page.ContentType, "size", len(page.Text))

	chunks := p.chunker.Chunk(page.Text)
	p.logger.Debug("Chunked source", "url", url, "chunks", len(chunks))

	handle, err := p.store.AddSource(ctx, url, page.Text, chunks, p.embedder)
	if err != nil {
		return nil, fmt.Errorf("add source: %w", err)
	}

	if p.mirror != nil {
		p.mirrorSource(ctx, handle, url)
	}

	result := &AddResult{
		Handle:   handle,
		URL:      url,
		Chunks:   len(chunks),
		Chars:    len(page.Text),
		Duration: time.Since(start),
	}
	p.logger.Info("Indexed source", "source", handle, "url", url, "chunks", result.Chunks, "duration", result.Duration)
	return result, nil
}

// mirrorSource copies a stored source to the mirror. Failures are logged;
// the store stays authoritative and Rebuild repairs the mirror.
func (p *Pipeline) mirrorSource(ctx context.Context, handle storage.SourceHandle, id string) {
	src, ok := p.store.Get(id)
	if !ok || len(src.Chunks) == 0 {
		return
	}
	vecs, _ := p.store.Vectors(id)

	if err := p.mirror.EnsureCollection(ctx, len(vecs[0])); err != nil {
		p.logger.Warn("Mirror unavailable, source kept locally", "url", id, "error", err)
		return
	}
	if err := p.mirror.UpsertSource(ctx, handle, src, vecs); err != nil {
		p.logger.Warn("Failed to mirror source", "url", id, "error", err)
	}
}

// AddSources adds urls in order and stops at the first failure.
// The results of the sources added before the failure are returned with the error.
func (p *Pipeline) AddSources(ctx context.Context, urls []string) ([]*AddResult, error) {
	results := make([]*AddResult, 0, len(urls))
	for _, url := range urls {
		res, err := p.AddSource(ctx, url)
		if err != nil {
			return results, fmt.Errorf("%s: %w", url, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Rebuild replaces the mirror's contents with every source in the store.
func (p *Pipeline) Rebuild(ctx context.Context) error {
	if p.mirror == nil {
		return fmt.Errorf("no mirror configured")
	}

	start := time.Now()
	if err := p.mirror.Mirror(ctx, p.store); err != nil {
		return fmt.Errorf("rebuild mirror: %w", err)
	}
	p.logger.Info("Mirror rebuilt",
		"sources", p.store.Len(),
		"chunks", p.store.ChunkCount(),
		"duration", time.Since(start),
	)
	return nil
}
