// Package answer builds grounded prompts from retrieved chunks and asks the chat model.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mike-a-ellis/ragtrack/internal/embedding"
	"github.com/mike-a-ellis/ragtrack/internal/search"
	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// NoDataText is the reply returned when nothing has been ingested.
const NoDataText = "No data loaded"

// Status tells a real answer apart from the empty-store reply.
type Status int

const (
	StatusOK Status = iota
	StatusNoData
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoData:
		return "no_data"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of Answer.
type Result struct {
	Status Status
	Text   string          // model output verbatim, or NoDataText
	Chunks []search.Result // context the answer was grounded on
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Engine answers questions from the store's contents.
type Engine struct {
	store     *storage.Store
	embedder  storage.Embedder
	index     search.Index
	generator Generator
	topK      int
	logger    *slog.Logger
}

// Config holds engine dependencies.
type Config struct {
	Store     *storage.Store
	Embedder  storage.Embedder
	Index     search.Index // defaults to a brute-force index over Store
	Generator Generator
	TopK      int // defaults to search.DefaultTopK
	Logger    *slog.Logger
}

// NewEngine creates an answer engine.
func NewEngine(cfg Config) *Engine {
	index := cfg.Index
	if index == nil {
		index = search.NewMemory(cfg.Store)
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = search.DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		index:     index,
		generator: cfg.Generator,
		topK:      topK,
		logger:    logger,
	}
}

// Answer retrieves the top chunks for question, optionally within one source,
// and returns the generator's reply verbatim.
// An empty store yields StatusNoData without calling either model.
func (e *Engine) Answer(ctx context.Context, question string, filter storage.SourceHandle) (Result, error) {
	if e.store.IsEmpty() {
		return Result{Status: StatusNoData, Text: NoDataText}, nil
	}

	chunks, err := e.Retrieve(ctx, question, e.topK, filter)
	if err != nil {
		return Result{}, err
	}

	prompt := BuildPrompt(BuildContext(chunks), question)
	e.logger.Debug("Generating answer", "chunks", len(chunks), "filter", int(filter), "prompt_chars", len(prompt))

	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}

	return Result{Status: StatusOK, Text: text, Chunks: chunks}, nil
}

// Retrieve embeds query and returns the k most similar chunks.
func (e *Engine) Retrieve(ctx context.Context, query string, k int, filter storage.SourceHandle) ([]search.Result, error) {
	vectors, err := e.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		if errors.Is(err, embedding.ErrEmbeddingFailure) {
			return nil, fmt.Errorf("embed question: %w", err)
		}
		return nil, fmt.Errorf("embed question: %w: %v", embedding.ErrEmbeddingFailure, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed question: %w: got %d vectors", embedding.ErrEmbeddingFailure, len(vectors))
	}

	results, err := e.index.Search(ctx, vectors[0], k, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// BuildContext renders chunks as "[sourceId]:\ntext" blocks separated by blank lines.
func BuildContext(chunks []search.Result) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[%s]:\n%s", c.SourceID, c.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildPrompt wraps the context and question in the fixed answering instruction.
func BuildPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Answer based on this context:\n\n%s\n\nQuestion: %s\n\nAnswer:", contextBlock, question)
}
