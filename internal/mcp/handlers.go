package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/ragtrack/internal/answer"
	"github.com/mike-a-ellis/ragtrack/internal/search"
	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

const maxSearchResults = 50

// makeAskHandler creates the ask tool handler.
// An empty store yields the "No data loaded" reply with status no_data, not an error.
func makeAskHandler(engine Answerer) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		res, err := engine.Answer(ctx, input.Question, storage.SourceHandle(input.Source))
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("failed to answer: %w", err)
		}

		return nil, AskOutput{
			Answer:  res.Text,
			Status:  res.Status.String(),
			Context: toChunkResults(res.Chunks),
		}, nil
	}
}

// makeSearchHandler creates the search_chunks tool handler.
// Nothing is embedded while the store is empty.
func makeSearchHandler(engine Answerer, catalog Catalog) func(
	context.Context, *mcp.CallToolRequest, SearchChunksInput,
) (*mcp.CallToolResult, SearchChunksOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchChunksInput) (
		*mcp.CallToolResult, SearchChunksOutput, error,
	) {
		if len(catalog.Sources()) == 0 {
			return nil, SearchChunksOutput{
				Results: []ChunkResult{},
				Message: answer.NoDataText,
			}, nil
		}

		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = search.DefaultTopK
		}
		if maxResults > maxSearchResults {
			maxResults = maxSearchResults
		}

		chunks, err := engine.Retrieve(ctx, input.Query, maxResults, storage.SourceHandle(input.Source))
		if err != nil {
			return nil, SearchChunksOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(chunks) == 0 {
			return nil, SearchChunksOutput{
				Results: []ChunkResult{},
				Message: "No matching chunks found.",
			}, nil
		}
		return nil, SearchChunksOutput{Results: toChunkResults(chunks)}, nil
	}
}

// makeListHandler creates the list_sources tool handler.
func makeListHandler(catalog Catalog) func(
	context.Context, *mcp.CallToolRequest, ListSourcesInput,
) (*mcp.CallToolResult, ListSourcesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListSourcesInput) (
		*mcp.CallToolResult, ListSourcesOutput, error,
	) {
		infos := catalog.Sources()
		sources := make([]SourceSummary, 0, len(infos))
		for _, info := range infos {
			sources = append(sources, SourceSummary{
				Source:  int(info.Handle),
				URL:     info.ID,
				Chunks:  info.Chunks,
				Chars:   info.Chars,
				AddedAt: info.AddedAt,
			})
		}
		return nil, ListSourcesOutput{Sources: sources, Count: len(sources)}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// A configured but unreachable mirror leaves MirrorPoints nil; it is not an error for the tool.
func makeStatusHandler(catalog Catalog, mirror CollectionInfoer, backend string) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		infos := catalog.Sources()
		out := StatusOutput{
			TotalSources: len(infos),
			TotalChunks:  catalog.ChunkCount(),
			Dimension:    catalog.Dimension(),
			Backend:      backend,
		}
		if len(infos) > 0 {
			out.LastAdded = infos[len(infos)-1].AddedAt.Format(time.RFC3339)
		}

		if mirror != nil {
			info, err := mirror.GetCollectionInfo(ctx)
			if err == nil && info != nil {
				points := int(info.PointsCount)
				out.MirrorPoints = &points
				if points != out.TotalChunks {
					out.StaleWarning = fmt.Sprintf("Mirror holds %d chunks but the store has %d. Run 'ragtrack mirror' to rebuild.",
						points, out.TotalChunks)
				}
			}
		}

		return nil, out, nil
	}
}

func toChunkResults(chunks []search.Result) []ChunkResult {
	out := make([]ChunkResult, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, ChunkResult{
			Source:     int(c.Handle),
			URL:        c.SourceID,
			ChunkIndex: c.ChunkIndex,
			Score:      c.Score,
			Content:    c.Text,
		})
	}
	return out
}
