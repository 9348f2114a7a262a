// Package mcp exposes the posting index to MCP clients.
package mcp

import "time"

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	// Question is answered from the ingested postings only.
	Question string `json:"question" jsonschema:"The question to answer from the ingested job postings"`
	// Source restricts retrieval to one source (1-based, as listed by list_sources). 0 searches all.
	Source int `json:"source,omitempty" jsonschema:"Restrict the answer to one source number from list_sources (0 = all)"`
}

// AskOutput contains the grounded answer.
type AskOutput struct {
	// Answer is the model reply, or "No data loaded" when nothing has been ingested.
	Answer string `json:"answer"`
	// Status is "ok" or "no_data".
	Status string `json:"status"`
	// Context lists the chunks the answer was grounded on.
	Context []ChunkResult `json:"context"`
}

// SearchChunksInput defines the input parameters for the search_chunks tool.
type SearchChunksInput struct {
	Query string `json:"query" jsonschema:"The semantic search query"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"Maximum number of chunks to return (1-50, default 8)"`
	Source     int `json:"source,omitempty" jsonschema:"Restrict the search to one source number (0 = all)"`
}

// SearchChunksOutput contains the matching chunks, best first.
type SearchChunksOutput struct {
	Results []ChunkResult `json:"results"`
	// Message provides informational context (e.g., "No data loaded").
	Message string `json:"message,omitempty"`
}

// ChunkResult is one retrieved chunk.
type ChunkResult struct {
	Source     int     `json:"source"`
	URL        string  `json:"url"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// ListSourcesInput takes no parameters.
type ListSourcesInput struct{}

// ListSourcesOutput lists every source in ingestion order.
type ListSourcesOutput struct {
	Sources []SourceSummary `json:"sources"`
	Count   int             `json:"count"`
}

// SourceSummary describes one ingested source.
type SourceSummary struct {
	Source  int       `json:"source"`
	URL     string    `json:"url"`
	Chunks  int       `json:"chunks"`
	Chars   int       `json:"chars"`
	AddedAt time.Time `json:"added_at"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput reports the state of the index.
type StatusOutput struct {
	TotalSources int    `json:"total_sources"`
	TotalChunks  int    `json:"total_chunks"`
	Dimension    int    `json:"dimension"`
	Backend      string `json:"backend"`
	LastAdded    string `json:"last_added,omitempty"`
	// MirrorPoints is the Qdrant point count; nil when no mirror is configured or reachable.
	MirrorPoints *int `json:"mirror_points,omitempty"`
	// StaleWarning is set when the mirror and the store disagree.
	StaleWarning string `json:"stale_warning,omitempty"`
}
