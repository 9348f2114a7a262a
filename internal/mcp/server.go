package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/ragtrack/internal/answer"
	"github.com/mike-a-ellis/ragtrack/internal/search"
	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// Answerer answers questions and retrieves chunks.
type Answerer interface {
	Answer(ctx context.Context, question string, filter storage.SourceHandle) (answer.Result, error)
	Retrieve(ctx context.Context, query string, k int, filter storage.SourceHandle) ([]search.Result, error)
}

// Catalog describes the contents of the store.
type Catalog interface {
	Sources() []storage.SourceInfo
	ChunkCount() int
	Dimension() int
}

// CollectionInfoer reports the size of the Qdrant mirror.
type CollectionInfoer interface {
	GetCollectionInfo(ctx context.Context) (*storage.CollectionInfo, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Engine  Answerer
	Catalog Catalog
	// Mirror is optional.
	Mirror  CollectionInfoer
	Backend string
	Version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "ragtrack",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question about the ingested job postings. The answer is grounded only on retrieved posting text.",
	}, makeAskHandler(cfg.Engine))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_chunks",
		Description: "Semantic search over ingested posting chunks. Returns the raw chunk text with similarity scores.",
	}, makeSearchHandler(cfg.Engine, cfg.Catalog))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sources",
		Description: "List every ingested source with its number, URL and chunk count.",
	}, makeListHandler(cfg.Catalog))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the current status of the posting index including source and chunk counts and mirror state.",
	}, makeStatusHandler(cfg.Catalog, cfg.Mirror, cfg.Backend))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
