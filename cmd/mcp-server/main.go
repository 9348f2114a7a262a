// Package main provides the MCP server entry point for ragtrack.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/ragtrack/internal/app"
	"github.com/mike-a-ellis/ragtrack/internal/config"
	mcpserver "github.com/mike-a-ellis/ragtrack/internal/mcp"
)

var (
	configPath string
	storePath  string
)

var rootCmd = &cobra.Command{
	Use:   "ragtrack-mcp",
	Short: "Serve the ragtrack posting index over the Model Context Protocol",
	Long: `Runs over stdio by default, with the health endpoint on PORT in the background.
Set SERVER_MODE=true (or server.mode: http) to serve MCP over streamable HTTP at /mcp.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default: ~/.ragtrack/config.yaml)")
	rootCmd.Flags().StringVar(&storePath, "store", "", "store file (overrides config)")
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}

	// Stdout carries the stdio transport, so logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	a, err := app.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Connect(ctx); err != nil {
		return err
	}

	// Left nil without Qdrant so the tools and /health report the mirror as disabled
	var mirror interface {
		mcpserver.CollectionInfoer
		mcpserver.HealthChecker
	}
	if a.Qdrant != nil {
		mirror = a.Qdrant
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Engine:  a.Engine,
		Catalog: a.Store,
		Mirror:  mirror,
		Backend: cfg.Search.Backend,
	})

	mux := mcpserver.NewMux(server, a.Store, mirror, &mcpserver.HTTPHandlerOptions{
		Stateless: cfg.Server.Mode == config.ModeHTTP,
	})
	addr := "0.0.0.0:" + cfg.Server.Port

	if cfg.Server.Mode == config.ModeHTTP {
		// HTTP mode: serve MCP over HTTP for remote clients
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			<-ctx.Done()
			srv.Shutdown(context.Background())
		}()

		logger.Info("Starting HTTP server", "addr", addr, "sources", a.Store.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	// Stdio mode: run MCP server over stdin/stdout for local clients
	// Also start HTTP health endpoint in background for local testing
	go func() {
		logger.Info("Starting health server", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting ragtrack MCP server (stdio mode)", "sources", a.Store.Len())
	return server.Run(ctx)
}
