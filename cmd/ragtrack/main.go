// Package main provides the ragtrack CLI for ingesting job postings and asking grounded questions.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/ragtrack/internal/answer"
	"github.com/mike-a-ellis/ragtrack/internal/app"
	"github.com/mike-a-ellis/ragtrack/internal/config"
	"github.com/mike-a-ellis/ragtrack/internal/extract"
	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

var (
	configPath string
	storePath  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ragtrack",
	Short: "Ask grounded questions about job postings",
	Long: `ragtrack scrapes job posting URLs, indexes them with embeddings and answers
questions using only the ingested text. Postings can be exported as JSON for
an application tracker.

Environment variables:
  OPENAI_API_KEY       OpenAI API key (required unless OPENAI_BASE_URL is set)
  OPENAI_BASE_URL      OpenAI-compatible endpoint
  RAGTRACK_STORE       Store file (default: ~/.ragtrack/store.bin)
  RAGTRACK_SEARCH_BACKEND  memory (default) or qdrant
  QDRANT_HOST          Qdrant hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  GITHUB_TOKEN         GitHub token for README sources (optional)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var addCmd = &cobra.Command{
	Use:   "add <url>...",
	Short: "Scrape, chunk and index one or more URLs",
	Long: `Adds each URL in order. Processing stops at the first URL that cannot be
fetched or embedded; URLs added before it are kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the ingested postings",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested sources with their numbers",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

var loadCmd = &cobra.Command{
	Use:   "load [path]",
	Short: "Validate a store file and summarize its contents",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLoad,
}

var exportCmd = &cobra.Command{
	Use:   "export-json",
	Short: "Extract every posting and print tracker JSON",
	Long: `Runs the extraction prompt once per source. Sources whose reply is not valid
JSON, or that lack a school, position or deadline, are reported on stderr and
left out of the export.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Rebuild the Qdrant collection from the store",
	Args:  cobra.NoArgs,
	RunE:  runMirror,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.ragtrack/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "store file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	askCmd.Flags().IntP("source", "s", 0, "restrict retrieval to one source number (see 'ragtrack sources')")
	exportCmd.Flags().StringP("output", "o", "", "write JSON to this file instead of stdout")

	rootCmd.AddCommand(addCmd, askCmd, sourcesCmd, loadCmd, exportCmd, mirrorCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	return cfg, nil
}

// openApp loads the store and, when connect is set, the model clients.
func openApp(ctx context.Context, connect bool) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.Open(cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	if connect {
		if err := a.Connect(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	results, err := a.Pipeline.AddSources(ctx, args)
	for _, r := range results {
		fmt.Printf("Added source %d: %s (%d chunks)\n", r.Handle, r.URL, r.Chunks)
	}
	if err != nil {
		if len(results) < len(args) {
			fmt.Fprintf(os.Stderr, "Stopped after %d of %d URLs\n", len(results), len(args))
		}
		return err
	}

	fmt.Printf("Store: %d sources, %d chunks (%s)\n", a.Store.Len(), a.Store.ChunkCount(), time.Since(start).Round(time.Millisecond))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source, _ := cmd.Flags().GetInt("source")

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Engine.Answer(ctx, strings.Join(args, " "), storage.SourceHandle(source))
	if err != nil {
		return err
	}
	fmt.Println(res.Text)
	return nil
}

func runSources(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	infos := a.Store.Sources()
	if len(infos) == 0 {
		fmt.Println(answer.NoDataText)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tURL\tCHUNKS\tADDED")
	for _, info := range infos {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", info.Handle, info.ID, info.Chunks, info.AddedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runLoad(cmd *cobra.Command, args []string) error {
	path := storePath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Store.Path
	}

	snap, err := storage.NewFilePersister(path).Load()
	if err != nil {
		return err
	}
	store, err := storage.FromSnapshot(snap, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Loaded %s\n", path)
	fmt.Printf("  Sources:   %d\n", store.Len())
	fmt.Printf("  Chunks:    %d\n", store.ChunkCount())
	fmt.Printf("  Dimension: %d\n", store.Dimension())
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	output, _ := cmd.Flags().GetString("output")

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	outcomes := a.Extractor.ExtractAll(ctx)
	export, diags := extract.BuildExport(outcomes)
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "Skipped source %d (%s): %s\n", d.Handle, d.SourceID, d.Reason)
	}

	if output == "" {
		return extract.WriteJSON(os.Stdout, export)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := extract.WriteJSON(f, export); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d applications to %s\n", len(export.Applications), output)
	return nil
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Qdrant == nil {
		return app.ErrNoMirror
	}
	if err := a.Pipeline.Rebuild(ctx); err != nil {
		if errors.Is(err, storage.ErrQdrantUnreachable) {
			return fmt.Errorf("%w (is Qdrant running at %s:%d?)", err, a.Config.Qdrant.Host, a.Config.Qdrant.Port)
		}
		return err
	}

	info, err := a.Qdrant.GetCollectionInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Mirrored %d sources (%d points)\n", a.Store.Len(), info.PointsCount)
	return nil
}
