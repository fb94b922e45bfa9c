package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"campusrag/internal/config"
	"campusrag/internal/embed"
	"campusrag/internal/ingest"
	"campusrag/internal/text"
)

var (
	ingestSource  string
	ingestTimeout time.Duration
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file.jsonl> [more files...]",
	Short: "Ingest capture files into the vector store",
	Long: `Ingest parses JSONL capture files, normalizes and deduplicates the
records, chunks them with ancestor context, embeds the chunks in
parallel, and upserts them into the configured vector store. Re-running
over the same files is idempotent.

When the same record id appears in several files, the most recently
modified revision wins; list files in ascending priority to break full
ties in favor of later files.

Example:
  campusrag ingest data/posts.jsonl data/comments.jsonl --source forum
  campusrag ingest data/pages.jsonl --source web`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestSource, "source", "forum", "capture source type (forum, web, tabular)")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 30*time.Minute, "overall run timeout")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	embedder, closeEmbedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	if closeEmbedder != nil {
		defer closeEmbedder()
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	var notifier *ingest.Notifier
	if cfg.PublishReports {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("nsq producer: %w", err)
		}
		defer producer.Stop()
		notifier = ingest.NewNotifier(producer)
	}

	chunker := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinSize, cfg.ContextDepth)
	dispatcher := embed.NewDispatcher(embedder, dispatcherOptions(cfg))
	pipeline := ingest.NewPipeline(chunker, dispatcher, store, notifier)

	report, err := pipeline.RunFiles(ctx, args, ingestSource)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		slog.Warn("some chunks failed to embed and were skipped", "failed", report.Failed)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
