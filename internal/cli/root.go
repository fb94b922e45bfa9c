package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"campusrag/internal/logger"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "campusrag",
	Short: "Retrieval-augmented question answering over campus data",
	Long: `campusrag ingests heterogeneous campus captures (forum threads, web
pages, tabular exports), normalizes and deduplicates them, chunks them
with ancestor context, embeds the chunks, and serves grounded answers
with confidence scores and clarification prompts.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))
}
