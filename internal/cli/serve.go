package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"campusrag/features/ask"
	"campusrag/features/stats"
	"campusrag/internal/config"
	"campusrag/internal/middleware"
	"campusrag/internal/query"
	"campusrag/internal/retrieval"
	"campusrag/internal/synth"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the question-answering HTTP API",
	Long: `Serve starts the HTTP API:
  POST /ask     answer a question, with clarification prompts when vague
  GET  /stats   corpus size, backend, and model identity
  GET  /health  liveness probe

Configuration comes from the environment (or a .env file).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

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

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	retriever := retrieval.NewService(embedder, store, retrieval.Options{
		TopK:         cfg.TopK,
		Multiplier:   cfg.RetrieveMultiplier,
		RecencyBoost: cfg.RecencyBoost,
	}, queryLogger)

	// Without an OpenAI key the analyzer degrades to raw retrieved
	// context instead of synthesized answers.
	var synthesizer synth.Synthesizer
	if cfg.OpenAIAPIKey != "" {
		s, err := synth.NewOpenAISynthesizer(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMMaxTokens,
			time.Duration(cfg.SynthTimeoutSec)*time.Second)
		if err != nil {
			return fmt.Errorf("synthesizer: %w", err)
		}
		synthesizer = s
	} else {
		slog.Warn("no OpenAI key configured, answers fall back to retrieved context")
	}

	categories := query.DefaultCategories()
	analyzer := query.NewAnalyzer(query.NewKeywordClassifier(categories), categories, retriever, synthesizer,
		query.AnalyzerOptions{
			Weights: query.Weights{
				Similarity: cfg.WeightSimilarity,
				Coverage:   cfg.WeightCoverage,
				Category:   cfg.WeightCategory,
			},
			RelevanceThreshold: cfg.RelevanceThreshold,
			LowConfidence:      cfg.LowConfidence,
			SynthesisCap:       cfg.SynthesisCap,
			Timeout:            time.Duration(cfg.QueryTimeoutSec) * time.Second,
		})

	askHandler := ask.NewHandler(analyzer)
	statsHandler := stats.NewHandler(store, cfg.EmbeddingModel, cfg.LLMModel)

	mux := http.NewServeMux()
	mux.Handle("POST /ask", middleware.CorrelationID(middleware.CORS(askHandler.Ask)))
	mux.Handle("OPTIONS /ask", middleware.CorrelationID(middleware.CORS(askHandler.Ask)))
	mux.Handle("GET /stats", middleware.CorrelationID(middleware.CORS(statsHandler.GetStats)))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	slog.Info("server starting", "addr", addr, "backend", cfg.VectorBackend, "provider", cfg.EmbeddingProvider)
	return http.ListenAndServe(addr, mux)
}
