package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	// Embedding service
	EmbeddingProvider string  `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	OpenAIAPIKey      string  `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey      string  `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel    string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDim      int     `envconfig:"EMBEDDING_DIM" default:"1536"`
	EmbeddingRPS      float64 `envconfig:"EMBEDDING_RPS" default:"20"`
	EmbeddingBurst    int     `envconfig:"EMBEDDING_BURST" default:"5"`
	EmbedCacheTTLMin  int     `envconfig:"EMBED_CACHE_TTL_MIN" default:"60"`

	// Embedding dispatcher
	EmbedWorkers       int `envconfig:"EMBED_WORKERS" default:"8"`
	EmbedMaxRetries    int `envconfig:"EMBED_MAX_RETRIES" default:"4"`
	EmbedBackoffBaseMS int `envconfig:"EMBED_BACKOFF_BASE_MS" default:"500"`
	EmbedBackoffMaxMS  int `envconfig:"EMBED_BACKOFF_MAX_MS" default:"8000"`
	EmbedTimeoutSec    int `envconfig:"EMBED_TIMEOUT_SEC" default:"60"`

	// Chunker
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`
	ChunkMinSize int `envconfig:"CHUNK_MIN_SIZE" default:"50"`
	ContextDepth int `envconfig:"CONTEXT_DEPTH" default:"2"`

	// Vector store
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"memory"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateClass  string `envconfig:"WEAVIATE_CLASS" default:"CorpusChunk"`

	// Retrieval
	TopK               int     `envconfig:"TOP_K" default:"5"`
	RetrieveMultiplier int     `envconfig:"RETRIEVE_MULTIPLIER" default:"3"`
	RelevanceThreshold float64 `envconfig:"RELEVANCE_THRESHOLD" default:"0.4"`
	RecencyBoost       float64 `envconfig:"RECENCY_BOOST" default:"0.1"`

	// Confidence scoring weights. The three weights should sum to 1;
	// Validate rejects configurations where they drift.
	WeightSimilarity float64 `envconfig:"WEIGHT_SIMILARITY" default:"0.5"`
	WeightCoverage   float64 `envconfig:"WEIGHT_COVERAGE" default:"0.3"`
	WeightCategory   float64 `envconfig:"WEIGHT_CATEGORY" default:"0.2"`
	LowConfidence    float64 `envconfig:"LOW_CONFIDENCE_THRESHOLD" default:"0.3"`
	SynthesisCap     float64 `envconfig:"SYNTHESIS_UNAVAILABLE_CAP" default:"0.5"`

	// Answer synthesis
	LLMModel        string `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMMaxTokens    int    `envconfig:"LLM_MAX_TOKENS" default:"1000"`
	SynthTimeoutSec int    `envconfig:"SYNTH_TIMEOUT_SEC" default:"30"`
	QueryTimeoutSec int    `envconfig:"QUERY_TIMEOUT_SEC" default:"45"`

	// NSQ run-report publishing
	NSQDHost       string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	PublishReports bool   `envconfig:"PUBLISH_REPORTS" default:"false"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell; a missing .env is not an error.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.EmbeddingProvider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
	}
	switch c.VectorBackend {
	case "memory", "weaviate":
	default:
		return fmt.Errorf("unknown vector backend %q", c.VectorBackend)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrMissingRequired)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.EmbedWorkers <= 0 {
		return fmt.Errorf("%w: EMBED_WORKERS must be positive", ErrMissingRequired)
	}
	if c.RetrieveMultiplier < 1 {
		return fmt.Errorf("RETRIEVE_MULTIPLIER must be >= 1")
	}
	sum := c.WeightSimilarity + c.WeightCoverage + c.WeightCategory
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("confidence weights must sum to 1, got %.3f", sum)
	}
	return nil
}
