package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusrag/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.EmbeddingProvider)
	assert.Equal(t, "memory", cfg.VectorBackend)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 3, cfg.RetrieveMultiplier)
	assert.InDelta(t, 0.4, cfg.RelevanceThreshold, 0.001)
	assert.Equal(t, 8081, cfg.ServerPort)
}

func TestLoad_FromEnv(t *testing.T) {
	os.Setenv("VECTOR_BACKEND", "weaviate")
	os.Setenv("CHUNK_SIZE", "2000")
	defer os.Unsetenv("VECTOR_BACKEND")
	defer os.Unsetenv("CHUNK_SIZE")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "weaviate", cfg.VectorBackend)
	assert.Equal(t, 2000, cfg.ChunkSize)
}

func TestLoad_FromEnvFile(t *testing.T) {
	err := os.WriteFile(".env", []byte("WEAVIATE_HOST=from-file:8080"), 0o644)
	require.NoError(t, err)
	defer os.Remove(".env")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file:8080", cfg.WeaviateHost)
}
