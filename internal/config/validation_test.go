package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"campusrag/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		EmbeddingProvider:  "openai",
		VectorBackend:      "memory",
		ChunkSize:          1000,
		ChunkOverlap:       200,
		EmbedWorkers:       8,
		RetrieveMultiplier: 3,
		WeightSimilarity:   0.5,
		WeightCoverage:     0.3,
		WeightCategory:     0.2,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{
			name:   "Valid",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "Unknown provider",
			mutate:  func(c *config.Config) { c.EmbeddingProvider = "cohere" },
			wantErr: true,
		},
		{
			name:    "Unknown backend",
			mutate:  func(c *config.Config) { c.VectorBackend = "qdrant" },
			wantErr: true,
		},
		{
			name:    "Zero chunk size",
			mutate:  func(c *config.Config) { c.ChunkSize = 0 },
			wantErr: true,
		},
		{
			name:    "Overlap not smaller than chunk size",
			mutate:  func(c *config.Config) { c.ChunkOverlap = 1000 },
			wantErr: true,
		},
		{
			name:    "Zero workers",
			mutate:  func(c *config.Config) { c.EmbedWorkers = 0 },
			wantErr: true,
		},
		{
			name:    "Multiplier below one",
			mutate:  func(c *config.Config) { c.RetrieveMultiplier = 0 },
			wantErr: true,
		},
		{
			name:    "Weights do not sum to one",
			mutate:  func(c *config.Config) { c.WeightCategory = 0.4 },
			wantErr: true,
		},
		{
			name: "Weights within tolerance",
			mutate: func(c *config.Config) {
				c.WeightSimilarity = 0.5
				c.WeightCoverage = 0.3001
				c.WeightCategory = 0.1999
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
