package embeddings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionForModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"sentence-transformers/all-MiniLM-L6-v2", 384},
		{"fast-all-MiniLM-L6-v2", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"fast-bge-small-zh-v1.5", 512},
		{"text-embedding-3-small", 1536},
		{"some/unknown-large", 1024},
		{"some/unknown-base", 768},
		{"mystery", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, DimensionForModel(tt.model))
		})
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmbeddingsConfig
		wantErr bool
	}{
		{
			name: "tei",
			cfg:  config.EmbeddingsConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-small-en-v1.5"},
		},
		{
			name:    "tei without base url",
			cfg:     config.EmbeddingsConfig{Provider: "tei", Model: "BAAI/bge-small-en-v1.5"},
			wantErr: true,
		},
		{
			name: "openai",
			cfg:  config.EmbeddingsConfig{Provider: "openai", Model: "text-embedding-3-small", APIKey: config.Secret("sk-test")},
		},
		{
			name:    "openai without key",
			cfg:     config.EmbeddingsConfig{Provider: "openai", Model: "text-embedding-3-small"},
			wantErr: true,
		},
		{
			name:    "unknown",
			cfg:     config.EmbeddingsConfig{Provider: "word2vec"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, p.Dimension())
			assert.NoError(t, p.Close())
		})
	}
}

func TestCachedTokenizer(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "fast-all-MiniLM-L6-v2")
	require.NoError(t, os.MkdirAll(modelDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "tokenizer.json"), []byte("{}"), 0o600))

	tests := []struct {
		name string
		cfg  config.EmbeddingsConfig
		want string
	}{
		{
			name: "hugging face name",
			cfg:  config.EmbeddingsConfig{Provider: "fastembed", Model: "sentence-transformers/all-MiniLM-L6-v2", CacheDir: dir},
			want: filepath.Join(modelDir, "tokenizer.json"),
		},
		{
			name: "fastembed constant",
			cfg:  config.EmbeddingsConfig{Provider: "fastembed", Model: "fast-all-MiniLM-L6-v2", CacheDir: dir},
			want: filepath.Join(modelDir, "tokenizer.json"),
		},
		{
			name: "model not downloaded",
			cfg:  config.EmbeddingsConfig{Provider: "fastembed", Model: "BAAI/bge-small-en-v1.5", CacheDir: dir},
		},
		{
			name: "remote provider",
			cfg:  config.EmbeddingsConfig{Provider: "openai", Model: "text-embedding-3-small", CacheDir: dir},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CachedTokenizer(tt.cfg)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
