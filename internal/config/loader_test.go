package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at a temp dir so only the
// test's own config file and env vars are visible.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, name := range []string{"RETRIEVER_POOL_K", "RETRIEVER_TOP_K", "CHAT_MODEL", "GROQ_API_KEY", "OPENAI_API_KEY"} {
		t.Setenv(name, "")
	}
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, dir, body string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "convrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Engine.PoolK)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
engine:
  pool_k: 40
  top_k: 3
llm:
  model: llama-3.1-8b-instant
  timeout: 15s
index:
  provider: qdrant
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Engine.PoolK)
	assert.Equal(t, 3, cfg.Engine.TopK)
	assert.Equal(t, 7000, cfg.Engine.ContextChars, "unset keys keep defaults")
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Model)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout.Duration())
	assert.Equal(t, "qdrant", cfg.Index.Provider)
	assert.True(t, cfg.Index.ChromemGzip, "boolean defaults survive a partial file")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "engine:\n  top_k: 3\n", 0600)
	t.Setenv("CONVRAG_ENGINE_TOP_K", "7")
	t.Setenv("CONVRAG_LLM_API_KEY", "secret-value")
	t.Setenv("CONVRAG_INDEX_CHROMEM_PATH", "/var/lib/convrag")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.TopK)
	assert.Equal(t, "secret-value", cfg.LLM.APIKey.Value())
	assert.Equal(t, "/var/lib/convrag", cfg.Index.ChromemPath)
}

func TestLoad_LegacyEnv(t *testing.T) {
	isolate(t)
	t.Setenv("RETRIEVER_POOL_K", "80")
	t.Setenv("RETRIEVER_TOP_K", "8")
	t.Setenv("CHAT_MODEL", "llama3-70b")
	t.Setenv("GROQ_API_KEY", "gsk_abc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Engine.PoolK)
	assert.Equal(t, 8, cfg.Engine.TopK)
	assert.Equal(t, "llama3-70b", cfg.LLM.Model)
	assert.Equal(t, "gsk_abc", cfg.LLM.APIKey.Value())
}

func TestLoad_PrefixedEnvBeatsLegacy(t *testing.T) {
	isolate(t)
	t.Setenv("RETRIEVER_TOP_K", "8")
	t.Setenv("CONVRAG_ENGINE_TOP_K", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.TopK)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "engine:\n  top_k: 3\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsPathOutsideAllowedDirs(t *testing.T) {
	isolate(t)
	other := t.TempDir()
	path := writeConfig(t, other, "engine:\n  top_k: 3\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path validation")
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "chunking:\n  word_size: 10\n  word_overlap: 10\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunking.word")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CONVRAG_ENGINE_POOL_K":          "engine.pool_k",
		"CONVRAG_LLM_MODEL":              "llm.model",
		"CONVRAG_CONVERSATIONS_REDIS_DB": "conversations.redis_db",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
