package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix is stripped from environment variables before mapping.
	EnvPrefix = "CONVRAG_"
)

// Load reads configuration in increasing precedence:
//
//  1. Default()
//  2. the YAML file at path (skipped when path is empty or missing)
//  3. CONVRAG_* environment variables
//  4. the legacy variables RETRIEVER_POOL_K, RETRIEVER_TOP_K, CHAT_MODEL,
//     GROQ_API_KEY and OPENAI_API_KEY, only where 1-3 left the value unset
//
// Environment variables map on the first underscore after the prefix:
//
//	CONVRAG_ENGINE_POOL_K      -> engine.pool_k
//	CONVRAG_LLM_API_KEY        -> llm.api_key
//	CONVRAG_INDEX_CHROMEM_PATH -> index.chromem_path
//
// A config file must live in ~/.config/convrag, /etc/convrag or the working
// directory, be mode 0600 or 0400 and be at most 1MB.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyLegacyEnv(cfg, k)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps CONVRAG_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyLegacyEnv honours the variable names older deployments export.
func applyLegacyEnv(cfg *Config, k *koanf.Koanf) {
	if !k.Exists("engine.pool_k") {
		if v, ok := envInt("RETRIEVER_POOL_K"); ok {
			cfg.Engine.PoolK = v
		}
	}
	if !k.Exists("engine.top_k") {
		if v, ok := envInt("RETRIEVER_TOP_K"); ok {
			cfg.Engine.TopK = v
		}
	}
	if !k.Exists("llm.model") {
		if v := os.Getenv("CHAT_MODEL"); v != "" {
			cfg.LLM.Model = v
		}
	}
	if !cfg.LLM.APIKey.IsSet() {
		for _, name := range []string{"GROQ_API_KEY", "OPENAI_API_KEY"} {
			if v := os.Getenv(name); v != "" {
				cfg.LLM.APIKey = Secret(v)
				break
			}
		}
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, false
	}
	return v, true
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate the open descriptor, not the path, so the checked file is the read file.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// allowedConfigDirs lists the directories a config file may live in.
func allowedConfigDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	dirs := []string{
		filepath.Join(home, ".config", "convrag"),
		"/etc/convrag",
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs, nil
}

func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	dirs, err := allowedConfigDirs()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if resolvedDir, err := filepath.EvalSymlinks(dir); err == nil {
			dir = resolvedDir
		}
		rel, err := filepath.Rel(dir, resolved)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/convrag/, /etc/convrag/ or the working directory")
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
