// Package config provides configuration loading and structs for the Umekomi server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EmbeddingConfig holds model loading and inference settings.
type EmbeddingConfig struct {
	// AssetDir is the directory containing the model asset files
	// (config.json, model.onnx, tokenizer.json, vocab.txt,
	// tokenizer_config.json, special_tokens_map.json).
	AssetDir string `yaml:"asset_dir"`
	// Dimensions is the expected embedding size. Used by the mock backend and
	// cross-checked against the loaded model; 0 accepts whatever the model
	// config declares.
	Dimensions int `yaml:"dimensions"`
	MaxTokens  int `yaml:"max_tokens"`
	// Pooling reduces per-token outputs to one vector: "mean" (default),
	// "cls", or "none" for models that already emit sentence embeddings.
	// The same strategy applies to every call, so equal inputs always yield
	// equal vectors.
	Pooling string `yaml:"pooling"`
	// Normalize L2-normalizes output vectors; defaults to true when unset.
	Normalize *bool `yaml:"normalize"`
	CacheSize int   `yaml:"cache_size"`
	// ONNXLibraryPath optionally points at the onnxruntime shared library.
	ONNXLibraryPath string `yaml:"onnx_library_path"`
}

// NormalizeOrDefault returns whether to normalize vectors; defaults to true when unset.
func (e *EmbeddingConfig) NormalizeOrDefault() bool {
	if e.Normalize != nil {
		return *e.Normalize
	}
	return true
}

// StorageConfig holds the persistent embedding cache path.
// An empty database_path disables the persistent cache.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig holds asset directory watch settings.
type WatchConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// EnabledOrDefault returns whether to watch the asset directory; defaults to true when unset.
func (w *WatchConfig) EnabledOrDefault() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Embedding.AssetDir = expandPath(cfg.Embedding.AssetDir, configDir)
	if cfg.Storage.DatabasePath != "" {
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	}
	if cfg.Embedding.ONNXLibraryPath != "" {
		cfg.Embedding.ONNXLibraryPath = expandPath(cfg.Embedding.ONNXLibraryPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
