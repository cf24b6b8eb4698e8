package config

// ApplyDefaults sets default values for any zero values in cfg.
// Storage.DatabasePath is left empty; the persistent cache is opt-in.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Embedding.AssetDir == "" {
		cfg.Embedding.AssetDir = "/usr/local/var/umekomi/models/all-MiniLM-L6-v2"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.Pooling == "" {
		cfg.Embedding.Pooling = "mean"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
}
