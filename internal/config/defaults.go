package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".semdex/index.db"
	}
	if cfg.Backend.PrimaryURL == "" {
		cfg.Backend.PrimaryURL = "http://127.0.0.1:11434"
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = "nomic-embed-text"
	}
	if cfg.Backend.ProbeTimeoutMs == 0 {
		cfg.Backend.ProbeTimeoutMs = 2000
	}
	if cfg.Backend.FailoverTimeoutMs == 0 {
		cfg.Backend.FailoverTimeoutMs = 10000
	}
	if cfg.Backend.EmbedTimeoutMs == 0 {
		cfg.Backend.EmbedTimeoutMs = 30000
	}
	if cfg.Backend.CacheSize == 0 {
		cfg.Backend.CacheSize = 4096
	}
	if cfg.Index.BinaryExtensions == nil {
		cfg.Index.BinaryExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".ico"}
	}
	if cfg.Index.ResyncIntervalSec == 0 {
		cfg.Index.ResyncIntervalSec = 300
	}
	if cfg.Index.SnippetLength == 0 {
		cfg.Index.SnippetLength = 160
	}
	if cfg.Exclude.Dirs == nil {
		cfg.Exclude.Dirs = []string{
			"__pycache__", "node_modules", "venv", "dist", "build",
			".git", ".idea", ".vscode",
		}
	}
	if cfg.Exclude.Files == nil {
		cfg.Exclude.Files = []string{".DS_Store"}
	}
	if cfg.Pipeline.DebounceMs == 0 {
		cfg.Pipeline.DebounceMs = 400
	}
}
