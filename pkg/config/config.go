// Package config loads the umfrage server configuration.
//
// Sources are applied in order:
//  1. Built-in defaults
//  2. YAML config file (explicit path, UMFRAGE_CONFIG, ./config.yaml,
//     /etc/umfrage/config.yaml)
//  3. UMFRAGE_* environment variables
//  4. File references (fields ending in _file)
//  5. Validation
package config

import "time"

// Config holds all configuration of the server and the admin CLI.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Files         FilesConfig         `yaml:"files"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 60s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"` // default: 32 MiB
}

// StorageConfig selects the relational database holding surveys and
// response partitions.
type StorageConfig struct {
	Driver          string        `yaml:"driver"` // "sqlite", "postgres" or "mysql", default: "sqlite"
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"`          // _file variant for dsn
	MaxConns        int           `yaml:"max_conns"`         // default: 25
	MaxIdleConns    int           `yaml:"max_idle_conns"`    // default: 5
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // default: 5m
	MigrateOnStart  bool          `yaml:"migrate_on_start"`  // default: true
}

// FilesConfig locates survey directories on disk.
type FilesConfig struct {
	DataDir string `yaml:"data_dir"` // default: "./data"
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"` // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key.
type APIKeyConfig struct {
	Key         string   `yaml:"key" json:"key"`
	KeyFile     string   `yaml:"key_file" json:"key_file"`
	Subject     string   `yaml:"subject" json:"subject"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig holds shared-secret token validation settings.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	SecretFile  string        `yaml:"secret_file"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	Leeway      time.Duration `yaml:"leeway"`
}

// RateLimitConfig limits requests per caller. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerMinute int                   `yaml:"requests_per_minute"`
	Burst             int                   `yaml:"burst"`
	Tiers             map[string]TierConfig `yaml:"tiers"`
}

// TierConfig overrides the rate limit of one service tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log settings. UMFRAGE_DEBUG and UMFRAGE_LOG_LEVEL
// take precedence over these values at startup.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  32 << 20,
		},
		Storage: StorageConfig{
			Driver:          "sqlite",
			DSN:             "umfrage.db",
			MaxConns:        25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrateOnStart:  true,
		},
		Files: FilesConfig{
			DataDir: "./data",
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
