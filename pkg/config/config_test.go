package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes != 32<<20 {
		t.Errorf("server.max_upload_bytes = %d, want 32 MiB", cfg.Server.MaxUploadBytes)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("storage.driver = %q, want \"sqlite\"", cfg.Storage.Driver)
	}
	if !cfg.Storage.MigrateOnStart {
		t.Error("storage.migrate_on_start = false, want true")
	}
	if cfg.Files.DataDir != "./data" {
		t.Errorf("files.data_dir = %q, want \"./data\"", cfg.Files.DataDir)
	}
	if cfg.Auth.Type != "none" {
		t.Errorf("auth.type = %q, want \"none\"", cfg.Auth.Type)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("UMFRAGE_CONFIG", "")
	path := writeTemp(t, "config-*.yaml", `
server:
  port: 9090
  read_timeout: 10s
  max_upload_bytes: 1048576
storage:
  driver: postgres
  dsn: "postgres://umfrage:secret@db/umfrage"
  max_conns: 50
  conn_max_lifetime: 1m
  migrate_on_start: false
files:
  data_dir: /var/lib/umfrage
auth:
  type: apikey
  api_keys:
    - key: sk-ops
      subject: ops
      scopes: ["surveys:admin"]
    - key: sk-kiosk
      subject: kiosk
      service_tier: public
      scopes: ["responses:write"]
  rate_limit:
    requests_per_minute: 120
    tiers:
      public:
        requests_per_minute: 30
        burst: 5
logging:
  level: debug
  format: json
  debug: storage,lifecycle
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout != 10*time.Second || cfg.Server.MaxUploadBytes != 1<<20 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.MaxConns != 50 || cfg.Storage.ConnMaxLifetime != time.Minute {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.MigrateOnStart {
		t.Error("storage.migrate_on_start = true, want false")
	}
	if cfg.Files.DataDir != "/var/lib/umfrage" {
		t.Errorf("files.data_dir = %q", cfg.Files.DataDir)
	}
	if len(cfg.Auth.APIKeys) != 2 {
		t.Fatalf("auth.api_keys length = %d, want 2", len(cfg.Auth.APIKeys))
	}
	if k := cfg.Auth.APIKeys[1]; k.Subject != "kiosk" || k.ServiceTier != "public" || len(k.Scopes) != 1 || k.Scopes[0] != "responses:write" {
		t.Errorf("auth.api_keys[1] = %+v", k)
	}
	if tier := cfg.Auth.RateLimit.Tiers["public"]; tier.RequestsPerMinute != 30 || tier.Burst != 5 {
		t.Errorf("auth.rate_limit.tiers.public = %+v", tier)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Debug != "storage,lifecycle" {
		t.Errorf("logging = %+v", cfg.Logging)
	}

	// Unset fields keep their defaults.
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("server.write_timeout = %v, want default 60s", cfg.Server.WriteTimeout)
	}
	if cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("observability.metrics.path = %q, want default", cfg.Observability.Metrics.Path)
	}
}

func TestUnknownYAMLKeyIsRejected(t *testing.T) {
	path := writeTemp(t, "config-*.yaml", `
storage:
  drvier: postgres
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "drvier") {
		t.Errorf("Load() error = %v, want unknown field error", err)
	}
}

func TestEmptyYAMLFile(t *testing.T) {
	path := writeTemp(t, "config-*.yaml", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want default", cfg.Server.Port)
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeTemp(t, "config-*.yaml", `
server:
  port: 9090
storage:
  driver: sqlite
`)
	t.Setenv("UMFRAGE_PORT", "7070")
	t.Setenv("UMFRAGE_STORAGE_DRIVER", "mysql")
	t.Setenv("UMFRAGE_STORAGE_DSN", "umfrage:pw@tcp(db:3306)/umfrage")
	t.Setenv("UMFRAGE_DATA_DIR", "/srv/umfrage")
	t.Setenv("UMFRAGE_MIGRATE_ON_START", "false")
	t.Setenv("UMFRAGE_AUTH_TYPE", "apikey")
	t.Setenv("UMFRAGE_API_KEYS", `[{"key":"sk-env","subject":"env-user","scopes":["*"]}]`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070 (env wins over file)", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "mysql" || cfg.Storage.DSN != "umfrage:pw@tcp(db:3306)/umfrage" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Files.DataDir != "/srv/umfrage" {
		t.Errorf("files.data_dir = %q", cfg.Files.DataDir)
	}
	if cfg.Storage.MigrateOnStart {
		t.Error("storage.migrate_on_start = true, want false")
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Subject != "env-user" {
		t.Errorf("auth.api_keys = %+v", cfg.Auth.APIKeys)
	}
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := map[string]string{
		"UMFRAGE_PORT":             "eighty",
		"UMFRAGE_MIGRATE_ON_START": "maybe",
		"UMFRAGE_API_KEYS":         "not json",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("UMFRAGE_CONFIG", "")
			t.Setenv(key, val)
			_, err := Load(writeTemp(t, "config-*.yaml", ""))
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("Load() error = %v, want it to name %s", err, key)
			}
		})
	}
}

func TestFileReferences(t *testing.T) {
	dsnFile := writeTemp(t, "dsn-*.txt", "  postgres://from-file/umfrage\n")
	keyFile := writeTemp(t, "key-*.txt", "sk-from-file\n")
	secretFile := writeTemp(t, "secret-*.txt", "jwt-secret\n")

	path := writeTemp(t, "config-*.yaml", `
storage:
  driver: postgres
  dsn: ""
  dsn_file: `+dsnFile+`
auth:
  type: jwt
  jwt:
    secret_file: `+secretFile+`
  api_keys:
    - key_file: `+keyFile+`
      subject: file-user
    - key: sk-explicit
      key_file: `+keyFile+`
      subject: explicit-user
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.DSN != "postgres://from-file/umfrage" {
		t.Errorf("storage.dsn = %q", cfg.Storage.DSN)
	}
	if cfg.Auth.JWT.Secret != "jwt-secret" {
		t.Errorf("auth.jwt.secret = %q", cfg.Auth.JWT.Secret)
	}
	if cfg.Auth.APIKeys[0].Key != "sk-from-file" {
		t.Errorf("auth.api_keys[0].key = %q", cfg.Auth.APIKeys[0].Key)
	}
	if cfg.Auth.APIKeys[1].Key != "sk-explicit" {
		t.Errorf("auth.api_keys[1].key = %q, explicit value should win over file", cfg.Auth.APIKeys[1].Key)
	}
}

func TestMissingSecretFile(t *testing.T) {
	path := writeTemp(t, "config-*.yaml", `
storage:
  dsn: ""
  dsn_file: /nonexistent/dsn
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "storage.dsn_file") {
		t.Errorf("Load() error = %v, want storage.dsn_file error", err)
	}
}

func TestFileDiscovery(t *testing.T) {
	explicit := writeTemp(t, "config-*.yaml", "server:\n  port: 8001\n")
	cfg, err := Load(explicit)
	if err != nil {
		t.Fatalf("Load(explicit) error: %v", err)
	}
	if cfg.Server.Port != 8001 {
		t.Errorf("explicit path: port = %d, want 8001", cfg.Server.Port)
	}

	t.Setenv("UMFRAGE_CONFIG", writeTemp(t, "env-*.yaml", "server:\n  port: 8002\n"))
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(UMFRAGE_CONFIG) error: %v", err)
	}
	if cfg.Server.Port != 8002 {
		t.Errorf("UMFRAGE_CONFIG: port = %d, want 8002", cfg.Server.Port)
	}

	t.Setenv("UMFRAGE_CONFIG", "")
	if got := discoverConfigFile(""); got != "" && got != "/etc/umfrage/config.yaml" {
		t.Errorf("discoverConfigFile() = %q, want no file in the package directory", got)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "oracle" }, "storage.driver"},
		{"missing dsn", func(c *Config) { c.Storage.DSN = "" }, "storage.dsn"},
		{"missing data dir", func(c *Config) { c.Files.DataDir = "" }, "files.data_dir"},
		{"unknown auth", func(c *Config) { c.Auth.Type = "oauth2" }, "auth.type"},
		{"apikey without keys", func(c *Config) { c.Auth.Type = "apikey" }, "auth.api_keys"},
		{"apikey without subject", func(c *Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []APIKeyConfig{{Key: "k"}}
		}, "subject is required"},
		{"jwt without secret", func(c *Config) { c.Auth.Type = "jwt" }, "auth.jwt.secret"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"upload limit", func(c *Config) { c.Server.MaxUploadBytes = 0 }, "server.max_upload_bytes"},
		{"valid jwt", func(c *Config) {
			c.Auth.Type = "jwt"
			c.Auth.JWT.Secret = "s"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidationReportsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Storage.Driver = "oracle"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"server.port", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

// writeTemp creates a file with content in a test temp dir and returns its path.
func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return filepath.Clean(f.Name())
}
