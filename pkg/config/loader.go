package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, the discovered YAML file,
// environment variables and _file references, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// discoverConfigFile returns the first of: the explicit path, UMFRAGE_CONFIG,
// ./config.yaml and /etc/umfrage/config.yaml that applies, or "".
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("UMFRAGE_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/umfrage/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile parses path over cfg. Unknown keys are rejected so typos
// in the file do not silently fall back to defaults.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps UMFRAGE_* variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"UMFRAGE_STORAGE_DRIVER": &cfg.Storage.Driver,
		"UMFRAGE_STORAGE_DSN":    &cfg.Storage.DSN,
		"UMFRAGE_DATA_DIR":       &cfg.Files.DataDir,
		"UMFRAGE_AUTH_TYPE":      &cfg.Auth.Type,
		"UMFRAGE_JWT_SECRET":     &cfg.Auth.JWT.Secret,
		"UMFRAGE_LOG_FORMAT":     &cfg.Logging.Format,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("UMFRAGE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UMFRAGE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("UMFRAGE_MIGRATE_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UMFRAGE_MIGRATE_ON_START: %w", err)
		}
		cfg.Storage.MigrateOnStart = b
	}

	// UMFRAGE_API_KEYS: JSON array of API key entries.
	if v := os.Getenv("UMFRAGE_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("UMFRAGE_API_KEYS: %w", err)
		}
		cfg.Auth.APIKeys = keys
	}
	return nil
}

// resolveFileReferences fills empty secret fields from their _file
// counterparts. An explicit value wins over the file.
func resolveFileReferences(cfg *Config) error {
	if cfg.Storage.DSNFile != "" && cfg.Storage.DSN == "" {
		val, err := readSecretFile(cfg.Storage.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.dsn_file: %w", err)
		}
		cfg.Storage.DSN = val
	}

	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}
	return nil
}

// readSecretFile returns the file content without surrounding whitespace.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
