package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate reports every invalid setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be > 0, got %d", c.Server.MaxUploadBytes))
	}

	switch c.Storage.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be \"sqlite\", \"postgres\" or \"mysql\", got %q", c.Storage.Driver))
	}
	if c.Storage.DSN == "" && c.Storage.DSNFile == "" {
		errs = append(errs, errors.New("storage.dsn or storage.dsn_file is required"))
	}
	if c.Storage.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("storage.max_conns must be >= 0, got %d", c.Storage.MaxConns))
	}

	if c.Files.DataDir == "" {
		errs = append(errs, errors.New("files.data_dir is required"))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, errors.New("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("auth.rate_limit.requests_per_minute must be >= 0"))
	}

	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
