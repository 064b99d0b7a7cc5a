// Package app wires the stores and the survey service from a loaded
// configuration. It is shared by the server and the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/config"
	"github.com/rhuss/umfrage/pkg/storage/files"
	"github.com/rhuss/umfrage/pkg/storage/sqlstore"
	"github.com/rhuss/umfrage/pkg/survey"
)

// App holds the opened stores and the service built on them.
type App struct {
	DB      *sqlstore.DB
	Files   *files.Store
	Service *survey.Service
}

// Open connects to the database, opens the data directory and builds the
// survey service.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := sqlstore.Open(ctx, StorageConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	fs, err := files.New(cfg.Files.DataDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening data directory: %w", err)
	}

	svc, err := survey.New(db.Surveys(), db, fs, survey.Config{Validation: api.DefaultValidationConfig()})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating survey service: %w", err)
	}
	return &App{DB: db, Files: fs, Service: svc}, nil
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.DB.Close()
}

// StorageConfig maps the storage section onto the SQL store settings.
func StorageConfig(c config.StorageConfig) sqlstore.Config {
	return sqlstore.Config{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxConns:        c.MaxConns,
		MaxIdleConns:    c.MaxIdleConns,
		MaxConnLifetime: c.ConnMaxLifetime,
		MigrateOnStart:  c.MigrateOnStart,
	}
}
