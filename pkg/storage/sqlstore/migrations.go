package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations
var migrationFiles embed.FS

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`

// Migrate applies pending schema migrations for the active dialect. Applied
// versions are tracked in the schema_migrations table.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.exec(ctx, "migrate", schemaMigrationsDDL); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	dir := "migrations/" + db.dialect.name
	entries, err := migrationFiles.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		// "001_create_surveys.sql" -> 1
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if applied[version] {
			continue
		}

		content, err := migrationFiles.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		slog.Info("applying migration", "driver", db.dialect.name, "file", entry.Name(), "version", version)

		for _, stmt := range splitStatements(string(content)) {
			if _, err := db.exec(ctx, "migrate", stmt); err != nil {
				return fmt.Errorf("applying migration %s: %w", entry.Name(), err)
			}
		}

		ins := newBuilder(db.dialect).write("INSERT INTO schema_migrations (version) VALUES (").arg(version).write(")")
		if _, err := db.exec(ctx, "migrate", ins.String(), ins.args...); err != nil {
			return fmt.Errorf("recording migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := db.query(ctx, "migrate", "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("reading schema_migrations: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// splitStatements splits a migration file on semicolons that end a line.
// Migrations never contain semicolons inside literals.
func splitStatements(content string) []string {
	var stmts []string
	for _, part := range strings.Split(content, ";\n") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if part != "" {
			stmts = append(stmts, part)
		}
	}
	return stmts
}
