// Command umfragectl administers an umfrage installation directly against
// its database and data directory.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/umfrage/internal/app"
	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/config"
	"github.com/rhuss/umfrage/pkg/debug"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli holds state shared by all subcommands.
type cli struct {
	configPath string
	app        *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "umfragectl",
		Short:         "Administer umfrage surveys and responses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app != nil {
				return c.app.Close()
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: $UMFRAGE_CONFIG, ./config.yaml or /etc/umfrage/config.yaml)")

	root.AddCommand(c.newMigrateCmd())
	root.AddCommand(c.newSurveyCmd())
	root.AddCommand(c.newResponsesCmd())
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	if cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cmd.ErrOrStderr(),
	})
	if cmd.Name() == "migrate" {
		cfg.Storage.MigrateOnStart = false
	}

	a, err := app.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.DB.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", c.app.DB.Driver())
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(name, s string) (int64, error) {
	id, ok := api.ParseID(s)
	if !ok {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return id, nil
}
