package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/umfrage/pkg/api"
)

func (c *cli) newSurveyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "survey",
		Short: "Manage surveys",
	}
	cmd.AddCommand(c.newSurveyCreateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all surveys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.app.Service.ListSurveys(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <survey-id>",
		Short: "Show one survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("survey id", args[0])
			if err != nil {
				return err
			}
			sv, err := c.app.Service.GetSurvey(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, sv)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "provision <survey-id>",
		Short: "Create missing directories and the response table of a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("survey id", args[0])
			if err != nil {
				return err
			}
			if err := c.app.Service.Provision(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "survey %d provisioned\n", id)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <survey-id>",
		Short: "Delete a survey with its responses and files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("survey id", args[0])
			if err != nil {
				return err
			}
			if err := c.app.Service.RemoveSurvey(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "survey %d removed\n", id)
			return nil
		},
	})
	return cmd
}

func (c *cli) newSurveyCreateCmd() *cobra.Command {
	var (
		name       string
		lang       string
		langs      []string
		schemaPath string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a survey and provision its storage",
		Long: `Create a survey and provision its storage.

The schema file holds a JSON array of fields:

  [{"component_code": "Q1", "column": "value", "data_type": "STRING"}]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sv := &api.Survey{Name: name, DefaultLang: lang, AdditionalLangs: langs}
			if schemaPath != "" {
				data, err := os.ReadFile(schemaPath)
				if err != nil {
					return fmt.Errorf("read schema: %w", err)
				}
				if err := json.Unmarshal(data, &sv.Schema); err != nil {
					return fmt.Errorf("parse schema %s: %w", schemaPath, err)
				}
			}
			created, err := c.app.Service.CreateSurvey(cmd.Context(), sv)
			if err != nil {
				return err
			}
			return printJSON(cmd, created)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "survey name (required)")
	cmd.Flags().StringVar(&lang, "lang", "en", "default language")
	cmd.Flags().StringSliceVar(&langs, "langs", nil, "additional languages")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to a JSON schema file")
	cmd.MarkFlagRequired("name")
	return cmd
}
