package main

import (
	"github.com/spf13/cobra"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/storage"
)

func (c *cli) newResponsesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Inspect survey responses",
	}

	var after int64
	var limit int
	list := &cobra.Command{
		Use:   "list <survey-id>",
		Short: "List responses of a survey",
		Long:  "List responses of a survey ordered by id. Without --limit every response is printed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("survey id", args[0])
			if err != nil {
				return err
			}
			if limit > 0 || after > 0 {
				page, err := c.app.Service.ListResponses(cmd.Context(), id, storage.ListOptions{After: after, Limit: limit})
				if err != nil {
					return err
				}
				return printJSON(cmd, page)
			}
			rows, err := c.app.Service.AllResponses(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []*api.ResponseRow{}
			}
			return printJSON(cmd, rows)
		},
	}
	list.Flags().Int64Var(&after, "after", 0, "only responses with a greater id")
	list.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <survey-id> <response-id>",
		Short: "Show one response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := parseID("survey id", args[0])
			if err != nil {
				return err
			}
			rid, err := parseID("response id", args[1])
			if err != nil {
				return err
			}
			row, err := c.app.Service.GetResponse(cmd.Context(), sid, rid)
			if err != nil {
				return err
			}
			return printJSON(cmd, row)
		},
	})
	return cmd
}
