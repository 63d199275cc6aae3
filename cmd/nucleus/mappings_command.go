package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zime-ai/nucleus/internal/domain/dealstage"
)

func newMappingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect confirmed deal stage mappings",
	}
	cmd.AddCommand(newMappingsListCommand(ctx))
	return cmd
}

func newMappingsListCommand(ctx *commandContext) *cobra.Command {
	var filter dealstage.MappingFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List confirmed mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			mappings, err := dealstage.NewMappingStore(db).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(mappings) == 0 {
				fmt.Fprintln(out, "No mappings confirmed yet")
				return nil
			}

			fmt.Fprintln(out, renderMappings(mappings))
			return nil
		},
	}
	cmd.Flags().IntVar(&filter.CompanyID, "company", 0, "Only mappings for this company id")
	cmd.Flags().IntVar(&filter.PipelineID, "pipeline", 0, "Only mappings for this pipeline id")
	return cmd
}
