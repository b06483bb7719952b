package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"crate-tool/internal/app"
)

func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <crate> <version>",
		Short: "Move a managed crate and its companions to a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), cmd, args[0], args[1])
		},
	}
	return cmd
}

func runUpdate(ctx context.Context, cmd *cobra.Command, name string, version string) error {
	service := newAppService()
	summary, err := service.Update(ctx, app.UpdateRequest{Name: name, Version: version})
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <crate>",
		Short: "Add a crate and its missing dependencies to the managed tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd, args[0])
		},
	}
	return cmd
}

func runImport(ctx context.Context, cmd *cobra.Command, name string) error {
	service := newAppService()
	result, err := service.Import(ctx, app.ImportRequest{Name: name})
	for _, added := range result.Added {
		fmt.Fprintf(cmd.OutOrStdout(), "added: %s\n", added)
	}
	printSummary(cmd.OutOrStdout(), result.Summary)
	return err
}

func newAnalyzeImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-import <crate>",
		Short: "Check whether the dependencies of a vendored crate are already in the tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := newAppService().AnalyzeImport(cmd.Context(), app.AnalyzeImportRequest{Name: args[0]})
			if err != nil {
				return err
			}
			printImportAnalysis(cmd.OutOrStdout(), analysis)
			return nil
		},
	}
}
