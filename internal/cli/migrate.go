package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crate-tool/internal/app"
	"crate-tool/internal/types"
)

type migrateOptions struct {
	Unpinned []string
	FailFast bool
}

func newMigrateCommand() *cobra.Command {
	opts := migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate <crate>...",
		Short: "Move legacy crates into the managed tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd, args, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.Unpinned, "unpinned", nil, "Crates to register with a caret requirement instead of an exact version")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "Stop at the first unhealthy crate")
	_ = viper.BindPFlag("fail_fast", cmd.Flags().Lookup("fail-fast"))
	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, names []string, opts migrateOptions) error {
	service := newAppService()
	summary, err := service.Migrate(ctx, app.MigrateRequest{
		Names:    names,
		Unpinned: opts.Unpinned,
		FailFast: resolveBool(cmd, opts.FailFast, "fail_fast", "fail-fast"),
	})
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

type migrationHealthOptions struct {
	Unpinned bool
}

func newMigrationHealthCommand() *cobra.Command {
	opts := migrationHealthOptions{}
	cmd := &cobra.Command{
		Use:   "migration-health <crate>...",
		Short: "Check whether legacy crates can be migrated",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrationHealth(cmd.Context(), cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Unpinned, "unpinned", false, "Check against the newest compatible version instead of the legacy one")
	return cmd
}

func runMigrationHealth(ctx context.Context, cmd *cobra.Command, names []string, opts migrationHealthOptions) error {
	service := newAppService()
	summary := types.BatchSummary{}
	for _, name := range names {
		result, err := service.MigrationHealth(ctx, app.MigrationHealthRequest{Name: name, Unpinned: opts.Unpinned})
		if err != nil {
			return err
		}
		verdict := types.CrateVerdict{Name: result.Name, Version: result.Version, Verdict: types.VerdictHealthy}
		if !result.Healthy {
			verdict.Verdict = types.VerdictUnhealthy
			if len(result.Diagnostics) > 0 {
				verdict.Diagnostic = result.Diagnostics[0]
			}
		}
		summary.Verdicts = append(summary.Verdicts, verdict)
		for _, diagnostic := range result.Diagnostics {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", name, diagnostic)
		}
	}
	printSummary(cmd.OutOrStdout(), summary)
	return summary.Err()
}
