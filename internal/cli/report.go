package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crate-tool/internal/app"
	"crate-tool/internal/types"
)

type healthReportOptions struct {
	Output string
}

func newHealthReportCommand() *cobra.Command {
	opts := healthReportOptions{}
	cmd := &cobra.Command{
		Use:   "health-report",
		Short: "Classify every legacy crate by how far it is from migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealthReport(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Output, "report", "", "Write the report as YAML to this path")
	_ = viper.BindPFlag("report", cmd.Flags().Lookup("report"))
	return cmd
}

func runHealthReport(ctx context.Context, cmd *cobra.Command, opts healthReportOptions) error {
	service := newAppService()
	report, err := service.HealthReport(ctx, app.HealthReportRequest{
		Output: resolveString(cmd, opts.Output, "report", "report"),
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printReportBucket(out, "migratable", report.Migratable)
	printReportBucket(out, "eligible but not migratable", report.EligibleNotMigratable)
	printReportBucket(out, "ineligible", report.Ineligible)
	printReportBucket(out, "superfluous", report.Superfluous)
	return nil
}

type suggestOptions struct {
	Relaxed bool
}

func newSuggestUpdatesCommand() *cobra.Command {
	opts := suggestOptions{}
	cmd := &cobra.Command{
		Use:   "suggest-updates",
		Short: "List managed crates with newer vendored versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSuggestUpdates(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Relaxed, "relaxed", false, "Treat 0.x minor bumps as compatible")
	_ = viper.BindPFlag("relaxed", cmd.Flags().Lookup("relaxed"))
	return cmd
}

func runSuggestUpdates(ctx context.Context, cmd *cobra.Command, opts suggestOptions) error {
	rule := types.RuleStrict
	if resolveBool(cmd, opts.Relaxed, "relaxed", "relaxed") {
		rule = types.RuleRelaxed
	}
	service := newAppService()
	suggestions, err := service.SuggestUpdates(ctx, app.SuggestRequest{Rule: rule})
	if err != nil {
		return err
	}
	for _, suggestion := range suggestions {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", suggestion.Name, suggestion.OldVersion, suggestion.Version)
	}
	return nil
}

func newFixLicensesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fix-licenses",
		Short: "Rewrite MODULE_LICENSE_* markers of managed crates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := newAppService().FixLicenses(cmd.Context())
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}
}

func newFixMetadataCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fix-metadata",
		Short: "Bring METADATA of managed crates in line with Cargo.toml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed, err := newAppService().FixMetadata(cmd.Context())
			for _, name := range changed {
				fmt.Fprintf(cmd.OutOrStdout(), "updated: %s\n", name)
			}
			return err
		},
	}
}
