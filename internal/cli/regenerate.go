package cli

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crate-tool/internal/app"
)

type regenerateOptions struct {
	All            bool
	UpdateMetadata bool
	FailFast       bool
}

func newRegenerateCommand() *cobra.Command {
	opts := regenerateOptions{}
	cmd := &cobra.Command{
		Use:   "regenerate [crate...]",
		Short: "Regenerate managed crates from the vendored snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegenerate(cmd.Context(), cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.All, "all", false, "Regenerate every crate in the pseudo-crate")
	cmd.Flags().BoolVar(&opts.UpdateMetadata, "update-metadata", false, "Refresh METADATA when the version changes")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "Stop at the first unhealthy crate")
	_ = viper.BindPFlag("update_metadata", cmd.Flags().Lookup("update-metadata"))
	_ = viper.BindPFlag("fail_fast", cmd.Flags().Lookup("fail-fast"))
	return cmd
}

func runRegenerate(ctx context.Context, cmd *cobra.Command, names []string, opts regenerateOptions) error {
	if opts.All == (len(names) > 0) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("pass either crate names or --all")
	}
	service := newAppService()
	summary, err := service.Regenerate(ctx, app.RegenerateRequest{
		Names:          names,
		UpdateMetadata: resolveBool(cmd, opts.UpdateMetadata, "update_metadata", "update-metadata"),
		FailFast:       resolveBool(cmd, opts.FailFast, "fail_fast", "fail-fast"),
	})
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

type preuploadOptions struct {
	Files []string
}

func newPreuploadCheckCommand() *cobra.Command {
	opts := preuploadOptions{}
	cmd := &cobra.Command{
		Use:   "preupload-check [file...]",
		Short: "Verify that changed crates regenerate to what is committed",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Files = args
			return runPreuploadCheck(cmd.Context(), cmd, opts)
		},
	}
	return cmd
}

func runPreuploadCheck(ctx context.Context, cmd *cobra.Command, opts preuploadOptions) error {
	service := newAppService()
	summary, err := service.PreuploadCheck(ctx, app.PreuploadRequest{Files: opts.Files})
	printSummary(cmd.OutOrStdout(), summary)
	return err
}
