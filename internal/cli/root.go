package cli

import (
	"errors"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "CRATE_TOOL"

type RootConfig struct {
	ConfigFile       string
	LogLevel         string
	RepoRoot         string
	ManagedPath      string
	LegacyPath       string
	GeneratorCommand string
	PatchCommand     string
	CargoCommand     string
}

func Execute() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg(errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "crate-tool",
		Short:         "Migrate, regenerate and check vendored Rust crates",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			cmd.SetContext(log.Logger.WithContext(cmd.Context()))
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	flags.StringVar(&cfg.RepoRoot, "repo-root", ".", "Root of the source tree")
	flags.StringVar(&cfg.ManagedPath, "managed-path", "", "Managed crate tree, relative to the repo root")
	flags.StringVar(&cfg.LegacyPath, "legacy-path", "", "Legacy crate tree, relative to the repo root")
	flags.StringVar(&cfg.GeneratorCommand, "generator-command", "", "Build file generator binary (default cargo_embargo)")
	flags.StringVar(&cfg.PatchCommand, "patch-command", "", "Patch binary (default patch)")
	flags.StringVar(&cfg.CargoCommand, "cargo-command", "", "Cargo binary (default cargo)")
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("repo_root", flags.Lookup("repo-root"))
	_ = viper.BindPFlag("managed_path", flags.Lookup("managed-path"))
	_ = viper.BindPFlag("legacy_path", flags.Lookup("legacy-path"))
	_ = viper.BindPFlag("generator_command", flags.Lookup("generator-command"))
	_ = viper.BindPFlag("patch_command", flags.Lookup("patch-command"))
	_ = viper.BindPFlag("cargo_command", flags.Lookup("cargo-command"))

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newMigrationHealthCommand())
	cmd.AddCommand(newRegenerateCommand())
	cmd.AddCommand(newPreuploadCheckCommand())
	cmd.AddCommand(newUpdateCommand())
	cmd.AddCommand(newImportCommand())
	cmd.AddCommand(newAnalyzeImportCommand())
	cmd.AddCommand(newHealthReportCommand())
	cmd.AddCommand(newSuggestUpdatesCommand())
	cmd.AddCommand(newFixLicensesCommand())
	cmd.AddCommand(newFixMetadataCommand())
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("crate-tool")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/crate-tool")
	if err := viper.ReadInConfig(); err != nil {
		return nil
	}
	return nil
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// exitCodeForError maps error codes to exit statuses: 2 for bad input, 3
// for denylisted crates, 4 for unhealthy crates or inconsistent trees and
// 5 for missing crates or internal failures.
func exitCodeForError(err error) int {
	code := errbuilder.CodeOf(err)
	switch code {
	case errbuilder.CodeInvalidArgument, errbuilder.CodeAlreadyExists:
		return 2
	case errbuilder.CodePermissionDenied:
		return 3
	case errbuilder.CodeFailedPrecondition:
		return 4
	case errbuilder.CodeNotFound, errbuilder.CodeInternal:
		return 5
	default:
		return 1
	}
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
