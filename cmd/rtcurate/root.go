package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mrsinham/rtcurate/internal/config"
	"github.com/mrsinham/rtcurate/internal/logging"
)

// commandContext carries the persistent flags shared by every command.
type commandContext struct {
	configPath string
	logLevel   string
	logFormat  string
}

// loadConfig reads the configuration file (defaults when unset) and applies
// the persistent logging flags.
func (c *commandContext) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = c.logFormat
	}
	return cfg, nil
}

func (c *commandContext) logger(cmd *cobra.Command, cfg config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "rtcurate",
		Short:         "Curate radiotherapy DICOM piles into a per-subject, per-timepoint tree",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "console", "Log format: console or json")

	rootCmd.AddCommand(newSortCommand(ctx))
	rootCmd.AddCommand(newSynthCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newReportCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
