package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrsinham/rtcurate/internal/ledger"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var (
		ledgerPath string
		output     string
		runID      string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the outcomes of the last recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ledgerPath
			if path == "" {
				cfg, err := ctx.loadConfig(cmd)
				if err != nil {
					return err
				}
				if output != "" {
					cfg.OutputDir = output
				}
				cfg.Normalize()
				path = cfg.LedgerPath()
			}
			if path == "" {
				return errors.New("no ledger: pass --ledger, --output or a config with output_dir")
			}

			store, err := ledger.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer store.Close()

			var run ledger.Run
			if runID != "" {
				run, err = store.GetRun(cmd.Context(), runID)
			} else {
				run, err = store.LastRun(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			if asJSON {
				return writeJSON(cmd, newRunView(run))
			}
			printRun(cmd.OutOrStdout(), run, isTerminal(cmd.OutOrStdout()))
			return nil
		},
	}

	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "Ledger database path")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory whose default ledger to read")
	cmd.Flags().StringVar(&runID, "run", "", "Run id (default: the last run)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
