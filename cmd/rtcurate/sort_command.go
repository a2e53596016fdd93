package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mrsinham/rtcurate/internal/config"
	"github.com/mrsinham/rtcurate/internal/dicom"
	"github.com/mrsinham/rtcurate/internal/ledger"
	"github.com/mrsinham/rtcurate/internal/pipeline"
	"github.com/mrsinham/rtcurate/internal/placement"
	"github.com/mrsinham/rtcurate/internal/routing"
	"github.com/mrsinham/rtcurate/internal/toolexec"
)

type sortFlags struct {
	input           string
	output          string
	work            string
	workers         int
	fromHeader      bool
	subjectPosition int
	noConvert       bool
	keepWork        bool
	clean           bool
	yes             bool
	json            bool
}

func newSortCommand(ctx *commandContext) *cobra.Command {
	var f sortFlags

	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Curate an input pile into the output tree",
		Long: `Groups every DICOM file of the input tree into series, routes them by
modality, resolves the plan, structure set, planning CT and dose chain of
every RT timepoint and writes the curated tree to the output directory.

Per-series failures are reported, never fatal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			applySortFlags(cmd, &f, &cfg)
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err := ctx.logger(cmd, cfg)
			if err != nil {
				return err
			}
			return runSort(cmd, cfg, f, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "Input directory")
	flags.StringVarP(&f.output, "output", "o", "", "Output directory")
	flags.StringVar(&f.work, "work", "", "Work directory (default: <output>.work)")
	flags.IntVar(&f.workers, "workers", 0, "Parallel workers (default: CPU cores)")
	flags.BoolVar(&f.fromHeader, "from-header", false, "Take subject names from PatientID instead of the path")
	flags.IntVar(&f.subjectPosition, "subject-position", 0, "Path component holding the subject name, negative counts from the end")
	flags.BoolVar(&f.noConvert, "no-convert", false, "Copy MR/OT series instead of converting them to volumes")
	flags.BoolVar(&f.keepWork, "keep-work", false, "Keep the work directory after the run")
	flags.BoolVar(&f.clean, "clean", false, "Clear a non-empty output directory before the run")
	flags.BoolVarP(&f.yes, "yes", "y", false, "Answer yes to confirmation prompts")
	flags.BoolVar(&f.json, "json", false, "Print the report as JSON")
	return cmd
}

// applySortFlags overrides cfg with the flags set on the command line.
func applySortFlags(cmd *cobra.Command, f *sortFlags, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.InputDir = f.input
	}
	if flags.Changed("output") {
		cfg.OutputDir = f.output
	}
	if flags.Changed("work") {
		cfg.WorkDir = f.work
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("from-header") {
		cfg.Identity.FromHeader = f.fromHeader
	}
	if flags.Changed("subject-position") {
		cfg.Identity.SubjectPosition = f.subjectPosition
	}
	if f.noConvert {
		cfg.Convert.Enabled = false
	}
}

func runSort(cmd *cobra.Command, cfg config.Config, f sortFlags, logger *slog.Logger) error {
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	lock, err := placement.Lock(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if err := prepareOutput(cmd, cfg.OutputDir, f); err != nil {
		return err
	}

	decompressor, converter, err := externalTools(cfg, logger)
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Options{
		InputDir:  cfg.InputDir,
		OutputDir: cfg.OutputDir,
		WorkDir:   cfg.WorkDir,
		KeepWork:  f.keepWork,
		Workers:   cfg.Workers,
		Reader: &dicom.Reader{
			Timeout:     cfg.ReadTimeout,
			MaxFileSize: dicom.DefaultMaxFileSize,
			Identity: dicom.IdentityPolicy{
				FromHeader:      cfg.Identity.FromHeader,
				SubjectPosition: cfg.Identity.SubjectPosition,
			},
		},
		Decompressor: decompressor,
		Converter:    converter,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	rep, err := p.Run(runCtx)
	if err != nil {
		return err
	}
	run := rep.LedgerRun()

	if path := cfg.LedgerPath(); path != "" {
		if err := recordRun(runCtx, path, run); err != nil {
			logger.Warn("run not recorded in the ledger", "path", path, "error", err)
		}
	}

	if f.json {
		return writeJSON(cmd, newRunView(run))
	}
	printRun(cmd.OutOrStdout(), run, isTerminal(cmd.OutOrStdout()))
	return nil
}

func recordRun(ctx context.Context, path string, run ledger.Run) error {
	store, err := ledger.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.RecordRun(ctx, run)
}

// externalTools builds the decompressor and converter. A missing gdcmconv
// only disables decompression; a missing converter is an error while
// conversion is enabled.
func externalTools(cfg config.Config, logger *slog.Logger) (dicom.Decompressor, routing.Converter, error) {
	reqs := []toolexec.Requirement{
		{Name: "decompressor", Command: cfg.Decompress.Command, Description: "rewrites compressed pixel data", Optional: true},
	}
	if cfg.Convert.Enabled {
		reqs = append(reqs, toolexec.Requirement{Name: "converter", Command: cfg.Convert.Command, Description: "converts MR/OT series to volumes"})
	}

	var (
		decompressor dicom.Decompressor
		converter    routing.Converter
	)
	for _, st := range toolexec.CheckBinaries(reqs) {
		if !st.Available {
			if st.Optional {
				logger.Warn("optional tool unavailable", "tool", st.Name, "detail", st.Detail)
				continue
			}
			return nil, nil, fmt.Errorf("%s unavailable: %s (use --no-convert to copy MR/OT series instead)", st.Name, st.Detail)
		}
		switch st.Name {
		case "decompressor":
			g, err := dicom.NewGDCM(st.Command, cfg.Decompress.Timeout, dicom.WithRetries(cfg.Decompress.Retries))
			if err != nil {
				return nil, nil, err
			}
			decompressor = g
		case "converter":
			c, err := routing.NewDcm2niix(st.Command, cfg.Convert.Timeout)
			if err != nil {
				return nil, nil, err
			}
			converter = c
		}
	}
	return decompressor, converter, nil
}

// prepareOutput refuses a non-empty output directory unless --clean is set
// or the user confirms clearing it on a terminal.
func prepareOutput(cmd *cobra.Command, dir string, f sortFlags) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	interactive := isTerminal(cmd.InOrStdin())
	switch {
	case f.clean && (f.yes || !interactive):
	case interactive && !f.yes:
		confirmed, err := confirmClear(dir, len(entries))
		if err != nil {
			return err
		}
		if !confirmed {
			return fmt.Errorf("output directory %s is not empty", dir)
		}
	default:
		return fmt.Errorf("output directory %s is not empty (use --clean to clear it)", dir)
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clear output directory: %w", err)
		}
	}
	return nil
}

func confirmClear(dir string, n int) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Clear %s?", dir)).
		Description(fmt.Sprintf("%d entries will be deleted before the run.", n)).
		Affirmative("Clear").
		Negative("Abort").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	return ok, nil
}
