// Package pipeline runs one curation pass over an input tree: group the
// files into series, stage them, route them by modality, resolve the RT
// chain of every timepoint and merge the rest into the output tree.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mrsinham/rtcurate/internal/dedup"
	"github.com/mrsinham/rtcurate/internal/dicom"
	"github.com/mrsinham/rtcurate/internal/grouping"
	"github.com/mrsinham/rtcurate/internal/logging"
	"github.com/mrsinham/rtcurate/internal/outcome"
	"github.com/mrsinham/rtcurate/internal/placement"
	"github.com/mrsinham/rtcurate/internal/routing"
	"github.com/mrsinham/rtcurate/internal/rtgraph"
)

// Work directory layout.
const (
	PreparedDir = "prepared"
	SortedDir   = "sorted"
)

// RecordReader parses one file's header.
type RecordReader interface {
	Read(ctx context.Context, path string) (*dicom.Record, error)
}

// Options configures a Pipeline. Decompressor and Converter may be nil.
type Options struct {
	InputDir  string
	OutputDir string
	// WorkDir defaults to <OutputDir>.work.
	WorkDir string
	// KeepWork leaves the work directory in place after the run.
	KeepWork bool
	Workers  int

	Reader       RecordReader
	Decompressor dicom.Decompressor
	Converter    routing.Converter
	Logger       *slog.Logger
}

// Pipeline runs curation passes.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.InputDir == "" || opts.OutputDir == "" {
		return nil, errors.New("pipeline: input and output directories are required")
	}
	if opts.Reader == nil {
		return nil, errors.New("pipeline: a record reader is required")
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Clean(opts.OutputDir) + ".work"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{opts: opts, logger: logger}, nil
}

// Run executes one pass. Per-series and per-timepoint failures end up in
// the report; the returned error is reserved for run-level failures and
// cancellation, in which case the partial report is still returned.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	rep := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		InputDir:  p.opts.InputDir,
		OutputDir: p.opts.OutputDir,
	}
	logger := logging.WithRun(p.logger, rep.RunID)
	logger.Info("run started", "input", p.opts.InputDir, "output", p.opts.OutputDir, "workers", p.opts.Workers)

	err := p.run(ctx, logger, &rep)
	rep.FinishedAt = time.Now().UTC()
	if err != nil {
		logger.Error("run aborted", "error", err)
		return rep, err
	}

	if !p.opts.KeepWork {
		if err := os.RemoveAll(p.opts.WorkDir); err != nil {
			logger.Warn("could not remove work directory", "path", p.opts.WorkDir, "error", err)
		}
	}
	summary := rep.Summary()
	logger.Info("run finished",
		"files", rep.Files,
		"unreadable", len(rep.Unreadable),
		"series", rep.Series,
		"timepoints", rep.Timepoints,
		"success", summary[outcome.Success],
		"ct_only", summary[outcome.CTOnlyFallback],
		"unknown_modality", summary[outcome.ModalityUnknown],
		"conversion_errors", summary[outcome.ConversionError],
		"volumes", len(rep.Volumes),
		"duration", rep.FinishedAt.Sub(rep.StartedAt),
	)
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, rep *Report) error {
	prepared := filepath.Join(p.opts.WorkDir, PreparedDir)
	sorted := filepath.Join(p.opts.WorkDir, SortedDir)
	for _, dir := range []string{prepared, sorted} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("reset work directory: %w", err)
		}
	}

	g, err := grouping.Group(ctx, p.opts.InputDir, p.opts.Reader, grouping.Options{
		Workers: p.opts.Workers,
		Logger:  logging.Component(logger, "grouping"),
	})
	if err != nil {
		return fmt.Errorf("group input: %w", err)
	}
	rep.Files, rep.Unreadable = g.Files, g.Unreadable

	series, err := p.prepare(ctx, g, placement.New(prepared, logger))
	if err != nil {
		return err
	}
	rep.Series = len(series)

	queue := &routing.Queue{}
	routeLogger := logging.Component(logger, "routing")
	router := &routing.Router{
		Placer:    placement.New(sorted, routeLogger),
		Reader:    p.opts.Reader,
		Dedup:     &dedup.Resolver{Decompressor: p.opts.Decompressor, Reader: p.opts.Reader, Logger: routeLogger},
		Converter: p.opts.Converter,
		Queue:     queue,
		Logger:    routeLogger,
	}
	routed, ran := runPool(ctx, p.opts.Workers, series, router.Route)
	for i, o := range routed {
		if ran[i] {
			rep.Outcomes = append(rep.Outcomes, o)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timepoints, leftovers, err := scanSorted(sorted)
	if err != nil {
		return err
	}

	rtLogger := logging.Component(logger, "rtgraph")
	out := placement.New(p.opts.OutputDir, logger)
	resolver := &rtgraph.Resolver{
		Placer:       out,
		Reader:       p.opts.Reader,
		Decompressor: p.opts.Decompressor,
		Logger:       rtLogger,
	}
	results, ran := runPool(ctx, p.opts.Workers, timepoints, resolver.Resolve)
	for i, res := range results {
		if ran[i] {
			rep.Timepoints++
			rep.Outcomes = append(rep.Outcomes, res.Outcome)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := merge(ctx, out, leftovers); err != nil {
		return err
	}
	for _, v := range queue.Items() {
		rep.Volumes = append(rep.Volumes, relocate(v, sorted, p.opts.OutputDir))
	}

	outcome.Sort(rep.Outcomes)
	rep.Collisions = out.Collisions()
	rep.Warnings = rep.warnings()
	for _, w := range rep.Warnings {
		logger.Warn(w)
	}
	return nil
}

// prepare copies every bucket into <prepared>/<subject>/<timepoint>/<key>.
func (p *Pipeline) prepare(ctx context.Context, g grouping.Grouping, placer *placement.Placer) ([]routing.Series, error) {
	buckets := g.Buckets()
	type staged struct {
		series routing.Series
		err    error
	}
	results, ran := runPool(ctx, p.opts.Workers, buckets, func(ctx context.Context, b grouping.Bucket) staged {
		s := routing.Series{
			Subject:   grouping.SafeName(b.Subject),
			Timepoint: grouping.SafeName(b.Timepoint),
			Key:       b.Key,
		}
		dir, err := placer.Dir(s.Subject, s.Timepoint, b.Key)
		if err != nil {
			return staged{err: err}
		}
		for _, rec := range b.Records {
			if err := ctx.Err(); err != nil {
				return staged{err: err}
			}
			if _, err := placer.PlaceFile(rec.Path, dir, ""); err != nil {
				return staged{err: fmt.Errorf("stage %s: %w", rec.Path, err)}
			}
		}
		s.Dir = dir
		return staged{series: s}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series := make([]routing.Series, 0, len(results))
	for i, r := range results {
		if !ran[i] {
			continue
		}
		if r.err != nil {
			return nil, fmt.Errorf("prepare series: %w", r.err)
		}
		series = append(series, r.series)
	}
	return series, nil
}

func relocate(path, from, to string) string {
	rel, err := filepath.Rel(from, path)
	if err != nil {
		return path
	}
	return filepath.Join(to, rel)
}
