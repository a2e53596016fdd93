// Package routing dispatches prepared series by modality: RT and PET series
// are copied verbatim, MR and OT series are deduplicated and converted to
// volumes, anything else is parked under Unknown_modality.
package routing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mrsinham/rtcurate/internal/dedup"
	"github.com/mrsinham/rtcurate/internal/dicom"
	"github.com/mrsinham/rtcurate/internal/dicom/modalities"
	"github.com/mrsinham/rtcurate/internal/outcome"
	"github.com/mrsinham/rtcurate/internal/placement"
)

// Destination labels.
const (
	UnknownModalityLabel = "Unknown_modality"
	ConversionErrorLabel = "error_converting"
)

// Stage is the Outcome.Stage of routing outcomes.
const Stage = "route"

// RecordReader parses one file's header.
type RecordReader interface {
	Read(ctx context.Context, path string) (*dicom.Record, error)
}

// Series is a prepared series directory. Dir is a staging copy: routing may
// delete discarded files and decompress files inside it.
type Series struct {
	Subject   string
	Timepoint string
	Key       string
	Dir       string
}

// Router places series below Placer.Root. A nil Converter disables volume
// conversion; a nil Queue drops converted volume paths.
type Router struct {
	Placer    *placement.Placer
	Reader    RecordReader
	Dedup     *dedup.Resolver
	Converter Converter
	Queue     *Queue
	Logger    *slog.Logger
}

func (r *Router) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// Route places one series and reports what happened to it. Errors that stop
// the series from being placed at all are returned in Outcome.Err.
func (r *Router) Route(ctx context.Context, s Series) outcome.Outcome {
	out := outcome.Outcome{Subject: s.Subject, Timepoint: s.Timepoint, Series: s.Key, Stage: Stage}
	logger := r.logger().With("subject", s.Subject, "timepoint", s.Timepoint, "series", s.Key)

	records, err := r.readDir(ctx, s.Dir)
	if err != nil {
		out.Kind = outcome.ModalityUnknown
		out.Err = err
		return out
	}

	mod := modalities.Unknown
	if len(records) > 0 {
		mod = modalities.Normalize(records[0].Modality.Or(""))
	}

	switch mod.Route() {
	case modalities.RouteVerbatim:
		dest, err := r.place(s, string(mod))
		out.Kind, out.Detail, out.Err = outcome.Success, dest, err
		logger.Debug("series copied", "modality", mod, "dest", dest)

	case modalities.RouteConvert:
		return r.convert(ctx, s, mod, records, logger)

	default:
		dest, err := r.place(s, UnknownModalityLabel)
		out.Kind, out.Detail, out.Err = outcome.ModalityUnknown, dest, err
		logger.Info("unknown modality", "modality", rawModality(records), "dest", dest)
	}
	return out
}

func rawModality(records []*dicom.Record) string {
	if len(records) == 0 {
		return ""
	}
	return records[0].Modality.Or("")
}

func (r *Router) convert(ctx context.Context, s Series, mod modalities.Modality, records []*dicom.Record, logger *slog.Logger) outcome.Outcome {
	out := outcome.Outcome{Subject: s.Subject, Timepoint: s.Timepoint, Series: s.Key, Stage: Stage}

	resolver := r.Dedup
	if resolver == nil {
		resolver = &dedup.Resolver{}
	}
	res, err := resolver.Resolve(ctx, records)
	if err != nil {
		return r.conversionFailed(s, err, logger)
	}
	for _, d := range res.Discarded {
		if err := os.Remove(d.Record.Path); err != nil {
			logger.Warn("could not drop discarded file", "path", d.Record.Path, "error", err)
		}
	}
	if len(res.Discarded) > 0 {
		logger.Info("duplicates discarded", "discarded", len(res.Discarded), "kept", len(res.Canonical), "rules", res.Rules)
	}
	if len(res.Canonical) == 0 {
		return r.conversionFailed(s, fmt.Errorf("no canonical records left: %w", outcome.ErrConversionFailure), logger)
	}

	if r.Converter == nil {
		dest, err := r.place(s, string(mod))
		out.Kind, out.Detail, out.Err = outcome.Success, dest, err
		return out
	}

	scratch, err := os.MkdirTemp(filepath.Dir(s.Dir), ".convert-")
	if err != nil {
		out.Kind, out.Err = outcome.ConversionError, fmt.Errorf("create scratch directory: %w", err)
		return out
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	volume, err := r.Converter.Convert(ctx, s.Dir, scratch, s.Key)
	if err != nil {
		return r.conversionFailed(s, fmt.Errorf("%w: %w", outcome.ErrConversionFailure, err), logger)
	}

	dir, err := r.Placer.Dir(s.Subject, s.Timepoint, "")
	if err != nil {
		out.Kind, out.Err = outcome.ConversionError, err
		return out
	}
	if _, err := r.Placer.PlaceTree(s.Dir, dir, s.Key); err != nil {
		out.Kind, out.Err = outcome.ConversionError, err
		return out
	}
	placed, err := r.Placer.PlaceFile(volume, dir, "")
	if err != nil {
		out.Kind, out.Err = outcome.ConversionError, err
		return out
	}
	if r.Queue != nil {
		r.Queue.Push(placed)
	}
	logger.Info("series converted", "modality", mod, "volume", placed)

	out.Kind, out.Detail = outcome.Success, placed
	return out
}

func (r *Router) conversionFailed(s Series, cause error, logger *slog.Logger) outcome.Outcome {
	out := outcome.Outcome{
		Kind:      outcome.ConversionError,
		Subject:   s.Subject,
		Timepoint: s.Timepoint,
		Series:    s.Key,
		Stage:     Stage,
		Err:       cause,
	}
	dest, err := r.place(s, ConversionErrorLabel)
	if err != nil {
		out.Err = fmt.Errorf("%w (placing failed series: %v)", cause, err)
		return out
	}
	out.Detail = dest
	logger.Warn("conversion failed", "dest", dest, "error", cause)
	return out
}

// place copies the whole series directory to <subject>/<timepoint>/<label>/<key>.
func (r *Router) place(s Series, label string) (string, error) {
	dir, err := r.Placer.Dir(s.Subject, s.Timepoint, label)
	if err != nil {
		return "", err
	}
	return r.Placer.PlaceTree(s.Dir, dir, s.Key)
}

// readDir reads every regular file of dir in name order, skipping the
// unreadable ones.
func (r *Router) readDir(ctx context.Context, dir string) ([]*dicom.Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list series %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var records []*dicom.Record
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Reader.Read(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			r.logger().Debug("skipping unreadable file", "path", filepath.Join(dir, e.Name()), "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
