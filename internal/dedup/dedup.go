// Package dedup selects the canonical records of a candidate series that may
// hold mirrored copies, localizers or several acquisitions.
package dedup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/mrsinham/rtcurate/internal/dicom"
	"github.com/mrsinham/rtcurate/internal/outcome"
)

// Discard reasons.
const (
	ReasonMissingTags  = "missing InstanceNumber, SeriesNumber or ImageType"
	ReasonMirrored     = "mirrored duplicate"
	ReasonImageType    = "non-canonical image type"
	ReasonSeriesNumber = "superseded series number"
)

// Rule names the selection rule that changed a series.
type Rule string

const (
	RuleNone         Rule = ""
	RuleMirrored     Rule = "mirrored"
	RuleImageType    Rule = "image-type"
	RuleSeriesNumber Rule = "series-number"
)

// excludedImageTypes never win the image type selection.
var excludedImageTypes = []string{"PROJECTION IMAGE", "LOCALIZER"}

// RecordReader re-reads a header after decompression.
type RecordReader interface {
	Read(ctx context.Context, path string) (*dicom.Record, error)
}

// Discard is a record removed from the canonical set.
type Discard struct {
	Record *dicom.Record
	Reason string
}

// Result is the outcome of Resolve. Canonical keeps the input order.
type Result struct {
	Canonical []*dicom.Record
	Discarded []Discard
	// Rules lists the selection rules that applied, in order.
	Rules []Rule
}

// Resolver picks canonical records. Decompressor may be nil when the input
// is known to be uncompressed.
type Resolver struct {
	Decompressor dicom.Decompressor
	Reader       RecordReader
	Logger       *slog.Logger
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// Resolve decompresses compressed records in place (the files must be
// staging copies), then applies the selection rules.
func (r *Resolver) Resolve(ctx context.Context, records []*dicom.Record) (Result, error) {
	prepared := make([]*dicom.Record, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rec, err := r.uncompressed(ctx, rec)
		if err != nil {
			return Result{}, err
		}
		prepared = append(prepared, rec)
	}
	return Select(prepared), nil
}

func (r *Resolver) uncompressed(ctx context.Context, rec *dicom.Record) (*dicom.Record, error) {
	if !rec.IsCompressed() {
		return rec, nil
	}
	if r.Decompressor == nil {
		return nil, fmt.Errorf("%s uses compressed transfer syntax %s and no decompressor is configured: %w",
			rec.Path, rec.TransferSyntaxUID.Or(""), outcome.ErrConversionFailure)
	}
	if err := r.Decompressor.Decompress(ctx, rec.Path); err != nil {
		return nil, fmt.Errorf("%w: %w", outcome.ErrConversionFailure, err)
	}
	if r.Reader == nil {
		return rec, nil
	}
	fresh, err := r.Reader.Read(ctx, rec.Path)
	if err != nil {
		return nil, err
	}
	// keep the identity assigned at ingestion, the path may be a staging copy
	fresh.Identity = rec.Identity
	r.logger().Debug("decompressed", "path", rec.Path)
	return fresh, nil
}

// Select applies the selection rules to records whose pixel data is already
// uncompressed.
func Select(records []*dicom.Record) Result {
	var res Result

	usable := make([]*dicom.Record, 0, len(records))
	for _, rec := range records {
		if !rec.InstanceNumber.Present() || !rec.SeriesNumber.Present() || !rec.ImageType.Present() {
			res.Discarded = append(res.Discarded, Discard{Record: rec, Reason: ReasonMissingTags})
			continue
		}
		usable = append(usable, rec)
	}

	imageTypes := distinctImageTypes(usable)
	seriesNumbers := distinctSeriesNumbers(usable)

	if isMirrored(usable, seriesNumbers) {
		ordered := append([]*dicom.Record(nil), usable...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].InstanceNumber.Or(0) < ordered[j].InstanceNumber.Or(0)
		})
		keep := make(map[*dicom.Record]bool, len(ordered)/2)
		for i := 0; i < len(ordered); i += 2 {
			keep[ordered[i]] = true
		}
		usable = partition(usable, &res, ReasonMirrored, func(rec *dicom.Record) bool { return keep[rec] })
		res.Rules = append(res.Rules, RuleMirrored)
	}

	switch {
	case len(imageTypes) > 1:
		canonical := canonicalImageType(imageTypes)
		usable = partition(usable, &res, ReasonImageType, func(rec *dicom.Record) bool {
			return rec.ImageTypeKey() == canonical
		})
		res.Rules = append(res.Rules, RuleImageType)
	case len(seriesNumbers) > 1:
		highest := seriesNumbers[0]
		for _, n := range seriesNumbers[1:] {
			if n > highest {
				highest = n
			}
		}
		usable = partition(usable, &res, ReasonSeriesNumber, func(rec *dicom.Record) bool {
			return rec.SeriesNumber.Or(0) == highest
		})
		res.Rules = append(res.Rules, RuleSeriesNumber)
	}

	res.Canonical = usable
	return res
}

func partition(records []*dicom.Record, res *Result, reason string, keep func(*dicom.Record) bool) []*dicom.Record {
	kept := make([]*dicom.Record, 0, len(records))
	for _, rec := range records {
		if keep(rec) {
			kept = append(kept, rec)
			continue
		}
		res.Discarded = append(res.Discarded, Discard{Record: rec, Reason: reason})
	}
	return kept
}

// isMirrored reports whether records hold every instance exactly twice
// within a single series number.
func isMirrored(records []*dicom.Record, seriesNumbers []int) bool {
	if len(records) == 0 || len(seriesNumbers) != 1 {
		return false
	}
	instances := make(map[int]struct{}, len(records))
	for _, rec := range records {
		instances[rec.InstanceNumber.Or(0)] = struct{}{}
	}
	return len(records) == 2*len(instances)
}

// distinctImageTypes returns the ImageType keys in encounter order.
func distinctImageTypes(records []*dicom.Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, rec := range records {
		key := rec.ImageTypeKey()
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

func distinctSeriesNumbers(records []*dicom.Record) []int {
	seen := map[int]bool{}
	var out []int
	for _, rec := range records {
		n := rec.SeriesNumber.Or(0)
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// canonicalImageType returns the first type without an excluded value, or
// the first type when all are excluded.
func canonicalImageType(types []string) string {
	for _, t := range types {
		if !hasExcludedValue(t) {
			return t
		}
	}
	return types[0]
}

func hasExcludedValue(typeKey string) bool {
	for _, v := range strings.Split(typeKey, `\`) {
		for _, excluded := range excludedImageTypes {
			if strings.EqualFold(strings.TrimSpace(v), excluded) {
				return true
			}
		}
	}
	return false
}
