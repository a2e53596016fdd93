package rtgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mrsinham/rtcurate/internal/dicom"
	"github.com/mrsinham/rtcurate/internal/outcome"
	"github.com/mrsinham/rtcurate/internal/placement"
)

// Stage is the Outcome.Stage of RT outcomes.
const Stage = "rt"

// RecordReader parses one file's header.
type RecordReader interface {
	Read(ctx context.Context, path string) (*dicom.Record, error)
}

// Timepoint is a sorted timepoint directory holding RTPLAN, RTSTRUCT,
// RTDOSE and CT folders of series folders.
type Timepoint struct {
	Subject string
	Date    string
	Dir     string
}

// Result pairs the timepoint outcome with the resolved graph.
type Result struct {
	Outcome outcome.Outcome
	Graph   Graph
}

// OwnsRT reports whether a sorted timepoint directory holds any RT folder.
func OwnsRT(dir string) bool {
	for _, name := range []string{PlanDir, StructDir, DoseDir, CTDir} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// Resolver places the RT objects of timepoints into Placer.Root.
// Decompressor may be nil; compressed dose grids are then left as they are.
type Resolver struct {
	Placer       *placement.Placer
	Reader       RecordReader
	Decompressor dicom.Decompressor
	Logger       *slog.Logger
}

// run carries the state of one resolution.
type run struct {
	*Resolver
	ctx    context.Context
	tp     Timepoint
	logger *slog.Logger
	graph  Graph
}

// Resolve runs the resolution for one timepoint. Only the absence of an
// approved plan changes the branch taken; reference misses degrade a stage
// and copy errors end the timepoint with Outcome.Err set.
func (r *Resolver) Resolve(ctx context.Context, tp Timepoint) Result {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	st := &run{
		Resolver: r,
		ctx:      ctx,
		tp:       tp,
		logger:   logger.With("subject", tp.Subject, "timepoint", tp.Date),
	}
	err := st.resolve()

	out := outcome.Outcome{
		Kind:      outcome.Success,
		Subject:   tp.Subject,
		Timepoint: tp.Date,
		Stage:     Stage,
		Err:       err,
	}
	if st.graph.State == CTOnly {
		out.Kind = outcome.CTOnlyFallback
		out.Detail = tp.Date + CTSuffix
		if err == nil {
			out.Err = outcome.ErrNoApprovedPlan
		}
	} else if st.graph.Plan != nil {
		out.Detail = fmt.Sprintf("%s%s plan=%s doses=%d", tp.Date, RTSuffix, st.graph.Plan.FileName(), len(st.graph.Classified))
	}
	if len(st.graph.Missing) > 0 && out.Err == nil {
		out.Detail += fmt.Sprintf(" missing=%d", len(st.graph.Missing))
	}
	return Result{Outcome: out, Graph: st.graph}
}

func (st *run) resolve() error {
	st.graph.State = Start

	plan, plans, err := st.selectPlan()
	if err != nil {
		return err
	}
	if plan == nil {
		st.graph.State = CTOnly
		return st.ctOnly()
	}
	st.graph.Plan = plan
	st.graph.State = PlanResolved
	st.logger.Info("plan resolved", "plan", plan.Path, "state", st.graph.State)
	if err := st.placePlans(plan, plans); err != nil {
		return err
	}

	if err := st.resolveStruct(plan); err != nil {
		return err
	}
	st.graph.State = StructResolved

	if err := st.resolveCT(); err != nil {
		return err
	}
	st.graph.State = CTResolved

	if err := st.resolveDoses(plan); err != nil {
		return err
	}
	st.graph.State = DoseResolved

	st.graph.State = Done
	st.logger.Info("timepoint resolved",
		"state", st.graph.State,
		"struct", st.graph.Struct != nil,
		"ct", st.graph.CTSeries,
		"doses", len(st.graph.Classified),
		"unclassified", len(st.graph.Unclassified),
	)
	return nil
}

func (st *run) missing(stage string, err error) {
	st.graph.Missing = append(st.graph.Missing, fmt.Errorf("%s: %w", stage, err))
	st.logger.Warn("reference missing", "stage", stage, "error", err)
}

// rtDir returns the output directory <subject>/<date>_RT/<label>.
func (st *run) rtDir(label string) (string, error) {
	return st.Placer.Dir(st.tp.Subject, st.tp.Date+RTSuffix, label)
}

type rtFile struct {
	folder string
	path   string
	rec    *dicom.Record
}

// readFolders reads every file of every series folder below <tp>/<name>,
// in folder then file order. Unreadable files get a nil record.
func (st *run) readFolders(name string) ([]rtFile, bool, error) {
	folders, err := listSeries(filepath.Join(st.tp.Dir, name))
	if err != nil || folders == nil {
		return nil, false, err
	}
	var files []rtFile
	for _, f := range folders {
		for _, path := range f.files {
			if err := st.ctx.Err(); err != nil {
				return nil, true, err
			}
			rec, err := st.Reader.Read(st.ctx, path)
			if err != nil {
				st.logger.Debug("unreadable RT file", "path", path, "error", err)
				rec = nil
			}
			files = append(files, rtFile{folder: f.name, path: path, rec: rec})
		}
	}
	return files, true, nil
}

func (st *run) selectPlan() (*dicom.Record, []rtFile, error) {
	files, ok, err := st.readFolders(PlanDir)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		st.logger.Warn("no RTPLAN folder", "error", outcome.ErrNoApprovedPlan)
		return nil, nil, nil
	}
	var records []*dicom.Record
	for _, f := range files {
		if f.rec != nil {
			records = append(records, f.rec)
		}
	}
	plan := SelectPlan(records)
	if plan == nil {
		st.logger.Warn("no approved curative plan", "plans", len(records), "error", outcome.ErrNoApprovedPlan)
	}
	return plan, files, nil
}

func (st *run) placePlans(plan *dicom.Record, files []rtFile) error {
	used, err := st.rtDir(filepath.Join(PlanDir, PlanUsed))
	if err != nil {
		return err
	}
	if _, err := st.Placer.PlaceFile(plan.Path, used, ""); err != nil {
		return err
	}
	for _, f := range files {
		if f.path == plan.Path {
			continue
		}
		dir, err := st.rtDir(filepath.Join(PlanDir, OtherPlan, f.folder))
		if err != nil {
			return err
		}
		if _, err := st.Placer.PlaceFile(f.path, dir, ""); err != nil {
			return err
		}
	}
	return nil
}

func (st *run) resolveStruct(plan *dicom.Record) error {
	if refs := plan.ReferencedStructureSetUIDs; len(refs) > 0 && refs[0] != "" {
		st.graph.StructRef = dicom.Some(refs[0])
	}

	files, ok, err := st.readFolders(StructDir)
	if err != nil {
		return err
	}
	if !ok {
		st.missing("structure set", fmt.Errorf("no RTSTRUCT folder: %w", outcome.ErrReferenceMissing))
		return nil
	}

	ref, hasRef := st.graph.StructRef.Get()
	for _, f := range files {
		label := filepath.Join(StructDir, OtherStruct, f.folder)
		if hasRef && st.graph.Struct == nil && f.rec != nil && f.rec.SOPInstanceUID.Or("") == ref {
			st.graph.Struct = f.rec
			st.graph.CTRef = f.rec.ReferencedSeriesUID
			label = filepath.Join(StructDir, StructUsed)
		}
		dir, err := st.rtDir(label)
		if err != nil {
			return err
		}
		if _, err := st.Placer.PlaceFile(f.path, dir, ""); err != nil {
			return err
		}
	}

	switch {
	case !hasRef:
		st.missing("structure set", fmt.Errorf("plan has no structure set reference: %w", outcome.ErrReferenceMissing))
	case st.graph.Struct == nil:
		st.missing("structure set", fmt.Errorf("structure set %s not found: %w", ref, outcome.ErrReferenceMissing))
	case !st.graph.CTRef.Present():
		st.missing("planning CT", fmt.Errorf("structure set has no CT series reference: %w", outcome.ErrReferenceMissing))
	}
	return nil
}

func (st *run) resolveCT() error {
	folders, err := listSeries(filepath.Join(st.tp.Dir, CTDir))
	if err != nil {
		return err
	}
	if folders == nil {
		if st.graph.CTRef.Present() {
			st.missing("planning CT", fmt.Errorf("no CT folder: %w", outcome.ErrReferenceMissing))
		}
		return nil
	}

	ref, hasRef := st.graph.CTRef.Get()
	for _, f := range folders {
		label, name := filepath.Join(RTCTDir, OtherCT), f.name
		if hasRef && st.graph.CTSeries == "" && st.firstSeriesUID(f) == ref {
			st.graph.CTSeries = f.name
			label, name = RTCTDir, CTUsedPrefix+f.name
		}
		dir, err := st.rtDir(label)
		if err != nil {
			return err
		}
		if _, err := st.Placer.PlaceTree(f.path, dir, name); err != nil {
			return err
		}
	}
	if hasRef && st.graph.CTSeries == "" {
		st.missing("planning CT", fmt.Errorf("CT series %s not found: %w", ref, outcome.ErrReferenceMissing))
	}
	return nil
}

// firstSeriesUID returns the SeriesInstanceUID of the first readable file
// of the folder, or "".
func (st *run) firstSeriesUID(f series) string {
	for _, path := range f.files {
		rec, err := st.Reader.Read(st.ctx, path)
		if err != nil {
			continue
		}
		return rec.SeriesInstanceUID.Or("")
	}
	return ""
}

func (st *run) resolveDoses(plan *dicom.Record) error {
	st.graph.AcceptedDoses = AcceptedDoseNames(plan)
	accepted := make(map[string]bool, len(st.graph.AcceptedDoses))
	for _, name := range st.graph.AcceptedDoses {
		accepted[name] = true
	}

	folders, err := listSeries(filepath.Join(st.tp.Dir, DoseDir))
	if err != nil {
		return err
	}
	found := map[string]bool{}
	for _, f := range folders {
		for _, path := range f.files {
			name := filepath.Base(path)
			if !accepted[name] {
				dir, err := st.rtDir(filepath.Join(DoseDir, OtherDose, f.name))
				if err != nil {
					return err
				}
				if _, err := st.Placer.PlaceFile(path, dir, ""); err != nil {
					return err
				}
				continue
			}
			found[name] = true
			if err := st.placeAcceptedDose(path); err != nil {
				return err
			}
		}
	}

	for _, name := range st.graph.AcceptedDoses {
		if !found[name] {
			st.missing("dose", fmt.Errorf("dose %s not found: %w", name, outcome.ErrReferenceMissing))
		}
	}
	return nil
}

func (st *run) placeAcceptedDose(path string) error {
	var doseType, summation string
	rec, err := st.Reader.Read(st.ctx, path)
	if err == nil {
		doseType, summation = rec.DoseType.Or(""), rec.DoseSummationType.Or("")
	}
	label, ok := ClassifyDose(doseType, summation)
	if !ok {
		st.graph.Unclassified = append(st.graph.Unclassified, path)
		st.logger.Warn("dose grid outside the known classes, not copied",
			"path", path, "dose_type", doseType, "summation_type", summation)
		return nil
	}

	dir, err := st.rtDir(filepath.Join(DoseDir, label))
	if err != nil {
		return err
	}
	placed, err := st.Placer.PlaceFile(path, dir, "")
	if err != nil {
		return err
	}
	st.graph.Classified = append(st.graph.Classified, Dose{Path: placed, Label: label})

	// The class comes from header tags of the source; only the placed copy
	// is decompressed so the input pile stays untouched.
	if rec != nil && rec.IsCompressed() {
		if st.Decompressor == nil {
			st.logger.Warn("compressed dose grid left as is, no decompressor configured", "path", placed)
			return nil
		}
		if err := st.Decompressor.Decompress(st.ctx, placed); err != nil {
			return fmt.Errorf("decompress dose %s: %w", placed, err)
		}
	}
	return nil
}

// ctOnly copies every CT series to <subject>/<date>_CT/CT/<folder>.
func (st *run) ctOnly() error {
	folders, err := listSeries(filepath.Join(st.tp.Dir, CTDir))
	if err != nil {
		return err
	}
	dropped := 0
	for _, name := range []string{PlanDir, StructDir, DoseDir} {
		others, _ := listSeries(filepath.Join(st.tp.Dir, name))
		dropped += len(others)
	}
	if dropped > 0 {
		st.logger.Warn("RT objects not curated without an approved plan", "series", dropped)
	}
	if len(folders) == 0 {
		st.logger.Warn("CT-only fallback without CT series")
		return nil
	}

	dir, err := st.Placer.Dir(st.tp.Subject, st.tp.Date+CTSuffix, CTDir)
	if err != nil {
		return err
	}
	for _, f := range folders {
		if _, err := st.Placer.PlaceTree(f.path, dir, f.name); err != nil {
			return err
		}
	}
	st.logger.Info("CT-only fallback", "state", CTOnly, "series", len(folders))
	return nil
}

type series struct {
	name  string
	path  string
	files []string
}

// listSeries lists the series folders of dir with their regular files,
// recursively, both sorted. A missing dir yields nil and no error.
func listSeries(dir string) ([]series, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	out := []series{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s := series{name: e.Name(), path: filepath.Join(dir, e.Name())}
		err := filepath.WalkDir(s.path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				s.files = append(s.files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.path, err)
		}
		sort.Strings(s.files)
		out = append(out, s)
	}
	return out, nil
}
