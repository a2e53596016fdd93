package dicom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/mrsinham/rtcurate/internal/dicom/modalities"
	"github.com/mrsinham/rtcurate/internal/dicom/synth"
	"github.com/mrsinham/rtcurate/internal/outcome"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestRead_ImageSeries(t *testing.T) {
	root := t.TempDir()
	w := synth.NewWriter(root, 1)
	files, err := w.WriteSeries(synth.SeriesSpec{
		Dir:          "pat1/study/ct",
		Modality:     modalities.CT,
		PatientID:    "PAT1",
		StudyDate:    "20210304",
		Description:  "Planning CT",
		SeriesNumber: 3,
		Instances:    synth.Instances(2, "ORIGINAL", "PRIMARY", "AXIAL"),
	})
	if err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}

	r := NewReader()
	rec, err := r.Read(context.Background(), files[1].Path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	checkString(t, "Modality", rec.Modality, "CT")
	checkString(t, "PatientID", rec.PatientID, "PAT1")
	checkString(t, "StudyDate", rec.StudyDate, "20210304")
	checkString(t, "SeriesDescription", rec.SeriesDescription, "Planning CT")
	checkString(t, "SeriesInstanceUID", rec.SeriesInstanceUID, files[1].SeriesUID)
	checkString(t, "SOPInstanceUID", rec.SOPInstanceUID, files[1].SOPInstanceUID)
	checkString(t, "TransferSyntaxUID", rec.TransferSyntaxUID, ExplicitVRLittleEndian)

	if n, ok := rec.SeriesNumber.Get(); !ok || n != 3 {
		t.Errorf("SeriesNumber = %d, %v; want 3, true", n, ok)
	}
	if n, ok := rec.InstanceNumber.Get(); !ok || n != 2 {
		t.Errorf("InstanceNumber = %d, %v; want 2, true", n, ok)
	}
	if got := rec.ImageTypeKey(); got != `ORIGINAL\PRIMARY\AXIAL` {
		t.Errorf("ImageTypeKey() = %q", got)
	}
	if rec.IsCompressed() {
		t.Error("explicit VR little endian must not be reported as compressed")
	}
	if rec.ApprovalStatus.Present() || rec.DoseType.Present() {
		t.Error("RT tags should be absent on a CT image")
	}

	// default policy: grandparent directory of the file
	if rec.Identity.Subject != "study" || rec.Identity.Timepoint != "20210304" {
		t.Errorf("Identity = %+v", rec.Identity)
	}
}

func TestRead_RTObjects(t *testing.T) {
	root := t.TempDir()
	w := synth.NewWriter(root, 2)

	ctUID := w.UID()
	structUID := w.UID()
	doseUIDs := []string{w.UID(), w.UID()}

	plan, err := w.WriteRTObject(synth.SeriesSpec{Dir: "plan", Modality: modalities.RTPlan}, "", "plan.dcm", synth.PlanSpec{
		Label: "Boost", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE",
		Date: "20200110", Time: "101500", StructUID: structUID, DoseUIDs: doseUIDs,
	}.Elements())
	if err != nil {
		t.Fatalf("write plan: %v", err)
	}
	st, err := w.WriteRTObject(synth.SeriesSpec{Dir: "struct", Modality: modalities.RTStruct}, structUID, "rs.dcm", synth.StructSpec{
		Label: "Main", CTSeriesUID: ctUID, CTStudyUID: w.UID(),
	}.Elements())
	if err != nil {
		t.Fatalf("write struct: %v", err)
	}
	dose, err := w.WriteRTObject(synth.SeriesSpec{Dir: "dose", Modality: modalities.RTDose}, doseUIDs[0], synth.DoseFileName(doseUIDs[0]), synth.DoseSpec{
		DoseType: "EFFECTIVE", SummationType: "FRACTION",
	}.Elements())
	if err != nil {
		t.Fatalf("write dose: %v", err)
	}

	r := &Reader{Identity: IdentityPolicy{FromHeader: true}}
	ctx := context.Background()

	planRec, err := r.Read(ctx, plan.Path)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	checkString(t, "ApprovalStatus", planRec.ApprovalStatus, "APPROVED")
	checkString(t, "PlanIntent", planRec.PlanIntent, "CURATIVE")
	checkString(t, "PlanDate", planRec.PlanDate, "20200110")
	checkString(t, "PlanTime", planRec.PlanTime, "101500")
	if len(planRec.ReferencedStructureSetUIDs) != 1 || planRec.ReferencedStructureSetUIDs[0] != structUID {
		t.Errorf("ReferencedStructureSetUIDs = %v, want [%s]", planRec.ReferencedStructureSetUIDs, structUID)
	}
	if len(planRec.ReferencedDoseUIDs) != 2 || planRec.ReferencedDoseUIDs[1] != doseUIDs[1] {
		t.Errorf("ReferencedDoseUIDs = %v, want %v", planRec.ReferencedDoseUIDs, doseUIDs)
	}
	if planRec.Identity.Subject != "ANON" {
		t.Errorf("header identity subject = %q, want ANON", planRec.Identity.Subject)
	}

	stRec, err := r.Read(ctx, st.Path)
	if err != nil {
		t.Fatalf("read struct: %v", err)
	}
	checkString(t, "SOPInstanceUID", stRec.SOPInstanceUID, structUID)
	checkString(t, "ReferencedSeriesUID", stRec.ReferencedSeriesUID, ctUID)

	doseRec, err := r.Read(ctx, dose.Path)
	if err != nil {
		t.Fatalf("read dose: %v", err)
	}
	checkString(t, "DoseType", doseRec.DoseType, "EFFECTIVE")
	checkString(t, "DoseSummationType", doseRec.DoseSummationType, "FRACTION")
	if doseRec.FileName() != doseUIDs[0]+".dcm" {
		t.Errorf("FileName() = %q", doseRec.FileName())
	}
}

// A reference item without ReferencedSOPInstanceUID keeps its slot, so [0]
// never shifts onto a later item.
func TestRead_ReferenceItemsKeepPosition(t *testing.T) {
	w := synth.NewWriter(t.TempDir(), 6)
	structUID, doseUID := w.UID(), w.UID()

	tests := []struct {
		name        string
		spec        synth.PlanSpec
		wantStructs []string
		wantDoses   []string
	}{
		{
			name:        "first items lack the uid",
			spec:        synth.PlanSpec{ExtraStructUIDs: []string{structUID}, DoseUIDs: []string{"", doseUID}},
			wantStructs: []string{"", structUID},
			wantDoses:   []string{"", doseUID},
		},
		{
			name:        "later item lacks the uid",
			spec:        synth.PlanSpec{StructUID: structUID, ExtraStructUIDs: []string{""}, DoseUIDs: []string{doseUID, ""}},
			wantStructs: []string{structUID, ""},
			wantDoses:   []string{doseUID, ""},
		},
		{
			name: "no sequences",
			spec: synth.PlanSpec{Label: "Bare"},
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := w.WriteRTObject(synth.SeriesSpec{Dir: fmt.Sprintf("plan%d", i), Modality: modalities.RTPlan}, "", "plan.dcm", tt.spec.Elements())
			if err != nil {
				t.Fatalf("write plan: %v", err)
			}
			rec, err := NewReader().Read(context.Background(), f.Path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !slices.Equal(rec.ReferencedStructureSetUIDs, tt.wantStructs) {
				t.Errorf("ReferencedStructureSetUIDs = %q, want %q", rec.ReferencedStructureSetUIDs, tt.wantStructs)
			}
			if !slices.Equal(rec.ReferencedDoseUIDs, tt.wantDoses) {
				t.Errorf("ReferencedDoseUIDs = %q, want %q", rec.ReferencedDoseUIDs, tt.wantDoses)
			}
		})
	}
}

func TestRead_MissingTags(t *testing.T) {
	root := t.TempDir()
	w := synth.NewWriter(root, 3)
	files, err := w.WriteSeries(synth.SeriesSpec{
		Dir:       "a/b/c",
		Modality:  modalities.MR,
		Omit:      []tag.Tag{tag.SeriesNumber, tag.StudyDate},
		Instances: []synth.InstanceSpec{{InstanceNumber: 1}},
	})
	if err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}

	rec, err := NewReader().Read(context.Background(), files[0].Path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.SeriesNumber.Present() {
		t.Error("SeriesNumber should be absent")
	}
	if rec.ImageType.Present() {
		t.Error("ImageType should be absent")
	}
	if rec.SeriesDescription.Present() {
		t.Error("SeriesDescription should be absent")
	}
	if rec.Identity.Timepoint != CorruptedLabel {
		t.Errorf("Timepoint = %q, want %q", rec.Identity.Timepoint, CorruptedLabel)
	}
}

func TestRead_Unreadable(t *testing.T) {
	dir := t.TempDir()
	tests := map[string][]byte{
		"text.txt":  []byte("definitely not dicom"),
		"empty.dcm": {},
		"short.dcm": make([]byte, 140),
	}
	r := NewReader()
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, content, 0644); err != nil {
				t.Fatal(err)
			}
			_, err := r.Read(context.Background(), path)
			if !errors.Is(err, outcome.ErrHeaderUnreadable) {
				t.Errorf("Read(%s) error = %v, want ErrHeaderUnreadable", name, err)
			}
		})
	}

	_, err := r.Read(context.Background(), filepath.Join(dir, "missing.dcm"))
	if !errors.Is(err, outcome.ErrHeaderUnreadable) {
		t.Errorf("missing file error = %v, want ErrHeaderUnreadable", err)
	}
}

func TestRead_CancelledContext(t *testing.T) {
	root := t.TempDir()
	files, err := synth.NewWriter(root, 4).WriteSeries(synth.SeriesSpec{Dir: "x", Modality: modalities.CT, Instances: synth.Instances(1)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Reader{Timeout: time.Minute}
	// Either the parse wins the race or the cancellation does; both are
	// acceptable, but a cancellation must surface as unreadable.
	if _, err := r.Read(ctx, files[0].Path); err != nil && !errors.Is(err, outcome.ErrHeaderUnreadable) {
		t.Errorf("Read error = %v", err)
	}
}

func TestRead_MaxFileSize(t *testing.T) {
	files, err := synth.NewWriter(t.TempDir(), 7).WriteSeries(synth.SeriesSpec{Dir: "x", Modality: modalities.CT, Instances: synth.Instances(1)})
	if err != nil {
		t.Fatal(err)
	}
	path := files[0].Path
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		max     int64
		tooBig  bool
		timeout time.Duration
	}{
		{name: "no cap", max: 0},
		{name: "exact size", max: info.Size()},
		{name: "one byte under", max: info.Size() - 1, tooBig: true},
		{name: "under with timeout", max: 16, tooBig: true, timeout: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Reader{MaxFileSize: tt.max, Timeout: tt.timeout}
			_, err := r.Read(context.Background(), path)
			if tt.tooBig {
				if !errors.Is(err, ErrFileTooLarge) || !errors.Is(err, outcome.ErrHeaderUnreadable) {
					t.Errorf("Read error = %v, want ErrFileTooLarge and ErrHeaderUnreadable", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Read: %v", err)
			}
		})
	}

	if r := NewReader(); r.MaxFileSize != DefaultMaxFileSize {
		t.Errorf("NewReader().MaxFileSize = %d", r.MaxFileSize)
	}
}

func TestReadDataset_ElementString(t *testing.T) {
	root := t.TempDir()
	files, err := synth.NewWriter(root, 5).WriteSeries(synth.SeriesSpec{
		Dir: "x", Modality: modalities.CT, Description: "Chest", Instances: synth.Instances(1, "DERIVED", "SECONDARY"),
	})
	if err != nil {
		t.Fatal(err)
	}
	ds, err := ReadDataset(files[0].Path)
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if got, ok := ElementString(ds, tag.ImageType); !ok || got != `DERIVED\SECONDARY` {
		t.Errorf("ElementString(ImageType) = %q, %v", got, ok)
	}
	if got, ok := ElementString(ds, tag.SeriesDescription); !ok || got != "Chest" {
		t.Errorf("ElementString(SeriesDescription) = %q, %v", got, ok)
	}
	if _, ok := ElementString(ds, tag.PatientBirthDate); ok {
		t.Error("absent tag should not be found")
	}
}

func TestIdentityPolicy_Resolve(t *testing.T) {
	rec := &Record{
		Path:      filepath.FromSlash("/data/in/subjectA/visit/series/IMG1.dcm"),
		PatientID: Some("PID-7"),
		StudyDate: Some("20200101"),
	}
	tests := []struct {
		name   string
		policy IdentityPolicy
		want   string
	}{
		{"default grandparent", DefaultIdentityPolicy(), "visit"},
		{"parent", IdentityPolicy{SubjectPosition: -2}, "series"},
		{"from root", IdentityPolicy{SubjectPosition: 2}, "subjectA"},
		{"out of range", IdentityPolicy{SubjectPosition: -20}, CorruptedLabel},
		{"header", IdentityPolicy{FromHeader: true}, "PID-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.policy.Resolve(rec)
			if id.Subject != tt.want {
				t.Errorf("Subject = %q, want %q", id.Subject, tt.want)
			}
			if id.Timepoint != "20200101" {
				t.Errorf("Timepoint = %q", id.Timepoint)
			}
		})
	}

	if id := (IdentityPolicy{FromHeader: true}).Resolve(&Record{}); id.Subject != CorruptedLabel || id.Timepoint != CorruptedLabel {
		t.Errorf("missing header identity = %+v", id)
	}
}

func TestIsCompressedSyntax(t *testing.T) {
	tests := []struct {
		ts   string
		want bool
	}{
		{ExplicitVRLittleEndian, false},
		{ImplicitVRLittleEndian, false},
		{DeflatedExplicitVRLittleEndian, false},
		{ExplicitVRBigEndian, false},
		{"1.2.840.10008.1.2.4.50", true},
		{"1.2.840.10008.1.2.4.90", true},
		{"1.2.840.10008.1.2.5", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsCompressedSyntax(tt.ts); got != tt.want {
			t.Errorf("IsCompressedSyntax(%q) = %v, want %v", tt.ts, got, tt.want)
		}
	}

	rec := &Record{TransferSyntaxUID: Some("1.2.840.10008.1.2.4.70")}
	if !rec.IsCompressed() {
		t.Error("JPEG lossless record should be compressed")
	}
	if (&Record{}).IsCompressed() {
		t.Error("record without transfer syntax should not be compressed")
	}
}

func TestField(t *testing.T) {
	var absent Field[int]
	if absent.Present() || absent.Or(7) != 7 {
		t.Error("zero Field should be absent")
	}
	f := Some(3)
	if v, ok := f.Get(); !ok || v != 3 || f.Or(7) != 3 {
		t.Errorf("Some(3) = %d, %v", v, ok)
	}
}

func checkString(t *testing.T, name string, f Field[string], want string) {
	t.Helper()
	got, ok := f.Get()
	if !ok {
		t.Errorf("%s absent, want %q", name, want)
		return
	}
	if got != want {
		t.Errorf("%s = %q, want %q", name, got, want)
	}
}
