package synth

import (
	"context"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	rtdicom "github.com/mrsinham/rtcurate/internal/dicom"
	"github.com/mrsinham/rtcurate/internal/dicom/modalities"
	"github.com/mrsinham/rtcurate/internal/dicom/synth/noise"
	"github.com/mrsinham/rtcurate/internal/util"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestWriteSeries_Parseable(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, 42)

	files, err := w.WriteSeries(SeriesSpec{
		Dir:          "sub/series",
		Modality:     modalities.CT,
		PatientID:    "P1",
		Description:  "Planning CT",
		SeriesNumber: 2,
		Instances:    Instances(3),
	})
	if err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3", len(files))
	}

	for i, f := range files {
		ds, err := dicom.ParseFile(f.Path, nil)
		if err != nil {
			t.Fatalf("ParseFile(%s): %v", f.Path, err)
		}
		elem, err := ds.FindElementByTag(tag.SOPInstanceUID)
		if err != nil {
			t.Fatalf("SOPInstanceUID missing: %v", err)
		}
		if got, ok := elem.Value.GetValue().([]string); !ok || len(got) == 0 || got[0] != f.SOPInstanceUID {
			t.Errorf("file %d SOPInstanceUID = %v, want %s", i, got, f.SOPInstanceUID)
		}
		if _, err := ds.FindElementByTag(tag.PixelData); err != nil {
			t.Errorf("file %d has no pixel data: %v", i, err)
		}
		if f.SeriesUID != files[0].SeriesUID {
			t.Errorf("file %d series UID differs from file 0", i)
		}
	}
}

func TestWriteSeries_Omit(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, 1)
	files, err := w.WriteSeries(SeriesSpec{
		Dir:       "s",
		Modality:  modalities.MR,
		Omit:      []tag.Tag{tag.SeriesNumber},
		Instances: []InstanceSpec{{InstanceNumber: 1, Omit: []tag.Tag{tag.InstanceNumber}}},
	})
	if err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}
	ds, err := dicom.ParseFile(files[0].Path, nil)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	for _, tg := range []tag.Tag{tag.SeriesNumber, tag.InstanceNumber} {
		if _, err := ds.FindElementByTag(tg); err == nil {
			t.Errorf("tag %v should have been omitted", tg)
		}
	}
}

func TestWriter_UIDsUniqueAndDeterministic(t *testing.T) {
	a := NewWriter("", 9)
	b := NewWriter("", 9)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ua, ub := a.UID(), b.UID()
		if ua != ub {
			t.Fatalf("UID %d differs between writers with the same seed: %s vs %s", i, ua, ub)
		}
		if seen[ua] {
			t.Fatalf("duplicate UID %s", ua)
		}
		if !strings.HasPrefix(ua, uidRoot) || len(ua) > 64 {
			t.Fatalf("malformed UID %s", ua)
		}
		seen[ua] = true
	}
}

func TestPlanSpec_Elements(t *testing.T) {
	elems := PlanSpec{ApprovalStatus: "APPROVED", StructUID: "1.2.3", DoseUIDs: []string{"4.5", "6.7"}}.Elements()
	found := map[tag.Tag]bool{}
	for _, e := range elems {
		found[e.Tag] = true
	}
	for _, want := range []tag.Tag{util.TagApprovalStatus, util.TagReferencedStructureSetSequence, util.TagReferencedDoseSequence} {
		if !found[want] {
			t.Errorf("element %v missing", want)
		}
	}
	if found[util.TagPlanIntent] || found[util.TagRTPlanDate] {
		t.Error("empty fields should be omitted")
	}
}

func TestBuild_AllScenarios(t *testing.T) {
	for _, name := range ScenarioNames() {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			m, err := Build(NewWriter(root, 1), name)
			if err != nil {
				t.Fatalf("Build(%s): %v", name, err)
			}
			if len(m.Files) == 0 {
				t.Fatal("scenario wrote no files")
			}
			for _, f := range m.Files {
				rel, err := filepath.Rel(root, f.Path)
				if err != nil {
					t.Fatal(err)
				}
				// <subject>/<series-dir>/<file>
				if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) != 3 {
					t.Errorf("unexpected layout %s", rel)
				}
			}
		})
	}
}

func TestBuild_Full(t *testing.T) {
	root := t.TempDir()
	m, err := Build(NewWriter(root, 1), "full")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	counts := map[modalities.Modality]int{}
	for _, f := range m.Files {
		counts[f.Modality]++
	}
	want := map[modalities.Modality]int{
		modalities.CT:       7,
		modalities.RTStruct: 2,
		modalities.RTDose:   5,
		modalities.RTPlan:   3,
		modalities.MR:       3,
		modalities.Unknown:  2,
	}
	for mod, n := range want {
		if counts[mod] != n {
			t.Errorf("%q files = %d, want %d", mod, counts[mod], n)
		}
	}
	if len(m.Junk) != 1 {
		t.Fatalf("junk = %v", m.Junk)
	}
	if _, err := os.Stat(m.Junk[0]); err != nil {
		t.Errorf("junk file missing: %v", err)
	}
}

func TestBuild_Unknown(t *testing.T) {
	if _, err := Build(NewWriter(t.TempDir(), 1), "nope"); err == nil {
		t.Error("unknown scenario should fail")
	}
}

func TestWriteSeries_NoiseStillReadable(t *testing.T) {
	profiles := map[string]noise.Profile{
		"siemens":   {noise.SiemensCSA},
		"ge":        {noise.GEPrivate},
		"philips":   {noise.PhilipsPrivate},
		"malformed": {noise.MalformedLengths},
		"all":       noise.Profile(noise.Kinds()),
	}
	for name, profile := range profiles {
		t.Run(name, func(t *testing.T) {
			w := NewWriter(t.TempDir(), 3)
			files, err := w.WriteSeries(SeriesSpec{
				Dir:          "sub/noisy",
				Modality:     modalities.MR,
				PatientID:    "P7",
				Description:  "Noisy MR",
				SeriesNumber: 4,
				Noise:        profile,
				Instances:    Instances(2),
			})
			if err != nil {
				t.Fatalf("WriteSeries: %v", err)
			}

			reader := rtdicom.NewReader()
			for _, f := range files {
				rec, err := reader.Read(context.Background(), f.Path)
				if err != nil {
					t.Fatalf("Read(%s): %v", f.Path, err)
				}
				if got := rec.SeriesInstanceUID.Or(""); got != f.SeriesUID {
					t.Errorf("SeriesInstanceUID = %q, want %q", got, f.SeriesUID)
				}
				if got := rec.InstanceNumber.Or(0); got != f.InstanceNumber {
					t.Errorf("InstanceNumber = %d, want %d", got, f.InstanceNumber)
				}
				if got := rec.Modality.Or(""); got != "MR" {
					t.Errorf("Modality = %q, want MR", got)
				}
			}
		})
	}
}

func TestBuild_VendorNoise(t *testing.T) {
	root := t.TempDir()
	m, err := Build(NewWriter(root, 1), "vendor-noise")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	reader := rtdicom.NewReader()
	for _, f := range m.Files {
		if _, err := reader.Read(context.Background(), f.Path); err != nil {
			t.Errorf("Read(%s): %v", f.Path, err)
		}
	}
}

func TestBuild_OddHeaders(t *testing.T) {
	m, err := Build(NewWriter(t.TempDir(), 9), "odd-headers")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Subjects) != 2 {
		t.Fatalf("subjects = %v", m.Subjects)
	}

	reader := rtdicom.NewReader()
	undated := 0
	for _, f := range m.Files {
		rec, err := reader.Read(context.Background(), f.Path)
		if err != nil {
			t.Fatalf("Read(%s): %v", f.Path, err)
		}
		if got := rec.PatientID.Or(""); got != f.PatientID {
			t.Errorf("%s PatientID = %q, want %q", f.Path, got, f.PatientID)
		}
		if d, ok := rec.SeriesDescription.Get(); ok && len(d) > loMaxLength {
			t.Errorf("%s description longer than LO: %d", f.Path, len(d))
		}
		if !rec.StudyDate.Present() {
			undated++
		}
	}
	if undated != 2 {
		t.Errorf("undated files = %d, want 2", undated)
	}
	if m.Files[0].PatientID != OddPatientID {
		t.Errorf("first patient = %q, want %q", m.Files[0].PatientID, OddPatientID)
	}
}

func TestVariedPatientID(t *testing.T) {
	rng := randv2.New(randv2.NewPCG(4, 4))
	for range 50 {
		id := variedPatientID(rng)
		if id == "" || len(id) > loMaxLength {
			t.Fatalf("variedPatientID() = %q", id)
		}
	}
	if got := truncateLO(strings.Repeat("A", 80)); len(got) != loMaxLength {
		t.Errorf("truncateLO length = %d", len(got))
	}
}
