package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mrsinham/rtcurate/internal/dicom/modalities"
	"github.com/mrsinham/rtcurate/internal/dicom/synth/noise"
)

// Manifest lists what a scenario wrote.
type Manifest struct {
	Scenario string
	Subjects []string
	Files    []File
	// Junk lists non-DICOM files dropped into the pile.
	Junk []string
}

type scenarioFunc func(c *course)

var scenarios = map[string]struct {
	description string
	build       func(w *Writer) ([]*course, error)
}{
	"full": {
		"one RT course with drafts, a rescan CT, every dose class, an MR series, an unknown modality and a junk file",
		single("sub01", "20200101", fullCourse),
	},
	"minimal": {
		"one plan, one structure set, one CT series and one physical dose, all referenced",
		single("sub01", "20200101", minimalCourse),
	},
	"tiebreak": {
		"several approved plans on the same day, newest time wins",
		single("sub01", "20200101", tiebreakCourse),
	},
	"broken-ref": {
		"the approved plan references a structure set that is not in the pile",
		single("sub01", "20200101", brokenRefCourse),
	},
	"dose-subset": {
		"the approved plan references only part of the dose grids",
		single("sub01", "20200101", doseSubsetCourse),
	},
	"unapproved": {
		"no approved curative plan, only the CT survives",
		single("sub01", "20200101", unapprovedCourse),
	},
	"mirrored": {
		"an MR series stored twice with identical instance numbers",
		single("sub01", "20200101", mirroredCourse),
	},
	"localizer": {
		"an MR series mixing localizer and axial images",
		single("sub01", "20200101", localizerCourse),
	},
	"vendor-noise": {
		"a complete RT course whose CT and MR carry vendor private blocks and malformed lengths",
		single("sub01", "20200101", vendorNoiseCourse),
	},
	"odd-headers": {
		"identifiers and descriptions that are not path friendly, a missing description and an undated series",
		func(w *Writer) ([]*course, error) {
			return buildAll(w, []courseSpec{
				{"sub01", "20200101", oddHeadersCourse},
				{"sub02", "201907", variedIDCourse},
			})
		},
	},
	"cohort": {
		"three subjects: a full course, an unapproved course and a mirrored MR",
		func(w *Writer) ([]*course, error) {
			return buildAll(w, []courseSpec{
				{"sub01", "20200101", fullCourse},
				{"sub02", "20210303", unapprovedCourse},
				{"sub03", "20190707", mirroredCourse},
			})
		},
	},
}

// Scenarios returns the scenario names with their descriptions.
func Scenarios() map[string]string {
	out := make(map[string]string, len(scenarios))
	for name, s := range scenarios {
		out[name] = s.description
	}
	return out
}

// ScenarioNames returns the sorted scenario names.
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build writes the named scenario below w.Root. Files are laid out as
// <root>/<subject>/<series-dir>/<file>.
func Build(w *Writer, name string) (Manifest, error) {
	s, ok := scenarios[name]
	if !ok {
		return Manifest{}, fmt.Errorf("unknown scenario %q (available: %v)", name, ScenarioNames())
	}
	courses, err := s.build(w)
	if err != nil {
		return Manifest{}, err
	}

	m := Manifest{Scenario: name}
	for _, c := range courses {
		m.Subjects = append(m.Subjects, c.subject)
		m.Files = append(m.Files, c.files...)
		m.Junk = append(m.Junk, c.junk...)
	}
	return m, nil
}

type courseSpec struct {
	subject string
	date    string
	fn      scenarioFunc
}

func single(subject, date string, fn scenarioFunc) func(w *Writer) ([]*course, error) {
	return func(w *Writer) ([]*course, error) {
		return buildAll(w, []courseSpec{{subject, date, fn}})
	}
}

func buildAll(w *Writer, specs []courseSpec) ([]*course, error) {
	courses := make([]*course, 0, len(specs))
	for _, spec := range specs {
		c := &course{w: w, subject: spec.subject, date: spec.date, studyUID: w.UID()}
		spec.fn(c)
		if c.err != nil {
			return nil, fmt.Errorf("scenario subject %s: %w", spec.subject, c.err)
		}
		courses = append(courses, c)
	}
	return courses, nil
}

// course accumulates the files of one subject's study. The first error
// sticks and turns later calls into no-ops.
type course struct {
	w        *Writer
	subject  string
	date     string
	studyUID string
	series   int

	// patientID defaults to subject.
	patientID string

	files []File
	junk  []string
	err   error
}

func (c *course) write(s SeriesSpec) []File {
	if c.err != nil {
		return nil
	}
	c.series++
	s.Dir = filepath.Join(c.subject, s.Dir)
	s.PatientID = c.subject
	if c.patientID != "" {
		s.PatientID = c.patientID
	}
	s.StudyDate = c.date
	s.StudyUID = c.studyUID
	if s.SeriesNumber == 0 {
		s.SeriesNumber = c.series
	}
	files, err := c.w.WriteSeries(s)
	if err != nil {
		c.err = err
		return nil
	}
	c.files = append(c.files, files...)
	return files
}

func (c *course) image(m modalities.Modality, dir, description string, instances []InstanceSpec) string {
	uid := c.w.UID()
	c.write(SeriesSpec{Dir: dir, Modality: m, Description: description, SeriesUID: uid, Instances: instances})
	return uid
}

func (c *course) structSet(dir string, spec StructSpec) string {
	uid := c.w.UID()
	c.write(SeriesSpec{
		Dir: dir, Modality: modalities.RTStruct, Description: "RTSTRUCT " + spec.Label,
		Instances: []InstanceSpec{{SOPInstanceUID: uid, InstanceNumber: 1, Extra: spec.Elements()}},
	})
	return uid
}

func (c *course) plan(dir string, spec PlanSpec) string {
	uid := c.w.UID()
	c.write(SeriesSpec{
		Dir: dir, Modality: modalities.RTPlan, Description: "RTPLAN " + spec.Label,
		Instances: []InstanceSpec{{SOPInstanceUID: uid, InstanceNumber: 1, Extra: spec.Elements()}},
	})
	return uid
}

func (c *course) dose(dir, uid string, spec DoseSpec) {
	c.write(SeriesSpec{
		Dir: dir, Modality: modalities.RTDose, Description: "RTDOSE " + spec.DoseType + " " + spec.SummationType,
		Instances: []InstanceSpec{{FileName: DoseFileName(uid), SOPInstanceUID: uid, InstanceNumber: 1, Extra: spec.Elements()}},
	})
}

func (c *course) junkFile(rel, content string) {
	if c.err != nil {
		return
	}
	path := filepath.Join(c.w.Root, c.subject, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.err = err
		return
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		c.err = err
		return
	}
	c.junk = append(c.junk, path)
}

func (c *course) doseUIDs(n int) []string {
	uids := make([]string, n)
	for i := range uids {
		uids[i] = c.w.UID()
	}
	return uids
}

func fullCourse(c *course) {
	ctPlanning := c.image(modalities.CT, "ct_planning", "Planning CT", Instances(4))
	ctRescan := c.image(modalities.CT, "ct_rescan", "Rescan CT", Instances(3))

	used := c.structSet("rtstruct_main", StructSpec{Label: "Main", CTSeriesUID: ctPlanning, CTStudyUID: c.studyUID, ROIs: []string{"PTV", "CTV", "Brainstem"}})
	draft := c.structSet("rtstruct_draft", StructSpec{Label: "Draft", CTSeriesUID: ctRescan, CTStudyUID: c.studyUID})

	doses := c.doseUIDs(5)
	c.dose("rtdose_physical", doses[0], DoseSpec{DoseType: "PHYSICAL", SummationType: "PLAN"})
	c.dose("rtdose_rbe", doses[1], DoseSpec{DoseType: "EFFECTIVE", SummationType: "PLAN"})
	c.dose("rtdose_physical_fx", doses[2], DoseSpec{DoseType: "PHYSICAL", SummationType: "FRACTION"})
	c.dose("rtdose_rbe_fx", doses[3], DoseSpec{DoseType: "EFFECTIVE", SummationType: "FRACTION"})
	c.dose("rtdose_beam", doses[4], DoseSpec{DoseType: "PHYSICAL", SummationType: "BEAM"})

	c.plan("rtplan_used", PlanSpec{
		Label: "Boost", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE",
		Date: "20200110", Time: "101500", StructUID: used, DoseUIDs: doses[:4],
	})
	c.plan("rtplan_draft", PlanSpec{
		Label: "Draft", ApprovalStatus: "UNAPPROVED", PlanIntent: "CURATIVE",
		Date: "20200120", Time: "090000", StructUID: draft,
	})
	c.plan("rtplan_prior", PlanSpec{
		Label: "Initial", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE",
		Date: "20200105", Time: "080000", StructUID: draft,
	})

	c.image(modalities.MR, "mr_t1", "T1 post contrast", Instances(3))
	c.write(SeriesSpec{Dir: "us_probe", RawModality: "US", Description: "Probe", Instances: Instances(2)})
	c.junkFile("misc/notes.txt", "not a dicom file\n")
}

func minimalCourse(c *course) {
	ct := c.image(modalities.CT, "ct_planning", "Planning CT", Instances(3))
	st := c.structSet("rtstruct", StructSpec{Label: "Main", CTSeriesUID: ct, CTStudyUID: c.studyUID, ROIs: []string{"PTV"}})
	doses := c.doseUIDs(1)
	c.dose("rtdose_physical", doses[0], DoseSpec{DoseType: "PHYSICAL", SummationType: "PLAN"})
	c.plan("rtplan", PlanSpec{
		Label: "Main", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE",
		Date: "20200110", Time: "101500", StructUID: st, DoseUIDs: doses,
	})
}

func tiebreakCourse(c *course) {
	ct := c.image(modalities.CT, "ct_planning", "Planning CT", Instances(2))
	st := c.structSet("rtstruct", StructSpec{Label: "Main", CTSeriesUID: ct, CTStudyUID: c.studyUID})

	c.plan("rtplan_morning", PlanSpec{Label: "Morning", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE", Date: "20200110", Time: "080000", StructUID: st})
	c.plan("rtplan_noon", PlanSpec{Label: "Noon", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE", Date: "20200110", Time: "120000", StructUID: st})
	c.plan("rtplan_eve", PlanSpec{Label: "Eve", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE", Date: "20200109", Time: "235959", StructUID: st})
	c.plan("rtplan_untagged", PlanSpec{Label: "Untagged", Date: "20200101", Time: "000000", StructUID: st})
	c.plan("rtplan_palliative", PlanSpec{Label: "Palliative", ApprovalStatus: "APPROVED", PlanIntent: "PALLIATIVE", Date: "20200201", Time: "000000", StructUID: st})
}

func brokenRefCourse(c *course) {
	ct := c.image(modalities.CT, "ct_planning", "Planning CT", Instances(2))
	c.structSet("rtstruct_a", StructSpec{Label: "A", CTSeriesUID: ct, CTStudyUID: c.studyUID})
	c.structSet("rtstruct_b", StructSpec{Label: "B", CTSeriesUID: ct, CTStudyUID: c.studyUID})

	doses := c.doseUIDs(2)
	c.dose("rtdose_physical", doses[0], DoseSpec{DoseType: "PHYSICAL", SummationType: "PLAN"})
	c.dose("rtdose_rbe", doses[1], DoseSpec{DoseType: "EFFECTIVE", SummationType: "PLAN"})

	c.plan("rtplan", PlanSpec{
		Label: "Main", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE",
		Date: "20200110", Time: "101500", StructUID: c.w.UID(), DoseUIDs: doses,
	})
}

func doseSubsetCourse(c *course) {
	ct := c.image(modalities.CT, "ct_planning", "Planning CT", Instances(2))
	st := c.structSet("rtstruct", StructSpec{Label: "Main", CTSeriesUID: ct, CTStudyUID: c.studyUID})

	doses := c.doseUIDs(4)
	c.dose("rtdose_physical", doses[0], DoseSpec{DoseType: "PHYSICAL", SummationType: "PLAN"})
	c.dose("rtdose_beam", doses[1], DoseSpec{DoseType: "PHYSICAL", SummationType: "BEAM"})
	c.dose("rtdose_rbe", doses[2], DoseSpec{DoseType: "EFFECTIVE", SummationType: "PLAN"})
	c.dose("rtdose_rbe_fx", doses[3], DoseSpec{DoseType: "EFFECTIVE", SummationType: "FRACTION"})

	c.plan("rtplan", PlanSpec{
		Label: "Main", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE",
		Date: "20200110", Time: "101500", StructUID: st, DoseUIDs: doses[:2],
	})
}

func unapprovedCourse(c *course) {
	ct := c.image(modalities.CT, "ct_planning", "Planning CT", Instances(3))
	st := c.structSet("rtstruct", StructSpec{Label: "Main", CTSeriesUID: ct, CTStudyUID: c.studyUID})

	doses := c.doseUIDs(1)
	c.dose("rtdose", doses[0], DoseSpec{DoseType: "PHYSICAL", SummationType: "PLAN"})

	c.plan("rtplan_draft", PlanSpec{Label: "Draft", ApprovalStatus: "UNAPPROVED", PlanIntent: "CURATIVE", Date: "20200110", Time: "101500", StructUID: st, DoseUIDs: doses})
	c.plan("rtplan_palliative", PlanSpec{Label: "Palliative", ApprovalStatus: "APPROVED", PlanIntent: "PALLIATIVE", Date: "20200111", Time: "101500", StructUID: st, DoseUIDs: doses})
}

func mirroredCourse(c *course) {
	instances := make([]InstanceSpec, 0, 6)
	for i := 1; i <= 3; i++ {
		for copyIdx := 0; copyIdx < 2; copyIdx++ {
			instances = append(instances, InstanceSpec{
				FileName:       fmt.Sprintf("IMG%02d_%d.dcm", i, copyIdx),
				InstanceNumber: i,
				ImageType:      []string{"ORIGINAL", "PRIMARY", "M", "ND"},
			})
		}
	}
	c.image(modalities.MR, "mr_t2", "T2 FLAIR", instances)
}

func localizerCourse(c *course) {
	instances := []InstanceSpec{
		{InstanceNumber: 1, ImageType: []string{"ORIGINAL", "PRIMARY", "LOCALIZER"}},
		{InstanceNumber: 2, ImageType: []string{"ORIGINAL", "PRIMARY", "LOCALIZER"}},
		{InstanceNumber: 3, ImageType: []string{"ORIGINAL", "PRIMARY", "AXIAL"}},
		{InstanceNumber: 4, ImageType: []string{"ORIGINAL", "PRIMARY", "AXIAL"}},
		{InstanceNumber: 5, ImageType: []string{"ORIGINAL", "PRIMARY", "AXIAL"}},
	}
	c.image(modalities.MR, "mr_t1", "T1 MPRAGE", instances)
}

func vendorNoiseCourse(c *course) {
	ctUID := c.w.UID()
	c.write(SeriesSpec{
		Dir: "ct_planning", Modality: modalities.CT, Description: "Planning CT", SeriesUID: ctUID,
		Noise: noise.Profile{noise.SiemensCSA, noise.MalformedLengths}, Instances: Instances(3),
	})
	st := c.structSet("rtstruct", StructSpec{Label: "Main", CTSeriesUID: ctUID, CTStudyUID: c.studyUID})

	doses := c.doseUIDs(1)
	c.dose("rtdose", doses[0], DoseSpec{DoseType: "PHYSICAL", SummationType: "PLAN"})
	c.plan("rtplan", PlanSpec{
		Label: "Main", ApprovalStatus: "APPROVED", PlanIntent: "CURATIVE",
		Date: "20200110", Time: "101500", StructUID: st, DoseUIDs: doses,
	})

	c.write(SeriesSpec{
		Dir: "mr_t1", Modality: modalities.MR, Description: "T1 GE", Noise: noise.Profile(noise.Kinds()),
		Instances: Instances(2),
	})
}
