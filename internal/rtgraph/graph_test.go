package rtgraph

import (
	"testing"

	"github.com/mrsinham/rtcurate/internal/dicom"
)

func plan(path, status, intent, date, tm string) *dicom.Record {
	r := &dicom.Record{Path: path}
	if status != "" {
		r.ApprovalStatus = dicom.Some(status)
	}
	if intent != "" {
		r.PlanIntent = dicom.Some(intent)
	}
	if date != "" {
		r.PlanDate = dicom.Some(date)
	}
	if tm != "" {
		r.PlanTime = dicom.Some(tm)
	}
	return r
}

func TestSelectPlan(t *testing.T) {
	tests := []struct {
		name  string
		plans []*dicom.Record
		want  string
	}{
		{"none", nil, ""},
		{
			"latest date wins",
			[]*dicom.Record{
				plan("a", "APPROVED", "CURATIVE", "20200101", "235959"),
				plan("b", "APPROVED", "CURATIVE", "20200102", "000000"),
			},
			"b",
		},
		{
			"same date, latest time wins",
			[]*dicom.Record{
				plan("morning", "APPROVED", "CURATIVE", "20200110", "080000"),
				plan("noon", "APPROVED", "CURATIVE", "20200110", "120000"),
				plan("early", "APPROVED", "CURATIVE", "20200110", "070000"),
			},
			"noon",
		},
		{
			"exact tie keeps the first",
			[]*dicom.Record{
				plan("first", "APPROVED", "CURATIVE", "20200110", "120000"),
				plan("second", "APPROVED", "CURATIVE", "20200110", "120000"),
			},
			"first",
		},
		{
			"unapproved and palliative are ignored",
			[]*dicom.Record{
				plan("draft", "UNAPPROVED", "CURATIVE", "20210101", "000000"),
				plan("pall", "APPROVED", "PALLIATIVE", "20210101", "000000"),
				plan("ok", "APPROVED", "CURATIVE", "20200101", "000000"),
			},
			"ok",
		},
		{
			"missing status and intent default to approved curative",
			[]*dicom.Record{
				plan("old", "APPROVED", "CURATIVE", "20190101", "000000"),
				plan("untagged", "", "", "20200101", "000000"),
			},
			"untagged",
		},
		{
			"all untagged, date and time alone decide",
			[]*dicom.Record{
				plan("jan", "", "", "20200101", "230000"),
				plan("feb-morning", "", "", "20200201", "080000"),
				plan("feb-noon", "", "", "20200201", "120000"),
				plan("feb-dawn", "", "", "20200201", "050000"),
			},
			"feb-noon",
		},
		{
			"missing date counts as zero",
			[]*dicom.Record{
				plan("nodate", "APPROVED", "CURATIVE", "", ""),
				plan("dated", "APPROVED", "CURATIVE", "19990101", "000000"),
			},
			"dated",
		},
		{
			"a lone undated plan still wins",
			[]*dicom.Record{plan("nodate", "", "", "", "garbage")},
			"nodate",
		},
		{
			"no eligible plan",
			[]*dicom.Record{plan("draft", "UNAPPROVED", "", "20200101", "")},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPlan(tt.plans)
			switch {
			case tt.want == "" && got != nil:
				t.Errorf("SelectPlan() = %s, want nil", got.Path)
			case tt.want != "" && (got == nil || got.Path != tt.want):
				t.Errorf("SelectPlan() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyDose(t *testing.T) {
	tests := []struct {
		doseType, summation string
		want                string
		ok                  bool
	}{
		{"EFFECTIVE", "PLAN", RBEUsed, true},
		{"EFFECTIVE", "MULTI_PLAN", RBEUsed, true},
		{"EFFECTIVE", "FRACTION", RBEFractionUsed, true},
		{"PHYSICAL", "PLAN", PhysicalUsed, true},
		{"physical", " plan ", PhysicalUsed, true},
		{"PHYSICAL", "FRACTION", PhysicalFractionUsed, true},
		{"PHYSICAL", "BEAM", "", false},
		{"PHYSICAL", "FRACTION_SESSION", "", false},
		{"ERROR", "PLAN", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		got, ok := ClassifyDose(tt.doseType, tt.summation)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ClassifyDose(%q, %q) = %q, %v; want %q, %v", tt.doseType, tt.summation, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAcceptedDoseNames(t *testing.T) {
	got := AcceptedDoseNames(&dicom.Record{ReferencedDoseUIDs: []string{"1.2", "3.4"}})
	if len(got) != 2 || got[0] != "1.2.dcm" || got[1] != "3.4.dcm" {
		t.Errorf("AcceptedDoseNames() = %v", got)
	}
	if got := AcceptedDoseNames(&dicom.Record{}); len(got) != 0 {
		t.Errorf("no references should accept nothing, got %v", got)
	}
	got = AcceptedDoseNames(&dicom.Record{ReferencedDoseUIDs: []string{"", "3.4"}})
	if len(got) != 1 || got[0] != "3.4.dcm" {
		t.Errorf("an item without a UID should accept nothing, got %v", got)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		Start: "START", PlanResolved: "PLAN_RESOLVED", StructResolved: "STRUCT_RESOLVED",
		CTResolved: "CT_RESOLVED", DoseResolved: "DOSE_RESOLVED", Done: "DONE", CTOnly: "CT_ONLY",
		State(42): "UNKNOWN",
	} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %s, want %s", int(s), s.String(), want)
		}
	}
}
