// Package rtgraph resolves the treatment chain of one RT timepoint: the
// approved plan, the structure set it references, the planning CT that
// structure set was drawn on and the dose grids the plan produced.
package rtgraph

import (
	"strconv"
	"strings"

	"github.com/mrsinham/rtcurate/internal/dicom"
)

// Output labels.
const (
	PlanUsed             = "1-RTPLAN_Used"
	OtherPlan            = "Other_RTPLAN"
	StructUsed           = "1-RTSTRUCT_Used"
	OtherStruct          = "Other_RTSTRUCT"
	CTUsedPrefix         = "1-BPLCT_Used_"
	OtherCT              = "Other_CT"
	PhysicalUsed         = "1-PHYSICAL_Used"
	PhysicalFractionUsed = "1-PHYSICALFRACTION_Used"
	RBEUsed              = "1-RBE_Used"
	RBEFractionUsed      = "1-RBEFRACTION_Used"
	OtherDose            = "Other_RTDOSE"
)

// Folder names inside a sorted timepoint and inside the curated output.
const (
	PlanDir   = "RTPLAN"
	StructDir = "RTSTRUCT"
	DoseDir   = "RTDOSE"
	CTDir     = "CT"
	RTCTDir   = "RTCT"

	RTSuffix = "_RT"
	CTSuffix = "_CT"
)

// State is a step of the resolution.
type State int

const (
	Start State = iota
	PlanResolved
	StructResolved
	CTResolved
	DoseResolved
	Done
	CTOnly
)

func (s State) String() string {
	switch s {
	case Start:
		return "START"
	case PlanResolved:
		return "PLAN_RESOLVED"
	case StructResolved:
		return "STRUCT_RESOLVED"
	case CTResolved:
		return "CT_RESOLVED"
	case DoseResolved:
		return "DOSE_RESOLVED"
	case Done:
		return "DONE"
	case CTOnly:
		return "CT_ONLY"
	default:
		return "UNKNOWN"
	}
}

// Dose is an accepted dose grid and the class it was placed under.
type Dose struct {
	Path  string
	Label string
}

// Graph is what was resolved for one timepoint. Absent references are
// empty Fields.
type Graph struct {
	State State

	// Plan is the winning plan, nil on the CT-only branch.
	Plan      *dicom.Record
	StructRef dicom.Field[string]
	// Struct is the matched structure set, nil when StructRef matched nothing.
	Struct *dicom.Record
	CTRef  dicom.Field[string]
	// CTSeries is the folder name of the planning CT, empty when unmatched.
	CTSeries string

	// AcceptedDoses are the file names the plan references.
	AcceptedDoses []string
	Classified    []Dose
	// Unclassified lists accepted dose files outside the four dose classes.
	Unclassified []string
	// Missing collects the reference misses that degraded a stage.
	Missing []error
}

// SelectPlan returns the approved curative plan with the latest
// (PlanDate, PlanTime), or nil. Missing ApprovalStatus counts as APPROVED
// and missing PlanIntent as CURATIVE. On an exact tie the first plan wins.
func SelectPlan(plans []*dicom.Record) *dicom.Record {
	var (
		best             *dicom.Record
		bestDate, bestTm float64
	)
	for _, p := range plans {
		if !eligible(p) {
			continue
		}
		date := numeric(p.PlanDate)
		tm := numeric(p.PlanTime)
		if best == nil || date > bestDate || (date == bestDate && tm > bestTm) {
			best, bestDate, bestTm = p, date, tm
		}
	}
	return best
}

func eligible(p *dicom.Record) bool {
	status := strings.ToUpper(strings.TrimSpace(p.ApprovalStatus.Or("APPROVED")))
	intent := strings.ToUpper(strings.TrimSpace(p.PlanIntent.Or("CURATIVE")))
	return status == "APPROVED" && intent == "CURATIVE"
}

// numeric parses a DA or TM value; missing or unparsable values are 0.
func numeric(f dicom.Field[string]) float64 {
	v, ok := f.Get()
	if !ok {
		return 0
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return n
}

// ClassifyDose maps (DoseType, DoseSummationType) to one of the four dose
// labels. PLAN matches as a substring, FRACTION exactly.
func ClassifyDose(doseType, summation string) (string, bool) {
	doseType = strings.ToUpper(strings.TrimSpace(doseType))
	summation = strings.ToUpper(strings.TrimSpace(summation))

	var planLabel, fractionLabel string
	switch doseType {
	case "EFFECTIVE":
		planLabel, fractionLabel = RBEUsed, RBEFractionUsed
	case "PHYSICAL":
		planLabel, fractionLabel = PhysicalUsed, PhysicalFractionUsed
	default:
		return "", false
	}
	switch {
	case strings.Contains(summation, "PLAN"):
		return planLabel, true
	case summation == "FRACTION":
		return fractionLabel, true
	}
	return "", false
}

// AcceptedDoseNames turns the plan's dose references into file names.
func AcceptedDoseNames(plan *dicom.Record) []string {
	names := make([]string, 0, len(plan.ReferencedDoseUIDs))
	for _, uid := range plan.ReferencedDoseUIDs {
		if uid == "" {
			continue
		}
		names = append(names, uid+".dcm")
	}
	return names
}
