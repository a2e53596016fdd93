// Package util provides tag lookup helpers shared by the reader and the CLI.
package util

import (
	"fmt"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// RT tags are spelled out by group/element so lookups do not depend on the
// dictionary names shipped with the parser.
var (
	TagReferencedSOPInstanceUID           = tag.Tag{Group: 0x0008, Element: 0x1155}
	TagRTPlanDate                         = tag.Tag{Group: 0x300A, Element: 0x0006}
	TagRTPlanTime                         = tag.Tag{Group: 0x300A, Element: 0x0007}
	TagPlanIntent                         = tag.Tag{Group: 0x300A, Element: 0x000A}
	TagApprovalStatus                     = tag.Tag{Group: 0x300E, Element: 0x0002}
	TagReferencedStructureSetSequence     = tag.Tag{Group: 0x300C, Element: 0x0060}
	TagReferencedDoseSequence             = tag.Tag{Group: 0x300C, Element: 0x0080}
	TagReferencedFrameOfReferenceSequence = tag.Tag{Group: 0x3006, Element: 0x0010}
	TagRTReferencedStudySequence          = tag.Tag{Group: 0x3006, Element: 0x0012}
	TagRTReferencedSeriesSequence         = tag.Tag{Group: 0x3006, Element: 0x0014}
	TagDoseType                           = tag.Tag{Group: 0x3004, Element: 0x0004}
	TagDoseSummationType                  = tag.Tag{Group: 0x3004, Element: 0x000A}
	TagStructureSetLabel                  = tag.Tag{Group: 0x3006, Element: 0x0002}
	TagRTPlanLabel                        = tag.Tag{Group: 0x300A, Element: 0x0002}
	TagFrameOfReferenceUID                = tag.Tag{Group: 0x0020, Element: 0x0052}
	TagReferencedRTPlanSequence           = tag.Tag{Group: 0x300C, Element: 0x0002}
	TagReferencedSOPClassUID              = tag.Tag{Group: 0x0008, Element: 0x1150}
	TagStructureSetROISequence            = tag.Tag{Group: 0x3006, Element: 0x0020}
)

// TagScope represents the DICOM hierarchy level a tag belongs to.
type TagScope int

const (
	// ScopePatient indicates tags that identify the subject.
	ScopePatient TagScope = iota
	// ScopeStudy indicates tags shared by a study (a timepoint).
	ScopeStudy
	// ScopeSeries indicates tags shared by a series bucket.
	ScopeSeries
	// ScopeImage indicates tags that vary per file.
	ScopeImage
	// ScopePlan indicates RT plan, structure and dose reference tags.
	ScopePlan
)

// String returns the string representation of a TagScope.
func (s TagScope) String() string {
	switch s {
	case ScopePatient:
		return "Patient"
	case ScopeStudy:
		return "Study"
	case ScopeSeries:
		return "Series"
	case ScopeImage:
		return "Image"
	case ScopePlan:
		return "Plan"
	default:
		return "Unknown"
	}
}

// TagInfo contains information about a DICOM tag, including its scope.
type TagInfo struct {
	Name  string
	Tag   tag.Tag
	Scope TagScope
}

// tagRegistry maps lowercase tag names to their TagInfo.
var tagRegistry = map[string]TagInfo{
	"patientid":   {Name: "PatientID", Tag: tag.PatientID, Scope: ScopePatient},
	"patientname": {Name: "PatientName", Tag: tag.PatientName, Scope: ScopePatient},

	"studyinstanceuid": {Name: "StudyInstanceUID", Tag: tag.StudyInstanceUID, Scope: ScopeStudy},
	"studydate":        {Name: "StudyDate", Tag: tag.StudyDate, Scope: ScopeStudy},
	"studydescription": {Name: "StudyDescription", Tag: tag.StudyDescription, Scope: ScopeStudy},

	"seriesinstanceuid":   {Name: "SeriesInstanceUID", Tag: tag.SeriesInstanceUID, Scope: ScopeSeries},
	"seriesdescription":   {Name: "SeriesDescription", Tag: tag.SeriesDescription, Scope: ScopeSeries},
	"seriesnumber":        {Name: "SeriesNumber", Tag: tag.SeriesNumber, Scope: ScopeSeries},
	"modality":            {Name: "Modality", Tag: tag.Modality, Scope: ScopeSeries},
	"frameofreferenceuid": {Name: "FrameOfReferenceUID", Tag: TagFrameOfReferenceUID, Scope: ScopeSeries},

	"sopinstanceuid":    {Name: "SOPInstanceUID", Tag: tag.SOPInstanceUID, Scope: ScopeImage},
	"sopclassuid":       {Name: "SOPClassUID", Tag: tag.SOPClassUID, Scope: ScopeImage},
	"instancenumber":    {Name: "InstanceNumber", Tag: tag.InstanceNumber, Scope: ScopeImage},
	"imagetype":         {Name: "ImageType", Tag: tag.ImageType, Scope: ScopeImage},
	"transfersyntaxuid": {Name: "TransferSyntaxUID", Tag: tag.TransferSyntaxUID, Scope: ScopeImage},

	"approvalstatus":                     {Name: "ApprovalStatus", Tag: TagApprovalStatus, Scope: ScopePlan},
	"planintent":                         {Name: "PlanIntent", Tag: TagPlanIntent, Scope: ScopePlan},
	"rtplandate":                         {Name: "RTPlanDate", Tag: TagRTPlanDate, Scope: ScopePlan},
	"rtplantime":                         {Name: "RTPlanTime", Tag: TagRTPlanTime, Scope: ScopePlan},
	"rtplanlabel":                        {Name: "RTPlanLabel", Tag: TagRTPlanLabel, Scope: ScopePlan},
	"structuresetlabel":                  {Name: "StructureSetLabel", Tag: TagStructureSetLabel, Scope: ScopePlan},
	"referencedstructuresetsequence":     {Name: "ReferencedStructureSetSequence", Tag: TagReferencedStructureSetSequence, Scope: ScopePlan},
	"referenceddosesequence":             {Name: "ReferencedDoseSequence", Tag: TagReferencedDoseSequence, Scope: ScopePlan},
	"referencedsopinstanceuid":           {Name: "ReferencedSOPInstanceUID", Tag: TagReferencedSOPInstanceUID, Scope: ScopePlan},
	"referencedframeofreferencesequence": {Name: "ReferencedFrameOfReferenceSequence", Tag: TagReferencedFrameOfReferenceSequence, Scope: ScopePlan},
	"rtreferencedstudysequence":          {Name: "RTReferencedStudySequence", Tag: TagRTReferencedStudySequence, Scope: ScopePlan},
	"rtreferencedseriessequence":         {Name: "RTReferencedSeriesSequence", Tag: TagRTReferencedSeriesSequence, Scope: ScopePlan},
	"dosetype":                           {Name: "DoseType", Tag: TagDoseType, Scope: ScopePlan},
	"dosesummationtype":                  {Name: "DoseSummationType", Tag: TagDoseSummationType, Scope: ScopePlan},
}

// GetTagByName returns TagInfo for a given tag name.
// The lookup is case-insensitive. If the tag is not found, an error is returned
// with a suggestion for the closest matching tag name (using Levenshtein distance).
func GetTagByName(name string) (TagInfo, error) {
	normalizedName := strings.ToLower(strings.TrimSpace(name))

	if info, ok := tagRegistry[normalizedName]; ok {
		return info, nil
	}

	suggestion := findClosestTagName(normalizedName)
	if suggestion != "" {
		return TagInfo{}, fmt.Errorf("unknown tag %q, did you mean %q?", name, suggestion)
	}

	return TagInfo{}, fmt.Errorf("unknown tag %q", name)
}

// KnownTags returns every registered tag, ordered by scope then name.
func KnownTags() []TagInfo {
	infos := make([]TagInfo, 0, len(tagRegistry))
	for _, info := range tagRegistry {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Scope != infos[j].Scope {
			return infos[i].Scope < infos[j].Scope
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// findClosestTagName finds the closest matching tag name using Levenshtein distance.
// Returns empty string if no close match is found (distance > 5).
func findClosestTagName(input string) string {
	const maxDistance = 5
	bestDistance := maxDistance + 1
	var bestMatch string

	for _, info := range KnownTags() {
		distance := levenshteinDistance(input, strings.ToLower(info.Name))
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = info.Name
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance is the minimum number of single-character edits
// required to change one string into the other.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
