package synth

import (
	"fmt"

	"github.com/mrsinham/rtcurate/internal/dicom/modalities"
	"github.com/mrsinham/rtcurate/internal/util"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// PlanSpec describes the RT-specific header of a plan.
type PlanSpec struct {
	Label string
	// ApprovalStatus and PlanIntent are omitted when empty.
	ApprovalStatus string
	PlanIntent     string
	Date           string
	Time           string
	// StructUID is the referenced structure set; empty omits the sequence
	// unless ExtraStructUIDs is set.
	StructUID string
	// ExtraStructUIDs follow StructUID in the sequence. In both lists an
	// empty UID writes an item without ReferencedSOPInstanceUID.
	ExtraStructUIDs []string
	DoseUIDs        []string
}

// Elements returns the plan elements to add to an RTPLAN instance.
func (p PlanSpec) Elements() []*dicom.Element {
	var elems []*dicom.Element
	if p.Label != "" {
		elems = append(elems, mustNewElement(util.TagRTPlanLabel, []string{p.Label}))
	}
	if p.Date != "" {
		elems = append(elems, mustNewElement(util.TagRTPlanDate, []string{p.Date}))
	}
	if p.Time != "" {
		elems = append(elems, mustNewElement(util.TagRTPlanTime, []string{p.Time}))
	}
	if p.PlanIntent != "" {
		elems = append(elems, mustNewElement(util.TagPlanIntent, []string{p.PlanIntent}))
	}
	if p.StructUID != "" || len(p.ExtraStructUIDs) > 0 {
		uids := append([]string{p.StructUID}, p.ExtraStructUIDs...)
		items := make([][]*dicom.Element, 0, len(uids))
		for _, uid := range uids {
			items = append(items, referenceItem(modalities.RTStructureSetStorage, uid))
		}
		elems = append(elems, mustNewElement(util.TagReferencedStructureSetSequence, items))
	}
	if len(p.DoseUIDs) > 0 {
		items := make([][]*dicom.Element, 0, len(p.DoseUIDs))
		for _, uid := range p.DoseUIDs {
			items = append(items, referenceItem(modalities.RTDoseStorage, uid))
		}
		elems = append(elems, mustNewElement(util.TagReferencedDoseSequence, items))
	}
	if p.ApprovalStatus != "" {
		elems = append(elems, mustNewElement(util.TagApprovalStatus, []string{p.ApprovalStatus}))
	}
	return elems
}

// StructSpec describes the RT-specific header of a structure set.
type StructSpec struct {
	Label string
	// CTSeriesUID is the referenced planning CT; empty omits the chain.
	CTSeriesUID string
	CTStudyUID  string
	ROIs        []string
}

// Elements returns the structure set elements.
func (s StructSpec) Elements() []*dicom.Element {
	var elems []*dicom.Element
	if s.Label != "" {
		elems = append(elems, mustNewElement(util.TagStructureSetLabel, []string{s.Label}))
	}
	if s.CTSeriesUID != "" {
		series := []*dicom.Element{
			mustNewElement(tag.SeriesInstanceUID, []string{s.CTSeriesUID}),
		}
		study := append(referenceItem("1.2.840.10008.3.1.2.3.1", s.CTStudyUID),
			mustNewElement(util.TagRTReferencedSeriesSequence, [][]*dicom.Element{series}),
		)
		frameOfRef := []*dicom.Element{
			mustNewElement(util.TagFrameOfReferenceUID, []string{s.CTSeriesUID + ".1"}),
			mustNewElement(util.TagRTReferencedStudySequence, [][]*dicom.Element{study}),
		}
		elems = append(elems, mustNewElement(util.TagReferencedFrameOfReferenceSequence, [][]*dicom.Element{frameOfRef}))
	}
	if len(s.ROIs) > 0 {
		items := make([][]*dicom.Element, 0, len(s.ROIs))
		for i, name := range s.ROIs {
			items = append(items, []*dicom.Element{
				mustNewElement(tag.Tag{Group: 0x3006, Element: 0x0022}, []string{fmt.Sprintf("%d", i+1)}),
				mustNewElement(tag.Tag{Group: 0x3006, Element: 0x0026}, []string{name}),
			})
		}
		elems = append(elems, mustNewElement(util.TagStructureSetROISequence, items))
	}
	return elems
}

// DoseSpec describes the RT-specific header of a dose grid.
type DoseSpec struct {
	// DoseType is PHYSICAL or EFFECTIVE.
	DoseType string
	// SummationType is PLAN, FRACTION, BEAM, ...
	SummationType string
	PlanUID       string
}

// Elements returns the dose elements.
func (d DoseSpec) Elements() []*dicom.Element {
	var elems []*dicom.Element
	if d.DoseType != "" {
		elems = append(elems, mustNewElement(util.TagDoseType, []string{d.DoseType}))
	}
	if d.SummationType != "" {
		elems = append(elems, mustNewElement(util.TagDoseSummationType, []string{d.SummationType}))
	}
	if d.PlanUID != "" {
		elems = append(elems, mustNewElement(util.TagReferencedRTPlanSequence, [][]*dicom.Element{
			referenceItem(modalities.RTPlanStorage, d.PlanUID),
		}))
	}
	return elems
}

func referenceItem(classUID, instanceUID string) []*dicom.Element {
	item := []*dicom.Element{mustNewElement(util.TagReferencedSOPClassUID, []string{classUID})}
	if instanceUID != "" {
		item = append(item, mustNewElement(util.TagReferencedSOPInstanceUID, []string{instanceUID}))
	}
	return item
}

// DoseFileName is the file name a plan's ReferencedDoseSequence entry
// points at.
func DoseFileName(sopUID string) string {
	return sopUID + ".dcm"
}

// WriteRTObject writes a single-instance RT series whose SOPInstanceUID is
// uid (generated when empty) with the given RT elements.
func (w *Writer) WriteRTObject(s SeriesSpec, uid, fileName string, extra []*dicom.Element) (File, error) {
	if uid == "" {
		uid = w.UID()
	}
	s.Instances = []InstanceSpec{{
		FileName:       fileName,
		SOPInstanceUID: uid,
		InstanceNumber: 1,
		Extra:          extra,
	}}
	files, err := w.WriteSeries(s)
	if err != nil {
		return File{}, err
	}
	return files[0], nil
}
