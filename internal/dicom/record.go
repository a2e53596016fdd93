// Package dicom reads the identifying header fields of DICOM files into
// immutable records.
package dicom

import (
	"path/filepath"
	"strings"
)

// Field is a tag value that may be absent from the header.
type Field[T any] struct {
	value T
	ok    bool
}

// Some returns a present field.
func Some[T any](v T) Field[T] {
	return Field[T]{value: v, ok: true}
}

// Get returns the value and whether it was present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.ok
}

// Or returns the value, or def when the field is absent.
func (f Field[T]) Or(def T) T {
	if !f.ok {
		return def
	}
	return f.value
}

// Present reports whether the tag was found.
func (f Field[T]) Present() bool {
	return f.ok
}

// CorruptedLabel is used for a subject or timepoint whose source tag is
// missing.
const CorruptedLabel = "Corrupted"

// Identity is the subject and timepoint a file belongs to.
type Identity struct {
	Subject   string
	Timepoint string
}

// Record holds the header fields of one file. Records are never modified
// after Read returns them.
type Record struct {
	Path     string
	Identity Identity

	PatientID         Field[string]
	StudyDate         Field[string]
	StudyInstanceUID  Field[string]
	SeriesInstanceUID Field[string]
	SOPInstanceUID    Field[string]
	SOPClassUID       Field[string]
	Modality          Field[string]
	SeriesDescription Field[string]
	SeriesNumber      Field[int]
	InstanceNumber    Field[int]
	ImageType         Field[[]string]
	TransferSyntaxUID Field[string]

	// RTPLAN
	ApprovalStatus Field[string]
	PlanIntent     Field[string]
	PlanDate       Field[string]
	PlanTime       Field[string]
	// ReferencedStructureSetUIDs lists ReferencedSOPInstanceUID of every
	// ReferencedStructureSetSequence item, in sequence order. An item without
	// the tag is kept as "".
	ReferencedStructureSetUIDs []string
	// ReferencedDoseUIDs lists ReferencedSOPInstanceUID of every
	// ReferencedDoseSequence item, in sequence order, "" where absent.
	ReferencedDoseUIDs []string

	// RTSTRUCT: SeriesInstanceUID found through ReferencedFrameOfReferenceSequence[0]
	// > RTReferencedStudySequence[0] > RTReferencedSeriesSequence[0].
	ReferencedSeriesUID Field[string]

	// RTDOSE
	DoseType          Field[string]
	DoseSummationType Field[string]
}

// FileName returns the base name of the record's file.
func (r *Record) FileName() string {
	return filepath.Base(r.Path)
}

// ImageTypeKey joins the ImageType values with the DICOM multi-value
// separator so tuples can be compared and used as map keys.
func (r *Record) ImageTypeKey() string {
	return strings.Join(r.ImageType.Or(nil), `\`)
}

// IsCompressed reports whether the record's pixel data needs decompression
// before use.
func (r *Record) IsCompressed() bool {
	ts, ok := r.TransferSyntaxUID.Get()
	return ok && IsCompressedSyntax(ts)
}

// IdentityPolicy decides how subject names are derived.
type IdentityPolicy struct {
	// FromHeader takes the subject from PatientID instead of the path.
	FromHeader bool
	// SubjectPosition indexes the path components when FromHeader is false.
	// Negative values count from the end, so -1 is the file name.
	SubjectPosition int
}

// DefaultIdentityPolicy picks the grandparent directory of each file.
func DefaultIdentityPolicy() IdentityPolicy {
	return IdentityPolicy{SubjectPosition: -3}
}

// Resolve returns the identity of rec. The timepoint is always the StudyDate.
func (p IdentityPolicy) Resolve(rec *Record) Identity {
	id := Identity{
		Subject:   CorruptedLabel,
		Timepoint: rec.StudyDate.Or(CorruptedLabel),
	}
	if p.FromHeader {
		id.Subject = rec.PatientID.Or(CorruptedLabel)
		return id
	}
	if subject := pathComponent(rec.Path, p.SubjectPosition); subject != "" {
		id.Subject = subject
	}
	return id
}

func pathComponent(path string, position int) string {
	parts := strings.FieldsFunc(filepath.ToSlash(filepath.Clean(path)), func(r rune) bool { return r == '/' })
	idx := position
	if idx < 0 {
		idx = len(parts) + position
	}
	if idx < 0 || idx >= len(parts) {
		return ""
	}
	return parts[idx]
}
