package dicom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mrsinham/rtcurate/internal/outcome"
	"github.com/mrsinham/rtcurate/internal/util"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	// DefaultReadTimeout caps the time spent parsing one header.
	DefaultReadTimeout = 30 * time.Second

	// DefaultMaxFileSize bounds the files handed to the parser.
	DefaultMaxFileSize int64 = 4 << 30
)

// ErrFileTooLarge is returned for files above Reader.MaxFileSize.
var ErrFileTooLarge = errors.New("file exceeds size cap")

// Reader parses DICOM headers into Records.
type Reader struct {
	// Timeout caps the parse of a single file. Zero disables the cap.
	Timeout time.Duration

	// MaxFileSize rejects larger files before they are opened. Zero
	// disables the cap.
	MaxFileSize int64
	Identity    IdentityPolicy
}

// NewReader returns a Reader with the default timeout, size cap and identity
// policy.
func NewReader() *Reader {
	return &Reader{Timeout: DefaultReadTimeout, MaxFileSize: DefaultMaxFileSize, Identity: DefaultIdentityPolicy()}
}

// Read parses the header of the file at path. Any failure is reported as
// outcome.ErrHeaderUnreadable so callers can skip the file and carry on.
func (r *Reader) Read(ctx context.Context, path string) (*Record, error) {
	ds, err := r.parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", path, outcome.ErrHeaderUnreadable, err)
	}
	rec := recordFromElements(path, ds.Elements)
	rec.Identity = r.Identity.Resolve(rec)
	return rec, nil
}

func (r *Reader) parse(ctx context.Context, path string) (dicom.Dataset, error) {
	if r.MaxFileSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return dicom.Dataset{}, err
		}
		if info.Size() > r.MaxFileSize {
			return dicom.Dataset{}, fmt.Errorf("%d bytes: %w", info.Size(), ErrFileTooLarge)
		}
	}
	if r.Timeout <= 0 {
		return parseDICOMTolerant(path)
	}

	type result struct {
		ds  dicom.Dataset
		err error
	}
	// The parse cannot be interrupted. On timeout or cancellation the
	// goroutine keeps the file open until it finishes, then its send lands in
	// the buffer and the file is closed. MaxFileSize bounds how long that is.
	done := make(chan result, 1)
	go func() {
		ds, err := parseDICOMTolerant(path)
		done <- result{ds, err}
	}()

	timer := time.NewTimer(r.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.ds, res.err
	case <-timer.C:
		return dicom.Dataset{}, fmt.Errorf("parse exceeded %s", r.Timeout)
	case <-ctx.Done():
		return dicom.Dataset{}, ctx.Err()
	}
}

// ReadDataset returns every element that could be parsed from path, pixel
// data excluded.
func ReadDataset(path string) (dicom.Dataset, error) {
	ds, err := parseDICOMTolerant(path)
	if err != nil {
		return ds, fmt.Errorf("read %s: %w: %w", path, outcome.ErrHeaderUnreadable, err)
	}
	return ds, nil
}

// parseDICOMTolerant parses a DICOM file element by element and keeps
// everything read before the first error. Private tags with odd VRs or
// truncated files would otherwise lose the whole header.
func parseDICOMTolerant(filepath string) (dicom.Dataset, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return dicom.Dataset{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return dicom.Dataset{}, err
	}

	p, err := dicom.NewParser(f, info.Size(), nil, dicom.SkipPixelData())
	if err != nil {
		return dicom.Dataset{}, err
	}

	var elements []*dicom.Element
	for {
		elem, err := p.Next()
		if err != nil {
			break
		}
		elements = append(elements, elem)
	}

	if len(elements) == 0 {
		return dicom.Dataset{}, fmt.Errorf("no elements parsed")
	}

	meta := p.GetMetadata()
	return dicom.Dataset{Elements: append(meta.Elements, elements...)}, nil
}

func recordFromElements(path string, elems []*dicom.Element) *Record {
	return &Record{
		Path:              path,
		PatientID:         stringField(elems, tag.PatientID),
		StudyDate:         stringField(elems, tag.StudyDate),
		StudyInstanceUID:  stringField(elems, tag.StudyInstanceUID),
		SeriesInstanceUID: stringField(elems, tag.SeriesInstanceUID),
		SOPInstanceUID:    stringField(elems, tag.SOPInstanceUID),
		SOPClassUID:       stringField(elems, tag.SOPClassUID),
		Modality:          stringField(elems, tag.Modality),
		SeriesDescription: stringField(elems, tag.SeriesDescription),
		SeriesNumber:      intField(elems, tag.SeriesNumber),
		InstanceNumber:    intField(elems, tag.InstanceNumber),
		ImageType:         multiField(elems, tag.ImageType),
		TransferSyntaxUID: stringField(elems, tag.TransferSyntaxUID),

		ApprovalStatus:             stringField(elems, util.TagApprovalStatus),
		PlanIntent:                 stringField(elems, util.TagPlanIntent),
		PlanDate:                   stringField(elems, util.TagRTPlanDate),
		PlanTime:                   stringField(elems, util.TagRTPlanTime),
		ReferencedStructureSetUIDs: sequenceRefs(elems, util.TagReferencedStructureSetSequence),
		ReferencedDoseUIDs:         sequenceRefs(elems, util.TagReferencedDoseSequence),

		ReferencedSeriesUID: nestedString(elems, tag.SeriesInstanceUID,
			util.TagReferencedFrameOfReferenceSequence,
			util.TagRTReferencedStudySequence,
			util.TagRTReferencedSeriesSequence,
		),

		DoseType:          stringField(elems, util.TagDoseType),
		DoseSummationType: stringField(elems, util.TagDoseSummationType),
	}
}

func findElement(elems []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, e := range elems {
		if e != nil && e.Tag == t {
			return e
		}
	}
	return nil
}

func cleanString(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func stringField(elems []*dicom.Element, t tag.Tag) Field[string] {
	e := findElement(elems, t)
	if e == nil || e.Value == nil {
		return Field[string]{}
	}
	switch v := e.Value.GetValue().(type) {
	case []string:
		if len(v) > 0 {
			if s := cleanString(v[0]); s != "" {
				return Some(s)
			}
		}
	case []int:
		if len(v) > 0 {
			return Some(strconv.Itoa(v[0]))
		}
	case []float64:
		if len(v) > 0 {
			return Some(strconv.FormatFloat(v[0], 'f', -1, 64))
		}
	}
	return Field[string]{}
}

func intField(elems []*dicom.Element, t tag.Tag) Field[int] {
	e := findElement(elems, t)
	if e == nil || e.Value == nil {
		return Field[int]{}
	}
	switch v := e.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return Some(v[0])
		}
	case []string:
		if len(v) > 0 {
			if n, err := strconv.Atoi(cleanString(v[0])); err == nil {
				return Some(n)
			}
		}
	}
	return Field[int]{}
}

func multiField(elems []*dicom.Element, t tag.Tag) Field[[]string] {
	e := findElement(elems, t)
	if e == nil || e.Value == nil {
		return Field[[]string]{}
	}
	v, ok := e.Value.GetValue().([]string)
	if !ok || len(v) == 0 {
		return Field[[]string]{}
	}
	out := make([]string, len(v))
	for i, s := range v {
		out[i] = cleanString(s)
	}
	return Some(out)
}

// sequenceItems returns the element lists of every item of the sequence t.
func sequenceItems(elems []*dicom.Element, t tag.Tag) [][]*dicom.Element {
	e := findElement(elems, t)
	if e == nil || e.Value == nil {
		return nil
	}
	items, ok := e.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	out := make([][]*dicom.Element, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if children, ok := item.GetValue().([]*dicom.Element); ok {
			out = append(out, children)
		}
	}
	return out
}

func sequenceRefs(elems []*dicom.Element, seq tag.Tag) []string {
	items := sequenceItems(elems, seq)
	if len(items) == 0 {
		return nil
	}
	refs := make([]string, len(items))
	for i, item := range items {
		// an item without a UID keeps its slot as ""
		refs[i] = stringField(item, util.TagReferencedSOPInstanceUID).Or("")
	}
	return refs
}

// nestedString follows the first item of each sequence in path and returns
// the string value of leaf inside the innermost item.
func nestedString(elems []*dicom.Element, leaf tag.Tag, path ...tag.Tag) Field[string] {
	current := elems
	for _, seq := range path {
		items := sequenceItems(current, seq)
		if len(items) == 0 {
			return Field[string]{}
		}
		current = items[0]
	}
	return stringField(current, leaf)
}

// ElementString formats the value of tag t in ds for display.
func ElementString(ds dicom.Dataset, t tag.Tag) (string, bool) {
	e := findElement(ds.Elements, t)
	if e == nil || e.Value == nil {
		return "", false
	}
	if items := sequenceItems(ds.Elements, t); items != nil {
		return fmt.Sprintf("sequence of %d item(s)", len(items)), true
	}
	if v, ok := e.Value.GetValue().([]string); ok {
		cleaned := make([]string, len(v))
		for i, s := range v {
			cleaned[i] = cleanString(s)
		}
		return strings.Join(cleaned, `\`), true
	}
	return e.Value.String(), true
}
