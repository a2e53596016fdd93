// Package synth writes small synthetic DICOM series and RT objects. Headers
// are complete enough for grouping, deduplication and RT resolution; pixel
// payloads are tiny.
package synth

import (
	"fmt"
	"hash/fnv"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
	"sort"

	"github.com/mrsinham/rtcurate/internal/dicom/modalities"
	"github.com/mrsinham/rtcurate/internal/dicom/synth/noise"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	uidRoot = "1.2.826.0.1.3680043.8.498."

	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
	implementationClassUID = "1.2.826.0.1.3680043.8.498.1"

	// pixel payload size for image modalities; wide enough for the label
	frameRows = 16
	frameCols = 64
)

// File describes one written file.
type File struct {
	Path           string
	Modality       modalities.Modality
	PatientID      string
	StudyUID       string
	SeriesUID      string
	SOPInstanceUID string
	InstanceNumber int
}

// InstanceSpec describes one file of a series.
type InstanceSpec struct {
	// FileName defaults to IMG<instance>.dcm.
	FileName string
	// SOPInstanceUID is generated when empty.
	SOPInstanceUID string
	InstanceNumber int
	ImageType      []string
	Extra          []*dicom.Element
	// Omit removes tags from this file only.
	Omit []tag.Tag
}

// SeriesSpec describes a series written under Writer.Root.
type SeriesSpec struct {
	// Dir is relative to the writer root.
	Dir      string
	Modality modalities.Modality
	// RawModality, when set, is written to the Modality tag instead of
	// Modality (for example "RTSS" or "US").
	RawModality  string
	PatientID    string
	StudyDate    string
	StudyUID     string
	SeriesUID    string
	Description  string
	SeriesNumber int
	// Omit removes tags from every file of the series.
	Omit []tag.Tag
	// Noise adds vendor private elements to every file of the series.
	Noise     noise.Profile
	Instances []InstanceSpec
}

// Writer writes synthetic series below Root. UIDs are derived from Seed so
// two writers with the same seed produce the same tree.
type Writer struct {
	Root string

	// Noise applies to every image series that does not set its own.
	Noise noise.Profile

	seed uint64
	rng  *randv2.Rand
	uids int
}

// NewWriter creates a writer rooted at root.
func NewWriter(root string, seed uint64) *Writer {
	return &Writer{
		Root: root,
		seed: seed,
		rng:  randv2.New(randv2.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// UID returns a new UID unique within this writer.
func (w *Writer) UID() string {
	w.uids++
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d/%d", w.seed, w.uids)
	return fmt.Sprintf("%s%d.%d", uidRoot, h.Sum64()%1_000_000_000_000, w.uids)
}

// Instances returns n instance specs numbered from 1 sharing imageType.
func Instances(n int, imageType ...string) []InstanceSpec {
	if len(imageType) == 0 {
		imageType = []string{"ORIGINAL", "PRIMARY", "AXIAL"}
	}
	out := make([]InstanceSpec, n)
	for i := range out {
		out[i] = InstanceSpec{InstanceNumber: i + 1, ImageType: imageType}
	}
	return out
}

// WriteSeries writes every instance of s and returns the files in instance
// order. Missing study and series UIDs are generated.
func (w *Writer) WriteSeries(s SeriesSpec) ([]File, error) {
	if s.StudyUID == "" {
		s.StudyUID = w.UID()
	}
	if s.SeriesUID == "" {
		s.SeriesUID = w.UID()
	}
	if s.PatientID == "" {
		s.PatientID = "ANON"
	}
	if s.StudyDate == "" {
		s.StudyDate = "20200101"
	}

	dir := filepath.Join(w.Root, s.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create series directory: %w", err)
	}

	if len(s.Noise) == 0 && isImage(s.Modality) {
		s.Noise = w.Noise
	}

	gen := modalities.GetGenerator(s.Modality)
	scanners := gen.Scanners()
	params := gen.GenerateSeriesParams(scanners[w.rng.IntN(len(scanners))], w.rng)

	files := make([]File, 0, len(s.Instances))
	for i, inst := range s.Instances {
		if inst.SOPInstanceUID == "" {
			inst.SOPInstanceUID = w.UID()
		}
		if inst.FileName == "" {
			inst.FileName = fmt.Sprintf("IMG%04d.dcm", i+1)
		}
		if len(s.Noise) > 0 {
			inst.Extra = append(inst.Extra[:len(inst.Extra):len(inst.Extra)], s.Noise.Elements(w.rng)...)
		}

		ds, err := w.instanceDataset(s, inst, gen, params)
		if err != nil {
			return nil, fmt.Errorf("build instance %d of %s: %w", i+1, s.Dir, err)
		}

		path := filepath.Join(dir, inst.FileName)
		if err := writeDatasetToFile(path, ds, s.Noise.WriteOptions()...); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		if err := s.Noise.Patch(path); err != nil {
			return nil, fmt.Errorf("add noise to %s: %w", path, err)
		}

		files = append(files, File{
			Path:           path,
			Modality:       s.Modality,
			PatientID:      s.PatientID,
			StudyUID:       s.StudyUID,
			SeriesUID:      s.SeriesUID,
			SOPInstanceUID: inst.SOPInstanceUID,
			InstanceNumber: inst.InstanceNumber,
		})
	}
	return files, nil
}

func (w *Writer) instanceDataset(s SeriesSpec, inst InstanceSpec, gen modalities.Generator, params modalities.SeriesParams) (dicom.Dataset, error) {
	modalityStr := string(s.Modality)
	if s.RawModality != "" {
		modalityStr = s.RawModality
	}

	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{gen.SOPClassUID()}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{inst.SOPInstanceUID}),
		mustNewElement(tag.ImplementationClassUID, []string{implementationClassUID}),

		mustNewElement(tag.PatientName, []string{s.PatientID}),
		mustNewElement(tag.PatientID, []string{s.PatientID}),
		mustNewElement(tag.StudyDate, []string{s.StudyDate}),
		mustNewElement(tag.StudyInstanceUID, []string{s.StudyUID}),
		mustNewElement(tag.SeriesInstanceUID, []string{s.SeriesUID}),
		mustNewElement(tag.SeriesNumber, []string{fmt.Sprintf("%d", s.SeriesNumber)}),
		mustNewElement(tag.Modality, []string{modalityStr}),
		mustNewElement(tag.SOPInstanceUID, []string{inst.SOPInstanceUID}),
		mustNewElement(tag.SOPClassUID, []string{gen.SOPClassUID()}),
		mustNewElement(tag.InstanceNumber, []string{fmt.Sprintf("%d", inst.InstanceNumber)}),
		mustNewElement(tag.Manufacturer, []string{params.Scanner.Manufacturer}),
		mustNewElement(tag.ManufacturerModelName, []string{params.Scanner.Model}),
	}
	if s.Description != "" {
		elements = append(elements, mustNewElement(tag.SeriesDescription, []string{s.Description}))
	}
	if len(inst.ImageType) > 0 {
		elements = append(elements, mustNewElement(tag.ImageType, inst.ImageType))
	}

	ds := &dicom.Dataset{Elements: elements}
	if err := gen.AppendModalityElements(ds, params); err != nil {
		return dicom.Dataset{}, err
	}
	ds.Elements = append(ds.Elements, inst.Extra...)

	if hasPixels(s.Modality) {
		label := fmt.Sprintf("S%d I%d", s.SeriesNumber, inst.InstanceNumber)
		ds.Elements = append(ds.Elements, pixelElements(w.rng, label)...)
	}

	omit := make(map[tag.Tag]struct{}, len(s.Omit)+len(inst.Omit))
	for _, t := range append(append([]tag.Tag{}, s.Omit...), inst.Omit...) {
		omit[t] = struct{}{}
	}
	kept := ds.Elements[:0]
	for _, e := range ds.Elements {
		if _, drop := omit[e.Tag]; !drop {
			kept = append(kept, e)
		}
	}

	// Elements must be written in ascending tag order.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Tag.Group != kept[j].Tag.Group {
			return kept[i].Tag.Group < kept[j].Tag.Group
		}
		return kept[i].Tag.Element < kept[j].Tag.Element
	})
	return dicom.Dataset{Elements: kept}, nil
}

// isImage reports whether m is an image series. RT objects never get noise;
// their reference sequences sit after the malformed elements.
func isImage(m modalities.Modality) bool {
	switch m {
	case modalities.CT, modalities.MR, modalities.PET, modalities.OT:
		return true
	}
	return false
}

func hasPixels(m modalities.Modality) bool {
	switch m {
	case modalities.CT, modalities.MR, modalities.PET, modalities.OT, modalities.RTDose:
		return true
	}
	return false
}

func pixelElements(rng *randv2.Rand, label string) []*dicom.Element {
	nativeFrame := labelFrame(rng, label)
	return []*dicom.Element{
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.Rows, []int{frameRows}),
		mustNewElement(tag.Columns, []int{frameCols}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{12}),
		mustNewElement(tag.HighBit, []int{11}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{
				{
					Encapsulated: false,
					NativeData:   nativeFrame,
				},
			},
		}),
	}
}

// writeDatasetToFile writes a DICOM dataset to a file
func writeDatasetToFile(filename string, ds dicom.Dataset, opts ...dicom.WriteOption) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return dicom.Write(f, ds, opts...)
}

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}
