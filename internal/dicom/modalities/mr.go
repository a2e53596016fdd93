package modalities

import (
	"math/rand/v2"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// MRGenerator generates MR (Magnetic Resonance) specific metadata.
type MRGenerator struct{}

// Modality returns the MR modality type.
func (g *MRGenerator) Modality() Modality {
	return MR
}

// SOPClassUID returns the MR Image Storage SOP Class UID.
func (g *MRGenerator) SOPClassUID() string {
	return MRImageStorage
}

// Scanners returns available MR scanner configurations.
func (g *MRGenerator) Scanners() []Scanner {
	return []Scanner{
		{Manufacturer: "SIEMENS", Model: "Skyra", FieldStrength: 3.0},
		{Manufacturer: "GE MEDICAL SYSTEMS", Model: "Signa HDxt", FieldStrength: 1.5},
		{Manufacturer: "PHILIPS", Model: "Ingenia", FieldStrength: 3.0},
	}
}

// GenerateSeriesParams generates MR-specific parameters for a series.
func (g *MRGenerator) GenerateSeriesParams(scanner Scanner, rng *rand.Rand) SeriesParams {
	sequences := []string{"T1_MPRAGE", "T2_FSE", "T2_FLAIR", "DWI"}

	return SeriesParams{
		Modality:              MR,
		Scanner:               scanner,
		SliceThickness:        1.0 + rng.Float64()*4.0,
		EchoTime:              10.0 + rng.Float64()*20.0,
		RepetitionTime:        400.0 + rng.Float64()*400.0,
		SequenceName:          sequences[rng.IntN(len(sequences))],
		MagneticFieldStrength: scanner.FieldStrength,
	}
}

// AppendModalityElements appends MR-specific DICOM elements to a dataset.
func (g *MRGenerator) AppendModalityElements(ds *dicom.Dataset, params SeriesParams) error {
	elements := []*dicom.Element{
		mustNewElement(tag.MagneticFieldStrength, []string{floatToDS(params.MagneticFieldStrength)}),
		mustNewElement(tag.SliceThickness, []string{floatToDS(params.SliceThickness)}),
	}
	if params.EchoTime != 0 {
		elements = append(elements, mustNewElement(tag.EchoTime, []string{floatToDS(params.EchoTime)}))
	}
	if params.RepetitionTime != 0 {
		elements = append(elements, mustNewElement(tag.RepetitionTime, []string{floatToDS(params.RepetitionTime)}))
	}
	if params.SequenceName != "" {
		elements = append(elements, mustNewElement(tag.SequenceName, []string{params.SequenceName}))
	}

	ds.Elements = append(ds.Elements, elements...)
	return nil
}
