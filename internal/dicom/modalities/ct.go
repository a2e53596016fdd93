package modalities

import (
	"math/rand/v2"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// CTGenerator generates CT (Computed Tomography) specific metadata.
type CTGenerator struct{}

// Modality returns the CT modality type.
func (g *CTGenerator) Modality() Modality {
	return CT
}

// SOPClassUID returns the CT Image Storage SOP Class UID.
func (g *CTGenerator) SOPClassUID() string {
	return CTImageStorage
}

// Scanners returns available CT simulator configurations.
func (g *CTGenerator) Scanners() []Scanner {
	return []Scanner{
		{Manufacturer: "SIEMENS", Model: "SOMATOM Confidence RT Pro", DetectorRows: 64},
		{Manufacturer: "GE MEDICAL SYSTEMS", Model: "Discovery RT", DetectorRows: 16},
		{Manufacturer: "PHILIPS", Model: "Big Bore RT", DetectorRows: 16},
		{Manufacturer: "CANON", Model: "Aquilion LB", DetectorRows: 16},
	}
}

// GenerateSeriesParams generates CT-specific parameters for a series.
func (g *CTGenerator) GenerateSeriesParams(scanner Scanner, rng *rand.Rand) SeriesParams {
	kvpOptions := []float64{100, 120, 140}
	kernels := []string{"STANDARD", "SOFT", "BONE"}

	return SeriesParams{
		Modality:          CT,
		Scanner:           scanner,
		KVP:               kvpOptions[rng.IntN(len(kvpOptions))],
		ConvolutionKernel: kernels[rng.IntN(len(kernels))],
		RescaleIntercept:  -1024,
		RescaleSlope:      1,
		SliceThickness:    1.0 + float64(rng.IntN(3)), // 1-3 mm planning slices
	}
}

// AppendModalityElements appends CT-specific DICOM elements to a dataset.
func (g *CTGenerator) AppendModalityElements(ds *dicom.Dataset, params SeriesParams) error {
	ds.Elements = append(ds.Elements,
		mustNewElement(tag.KVP, []string{floatToDS(params.KVP)}),
		mustNewElement(tag.ConvolutionKernel, []string{params.ConvolutionKernel}),
		mustNewElement(tag.RescaleIntercept, []string{floatToDS(params.RescaleIntercept)}),
		mustNewElement(tag.RescaleSlope, []string{floatToDS(params.RescaleSlope)}),
		mustNewElement(tag.SliceThickness, []string{floatToDS(params.SliceThickness)}),
	)
	return nil
}
