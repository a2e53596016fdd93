// Package modalities defines the modalities the router knows about and the
// per-modality header elements used when writing synthetic series.
package modalities

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Modality is a normalized DICOM modality label. It doubles as the name of
// the folder a routed series lands in.
type Modality string

const (
	MR       Modality = "MR"
	CT       Modality = "CT"
	PET      Modality = "PET"
	OT       Modality = "OT"
	RTPlan   Modality = "RTPLAN"
	RTStruct Modality = "RTSTRUCT"
	RTDose   Modality = "RTDOSE"
	Unknown  Modality = ""
)

// Route is how the router treats a modality.
type Route int

const (
	// RouteUnknown sends the series to the Unknown_modality bucket.
	RouteUnknown Route = iota
	// RouteVerbatim copies the series unchanged under its modality folder.
	RouteVerbatim
	// RouteConvert deduplicates the series and hands it to the converter.
	RouteConvert
)

// AllModalities returns every modality the router recognizes.
func AllModalities() []Modality {
	return []Modality{RTDose, CT, RTStruct, RTPlan, PET, MR, OT}
}

// Normalize maps a raw Modality tag value to a known Modality, or Unknown.
// RTSS is an older spelling of RTSTRUCT and PT is the standard PET code.
func Normalize(raw string) Modality {
	m := Modality(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case "RTSS":
		return RTStruct
	case "PT":
		return PET
	}
	for _, known := range AllModalities() {
		if m == known {
			return m
		}
	}
	return Unknown
}

// IsValid checks if a modality string normalizes to a known modality.
func IsValid(m string) bool {
	return Normalize(m) != Unknown
}

// Route returns the routing class of m.
func (m Modality) Route() Route {
	switch m {
	case RTDose, CT, RTStruct, RTPlan, PET:
		return RouteVerbatim
	case MR, OT:
		return RouteConvert
	default:
		return RouteUnknown
	}
}

// IsRT reports whether m takes part in RT graph resolution. CT is included
// because the planning CT is chosen among a timepoint's CT series.
func (m Modality) IsRT() bool {
	switch m {
	case RTPlan, RTStruct, RTDose, CT:
		return true
	}
	return false
}

// SOP Class UIDs written into synthetic files.
const (
	CTImageStorage          = "1.2.840.10008.5.1.4.1.1.2"
	MRImageStorage          = "1.2.840.10008.5.1.4.1.1.4"
	PETImageStorage         = "1.2.840.10008.5.1.4.1.1.128"
	SecondaryCaptureStorage = "1.2.840.10008.5.1.4.1.1.7"
	RTDoseStorage           = "1.2.840.10008.5.1.4.1.1.481.2"
	RTStructureSetStorage   = "1.2.840.10008.5.1.4.1.1.481.3"
	RTPlanStorage           = "1.2.840.10008.5.1.4.1.1.481.5"
	RTIonPlanStorage        = "1.2.840.10008.5.1.4.1.1.481.8"
)

// Scanner represents an imaging device configuration.
type Scanner struct {
	Manufacturer string
	Model        string
	// MR-specific
	FieldStrength float64
	// CT-specific
	DetectorRows int
}

// SeriesParams holds modality-specific parameters for a series.
type SeriesParams struct {
	Modality Modality
	Scanner  Scanner

	// MR-specific
	EchoTime              float64
	RepetitionTime        float64
	SequenceName          string
	MagneticFieldStrength float64

	// CT-specific
	KVP               float64
	ConvolutionKernel string
	RescaleIntercept  float64
	RescaleSlope      float64

	SliceThickness float64
}

// Generator appends modality-specific elements to synthetic datasets.
type Generator interface {
	// Modality returns the modality type.
	Modality() Modality

	// SOPClassUID returns the SOP Class UID for this modality.
	SOPClassUID() string

	// Scanners returns available scanner configurations.
	Scanners() []Scanner

	// GenerateSeriesParams draws modality-specific parameters for a series.
	GenerateSeriesParams(scanner Scanner, rng *rand.Rand) SeriesParams

	// AppendModalityElements appends modality-specific DICOM elements to a dataset.
	AppendModalityElements(ds *dicom.Dataset, params SeriesParams) error
}

// GetGenerator returns the generator for the specified modality. RT objects
// and unknown modalities get a generator that only sets the SOP class.
func GetGenerator(m Modality) Generator {
	switch m {
	case CT:
		return &CTGenerator{}
	case MR:
		return &MRGenerator{}
	default:
		return &plainGenerator{modality: m}
	}
}

type plainGenerator struct {
	modality Modality
}

func (g *plainGenerator) Modality() Modality { return g.modality }

func (g *plainGenerator) SOPClassUID() string {
	switch g.modality {
	case PET:
		return PETImageStorage
	case RTDose:
		return RTDoseStorage
	case RTStruct:
		return RTStructureSetStorage
	case RTPlan:
		return RTPlanStorage
	default:
		return SecondaryCaptureStorage
	}
}

func (g *plainGenerator) Scanners() []Scanner {
	return []Scanner{{Manufacturer: "VARIAN", Model: "Eclipse"}}
}

func (g *plainGenerator) GenerateSeriesParams(scanner Scanner, _ *rand.Rand) SeriesParams {
	return SeriesParams{Modality: g.modality, Scanner: scanner}
}

func (g *plainGenerator) AppendModalityElements(*dicom.Dataset, SeriesParams) error {
	return nil
}

func mustNewElement(t tag.Tag, value any) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("element %v: %v", t, err))
	}
	return elem
}

// floatToDS formats f as a decimal string value.
func floatToDS(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
