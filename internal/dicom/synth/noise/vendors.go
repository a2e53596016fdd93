package noise

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func geElements(rng *rand.Rand) []*dicom.Element {
	version := fmt.Sprintf("DV%d.%d_%d_M5", 20+rng.IntN(10), rng.IntN(10), rng.IntN(100))
	diffusion := make([]string, 4)
	for i := range diffusion {
		diffusion[i] = strconv.Itoa(rng.IntN(1000))
	}
	return []*dicom.Element{
		privateElement(tag.Tag{Group: 0x0009, Element: 0x0010}, "LO", []string{"GEMS_IDEN_01"}),
		privateElement(tag.Tag{Group: 0x0009, Element: 0x10E3}, "LO", []string{version}),
		privateElement(tag.Tag{Group: 0x0043, Element: 0x0010}, "LO", []string{"GEMS_PARM_01"}),
		privateElement(tag.Tag{Group: 0x0043, Element: 0x1039}, "IS", diffusion),
	}
}

func philipsElements(rng *rand.Rand) []*dicom.Element {
	scale := []*dicom.Element{
		privateElement(tag.Tag{Group: 0x2005, Element: 0x0011}, "LO", []string{"Philips MR Imaging DD 005"}),
		privateElement(tag.Tag{Group: 0x2005, Element: 0x1100}, "DS", []string{strconv.FormatFloat(1+rng.Float64()*100, 'f', 6, 64)}),
		privateElement(tag.Tag{Group: 0x2005, Element: 0x1101}, "DS", []string{strconv.FormatFloat(rng.Float64()*10-5, 'f', 6, 64)}),
	}
	return []*dicom.Element{
		privateElement(tag.Tag{Group: 0x2001, Element: 0x0010}, "LO", []string{"Philips Imaging DD 001"}),
		privateElement(tag.Tag{Group: 0x2005, Element: 0x0010}, "LO", []string{"Philips MR Imaging DD 001"}),
		privateElement(tag.Tag{Group: 0x2005, Element: 0x100E}, "SQ", [][]*dicom.Element{scale}),
	}
}
