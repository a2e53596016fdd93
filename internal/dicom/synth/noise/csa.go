package noise

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

type csaEntry struct {
	name   string
	vr     string
	syngo  int32
	values []string
}

var (
	csaImageEntries = []csaEntry{
		{"NumberOfImagesInMosaic", "IS", 6, []string{"1"}},
		{"SliceNormalVector", "FD", 3, []string{"0.0", "0.0", "1.0"}},
		{"B_value", "IS", 6, []string{"0"}},
		{"SliceMeasurementDuration", "DS", 3, []string{"265000.0"}},
		{"RealDwellTime", "IS", 6, []string{"5700"}},
		{"ImaCoilString", "LO", 19, []string{"HEA;HEP"}},
	}
	csaSeriesEntries = []csaEntry{
		{"UsedPatientWeight", "DS", 3, []string{"70.0"}},
		{"MrProtocolVersion", "IS", 6, []string{"1"}},
		{"MrProtocol", "LO", 19, []string{"### ASCCONV BEGIN ###"}},
		{"TablePositionOrigin", "FD", 3, []string{"0.0", "0.0", "0.0"}},
	}
)

// encodeCSA writes entries in the SV10 layout followed by trailing garbage.
func encodeCSA(entries []csaEntry, trailer []byte) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	buf.WriteString("SV10")
	buf.Write([]byte{0x04, 0x03, 0x02, 0x01})
	_ = binary.Write(&buf, le, uint32(len(entries)))
	_ = binary.Write(&buf, le, uint32(0x4D))

	for _, e := range entries {
		name := make([]byte, 64)
		copy(name, e.name)
		buf.Write(name)
		_ = binary.Write(&buf, le, int32(len(e.values)))
		vr := make([]byte, 4)
		copy(vr, e.vr)
		buf.Write(vr)
		_ = binary.Write(&buf, le, e.syngo)
		_ = binary.Write(&buf, le, int32(len(e.values)))
		_ = binary.Write(&buf, le, uint32(0x4D))

		for _, v := range e.values {
			for range 4 {
				_ = binary.Write(&buf, le, uint32(len(v)))
			}
			buf.WriteString(v)
			if pad := (4 - len(v)%4) % 4; pad > 0 {
				buf.Write(make([]byte, pad))
			}
		}
	}
	buf.Write(trailer)
	return buf.Bytes()
}

func siemensElements(rng *rand.Rand) []*dicom.Element {
	nested := []*dicom.Element{
		privateElement(tag.Tag{Group: 0x0029, Element: 0x0011}, "LO", []string{"SIEMENS CSA NON-IMAGE"}),
		privateElement(tag.Tag{Group: 0x0029, Element: 0x1100}, "OB", randomBytes(rng, 1024, 2048)),
	}
	return []*dicom.Element{
		privateElement(tag.Tag{Group: 0x0029, Element: 0x0010}, "LO", []string{"SIEMENS CSA HEADER"}),
		privateElement(tag.Tag{Group: 0x0029, Element: 0x1010}, "OB", encodeCSA(csaImageEntries, randomBytes(rng, 512, 1024))),
		privateElement(tag.Tag{Group: 0x0029, Element: 0x1020}, "OB", encodeCSA(csaSeriesEntries, randomBytes(rng, 256, 512))),
		privateElement(tag.Tag{Group: 0x0029, Element: 0x1102}, "SQ", [][]*dicom.Element{nested}),
	}
}
