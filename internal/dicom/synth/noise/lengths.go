package noise

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// The placeholder is written as a private OB element and renamed to
// LineThickness (0070,0253) FL with a length of 7 by PatchLengths. Writing
// the FL directly would fail the writer's length checks.
var placeholderTag = tag.Tag{Group: 0x0071, Element: 0x0010}

func lineThicknessPlaceholder() *dicom.Element {
	// 1.0f and 2.0f, little endian
	return privateElement(placeholderTag, "OB", []byte{0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x00, 0x40})
}

// PatchLengths rewrites the placeholder into (0070,0253) FL with a length
// that is not a multiple of 4 and shortens PixelData to an odd length. A
// file without either element is left untouched.
func PatchLengths(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	renamed := renameElement(data, placeholderTag, tag.Tag{Group: 0x0070, Element: 0x0253}, "FL", 7)
	odd := oddPixelLength(data)
	if !renamed && !odd {
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// elementHeader returns the explicit VR little endian tag and VR bytes.
func elementHeader(t tag.Tag, vr string) []byte {
	h := make([]byte, 6)
	binary.LittleEndian.PutUint16(h[0:2], t.Group)
	binary.LittleEndian.PutUint16(h[2:4], t.Element)
	copy(h[4:6], vr)
	return h
}

// renameElement finds the first from/OB element and overwrites its tag, VR
// and short-form length in place.
func renameElement(data []byte, from, to tag.Tag, vr string, length uint16) bool {
	i := bytes.Index(data, elementHeader(from, "OB"))
	if i < 0 || i+12 > len(data) {
		return false
	}
	binary.LittleEndian.PutUint16(data[i:i+2], to.Group)
	binary.LittleEndian.PutUint16(data[i+2:i+4], to.Element)
	copy(data[i+4:i+6], vr)
	binary.LittleEndian.PutUint16(data[i+6:i+8], length)
	return true
}

func oddPixelLength(data []byte) bool {
	for _, vr := range []string{"OW", "OB"} {
		i := bytes.LastIndex(data, elementHeader(tag.PixelData, vr))
		if i < 0 || i+12 > len(data) {
			continue
		}
		vl := binary.LittleEndian.Uint32(data[i+8 : i+12])
		if vl > 1 && vl%2 == 0 && vl != 0xFFFFFFFF {
			binary.LittleEndian.PutUint32(data[i+8:i+12], vl-1)
			return true
		}
	}
	return false
}
