// Package noise adds the clutter real scanner exports carry to synthetic
// image files: vendor private blocks and elements whose declared length does
// not match their VR. Only the header after the standard identity groups is
// affected, so a tolerant reader still recovers everything curation needs.
package noise

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Kind is one category of noise.
type Kind string

const (
	SiemensCSA       Kind = "siemens-csa"
	GEPrivate        Kind = "ge-private"
	PhilipsPrivate   Kind = "philips-private"
	MalformedLengths Kind = "malformed-lengths"
)

// Kinds returns every kind in application order.
func Kinds() []Kind {
	return []Kind{SiemensCSA, GEPrivate, PhilipsPrivate, MalformedLengths}
}

// ParseKinds parses a comma-separated list. "all" selects every kind.
func ParseKinds(input string) (Profile, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	known := make(map[Kind]bool, len(Kinds()))
	for _, k := range Kinds() {
		known[k] = true
	}

	var p Profile
	for _, part := range strings.Split(input, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "all" {
			return Profile(Kinds()), nil
		}
		k := Kind(part)
		if !known[k] {
			return nil, fmt.Errorf("unknown noise kind %q (valid: %v or all)", part, Kinds())
		}
		if !p.Has(k) {
			p = append(p, k)
		}
	}
	return p, nil
}

// Profile is the set of kinds applied to a series. The zero value adds
// nothing.
type Profile []Kind

// Has reports whether k is part of the profile.
func (p Profile) Has(k Kind) bool {
	for _, have := range p {
		if have == k {
			return true
		}
	}
	return false
}

// Elements returns fresh private elements for one file.
func (p Profile) Elements(rng *rand.Rand) []*dicom.Element {
	var out []*dicom.Element
	if p.Has(SiemensCSA) {
		out = append(out, siemensElements(rng)...)
	}
	if p.Has(GEPrivate) {
		out = append(out, geElements(rng)...)
	}
	if p.Has(PhilipsPrivate) {
		out = append(out, philipsElements(rng)...)
	}
	if p.Has(MalformedLengths) {
		out = append(out, lineThicknessPlaceholder())
	}
	return out
}

// WriteOptions relaxes the writer checks private elements would trip.
func (p Profile) WriteOptions() []dicom.WriteOption {
	if len(p) == 0 {
		return nil
	}
	return []dicom.WriteOption{dicom.SkipVRVerification(), dicom.SkipValueTypeVerification()}
}

// Patch post-processes a written file. Only MalformedLengths needs it.
func (p Profile) Patch(path string) error {
	if !p.Has(MalformedLengths) {
		return nil
	}
	return PatchLengths(path)
}

// privateElement builds an element with an explicit VR; dicom.NewElement
// rejects tags missing from the dictionary.
func privateElement(t tag.Tag, rawVR string, data any) *dicom.Element {
	value, err := dicom.NewValue(data)
	if err != nil {
		panic(fmt.Sprintf("private element %v: %v", t, err))
	}
	return &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    tag.GetVRKind(t, rawVR),
		RawValueRepresentation: rawVR,
		Value:                  value,
	}
}

func randomBytes(rng *rand.Rand, base, spread int) []byte {
	b := make([]byte, base+rng.IntN(spread))
	for i := range b {
		b[i] = byte(rng.IntN(256))
	}
	return b
}
