package dicom

// Uncompressed transfer syntaxes. Any other syntax carries encapsulated
// (compressed) pixel data.
const (
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
)

var uncompressedSyntaxes = map[string]struct{}{
	ExplicitVRLittleEndian:         {},
	ImplicitVRLittleEndian:         {},
	DeflatedExplicitVRLittleEndian: {},
	ExplicitVRBigEndian:            {},
}

// IsCompressedSyntax reports whether ts is a known or unknown compressed
// transfer syntax. An empty syntax is not considered compressed.
func IsCompressedSyntax(ts string) bool {
	if ts == "" {
		return false
	}
	_, ok := uncompressedSyntaxes[ts]
	return !ok
}
