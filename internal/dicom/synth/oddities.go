package synth

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/mrsinham/rtcurate/internal/dicom/modalities"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// loMaxLength is the maximum length of an LO value.
const loMaxLength = 64

// OddPatientID is the PatientID of the first odd-headers subject. It holds a
// path separator.
const OddPatientID = "PT-2024/ABC 123"

var oddDescriptions = []string{
	"T1 Ø/Gd+ (Ángel)",
	"Müller-Schmidt: follow-up",
	"D'Agostino T2* Çelik",
	"Østergaard FLAIR (Škvorecký)",
}

var longDescriptions = []string{
	"MRI BRAIN WITH AND WITHOUT CONTRAST DETAILED EXAMINATION FOR SUSPECTED LESION",
	"CT ABDOMEN PELVIS WITH CONTRAST COMPREHENSIVE EVALUATION FOLLOW UP EXAMINATION",
	"PET CT WHOLE BODY SCAN WITH FDG FOR ONCOLOGIC STAGING AND RESTAGING PURPOSES",
}

// truncateLO cuts s to the LO limit.
func truncateLO(s string) string {
	if len(s) > loMaxLength {
		return s[:loMaxLength]
	}
	return s
}

// variedPatientID returns an identifier in one of the layouts hospitals use.
func variedPatientID(rng *rand.Rand) string {
	switch rng.IntN(5) {
	case 0:
		return fmt.Sprintf("%03d-%03d-%03d", rng.IntN(1000), rng.IntN(1000), rng.IntN(1000))
	case 1:
		var sb strings.Builder
		for i := range 10 {
			if i%2 == 0 {
				sb.WriteByte('A' + byte(rng.IntN(26)))
			} else {
				sb.WriteByte('0' + byte(rng.IntN(10)))
			}
		}
		return sb.String()
	case 2:
		return fmt.Sprintf("PAT %05d %02d", rng.IntN(100000), rng.IntN(100))
	case 3:
		const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		b := make([]byte, loMaxLength)
		for i := range b {
			b[i] = chars[rng.IntN(len(chars))]
		}
		return string(b)
	default:
		return fmt.Sprintf("PT-%04d-%c%c%c %03d", rng.IntN(10000),
			'A'+byte(rng.IntN(26)), 'A'+byte(rng.IntN(26)), 'A'+byte(rng.IntN(26)), rng.IntN(1000))
	}
}

func oddHeadersCourse(c *course) {
	c.patientID = OddPatientID
	c.image(modalities.MR, "mr_odd", oddDescriptions[c.w.rng.IntN(len(oddDescriptions))], Instances(2))
	c.image(modalities.CT, "ct_long", truncateLO(longDescriptions[c.w.rng.IntN(len(longDescriptions))]), Instances(2))
	c.image(modalities.MR, "mr_nodesc", "", Instances(2))
	c.write(SeriesSpec{
		Dir: "ct_undated", Modality: modalities.CT, Description: "Undated CT",
		Omit: []tag.Tag{tag.StudyDate}, Instances: Instances(2),
	})
}

// variedIDCourse is written under a partial StudyDate by the odd-headers
// scenario, as some archives export.
func variedIDCourse(c *course) {
	c.patientID = variedPatientID(c.w.rng)
	c.image(modalities.MR, "mr_t2", oddDescriptions[c.w.rng.IntN(len(oddDescriptions))], Instances(1))
}
