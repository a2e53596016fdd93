package synth

import (
	"image"
	"image/color"
	randv2 "math/rand/v2"

	"github.com/suyashkumar/dicom/pkg/frame"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// 12-bit stored values
	maxPixel   = 4095
	noiseLevel = 600
)

// labelFrame returns a frameRows x frameCols frame of low level noise with
// label burned in, so a viewer shows which file it is looking at.
func labelFrame(rng *randv2.Rand, label string) *frame.NativeFrame[uint16] {
	img := image.NewGray16(image.Rect(0, 0, frameCols, frameRows))
	for i := 0; i < len(img.Pix); i += 2 {
		v := uint16(rng.IntN(noiseLevel)) << 4
		img.Pix[i], img.Pix[i+1] = byte(v>>8), byte(v)
	}

	face := basicfont.Face7x13
	x := max(0, (frameCols-font.MeasureString(face, label).Ceil())/2)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray16{Y: 0xFFFF}),
		Face: face,
		Dot:  fixed.P(x, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(label)

	f := frame.NewNativeFrame[uint16](16, frameRows, frameCols, frameRows*frameCols, 1)
	for row := 0; row < frameRows; row++ {
		for col := 0; col < frameCols; col++ {
			f.RawData[row*frameCols+col] = min(img.Gray16At(col, row).Y>>4, maxPixel)
		}
	}
	return f
}
