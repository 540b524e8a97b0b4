package adjust

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// matrix is a 3x3 color matrix applied to the 8-bit sRGB channels scaled to
// 0-1 (no linearization), plus a per-channel offset.
type matrix struct {
	m   [3][3]float64
	off float64
}

// matrix returns the color matrix equivalent of the CSS filter, following the
// Filter Effects definitions.
func (s Spec) matrix() matrix {
	a := s.Amount
	switch s.Filter {
	case Brightness:
		return matrix{m: [3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}}}
	case Contrast:
		return matrix{m: [3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}}, off: 0.5 - 0.5*a}
	case Sepia:
		k := 1 - math.Min(math.Max(a, 0), 1)
		return matrix{m: [3][3]float64{
			{0.393 + 0.607*k, 0.769 - 0.769*k, 0.189 - 0.189*k},
			{0.349 - 0.349*k, 0.686 + 0.314*k, 0.168 - 0.168*k},
			{0.272 - 0.272*k, 0.534 - 0.534*k, 0.131 + 0.869*k},
		}}
	case HueRotate:
		rad := a * math.Pi / 180
		c, sn := math.Cos(rad), math.Sin(rad)
		return matrix{m: [3][3]float64{
			{0.213 + c*0.787 - sn*0.213, 0.715 - c*0.715 - sn*0.715, 0.072 - c*0.072 + sn*0.928},
			{0.213 - c*0.213 + sn*0.143, 0.715 + c*0.285 + sn*0.140, 0.072 - c*0.072 - sn*0.283},
			{0.213 - c*0.213 - sn*0.787, 0.715 - c*0.715 + sn*0.715, 0.072 + c*0.928 + sn*0.072},
		}}
	default:
		return matrix{m: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
	}
}

func (mx matrix) apply(c color.NRGBA) color.NRGBA {
	in := [3]float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}
	var out [3]uint8
	for i := 0; i < 3; i++ {
		v := mx.m[i][0]*in[0] + mx.m[i][1]*in[1] + mx.m[i][2]*in[2] + mx.off
		out[i] = uint8(math.Round(math.Min(math.Max(v, 0), 1) * 255))
	}
	return color.NRGBA{R: out[0], G: out[1], B: out[2], A: c.A}
}

// Render returns a copy of img with the spec's filter applied per pixel.
func Render(img image.Image, s Spec) *image.NRGBA {
	mx := s.matrix()
	return imaging.AdjustFunc(img, mx.apply)
}

// RenderDisplay renders img as d currently shows it.
func RenderDisplay(img image.Image, d *Display) *image.NRGBA {
	if s, ok := d.Spec(); ok {
		return Render(img, s)
	}
	return imaging.Clone(img)
}
