package raster

import (
	"image"
	"image/color"
	"image/draw"
)

// Moonlit channel multipliers. Blue is attenuated least so the result reads
// as a cool night cast rather than a neutral gray-down.
const (
	nightR = 0.22
	nightG = 0.25
	nightB = 0.40
)

// Darken produces the nighttime base for img. Alpha is left untouched.
func Darken(img Image) Image {
	out := img.Clone()
	if out.Pix == nil {
		return out
	}

	p := out.Pix.Pix
	for i := 0; i+3 < len(p); i += 4 {
		p[i] = uint8(float64(p[i]) * nightR)
		p[i+1] = uint8(float64(p[i+1]) * nightG)
		p[i+2] = uint8(float64(p[i+2]) * nightB)
	}
	return out
}

// tint is the original compositor's night overlay, composited at alpha 80.
var tint = color.NRGBA{R: 20, G: 20, B: 50, A: 80}

// DarkenTinted is the softer night filter used when previews are built for
// an inpainting model: brightness halved, then a translucent blue wash.
func DarkenTinted(img Image) Image {
	out := img.Clone()
	if out.Pix == nil {
		return out
	}

	p := out.Pix.Pix
	for i := 0; i+3 < len(p); i += 4 {
		p[i] = p[i] / 2
		p[i+1] = p[i+1] / 2
		p[i+2] = p[i+2] / 2
	}

	draw.Draw(out.Pix, out.Pix.Bounds(), image.NewUniform(tint), image.Point{}, draw.Over)
	return out
}
