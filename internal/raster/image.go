package raster

import (
	"image"
	"image/draw"
	"strings"
)

type Format string

const (
	FormatPNG  Format = "image/png"
	FormatJPEG Format = "image/jpeg"
	FormatWebP Format = "image/webp"
	FormatGIF  Format = "image/gif"
	FormatBMP  Format = "image/bmp"
)

// DefaultQuality is the lossy encode quality used when a caller leaves it unset.
const DefaultQuality = 0.92

// Image is an owned RGBA8 buffer plus the metadata needed to encode it again.
// Stages never write into an Image they received; they return a new one.
type Image struct {
	Pix     *image.RGBA
	Format  Format
	Quality float64
}

func New(width, height int, format Format) Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return Image{
		Pix:     image.NewRGBA(image.Rect(0, 0, width, height)),
		Format:  NormalizeFormat(string(format)),
		Quality: DefaultQuality,
	}
}

// FromImage copies src into a fresh zero-origin RGBA buffer.
func FromImage(src image.Image, format Format) Image {
	b := src.Bounds()
	out := New(b.Dx(), b.Dy(), format)
	draw.Draw(out.Pix, out.Pix.Bounds(), src, b.Min, draw.Src)
	return out
}

func (img Image) Width() int {
	if img.Pix == nil {
		return 0
	}
	return img.Pix.Bounds().Dx()
}

func (img Image) Height() int {
	if img.Pix == nil {
		return 0
	}
	return img.Pix.Bounds().Dy()
}

func (img Image) Empty() bool {
	return img.Width() == 0 || img.Height() == 0
}

// Clone returns a deep copy; the pixel slices do not alias.
func (img Image) Clone() Image {
	out := img
	if img.Pix == nil {
		return out
	}
	pix := make([]uint8, len(img.Pix.Pix))
	copy(pix, img.Pix.Pix)
	out.Pix = &image.RGBA{
		Pix:    pix,
		Stride: img.Pix.Stride,
		Rect:   img.Pix.Rect,
	}
	return out
}

func (img Image) quality() float64 {
	if img.Quality <= 0 || img.Quality > 1 {
		return DefaultQuality
	}
	return img.Quality
}

// NormalizeFormat maps loose content types ("jpg", "image/jpeg; q=1") to a Format.
// Unknown values map to PNG.
func NormalizeFormat(value string) Format {
	value = strings.ToLower(strings.TrimSpace(value))
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	value = strings.TrimPrefix(value, "image/")
	value = strings.TrimPrefix(value, ".")

	switch value {
	case "jpeg", "jpg", "pjpeg":
		return FormatJPEG
	case "webp":
		return FormatWebP
	case "gif":
		return FormatGIF
	case "bmp", "x-bmp", "x-ms-bmp":
		return FormatBMP
	default:
		return FormatPNG
	}
}
