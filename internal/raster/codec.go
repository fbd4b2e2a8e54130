package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DecodeError reports an input byte stream that is not a readable image.
type DecodeError struct {
	Declared string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Declared != "" {
		return fmt.Sprintf("decode image (%s): %v", e.Declared, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errEmptyImage = errors.New("empty image payload")

// Decode reads PNG, JPEG, GIF, WebP or BMP bytes. The declared MIME type is
// only used for error context; the actual format comes from the data.
func Decode(data []byte, declared string) (Image, error) {
	if len(data) == 0 {
		return Image{}, &DecodeError{Declared: declared, Err: errEmptyImage}
	}

	src, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, &DecodeError{Declared: declared, Err: err}
	}
	if src.Bounds().Empty() {
		return Image{}, &DecodeError{Declared: declared, Err: errEmptyImage}
	}

	return FromImage(src, NormalizeFormat(name)), nil
}

// Encode writes img as format. WebP has no encoder in x/image, so it falls
// back to PNG; the returned MIME type is the one actually written.
func Encode(img Image, format Format) ([]byte, Format, error) {
	if img.Pix == nil {
		return nil, "", errors.New("encode: nil image")
	}
	if format == "" {
		format = img.Format
	}
	format = NormalizeFormat(string(format))

	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		q := int(math.Round(img.quality() * 100))
		if q < 1 {
			q = 1
		}
		if q > 100 {
			q = 100
		}
		err = jpeg.Encode(&buf, img.Pix, &jpeg.Options{Quality: q})
	case FormatGIF:
		err = gif.Encode(&buf, img.Pix, nil)
	case FormatBMP:
		err = bmp.Encode(&buf, img.Pix)
	default:
		format = FormatPNG
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		err = enc.Encode(&buf, img.Pix)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), format, nil
}
