package stamp

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/m-mizutani/goerr/v2"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImagePixels matches Pillow's MAX_IMAGE_PIXELS.
const DefaultMaxImagePixels = 89478485

// loadStampImage decodes b and flattens it to an opaque RGB raster. The
// header is checked first so images larger than maxPixels are rejected
// before any pixel buffer is allocated.
func loadStampImage(b []byte, maxPixels int64) (*image.RGBA, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, "", wrapKind(ErrDecodeFailure, err, "failed to decode stamp image header")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, goerr.Wrap(ErrEncodingFailure, "stamp image has no pixels",
			goerr.V("width", cfg.Width), goerr.V("height", cfg.Height))
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return nil, format, goerr.Wrap(ErrInvalidInput, "stamp image too large",
			goerr.V("width", cfg.Width), goerr.V("height", cfg.Height), goerr.V("max_pixels", maxPixels))
	}

	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", wrapKind(ErrDecodeFailure, err, "failed to decode stamp image")
	}
	flat, err := flatten(img)
	if err != nil {
		return nil, format, err
	}
	return flat, format, nil
}

// flatten returns an opaque copy of img. Images with transparency are
// composited over white using their alpha as the blend mask, so fully
// transparent pixels come out white.
func flatten(img image.Image) (*image.RGBA, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, goerr.Wrap(ErrEncodingFailure, "stamp image has no pixels",
			goerr.V("width", b.Dx()), goerr.V("height", b.Dy()))
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if hasAlpha(img) {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
		return dst, nil
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// hasAlpha reports whether img actually uses transparency.
func hasAlpha(img image.Image) bool {
	if p, ok := img.ColorModel().(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	}

	switch img.ColorModel() {
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model,
		color.AlphaModel, color.Alpha16Model:
	default:
		return false
	}

	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}

// rgbSamples packs an opaque RGBA raster into 8-bit DeviceRGB samples.
func rgbSamples(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			out = append(out, row[i], row[i+1], row[i+2])
		}
	}
	return out
}
