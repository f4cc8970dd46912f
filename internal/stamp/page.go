package stamp

import (
	"fmt"
	"image"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const stampImageName = "Im0"

// stampPage is the one-page rendition of a stamp image: a Form XObject whose
// bounding box is the image size in points at the configured resolution.
type stampPage struct {
	form   types.IndirectRef
	width  float64
	height float64
}

// pageSize converts a pixel size into points at dpi.
func pageSize(px int, dpi float64) float64 {
	return float64(px) * 72 / dpi
}

func newStampPage(rev *revision, img *image.RGBA, dpi float64) (*stampPage, error) {
	b := img.Bounds()
	imgRef, err := newImageXObject(rev, img)
	if err != nil {
		return nil, err
	}

	w, h := pageSize(b.Dx(), dpi), pageSize(b.Dy(), dpi)
	content := fmt.Sprintf("q\n%s 0 0 %s 0 0 cm\n/%s Do\nQ\n", formatNumber(w), formatNumber(h), stampImageName)

	sd, err := rev.ctx.NewStreamDictForBuf([]byte(content))
	if err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to create stamp page stream")
	}
	if err := sd.Encode(); err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to encode stamp page stream")
	}
	sd.Dict["Type"] = types.Name("XObject")
	sd.Dict["Subtype"] = types.Name("Form")
	sd.Dict["FormType"] = types.Integer(1)
	sd.Dict["BBox"] = types.Array{types.Float(0), types.Float(0), types.Float(w), types.Float(h)}
	sd.Dict["Resources"] = types.Dict{
		"XObject": types.Dict{stampImageName: *imgRef},
	}

	formRef, err := rev.add(*sd)
	if err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to register stamp page")
	}

	return &stampPage{form: *formRef, width: w, height: h}, nil
}

// newImageXObject embeds img as a flate-compressed 8-bit DeviceRGB image.
func newImageXObject(rev *revision, img *image.RGBA) (*types.IndirectRef, error) {
	b := img.Bounds()

	sd, err := rev.ctx.NewStreamDictForBuf(rgbSamples(img))
	if err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to create image stream")
	}
	if err := sd.Encode(); err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to encode image stream",
			goerr.V("width", b.Dx()), goerr.V("height", b.Dy()))
	}
	sd.Dict["Type"] = types.Name("XObject")
	sd.Dict["Subtype"] = types.Name("Image")
	sd.Dict["Width"] = types.Integer(b.Dx())
	sd.Dict["Height"] = types.Integer(b.Dy())
	sd.Dict["ColorSpace"] = types.Name("DeviceRGB")
	sd.Dict["BitsPerComponent"] = types.Integer(8)

	ref, err := rev.add(*sd)
	if err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to register image")
	}
	return ref, nil
}

// formatNumber writes v as a PDF real without exponent notation.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
