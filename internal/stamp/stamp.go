// Package stamp overlays a signature image onto a page of a PDF document.
package stamp

import (
	"bytes"
	"context"
	"io"
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
)

// DefaultDPI is the resolution used to size the stamp page before scaling.
const DefaultDPI = 100.0

func init() {
	// pdfcpu would otherwise create a config directory in the user's home.
	api.DisableConfigDir()
}

// Placement controls where the stamp lands. Offsets are PDF points measured
// from the lower-left corner of the page.
type Placement struct {
	PageIndex int
	Scale     float64
	OffsetX   float64
	OffsetY   float64
}

// DefaultPlacement puts a 0.2x stamp 400pt right and 50pt up on the first page.
func DefaultPlacement() Placement {
	return Placement{
		PageIndex: 0,
		Scale:     0.2,
		OffsetX:   400,
		OffsetY:   50,
	}
}

// Validate checks the placement independently of any document.
func (p Placement) Validate() error {
	if p.PageIndex < 0 {
		return goerr.Wrap(ErrPageIndexOutOfRange, "page index is negative", goerr.V("page_index", p.PageIndex))
	}
	if math.IsNaN(p.Scale) || math.IsInf(p.Scale, 0) || p.Scale <= 0 {
		return goerr.Wrap(ErrInvalidInput, "scale must be a positive number", goerr.V("scale", p.Scale))
	}
	if math.IsNaN(p.OffsetX) || math.IsInf(p.OffsetX, 0) || math.IsNaN(p.OffsetY) || math.IsInf(p.OffsetY, 0) {
		return goerr.Wrap(ErrInvalidInput, "offset must be finite",
			goerr.V("offset_x", p.OffsetX), goerr.V("offset_y", p.OffsetY))
	}
	return nil
}

type Option func(*Stamper)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Stamper) {
		s.logger = logger
	}
}

// WithDPI sets the resolution the stamp image is laid out at. Non-positive
// values are ignored.
func WithDPI(dpi float64) Option {
	return func(s *Stamper) {
		if dpi > 0 && !math.IsInf(dpi, 0) {
			s.dpi = dpi
		}
	}
}

// WithMaxImagePixels caps width*height of accepted stamp images.
// Non-positive values are ignored.
func WithMaxImagePixels(n int64) Option {
	return func(s *Stamper) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

// Stamper is stateless between calls and safe for concurrent use.
type Stamper struct {
	logger    zerolog.Logger
	dpi       float64
	maxPixels int64
}

func New(opts ...Option) *Stamper {
	s := &Stamper{
		logger:    zerolog.Nop(),
		dpi:       DefaultDPI,
		maxPixels: DefaultMaxImagePixels,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stamp overlays image onto the page selected by p and returns the new
// document. source is read completely and never modified; the result is
// source followed by an incremental update, so equal inputs give equal bytes.
func Stamp(ctx context.Context, source, image io.Reader, p Placement) ([]byte, error) {
	return New().Stamp(ctx, source, image, p)
}

func (s *Stamper) Stamp(ctx context.Context, source, image io.Reader, p Placement) ([]byte, error) {
	if source == nil || image == nil {
		return nil, goerr.Wrap(ErrInvalidInput, "both a PDF document and a stamp image are required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	srcBytes, err := readInput(source, "source document")
	if err != nil {
		return nil, err
	}
	imgBytes, err := readInput(image, "stamp image")
	if err != nil {
		return nil, err
	}

	// 1. Source document
	pdf, err := readDocument(srcBytes)
	if err != nil {
		return nil, err
	}
	if p.PageIndex >= pdf.PageCount {
		return nil, goerr.Wrap(ErrPageIndexOutOfRange, "page index beyond document",
			goerr.V("page_index", p.PageIndex), goerr.V("page_count", pdf.PageCount))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. Stamp image
	flat, format, err := loadStampImage(imgBytes, s.maxPixels)
	if err != nil {
		return nil, err
	}

	// 3. Stamp page
	rev := newRevision(pdf)
	sp, err := newStampPage(rev, flat, s.dpi)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 4. Overlay
	name, err := overlay(rev, p.PageIndex+1, sp, p)
	if err != nil {
		return nil, err
	}

	// 5. Incremental update
	out, err := rev.appendTo(srcBytes)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("pages", pdf.PageCount).
		Int("page_index", p.PageIndex).
		Str("image_format", format).
		Int("image_width", flat.Bounds().Dx()).
		Int("image_height", flat.Bounds().Dy()).
		Float64("stamp_width", sp.width*p.Scale).
		Float64("stamp_height", sp.height*p.Scale).
		Str("xobject", name).
		Int("objects", len(rev.objects)).
		Int("bytes", len(out)).
		Msg("stamped document")

	return out, nil
}

func readInput(r io.Reader, what string) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapKind(ErrInvalidInput, err, "failed to read "+what)
	}
	if len(b) == 0 {
		return nil, goerr.Wrap(ErrInvalidInput, what+" is empty")
	}
	return b, nil
}

// readDocument parses b into a private pdfcpu context.
func readDocument(b []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(b), conf)
	if err != nil {
		return nil, wrapKind(ErrDecodeFailure, err, "failed to read PDF document")
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, wrapKind(ErrDecodeFailure, err, "failed to validate PDF document")
	}
	if ctx.Encrypt != nil {
		return nil, goerr.Wrap(ErrDecodeFailure, "encrypted documents are not supported")
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, wrapKind(ErrDecodeFailure, err, "failed to count pages")
	}
	return ctx, nil
}
