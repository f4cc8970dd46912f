// Package inspect reports the page structure of a PDF: content streams and
// the XObjects and fonts each page can draw.
package inspect

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

type Page struct {
	Number         int
	ContentStreams int
	ContentLength  int
	XObjects       []string
	Fonts          []string
}

type Report struct {
	PageCount int
	Pages     []Page
}

// Read parses a PDF with relaxed validation.
func Read(r io.Reader) (*model.Context, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read PDF")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(b), conf)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse PDF")
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to validate PDF")
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, goerr.Wrap(err, "failed to count pages")
	}
	return ctx, nil
}

func Inspect(r io.Reader) (*Report, error) {
	ctx, err := Read(r)
	if err != nil {
		return nil, err
	}
	return FromContext(ctx)
}

func FromContext(ctx *model.Context) (*Report, error) {
	rep := &Report{PageCount: ctx.PageCount}
	for p := 1; p <= ctx.PageCount; p++ {
		pg, err := inspectPage(ctx, p)
		if err != nil {
			return nil, err
		}
		rep.Pages = append(rep.Pages, *pg)
	}
	return rep, nil
}

func inspectPage(ctx *model.Context, pageNr int) (*Page, error) {
	content, streams, err := PageContent(ctx, pageNr)
	if err != nil {
		return nil, err
	}
	xobjs, err := ResourceNames(ctx, pageNr, "XObject")
	if err != nil {
		return nil, err
	}
	fonts, err := ResourceNames(ctx, pageNr, "Font")
	if err != nil {
		return nil, err
	}
	return &Page{
		Number:         pageNr,
		ContentStreams: streams,
		ContentLength:  len(content),
		XObjects:       xobjs,
		Fonts:          fonts,
	}, nil
}

// PageContent returns the decoded, concatenated content of page pageNr and
// the number of streams it is split into.
func PageContent(ctx *model.Context, pageNr int) ([]byte, int, error) {
	page, _, _, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to get page", goerr.V("page", pageNr))
	}
	if page == nil {
		return nil, 0, goerr.New("page not found", goerr.V("page", pageNr))
	}

	obj, found := page.Find("Contents")
	if !found || obj == nil {
		return nil, 0, nil
	}
	o, err := ctx.Dereference(obj)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to resolve contents", goerr.V("page", pageNr))
	}

	var refs types.Array
	switch t := o.(type) {
	case types.Array:
		refs = t
	case types.StreamDict:
		refs = types.Array{obj}
	default:
		return nil, 0, goerr.New("unexpected contents type", goerr.V("page", pageNr), goerr.V("type", fmt.Sprintf("%T", t)))
	}

	var buf bytes.Buffer
	for _, ref := range refs {
		sd, _, err := ctx.DereferenceStreamDict(ref)
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to resolve content stream", goerr.V("page", pageNr))
		}
		if sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			return nil, 0, goerr.Wrap(err, "failed to decode content stream", goerr.V("page", pageNr))
		}
		buf.Write(sd.Content)
	}
	return buf.Bytes(), len(refs), nil
}

// ResourceNames lists the sorted names of the given resource category
// ("XObject", "Font", ...) visible to page pageNr, honoring inheritance.
func ResourceNames(ctx *model.Context, pageNr int, category string) ([]string, error) {
	page, _, inhPAttrs, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get page", goerr.V("page", pageNr))
	}

	var res types.Dict
	if o, found := page.Find("Resources"); found && o != nil {
		if res, err = ctx.DereferenceDict(o); err != nil {
			return nil, goerr.Wrap(err, "failed to resolve resources", goerr.V("page", pageNr))
		}
	} else if inhPAttrs != nil {
		res = inhPAttrs.Resources
	}
	if res == nil {
		return nil, nil
	}

	o, found := res.Find(category)
	if !found || o == nil {
		return nil, nil
	}
	d, err := ctx.DereferenceDict(o)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve resource category", goerr.V("page", pageNr), goerr.V("category", category))
	}
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// Write prints the report in the same line-oriented form the CLI shows.
func (r *Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Pages: %d\n", r.PageCount); err != nil {
		return err
	}
	for _, p := range r.Pages {
		fmt.Fprintf(w, "\n--- Page %d ---\n", p.Number)
		fmt.Fprintf(w, "Contents: %d stream(s), %d bytes\n", p.ContentStreams, p.ContentLength)
		if len(p.XObjects) == 0 {
			fmt.Fprintf(w, "Resources: no XObject\n")
		} else {
			fmt.Fprintf(w, "Resources.XObject keys:\n")
			for _, k := range p.XObjects {
				fmt.Fprintf(w, " - %s\n", k)
			}
		}
		if len(p.Fonts) > 0 {
			fmt.Fprintf(w, "Resources.Font keys:\n")
			for _, k := range p.Fonts {
				fmt.Fprintf(w, " - %s\n", k)
			}
		}
	}
	return nil
}
