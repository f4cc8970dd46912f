package stamp

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// overlay draws sp on top of page pageNr (1-based), scaled and translated
// according to p. It returns the resource name the stamp was registered under.
func overlay(rev *revision, pageNr int, sp *stampPage, p Placement) (string, error) {
	ctx := rev.ctx
	pageDict, pageRef, inhPAttrs, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return "", wrapKind(ErrDecodeFailure, err, "failed to look up page", goerr.V("page", pageNr))
	}
	if pageDict == nil {
		return "", goerr.Wrap(ErrPageIndexOutOfRange, "page not found", goerr.V("page", pageNr))
	}
	if pageRef == nil {
		return "", goerr.Wrap(ErrEncodingFailure, "page is not an indirect object", goerr.V("page", pageNr))
	}

	name := fmt.Sprintf("Stamp%d", sp.form.ObjectNumber)

	res, err := pageResources(ctx, pageDict, inhPAttrs)
	if err != nil {
		return "", err
	}
	xobj := types.Dict{}
	if o, found := res.Find("XObject"); found {
		d, err := ctx.DereferenceDict(o)
		if err != nil {
			return "", wrapKind(ErrDecodeFailure, err, "failed to read page XObjects", goerr.V("page", pageNr))
		}
		for k, v := range d {
			xobj[k] = v
		}
	}
	xobj[name] = sp.form
	res["XObject"] = xobj
	pageDict["Resources"] = res

	if err := appendStampContent(rev, pageDict, name, p); err != nil {
		return "", err
	}
	rev.replace(*pageRef, pageDict)
	return name, nil
}

// pageResources returns a private copy of the page's effective resource
// dictionary. Resource dictionaries may be shared between pages or inherited
// from the page tree, so the target page gets its own.
func pageResources(ctx *model.Context, pageDict types.Dict, inhPAttrs *model.InheritedPageAttrs) (types.Dict, error) {
	var src types.Dict
	if o, found := pageDict.Find("Resources"); found && o != nil {
		d, err := ctx.DereferenceDict(o)
		if err != nil {
			return nil, wrapKind(ErrDecodeFailure, err, "failed to read page resources")
		}
		src = d
	} else if inhPAttrs != nil {
		src = inhPAttrs.Resources
	}

	res := types.Dict{}
	for k, v := range src {
		res[k] = v
	}
	return res, nil
}

// appendStampContent isolates the existing page content in its own graphics
// state and appends the stamp drawing operators after it.
func appendStampContent(rev *revision, pageDict types.Dict, name string, p Placement) error {
	draw := fmt.Sprintf("q\n%s 0 0 %s %s %s cm\n/%s Do\nQ\n",
		formatNumber(p.Scale), formatNumber(p.Scale),
		formatNumber(p.OffsetX), formatNumber(p.OffsetY), name)

	existing, err := contentRefs(rev.ctx, pageDict)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		ref, err := newContentStream(rev, []byte(draw))
		if err != nil {
			return err
		}
		pageDict["Contents"] = *ref
		return nil
	}

	pre, err := newContentStream(rev, []byte("q\n"))
	if err != nil {
		return err
	}
	post, err := newContentStream(rev, []byte("Q\n"+draw))
	if err != nil {
		return err
	}

	contents := make(types.Array, 0, len(existing)+2)
	contents = append(contents, *pre)
	contents = append(contents, existing...)
	contents = append(contents, *post)
	pageDict["Contents"] = contents
	return nil
}

// contentRefs flattens the page Contents entry into a list of stream references.
func contentRefs(ctx *model.Context, pageDict types.Dict) (types.Array, error) {
	o, found := pageDict.Find("Contents")
	if !found || o == nil {
		return nil, nil
	}

	switch t := o.(type) {
	case types.IndirectRef:
		obj, err := ctx.Dereference(t)
		if err != nil {
			return nil, wrapKind(ErrDecodeFailure, err, "failed to resolve page contents")
		}
		if arr, ok := obj.(types.Array); ok {
			return append(types.Array{}, arr...), nil
		}
		return types.Array{t}, nil
	case types.Array:
		return append(types.Array{}, t...), nil
	default:
		return nil, goerr.Wrap(ErrDecodeFailure, "unsupported page contents type", goerr.V("type", fmt.Sprintf("%T", t)))
	}
}

func newContentStream(rev *revision, b []byte) (*types.IndirectRef, error) {
	sd, err := rev.ctx.NewStreamDictForBuf(b)
	if err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to create content stream")
	}
	if err := sd.Encode(); err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to encode content stream")
	}
	ref, err := rev.add(*sd)
	if err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to register content stream")
	}
	return ref, nil
}
