package stamp

import (
	"bytes"
	"errors"
	"strconv"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aintyourcupoftea/PDF-Signer/internal/pdftest"
)

func TestLastXRefOffset(t *testing.T) {
	off, err := lastXRefOffset([]byte("xref\nstartxref\n12\n%%EOF\nstartxref\r\n345\r\n%%EOF\r\n"))
	gt.NoError(t, err)
	gt.Equal(t, 345, off)

	_, err = lastXRefOffset([]byte("%PDF-1.4\n"))
	gt.True(t, errors.Is(err, ErrDecodeFailure))

	_, err = lastXRefOffset([]byte("startxref\n%%EOF"))
	gt.True(t, errors.Is(err, ErrDecodeFailure))
}

func TestWriteObjectSortsKeys(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, writeObject(&buf, types.Dict{
		"Type":  types.Name("Page"),
		"Box":   types.Array{types.Integer(0), types.Float(0.5), nil},
		"Ref":   *types.NewIndirectRef(7, 0),
		"Label": types.StringLiteral("a"),
	}))
	gt.Equal(t, "<</Box [0 0.5 null]/Label (a)/Ref 7 0 R/Type /Page>>", buf.String())
}

func TestRevisionAppendKeepsTrailerIdentity(t *testing.T) {
	src := pdftest.Pages(1)
	pdf, err := readDocument(src)
	gt.NoError(t, err)

	id := types.Array{types.HexLiteral("0a0b"), types.HexLiteral("0a0b")}
	pdf.ID = id
	size := *pdf.Size

	rev := newRevision(pdf)
	ref, err := rev.add(types.Dict{"Kind": types.Name("Test")})
	gt.NoError(t, err)
	gt.Equal(t, size, ref.ObjectNumber.Value())

	out, err := rev.appendTo(src)
	gt.NoError(t, err)
	gt.True(t, bytes.HasPrefix(out, src))

	tail := string(out[len(src):])
	gt.S(t, tail).Contains("<</Kind /Test>>")
	gt.S(t, tail).Contains("/ID [<0a0b> <0a0b>]")
	gt.S(t, tail).Contains("/Root 1 0 R")

	prev, err := lastXRefOffset(src)
	gt.NoError(t, err)
	gt.S(t, tail).Contains("/Prev " + strconv.Itoa(prev))

	again, err := readDocument(out)
	gt.NoError(t, err)
	gt.Equal(t, 1, again.PageCount)
	obj, err := again.Dereference(*ref)
	gt.NoError(t, err)
	d, ok := obj.(types.Dict)
	gt.True(t, ok)
	kind := d.NameEntry("Kind")
	gt.True(t, kind != nil)
	gt.Equal(t, "Test", *kind)
}

func TestRevisionRejectsUnencodedStream(t *testing.T) {
	pdf, err := readDocument(pdftest.Pages(1))
	gt.NoError(t, err)

	rev := newRevision(pdf)
	_, err = rev.add(types.StreamDict{Dict: types.Dict{}})
	gt.NoError(t, err)

	_, err = rev.appendTo(pdftest.Pages(1))
	gt.True(t, Kind(err) == ErrEncodingFailure)
}
