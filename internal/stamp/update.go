package stamp

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

type revObject struct {
	gen int
	obj types.Object
}

// revision records the objects one stamping pass adds or replaces. They are
// written as an incremental update, so the original bytes, trailer /ID and
// document information dictionary pass through unchanged.
type revision struct {
	ctx     *model.Context
	objects map[int]revObject
}

func newRevision(ctx *model.Context) *revision {
	return &revision{ctx: ctx, objects: map[int]revObject{}}
}

// add registers obj under a fresh object number. Free entries are never
// reused, since the previous revision still owns their generation.
func (r *revision) add(obj types.Object) (*types.IndirectRef, error) {
	if r.ctx.Size == nil {
		return nil, goerr.New("cross-reference table has no size")
	}
	nr := r.ctx.InsertNew(*model.NewXRefTableEntryGen0(obj))
	r.objects[nr] = revObject{obj: obj}
	return types.NewIndirectRef(nr, 0), nil
}

// replace marks the object behind ref as changed.
func (r *revision) replace(ref types.IndirectRef, obj types.Object) {
	r.objects[int(ref.ObjectNumber)] = revObject{gen: int(ref.GenerationNumber), obj: obj}
}

// appendTo writes original followed by an update section holding the
// recorded objects, a cross-reference subsection per run of object numbers
// and a trailer chained to the previous one through /Prev.
func (r *revision) appendTo(original []byte) ([]byte, error) {
	prev, err := lastXRefOffset(original)
	if err != nil {
		return nil, err
	}
	if r.ctx.Root == nil {
		return nil, goerr.Wrap(ErrEncodingFailure, "document has no catalog")
	}

	nrs := make([]int, 0, len(r.objects))
	for nr := range r.objects {
		nrs = append(nrs, nr)
	}
	sort.Ints(nrs)

	var buf bytes.Buffer
	buf.Write(original)
	if n := len(original); n > 0 && original[n-1] != '\n' && original[n-1] != '\r' {
		buf.WriteByte('\n')
	}

	offsets := make(map[int]int, len(nrs))
	for _, nr := range nrs {
		ro := r.objects[nr]
		offsets[nr] = buf.Len()
		fmt.Fprintf(&buf, "%d %d obj\n", nr, ro.gen)
		if err := writeIndirect(&buf, ro.obj); err != nil {
			return nil, wrapKind(ErrEncodingFailure, err, "failed to serialize object", goerr.V("object", nr))
		}
		buf.WriteString("\nendobj\n")
	}

	xref := buf.Len()
	buf.WriteString("xref\n")
	for i := 0; i < len(nrs); {
		j := i
		for j+1 < len(nrs) && nrs[j+1] == nrs[j]+1 {
			j++
		}
		fmt.Fprintf(&buf, "%d %d\n", nrs[i], j-i+1)
		for _, nr := range nrs[i : j+1] {
			fmt.Fprintf(&buf, "%010d %05d n\r\n", offsets[nr], r.objects[nr].gen)
		}
		i = j + 1
	}

	size := 0
	if r.ctx.Size != nil {
		size = *r.ctx.Size
	}
	if len(nrs) > 0 && nrs[len(nrs)-1] >= size {
		size = nrs[len(nrs)-1] + 1
	}

	trailer := types.Dict{
		"Size": types.Integer(size),
		"Prev": types.Integer(prev),
		"Root": *r.ctx.Root,
	}
	if r.ctx.Info != nil {
		trailer["Info"] = *r.ctx.Info
	}
	if len(r.ctx.ID) > 0 {
		trailer["ID"] = r.ctx.ID
	}

	buf.WriteString("trailer\n")
	if err := writeObject(&buf, trailer); err != nil {
		return nil, wrapKind(ErrEncodingFailure, err, "failed to serialize trailer")
	}
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes(), nil
}

// lastXRefOffset returns the offset named by the final startxref keyword.
func lastXRefOffset(b []byte) (int, error) {
	const kw = "startxref"
	i := bytes.LastIndex(b, []byte(kw))
	if i < 0 {
		return 0, goerr.Wrap(ErrDecodeFailure, "document has no startxref")
	}
	rest := bytes.TrimLeft(b[i+len(kw):], " \t\r\n")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.Atoi(string(rest[:end]))
	if err != nil {
		return 0, wrapKind(ErrDecodeFailure, err, "malformed startxref")
	}
	return off, nil
}

// writeIndirect writes the body of an indirect object. Streams get a
// /Length matching their encoded bytes.
func writeIndirect(buf *bytes.Buffer, o types.Object) error {
	sd, ok := o.(types.StreamDict)
	if !ok {
		return writeObject(buf, o)
	}
	if sd.Raw == nil {
		return goerr.New("stream is not encoded")
	}

	d := make(types.Dict, len(sd.Dict)+1)
	for k, v := range sd.Dict {
		d[k] = v
	}
	d["Length"] = types.Integer(len(sd.Raw))

	if err := writeObject(buf, d); err != nil {
		return err
	}
	buf.WriteString("\nstream\n")
	buf.Write(sd.Raw)
	buf.WriteString("\nendstream")
	return nil
}

// writeObject serializes o with dictionary keys in sorted order so equal
// inputs always give equal bytes.
func writeObject(buf *bytes.Buffer, o types.Object) error {
	switch t := o.(type) {
	case nil:
		buf.WriteString("null")
	case types.Dict:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteString("<<")
		for _, k := range keys {
			buf.WriteString(types.Name(k).PDFString())
			buf.WriteByte(' ')
			if err := writeObject(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteString(">>")
	case types.Array:
		buf.WriteByte('[')
		for i, v := range t {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := writeObject(buf, v); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case types.Integer:
		buf.WriteString(strconv.Itoa(int(t)))
	case types.Float:
		buf.WriteString(formatNumber(float64(t)))
	case types.StreamDict:
		return goerr.New("stream must be an indirect object")
	default:
		buf.WriteString(t.PDFString())
	}
	return nil
}
