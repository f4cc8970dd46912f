// Package pdftest builds small, deterministic PDF documents and images for tests.
package pdftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
)

// PageText returns a content stream that prints label near the top of a letter page.
func PageText(label string) string {
	return fmt.Sprintf("BT\n/F1 24 Tf\n72 720 Td\n(%s) Tj\nET", label)
}

// Document returns an uncompressed PDF with one letter-sized page per
// content stream. All pages share a single indirect resource dictionary.
func Document(contents ...string) []byte {
	const (
		catalogNr   = 1
		pagesNr     = 2
		resourcesNr = 3
		fontNr      = 4
		firstPageNr = 5
	)

	objs := map[int]string{}
	kids := ""
	for i, c := range contents {
		pageNr := firstPageNr + 2*i
		contentNr := pageNr + 1
		kids += fmt.Sprintf("%d 0 R ", pageNr)
		objs[pageNr] = fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources %d 0 R /Contents %d 0 R >>",
			pagesNr, resourcesNr, contentNr)
		objs[contentNr] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(c), c)
	}
	objs[catalogNr] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesNr)
	objs[pagesNr] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(contents))
	objs[resourcesNr] = fmt.Sprintf("<< /Font << /F1 %d 0 R >> >>", fontNr)
	objs[fontNr] = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"

	size := firstPageNr + 2*len(contents)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, size)
	for nr := 1; nr < size; nr++ {
		offsets[nr] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", nr, objs[nr])
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for nr := 1; nr < size; nr++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[nr])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, catalogNr, xref)
	return buf.Bytes()
}

// Pages returns a document with n pages labelled "Page 1" .. "Page n".
func Pages(n int) []byte {
	contents := make([]string, n)
	for i := range contents {
		contents[i] = PageText(fmt.Sprintf("Page %d", i+1))
	}
	return Document(contents...)
}

// Fill returns a w x h NRGBA image filled with c.
func Fill(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// PNG encodes img as PNG.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNGHeader returns a PNG signature and an IHDR chunk declaring a w x h
// 8-bit grayscale image. No pixel data follows.
func PNGHeader(w, h uint32) []byte {
	ihdr := make([]byte, 0, 13)
	ihdr = binary.BigEndian.AppendUint32(ihdr, w)
	ihdr = binary.BigEndian.AppendUint32(ihdr, h)
	ihdr = append(ihdr, 8, 0, 0, 0, 0)

	chunk := append([]byte("IHDR"), ihdr...)
	b := []byte("\x89PNG\r\n\x1a\n")
	b = binary.BigEndian.AppendUint32(b, uint32(len(ihdr)))
	b = append(b, chunk...)
	return binary.BigEndian.AppendUint32(b, crc32.ChecksumIEEE(chunk))
}

// EmptyGIF returns a GIF header whose logical screen is 0 x 0.
func EmptyGIF() []byte {
	return []byte("GIF89a\x00\x00\x00\x00\x00\x00\x00;")
}
