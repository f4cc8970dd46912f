package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/aintyourcupoftea/PDF-Signer/internal/inspect"
	"github.com/aintyourcupoftea/PDF-Signer/internal/pdftest"
	"github.com/aintyourcupoftea/PDF-Signer/internal/server"
	"github.com/aintyourcupoftea/PDF-Signer/internal/staging"
	"github.com/aintyourcupoftea/PDF-Signer/internal/stamp"
)

func newServer(t *testing.T, opts ...server.Option) *server.Server {
	t.Helper()
	store, err := staging.New(t.TempDir(), time.Minute)
	gt.NoError(t, err)
	s, err := server.New(store, opts...)
	gt.NoError(t, err)
	return s
}

// upload builds a multipart body. A nil value omits the field.
func upload(t *testing.T, pdf, sig []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if pdf != nil {
		fw, err := mw.CreateFormFile("pdf", "doc.pdf")
		gt.NoError(t, err)
		_, err = fw.Write(pdf)
		gt.NoError(t, err)
	}
	if sig != nil {
		fw, err := mw.CreateFormFile("signature", "sig.png")
		gt.NoError(t, err)
		_, err = fw.Write(sig)
		gt.NoError(t, err)
	}
	gt.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, h http.Handler, path string, pdf, sig []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := upload(t, pdf, sig)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signature() []byte {
	return pdftest.PNG(pdftest.Fill(50, 20, color.NRGBA{A: 0xff}))
}

func TestHandleHealth(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	gt.Equal(t, http.StatusOK, rec.Code)
	gt.True(t, rec.Header().Get("X-Request-Id") != "")

	var resp map[string]string
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	gt.Equal(t, "ok", resp["status"])
}

func TestHandleIndex(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	gt.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	gt.S(t, body).Contains("PDF Signer")
	gt.S(t, body).Contains(`name="pdf"`)
	gt.S(t, body).Contains(`name="signature"`)

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	gt.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAPISign(t *testing.T) {
	s := newServer(t)

	t.Run("returns signed pdf", func(t *testing.T) {
		rec := post(t, s.Handler(), "/api/sign", pdftest.Pages(2), signature())

		gt.Equal(t, http.StatusOK, rec.Code)
		gt.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		gt.S(t, rec.Header().Get("Content-Disposition")).Contains("signed.pdf")

		rep, err := inspect.Inspect(bytes.NewReader(rec.Body.Bytes()))
		gt.NoError(t, err)
		gt.Equal(t, 2, rep.PageCount)
		gt.Equal(t, 1, len(rep.Pages[0].XObjects))
		gt.Equal(t, 0, len(rep.Pages[1].XObjects))
	})

	t.Run("missing signature", func(t *testing.T) {
		rec := post(t, s.Handler(), "/api/sign", pdftest.Pages(1), nil)

		gt.Equal(t, http.StatusBadRequest, rec.Code)
		var resp map[string]string
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		gt.Equal(t, "Please provide both PDF and signature image files.", resp["error"])
	})

	t.Run("missing pdf", func(t *testing.T) {
		rec := post(t, s.Handler(), "/api/sign", nil, signature())
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("garbage pdf", func(t *testing.T) {
		rec := post(t, s.Handler(), "/api/sign", []byte("not a pdf"), signature())
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("garbage image", func(t *testing.T) {
		rec := post(t, s.Handler(), "/api/sign", pdftest.Pages(1), []byte("not an image"))
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("image dimensions too large", func(t *testing.T) {
		rec := post(t, s.Handler(), "/api/sign", pdftest.Pages(1), pdftest.PNGHeader(100000, 100000))
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/sign", bytes.NewReader([]byte("x")))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleAPISignPageOutOfRange(t *testing.T) {
	p := stamp.DefaultPlacement()
	p.PageIndex = 3
	s := newServer(t, server.WithPlacement(p))

	rec := post(t, s.Handler(), "/api/sign", pdftest.Pages(2), signature())
	gt.Equal(t, http.StatusBadRequest, rec.Code)
}

type placementFunc func() stamp.Placement

func (f placementFunc) Placement() stamp.Placement { return f() }

func TestPlacementSourceIsReadPerRequest(t *testing.T) {
	page := 0
	s := newServer(t, server.WithPlacementSource(placementFunc(func() stamp.Placement {
		p := stamp.DefaultPlacement()
		p.PageIndex = page
		return p
	})))

	rec := post(t, s.Handler(), "/api/sign", pdftest.Pages(2), signature())
	gt.Equal(t, http.StatusOK, rec.Code)

	page = 1
	rec = post(t, s.Handler(), "/api/sign", pdftest.Pages(2), signature())
	gt.Equal(t, http.StatusOK, rec.Code)

	rep, err := inspect.Inspect(bytes.NewReader(rec.Body.Bytes()))
	gt.NoError(t, err)
	gt.Equal(t, 0, len(rep.Pages[0].XObjects))
	gt.Equal(t, 1, len(rep.Pages[1].XObjects))
}

func TestUploadLimit(t *testing.T) {
	s := newServer(t, server.WithMaxUploadBytes(128))

	rec := post(t, s.Handler(), "/api/sign", pdftest.Pages(1), signature())
	gt.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

var downloadLink = regexp.MustCompile(`href="(/download/[0-9a-f-]+)"`)

func TestSignAndDownload(t *testing.T) {
	s := newServer(t)

	rec := post(t, s.Handler(), "/sign", pdftest.Pages(1), signature())
	gt.Equal(t, http.StatusOK, rec.Code)
	gt.S(t, rec.Header().Get("Content-Type")).Contains("text/html")

	m := downloadLink.FindStringSubmatch(rec.Body.String())
	gt.Equal(t, 2, len(m))

	req := httptest.NewRequest(http.MethodGet, m[1], nil)
	dl := httptest.NewRecorder()
	s.Handler().ServeHTTP(dl, req)

	gt.Equal(t, http.StatusOK, dl.Code)
	gt.Equal(t, "application/pdf", dl.Header().Get("Content-Type"))
	gt.Equal(t, `attachment; filename="signed.pdf"`, dl.Header().Get("Content-Disposition"))

	rep, err := inspect.Inspect(bytes.NewReader(dl.Body.Bytes()))
	gt.NoError(t, err)
	gt.Equal(t, 1, len(rep.Pages[0].XObjects))
}

func TestSignFormMissingFiles(t *testing.T) {
	s := newServer(t)

	rec := post(t, s.Handler(), "/sign", nil, nil)
	gt.Equal(t, http.StatusBadRequest, rec.Code)
	gt.S(t, rec.Body.String()).Contains("Please provide both PDF and signature image files.")
}

func TestDownloadUnknown(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{
		"/download/1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		"/download/not-an-id",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		gt.Equal(t, http.StatusNotFound, rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: x", stamp.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: x", stamp.ErrDecodeFailure), http.StatusBadRequest},
		{fmt.Errorf("%w: x", stamp.ErrPageIndexOutOfRange), http.StatusBadRequest},
		{fmt.Errorf("%w: x", stamp.ErrEncodingFailure), http.StatusInternalServerError},
		{context.Canceled, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, msg := server.StatusFor(tt.err)
		gt.Equal(t, tt.status, status)
		gt.True(t, msg != "")
	}
}

func TestNewRequiresStore(t *testing.T) {
	_, err := server.New(nil)
	gt.Error(t, err)
}

func TestStartStopsOnCancel(t *testing.T) {
	s := newServer(t, server.WithAddr("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		gt.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
