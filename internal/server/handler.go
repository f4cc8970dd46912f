package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aintyourcupoftea/PDF-Signer/internal/staging"
	"github.com/aintyourcupoftea/PDF-Signer/internal/stamp"
)

const (
	fieldPDF       = "pdf"
	fieldSignature = "signature"

	downloadName = "signed.pdf"

	msgMissingFiles = "Please provide both PDF and signature image files."
	msgTooLarge     = "The uploaded files are too large."
	msgBadForm      = "The upload could not be read."
)

type apiError struct {
	Error string `json:"error"`
}

// httpError is a status code plus a message that is safe to show the user.
type httpError struct {
	status  int
	message string
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, apiError{Error: msg})
}

// statusFor maps a stamping error to a response. Caller mistakes are 400s,
// everything else is a 500.
func statusFor(err error) httpError {
	switch {
	case errors.Is(err, stamp.ErrPageIndexOutOfRange):
		return httpError{http.StatusBadRequest, "The PDF does not have the page the signature is placed on."}
	case errors.Is(err, stamp.ErrInvalidInput):
		return httpError{http.StatusBadRequest, "The uploaded files could not be used."}
	case errors.Is(err, stamp.ErrDecodeFailure):
		return httpError{http.StatusBadRequest, "The PDF or the signature image could not be read."}
	case errors.Is(err, stamp.ErrEncodingFailure):
		return httpError{http.StatusInternalServerError, "The signed PDF could not be produced."}
	default:
		return httpError{http.StatusInternalServerError, "Something went wrong while signing the PDF."}
	}
}

type pageData struct {
	Title       string
	Error       string
	DownloadURL string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	data.Title = "PDF Signer"

	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("failed to render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", pageData{})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	signed, herr := s.signRequest(w, r)
	if herr != nil {
		s.render(w, r, herr.status, "result.html", pageData{Error: herr.message})
		return
	}

	id, err := s.store.Put(signed)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to stage signed pdf")
		s.render(w, r, http.StatusInternalServerError, "result.html", pageData{Error: "The signed PDF could not be stored."})
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("staged_id", id).Int("bytes", len(signed)).Msg("signed pdf staged")
	s.render(w, r, http.StatusOK, "result.html", pageData{DownloadURL: "/download/" + id})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f, info, err := s.store.Open(id)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("staged_id", id).Msg("failed to open staged pdf")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	http.ServeContent(w, r, downloadName, info.ModTime(), f)
}

func (s *Server) handleAPISign(w http.ResponseWriter, r *http.Request) {
	signed, herr := s.signRequest(w, r)
	if herr != nil {
		writeError(w, r, herr.status, herr.message)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(signed); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to write signed pdf")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// signRequest reads both uploads from a multipart request and stamps them.
func (s *Server) signRequest(w http.ResponseWriter, r *http.Request) ([]byte, *httpError) {
	logger := zerolog.Ctx(r.Context())

	if r.ContentLength > s.maxUpload {
		return nil, &httpError{http.StatusRequestEntityTooLarge, msgTooLarge}
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &httpError{http.StatusRequestEntityTooLarge, msgTooLarge}
		}
		logger.Debug().Err(err).Msg("failed to parse upload")
		return nil, &httpError{http.StatusBadRequest, msgBadForm}
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	pdf, pdfHeader, err := r.FormFile(fieldPDF)
	if err != nil {
		return nil, &httpError{http.StatusBadRequest, msgMissingFiles}
	}
	defer pdf.Close()

	sig, sigHeader, err := r.FormFile(fieldSignature)
	if err != nil {
		return nil, &httpError{http.StatusBadRequest, msgMissingFiles}
	}
	defer sig.Close()

	p := s.placement.Placement()
	start := time.Now()
	signed, err := s.stamper.Stamp(r.Context(), pdf, sig, p)
	if err != nil {
		herr := statusFor(err)
		ev := logger.Warn()
		if herr.status >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Err(err).
			Str("pdf", uploadName(pdfHeader)).
			Str("signature", uploadName(sigHeader)).
			Msg("stamping failed")
		return nil, &herr
	}

	logger.Info().
		Str("pdf", uploadName(pdfHeader)).
		Str("signature", uploadName(sigHeader)).
		Int("page", p.PageIndex).
		Dur("elapsed", time.Since(start)).
		Msg("signed pdf")
	return signed, nil
}

func uploadName(h *multipart.FileHeader) string {
	if h == nil {
		return ""
	}
	return h.Filename
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog tags each request with an id and attaches a logger carrying
// it to the request context.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		logger := s.logger.With().Str("request_id", id).Logger()
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context())))

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
