// Package server serves the upload form and a small JSON/PDF API around the
// document stamper.
package server

import (
	"context"
	"embed"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"

	"github.com/aintyourcupoftea/PDF-Signer/internal/staging"
	"github.com/aintyourcupoftea/PDF-Signer/internal/stamp"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	defaultAddr      = ":7860"
	defaultMaxUpload = 32 << 20
	multipartMemory  = 8 << 20
	shutdownTimeout  = 5 * time.Second
)

// PlacementSource supplies the placement used for each request.
type PlacementSource interface {
	Placement() stamp.Placement
}

type staticPlacement stamp.Placement

func (p staticPlacement) Placement() stamp.Placement { return stamp.Placement(p) }

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithStamper(st *stamp.Stamper) Option {
	return func(s *Server) {
		s.stamper = st
	}
}

// WithPlacement fixes the placement for every request.
func WithPlacement(p stamp.Placement) Option {
	return func(s *Server) {
		s.placement = staticPlacement(p)
	}
}

// WithPlacementSource reads the placement from src on every request, so a
// reloading config is picked up without a restart.
func WithPlacementSource(src PlacementSource) Option {
	return func(s *Server) {
		s.placement = src
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		s.maxUpload = n
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

type Server struct {
	addr      string
	store     *staging.Store
	stamper   *stamp.Stamper
	placement PlacementSource
	maxUpload int64
	logger    zerolog.Logger
	pages     *template.Template
	mux       *http.ServeMux
}

// New builds a server that stages form results in store.
func New(store *staging.Store, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, goerr.New("staging store is required")
	}
	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse templates")
	}

	s := &Server{
		addr:      defaultAddr,
		store:     store,
		stamper:   stamp.New(),
		placement: staticPlacement(stamp.DefaultPlacement()),
		maxUpload: defaultMaxUpload,
		logger:    zerolog.Nop(),
		pages:     pages,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxUpload <= 0 {
		return nil, goerr.New("max upload size must be positive", goerr.V("max_upload", s.maxUpload))
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /sign", s.handleSign)
	s.mux.HandleFunc("GET /download/{id}", s.handleDownload)

	s.mux.HandleFunc("POST /api/sign", s.handleAPISign)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.mux)
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return goerr.Wrap(err, "failed to listen", goerr.V("addr", s.addr))
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("starting pdf signer server")

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("server shutdown did not complete")
			_ = srv.Close()
		}
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return goerr.Wrap(err, "server error")
	}

	return nil
}
