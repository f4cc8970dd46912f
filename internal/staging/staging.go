// Package staging keeps signed documents on disk for a short time so the web
// form can offer them as a download.
package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
)

const ext = ".pdf"

var ErrNotFound = errors.New("staged file not found")

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is a directory of uuid-named files that expire after ttl.
type Store struct {
	dir    string
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

func New(dir string, ttl time.Duration, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, goerr.New("staging directory is required")
	}
	if ttl <= 0 {
		return nil, goerr.New("staging ttl must be positive", goerr.V("ttl", ttl))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, goerr.Wrap(err, "failed to create staging directory", goerr.V("dir", dir))
	}

	s := &Store{
		dir:    dir,
		ttl:    ttl,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir is the directory signed files are staged in.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string { return filepath.Join(s.dir, id+ext) }

// Put writes data under a fresh id. The file appears atomically.
func (s *Store) Put(data []byte) (string, error) {
	id := uuid.NewString()
	dst := s.path(id)
	tmp := dst + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", goerr.Wrap(err, "failed to write staged file", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", goerr.Wrap(err, "failed to publish staged file", goerr.V("path", dst))
	}

	s.logger.Debug().Str("id", id).Int("bytes", len(data)).Msg("staged file")
	return id, nil
}

// Open returns the staged file for id. Unknown, malformed and expired ids
// all yield ErrNotFound.
func (s *Store) Open(id string) (*os.File, os.FileInfo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, goerr.Wrap(ErrNotFound, "malformed id", goerr.V("id", id))
	}

	p := s.path(id)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, goerr.Wrap(ErrNotFound, "no such file", goerr.V("id", id))
		}
		return nil, nil, goerr.Wrap(err, "failed to stat staged file", goerr.V("id", id))
	}
	if s.expired(info) {
		_ = os.Remove(p)
		return nil, nil, goerr.Wrap(ErrNotFound, "staged file expired", goerr.V("id", id))
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open staged file", goerr.V("id", id))
	}
	return f, info, nil
}

func (s *Store) expired(info os.FileInfo) bool {
	return s.now().Sub(info.ModTime()) > s.ttl
}

// Sweep removes expired files and returns how many were deleted.
func (s *Store) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list staging directory", goerr.V("dir", s.dir))
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ext) || strings.HasSuffix(name, ext+".tmp")) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !s.expired(info) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("file", name).Msg("failed to remove expired staged file")
			continue
		}
		removed++
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep()
			if err != nil {
				s.logger.Warn().Err(err).Msg("staging sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("removed", n).Msg("removed expired staged files")
			}
		}
	}
}
