// Package logging builds the zerolog logger shared by the pdfsign commands.
package logging

import (
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
)

// New returns a timestamped logger writing to w. format is "console" for
// human-readable output or "json" for one object per line.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), goerr.Wrap(err, "invalid log level", goerr.V("level", level))
	}

	var out io.Writer
	switch format {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
		out = w
	default:
		return zerolog.Nop(), goerr.New("unknown log format", goerr.V("format", format))
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
