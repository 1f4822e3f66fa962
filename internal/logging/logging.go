// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Setup returns a logger writing to w in the given format ("console" or
// "json") at the given level.
func Setup(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "log level %q", level)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	switch format {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), errors.Errorf("unknown log format %q", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// Printer adapts a zerolog.Logger to the Println/Printf interface used by
// third-party clients that log on their own.
type Printer struct {
	Log zerolog.Logger
}

func (p Printer) Println(v ...any) {
	p.Log.Debug().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p Printer) Printf(format string, v ...any) {
	p.Log.Debug().Msgf(strings.TrimSuffix(format, "\n"), v...)
}
