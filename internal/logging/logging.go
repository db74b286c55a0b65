// Package logging configures the daemon-wide structured logger.
// spec.md S6 fixes the wire shape of a log record to "level, local
// timestamp (YYYY/MM/DD HH:MM:SS), PID, message" — a hard requirement,
// not a style preference — so this wraps zerolog's ConsoleWriter with
// a custom format instead of emitting zerolog's default JSON records.
// zerolog itself is grounded on the pack's streamspace-dev-streamspace
// api stack (github.com/rs/zerolog), not the teacher, which logs with
// bare fmt.Printf.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a logger that writes level/timestamp/PID/message lines
// to w, tagged with identity (spec.md S6 "identity string", threaded
// as a static field so operators running multiple instances against
// one log host can tell their output apart).
func New(w io.Writer, identity string) zerolog.Logger {
	pid := os.Getpid()
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006/01/02 15:04:05",
		NoColor:    true,
		FormatLevel: func(i any) string {
			return strings.ToUpper(fmt.Sprintf("%-5s", i))
		},
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, "pid", zerolog.MessageFieldName},
	}

	logger := zerolog.New(cw).With().Timestamp().Logger()
	ctx := logger.With().Int("pid", pid)
	if identity != "" {
		ctx = ctx.Str("identity", identity)
	}
	return ctx.Logger()
}

// ParseLevel maps a spec.md S7 parse-error level name ("debug", "info",
// "warn", "error", "none") to a zerolog.Level, returning
// zerolog.Disabled for "none" so callers can gate emission with one
// comparison.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "none" {
		return zerolog.Disabled, nil
	}
	return zerolog.ParseLevel(name)
}
