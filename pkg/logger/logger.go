// Package logger builds the zerolog loggers the toolkit reports
// through: request traces, marshaling degradation warnings, view query
// diagnostics.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const permission = 0664

// Build assembles a logger sink by sink. The zero Build writes to
// stderr.
type Build struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

func New() *Build {
	return &Build{level: zerolog.InfoLevel}
}

// ToPath appends log lines to the file at path, creating it if needed.
func (b *Build) ToPath(path string) *Build {
	b.path = path
	return b
}

// ToWriter sends log lines to w. Useful for capturing output in tests.
func (b *Build) ToWriter(w io.Writer) *Build {
	b.writer = w
	return b
}

// Level sets the minimum level, InfoLevel when unset.
func (b *Build) Level(level zerolog.Level) *Build {
	b.level = level
	return b
}

// Make finalizes the build. File sinks are wrapped in a SyncWriter so
// the logger stays safe for concurrent use.
func (b *Build) Make() (*zerolog.Logger, error) {
	w := b.writer
	if b.path != "" {
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		w = zerolog.SyncWriter(f)
	}
	if w == nil {
		w = os.Stderr
	}
	l := zerolog.New(w).Level(b.level).With().Timestamp().Logger()
	return &l, nil
}
