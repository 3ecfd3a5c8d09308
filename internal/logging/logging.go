// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File configures an optional rotated log file. Lines are always JSON.
type File struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// New returns a logger tagged with app and installs it as the global one.
// pretty selects the console writer over JSON lines.
func New(app string, level zerolog.Level, pretty bool) zerolog.Logger {
	return NewWriter(os.Stdout, app, level, pretty)
}

// NewWriter is New writing to w.
func NewWriter(w io.Writer, app string, level zerolog.Level, pretty bool) zerolog.Logger {
	return install(console(w, pretty), app, level)
}

// NewWithFile is New that also writes to the rotated file f. The returned
// func closes the file. An empty f.Path disables the file.
func NewWithFile(app string, level zerolog.Level, pretty bool, f File) (zerolog.Logger, func() error) {
	if f.Path == "" {
		return New(app, level, pretty), func() error { return nil }
	}
	rotator := &lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    f.MaxSizeMB,
		MaxBackups: f.MaxBackups,
		Compress:   f.Compress,
	}
	out := zerolog.MultiLevelWriter(console(os.Stdout, pretty), rotator)
	return install(out, app, level), rotator.Close
}

func console(w io.Writer, pretty bool) io.Writer {
	if pretty {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return w
}

func install(w io.Writer, app string, level zerolog.Level) zerolog.Logger {
	logger := zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
