package logutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// New returns a new logger that writes JSON to the specified file, appending
// to it when it already exists. If file is empty, logs are written to
// stderr, human readable when stderr is a terminal.
//
// The level parameter can be one of: debug, info, warn, error, fatal.
func New(level string, file string) (zerolog.Logger, func(), error) {
	closer := func() {}

	if file == "" {
		var w io.Writer = os.Stderr
		if term.IsTerminal(int(os.Stderr.Fd())) {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		}
		l, err := NewWithWriter(level, w)
		return l, closer, err
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return zerolog.Logger{}, closer, fmt.Errorf("create logs dir: %w", err)
	}

	osFile, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, closer, err
	}

	l, err := NewWithWriter(level, osFile)
	if err != nil {
		_ = osFile.Close()
		return zerolog.Logger{}, closer, err
	}
	return l, func() { _ = osFile.Close() }, nil
}

// NewWithWriter returns a timestamped logger at level writing to w.
func NewWithWriter(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Logger().
		Level(lvl), nil
}
